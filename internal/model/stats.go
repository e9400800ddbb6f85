package model

import "time"

// RepositoryStats is one per-repository rollup row computed over an event window.
type RepositoryStats struct {
	RepositoryID       string     `json:"repository_id"`
	RepositoryName     string     `json:"repository_name"`
	FullName           string     `json:"full_name"`
	TotalEvents        int        `json:"total_events"`
	UniqueContributors int        `json:"unique_contributors"`
	Pushes             int        `json:"pushes"`
	PullRequests       int        `json:"pull_requests"`
	Issues             int        `json:"issues"`
	LastActivity       *time.Time `json:"last_activity"`
}

// UserStats is one per-actor rollup row, ranked by total event count.
type UserStats struct {
	ActorLogin     string    `json:"actor_login"`
	TotalEvents    int       `json:"total_events"`
	Pushes         int       `json:"pushes"`
	PullRequests   int       `json:"pull_requests"`
	Issues         int       `json:"issues"`
	TotalAdditions int       `json:"total_additions"`
	TotalDeletions int       `json:"total_deletions"`
	LastActivity   time.Time `json:"last_activity"`
}

// EventTypeStats is one per-event-type rollup row, ranked by count.
type EventTypeStats struct {
	EventType    string `json:"event_type"`
	Count        int    `json:"count"`
	UniqueActors int    `json:"unique_actors"`
}

// ActivityBucket is one hour of recent activity. Hour is the bucket start.
type ActivityBucket struct {
	Hour               time.Time `json:"hour"`
	EventsCount        int       `json:"events_count"`
	UniqueContributors int       `json:"unique_contributors"`
}

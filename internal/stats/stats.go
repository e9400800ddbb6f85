// Package stats computes read-side aggregations over a bounded window of
// events. All functions are pure: they take a fetched window and return rows,
// with no I/O and no shared state.
package stats

import (
	"sort"
	"time"

	"github-webhook-pulse/internal/model"
)

// DefaultUserLimit is the ranking cutoff when a user-stats request does not
// specify one.
const DefaultUserLimit = 10

// DefaultActivityHours is the lookback for recent activity.
const DefaultActivityHours = 24

// Repositories computes one rollup row per repository from the window.
// A non-empty filterID restricts the output to that repository. Repositories
// with no events in the window still get a row with zero counts.
func Repositories(repos []model.Repository, window []model.Event, filterID string) []model.RepositoryStats {
	rows := make([]model.RepositoryStats, 0, len(repos))
	for _, repo := range repos {
		if filterID != "" && repo.ID != filterID {
			continue
		}

		row := model.RepositoryStats{
			RepositoryID:   repo.ID,
			RepositoryName: repo.Name,
			FullName:       repo.FullName,
		}
		contributors := make(map[string]struct{})
		for _, ev := range window {
			if ev.RepositoryID != repo.ID {
				continue
			}
			row.TotalEvents++
			if ev.ActorLogin != nil {
				contributors[*ev.ActorLogin] = struct{}{}
			}
			switch ev.EventType {
			case "push":
				row.Pushes++
			case "pull_request":
				row.PullRequests++
			case "issues":
				row.Issues++
			}
			if row.LastActivity == nil || ev.CreatedAt.After(*row.LastActivity) {
				t := ev.CreatedAt
				row.LastActivity = &t
			}
		}
		row.UniqueContributors = len(contributors)
		rows = append(rows, row)
	}
	return rows
}

// Users groups the window by actor login, ranks descending by total event
// count, and truncates to limit. Events without an actor are excluded. Ties
// keep the order in which the actor was first seen in the window.
func Users(window []model.Event, limit int) []model.UserStats {
	if limit <= 0 {
		limit = DefaultUserLimit
	}

	byLogin := make(map[string]*model.UserStats)
	var order []string
	for _, ev := range window {
		if ev.ActorLogin == nil {
			continue
		}
		login := *ev.ActorLogin
		row, ok := byLogin[login]
		if !ok {
			row = &model.UserStats{ActorLogin: login, LastActivity: ev.CreatedAt}
			byLogin[login] = row
			order = append(order, login)
		}

		row.TotalEvents++
		row.TotalAdditions += ev.Additions
		row.TotalDeletions += ev.Deletions
		switch ev.EventType {
		case "push":
			row.Pushes++
		case "pull_request":
			row.PullRequests++
		case "issues":
			row.Issues++
		}
		if ev.CreatedAt.After(row.LastActivity) {
			row.LastActivity = ev.CreatedAt
		}
	}

	rows := make([]model.UserStats, 0, len(order))
	for _, login := range order {
		rows = append(rows, *byLogin[login])
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TotalEvents > rows[j].TotalEvents
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// EventTypes groups the window by event type and ranks descending by count.
// Every event lands in exactly one group, so group counts sum to the window
// size. Unique actors are counted per group.
func EventTypes(window []model.Event) []model.EventTypeStats {
	counts := make(map[string]int)
	actors := make(map[string]map[string]struct{})
	var order []string
	for _, ev := range window {
		if _, ok := counts[ev.EventType]; !ok {
			order = append(order, ev.EventType)
			actors[ev.EventType] = make(map[string]struct{})
		}
		counts[ev.EventType]++
		if ev.ActorLogin != nil {
			actors[ev.EventType][*ev.ActorLogin] = struct{}{}
		}
	}

	rows := make([]model.EventTypeStats, 0, len(order))
	for _, eventType := range order {
		rows = append(rows, model.EventTypeStats{
			EventType:    eventType,
			Count:        counts[eventType],
			UniqueActors: len(actors[eventType]),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Count > rows[j].Count
	})
	return rows
}

// Activity filters the window to events created within the last `hours` hours
// of now, buckets them by floor-to-hour of created_at, and returns buckets in
// ascending order of bucket start. Hours without events produce no bucket.
func Activity(window []model.Event, now time.Time, hours int) []model.ActivityBucket {
	if hours <= 0 {
		hours = DefaultActivityHours
	}
	cutoff := now.Add(-time.Duration(hours) * time.Hour)

	buckets := make(map[time.Time]*model.ActivityBucket)
	contributors := make(map[time.Time]map[string]struct{})
	for _, ev := range window {
		if ev.CreatedAt.Before(cutoff) {
			continue
		}
		hour := ev.CreatedAt.Truncate(time.Hour)
		bucket, ok := buckets[hour]
		if !ok {
			bucket = &model.ActivityBucket{Hour: hour}
			buckets[hour] = bucket
			contributors[hour] = make(map[string]struct{})
		}
		bucket.EventsCount++
		if ev.ActorLogin != nil {
			contributors[hour][*ev.ActorLogin] = struct{}{}
		}
	}

	rows := make([]model.ActivityBucket, 0, len(buckets))
	for hour, bucket := range buckets {
		bucket.UniqueContributors = len(contributors[hour])
		rows = append(rows, *bucket)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Hour.Before(rows[j].Hour)
	})
	return rows
}

package model

import (
	"encoding/json"
	"time"
)

// Repository represents a GitHub repository that webhooks have been received for.
// The JSON field names are the stable wire contract consumed by the dashboard.
type Repository struct {
	ID             string    `json:"id"`
	GithubID       int64     `json:"github_id"`
	Name           string    `json:"name"`
	FullName       string    `json:"full_name"`
	OwnerLogin     string    `json:"owner_login"`
	OwnerAvatarURL *string   `json:"owner_avatar_url"`
	Private        bool      `json:"private"`
	HTMLURL        string    `json:"html_url"`
	Description    *string   `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Event is one normalized record derived from a single webhook delivery.
// Records are append-only; the id is assigned by the store and defines the
// total order used for pagination and stream resumption.
type Event struct {
	ID             int64           `json:"id"`
	RepositoryID   string          `json:"repository_id"`
	EventType      string          `json:"event_type"`
	Action         *string         `json:"action"`
	ActorLogin     *string         `json:"actor_login"`
	ActorAvatarURL *string         `json:"actor_avatar_url"`
	Title          *string         `json:"title"`
	Body           *string         `json:"body"`
	Number         *int            `json:"number"`
	State          *string         `json:"state"`
	Merged         bool            `json:"merged"`
	CommitsCount   int             `json:"commits_count"`
	FilesChanged   int             `json:"files_changed"`
	Additions      int             `json:"additions"`
	Deletions      int             `json:"deletions"`
	Branch         *string         `json:"branch"`
	Ref            *string         `json:"ref"`
	RawPayload     json.RawMessage `json:"raw_payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

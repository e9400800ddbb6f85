package store

import (
	"context"

	"github-webhook-pulse/internal/model"
)

// MaxWindow caps how many events any single read fetches. Aggregations are
// computed over at most this many of the newest events, a documented
// approximation rather than a scan of the full historical log.
const MaxWindow = 1000

// DefaultTimelineLimit is the page size used when a timeline request does not
// specify one.
const DefaultTimelineLimit = 50

// UpsertRepositoryParams carries the repository fields extracted from a
// webhook payload. GithubID is the upsert key.
type UpsertRepositoryParams struct {
	GithubID       int64
	Name           string
	FullName       string
	OwnerLogin     string
	OwnerAvatarURL *string
	Private        bool
	HTMLURL        string
	Description    *string
}

// QueryEventsParams selects the event window for a read. An empty
// RepositoryID means all repositories. Limit is clamped to MaxWindow; zero or
// negative means MaxWindow.
type QueryEventsParams struct {
	RepositoryID string
	Limit        int
}

// Querier is the persistence contract for the event log and the repository
// registry. The single implementation is Postgres-backed; handlers and the
// streaming session depend only on this interface.
type Querier interface {
	// UpsertRepository creates the repository on first sight of its GitHub id
	// and overwrites every field except id and created_at on subsequent calls.
	UpsertRepository(ctx context.Context, arg UpsertRepositoryParams) (model.Repository, error)

	// ListRepositories returns all repositories in insertion order.
	ListRepositories(ctx context.Context) ([]model.Repository, error)

	// DeleteRepository removes the repository and every event referencing it,
	// returning how many events were removed. A missing id yields a
	// *errors.NotFoundError.
	DeleteRepository(ctx context.Context, id string) (int64, error)

	// AppendEvent stores ev and returns it with the assigned id. Ids are
	// strictly increasing across the whole store and become visible to
	// EventsAfter in id order, even under concurrent appends.
	AppendEvent(ctx context.Context, ev model.Event) (model.Event, error)

	// QueryEvents returns events ordered by (created_at DESC, id DESC),
	// truncated to the clamped limit.
	QueryEvents(ctx context.Context, arg QueryEventsParams) ([]model.Event, error)

	// EventsAfter returns events with id > lastSeenID, ascending by id. It is
	// the poll primitive behind the streaming session.
	EventsAfter(ctx context.Context, lastSeenID int64) ([]model.Event, error)

	// Ping reports whether the underlying storage is reachable.
	Ping(ctx context.Context) error
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxWindow {
		return MaxWindow
	}
	return limit
}

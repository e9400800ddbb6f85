package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	custom_errors "github-webhook-pulse/internal/errors"
	"github-webhook-pulse/internal/model"
)

// Store is the Postgres-backed Querier implementation. Event appends are
// serialized through an advisory lock; everything else relies on the
// database's own transaction isolation.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New creates a Store on top of an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

const repositoryColumns = `id, github_id, name, full_name, owner_login, owner_avatar_url, private, html_url, description, created_at, updated_at`

const upsertRepositorySQL = `
INSERT INTO repositories (` + repositoryColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
ON CONFLICT (github_id) DO UPDATE SET
    name = EXCLUDED.name,
    full_name = EXCLUDED.full_name,
    owner_login = EXCLUDED.owner_login,
    owner_avatar_url = EXCLUDED.owner_avatar_url,
    private = EXCLUDED.private,
    html_url = EXCLUDED.html_url,
    description = EXCLUDED.description,
    updated_at = EXCLUDED.updated_at
RETURNING ` + repositoryColumns

// UpsertRepository inserts or updates by GitHub id. The generated uuid and
// created_at only survive on first insert; ON CONFLICT leaves them untouched.
func (s *Store) UpsertRepository(ctx context.Context, arg UpsertRepositoryParams) (model.Repository, error) {
	row := s.pool.QueryRow(ctx, upsertRepositorySQL,
		uuid.NewString(),
		arg.GithubID,
		arg.Name,
		arg.FullName,
		arg.OwnerLogin,
		arg.OwnerAvatarURL,
		arg.Private,
		arg.HTMLURL,
		arg.Description,
		s.now(),
	)
	repo, err := scanRepository(row)
	if err != nil {
		return model.Repository{}, &custom_errors.StorageError{Op: "upsert repository", Err: err}
	}
	return repo, nil
}

// ListRepositories returns every repository in registration order.
func (s *Store) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+repositoryColumns+` FROM repositories ORDER BY seq`)
	if err != nil {
		return nil, &custom_errors.StorageError{Op: "list repositories", Err: err}
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, &custom_errors.StorageError{Op: "scan repository", Err: err}
		}
		repos = append(repos, repo)
	}
	if err := rows.Err(); err != nil {
		return nil, &custom_errors.StorageError{Op: "list repositories", Err: err}
	}
	return repos, nil
}

// DeleteRepository removes the repository row and its events in one
// transaction so concurrent readers never see a repository without its events
// half-removed. The FK cascade would remove the events anyway; the explicit
// DELETE exists to report the count.
func (s *Store) DeleteRepository(ctx context.Context, id string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, &custom_errors.StorageError{Op: "begin delete", Err: err}
	}
	defer tx.Rollback(ctx) // Rollback is a no-op if the transaction is already committed.

	events, err := tx.Exec(ctx, `DELETE FROM events WHERE repository_id = $1`, id)
	if err != nil {
		return 0, &custom_errors.StorageError{Op: "delete events", Err: err}
	}
	repo, err := tx.Exec(ctx, `DELETE FROM repositories WHERE id = $1`, id)
	if err != nil {
		return 0, &custom_errors.StorageError{Op: "delete repository", Err: err}
	}
	if repo.RowsAffected() == 0 {
		return 0, &custom_errors.NotFoundError{Resource: "repository", ID: id}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, &custom_errors.StorageError{Op: "commit delete", Err: err}
	}
	return events.RowsAffected(), nil
}

const eventColumns = `id, repository_id, event_type, action, actor_login, actor_avatar_url, title, body, number, state, merged, commits_count, files_changed, additions, deletions, branch, ref, raw_payload, created_at`

const appendEventSQL = `
INSERT INTO events (repository_id, event_type, action, actor_login, actor_avatar_url, title, body, number, state, merged, commits_count, files_changed, additions, deletions, branch, ref, raw_payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
RETURNING id`

// eventAppendLockID keys the advisory lock that serializes appends. Without
// it, sequence ids are allocated at INSERT but become visible at commit, and
// commit order across pool connections is not id order: a poller could see
// id 5, advance its cursor past a still-uncommitted id 4, and lose that event
// forever. Holding the lock until commit makes ids visible in id order.
const eventAppendLockID = 874351

// AppendEvent stores ev inside a transaction holding the append lock, so
// events become visible to EventsAfter in strictly increasing id order.
func (s *Store) AppendEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	if ev.RawPayload == nil {
		ev.RawPayload = []byte(`{}`)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Event{}, &custom_errors.StorageError{Op: "begin append", Err: err}
	}
	defer tx.Rollback(ctx) // Rollback is a no-op if the transaction is already committed.

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, eventAppendLockID); err != nil {
		return model.Event{}, &custom_errors.StorageError{Op: "lock append", Err: err}
	}

	err = tx.QueryRow(ctx, appendEventSQL,
		ev.RepositoryID,
		ev.EventType,
		ev.Action,
		ev.ActorLogin,
		ev.ActorAvatarURL,
		ev.Title,
		ev.Body,
		ev.Number,
		ev.State,
		ev.Merged,
		ev.CommitsCount,
		ev.FilesChanged,
		ev.Additions,
		ev.Deletions,
		ev.Branch,
		ev.Ref,
		ev.RawPayload,
		ev.CreatedAt,
	).Scan(&ev.ID)
	if err != nil {
		return model.Event{}, &custom_errors.StorageError{Op: "append event", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Event{}, &custom_errors.StorageError{Op: "commit append", Err: err}
	}
	return ev, nil
}

func (s *Store) QueryEvents(ctx context.Context, arg QueryEventsParams) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE ($1 = '' OR repository_id = $1)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		arg.RepositoryID, clampLimit(arg.Limit))
	if err != nil {
		return nil, &custom_errors.StorageError{Op: "query events", Err: err}
	}
	return collectEvents(rows)
}

func (s *Store) EventsAfter(ctx context.Context, lastSeenID int64) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id > $1 ORDER BY id LIMIT $2`,
		lastSeenID, MaxWindow)
	if err != nil {
		return nil, &custom_errors.StorageError{Op: "poll events", Err: err}
	}
	return collectEvents(rows)
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return &custom_errors.StorageError{Op: "ping", Err: err}
	}
	return nil
}

func scanRepository(row pgx.Row) (model.Repository, error) {
	var r model.Repository
	err := row.Scan(
		&r.ID,
		&r.GithubID,
		&r.Name,
		&r.FullName,
		&r.OwnerLogin,
		&r.OwnerAvatarURL,
		&r.Private,
		&r.HTMLURL,
		&r.Description,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

func collectEvents(rows pgx.Rows) ([]model.Event, error) {
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		err := rows.Scan(
			&ev.ID,
			&ev.RepositoryID,
			&ev.EventType,
			&ev.Action,
			&ev.ActorLogin,
			&ev.ActorAvatarURL,
			&ev.Title,
			&ev.Body,
			&ev.Number,
			&ev.State,
			&ev.Merged,
			&ev.CommitsCount,
			&ev.FilesChanged,
			&ev.Additions,
			&ev.Deletions,
			&ev.Branch,
			&ev.Ref,
			&ev.RawPayload,
			&ev.CreatedAt,
		)
		if err != nil {
			return nil, &custom_errors.StorageError{Op: "scan event", Err: err}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, &custom_errors.StorageError{Op: "read events", Err: err}
	}
	return events, nil
}

// Package backfill pulls a repository's recent events from the GitHub REST
// API and replays them through the same ingestion path webhooks take, so a
// freshly deployed instance is not empty until the next delivery arrives.
package backfill

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	gh "github.com/google/go-github/v62/github"
	"golang.org/x/sync/errgroup"

	custom_errors "github-webhook-pulse/internal/errors"
	"github-webhook-pulse/internal/github"
	"github-webhook-pulse/internal/model"
)

const (
	// Number of repositories to backfill in parallel
	concurrency = 5

	// DefaultPageLimit bounds how many event pages are fetched per repository.
	DefaultPageLimit = 3
)

// Ingestor is the slice of the ingestion path the backfiller feeds.
type Ingestor interface {
	Ingest(ctx context.Context, eventType string, payload []byte) (model.Event, error)
}

// RepoIdentifier holds the owner and name of a repository.
type RepoIdentifier struct {
	Owner string
	Name  string
}

// Backfiller orchestrates fetching and ingesting historical events.
type Backfiller struct {
	ghClient  *github.Client
	ingestor  Ingestor
	logger    *slog.Logger
	pageLimit int
}

// New creates a Backfiller. pageLimit <= 0 falls back to DefaultPageLimit.
func New(ghClient *github.Client, ingestor Ingestor, logger *slog.Logger, pageLimit int) *Backfiller {
	if pageLimit <= 0 {
		pageLimit = DefaultPageLimit
	}
	return &Backfiller{
		ghClient:  ghClient,
		ingestor:  ingestor,
		logger:    logger,
		pageLimit: pageLimit,
	}
}

// Run backfills a single repository and returns how many events were
// ingested. Events are replayed oldest first so the assigned ids preserve
// their original order.
func (b *Backfiller) Run(ctx context.Context, owner, name string) (int, error) {
	logger := b.logger.With("owner", owner, "repo", name)
	logger.Info("Backfilling repository")

	repo, err := b.ghClient.GetRepository(ctx, owner, name)
	if err != nil {
		return 0, err
	}
	repoObj, err := toPayloadObject(repo)
	if err != nil {
		return 0, err
	}

	events, err := b.ghClient.ListRecentEvents(ctx, owner, name, b.pageLimit)
	if err != nil {
		return 0, err
	}
	logger.Info("Fetched events from GitHub", "count", len(events))

	count := 0
	for i := len(events) - 1; i >= 0; i-- {
		payload, err := synthesizePayload(events[i], repoObj)
		if err != nil {
			logger.Warn("Skipping event with unusable payload", "type", events[i].GetType(), "error", err)
			continue
		}
		_, err = b.ingestor.Ingest(ctx, webhookType(events[i].GetType()), payload)
		if err != nil {
			var verr *custom_errors.ValidationError
			if errors.As(err, &verr) {
				logger.Warn("Skipping rejected event", "type", events[i].GetType(), "reason", verr.Reason)
				continue
			}
			return count, err
		}
		count++
	}

	logger.Info("Backfill finished", "ingested", count)
	return count, nil
}

// RunAll backfills the configured repositories concurrently. Individual
// failures are logged and do not abort the other repositories.
func (b *Backfiller) RunAll(ctx context.Context, repos []RepoIdentifier) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, repoID := range repos {
		repoID := repoID
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			_, err := b.Run(gctx, repoID.Owner, repoID.Name)
			if err != nil && !errors.Is(err, context.Canceled) {
				b.logger.Error("Failed to backfill repository", "owner", repoID.Owner, "repo", repoID.Name, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// ParseRepoIdentifiers parses "owner/name" strings from the config.
func ParseRepoIdentifiers(repos []string) ([]RepoIdentifier, error) {
	var identifiers []RepoIdentifier
	for _, r := range repos {
		parts := strings.Split(r, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, &custom_errors.ErrInvalidRepoFormat{Repo: r}
		}
		identifiers = append(identifiers, RepoIdentifier{Owner: parts[0], Name: parts[1]})
	}
	return identifiers, nil
}

// synthesizePayload rebuilds a webhook-shaped body from an API event: the API
// payload lacks the repository object and the sender, both of which the
// ingestor extracts.
func synthesizePayload(ev *gh.Event, repoObj map[string]any) ([]byte, error) {
	payload := make(map[string]any)
	if raw := ev.RawPayload; raw != nil {
		if err := json.Unmarshal(*raw, &payload); err != nil {
			return nil, err
		}
	}
	payload["repository"] = repoObj
	if _, ok := payload["sender"]; !ok && ev.Actor != nil {
		payload["sender"] = map[string]any{
			"login":      ev.Actor.GetLogin(),
			"avatar_url": ev.Actor.GetAvatarURL(),
		}
	}
	return json.Marshal(payload)
}

func toPayloadObject(repo *gh.Repository) (map[string]any, error) {
	raw, err := json.Marshal(repo)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// webhookType maps an Events API type tag (e.g. "PushEvent") onto the
// webhook event-type tag the extraction table dispatches on.
func webhookType(apiType string) string {
	switch apiType {
	case "PushEvent":
		return "push"
	case "PullRequestEvent":
		return "pull_request"
	case "IssuesEvent":
		return "issues"
	case "IssueCommentEvent":
		return "issue_comment"
	case "PullRequestReviewEvent":
		return "pull_request_review"
	}
	return strings.ToLower(strings.TrimSuffix(apiType, "Event"))
}

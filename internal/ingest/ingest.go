package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	custom_errors "github-webhook-pulse/internal/errors"
	"github-webhook-pulse/internal/model"
	"github-webhook-pulse/internal/store"
)

// Ingestor normalizes raw webhook deliveries into event records and appends
// them to the store.
type Ingestor struct {
	store  store.Querier
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Ingestor. Timestamps are assigned at ingestion time with
// second precision; ties in created_at are broken by the store-assigned id.
func New(q store.Querier, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		store:  q,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

// Ingest maps one webhook delivery into an event record. The only validation
// failure is a missing top-level repository object; every other absent field
// is extracted defensively as absence. Nothing is persisted on failure.
func (in *Ingestor) Ingest(ctx context.Context, eventType string, payload []byte) (model.Event, error) {
	var d doc
	if err := json.Unmarshal(payload, &d); err != nil {
		return model.Event{}, &custom_errors.ValidationError{Reason: "body is not a JSON object"}
	}

	repoObj := d.sub("repository")
	if repoObj == nil {
		return model.Event{}, &custom_errors.ValidationError{Reason: "missing repository object"}
	}

	repo, err := in.store.UpsertRepository(ctx, repositoryParams(repoObj))
	if err != nil {
		return model.Event{}, err
	}

	ev := model.Event{
		RepositoryID: repo.ID,
		EventType:    eventType,
		RawPayload:   payload,
		CreatedAt:    in.now(),
	}
	extract, ok := extractors[eventType]
	if !ok {
		extract = extractDefault
	}
	extract(d, &ev)

	stored, err := in.store.AppendEvent(ctx, ev)
	if err != nil {
		return model.Event{}, err
	}

	in.logger.Info("Event ingested",
		"event_id", stored.ID,
		"event_type", eventType,
		"repository_id", repo.ID,
		"repository", repo.FullName,
	)
	return stored, nil
}

func repositoryParams(repo doc) store.UpsertRepositoryParams {
	var name, fullName, ownerLogin, htmlURL string
	if s := repo.str("name"); s != nil {
		name = *s
	}
	if s := repo.str("full_name"); s != nil {
		fullName = *s
	}
	if s := repo.str("owner", "login"); s != nil {
		ownerLogin = *s
	}
	if s := repo.str("html_url"); s != nil {
		htmlURL = *s
	}
	return store.UpsertRepositoryParams{
		GithubID:       repo.int64Or(0, "id"),
		Name:           name,
		FullName:       fullName,
		OwnerLogin:     ownerLogin,
		OwnerAvatarURL: repo.str("owner", "avatar_url"),
		Private:        repo.boolean("private"),
		HTMLURL:        htmlURL,
		Description:    repo.str("description"),
	}
}

type extractor func(d doc, ev *model.Event)

// extractors dispatches per event type. Unknown types fall through to
// extractDefault, which keeps only the actor and the action.
var extractors = map[string]extractor{
	"push":                extractPush,
	"pull_request":        extractPullRequest,
	"issues":              extractIssues,
	"issue_comment":       extractIssueComment,
	"pull_request_review": extractPullRequestReview,
}

func extractPush(d doc, ev *model.Event) {
	ev.ActorLogin = firstStr(d.str("pusher", "name"), d.str("sender", "login"))
	ev.ActorAvatarURL = d.str("sender", "avatar_url")
	ev.Ref = d.str("ref")
	if ev.Ref != nil {
		branch := strings.TrimPrefix(*ev.Ref, "refs/heads/")
		ev.Branch = &branch
	}

	commits := d.list("commits")
	ev.CommitsCount = len(commits)
	for _, c := range commits {
		commit, ok := c.(map[string]any)
		if !ok {
			continue
		}
		ev.Additions += len(doc(commit).list("added"))
		ev.Deletions += len(doc(commit).list("removed"))
		ev.FilesChanged += len(doc(commit).list("modified"))
	}
}

func extractPullRequest(d doc, ev *model.Event) {
	ev.Action = d.str("action")
	ev.ActorLogin = d.str("sender", "login")
	ev.ActorAvatarURL = d.str("sender", "avatar_url")
	ev.Title = d.str("pull_request", "title")
	ev.Body = d.str("pull_request", "body")
	ev.Number = d.intp("pull_request", "number")
	ev.State = d.str("pull_request", "state")
	ev.Merged = d.boolean("pull_request", "merged")
	ev.Additions = d.intOr(0, "pull_request", "additions")
	ev.Deletions = d.intOr(0, "pull_request", "deletions")
	ev.FilesChanged = d.intOr(0, "pull_request", "changed_files")
}

func extractIssues(d doc, ev *model.Event) {
	ev.Action = d.str("action")
	ev.ActorLogin = d.str("sender", "login")
	ev.ActorAvatarURL = d.str("sender", "avatar_url")
	ev.Title = d.str("issue", "title")
	ev.Body = d.str("issue", "body")
	ev.Number = d.intp("issue", "number")
	ev.State = d.str("issue", "state")
}

func extractIssueComment(d doc, ev *model.Event) {
	ev.Action = d.str("action")
	ev.ActorLogin = d.str("sender", "login")
	ev.ActorAvatarURL = d.str("sender", "avatar_url")
	ev.Number = d.intp("issue", "number")
	title := "Comment on issue #" + numberLabel(ev.Number)
	ev.Title = &title
	ev.Body = d.str("comment", "body")
}

func extractPullRequestReview(d doc, ev *model.Event) {
	ev.Action = d.str("action")
	ev.ActorLogin = d.str("sender", "login")
	ev.ActorAvatarURL = d.str("sender", "avatar_url")
	ev.Number = d.intp("pull_request", "number")
	title := "Review on PR #" + numberLabel(ev.Number)
	ev.Title = &title
	ev.State = d.str("review", "state")
	ev.Body = d.str("review", "body")
}

func extractDefault(d doc, ev *model.Event) {
	ev.ActorLogin = d.str("sender", "login")
	ev.ActorAvatarURL = d.str("sender", "avatar_url")
	ev.Action = d.str("action")
}

func numberLabel(n *int) string {
	if n == nil {
		return ""
	}
	return fmt.Sprintf("%d", *n)
}

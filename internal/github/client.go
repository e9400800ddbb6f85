package github

import (
	"context"
	"log/slog"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
)

// Client is a wrapper around the go-github client.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
}

// NewClient creates and configures a new Client instance.
// The provided token is used to create an authenticated http.Client.
func NewClient(token string, logger *slog.Logger) *Client {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	return &Client{
		gh:     github.NewClient(tc),
		logger: logger,
	}
}

// GetRepository fetches the raw repository object. The caller embeds it into
// synthesized payloads, so no translation to an internal model happens here.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*github.Repository, error) {
	repo, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// ListRecentEvents fetches a repository's recent events, newest first.
// It handles API pagination transparently, up to maxPages pages.
func (c *Client) ListRecentEvents(ctx context.Context, owner, name string, maxPages int) ([]*github.Event, error) {
	var allEvents []*github.Event

	opts := &github.ListOptions{
		PerPage: 100, // Max per page
	}

	for page := 0; maxPages <= 0 || page < maxPages; page++ {
		c.logger.Debug("Fetching events page", "owner", owner, "repo", name, "page", opts.Page)

		events, resp, err := c.gh.Activity.ListRepositoryEvents(ctx, owner, name, opts)
		if err != nil {
			return nil, err
		}
		allEvents = append(allEvents, events...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allEvents, nil
}

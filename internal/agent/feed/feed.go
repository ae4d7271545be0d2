// Package feed reads feedback items from an RSS or Atom review feed. It is
// the lightweight agent for sources that publish their reviews as a feed.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"placewatch/internal/agent"
	"placewatch/internal/model"
)

const (
	userAgent = "placewatch/1.0"
	maxBody   = 5 * 1024 * 1024
	// PageSize is how many items are visible after Open and added per reveal.
	PageSize = 10
	// ratingPrefix marks an item category carrying the item's rating.
	ratingPrefix = "rating:"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Agent fetches a feed per Open and pages through it locally.
type Agent struct {
	client HTTPClient
}

// New creates an Agent with the given HTTP client.
func New(client HTTPClient) *Agent {
	return &Agent{client: client}
}

// NewFactory returns a factory sharing one HTTP client.
func NewFactory(client HTTPClient) agent.Factory {
	return func(context.Context) (agent.Agent, error) {
		return New(client), nil
	}
}

// Close implements agent.Agent; there is nothing to release.
func (a *Agent) Close() error { return nil }

// Open downloads and parses the feed at locator. A feed without items has no
// feedback surface.
func (a *Agent) Open(ctx context.Context, locator string) (agent.Handle, error) {
	f, err := a.fetch(ctx, locator)
	if err != nil {
		return nil, err
	}
	if len(f.Items) == 0 {
		return nil, agent.ErrNoFeedbackSurface
	}

	items := make([]model.RawItem, 0, len(f.Items))
	for _, it := range f.Items {
		items = append(items, toRaw(it))
	}
	return &handle{
		info: agent.PageInfo{
			DisplayName:    strings.TrimSpace(f.Title),
			Address:        strings.TrimSpace(f.Description),
			DisplayedTotal: len(items),
		},
		items:   items,
		visible: min(PageSize, len(items)),
	}, nil
}

func (a *Agent) fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	f, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return f, nil
}

func toRaw(it *gofeed.Item) model.RawItem {
	raw := model.RawItem{Text: plainText(it.Description)}
	if raw.Text == "" {
		raw.Text = plainText(it.Content)
	}
	if it.Author != nil {
		raw.Author = strings.TrimSpace(it.Author.Name)
		if raw.Author == "" {
			raw.Author = strings.TrimSpace(it.Author.Email)
		}
	}
	switch {
	case it.PublishedParsed != nil:
		raw.DateText = it.PublishedParsed.UTC().Format(time.DateOnly)
	case it.UpdatedParsed != nil:
		raw.DateText = it.UpdatedParsed.UTC().Format(time.DateOnly)
	default:
		raw.DateText = strings.TrimSpace(it.Published)
	}
	for _, c := range it.Categories {
		if v, ok := strings.CutPrefix(strings.ToLower(strings.TrimSpace(c)), ratingPrefix); ok {
			raw.Rating = agent.ParseRating(v)
			break
		}
	}
	return raw
}

// plainText strips markup from a feed description.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

type handle struct {
	info    agent.PageInfo
	items   []model.RawItem
	visible int
}

func (h *handle) Info() agent.PageInfo { return h.info }

func (h *handle) RevealMore(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return h.visible, err
	}
	h.visible = min(h.visible+PageSize, len(h.items))
	return h.visible, nil
}

func (h *handle) ExtractVisible(ctx context.Context) ([]model.RawItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]model.RawItem, h.visible)
	copy(out, h.items[:h.visible])
	return out, nil
}

func (h *handle) Close() error { return nil }

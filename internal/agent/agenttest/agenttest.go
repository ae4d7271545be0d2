// Package agenttest provides a scripted in-memory agent for tests.
package agenttest

import (
	"context"
	"fmt"
	"sync"

	"placewatch/internal/agent"
	"placewatch/internal/model"
)

// Page scripts what a locator shows.
type Page struct {
	Info agent.PageInfo
	// Items is the full feedback list, newest first.
	Items []model.RawItem
	// Initial is how many items are visible right after Open. Zero means Step.
	Initial int
	// Step is how many items each RevealMore adds. Zero means 10.
	Step int
	// Limit caps how many items can ever become visible. Zero means all.
	Limit int
	// OpenErr is returned by Open, e.g. agent.ErrNoFeedbackSurface.
	OpenErr error
	// RevealErr is returned by every RevealMore call.
	RevealErr error
	// ExtractErr is returned by ExtractVisible.
	ExtractErr error
}

// Agent serves scripted pages. Unknown locators fail with an error.
type Agent struct {
	mu     sync.Mutex
	pages  map[string]*Page
	onOpen func(locator string)

	Opened   []string
	Reveals  int
	Extracts int
	Closed   bool
}

// New returns an agent serving pages.
func New(pages map[string]*Page) *Agent {
	return &Agent{pages: pages}
}

// OnOpen registers a hook run at the start of every Open, useful to advance
// a fake clock or cancel a context mid-visit.
func (a *Agent) OnOpen(fn func(locator string)) {
	a.onOpen = fn
}

// Open implements agent.Agent.
func (a *Agent) Open(_ context.Context, locator string) (agent.Handle, error) {
	if a.onOpen != nil {
		a.onOpen(locator)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.Opened = append(a.Opened, locator)
	if a.Closed {
		return nil, fmt.Errorf("agenttest: agent closed")
	}
	p, ok := a.pages[locator]
	if !ok {
		return nil, fmt.Errorf("agenttest: no page for %s", locator)
	}
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}

	step := p.Step
	if step <= 0 {
		step = 10
	}
	limit := len(p.Items)
	if p.Limit > 0 && p.Limit < limit {
		limit = p.Limit
	}
	initial := p.Initial
	if initial <= 0 {
		initial = step
	}
	return &handle{agent: a, page: p, step: step, limit: limit, visible: min(initial, limit)}, nil
}

// Close implements agent.Agent.
func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Closed = true
	return nil
}

type handle struct {
	agent   *Agent
	page    *Page
	step    int
	limit   int
	visible int
}

func (h *handle) Info() agent.PageInfo { return h.page.Info }

func (h *handle) RevealMore(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return h.visible, err
	}
	h.agent.mu.Lock()
	h.agent.Reveals++
	h.agent.mu.Unlock()
	if h.page.RevealErr != nil {
		return h.visible, h.page.RevealErr
	}
	h.visible = min(h.visible+h.step, h.limit)
	return h.visible, nil
}

func (h *handle) ExtractVisible(ctx context.Context) ([]model.RawItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.agent.mu.Lock()
	h.agent.Extracts++
	h.agent.mu.Unlock()
	if h.page.ExtractErr != nil {
		return nil, h.page.ExtractErr
	}
	out := make([]model.RawItem, h.visible)
	copy(out, h.page.Items[:h.visible])
	return out, nil
}

func (h *handle) Close() error { return nil }

// Factory hands out agents over the same pages and records every creation.
type Factory struct {
	mu     sync.Mutex
	pages  map[string]*Page
	onOpen func(string)

	// Err, when set, fails every creation from the Nth onwards (FailFrom, 1-based).
	Err      error
	FailFrom int

	Agents []*Agent
}

// NewFactory returns a factory over pages.
func NewFactory(pages map[string]*Page) *Factory {
	return &Factory{pages: pages}
}

// OnOpen sets the hook installed on every agent created afterwards.
func (f *Factory) OnOpen(fn func(string)) {
	f.onOpen = fn
}

// New is an agent.Factory.
func (f *Factory) New(_ context.Context) (agent.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil && len(f.Agents)+1 >= max(f.FailFrom, 1) {
		return nil, f.Err
	}
	a := New(f.pages)
	a.onOpen = f.onOpen
	f.Agents = append(f.Agents, a)
	return a, nil
}

// Created returns how many agents were created.
func (f *Factory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Agents)
}

// Items builds n distinct items named prefix1..prefixN, newest first.
func Items(prefix string, n int) []model.RawItem {
	items := make([]model.RawItem, n)
	for i := range items {
		items[i] = model.RawItem{
			Author:   fmt.Sprintf("%s-author-%d", prefix, i+1),
			Text:     fmt.Sprintf("%s%d review text", prefix, i+1),
			DateText: "hace 1 día",
		}
	}
	return items
}

// Package browser drives a headless Chrome through go-rod to read the
// feedback panel of a place page.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"placewatch/internal/agent"
	"placewatch/internal/model"
)

// Config configures the browser agent.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string
	Headless  bool

	// Language is forced through the hl query parameter so that labels
	// match Selectors. Empty leaves the locator untouched.
	Language string

	Selectors Selectors

	// NavigationTimeout bounds page load. Default: 30s.
	NavigationTimeout time.Duration
	// TabAttempts is how often the feedback tab is looked for. Default: 3.
	TabAttempts int
	// Settle is the pause after clicks that trigger rendering. Default: 2s.
	Settle time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.TabAttempts <= 0 {
		c.TabAttempts = 3
	}
	if c.Settle <= 0 {
		c.Settle = 2 * time.Second
	}
	if c.Selectors.Item == "" {
		c.Selectors = DefaultSelectors()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Agent is an agent.Agent backed by one Chrome process.
type Agent struct {
	cfg     Config
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewFactory returns a factory that launches (or connects to) a fresh Chrome
// on every call.
func NewFactory(cfg Config) agent.Factory {
	return func(ctx context.Context) (agent.Agent, error) {
		return Launch(ctx, cfg)
	}
}

// Launch starts Chrome, or connects to cfg.RemoteURL when set.
func Launch(ctx context.Context, cfg Config) (*Agent, error) {
	cfg.defaults()
	log := cfg.Logger

	a := &Agent{cfg: cfg}
	wsURL := cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Context(ctx).Headless(cfg.Headless)
		// Anti-detection flags.
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		a.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "headless", cfg.Headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		a.cleanupLauncher()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	a.browser = b
	return a, nil
}

// Close shuts Chrome down.
func (a *Agent) Close() error {
	var err error
	if a.browser != nil {
		err = a.browser.Close()
		a.browser = nil
	}
	a.cleanupLauncher()
	return err
}

func (a *Agent) cleanupLauncher() {
	if a.lnch != nil {
		a.lnch.Cleanup()
		a.lnch = nil
	}
}

// Open navigates a stealth tab to locator, reads the place header, enters
// the feedback tab and asks for newest-first ordering.
func (a *Agent) Open(ctx context.Context, locator string) (agent.Handle, error) {
	if a.browser == nil {
		return nil, fmt.Errorf("browser: agent closed")
	}
	log := a.cfg.Logger.With("locator", locator)

	page, err := stealth.Page(a.browser)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	h := &handle{page: page, cfg: &a.cfg}

	navCtx, cancel := context.WithTimeout(ctx, a.cfg.NavigationTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(withLanguage(locator, a.cfg.Language)); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("browser: navigate: %w", err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn("browser: wait load timeout", "error", err)
	}
	if err := sleep(ctx, a.cfg.Settle); err != nil {
		_ = h.Close()
		return nil, err
	}

	html, err := page.Context(ctx).HTML()
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("browser: read page: %w", err)
	}
	h.info, err = ParseInfo(html, a.cfg.Selectors)
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	ok, err := h.enterFeedbackTab(ctx)
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	if !ok {
		_ = h.Close()
		return nil, agent.ErrNoFeedbackSurface
	}

	if err := h.sortNewest(ctx); err != nil {
		log.Debug("browser: sort by newest failed", "error", err)
	}
	return h, nil
}

type handle struct {
	page *rod.Page
	cfg  *Config
	info agent.PageInfo
}

func (h *handle) Info() agent.PageInfo { return h.info }

const clickTabJS = `(keywords) => {
	const tabs = Array.from(document.querySelectorAll('button[role="tab"]'));
	const tab = tabs.find(b => {
		const label = ((b.getAttribute('aria-label') || '') + ' ' + (b.textContent || '')).toLowerCase();
		return keywords.some(k => label.includes(k));
	});
	if (!tab) return 'missing';
	tab.click();
	return 'clicked';
}`

const tabOpenedJS = `(keywords, rating) => {
	const tab = Array.from(document.querySelectorAll('button[role="tab"][aria-selected="true"]')).find(b => {
		const label = ((b.getAttribute('aria-label') || '') + ' ' + (b.textContent || '')).toLowerCase();
		return keywords.some(k => label.includes(k));
	});
	if (tab) return true;
	if (document.querySelector('button[aria-label*="Ordenar"], button[aria-label*="Sort"], button[aria-label*="Escribir"], button[aria-label*="Write"]')) return true;
	return document.querySelector(rating) !== null;
}`

// enterFeedbackTab clicks the feedback tab, giving the page a few chances to
// render it. It returns false when no attempt finds a working tab.
func (h *handle) enterFeedbackTab(ctx context.Context) (bool, error) {
	sel := h.cfg.Selectors
	for attempt := 1; attempt <= h.cfg.TabAttempts; attempt++ {
		res, err := h.page.Context(ctx).Eval(clickTabJS, sel.TabKeywords)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			h.cfg.Logger.Debug("browser: tab lookup failed", "attempt", attempt, "error", err)
		} else if res.Value.Str() == "clicked" {
			if err := sleep(ctx, h.cfg.Settle); err != nil {
				return false, err
			}
			opened, err := h.page.Context(ctx).Eval(tabOpenedJS, sel.TabKeywords, sel.Rating)
			if err == nil && opened.Value.Bool() {
				return true, nil
			}
		}
		if err := sleep(ctx, h.cfg.Settle*3/4); err != nil {
			return false, err
		}
	}
	return false, nil
}

const sortJS = `(keywords) => {
	const btn = Array.from(document.querySelectorAll('button[aria-label]')).find(b =>
		keywords.some(k => b.getAttribute('aria-label').toLowerCase().includes(k)));
	if (!btn) return false;
	btn.click();
	return true;
}`

const pickNewestJS = `(options) => {
	const items = Array.from(document.querySelectorAll('div[role="menuitemradio"]'));
	const item = items.find(o => options.some(k => (o.textContent || '').toLowerCase().includes(k))) || items[1];
	if (!item) return false;
	item.click();
	return true;
}`

// sortNewest is best effort: pages without a sort control are already usable.
func (h *handle) sortNewest(ctx context.Context) error {
	sel := h.cfg.Selectors
	res, err := h.page.Context(ctx).Eval(sortJS, sel.SortKeywords)
	if err != nil {
		return fmt.Errorf("open sort menu: %w", err)
	}
	if !res.Value.Bool() {
		return nil
	}
	if err := sleep(ctx, h.cfg.Settle/2); err != nil {
		return err
	}
	res, err = h.page.Context(ctx).Eval(pickNewestJS, sel.NewestOptions)
	if err != nil {
		return fmt.Errorf("pick newest: %w", err)
	}
	if res.Value.Bool() {
		return sleep(ctx, h.cfg.Settle)
	}
	return nil
}

const scrollJS = `(pane, item) => {
	const el = document.querySelector(pane);
	if (el) el.scrollTop = el.scrollHeight;
	return document.querySelectorAll(item).length;
}`

func (h *handle) RevealMore(ctx context.Context) (int, error) {
	sel := h.cfg.Selectors
	res, err := h.page.Context(ctx).Eval(scrollJS, sel.ScrollPane, sel.Item)
	if err != nil {
		return 0, fmt.Errorf("browser: scroll: %w", err)
	}
	return res.Value.Int(), nil
}

const expandJS = `(label) => {
	const buttons = document.querySelectorAll('button[aria-label*="' + label + '"]');
	buttons.forEach(b => { try { b.click(); } catch (e) {} });
	return buttons.length;
}`

func (h *handle) ExtractVisible(ctx context.Context) ([]model.RawItem, error) {
	sel := h.cfg.Selectors
	if sel.ExpandLabel != "" {
		res, err := h.page.Context(ctx).Eval(expandJS, sel.ExpandLabel)
		if err == nil && res.Value.Int() > 0 {
			if err := sleep(ctx, h.cfg.Settle/2); err != nil {
				return nil, err
			}
		}
	}
	html, err := h.page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("browser: read page: %w", err)
	}
	return ParseItems(html, sel)
}

func (h *handle) Close() error {
	if h.page == nil {
		return nil
	}
	err := h.page.Close()
	h.page = nil
	return err
}

func withLanguage(locator, lang string) string {
	if lang == "" {
		return locator
	}
	u, err := url.Parse(locator)
	if err != nil {
		return locator
	}
	q := u.Query()
	q.Set("hl", lang)
	u.RawQuery = q.Encode()
	return u.String()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

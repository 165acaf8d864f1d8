package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/nexconsult/precatorios/internal/config"
	"github.com/nexconsult/precatorios/internal/models"
	"github.com/nexconsult/precatorios/internal/pipeline"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const rowsWaitTimeout = 10 * time.Second

var (
	overlayHiddenJS = fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		return !el || el.offsetParent === null || getComputedStyle(el).display === 'none';
	})()`, selectorOverlay)

	rowsPresentJS = fmt.Sprintf(`document.querySelectorAll(%q).length > 0`, selectorRows)

	expandRowsJS = fmt.Sprintf(`(() => {
		const toggles = document.querySelectorAll(%q);
		toggles.forEach(td => td.click());
		return toggles.length;
	})()`, selectorRows+" "+selectorToggle)

	pageInputJS = func() string {
		selectors, _ := json.Marshal(pageInputSelectors)
		return fmt.Sprintf(`(() => {
			for (const s of %s) {
				const el = document.querySelector(s);
				if (el && el.offsetParent !== null) return s;
			}
			return "";
		})()`, selectors)
	}()
)

// ChromeRenderer renders the chronological order listing of one partition
// in a dedicated browser. It is not safe for concurrent use.
type ChromeRenderer struct {
	session   *browserSession
	release   func()
	partition models.Partition
	url       string
	settle    time.Duration
	limiter   *rate.Limiter
	extractor *ExtractorService
	logger    *logrus.Entry

	loaded  bool
	current int
	last    *pipeline.RenderResult
	lastSet models.FieldSet

	serverErrors atomic.Int64
	failedLoads  atomic.Int64
}

func newChromeRenderer(session *browserSession, release func(), partition models.Partition, portal config.PortalConfig, browser config.BrowserConfig, extractor *ExtractorService, logger *logrus.Logger) *ChromeRenderer {
	limit := rate.Inf
	if browser.MinPageInterval > 0 {
		limit = rate.Every(browser.MinPageInterval)
	}

	r := &ChromeRenderer{
		session:   session,
		release:   release,
		partition: partition,
		url:       fmt.Sprintf("%s#!/ordem-cronologica?idEntidadeDevedora=%d", portal.BaseURL, partition.ID),
		settle:    browser.SettleDelay,
		limiter:   rate.NewLimiter(limit, 1),
		extractor: extractor,
		logger: logger.WithFields(logrus.Fields{
			"browser_id":   session.id,
			"partition_id": partition.ID,
		}),
	}

	chromedp.ListenTarget(session.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if e.Response != nil && e.Response.Status >= 500 {
				r.serverErrors.Add(1)
			}
		case *network.EventLoadingFailed:
			if !e.Canceled {
				r.failedLoads.Add(1)
			}
		}
	})

	return r
}

// navMove is how the renderer reaches the requested page once the listing is
// loaded
type navMove int

const (
	moveNone navMove = iota
	moveStep
	moveJump
)

// navPlan is what Render has to do for a request
type navPlan struct {
	// cached serves the last result without touching the browser
	cached bool
	// reload opens the listing at page 1 first
	reload bool
	move   navMove
}

// planNavigation decides how to serve req given what the renderer knows
// about the screen: whether the listing is loaded, which page it shows (0
// when unknown after a failure) and whether the last result matches req's
// field set.
func planNavigation(loaded bool, current int, haveLast bool, req pipeline.RenderRequest) navPlan {
	if loaded && current == req.Page && haveLast {
		return navPlan{cached: true}
	}

	plan := navPlan{
		reload: !loaded ||
			(req.FirstInRange && req.Navigation == pipeline.NavigateStep) ||
			(current == 0 && req.Page == 1),
	}
	if plan.reload {
		current = 1
	}

	switch {
	case current == req.Page:
		plan.move = moveNone
	case current > 0 && req.Navigation == pipeline.NavigateStep && req.Page == current+1:
		plan.move = moveStep
	default:
		plan.move = moveJump
	}
	return plan
}

// Render brings the listing to req.Page and returns its rows. A request for
// the page already on screen is served without navigating.
func (r *ChromeRenderer) Render(ctx context.Context, req pipeline.RenderRequest) (*pipeline.RenderResult, error) {
	plan := planNavigation(r.loaded, r.current, r.last != nil && r.lastSet == req.FieldSet, req)
	if plan.cached {
		return r.last, nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, r.renderError(ctx, req, pipeline.RenderTimeout, err)
	}

	if plan.reload {
		if err := r.load(ctx); err != nil {
			r.loaded = false
			return nil, r.renderError(ctx, req, pipeline.RenderNavigation, err)
		}
	}

	var err error
	kind := pipeline.RenderNavigation
	switch plan.move {
	case moveStep:
		err = r.step(ctx)
	case moveJump:
		kind = pipeline.RenderJump
		err = r.jump(ctx, req.Page)
	}
	if err != nil {
		r.forget()
		return nil, r.renderError(ctx, req, kind, err)
	}

	result, err := r.read(ctx, req)
	if err != nil {
		r.forget()
		return nil, err
	}

	r.current = req.Page
	r.last = result
	r.lastSet = req.FieldSet
	return result, nil
}

// Close releases the browser
func (r *ChromeRenderer) Close() error {
	r.release()
	r.logger.WithFields(logrus.Fields{
		"server_errors": r.serverErrors.Load(),
		"failed_loads":  r.failedLoads.Load(),
	}).Debug("Renderer closed")
	return nil
}

// load opens the partition listing at page 1
func (r *ChromeRenderer) load(ctx context.Context) error {
	r.forget()
	r.logger.WithField("url", r.url).Debug("Loading partition listing")

	if err := r.run(ctx, network.Enable(), chromedp.Navigate(r.url)); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := r.waitRows(ctx); err != nil {
		return err
	}

	r.loaded = true
	r.current = 1
	return nil
}

// step clicks the pager's next control
func (r *ChromeRenderer) step(ctx context.Context) error {
	if err := r.waitOverlay(ctx); err != nil {
		return err
	}
	if err := r.run(ctx, chromedp.Click(selectorNextButton, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click next: %w", err)
	}
	return r.waitRows(ctx)
}

// jump types page into the pager input and submits it
func (r *ChromeRenderer) jump(ctx context.Context, page int) error {
	if err := r.waitOverlay(ctx); err != nil {
		return err
	}

	var selector string
	if err := r.run(ctx, chromedp.Evaluate(pageInputJS, &selector)); err != nil {
		return fmt.Errorf("find page input: %w", err)
	}
	if selector == "" {
		return errors.New("page input not found")
	}

	err := r.run(ctx,
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, strconv.Itoa(page)+kb.Enter, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("submit page %d: %w", page, err)
	}
	return r.waitRows(ctx)
}

// read parses the page on screen and checks that it is the requested one
func (r *ChromeRenderer) read(ctx context.Context, req pipeline.RenderRequest) (*pipeline.RenderResult, error) {
	if req.FieldSet == models.FieldSetFull {
		var expanded int
		if err := r.run(ctx, chromedp.Evaluate(expandRowsJS, &expanded), chromedp.Sleep(r.settle)); err != nil {
			return nil, r.renderError(ctx, req, pipeline.RenderNavigation, fmt.Errorf("expand rows: %w", err))
		}
	}

	var selector, shown, html string
	err := r.run(ctx,
		chromedp.Evaluate(pageInputJS, &selector),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err == nil && selector != "" {
		err = r.run(ctx, chromedp.Value(selector, &shown, chromedp.ByQuery))
	}
	if err != nil {
		return nil, r.renderError(ctx, req, pipeline.RenderNavigation, fmt.Errorf("read page: %w", err))
	}

	page, convErr := strconv.Atoi(strings.TrimSpace(shown))
	if convErr != nil {
		page = r.extractor.CurrentPage(html)
	}
	if page > 0 && page != req.Page {
		return nil, &pipeline.RenderError{
			Kind:      pipeline.RenderJump,
			Retryable: true,
			Page:      req.Page,
			Err:       fmt.Errorf("pager shows page %d", page),
		}
	}

	result, err := r.extractor.ParseListing(html)
	if err != nil {
		return nil, &pipeline.RenderError{Kind: pipeline.RenderParse, Retryable: true, Page: req.Page, Err: err}
	}
	if len(result.Rows) == 0 && result.HasNext {
		return nil, &pipeline.RenderError{
			Kind:      pipeline.RenderNavigation,
			Retryable: true,
			Page:      req.Page,
			Err:       errors.New("table is empty but more pages are announced"),
		}
	}
	return result, nil
}

// waitRows waits for the loading overlay to go away and the rows to appear.
// Listings without rows are accepted once the rows wait times out.
func (r *ChromeRenderer) waitRows(ctx context.Context) error {
	if err := r.waitOverlay(ctx); err != nil {
		return err
	}

	var present bool
	err := r.run(ctx, chromedp.Poll(rowsPresentJS, &present,
		chromedp.WithPollingInterval(200*time.Millisecond),
		chromedp.WithPollingTimeout(rowsWaitTimeout),
	))
	if err != nil && !errors.Is(err, chromedp.ErrPollingTimeout) {
		return fmt.Errorf("wait for rows: %w", err)
	}
	return r.run(ctx, chromedp.Sleep(r.settle))
}

func (r *ChromeRenderer) waitOverlay(ctx context.Context) error {
	var hidden bool
	err := r.run(ctx, chromedp.Poll(overlayHiddenJS, &hidden, chromedp.WithPollingInterval(100*time.Millisecond)))
	if err != nil {
		return fmt.Errorf("wait for overlay: %w", err)
	}
	return nil
}

// run executes actions on the browser tab, bounded by ctx. Cancelling ctx
// aborts the actions without closing the tab.
func (r *ChromeRenderer) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(r.session.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// forget drops what the renderer knows about the page on screen
func (r *ChromeRenderer) forget() {
	r.current = 0
	r.last = nil
}

func (r *ChromeRenderer) renderError(ctx context.Context, req pipeline.RenderRequest, kind pipeline.RenderErrorKind, err error) error {
	var renderErr *pipeline.RenderError
	if errors.As(err, &renderErr) {
		return err
	}

	retryable := true
	switch {
	case r.session.ctx.Err() != nil:
		kind, retryable = pipeline.RenderSession, false
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		kind = pipeline.RenderTimeout
	case kind == pipeline.RenderJump && strings.Contains(err.Error(), "page input not found"):
		retryable = false
	}

	if n := r.serverErrors.Load(); n > 0 {
		err = fmt.Errorf("%w (portal answered %d server errors)", err, n)
	}
	return &pipeline.RenderError{Kind: kind, Retryable: retryable, Page: req.Page, Err: err}
}

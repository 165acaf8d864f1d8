package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/nexconsult/precatorios/internal/config"
	"github.com/nexconsult/precatorios/internal/models"
	"github.com/nexconsult/precatorios/internal/pipeline"
	"github.com/sirupsen/logrus"
)

// ErrBrowserServiceClosed is returned once the service has been closed
var ErrBrowserServiceClosed = errors.New("browser service is closed")

// BrowserService launches one isolated Chrome instance per renderer and caps
// how many are alive at once
type BrowserService struct {
	config    config.BrowserConfig
	portal    config.PortalConfig
	extractor *ExtractorService
	logger    *logrus.Logger

	slots  chan struct{}
	mu     sync.RWMutex
	closed bool

	launched atomic.Int64
	failed   atomic.Int64
	active   atomic.Int64
}

// browserSession is a chromedp tab on its own browser process
type browserSession struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBrowserService creates a new browser service
func NewBrowserService(cfg config.BrowserConfig, portal config.PortalConfig, extractor *ExtractorService, logger *logrus.Logger) *BrowserService {
	maxBrowsers := cfg.MaxBrowsers
	if maxBrowsers < 1 {
		maxBrowsers = 1
	}

	logger.WithFields(logrus.Fields{
		"max_browsers": maxBrowsers,
		"headless":     cfg.Headless,
	}).Info("Browser service initialized")

	return &BrowserService{
		config:    cfg,
		portal:    portal,
		extractor: extractor,
		logger:    logger,
		slots:     make(chan struct{}, maxBrowsers),
	}
}

// NewRenderer launches a browser for partition. It waits for a free slot
// when the browser cap is reached.
func (s *BrowserService) NewRenderer(ctx context.Context, partition models.Partition) (pipeline.PageRenderer, error) {
	session, release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return newChromeRenderer(session, release, partition, s.portal, s.config, s.extractor, s.logger), nil
}

// acquire reserves a slot and starts a browser in it. release must be
// called exactly once when the session is no longer used.
func (s *BrowserService) acquire(ctx context.Context) (*browserSession, func(), error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, nil, ErrBrowserServiceClosed
	}
	s.mu.RUnlock()

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("waiting for a browser slot: %w", ctx.Err())
	}

	session, err := s.createBrowser(ctx)
	if err != nil {
		<-s.slots
		s.failed.Add(1)
		return nil, nil, err
	}

	s.launched.Add(1)
	s.active.Add(1)

	var once sync.Once
	release := func() {
		once.Do(func() {
			session.cancel()
			s.active.Add(-1)
			<-s.slots
			s.logger.WithField("browser_id", session.id).Debug("Browser released")
		})
	}
	return session, release, nil
}

// createBrowser starts a Chrome process and checks that it can navigate
func (s *BrowserService) createBrowser(ctx context.Context) (*browserSession, error) {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-features", "TranslateUI"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(s.config.UserAgent),
	}
	if s.config.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if s.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.config.ExecPath))
	}

	// The browser outlives the acquiring request, so it hangs off Background
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	session := &browserSession{
		id:     fmt.Sprintf("browser-%d", time.Now().UnixNano()),
		ctx:    tabCtx,
		cancel: func() { tabCancel(); allocCancel() },
	}

	// An empty Run allocates the browser on tabCtx itself; allocating on a
	// timeout child would tie the browser's lifetime to that timeout.
	if err := chromedp.Run(tabCtx); err != nil {
		session.cancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	timeout := s.config.StartupTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	testCtx, testCancel := context.WithTimeout(tabCtx, timeout)
	defer testCancel()
	stop := context.AfterFunc(ctx, testCancel)
	defer stop()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		session.cancel()
		return nil, fmt.Errorf("browser health check failed: %w", err)
	}

	s.logger.WithField("browser_id", session.id).Debug("Browser created successfully")
	return session, nil
}

// GetStats returns browser statistics
func (s *BrowserService) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"active_browsers": s.active.Load(),
		"max_browsers":    cap(s.slots),
		"launched":        s.launched.Load(),
		"launch_failures": s.failed.Load(),
	}
}

// Health returns browser service health status
func (s *BrowserService) Health() map[string]interface{} {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()

	status := "healthy"
	switch {
	case closed:
		status = "unhealthy"
	case s.launched.Load() == 0 && s.failed.Load() > 0:
		status = "unhealthy"
	case s.failed.Load() > 0:
		status = "degraded"
	}

	return map[string]interface{}{
		"status": status,
		"stats":  s.GetStats(),
	}
}

// Close stops handing out browsers. Live renderers still close their own.
func (s *BrowserService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.logger.WithField("active_browsers", s.active.Load()).Info("Browser service closed")
	return nil
}

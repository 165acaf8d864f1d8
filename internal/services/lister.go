package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/nexconsult/precatorios/internal/models"
	"github.com/nexconsult/precatorios/internal/pipeline"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const regimeReadyJS = `document.body && document.body.innerText.includes("Precatórios Pagos")`

// PortalLister reads the debtor entities from the portal's regime pages
type PortalLister struct {
	browser *BrowserService
	timeout time.Duration
	logger  *logrus.Logger
}

// NewPortalLister creates a lister that drives a browser from browser
func NewPortalLister(browser *BrowserService, timeout time.Duration, logger *logrus.Logger) *PortalLister {
	return &PortalLister{
		browser: browser,
		timeout: timeout,
		logger:  logger,
	}
}

// ListPartitions opens the regime page and parses its entity cards
func (l *PortalLister) ListPartitions(ctx context.Context, regime models.Regime) ([]models.Partition, error) {
	session, release, err := l.browser.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire browser for listing: %w", err)
	}
	defer release()

	url := fmt.Sprintf("%s/#!/entes-devedores/regime-%s", l.browser.portal.BaseURL, regime)
	log := l.logger.WithFields(logrus.Fields{"regime": regime, "url": url})
	log.Info("Listing debtor entities")

	runCtx, cancel := context.WithTimeout(session.ctx, l.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var ready bool
	var html string
	err = chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.Poll(regimeReadyJS, &ready, chromedp.WithPollingInterval(250*time.Millisecond)),
		chromedp.Poll(overlayHiddenJS, &ready, chromedp.WithPollingInterval(100*time.Millisecond)),
		chromedp.Sleep(l.browser.config.SettleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("load regime page: %w", err)
	}

	partitions, err := l.browser.extractor.ParseEntityCards(html, regime)
	if err != nil {
		return nil, fmt.Errorf("parse regime page: %w", err)
	}
	return partitions, nil
}

// partitionFile is the layout of a partitions YAML file
type partitionFile struct {
	Geral    []models.Partition `yaml:"geral"`
	Especial []models.Partition `yaml:"especial"`
}

// FileLister reads partitions from a YAML file, for runs that must not
// depend on the regime pages
type FileLister struct {
	path   string
	logger *logrus.Logger
}

// NewFileLister creates a lister backed by the YAML file at path
func NewFileLister(path string, logger *logrus.Logger) *FileLister {
	return &FileLister{path: path, logger: logger}
}

// ListPartitions returns the partitions listed under regime
func (l *FileLister) ListPartitions(ctx context.Context, regime models.Regime) ([]models.Partition, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read partitions file: %w", err)
	}

	var file partitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse partitions file %s: %w", l.path, err)
	}

	var listed []models.Partition
	switch regime {
	case models.RegimeGeral:
		listed = file.Geral
	case models.RegimeEspecial:
		listed = file.Especial
	default:
		return nil, fmt.Errorf("unknown regime %q", regime)
	}

	partitions := make([]models.Partition, 0, len(listed))
	for _, p := range listed {
		if p.ID <= 0 {
			return nil, fmt.Errorf("partitions file %s: entity without a positive id under %s", l.path, regime)
		}
		p.Regime = regime
		if p.Name == "" {
			p.Name = fmt.Sprintf("Entidade %d", p.ID)
		}
		partitions = append(partitions, p)
	}

	l.logger.WithFields(logrus.Fields{
		"file":     l.path,
		"regime":   regime,
		"entities": len(partitions),
	}).Info("Partitions loaded from file")

	return partitions, nil
}

// CachedLister memoizes another lister's result per regime
type CachedLister struct {
	next   pipeline.PartitionLister
	cache  CacheServiceInterface
	prefix string
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachedLister wraps next with cache
func NewCachedLister(next pipeline.PartitionLister, cache CacheServiceInterface, prefix string, ttl time.Duration, logger *logrus.Logger) *CachedLister {
	return &CachedLister{
		next:   next,
		cache:  cache,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (l *CachedLister) key(regime models.Regime) string {
	return fmt.Sprintf("%s:partitions:%s", l.prefix, regime)
}

// ListPartitions serves regime from the cache, listing and storing it on a miss
func (l *CachedLister) ListPartitions(ctx context.Context, regime models.Regime) ([]models.Partition, error) {
	key := l.key(regime)

	cached, err := l.cache.Get(ctx, key)
	if err == nil {
		var partitions []models.Partition
		if err := json.Unmarshal([]byte(cached), &partitions); err == nil {
			l.logger.WithFields(logrus.Fields{"regime": regime, "entities": len(partitions)}).Debug("Partitions served from cache")
			return partitions, nil
		}
		l.logger.WithField("key", key).Warn("Discarding unreadable cached partitions")
	} else if !errors.Is(err, ErrCacheMiss) {
		l.logger.WithError(err).WithField("key", key).Warn("Partition cache lookup failed")
	}

	partitions, err := l.next.ListPartitions(ctx, regime)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(partitions)
	if err != nil {
		return partitions, nil
	}
	if err := l.cache.SetWithTTL(ctx, key, string(data), l.ttl); err != nil {
		l.logger.WithError(err).WithField("key", key).Warn("Failed to cache partitions")
	}
	return partitions, nil
}

// Invalidate drops the cached listing of regime
func (l *CachedLister) Invalidate(ctx context.Context, regime models.Regime) error {
	return l.cache.Delete(ctx, l.key(regime))
}

// Package overlay is the content-script half of the companion: it waits for
// a product page anchor, mounts the verdict badge once and drives analysis
// through the background router.
package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xaenox/reviewai/internal/amazon"
	"github.com/xaenox/reviewai/internal/extension"
	"github.com/xaenox/reviewai/internal/models"
	"github.com/xaenox/reviewai/internal/verdictcache"
)

type State string

const (
	StateIdle    State = "idle"
	StateMounted State = "mounted"
	StateLoading State = "loading"
	StateResult  State = "result"
	StateError   State = "error"
)

// Sender delivers a request to the background context.
type Sender interface {
	SendMessage(ctx context.Context, req extension.Request) (json.RawMessage, error)
}

// Snapshot is the controller's observable state.
type Snapshot struct {
	State         State
	Verdict       *models.Verdict
	LastUpdatedAt string
	Error         string
}

// Controller owns one page's overlay.
type Controller struct {
	doc     *Document
	sender  Sender
	cache   *verdictcache.Cache
	timeout time.Duration
	logger  *zap.Logger

	mu        sync.Mutex
	state     State
	verdict   *models.Verdict
	updatedAt string
	errMsg    string
	container *html.Node

	wg sync.WaitGroup
}

func NewController(doc *Document, sender Sender, cache *verdictcache.Cache, logger *zap.Logger) *Controller {
	return &Controller{
		doc:     doc,
		sender:  sender,
		cache:   cache,
		timeout: AcquireTimeout,
		logger:  logger,
		state:   StateIdle,
	}
}

// Start waits for an anchor, mounts the container and hydrates the verdict
// from the cache when a fresh entry exists.
func (c *Controller) Start(ctx context.Context) error {
	anchor, err := WaitForAnchor(ctx, c.doc, c.timeout)
	if err != nil {
		c.logger.Warn("No overlay anchor on page", zap.String("url", c.doc.URL()), zap.Error(err))
		return err
	}

	container, created := Mount(c.doc, anchor)
	if !created {
		c.logger.Debug("Overlay already mounted", zap.String("url", c.doc.URL()))
	}

	c.mu.Lock()
	c.container = container
	if c.state == StateIdle {
		c.state = StateMounted
	}
	c.mu.Unlock()

	if asin, ok := amazon.ExtractASIN(c.doc.URL()); ok {
		if entry, hit := c.cache.Get(ctx, asin); hit {
			c.mu.Lock()
			if c.state == StateMounted {
				v := entry.Verdict
				c.verdict = &v
				c.updatedAt = entry.TimeString
				c.state = StateResult
			}
			c.mu.Unlock()
		}
	}

	c.render()
	return nil
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{State: c.state, LastUpdatedAt: c.updatedAt, Error: c.errMsg}
	if c.verdict != nil {
		v := *c.verdict
		s.Verdict = &v
	}
	return s
}

// Trigger runs one analysis of the current page. Every call issues a new
// request.
func (c *Controller) Trigger(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateLoading
	c.errMsg = ""
	c.mu.Unlock()
	c.render()

	verdict, err := c.analyze(ctx)
	if err != nil {
		c.logger.Warn("Analysis failed", zap.String("url", c.doc.URL()), zap.Error(err))
		c.mu.Lock()
		c.state = StateError
		c.errMsg = err.Error()
		c.mu.Unlock()
		c.render()
		return err
	}

	var stamp string
	entry, err := c.cache.Put(ctx, *verdict)
	if err != nil {
		c.logger.Warn("Failed to cache verdict", zap.String("asin", verdict.ASIN), zap.Error(err))
		stamp = time.Now().Format("Jan 2, 3:04 PM")
	} else {
		stamp = entry.TimeString
	}

	c.mu.Lock()
	c.state = StateResult
	c.verdict = verdict
	c.updatedAt = stamp
	c.mu.Unlock()
	c.render()
	return nil
}

func (c *Controller) analyze(ctx context.Context) (*models.Verdict, error) {
	input := c.doc.Extract()
	resp, err := c.sender.SendMessage(ctx, extension.AnalyzeProduct{URL: c.doc.URL(), Scraped: &input})
	if err != nil {
		return nil, err
	}

	var failure extension.ErrorResponse
	if json.Unmarshal(resp, &failure) == nil && failure.Error != "" {
		return nil, errors.New(failure.Error)
	}

	var body models.AnalyzeResponse
	if err := json.Unmarshal(resp, &body); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	v := body.VerdictFrom()
	if asin, ok := amazon.ExtractASIN(c.doc.URL()); ok {
		v.ASIN = asin
	}
	if v.ASIN == "" {
		return nil, amazon.ErrUnsupportedURL
	}
	return &v, nil
}

// HandleMessage answers trigger_analysis with {ok:true} and runs the trigger
// in the background. Other messages are not addressed to the page.
func (c *Controller) HandleMessage(ctx context.Context, raw []byte) (json.RawMessage, bool) {
	req, err := extension.DecodeRequest(raw)
	if err != nil {
		return nil, false
	}
	if _, ok := req.(extension.TriggerAnalysis); !ok {
		return nil, false
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = c.Trigger(context.WithoutCancel(ctx))
	}()

	b, _ := json.Marshal(extension.AckResponse{OK: true})
	return b, true
}

// Wait blocks until background triggers have finished.
func (c *Controller) Wait() { c.wg.Wait() }

package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xaenox/reviewai/internal/extension"
	"github.com/xaenox/reviewai/internal/models"
	"github.com/xaenox/reviewai/internal/scraper"
	"github.com/xaenox/reviewai/internal/verdictcache"
)

const productURL = "https://www.amazon.com/Steel-Kettle/dp/B000000000/ref=sr_1_1"

const productPage = `<html><body>
<div id="dp-container">
  <div id="centerCol">
    <span id="productTitle"> Steel Kettle </span>
    <div class="a-price"><span class="a-offscreen">$29.99</span></div>
  </div>
  <div data-hook="review-body">Boils water fast and the handle stays cool.</div>
  <div data-hook="review-body">Boils water fast and the handle stays cool.</div>
  <div data-hook="review-body">Too short</div>
  <div data-hook="review-body">The lid broke after two months of daily use.</div>
</div>
</body></html>`

func newDoc(t *testing.T, page string) *Document {
	t.Helper()
	p, err := scraper.Parse(strings.NewReader(page), productURL)
	require.NoError(t, err)
	return NewDocument(p)
}

func newCache() *verdictcache.Cache {
	return verdictcache.New(verdictcache.NewMemoryStore(), verdictcache.DefaultTTL, zap.NewNop())
}

type fakeSender struct {
	mu       sync.Mutex
	requests []extension.Request
	reply    string
	err      error
}

func (f *fakeSender) SendMessage(_ context.Context, req extension.Request) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.reply), nil
}

func (f *fakeSender) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

const buyReply = `{"id":"an-1","asin":"B000000000","verdict":"BUY","trust_score":82,"confidence_score":70,"summary":"Solid kettle.","is_anonymous":true}`

func appendAnchor(doc *Document, id string) {
	body := cascadia.MustCompile("body")
	doc.Mutate(func(root *html.Node) bool {
		body.MatchFirst(root).AppendChild(&html.Node{
			Type: html.ElementNode, Data: "div", DataAtom: atom.Div,
			Attr: []html.Attribute{{Key: "id", Val: id}},
		})
		return true
	})
}

func TestAcquire_FirstProbeWins(t *testing.T) {
	subscribed := false
	v, err := Acquire(context.Background(), time.Second,
		func() (int, bool) { return 7, true },
		func() (<-chan struct{}, func()) { subscribed = true; return nil, func() {} })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.False(t, subscribed)
}

func TestWaitForAnchor_AfterMutation(t *testing.T) {
	doc := newDoc(t, `<html><body><div id="nav"></div></body></html>`)

	go func() {
		time.Sleep(20 * time.Millisecond)
		appendAnchor(doc, "unrelated")
		time.Sleep(20 * time.Millisecond)
		appendAnchor(doc, "ppd")
	}()

	anchor, err := WaitForAnchor(context.Background(), doc, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "div", anchor.Data)
	assert.Equal(t, 0, doc.Observers(), "observer torn down on success")
}

func TestWaitForAnchor_Timeout(t *testing.T) {
	doc := newDoc(t, `<html><body></body></html>`)

	start := time.Now()
	_, err := WaitForAnchor(context.Background(), doc, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrAnchorTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 0, doc.Observers(), "observer torn down on timeout")
}

func TestWaitForAnchor_PrefersRightCol(t *testing.T) {
	doc := newDoc(t, `<html><body><div id="ppd"></div><div id="rightCol"></div></body></html>`)
	anchor, ok := FindAnchor(doc)
	require.True(t, ok)
	assert.Equal(t, "rightCol", anchor.Attr[0].Val)
}

func TestMount_Idempotent(t *testing.T) {
	doc := newDoc(t, productPage)
	anchor, ok := FindAnchor(doc)
	require.True(t, ok)

	first, created := Mount(doc, anchor)
	require.True(t, created)
	second, created := Mount(doc, anchor)
	assert.False(t, created)
	assert.Same(t, first, second)
	assert.Equal(t, 1, doc.CountByID(ContainerID))

	// A second controller on the same page reuses the container.
	require.NoError(t, NewController(doc, &fakeSender{}, newCache(), zap.NewNop()).Start(context.Background()))
	require.NoError(t, NewController(doc, &fakeSender{}, newCache(), zap.NewNop()).Start(context.Background()))
	assert.Equal(t, 1, doc.CountByID(ContainerID))
}

func TestController_StartWithoutCache(t *testing.T) {
	doc := newDoc(t, productPage)
	c := NewController(doc, &fakeSender{}, newCache(), zap.NewNop())

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, StateMounted, c.Snapshot().State)
	assert.Equal(t, "Analyze reviews", doc.TextOf(ContainerID))
}

func TestController_HydratesFromCache(t *testing.T) {
	ctx := context.Background()
	cache := newCache()
	_, err := cache.Put(ctx, models.Verdict{ASIN: "B000000000", Verdict: "SKIP", TrustScore: 31})
	require.NoError(t, err)

	sender := &fakeSender{}
	c := NewController(newDoc(t, productPage), sender, cache, zap.NewNop())
	require.NoError(t, c.Start(ctx))

	s := c.Snapshot()
	assert.Equal(t, StateResult, s.State)
	require.NotNil(t, s.Verdict)
	assert.Equal(t, "SKIP", s.Verdict.Verdict)
	assert.NotEmpty(t, s.LastUpdatedAt)
	assert.Zero(t, sender.calls())
}

func TestController_TriggerSuccessWritesCache(t *testing.T) {
	ctx := context.Background()
	cache := newCache()
	sender := &fakeSender{reply: buyReply}
	doc := newDoc(t, productPage)
	c := NewController(doc, sender, cache, zap.NewNop())
	require.NoError(t, c.Start(ctx))

	require.NoError(t, c.Trigger(ctx))

	s := c.Snapshot()
	assert.Equal(t, StateResult, s.State)
	assert.Equal(t, "BUY", s.Verdict.Verdict)
	assert.Contains(t, doc.TextOf(ContainerID), "BUY")

	entry, ok := cache.Get(ctx, "B000000000")
	require.True(t, ok)
	assert.Equal(t, 82.0, entry.Verdict.TrustScore)

	require.Equal(t, 1, sender.calls())
	req := sender.requests[0].(extension.AnalyzeProduct)
	assert.Equal(t, productURL, req.URL)
	assert.Equal(t, "Steel Kettle", req.Scraped.ProductTitle)
	assert.Equal(t, "$29.99", req.Scraped.Price)
	assert.Len(t, req.Scraped.Reviews, 2)
}

func TestController_TriggerFailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	cache := newCache()
	_, err := cache.Put(ctx, models.Verdict{ASIN: "B000000000", Verdict: "CAUTION"})
	require.NoError(t, err)

	sender := &fakeSender{reply: `{"error":"No reviews found for this product"}`}
	c := NewController(newDoc(t, productPage), sender, cache, zap.NewNop())
	require.NoError(t, c.Start(ctx))

	err = c.Trigger(ctx)
	require.Error(t, err)

	s := c.Snapshot()
	assert.Equal(t, StateError, s.State)
	assert.Equal(t, "No reviews found for this product", s.Error)

	entry, ok := cache.Get(ctx, "B000000000")
	require.True(t, ok)
	assert.Equal(t, "CAUTION", entry.Verdict.Verdict)

	// Retry clears the error.
	sender.err = errors.New("port closed")
	_ = c.Trigger(ctx)
	assert.Equal(t, "port closed", c.Snapshot().Error)
	assert.Equal(t, 2, sender.calls())
}

func TestController_HandleMessage(t *testing.T) {
	sender := &fakeSender{reply: buyReply}
	c := NewController(newDoc(t, productPage), sender, newCache(), zap.NewNop())
	require.NoError(t, c.Start(context.Background()))

	resp, ok := c.HandleMessage(context.Background(), []byte(`{"action":"trigger_analysis"}`))
	require.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, string(resp))

	resp, ok = c.HandleMessage(context.Background(), []byte(`{"action":"trigger_analysis"}`))
	require.True(t, ok)
	assert.NotNil(t, resp)

	_, ok = c.HandleMessage(context.Background(), []byte(`{"action":"get_session"}`))
	assert.False(t, ok)

	c.Wait()
	assert.Equal(t, 2, sender.calls(), "each trigger issues a new request")
	assert.Equal(t, StateResult, c.Snapshot().State)
}

func TestController_ThroughRouter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(buyReply))
	}))
	defer srv.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	syncer := extension.NewSynchronizer(extension.SyncConfig{WebAppURL: srv.URL},
		extension.JarCookieReader{Jar: jar}, nil, zap.NewNop())
	router := extension.NewRouter(syncer, extension.NewAnalyzeClient(srv.URL, nil, time.Second, zap.NewNop()), zap.NewNop())

	c := NewController(newDoc(t, productPage), extension.NewRuntime(router), newCache(), zap.NewNop())
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Trigger(context.Background()))

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "BUY", c.Snapshot().Verdict.Verdict)
}

package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/reviewai/internal/amazon"
	"github.com/xaenox/reviewai/internal/analysis"
	"github.com/xaenox/reviewai/internal/models"
	"github.com/xaenox/reviewai/internal/scraper"
	"github.com/xaenox/reviewai/internal/storage"
)

const (
	userID     = "user-1"
	productURL = "https://amazon.com/dp/B000000000"
	reply      = "Yes. Reviewers like how fast it boils, but watch the lid hinge. ☕ Worth it at this price."
)

const analysisJSON = `{"verdict":"buy","summary":"Fast and sturdy.","trust_score":78,"confidence_score":66,
"perfect_for":["tea drinkers"],"avoid_if":["you need a gooseneck"],"deal_breakers":[],
"buyer_psychology":{"why_they_buy":"speed","what_stops_them":"lid"},"persuasive_angles":[],"honest_objections":[]}`

const productPage = `<html><body><span id="productTitle">Steel Kettle</span>
<div data-hook="review-body">Boils a full litre in under three minutes.</div>
<div data-hook="review-body">The lid hinge feels flimsy but has held up so far.</div>
</body></html>`

// fakeCompleter answers structured requests with an analysis and plain ones
// with reply.
type fakeCompleter struct {
	mu         sync.Mutex
	structured int
	chats      []analysis.CompletionRequest
	chatErr    error
}

func (f *fakeCompleter) Complete(_ context.Context, req analysis.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Schema != nil {
		f.structured++
		return analysisJSON, nil
	}
	f.chats = append(f.chats, req)
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return reply, nil
}

type pageFetcher struct{ calls int }

func (f *pageFetcher) Fetch(_ context.Context, url string) (*scraper.Page, error) {
	f.calls++
	return scraper.Parse(strings.NewReader(productPage), url)
}

type fixture struct {
	store     *storage.MemoryStorage
	completer *fakeCompleter
	fetcher   *pageFetcher
	svc       *Service
}

func newFixture() *fixture {
	return newPacedFixture(0)
}

func newPacedFixture(delay time.Duration) *fixture {
	store := storage.NewMemoryStorage()
	completer := &fakeCompleter{}
	fetcher := &pageFetcher{}
	pipeline := analysis.NewPipeline(fetcher, analysis.NewAnalyzer(completer, zap.NewNop()), store, zap.NewNop())
	svc := NewService(store, pipeline, completer, StreamConfig{ChunkSize: 10, ChunkDelay: delay}, zap.NewNop())
	return &fixture{store: store, completer: completer, fetcher: fetcher, svc: svc}
}

func hi() []models.ChatMessage {
	return []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}}
}

// readEvents parses an SSE body into fragments and reports whether [DONE]
// terminated it.
func readEvents(t *testing.T, body string) ([]Fragment, bool) {
	t.Helper()
	var (
		frags []Fragment
		done  bool
	)
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		require.True(t, ok, line)
		if data == "[DONE]" {
			done = true
			continue
		}
		var f Fragment
		require.NoError(t, json.Unmarshal([]byte(data), &f))
		frags = append(frags, f)
	}
	return frags, done
}

func TestChunk_Reassembles(t *testing.T) {
	inputs := []string{"", "a", "0123456789", "0123456789a", strings.Repeat("x", 95), reply, "héllo wörld ☕☕☕ ünïcödé"}
	for _, in := range inputs {
		chunks := Chunk(in, 10)
		n := utf8.RuneCountInString(in)
		assert.Len(t, chunks, (n+9)/10, in)
		assert.Equal(t, in, strings.Join(chunks, ""))
		for _, c := range chunks {
			assert.True(t, utf8.ValidString(c))
			assert.LessOrEqual(t, utf8.RuneCountInString(c), 10)
		}
	}
}

func TestChat_ProductConversationEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	turn, err := f.svc.Prepare(ctx, userID, Request{Messages: hi(), AmazonURL: productURL})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, f.svc.Stream(ctx, rec, turn))

	frags, done := readEvents(t, rec.Body.String())
	assert.True(t, done)
	assert.Len(t, frags, (utf8.RuneCountInString(reply)+9)/10)

	var rebuilt strings.Builder
	for _, fr := range frags {
		assert.Equal(t, turn.Conversation.ID, fr.ConversationID)
		rebuilt.WriteString(fr.Content)
	}
	assert.Equal(t, reply, rebuilt.String())

	analyses, err := f.store.ListAnalyses(ctx, userID, 0)
	require.NoError(t, err)
	require.Len(t, analyses, 1)
	assert.Equal(t, "B000000000", analyses[0].ASIN)
	assert.Equal(t, "BUY", analyses[0].AnalysisResult.Verdict)

	convs, err := f.store.ListConversations(ctx, userID, 0)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "B000000000", convs[0].AmazonASIN)
	assert.Equal(t, "Steel Kettle", convs[0].ProductTitle)

	msgs, err := f.store.ListMessages(ctx, convs[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, reply, msgs[1].Content)

	// The bound analysis reaches the system prompt.
	require.Len(t, f.completer.chats, 1)
	system := f.completer.chats[0].Messages[0]
	assert.Equal(t, models.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "Verdict: BUY")
	assert.Contains(t, system.Content, "Perfect for: tea drinkers")
}

func TestChat_ReusesAnalysisAndConversation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	first, err := f.svc.Reply(ctx, userID, Request{Messages: hi(), AmazonURL: productURL})
	require.NoError(t, err)
	second, err := f.svc.Reply(ctx, userID, Request{Messages: hi(), AmazonURL: "https://www.amazon.com/gp/product/B000000000"})
	require.NoError(t, err)

	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)
	assert.Equal(t, 1, f.completer.structured)
	assert.Equal(t, 1, f.fetcher.calls)

	msgs, err := f.store.ListMessages(ctx, first.Conversation.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestChat_GeneralAndExistingConversation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	turn, err := f.svc.Reply(ctx, userID, Request{Messages: hi()})
	require.NoError(t, err)
	assert.Equal(t, GeneralChatTitle, turn.Conversation.ProductTitle)
	assert.Empty(t, turn.Conversation.AmazonASIN)
	assert.Nil(t, turn.Analysis)

	again, err := f.svc.Reply(ctx, userID, Request{Messages: hi(), ConversationID: turn.Conversation.ID})
	require.NoError(t, err)
	assert.Equal(t, turn.Conversation.ID, again.Conversation.ID)

	_, err = f.svc.Prepare(ctx, "someone-else", Request{Messages: hi(), ConversationID: turn.Conversation.ID})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestChat_UserMessageOnlyWhenLastIsUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	turn, err := f.svc.Prepare(ctx, userID, Request{Messages: []models.ChatMessage{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	}})
	require.NoError(t, err)

	msgs, err := f.store.ListMessages(ctx, turn.Conversation.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestChat_RequestErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.Prepare(ctx, userID, Request{})
	assert.ErrorIs(t, err, ErrNoMessages)

	_, err = f.svc.Prepare(ctx, userID, Request{Messages: hi(), AmazonURL: "https://example.com/dp/B000000000"})
	assert.ErrorIs(t, err, amazon.ErrUnsupportedURL)

	f.completer.chatErr = errors.New("upstream 500")
	_, err = f.svc.Prepare(ctx, userID, Request{Messages: hi()})
	assert.ErrorIs(t, err, ErrCompletion)
}

// cancelingWriter cancels the request after the first fragment, as a client
// disconnect would.
type cancelingWriter struct {
	strings.Builder
	cancel context.CancelFunc
}

func (w *cancelingWriter) Write(p []byte) (int, error) {
	n, err := w.Builder.Write(p)
	w.cancel()
	return n, err
}

func TestChat_DisconnectSkipsAssistantMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture()

	turn, err := f.svc.Prepare(ctx, userID, Request{Messages: hi()})
	require.NoError(t, err)

	w := &cancelingWriter{cancel: cancel}
	err = f.svc.Stream(ctx, w, turn)
	assert.ErrorIs(t, err, context.Canceled)

	frags, done := readEvents(t, w.String())
	assert.Len(t, frags, 1)
	assert.False(t, done)

	msgs, err := f.store.ListMessages(context.Background(), turn.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
}

func TestChat_StreamPacesFragments(t *testing.T) {
	ctx := context.Background()
	const delay = 5 * time.Millisecond
	f := newPacedFixture(delay)

	turn, err := f.svc.Prepare(ctx, userID, Request{Messages: hi()})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	start := time.Now()
	require.NoError(t, f.svc.Stream(ctx, rec, turn))
	elapsed := time.Since(start)

	frags, done := readEvents(t, rec.Body.String())
	assert.True(t, done)
	require.Len(t, frags, (utf8.RuneCountInString(reply)+9)/10)
	assert.GreaterOrEqual(t, elapsed, time.Duration(len(frags)-1)*delay)
}

// signalingWriter reports its first write on wrote.
type signalingWriter struct {
	strings.Builder
	once  sync.Once
	wrote chan struct{}
}

func (w *signalingWriter) Write(p []byte) (int, error) {
	n, err := w.Builder.Write(p)
	w.once.Do(func() { close(w.wrote) })
	return n, err
}

func TestChat_CancelDuringDelaySkipsAssistantMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newPacedFixture(time.Hour)

	turn, err := f.svc.Prepare(ctx, userID, Request{Messages: hi()})
	require.NoError(t, err)

	w := &signalingWriter{wrote: make(chan struct{})}
	go func() {
		<-w.wrote
		cancel()
	}()

	errc := make(chan error, 1)
	go func() { errc <- f.svc.Stream(ctx, w, turn) }()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop when its context was canceled")
	}

	frags, done := readEvents(t, w.String())
	assert.Len(t, frags, 1)
	assert.False(t, done)

	msgs, err := f.store.ListMessages(context.Background(), turn.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
}

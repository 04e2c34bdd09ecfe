package extension

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/reviewai/internal/amazon"
	"github.com/xaenox/reviewai/internal/models"
)

// Analyzer is the outbound half of analyze_product.
type Analyzer interface {
	Analyze(ctx context.Context, url string, scraped *models.ProductInput, accessToken string) (json.RawMessage, error)
}

// Router is the background context's single inbound message handler.
type Router struct {
	syncer   *Synchronizer
	cell     *SessionCell
	analyzer Analyzer
	logger   *zap.Logger
}

func NewRouter(syncer *Synchronizer, analyzer Analyzer, logger *zap.Logger) *Router {
	return &Router{syncer: syncer, cell: &SessionCell{}, analyzer: analyzer, logger: logger}
}

// Session returns the last session derived by the router.
func (r *Router) Session() *models.Session { return r.cell.Load() }

// Warm derives the session once, as the background context does on startup.
func (r *Router) Warm(ctx context.Context) {
	r.cell.Store(r.syncer.Sync(ctx))
}

// Dispatch decodes raw and handles it. The boolean reports whether a
// response was produced; unknown actions produce none so the caller can
// close the channel immediately.
func (r *Router) Dispatch(ctx context.Context, raw []byte) (json.RawMessage, bool) {
	req, err := DecodeRequest(raw)
	if err != nil {
		if !errors.Is(err, ErrUnknownAction) {
			r.logger.Warn("Dropping malformed message", zap.Error(err))
		}
		return nil, false
	}

	resp, ok := r.Handle(ctx, req)
	if !ok {
		return nil, false
	}
	if raw, isRaw := resp.(json.RawMessage); isRaw {
		return raw, true
	}
	b, err := json.Marshal(resp)
	if err != nil {
		b, _ = json.Marshal(ErrorResponse{Error: "internal error"})
	}
	return b, true
}

// Handle produces exactly one response for the background actions and none
// for anything else.
func (r *Router) Handle(ctx context.Context, req Request) (any, bool) {
	switch req := req.(type) {
	case GetSession:
		return r.handleGetSession(ctx), true
	case AnalyzeProduct:
		return r.handleAnalyze(ctx, req), true
	case TriggerAnalysis:
		// Addressed to content scripts, not the background context.
		return nil, false
	default:
		return nil, false
	}
}

func (r *Router) handleGetSession(ctx context.Context) (resp SessionResponse) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Session sync panicked", zap.Any("panic", rec))
			resp = SessionResponse{Session: nil, Error: fmt.Sprint(rec)}
		}
	}()

	session := r.syncer.Sync(ctx)
	r.cell.Store(session)
	return SessionResponse{Session: session}
}

func (r *Router) handleAnalyze(ctx context.Context, req AnalyzeProduct) (resp any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Analyze handler panicked", zap.Any("panic", rec))
			resp = ErrorResponse{Error: msgFailed}
		}
	}()

	if !amazon.IsProductURL(req.URL) {
		return ErrorResponse{Error: amazon.ErrUnsupportedURL.Error()}
	}

	var token string
	session := r.syncer.Sync(ctx)
	r.cell.Store(session)
	if session != nil {
		token = session.AccessToken
	}

	body, err := r.analyzer.Analyze(ctx, req.URL, req.Scraped, token)
	if err != nil {
		return ErrorResponse{Error: err.Error()}
	}
	return body
}

// Runtime delivers messages to a Router the way the extension runtime does:
// every message crosses the boundary as an encoded copy.
type Runtime struct {
	router *Router
}

// ErrNoResponse is returned when the receiver closed the channel without
// answering.
var ErrNoResponse = errors.New("message port closed before a response was received")

func NewRuntime(router *Router) *Runtime { return &Runtime{router: router} }

func (rt *Runtime) SendMessage(ctx context.Context, req Request) (json.RawMessage, error) {
	raw, err := Encode(req)
	if err != nil {
		return nil, err
	}
	resp, ok := rt.router.Dispatch(ctx, raw)
	if !ok {
		return nil, ErrNoResponse
	}
	return resp, nil
}

package extension

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xaenox/reviewai/internal/models"
)

// ErrUnknownAction is returned by DecodeRequest for an action outside the
// closed set below.
var ErrUnknownAction = errors.New("unknown action")

type Action string

const (
	ActionGetSession      Action = "get_session"
	ActionAnalyzeProduct  Action = "analyze_product"
	ActionTriggerAnalysis Action = "trigger_analysis"
)

// Request is the closed set of messages exchanged between extension
// contexts. Only types in this package implement it.
type Request interface {
	Action() Action
	sealed()
}

type GetSession struct{}

type AnalyzeProduct struct {
	URL     string               `json:"url"`
	Scraped *models.ProductInput `json:"scraped,omitempty"`
}

// TriggerAnalysis is sent by the popup to a tab's content script.
type TriggerAnalysis struct{}

func (GetSession) Action() Action      { return ActionGetSession }
func (AnalyzeProduct) Action() Action  { return ActionAnalyzeProduct }
func (TriggerAnalysis) Action() Action { return ActionTriggerAnalysis }

func (GetSession) sealed()      {}
func (AnalyzeProduct) sealed()  {}
func (TriggerAnalysis) sealed() {}

// Encode renders r in the {"action": ..., ...} wire shape.
func Encode(r Request) ([]byte, error) {
	switch req := r.(type) {
	case GetSession, TriggerAnalysis:
		return json.Marshal(map[string]Action{"action": r.Action()})
	case AnalyzeProduct:
		return json.Marshal(struct {
			Action Action `json:"action"`
			AnalyzeProduct
		}{Action: r.Action(), AnalyzeProduct: req})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownAction, r)
	}
}

// DecodeRequest parses the wire shape into a Request.
func DecodeRequest(raw []byte) (Request, error) {
	var head struct {
		Action Action `json:"action"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	switch head.Action {
	case ActionGetSession:
		return GetSession{}, nil
	case ActionAnalyzeProduct:
		var req AnalyzeProduct
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decode analyze_product: %w", err)
		}
		return req, nil
	case ActionTriggerAnalysis:
		return TriggerAnalysis{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, head.Action)
	}
}

type SessionResponse struct {
	Session *models.Session `json:"session"`
	Error   string          `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type AckResponse struct {
	OK bool `json:"ok"`
}

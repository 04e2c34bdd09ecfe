package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	streamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reviewai",
			Name:      "chat_streams_total",
			Help:      "Chat replies by outcome.",
		},
		[]string{"outcome"},
	)
	fragmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reviewai",
		Name:      "chat_fragments_total",
		Help:      "Chat fragments written to clients.",
	})
)

// Fragment is the payload of one data event.
type Fragment struct {
	Content        string `json:"content"`
	ConversationID string `json:"conversationId"`
}

const doneEvent = "data: [DONE]\n\n"

func writeEvent(w io.Writer, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}

func flush(w io.Writer) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// Stream writes turn.Reply as fragments with the configured delay between
// them, stores the assistant message and ends with [DONE]. If ctx is done or
// a write fails the stream stops and the assistant message is not stored.
func (s *Service) Stream(ctx context.Context, w io.Writer, turn *Turn) error {
	chunks := Chunk(turn.Reply, s.stream.ChunkSize)

	var timer *time.Timer
	for i, chunk := range chunks {
		if i > 0 && s.stream.ChunkDelay > 0 {
			if timer == nil {
				timer = time.NewTimer(s.stream.ChunkDelay)
				defer timer.Stop()
			} else {
				timer.Reset(s.stream.ChunkDelay)
			}
			select {
			case <-ctx.Done():
				return s.abort(turn, i, ctx.Err())
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return s.abort(turn, i, err)
		}

		if err := writeEvent(w, Fragment{Content: chunk, ConversationID: turn.Conversation.ID}); err != nil {
			return s.abort(turn, i, err)
		}
		flush(w)
		fragmentsTotal.Inc()
	}

	if err := s.saveAssistant(ctx, turn); err != nil {
		streamsTotal.WithLabelValues("store_failed").Inc()
		return err
	}

	if _, err := io.WriteString(w, doneEvent); err != nil {
		return err
	}
	flush(w)
	streamsTotal.WithLabelValues("completed").Inc()
	return nil
}

func (s *Service) abort(turn *Turn, sent int, err error) error {
	streamsTotal.WithLabelValues("aborted").Inc()
	s.logger.Info("Chat stream aborted",
		zap.String("conversation_id", turn.Conversation.ID),
		zap.Int("fragments_sent", sent),
		zap.Error(err))
	return err
}

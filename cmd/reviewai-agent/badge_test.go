package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xaenox/reviewai/internal/models"
	"github.com/xaenox/reviewai/internal/overlay"
)

func TestRenderBadge(t *testing.T) {
	out := renderBadge(overlay.Snapshot{
		State:         overlay.StateResult,
		LastUpdatedAt: "Oct 15, 3:04 PM",
		Verdict: &models.Verdict{
			Verdict: models.VerdictBuy, TrustScore: 81, ConfidenceScore: 64,
			Summary: "Fast and quiet.",
		},
	}, true)

	assert.Contains(t, out, "BUY")
	assert.Contains(t, out, "Trust 81 · Confidence 64")
	assert.Contains(t, out, "Fast and quiet.")
	assert.Contains(t, out, "Updated Oct 15, 3:04 PM")
	assert.NotContains(t, out, "not saved")
}

func TestRenderBadge_AnonymousAndStates(t *testing.T) {
	out := renderBadge(overlay.Snapshot{
		State:   overlay.StateResult,
		Verdict: &models.Verdict{Verdict: models.VerdictSkip, IsAnonymous: true},
	}, false)
	assert.Contains(t, out, "not saved to your history")

	assert.Contains(t, renderBadge(overlay.Snapshot{State: overlay.StateError, Error: "No reviews found"}, false), "No reviews found")
	assert.Contains(t, renderBadge(overlay.Snapshot{State: overlay.StateMounted}, false), "No verdict yet")
}

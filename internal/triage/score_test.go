package triage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"gitlab.com/timkado/api/waitlist-ops/internal/model"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		record   model.WaitlistRecord
		expected int
	}{
		{
			name: "capped at 100",
			record: model.WaitlistRecord{
				Intent:  model.IntentVerificationPack,
				Role:    "auditor",
				Company: "Acme",
				Notes:   strings.Repeat("x", 150),
				Source:  model.SourceTrust,
			},
			expected: 100,
		},
		{name: "empty", record: model.WaitlistRecord{}, expected: 0},
		{name: "early access partner", record: model.WaitlistRecord{Intent: model.IntentEarlyAccess, Role: "partner"}, expected: 40},
		{name: "unknown role", record: model.WaitlistRecord{Role: "founder"}, expected: 0},
		{
			name: "completeness bonuses",
			record: model.WaitlistRecord{
				Company: "Acme", FullName: "Ada", Location: "Lagos", Module: "edge-fiber", Volume: "10-50 sites",
			},
			expected: 36,
		},
		{name: "notes under 40 after trim", record: model.WaitlistRecord{Notes: "   " + strings.Repeat("n", 39) + "   "}, expected: 0},
		{name: "notes at 40", record: model.WaitlistRecord{Notes: strings.Repeat("n", 40)}, expected: 6},
		{name: "notes at 140", record: model.WaitlistRecord{Notes: strings.Repeat("n", 140)}, expected: 12},
		{name: "trust source", record: model.WaitlistRecord{Source: model.SourceTrust, Role: "isp"}, expected: 30},
		{name: "enterprise verification", record: model.WaitlistRecord{Intent: model.IntentVerificationPack, Role: "enterprise"}, expected: 80},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Score(tc.record))
			assert.Equal(t, tc.expected, Score(tc.record), "score is deterministic")
		})
	}
}

func TestScoreAllKeepsOrder(t *testing.T) {
	records := []model.WaitlistRecord{
		{Email: "a@x.com"},
		{Email: "b@x.com", Intent: model.IntentEarlyAccess},
	}
	scored := ScoreAll(records)
	assert.Equal(t, "a@x.com", scored[0].Email)
	assert.Equal(t, 0, scored[0].Score)
	assert.Equal(t, 30, scored[1].Score)
}

// Package triage derives the ops view of the waitlist: lead scores, filters,
// the default triage order, the summary band and reply drafts. Everything
// here is a pure function of the loaded collection.
package triage

import (
	"fmt"
	"strings"

	"gitlab.com/timkado/api/waitlist-ops/internal/model"
)

// MaxScore caps Score.
const MaxScore = 100

var roleWeights = map[string]int{
	"auditor":    35,
	"enterprise": 30,
	"isp":        20,
	"partner":    10,
}

// Score rates a record in [0, 100] by intent, role, profile completeness,
// notes length and source.
func Score(r model.WaitlistRecord) int {
	s := 0

	switch r.Intent {
	case model.IntentVerificationPack:
		s += 50
	case model.IntentEarlyAccess:
		s += 30
	}

	s += roleWeights[r.Role]

	if r.Company != "" {
		s += 10
	}
	if r.FullName != "" {
		s += 8
	}
	if r.Location != "" {
		s += 6
	}
	if r.Module != "" {
		s += 8
	}
	if r.Volume != "" {
		s += 4
	}

	notes := len([]rune(strings.TrimSpace(r.Notes)))
	if notes >= 40 {
		s += 6
	}
	if notes >= 140 {
		s += 6
	}

	if r.Source == model.SourceTrust {
		s += 10
	}

	if s > MaxScore {
		return MaxScore
	}
	return s
}

// Scored pairs a record with its score. It marshals as the record's fields plus "score".
type Scored struct {
	model.WaitlistRecord
	Score int `json:"score"`
}

// MarshalJSON overrides the record's promoted marshaller so the score is kept.
func (s Scored) MarshalJSON() ([]byte, error) {
	data, err := s.WaitlistRecord.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf(`%s,"score":%d}`, data[:len(data)-1], s.Score)), nil
}

// ScoreAll scores every record, keeping input order.
func ScoreAll(records []model.WaitlistRecord) []Scored {
	out := make([]Scored, 0, len(records))
	for _, r := range records {
		out = append(out, Scored{WaitlistRecord: r, Score: Score(r)})
	}
	return out
}

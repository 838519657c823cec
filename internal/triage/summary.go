package triage

import (
	"math"
	"sort"
	"strings"

	"gitlab.com/timkado/api/waitlist-ops/internal/model"
	"gitlab.com/timkado/api/waitlist-ops/pkg/utils"
)

// Unspecified buckets records with no intent or role in the summary.
const Unspecified = "unspecified"

const (
	topBuckets  = 2
	queueLength = 3
	maxSeverity = 10
)

// Count is one bucket of a frequency table.
type Count struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// QueueItem is one entry of the next-to-review shortlist.
type QueueItem struct {
	ID     string `json:"id,omitempty"`
	Email  string `json:"email"`
	Score  int    `json:"score"`
	Intent string `json:"intent,omitempty"`
	When   string `json:"when"`
}

// Summary is the aggregate band shown above the ops table.
type Summary struct {
	Total         int         `json:"total"`
	Reviewed      int         `json:"reviewed"`
	Unreviewed    int         `json:"unreviewed"`
	Contacted     int         `json:"contacted"`
	NotContacted  int         `json:"notContacted"`
	TopIntents    []Count     `json:"topIntents"`
	TopRoles      []Count     `json:"topRoles"`
	TopScore      int         `json:"topScore"`
	NextToReview  []QueueItem `json:"nextToReview"`
	Severity      int         `json:"severity"`
	SeverityLabel string      `json:"severityLabel"`
}

// SeverityLabel maps a severity in [0, 10] to LOW, MED (>=4) or HIGH (>=7).
func SeverityLabel(n int) string {
	switch {
	case n >= 7:
		return "HIGH"
	case n >= 4:
		return "MED"
	default:
		return "LOW"
	}
}

// Summarize aggregates the collection. Backlog pressure weighs unreviewed
// records by score tier (>=75: 3, >=60: 2, >=40: 1); severity is pressure/3
// rounded and clamped to [0, 10].
func Summarize(records []model.WaitlistRecord) Summary {
	var sum Summary
	intents := newCounter()
	roles := newCounter()
	pressure := 0
	var unreviewed []Scored

	for _, s := range ScoreAll(records) {
		sum.Total++
		intents.add(string(s.Intent))
		roles.add(s.Role)
		if s.Score > sum.TopScore {
			sum.TopScore = s.Score
		}

		if s.IsContacted() {
			sum.Contacted++
		} else {
			sum.NotContacted++
		}

		if s.IsReviewed() {
			sum.Reviewed++
			continue
		}
		sum.Unreviewed++
		unreviewed = append(unreviewed, s)

		switch {
		case s.Score >= 75:
			pressure += 3
		case s.Score >= 60:
			pressure += 2
		case s.Score >= 40:
			pressure++
		}
	}

	sum.Severity = clamp(int(math.Round(float64(pressure)/3)), 0, maxSeverity)
	sum.SeverityLabel = SeverityLabel(sum.Severity)
	sum.TopIntents = intents.top(topBuckets)
	sum.TopRoles = roles.top(topBuckets)

	sort.SliceStable(unreviewed, func(i, j int) bool {
		a, b := unreviewed[i], unreviewed[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.LastActivity().After(b.LastActivity())
	})
	sum.NextToReview = make([]QueueItem, 0, queueLength)
	for i := 0; i < len(unreviewed) && i < queueLength; i++ {
		s := unreviewed[i]
		when := s.LastActivity()
		sum.NextToReview = append(sum.NextToReview, QueueItem{
			ID:     s.ID,
			Email:  s.Email,
			Score:  s.Score,
			Intent: string(s.Intent),
			When:   utils.FormatShortDate(&when),
		})
	}

	return sum
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// counter is a frequency table that remembers first-seen order.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: map[string]int{}}
}

func (c *counter) add(v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		v = Unspecified
	}
	if _, ok := c.counts[v]; !ok {
		c.order = append(c.order, v)
	}
	c.counts[v]++
}

// top returns the n most frequent values; ties keep first-seen order.
func (c *counter) top(n int) []Count {
	out := make([]Count, 0, len(c.order))
	for _, v := range c.order {
		out = append(out, Count{Value: v, Count: c.counts[v]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

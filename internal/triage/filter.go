package triage

import (
	"sort"
	"strings"

	"gitlab.com/timkado/api/waitlist-ops/internal/model"
)

// ReviewState filters on reviewedAt.
type ReviewState string

const (
	ReviewAny        ReviewState = "any"
	ReviewReviewed   ReviewState = "reviewed"
	ReviewUnreviewed ReviewState = "unreviewed"
)

// ContactState filters on lastContactedAt.
type ContactState string

const (
	ContactAny          ContactState = "any"
	ContactContacted    ContactState = "contacted"
	ContactNotContacted ContactState = "not-contacted"
)

// ParseReviewState accepts the dashboard's values; unknown values mean any.
func ParseReviewState(v string) ReviewState {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "reviewed":
		return ReviewReviewed
	case "unreviewed":
		return ReviewUnreviewed
	default:
		return ReviewAny
	}
}

// ParseContactState accepts "contacted"/"yes" and "not-contacted"/"not"/"no"; anything else means any.
func ParseContactState(v string) ContactState {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "contacted", "yes":
		return ContactContacted
	case "not-contacted", "not", "no":
		return ContactNotContacted
	default:
		return ContactAny
	}
}

// Criteria is an AND of predicates. Zero values do not filter.
type Criteria struct {
	Query     string
	Intent    string
	Role      string
	Source    string
	Module    string
	Reviewed  ReviewState
	Contacted ContactState
	MinScore  int
}

// Filter scores the records and keeps those matching every criterion, in input order.
func Filter(records []model.WaitlistRecord, c Criteria) []Scored {
	needle := strings.ToLower(strings.TrimSpace(c.Query))
	out := make([]Scored, 0, len(records))

	for _, s := range ScoreAll(records) {
		if c.MinScore > 0 && s.Score < c.MinScore {
			continue
		}
		if !matchExact(c.Intent, string(s.Intent)) ||
			!matchExact(c.Role, s.Role) ||
			!matchExact(c.Source, string(s.Source)) ||
			!matchExact(c.Module, s.Module) {
			continue
		}

		switch c.Reviewed {
		case ReviewReviewed:
			if !s.IsReviewed() {
				continue
			}
		case ReviewUnreviewed:
			if s.IsReviewed() {
				continue
			}
		}

		switch c.Contacted {
		case ContactContacted:
			if !s.IsContacted() {
				continue
			}
		case ContactNotContacted:
			if s.IsContacted() {
				continue
			}
		}

		if needle != "" && !strings.Contains(haystack(s.WaitlistRecord), needle) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func matchExact(want, got string) bool {
	return want == "" || want == got
}

func haystack(r model.WaitlistRecord) string {
	parts := []string{
		r.Email, r.FullName, r.Company, r.Location, string(r.Intent),
		r.Role, string(r.Source), r.Module, r.Notes, r.ReviewNote,
	}
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.ToLower(strings.Join(nonEmpty, " "))
}

// Sort orders in place: unreviewed first, then not contacted first, then score descending.
// Equal keys keep their relative order.
func Sort(scored []Scored) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.IsReviewed() != b.IsReviewed() {
			return !a.IsReviewed()
		}
		if a.IsContacted() != b.IsContacted() {
			return !a.IsContacted()
		}
		return a.Score > b.Score
	})
}

// Triage filters then sorts.
func Triage(records []model.WaitlistRecord, c Criteria) []Scored {
	out := Filter(records, c)
	Sort(out)
	return out
}

// Facets are the distinct values offered by the dashboard's filter dropdowns.
type Facets struct {
	Intents []string `json:"intents"`
	Roles   []string `json:"roles"`
	Sources []string `json:"sources"`
	Modules []string `json:"modules"`
}

// DistinctValues collects sorted, distinct, non-empty values per filterable field.
func DistinctValues(records []model.WaitlistRecord) Facets {
	var intents, roles, sources, modules []string
	for _, r := range records {
		intents = append(intents, string(r.Intent))
		roles = append(roles, r.Role)
		sources = append(sources, string(r.Source))
		modules = append(modules, r.Module)
	}
	return Facets{
		Intents: uniqSorted(intents),
		Roles:   uniqSorted(roles),
		Sources: uniqSorted(sources),
		Modules: uniqSorted(modules),
	}
}

func uniqSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

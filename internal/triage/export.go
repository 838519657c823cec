package triage

import (
	"strings"

	"gitlab.com/timkado/api/waitlist-ops/internal/model"
)

// ExportEmails joins the distinct lowercased emails with ", " in input order,
// prefixed with "BCC: " when bcc is set.
func ExportEmails(records []model.WaitlistRecord, bcc bool) string {
	seen := make(map[string]struct{}, len(records))
	emails := make([]string, 0, len(records))
	for _, r := range records {
		e := model.NormalizeEmail(r.Email)
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		emails = append(emails, e)
	}

	joined := strings.Join(emails, ", ")
	if bcc {
		return "BCC: " + joined
	}
	return joined
}

// Records unwraps scored records, keeping order.
func Records(scored []Scored) []model.WaitlistRecord {
	out := make([]model.WaitlistRecord, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.WaitlistRecord)
	}
	return out
}

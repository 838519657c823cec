package triage

import (
	"net/url"
	"strings"

	"gitlab.com/timkado/api/waitlist-ops/internal/model"
)

const (
	subjectVerificationPack = "Orbitlink — Verification Pack (Request Received)"
	subjectIntake           = "Orbitlink — Intake Request (Next Window)"
	placeholder             = "—"
)

// Reply is a composed, unsent reply to a lead.
type Reply struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Mailto  string `json:"mailto"`
}

// ReplyDraft composes the canned reply for a record. Nothing is sent.
func ReplyDraft(r model.WaitlistRecord) Reply {
	subject := ReplySubject(r)
	body := ReplyBody(r)
	return Reply{
		To:      r.Email,
		Subject: subject,
		Body:    body,
		Mailto:  "mailto:" + r.Email + "?subject=" + mailtoEscape(subject) + "&body=" + mailtoEscape(body),
	}
}

// ReplySubject picks the subject line by intent.
func ReplySubject(r model.WaitlistRecord) string {
	if r.Intent == model.IntentVerificationPack {
		return subjectVerificationPack
	}
	return subjectIntake
}

// ReplyBody renders the plain-text template for the record's intent.
func ReplyBody(r model.WaitlistRecord) string {
	var lines []string

	if r.Intent == model.IntentVerificationPack {
		lines = append(lines,
			"Thanks — request received.",
			"We’ll reply when your request matches an active review window.",
			"",
			"To prepare the scope-appropriate pack, please confirm:",
			"• Module (if applicable): "+orPlaceholder(r.Module),
			"• Location: "+orPlaceholder(r.Location),
			"• Review audience (auditor / internal / regulator): "+orPlaceholder(r.Role),
			"",
			"We keep sensitive operational details request-only and provide redacted samples where appropriate.",
		)
		return strings.Join(lines, "\n")
	}

	lines = append(lines,
		"Thanks — intake request received.",
		"We’ll reply when your profile fits the next onboarding window.",
		"",
		"Captured details:",
		"• Module: "+orPlaceholder(r.Module),
		"• Location: "+orPlaceholder(r.Location),
		"• Company: "+orPlaceholder(r.Company),
	)
	if notes := strings.TrimSpace(r.Notes); notes != "" {
		lines = append(lines, "", "Notes:", notes)
	}
	lines = append(lines, "", "Orbitlink intake is controlled: one response, no marketing noise.")
	return strings.Join(lines, "\n")
}

func orPlaceholder(v string) string {
	if v == "" {
		return placeholder
	}
	return v
}

// mailtoEscape percent-encodes v for a mailto query, with spaces as %20.
func mailtoEscape(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}

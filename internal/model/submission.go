package model

import "strings"

// Maximum field lengths accepted from the public form.
const (
	MaxEmailLen    = 180
	MaxReturnToLen = 120
	MaxHoneypotLen = 120
	MaxSourceLen   = 80
	MaxIntentLen   = 80
	MaxFullNameLen = 120
	MaxCompanyLen  = 160
	MaxRoleLen     = 80
	MaxLocationLen = 120
	MaxModuleLen   = 120
	MaxVolumeLen   = 120
	MaxNotesLen    = 800
	MaxOpsIDLen    = 80
)

// Submission is one public waitlist form post.
type Submission struct {
	Email    string `json:"email" validate:"required,waitlist_email"`
	Source   string `json:"source,omitempty"`
	Intent   string `json:"intent,omitempty"`
	FullName string `json:"fullName,omitempty"`
	Company  string `json:"company,omitempty"`
	Role     string `json:"role,omitempty"`
	Location string `json:"location,omitempty"`
	Module   string `json:"module,omitempty"`
	Volume   string `json:"volume,omitempty"`
	Notes    string `json:"notes,omitempty"`

	// Honeypot is a hidden field only bots fill in.
	Honeypot string `json:"company_website,omitempty"`
}

// RequestMeta is the light telemetry captured alongside a submission.
type RequestMeta struct {
	UserAgent string
	IP        string
}

// Clean trims v and truncates it to max runes.
func Clean(v string, max int) string {
	s := strings.TrimSpace(v)
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) > max {
		return string(r[:max])
	}
	return s
}

// Cleaned returns a copy with every field trimmed and truncated, and the email lowercased.
func (s Submission) Cleaned() Submission {
	return Submission{
		Email:    strings.ToLower(Clean(s.Email, MaxEmailLen)),
		Source:   Clean(s.Source, MaxSourceLen),
		Intent:   Clean(s.Intent, MaxIntentLen),
		FullName: Clean(s.FullName, MaxFullNameLen),
		Company:  Clean(s.Company, MaxCompanyLen),
		Role:     Clean(s.Role, MaxRoleLen),
		Location: Clean(s.Location, MaxLocationLen),
		Module:   Clean(s.Module, MaxModuleLen),
		Volume:   Clean(s.Volume, MaxVolumeLen),
		Notes:    Clean(s.Notes, MaxNotesLen),
		Honeypot: Clean(s.Honeypot, MaxHoneypotLen),
	}
}

// ClassifiedSource returns the normalized source, defaulting an empty value to coming-soon.
func (s Submission) ClassifiedSource() Source {
	if strings.TrimSpace(s.Source) == "" {
		return SourceComingSoon
	}
	return NormalizeSource(s.Source)
}

// ClassifiedIntent returns the normalized intent or "".
func (s Submission) ClassifiedIntent() Intent {
	return NormalizeIntent(s.Intent)
}

package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Source identifies the page or funnel that produced a submission.
type Source string

// Known sources. Anything else is bucketed as SourceOther.
const (
	SourceComingSoon Source = "coming-soon"
	SourceTrust      Source = "trust"
	SourceSolutions  Source = "solutions"
	SourceOther      Source = "other"
)

// Intent identifies the outcome a prospect asked for. The zero value means no intent.
type Intent string

// Known intents.
const (
	IntentEarlyAccess      Intent = "early-access"
	IntentVerificationPack Intent = "verification-pack"
)

// WaitlistRecord is one waitlist submission (a lead) as persisted in the collection.
type WaitlistRecord struct {
	ID        string     `json:"id,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`

	// Ops fields, only touched by the internal ops surface
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty"`
	ReviewedBy      string     `json:"reviewedBy,omitempty"`
	ReviewNote      string     `json:"reviewNote,omitempty"`
	LastContactedAt *time.Time `json:"lastContactedAt,omitempty"`

	// First-touch attribution, immutable after creation
	Source Source `json:"source,omitempty"`
	Intent Intent `json:"intent,omitempty"`

	// Last-touch attribution, overwritten on every merge
	LastSource Source `json:"lastSource,omitempty"`
	LastIntent Intent `json:"lastIntent,omitempty"`

	Email    string `json:"email"`
	FullName string `json:"fullName,omitempty"`
	Company  string `json:"company,omitempty"`
	Role     string `json:"role,omitempty"`
	Location string `json:"location,omitempty"`
	Module   string `json:"module,omitempty"`
	Volume   string `json:"volume,omitempty"`
	Notes    string `json:"notes,omitempty"`

	UserAgent string `json:"userAgent,omitempty"`
	IP        string `json:"ip,omitempty"`

	// RawTimes keeps timestamp values that did not parse, keyed by JSON field
	// name. They are written back verbatim while the typed field stays nil.
	RawTimes map[string]string `json:"-"`
}

// Timestamp field names.
const (
	FieldCreatedAt       = "createdAt"
	FieldUpdatedAt       = "updatedAt"
	FieldReviewedAt      = "reviewedAt"
	FieldLastContactedAt = "lastContactedAt"
)

var timeFieldOrder = []string{FieldCreatedAt, FieldUpdatedAt, FieldReviewedAt, FieldLastContactedAt}

// IsReviewed reports whether an operator has marked the record reviewed.
func (r WaitlistRecord) IsReviewed() bool {
	return r.ReviewedAt != nil || r.RawTimes[FieldReviewedAt] != ""
}

// IsContacted reports whether the record has a last-contacted timestamp.
func (r WaitlistRecord) IsContacted() bool {
	return r.LastContactedAt != nil || r.RawTimes[FieldLastContactedAt] != ""
}

// ForgetRawTime drops the preserved raw value of field. The map is copied, so
// records sharing it with an earlier snapshot are left alone.
func (r *WaitlistRecord) ForgetRawTime(field string) {
	if _, ok := r.RawTimes[field]; !ok {
		return
	}
	var next map[string]string
	for k, v := range r.RawTimes {
		if k == field {
			continue
		}
		if next == nil {
			next = make(map[string]string, len(r.RawTimes)-1)
		}
		next[k] = v
	}
	r.RawTimes = next
}

func (r WaitlistRecord) typedTime(field string) *time.Time {
	switch field {
	case FieldCreatedAt:
		return r.CreatedAt
	case FieldUpdatedAt:
		return r.UpdatedAt
	case FieldReviewedAt:
		return r.ReviewedAt
	case FieldLastContactedAt:
		return r.LastContactedAt
	}
	return nil
}

// MarshalJSON writes the record with any preserved raw timestamps in place of
// the missing typed ones.
func (r WaitlistRecord) MarshalJSON() ([]byte, error) {
	type plain WaitlistRecord
	data, err := json.Marshal(plain(r))
	if err != nil || len(r.RawTimes) == 0 {
		return data, err
	}

	var buf bytes.Buffer
	buf.Write(data[:len(data)-1])
	for _, field := range timeFieldOrder {
		v := r.RawTimes[field]
		if v == "" || r.typedTime(field) != nil {
			continue
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"` + field + `":`)
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// LastActivity returns updatedAt, falling back to createdAt, or the zero time.
func (r WaitlistRecord) LastActivity() time.Time {
	if r.UpdatedAt != nil {
		return *r.UpdatedAt
	}
	if r.CreatedAt != nil {
		return *r.CreatedAt
	}
	return time.Time{}
}

// NormalizeSource maps a raw source value onto the known set.
func NormalizeSource(v string) Source {
	switch s := Source(strings.ToLower(strings.TrimSpace(v))); s {
	case SourceComingSoon, SourceTrust, SourceSolutions:
		return s
	default:
		return SourceOther
	}
}

// NormalizeIntent maps a raw intent value onto the known set; unknown values become "".
func NormalizeIntent(v string) Intent {
	switch i := Intent(strings.ToLower(strings.TrimSpace(v))); i {
	case IntentEarlyAccess, IntentVerificationPack:
		return i
	default:
		return ""
	}
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

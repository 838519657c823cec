package model

import (
	"fmt"
	"strings"
	"time"

	"gitlab.com/timkado/api/waitlist-ops/internal/apperrors"
)

// NormalizeRecord converts one loosely-typed element of the persisted document
// into a WaitlistRecord. Non-string optional values are treated as absent.
// Timestamps are read in the common layouts or as epoch milliseconds; a value
// in no known layout is kept verbatim in RawTimes. The legacy "ts" field backs
// createdAt when the canonical field is missing. A record without a usable
// email is rejected.
func NormalizeRecord(raw map[string]interface{}) (WaitlistRecord, error) {
	if raw == nil {
		return WaitlistRecord{}, fmt.Errorf("%w: record is not an object", apperrors.ErrValidation)
	}

	email := NormalizeEmail(stringField(raw, "email"))
	if email == "" {
		return WaitlistRecord{}, fmt.Errorf("%w: record has no usable email", apperrors.ErrValidation)
	}

	var rawTimes map[string]string
	readTime := func(key, field string) *time.Time {
		t, unparsed := timeField(raw, key)
		if unparsed != "" {
			if rawTimes == nil {
				rawTimes = make(map[string]string)
			}
			rawTimes[field] = unparsed
		}
		return t
	}

	createdAt := readTime(FieldCreatedAt, FieldCreatedAt)
	if createdAt == nil && rawTimes[FieldCreatedAt] == "" {
		createdAt = readTime("ts", FieldCreatedAt)
	}

	return WaitlistRecord{
		ID:        stringField(raw, "id"),
		CreatedAt: createdAt,
		UpdatedAt: readTime(FieldUpdatedAt, FieldUpdatedAt),

		ReviewedAt:      readTime(FieldReviewedAt, FieldReviewedAt),
		ReviewedBy:      stringField(raw, "reviewedBy"),
		ReviewNote:      stringField(raw, "reviewNote"),
		LastContactedAt: readTime(FieldLastContactedAt, FieldLastContactedAt),

		Source:     Source(stringField(raw, "source")),
		Intent:     Intent(stringField(raw, "intent")),
		LastSource: Source(stringField(raw, "lastSource")),
		LastIntent: Intent(stringField(raw, "lastIntent")),

		Email:    email,
		FullName: stringField(raw, "fullName"),
		Company:  stringField(raw, "company"),
		Role:     stringField(raw, "role"),
		Location: stringField(raw, "location"),
		Module:   stringField(raw, "module"),
		Volume:   stringField(raw, "volume"),
		Notes:    stringField(raw, "notes"),

		UserAgent: stringField(raw, "userAgent"),
		IP:        stringField(raw, "ip"),

		RawTimes: rawTimes,
	}, nil
}

func stringField(raw map[string]interface{}, key string) string {
	s, _ := raw[key].(string)
	return s
}

// timeLayouts are tried in order for string timestamps. Layouts without a zone
// are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	time.UnixDate,
	time.ANSIC,
}

// timeField reads raw[key] as a timestamp. It returns the parsed UTC time, or
// the trimmed string when the value is a non-empty string in no known layout.
func timeField(raw map[string]interface{}, key string) (*time.Time, string) {
	switch v := raw[key].(type) {
	case float64:
		t := time.UnixMilli(int64(v)).UTC()
		return &t, ""
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, ""
		}
		if t, ok := parseTime(s); ok {
			return &t, ""
		}
		return nil, s
	default:
		return nil, ""
	}
}

func parseTime(s string) (time.Time, bool) {
	// Browser-formatted dates end with the zone name in parentheses
	if i := strings.Index(s, " ("); i > 0 && strings.HasSuffix(s, ")") {
		s = s[:i]
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

package model

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"gitlab.com/timkado/api/waitlist-ops/pkg/utils"
)

var (
	fakeSources = []string{string(SourceComingSoon), string(SourceTrust), string(SourceSolutions), "newsletter"}
	fakeIntents = []string{string(IntentEarlyAccess), string(IntentVerificationPack), ""}
	fakeRoles   = []string{"auditor", "enterprise", "isp", "partner", "founder", ""}
	fakeModules = []string{"core-transit", "edge-fiber", "voice-sip", ""}
)

// NewSubmission creates a submission populated with fake but valid data.
func NewSubmission() Submission {
	return Submission{
		Email:    gofakeit.Email(),
		Source:   gofakeit.RandomString(fakeSources),
		Intent:   gofakeit.RandomString(fakeIntents),
		FullName: gofakeit.Name(),
		Company:  gofakeit.Company(),
		Role:     gofakeit.RandomString(fakeRoles),
		Location: gofakeit.City(),
		Module:   gofakeit.RandomString(fakeModules),
		Volume:   gofakeit.RandomString([]string{"<10 sites", "10-50 sites", "50+ sites", ""}),
		Notes:    gofakeit.Sentence(gofakeit.Number(0, 30)),
	}
}

// NewRecord creates a persisted-looking record with fake data. Overrides are
// applied field by field when non-empty.
func NewRecord(overrideDefaults ...*WaitlistRecord) *WaitlistRecord {
	created := utils.Now().Add(-time.Duration(gofakeit.Number(1, 500)) * time.Hour)
	updated := created.Add(time.Duration(gofakeit.Number(0, 48)) * time.Hour)
	sub := NewSubmission()

	base := &WaitlistRecord{
		ID:         gofakeit.UUID(),
		CreatedAt:  &created,
		UpdatedAt:  &updated,
		Source:     sub.ClassifiedSource(),
		Intent:     sub.ClassifiedIntent(),
		LastSource: sub.ClassifiedSource(),
		LastIntent: sub.ClassifiedIntent(),
		Email:      NormalizeEmail(sub.Email),
		FullName:   sub.FullName,
		Company:    sub.Company,
		Role:       sub.Role,
		Location:   sub.Location,
		Module:     sub.Module,
		Volume:     sub.Volume,
		Notes:      sub.Notes,
		UserAgent:  gofakeit.UserAgent(),
		IP:         gofakeit.IPv4Address(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.Email != "" {
			base.Email = ovr.Email
		}
		if ovr.Intent != "" {
			base.Intent = ovr.Intent
		}
		if ovr.Module != "" {
			base.Module = ovr.Module
		}
		if ovr.Role != "" {
			base.Role = ovr.Role
		}
		if ovr.Source != "" {
			base.Source = ovr.Source
		}
		if ovr.CreatedAt != nil {
			base.CreatedAt = ovr.CreatedAt
		}
		if ovr.UpdatedAt != nil {
			base.UpdatedAt = ovr.UpdatedAt
		}
		base.ReviewedAt = ovr.ReviewedAt
		base.LastContactedAt = ovr.LastContactedAt
	}

	return base
}

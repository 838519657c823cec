package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/waitlist-ops/internal/apperrors"
	"gitlab.com/timkado/api/waitlist-ops/internal/model"
	"gitlab.com/timkado/api/waitlist-ops/internal/observer"
	storagemock "gitlab.com/timkado/api/waitlist-ops/internal/storage/mock"
)

var testMeta = model.RequestMeta{UserAgent: "Mozilla/5.0", IP: "203.0.113.7"}

func TestSubmit_RepeatedIdentityCollapses(t *testing.T) {
	svc, store, _ := newFileBackedService(t)
	ctx := testContext(t)

	sub := model.Submission{Email: "Lead@Example.com", Intent: "verification-pack", Module: "edge-fiber", Source: "trust"}

	first, err := svc.Submit(ctx, sub, testMeta)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, first.Status)
	assert.Equal(t, "rec-1", first.RecordID)

	records, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	createdAt := *records[0].CreatedAt

	for i := 0; i < 4; i++ {
		res, err := svc.Submit(ctx, sub, testMeta)
		require.NoError(t, err)
		assert.Equal(t, StatusMerged, res.Status)
		assert.Equal(t, first.RecordID, res.RecordID)
	}

	records, err = store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, createdAt, *records[0].CreatedAt)
	assert.True(t, records[0].UpdatedAt.After(createdAt))
	assert.Equal(t, "lead@example.com", records[0].Email)
}

func TestSubmit_DedupeTiering(t *testing.T) {
	ctx := testContext(t)

	t.Run("different intent without module creates a second record", func(t *testing.T) {
		svc, store, _ := newFileBackedService(t)

		_, err := svc.Submit(ctx, model.Submission{Email: "a@x.com", Intent: "early-access"}, testMeta)
		require.NoError(t, err)
		res, err := svc.Submit(ctx, model.Submission{Email: "a@x.com", Intent: "verification-pack"}, testMeta)
		require.NoError(t, err)
		assert.Equal(t, StatusCreated, res.Status)

		records, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("different module with same intent creates a second record", func(t *testing.T) {
		svc, store, _ := newFileBackedService(t)

		_, err := svc.Submit(ctx, model.Submission{Email: "a@x.com", Intent: "early-access", Module: "voice-sip"}, testMeta)
		require.NoError(t, err)
		_, err = svc.Submit(ctx, model.Submission{Email: "a@x.com", Intent: "early-access", Module: "edge-fiber"}, testMeta)
		require.NoError(t, err)

		records, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("module only matches on module", func(t *testing.T) {
		svc, store, _ := newFileBackedService(t)

		_, err := svc.Submit(ctx, model.Submission{Email: "a@x.com", Intent: "early-access", Module: "voice-sip"}, testMeta)
		require.NoError(t, err)
		res, err := svc.Submit(ctx, model.Submission{Email: "a@x.com", Module: "voice-sip"}, testMeta)
		require.NoError(t, err)
		assert.Equal(t, StatusMerged, res.Status)

		records, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("no intent and no module merges into any record for the email", func(t *testing.T) {
		svc, store, _ := newFileBackedService(t)

		_, err := svc.Submit(ctx, model.Submission{Email: "a@x.com", Intent: "early-access"}, testMeta)
		require.NoError(t, err)
		_, err = svc.Submit(ctx, model.Submission{Email: "a@x.com", Intent: "verification-pack"}, testMeta)
		require.NoError(t, err)

		res, err := svc.Submit(ctx, model.Submission{Email: "a@x.com"}, testMeta)
		require.NoError(t, err)
		assert.Equal(t, StatusMerged, res.Status)
		// the most recently touched record sits first, so it is the one matched
		assert.Equal(t, "rec-2", res.RecordID)

		records, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("unknown intent is treated as absent", func(t *testing.T) {
		svc, store, _ := newFileBackedService(t)

		_, err := svc.Submit(ctx, model.Submission{Email: "a@x.com", Intent: "early-access"}, testMeta)
		require.NoError(t, err)
		res, err := svc.Submit(ctx, model.Submission{Email: "a@x.com", Intent: "beta"}, testMeta)
		require.NoError(t, err)
		assert.Equal(t, StatusMerged, res.Status)

		records, err := store.Load(ctx)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, model.IntentEarlyAccess, records[0].Intent)
		assert.Equal(t, model.Intent(""), records[0].LastIntent)
	})
}

func TestSubmit_MergeSemantics(t *testing.T) {
	svc, store, _ := newFileBackedService(t)
	ctx := testContext(t)

	_, err := svc.Submit(ctx, model.Submission{
		Email:    "ops@acme.io",
		Source:   "trust",
		Intent:   "early-access",
		FullName: "Ada Lovelace",
		Company:  "Acme",
		Notes:    "first note",
	}, testMeta)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, model.Submission{Email: "other@acme.io"}, testMeta)
	require.NoError(t, err)

	res, err := svc.Submit(ctx, model.Submission{
		Email:    "OPS@acme.io ",
		Source:   "solutions",
		Intent:   "early-access",
		Company:  "Acme Telecom",
		Role:     "isp",
		FullName: "   ",
	}, model.RequestMeta{UserAgent: "curl/8", IP: "198.51.100.1"})
	require.NoError(t, err)
	assert.Equal(t, StatusMerged, res.Status)

	records, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	merged := records[0]
	assert.Equal(t, res.RecordID, merged.ID, "merged record moves to the front")
	assert.Equal(t, model.SourceTrust, merged.Source)
	assert.Equal(t, model.IntentEarlyAccess, merged.Intent)
	assert.Equal(t, model.SourceSolutions, merged.LastSource)
	assert.Equal(t, model.IntentEarlyAccess, merged.LastIntent)
	assert.Equal(t, "Ada Lovelace", merged.FullName)
	assert.Equal(t, "Acme Telecom", merged.Company)
	assert.Equal(t, "isp", merged.Role)
	assert.Equal(t, "first note", merged.Notes)
	assert.Equal(t, testMeta.UserAgent, merged.UserAgent)
	assert.Equal(t, testMeta.IP, merged.IP)

	assert.Equal(t, "other@acme.io", records[1].Email)
}

func TestSubmit_FirstTouchImmutable(t *testing.T) {
	svc, store, _ := newFileBackedService(t)
	ctx := testContext(t)

	_, err := svc.Submit(ctx, model.Submission{Email: "a@b.co", Source: "", Intent: "verification-pack"}, testMeta)
	require.NoError(t, err)

	for _, src := range []string{"trust", "solutions", "newsletter"} {
		_, err := svc.Submit(ctx, model.Submission{Email: "a@b.co", Source: src, Intent: "verification-pack"}, testMeta)
		require.NoError(t, err)

		records, err := store.Load(ctx)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, model.SourceComingSoon, records[0].Source)
		assert.Equal(t, model.IntentVerificationPack, records[0].Intent)
		assert.Equal(t, model.NormalizeSource(src), records[0].LastSource)
	}
}

func TestSubmit_RejectsBadEmail(t *testing.T) {
	svc, store, _ := newFileBackedService(t)
	ctx := testContext(t)

	_, err := svc.Submit(ctx, model.Submission{Email: "seed@example.com"}, testMeta)
	require.NoError(t, err)

	for _, email := range []string{"not-an-email", "", "a@b", "a b@c.de"} {
		res, err := svc.Submit(ctx, model.Submission{Email: email}, testMeta)
		assert.True(t, apperrors.IsValidationError(err), email)
		assert.Equal(t, StatusRejected, res.Status)
	}

	records, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSubmit_HoneypotIsSilent(t *testing.T) {
	observer.InitMetrics(true)
	svc, store, _ := newFileBackedService(t)
	ctx := testContext(t)
	suppressed := observer.IntakeSubmissionsTotal.WithLabelValues(outcomeSuppressed, "unknown")
	before := testutil.ToFloat64(suppressed)

	res, err := svc.Submit(ctx, model.Submission{Email: "a@b.com", Honeypot: "http://spam"}, testMeta)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, res.Status)
	assert.Empty(t, res.RecordID)

	// honeypot wins even over an invalid email
	res, err = svc.Submit(ctx, model.Submission{Email: "junk", Honeypot: "x"}, testMeta)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, res.Status)
	assert.Empty(t, res.RecordID)
	assert.Equal(t, before+2, testutil.ToFloat64(suppressed))

	records, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSubmit_StoreFailures(t *testing.T) {
	ctx := testContext(t)

	t.Run("load error", func(t *testing.T) {
		store := new(storagemock.StoreMock)
		store.On("WithLock", mock.Anything).Return(nil)
		store.On("Load", mock.Anything).Return(nil, apperrors.ErrDatabase)
		svc := NewWaitlistService(store)

		res, err := svc.Submit(ctx, model.Submission{Email: "a@b.co"}, testMeta)
		assert.Equal(t, StatusError, res.Status)
		assert.True(t, apperrors.IsInternalError(err))
		assert.False(t, errors.Is(err, apperrors.ErrDatabase), "internal detail must not leak")
		store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("lock rejected", func(t *testing.T) {
		store := new(storagemock.StoreMock)
		store.On("WithLock", mock.Anything).Return(apperrors.ErrTimeout)
		svc := NewWaitlistService(store)

		res, err := svc.Submit(ctx, model.Submission{Email: "a@b.co"}, testMeta)
		assert.Equal(t, StatusError, res.Status)
		assert.True(t, apperrors.IsInternalError(err))
		store.AssertNotCalled(t, "Load", mock.Anything)
	})

	t.Run("panic during save is recovered", func(t *testing.T) {
		store := new(storagemock.StoreMock)
		store.On("WithLock", mock.Anything).Return(nil)
		store.On("Load", mock.Anything).Return([]model.WaitlistRecord{}, nil)
		store.On("Save", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			panic("disk on fire")
		})
		svc := NewWaitlistService(store)

		var res IntakeResult
		var err error
		assert.NotPanics(t, func() {
			res, err = svc.Submit(context.Background(), model.Submission{Email: "a@b.co"}, testMeta)
		})
		assert.Equal(t, StatusError, res.Status)
		assert.True(t, apperrors.IsInternalError(err))
	})
}

func TestSubmit_CreatesWithTelemetryAndDefaults(t *testing.T) {
	store := new(storagemock.StoreMock)
	store.On("WithLock", mock.Anything).Return(nil)
	store.On("Load", mock.Anything).Return([]model.WaitlistRecord{{ID: "old", Email: "old@example.com"}}, nil)

	var saved []model.WaitlistRecord
	store.On("Save", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).([]model.WaitlistRecord)
	}).Return(nil)

	clock := newFakeClock()
	svc := NewWaitlistService(store, WithClock(clock.Now), WithIDGenerator(func() string { return "fixed-id" }))

	res, err := svc.Submit(testContext(t), model.Submission{Email: "new@example.com", Source: "partner-site", Notes: "  hi  "}, testMeta)
	require.NoError(t, err)
	assert.Equal(t, IntakeResult{Status: StatusCreated, RecordID: "fixed-id"}, res)

	require.Len(t, saved, 2)
	rec := saved[0]
	assert.Equal(t, "fixed-id", rec.ID)
	assert.Equal(t, model.SourceOther, rec.Source)
	assert.Equal(t, model.SourceOther, rec.LastSource)
	assert.Equal(t, "hi", rec.Notes)
	assert.Equal(t, testMeta.UserAgent, rec.UserAgent)
	assert.Equal(t, testMeta.IP, rec.IP)
	require.NotNil(t, rec.CreatedAt)
	require.NotNil(t, rec.UpdatedAt)
	assert.Equal(t, *rec.CreatedAt, *rec.UpdatedAt)
	assert.Equal(t, "old", saved[1].ID)
	store.AssertExpectations(t)
}

func TestFindMatch(t *testing.T) {
	records := []model.WaitlistRecord{
		{ID: "1", Email: "a@x.com", Intent: model.IntentEarlyAccess, Module: "m1"},
		{ID: "2", Email: "a@x.com", Intent: model.IntentVerificationPack},
		{ID: "3", Email: "a@x.com", Module: "m2"},
		{ID: "4", Email: "b@x.com"},
	}

	tests := []struct {
		name     string
		email    string
		intent   model.Intent
		module   string
		expected int
	}{
		{"intent and module", "a@x.com", model.IntentEarlyAccess, "m1", 0},
		{"intent and module mismatch", "a@x.com", model.IntentEarlyAccess, "m2", -1},
		{"intent only", "a@x.com", model.IntentVerificationPack, "", 1},
		{"module only", "a@x.com", "", "m2", 2},
		{"neither", "a@x.com", "", "", 0},
		{"other email", "c@x.com", "", "", -1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, findMatch(records, tc.email, tc.intent, tc.module))
		})
	}
}

func readDocument(t *testing.T, path string) map[string]map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var docs []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &docs))
	byID := make(map[string]map[string]interface{}, len(docs))
	for _, d := range docs {
		byID[d["id"].(string)] = d
	}
	return byID
}

func TestSubmit_MergeKeepsLegacyTimestamps(t *testing.T) {
	svc, store, _ := newFileBackedService(t)
	ctx := testContext(t)

	seed := `[
		{"id":"x1","email":"a@x.com","createdAt":"2024-01-05 10:00:00","source":"trust"},
		{"id":"x2","email":"b@x.com","ts":"launch day","reviewedAt":"last week","updatedAt":"soon"}
	]`
	require.NoError(t, os.WriteFile(store.Path(), []byte(seed), 0o644))

	res, err := svc.Submit(ctx, model.Submission{Email: "a@x.com"}, testMeta)
	require.NoError(t, err)
	assert.Equal(t, StatusMerged, res.Status)
	assert.Equal(t, "x1", res.RecordID)

	res, err = svc.Submit(ctx, model.Submission{Email: "b@x.com"}, testMeta)
	require.NoError(t, err)
	assert.Equal(t, "x2", res.RecordID)

	docs := readDocument(t, store.Path())
	assert.Equal(t, "2024-01-05T10:00:00Z", docs["x1"]["createdAt"])
	assert.Equal(t, "trust", docs["x1"]["source"])
	assert.Equal(t, "launch day", docs["x2"]["createdAt"])
	assert.Equal(t, "last week", docs["x2"]["reviewedAt"])
	assert.NotEqual(t, "soon", docs["x2"]["updatedAt"])
	assert.NotContains(t, docs["x2"], "ts")

	records, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "x2", records[0].ID)
	assert.True(t, records[0].IsReviewed())
	require.NotNil(t, records[1].CreatedAt)
	assert.Equal(t, time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC), *records[1].CreatedAt)

	_, err = svc.SetReviewed(ctx, "x2", false, "", "")
	require.NoError(t, err)
	docs = readDocument(t, store.Path())
	assert.NotContains(t, docs["x2"], "reviewedAt")
	assert.Equal(t, "launch day", docs["x2"]["createdAt"])
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/waitlist-ops/internal/apperrors"
	"gitlab.com/timkado/api/waitlist-ops/internal/model"
	"gitlab.com/timkado/api/waitlist-ops/internal/observer"
	"gitlab.com/timkado/api/waitlist-ops/internal/validator"
	"gitlab.com/timkado/api/waitlist-ops/pkg/logger"
	"gitlab.com/timkado/api/waitlist-ops/pkg/utils"
)

// IntakeStatus is the terminal state of one submission.
type IntakeStatus string

const (
	StatusCreated  IntakeStatus = "created"
	StatusMerged   IntakeStatus = "merged"
	StatusRejected IntakeStatus = "rejected"
	StatusError    IntakeStatus = "error"
)

// outcomeSuppressed labels honeypot hits in logs and metrics only. Callers get
// StatusCreated without a record ID.
const outcomeSuppressed = "suppressed"

// IntakeResult is the outcome of Submit.
type IntakeResult struct {
	Status   IntakeStatus `json:"status"`
	RecordID string       `json:"recordId,omitempty"`
}

// Submit runs one public submission through spam filtering, validation,
// classification and dedupe, then persists the created or merged record.
func (s *WaitlistService) Submit(ctx context.Context, sub model.Submission, meta model.RequestMeta) (IntakeResult, error) {
	log := logger.FromContext(ctx)
	start := time.Now()
	sub = sub.Cleaned()

	if sub.Honeypot != "" {
		log.Info("Honeypot field filled, suppressing submission", zap.String("ip", meta.IP))
		observer.IncIntakeSubmission(outcomeSuppressed, "")
		return IntakeResult{Status: StatusCreated}, nil
	}

	if err := validator.Validate(sub); err != nil {
		log.Info("Rejected waitlist submission", zap.String("email", sub.Email), zap.Error(err))
		observer.IncIntakeSubmission(string(StatusRejected), "")
		return IntakeResult{Status: StatusRejected}, fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}

	source := sub.ClassifiedSource()
	intent := sub.ClassifiedIntent()

	var result IntakeResult
	err := utils.WrapWithContextRecovery(func(ctx context.Context) error {
		return s.store.WithLock(ctx, func(ctx context.Context) error {
			records, err := s.store.Load(ctx)
			if err != nil {
				return err
			}

			now := s.timestamp()
			if idx := findMatch(records, sub.Email, intent, sub.Module); idx >= 0 {
				merged := mergeSubmission(records[idx], sub, source, intent, meta, now)
				records = moveToFront(records, idx, merged)
				result = IntakeResult{Status: StatusMerged, RecordID: merged.ID}
			} else {
				created := newRecord(s.newID(), sub, source, intent, meta, now)
				records = append([]model.WaitlistRecord{created}, records...)
				result = IntakeResult{Status: StatusCreated, RecordID: created.ID}
			}

			return s.store.Save(ctx, records)
		})
	})(ctx)
	if err != nil {
		log.Error("Failed to process waitlist submission",
			zap.String("email", sub.Email),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		observer.IncIntakeSubmission(string(StatusError), string(source))
		return IntakeResult{Status: StatusError}, fmt.Errorf("%w: could not process submission", apperrors.ErrInternal)
	}

	log.Info("Processed waitlist submission",
		zap.String("status", string(result.Status)),
		zap.String("record_id", result.RecordID),
		zap.String("email", sub.Email),
		zap.String("source", string(source)),
		zap.String("intent", string(intent)),
		zap.Duration("duration", time.Since(start)),
	)
	observer.IncIntakeSubmission(string(result.Status), string(source))
	return result, nil
}

// findMatch returns the index of the record sharing the submission's identity, or -1.
//
// With intent and module both present the match needs both equal; with only one
// present that one must be equal; with neither any record for the email matches.
// So an intent-only submission never merges into a record with a different
// intent, while a bare submission merges into the first record for the email.
func findMatch(records []model.WaitlistRecord, email string, intent model.Intent, module string) int {
	for i, r := range records {
		if model.NormalizeEmail(r.Email) != email {
			continue
		}
		switch {
		case intent != "" && module != "":
			if r.Intent == intent && r.Module == module {
				return i
			}
		case intent != "":
			if r.Intent == intent {
				return i
			}
		case module != "":
			if r.Module == module {
				return i
			}
		default:
			return i
		}
	}
	return -1
}

func mergeSubmission(prev model.WaitlistRecord, sub model.Submission, source model.Source, intent model.Intent, meta model.RequestMeta, now *time.Time) model.WaitlistRecord {
	next := prev
	next.UpdatedAt = now
	next.ForgetRawTime(model.FieldUpdatedAt)

	if next.Source == "" {
		next.Source = source
	}
	if next.Intent == "" {
		next.Intent = intent
	}
	next.LastSource = source
	next.LastIntent = intent

	overwrite(&next.FullName, sub.FullName)
	overwrite(&next.Company, sub.Company)
	overwrite(&next.Role, sub.Role)
	overwrite(&next.Location, sub.Location)
	overwrite(&next.Module, sub.Module)
	overwrite(&next.Volume, sub.Volume)
	overwrite(&next.Notes, sub.Notes)

	if next.UserAgent == "" {
		next.UserAgent = meta.UserAgent
	}
	if next.IP == "" {
		next.IP = meta.IP
	}
	return next
}

func newRecord(id string, sub model.Submission, source model.Source, intent model.Intent, meta model.RequestMeta, now *time.Time) model.WaitlistRecord {
	created := *now
	return model.WaitlistRecord{
		ID:         id,
		CreatedAt:  &created,
		UpdatedAt:  now,
		Source:     source,
		Intent:     intent,
		LastSource: source,
		LastIntent: intent,
		Email:      sub.Email,
		FullName:   sub.FullName,
		Company:    sub.Company,
		Role:       sub.Role,
		Location:   sub.Location,
		Module:     sub.Module,
		Volume:     sub.Volume,
		Notes:      sub.Notes,
		UserAgent:  meta.UserAgent,
		IP:         meta.IP,
	}
}

func overwrite(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// moveToFront returns a new slice with rec first and the old position removed.
func moveToFront(records []model.WaitlistRecord, idx int, rec model.WaitlistRecord) []model.WaitlistRecord {
	next := make([]model.WaitlistRecord, 0, len(records))
	next = append(next, rec)
	next = append(next, records[:idx]...)
	return append(next, records[idx+1:]...)
}

package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/waitlist-ops/internal/apperrors"
	"gitlab.com/timkado/api/waitlist-ops/internal/model"
	"gitlab.com/timkado/api/waitlist-ops/internal/observer"
	"gitlab.com/timkado/api/waitlist-ops/internal/reqctx"
	"gitlab.com/timkado/api/waitlist-ops/internal/validator"
	"gitlab.com/timkado/api/waitlist-ops/pkg/logger"
)

// Ops action names used in logs and metrics.
const (
	ActionReview    = "review"
	ActionContacted = "contacted"
	ActionContact   = "contact"
	ActionBackfill  = "backfill_ids"
)

// SetReviewed sets or clears reviewedAt on one record. reviewer and note are
// stored when non-empty; an empty reviewer falls back to the operator on the
// context when marking reviewed. Clearing keeps the previous reviewer and note.
func (s *WaitlistService) SetReviewed(ctx context.Context, id string, reviewed bool, reviewer, note string) (model.WaitlistRecord, error) {
	reviewer = model.Clean(reviewer, model.MaxFullNameLen)
	note = model.Clean(note, model.MaxNotesLen)
	if reviewed && reviewer == "" {
		reviewer, _ = reqctx.OperatorFromContext(ctx)
	}

	return s.mutate(ctx, ActionReview, id, func(rec *model.WaitlistRecord, now *time.Time) {
		if reviewed {
			rec.ReviewedAt = now
		} else {
			rec.ReviewedAt = nil
		}
		rec.ForgetRawTime(model.FieldReviewedAt)
		overwrite(&rec.ReviewedBy, reviewer)
		overwrite(&rec.ReviewNote, note)
	})
}

// SetContacted sets lastContactedAt to now, or clears it.
func (s *WaitlistService) SetContacted(ctx context.Context, id string, contacted bool) (model.WaitlistRecord, error) {
	return s.mutate(ctx, ActionContacted, id, func(rec *model.WaitlistRecord, now *time.Time) {
		if contacted {
			rec.LastContactedAt = now
		} else {
			rec.LastContactedAt = nil
		}
		rec.ForgetRawTime(model.FieldLastContactedAt)
	})
}

// RecordContact marks a record as contacted now. Only the latest timestamp is kept.
func (s *WaitlistService) RecordContact(ctx context.Context, id string) (model.WaitlistRecord, error) {
	return s.mutate(ctx, ActionContact, id, func(rec *model.WaitlistRecord, now *time.Time) {
		rec.LastContactedAt = now
		rec.ForgetRawTime(model.FieldLastContactedAt)
	})
}

// mutate applies fn to the record with the given id under the store lock and
// saves the collection without reordering it.
func (s *WaitlistService) mutate(ctx context.Context, action, id string, fn func(rec *model.WaitlistRecord, now *time.Time)) (model.WaitlistRecord, error) {
	log := logger.FromContext(ctx).With(zap.String("action", action))
	id = model.Clean(id, model.MaxOpsIDLen)
	if validator.ValidateVar(id, "required") != nil {
		err := fmt.Errorf("%w: missing id", apperrors.ErrValidation)
		observer.IncOpsAction(action, err)
		return model.WaitlistRecord{}, err
	}

	var updated model.WaitlistRecord
	err := s.store.WithLock(ctx, func(ctx context.Context) error {
		records, err := s.store.Load(ctx)
		if err != nil {
			return err
		}

		idx := indexByID(records, id)
		if idx < 0 {
			return fmt.Errorf("%w: waitlist record %s", apperrors.ErrNotFound, id)
		}

		next := append([]model.WaitlistRecord(nil), records...)
		now := s.timestamp()
		rec := next[idx]
		fn(&rec, now)
		rec.UpdatedAt = now
		rec.ForgetRawTime(model.FieldUpdatedAt)
		next[idx] = rec
		updated = rec

		return s.store.Save(ctx, next)
	})
	observer.IncOpsAction(action, err)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			log.Warn("Ops action on unknown record", zap.String("record_id", id))
		} else {
			log.Error("Ops action failed", zap.String("record_id", id), zap.Error(err))
		}
		return model.WaitlistRecord{}, err
	}

	log.Info("Applied ops action", zap.String("record_id", id))
	return updated, nil
}

func indexByID(records []model.WaitlistRecord, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// BackfillIDs assigns IDs to records that have none and saves only when at
// least one record changed. It returns the number of records changed.
func (s *WaitlistService) BackfillIDs(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx).With(zap.String("action", ActionBackfill))
	changed := 0

	err := s.store.WithLock(ctx, func(ctx context.Context) error {
		records, err := s.store.Load(ctx)
		if err != nil {
			return err
		}

		next := append([]model.WaitlistRecord(nil), records...)
		for i := range next {
			if strings.TrimSpace(next[i].ID) != "" {
				continue
			}
			next[i].ID = s.newID()
			next[i].UpdatedAt = s.timestamp()
			next[i].ForgetRawTime(model.FieldUpdatedAt)
			changed++
		}

		if changed == 0 {
			return nil
		}
		return s.store.Save(ctx, next)
	})
	observer.IncOpsAction(ActionBackfill, err)
	if err != nil {
		log.Error("Failed to backfill record IDs", zap.Error(err))
		return 0, err
	}

	log.Info("Backfilled record IDs", zap.Int("changed", changed))
	return changed, nil
}

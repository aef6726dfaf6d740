package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rental-sync-backend/internal/model"
)

// Store defines the interface for all reservation persistence. It is the only
// surface allowed to touch status columns; callers express intent (create,
// refresh, transition, supersede) and the store keeps the audit trail in step.
type Store interface {
	Create(ctx context.Context, r *model.Reservation, reason string) error
	Refresh(ctx context.Context, id string, observedAt time.Time) error
	ConditionalTransition(ctx context.Context, id string, expected, next model.Status, reason string, supersededBy *string) (bool, error)
	Supersede(ctx context.Context, oldID string, expected model.Status, successor *model.Reservation, reason string) (bool, error)
	SetSyncVerdict(ctx context.Context, id string, verdict model.SyncStatus, details string, checkedAt time.Time) error
	SetExternalJob(ctx context.Context, id, jobID string) error

	ByID(ctx context.Context, id string) (*model.Reservation, error)
	ByExternalJob(ctx context.Context, jobID string) (*model.Reservation, error)
	LatestByUID(ctx context.Context, compositeUID string) (*model.Reservation, error)
	ActiveByUID(ctx context.Context, compositeUID string) ([]model.Reservation, error)
	ActiveByConflictKey(ctx context.Context, key string) ([]model.Reservation, error)
	ActiveBySource(ctx context.Context, sourceID string) ([]model.Reservation, error)
	History(ctx context.Context, id string) ([]model.Reservation, error)
	Transitions(ctx context.Context, compositeUID string) ([]model.TransitionLog, error)
	Query(ctx context.Context, f Filter) ([]model.Reservation, error)
	DuplicateActiveUIDs(ctx context.Context) ([]string, error)

	UpsertProperties(ctx context.Context, props []model.Property) error
	Properties(ctx context.Context) ([]model.Property, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db   *gorm.DB
	sink TransitionSink
}

// NewGormStore creates a new GORM-backed store. A nil sink disables
// transition events.
func NewGormStore(db *gorm.DB, sink TransitionSink) Store {
	return &gormStore{db: db, sink: sink}
}

// Create inserts a record and its creation transition atomically. Generates
// the record id when the caller left it empty.
func (s *gormStore) Create(ctx context.Context, r *model.Reservation, reason string) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(r).Error; err != nil {
			return fmt.Errorf("failed to create reservation %s: %w", r.CompositeUID, err)
		}
		return appendTransition(tx, r, "", r.Status, reason)
	})
	if err != nil {
		return err
	}
	s.emit(r, "", r.Status, reason)
	return nil
}

// Refresh bumps the last-observed timestamp of a materially identical
// re-observation. No transition is logged.
func (s *gormStore) Refresh(ctx context.Context, id string, observedAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("id = ?", id).
		Update("updated_at", observedAt.UTC())
	if res.Error != nil {
		return fmt.Errorf("failed to refresh reservation %s: %w", id, res.Error)
	}
	return nil
}

// ConditionalTransition moves a record from expected to next only if nothing
// else transitioned it first. Returns false when the claim misses; the caller
// treats that as "already updated" and moves on.
func (s *gormStore) ConditionalTransition(ctx context.Context, id string, expected, next model.Status, reason string, supersededBy *string) (bool, error) {
	var rec model.Reservation
	claimed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND status = ?", id, expected).First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("failed to load reservation %s: %w", id, err)
		}

		updates := map[string]any{"status": next}
		if supersededBy != nil {
			updates["superseded_by_id"] = *supersededBy
		}
		res := tx.Model(&model.Reservation{}).
			Where("id = ? AND status = ?", id, expected).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to transition reservation %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost the race after the read; same outcome as a missed claim.
			return nil
		}
		claimed = true
		return appendTransition(tx, &rec, expected, next, reason)
	})
	if err != nil || !claimed {
		return false, err
	}
	s.emit(&rec, expected, next, reason)
	return true, nil
}

// Supersede retires the old record and creates its successor in one
// transaction, linking both directions. Returns false without side effects
// when the old record was already transitioned elsewhere.
func (s *gormStore) Supersede(ctx context.Context, oldID string, expected model.Status, successor *model.Reservation, reason string) (bool, error) {
	if successor.ID == "" {
		successor.ID = uuid.NewString()
	}
	var prev model.Reservation
	claimed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND status = ?", oldID, expected).First(&prev).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("failed to load reservation %s: %w", oldID, err)
		}

		res := tx.Model(&model.Reservation{}).
			Where("id = ? AND status = ?", oldID, expected).
			Updates(map[string]any{"status": model.StatusOld, "superseded_by_id": successor.ID})
		if res.Error != nil {
			return fmt.Errorf("failed to retire reservation %s: %w", oldID, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		successor.SupersedesID = &prev.ID
		if err := tx.Create(successor).Error; err != nil {
			return fmt.Errorf("failed to create successor of %s: %w", oldID, err)
		}
		if err := appendTransition(tx, &prev, expected, model.StatusOld, reason); err != nil {
			return err
		}
		if err := appendTransition(tx, successor, "", successor.Status, reason); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil || !claimed {
		return false, err
	}
	s.emit(&prev, expected, model.StatusOld, reason)
	s.emit(successor, "", successor.Status, reason)
	return true, nil
}

// SetSyncVerdict records the schedule-sync evaluation outcome.
func (s *gormStore) SetSyncVerdict(ctx context.Context, id string, verdict model.SyncStatus, details string, checkedAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"sync_status":     verdict,
			"sync_details":    details,
			"sync_checked_at": checkedAt.UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to set sync verdict on %s: %w", id, res.Error)
	}
	return nil
}

// SetExternalJob links a reservation to its turnover appointment.
func (s *gormStore) SetExternalJob(ctx context.Context, id, jobID string) error {
	res := s.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("id = ?", id).
		Update("external_job_id", jobID)
	if res.Error != nil {
		return fmt.Errorf("failed to link job %s to reservation %s: %w", jobID, id, res.Error)
	}
	return nil
}

func (s *gormStore) ByID(ctx context.Context, id string) (*model.Reservation, error) {
	var rec model.Reservation
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load reservation %s: %w", id, err)
	}
	return &rec, nil
}

func (s *gormStore) ByExternalJob(ctx context.Context, jobID string) (*model.Reservation, error) {
	var rec model.Reservation
	err := s.db.WithContext(ctx).
		Where("external_job_id = ? AND status IN ?", jobID, model.ActiveStatuses).
		Order("updated_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load reservation for job %s: %w", jobID, err)
	}
	return &rec, nil
}

// LatestByUID returns the most recently updated record for a composite UID
// regardless of status, or nil when the UID has never been seen.
func (s *gormStore) LatestByUID(ctx context.Context, compositeUID string) (*model.Reservation, error) {
	var rec model.Reservation
	err := s.db.WithContext(ctx).
		Where("composite_uid = ?", compositeUID).
		Order("updated_at DESC, id").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load latest record for %s: %w", compositeUID, err)
	}
	return &rec, nil
}

// ActiveByUID returns all active records for a composite UID, most recently
// updated first. More than one element means the single-active invariant is
// broken; normal callers use the first.
func (s *gormStore) ActiveByUID(ctx context.Context, compositeUID string) ([]model.Reservation, error) {
	var recs []model.Reservation
	err := s.db.WithContext(ctx).
		Where("composite_uid = ? AND status IN ?", compositeUID, model.ActiveStatuses).
		Order("updated_at DESC, id").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active records for %s: %w", compositeUID, err)
	}
	return recs, nil
}

func (s *gormStore) ActiveByConflictKey(ctx context.Context, key string) ([]model.Reservation, error) {
	var recs []model.Reservation
	err := s.db.WithContext(ctx).
		Where("conflict_key = ? AND status IN ?", key, model.ActiveStatuses).
		Order("updated_at DESC, id").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load conflict candidates for %s: %w", key, err)
	}
	return recs, nil
}

func (s *gormStore) ActiveBySource(ctx context.Context, sourceID string) ([]model.Reservation, error) {
	var recs []model.Reservation
	err := s.db.WithContext(ctx).
		Where("source = ? AND status IN ?", sourceID, model.ActiveStatuses).
		Order("composite_uid, id").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active records for source %s: %w", sourceID, err)
	}
	return recs, nil
}

// History walks the supersede chain containing id and returns it oldest
// first. Links are followed by record id in both directions, so chains that
// cross composite UIDs (conflict losers) stay walkable.
func (s *gormStore) History(ctx context.Context, id string) ([]model.Reservation, error) {
	start, err := s.ByID(ctx, id)
	if err != nil || start == nil {
		return nil, err
	}

	seen := map[string]bool{start.ID: true}

	var back []model.Reservation
	for cur := start; cur.SupersedesID != nil; {
		prev, err := s.ByID(ctx, *cur.SupersedesID)
		if err != nil {
			return nil, err
		}
		if prev == nil || seen[prev.ID] {
			break
		}
		seen[prev.ID] = true
		back = append(back, *prev)
		cur = prev
	}

	chain := make([]model.Reservation, 0, len(back)+1)
	for i := len(back) - 1; i >= 0; i-- {
		chain = append(chain, back[i])
	}
	chain = append(chain, *start)

	for cur := start; cur.SupersededByID != nil; {
		next, err := s.ByID(ctx, *cur.SupersededByID)
		if err != nil {
			return nil, err
		}
		if next == nil || seen[next.ID] {
			break
		}
		seen[next.ID] = true
		chain = append(chain, *next)
		cur = next
	}
	return chain, nil
}

func (s *gormStore) Transitions(ctx context.Context, compositeUID string) ([]model.TransitionLog, error) {
	var logs []model.TransitionLog
	err := s.db.WithContext(ctx).
		Where("composite_uid = ?", compositeUID).
		Order("created_at, id").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load transitions for %s: %w", compositeUID, err)
	}
	return logs, nil
}

func (s *gormStore) Query(ctx context.Context, f Filter) ([]model.Reservation, error) {
	q := s.db.WithContext(ctx).Model(&model.Reservation{})
	if f.PropertyID != "" {
		q = q.Where("property_id = ?", f.PropertyID)
	}
	if f.Source != "" {
		q = q.Where("source = ?", f.Source)
	}
	if f.CompositeUID != "" {
		q = q.Where("composite_uid = ?", f.CompositeUID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	} else if f.ActiveOnly {
		q = q.Where("status IN ?", model.ActiveStatuses)
	}
	if f.CheckInFrom != nil {
		q = q.Where("check_in >= ?", *f.CheckInFrom)
	}
	if f.CheckInTo != nil {
		q = q.Where("check_in < ?", *f.CheckInTo)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	var recs []model.Reservation
	err := q.Order("check_in, composite_uid, id").
		Limit(limit).
		Offset(f.Offset).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	return recs, nil
}

// DuplicateActiveUIDs lists composite UIDs holding more than one active
// record, for the invariant audit.
func (s *gormStore) DuplicateActiveUIDs(ctx context.Context) ([]string, error) {
	var uids []string
	err := s.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("status IN ?", model.ActiveStatuses).
		Group("composite_uid").
		Having("COUNT(*) > 1").
		Order("composite_uid").
		Pluck("composite_uid", &uids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan for duplicate active records: %w", err)
	}
	return uids, nil
}

// UpsertProperties registers the properties seen in an ingestion pass.
func (s *gormStore) UpsertProperties(ctx context.Context, props []model.Property) error {
	if len(props) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "last_source", "updated_at"}),
	}).Create(&props).Error
	if err != nil {
		return fmt.Errorf("batch upsert properties failed: %w", err)
	}
	return nil
}

func (s *gormStore) Properties(ctx context.Context) ([]model.Property, error) {
	var props []model.Property
	if err := s.db.WithContext(ctx).Order("id").Find(&props).Error; err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	return props, nil
}

// appendTransition writes one audit row inside the caller's transaction.
func appendTransition(tx *gorm.DB, r *model.Reservation, old, next model.Status, reason string) error {
	row := model.TransitionLog{
		ReservationID: r.ID,
		CompositeUID:  r.CompositeUID,
		Source:        r.Source,
		OldStatus:     old,
		NewStatus:     next,
		Reason:        reason,
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to append transition for %s: %w", r.ID, err)
	}
	return nil
}

func (s *gormStore) emit(r *model.Reservation, old, next model.Status, reason string) {
	if s.sink == nil {
		return
	}
	s.sink(model.Transition{
		ReservationID: r.ID,
		CompositeUID:  r.CompositeUID,
		Source:        r.Source,
		OldStatus:     old,
		NewStatus:     next,
		Reason:        reason,
		At:            time.Now().UTC(),
	})
}

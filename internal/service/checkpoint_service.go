package service

import (
	"context"
	"errors"
	"math"
	"time"

	"gorm.io/gorm"

	"ai-canvas-demo/backend/internal/models"
	"ai-canvas-demo/backend/pkg/cache"
	"ai-canvas-demo/backend/pkg/logger"
)

// Sentinel errors surfaced by the checkpoint tracker
var (
	ErrOperationNotFound = errors.New("operation not found")
	ErrInvalidStatus     = errors.New("unknown operation status")
	ErrInvalidState      = errors.New("current step exceeds total steps")
)

// DefaultStalenessWindow is how long a running operation may go without a
// checkpoint before its status snapshot is flagged stale
const DefaultStalenessWindow = 2 * time.Minute

// statusRank orders the one-directional status transitions
var statusRank = map[string]int{
	models.OperationPending:   0,
	models.OperationRunning:   1,
	models.OperationCompleted: 2,
	models.OperationFailed:    2,
}

// OperationStatus is the derived read model returned to polling clients.
// EstimatedSecondsRemaining is nil (not zero) whenever an estimate would be
// meaningless: before the first step and once the operation is terminal.
type OperationStatus struct {
	OperationID               string     `json:"operation_id"`
	Status                    string     `json:"status"`
	ProgressPercent           int        `json:"progress_percent"`
	CurrentStep               int        `json:"current_step"`
	TotalSteps                int        `json:"total_steps"`
	CardsCreated              []string   `json:"cards_created"`
	EstimatedSecondsRemaining *int64     `json:"estimated_seconds_remaining"`
	Stale                     bool       `json:"stale"`
	CreatedAt                 time.Time  `json:"created_at"`
	UpdatedAt                 time.Time  `json:"updated_at"`
	Error                     *string    `json:"error"`
}

// CheckpointService tracks long-running operations through append-only
// checkpoint rows. The write path belongs to the external executor; reads
// reconstruct progress from the latest row.
type CheckpointService struct {
	db        *gorm.DB
	snapshots *cache.SnapshotCache
	staleness time.Duration
	log       *logger.Logger
}

// NewCheckpointService creates a checkpoint service. snapshots may be nil
// to disable status caching.
func NewCheckpointService(db *gorm.DB, snapshots *cache.SnapshotCache, log *logger.Logger) *CheckpointService {
	return &CheckpointService{
		db:        db,
		snapshots: snapshots,
		staleness: DefaultStalenessWindow,
		log:       log,
	}
}

// SetStalenessWindow overrides the stale-detection window
func (s *CheckpointService) SetStalenessWindow(d time.Duration) {
	if d > 0 {
		s.staleness = d
	}
}

// Latest returns the checkpoint row with the greatest updated_at for the
// operation, or ErrOperationNotFound when none exists.
func (s *CheckpointService) Latest(ctx context.Context, operationID string) (*models.OperationCheckpoint, error) {
	var cp models.OperationCheckpoint
	err := s.db.WithContext(ctx).
		Where("operation_id = ?", operationID).
		Order("updated_at DESC, id DESC").
		First(&cp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOperationNotFound
		}
		return nil, err
	}
	return &cp, nil
}

// Record appends a progress checkpoint on behalf of the external executor.
// Writes after a terminal status, backward status transitions, and step
// regressions while running are all treated as anomalous no-ops: logged,
// never surfaced as errors, and never persisted. A report whose current
// step exceeds a positive total is rejected with ErrInvalidState. The
// returned bool reports whether the checkpoint was actually written.
func (s *CheckpointService) Record(ctx context.Context, operationID, status string, state models.CheckpointState) (bool, error) {
	if _, ok := statusRank[status]; !ok {
		return false, ErrInvalidStatus
	}
	if state.TotalSteps > 0 && state.CurrentStep > state.TotalSteps {
		return false, ErrInvalidState
	}

	log := s.log.WithOperation(operationID)

	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev models.OperationCheckpoint
		err := tx.Where("operation_id = ?", operationID).
			Order("updated_at DESC, id DESC").
			First(&prev).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			// first checkpoint for this operation
		case err != nil:
			return err
		case prev.Terminal():
			log.Warn("checkpoint write after terminal status ignored",
				"terminal_status", prev.Status, "attempted_status", status)
			return nil
		case statusRank[status] < statusRank[prev.Status]:
			log.Warn("backward checkpoint status transition ignored",
				"from", prev.Status, "to", status)
			return nil
		case status == models.OperationRunning && state.CurrentStep < prev.State.CurrentStep:
			log.Warn("checkpoint step regression ignored",
				"from_step", prev.State.CurrentStep, "to_step", state.CurrentStep)
			return nil
		case prev.Status == models.OperationPending && statusRank[status] == statusRank[models.OperationCompleted]:
			// still applied; the executor jumped straight past running
			log.Warn("terminal checkpoint without a running edge", "to", status)
		}

		if err := tx.Create(&models.OperationCheckpoint{
			OperationID: operationID,
			Status:      status,
			State:       state,
		}).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if applied {
		if err := s.snapshots.Delete(ctx, statusCacheKey(operationID)); err != nil {
			log.Warn("failed to invalidate status snapshot", "error", err.Error())
		}
	}
	return applied, nil
}

// Status computes the derived progress snapshot for an operation from its
// latest checkpoint. Snapshots are served from the short-TTL cache when
// available.
func (s *CheckpointService) Status(ctx context.Context, operationID string) (*OperationStatus, error) {
	key := statusCacheKey(operationID)

	var cached OperationStatus
	if hit, err := s.snapshots.Get(ctx, key, &cached); err != nil {
		s.log.Warn("status snapshot cache read failed", "operation_id", operationID, "error", err.Error())
	} else if hit {
		return &cached, nil
	}

	cp, err := s.Latest(ctx, operationID)
	if err != nil {
		return nil, err
	}

	status := buildStatus(cp, time.Now(), s.staleness)
	if err := s.snapshots.Set(ctx, key, status); err != nil {
		s.log.Warn("status snapshot cache write failed", "operation_id", operationID, "error", err.Error())
	}
	return status, nil
}

func statusCacheKey(operationID string) string {
	return "opstatus:" + operationID
}

// buildStatus derives progress, ETA, and staleness from one checkpoint
func buildStatus(cp *models.OperationCheckpoint, now time.Time, staleness time.Duration) *OperationStatus {
	st := &OperationStatus{
		OperationID:  cp.OperationID,
		Status:       cp.Status,
		CurrentStep:  cp.State.CurrentStep,
		TotalSteps:   cp.State.TotalSteps,
		CardsCreated: cp.State.CardsCreated,
		CreatedAt:    cp.CreatedAt,
		UpdatedAt:    cp.UpdatedAt,
	}
	if st.CardsCreated == nil {
		st.CardsCreated = []string{}
	}
	if cp.State.Error != "" {
		msg := cp.State.Error
		st.Error = &msg
	}

	if cp.State.TotalSteps > 0 {
		st.ProgressPercent = int(math.Round(float64(cp.State.CurrentStep) / float64(cp.State.TotalSteps) * 100))
		// rows written before step validation existed may overshoot
		if st.ProgressPercent > 100 {
			st.ProgressPercent = 100
		}
	}

	// An estimate only makes sense mid-flight: after the first step, before
	// the last, and never once the operation has reached a terminal status.
	if !cp.Terminal() &&
		cp.State.StartedAt != nil &&
		cp.State.CurrentStep > 0 &&
		cp.State.CurrentStep < cp.State.TotalSteps {
		elapsed := now.Sub(*cp.State.StartedAt)
		if elapsed > 0 {
			perStep := elapsed / time.Duration(cp.State.CurrentStep)
			remaining := int64(perStep.Seconds() * float64(cp.State.TotalSteps-cp.State.CurrentStep))
			st.EstimatedSecondsRemaining = &remaining
		}
	}

	if cp.Status == models.OperationRunning && now.Sub(cp.UpdatedAt) > staleness {
		st.Stale = true
	}
	return st
}

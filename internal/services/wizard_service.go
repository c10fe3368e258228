package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"storeledger/internal/core"
	"storeledger/internal/storage"
)

// WizardService tracks the step-by-step capture flow. A session is a
// resumable bookmark over the wizard's steps; completing it publishes a
// snapshot through the snapshot service.
type WizardService struct {
	repo      *storage.Repository
	snapshots *SnapshotService
}

func NewWizardService(repo *storage.Repository, snapshots *SnapshotService) *WizardService {
	return &WizardService{
		repo:      repo,
		snapshots: snapshots,
	}
}

// Start opens a new wizard session for a store.
func (s *WizardService) Start(ctx context.Context, storeID int64, snapshotDate *core.Date) (core.WizardSession, error) {
	store, err := s.repo.Queries().GetStore(ctx, storeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WizardSession{}, core.NewNotFoundError("store", storeID)
		}
		return core.WizardSession{}, core.NewPersistenceError("get store", err)
	}
	if !store.Active {
		return core.WizardSession{}, core.NewValidationError("store_id", "store is inactive")
	}

	token := uuid.NewString()
	session, err := s.repo.Queries().CreateWizardSession(ctx, token, storeID, snapshotDate)
	if err != nil {
		return core.WizardSession{}, core.NewPersistenceError("create wizard session", err)
	}

	slog.InfoContext(ctx, "Started wizard session",
		"session_token", token,
		"store_id", storeID)
	return session, nil
}

// Get returns a session with all saved step payloads.
func (s *WizardService) Get(ctx context.Context, token string) (core.WizardSession, error) {
	session, err := s.repo.Queries().GetWizardSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WizardSession{}, core.NewNotFoundError("wizard session", token)
		}
		return core.WizardSession{}, core.NewPersistenceError("get wizard session", err)
	}
	steps, err := s.repo.Queries().ListWizardSteps(ctx, session.ID)
	if err != nil {
		return core.WizardSession{}, core.NewPersistenceError("list wizard steps", err)
	}
	session.Steps = steps
	return session, nil
}

// SaveStep stores one step's payload and advances the session bookmark. The
// bookmark only moves forward: revisiting an earlier step keeps the furthest
// step reached.
func (s *WizardService) SaveStep(ctx context.Context, token string, step int, payload json.RawMessage, snapshotDate *core.Date) (core.WizardSession, error) {
	if !core.StepValid(step) {
		return core.WizardSession{}, core.NewValidationError("step",
			fmt.Sprintf("step must be between 1 and %d", core.WizardStepCount))
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return core.WizardSession{}, core.NewValidationError("payload", "payload must be valid JSON")
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	session, err := s.Get(ctx, token)
	if err != nil {
		return core.WizardSession{}, err
	}
	if session.Completed() {
		return core.WizardSession{}, core.NewConflictError("wizard session is already completed")
	}

	bookmark := session.CurrentStep
	if step > bookmark {
		bookmark = step
	}

	err = s.repo.WithTx(ctx, func(q *storage.Queries) error {
		if err := q.UpsertWizardStep(ctx, session.ID, step, payload); err != nil {
			return core.NewPersistenceError("save wizard step", err)
		}
		if err := q.UpdateWizardProgress(ctx, session.ID, bookmark, snapshotDate); err != nil {
			return core.NewPersistenceError("advance wizard session", err)
		}
		return nil
	})
	if err != nil {
		return core.WizardSession{}, err
	}

	return s.Get(ctx, token)
}

// Complete publishes the session's submission as a completed snapshot and
// closes the session. The submission carries the final balances, assembled
// by the caller from the saved steps.
func (s *WizardService) Complete(ctx context.Context, token string, in SnapshotInput) (core.Snapshot, error) {
	session, err := s.Get(ctx, token)
	if err != nil {
		return core.Snapshot{}, err
	}
	if session.Completed() {
		return core.Snapshot{}, core.NewConflictError("wizard session is already completed")
	}
	if in.StoreID == 0 {
		in.StoreID = session.StoreID
	}
	if in.StoreID != session.StoreID {
		return core.Snapshot{}, core.NewValidationError("store_id", "submission store does not match session store")
	}
	if in.Date.IsZero() && session.SnapshotDate != nil {
		in.Date = *session.SnapshotDate
	}

	totals, err := s.snapshots.prepare(ctx, in)
	if err != nil {
		return core.Snapshot{}, err
	}

	// The snapshot and the session stamp commit or roll back together, so
	// an open session never coexists with its published snapshot.
	var snap core.Snapshot
	err = s.repo.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		snap, err = s.snapshots.publishTx(ctx, q, in, totals)
		if err != nil {
			return err
		}
		if err := q.CompleteWizardSession(ctx, session.ID, time.Now().UTC()); err != nil {
			return core.NewPersistenceError("complete wizard session", err)
		}
		return nil
	})
	if err != nil {
		return core.Snapshot{}, err
	}

	if err := s.snapshots.publishSnapshotMessage(ctx, snap.ID, snap.StoreID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish snapshot message",
			"snapshot_id", snap.ID, "error", err)
	}

	slog.InfoContext(ctx, "Completed wizard session",
		"session_token", token,
		"snapshot_id", snap.ID)
	return s.snapshots.Get(ctx, snap.ID)
}

package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"storeledger/internal/amqp"
	"storeledger/internal/core"
	"storeledger/internal/storage"
)

// SnapshotService orchestrates draft and publish operations across SQLite
// and AMQP.
type SnapshotService struct {
	repo       *storage.Repository
	amqpClient *amqp.Client
}

func NewSnapshotService(repo *storage.Repository, amqpClient *amqp.Client) *SnapshotService {
	return &SnapshotService{
		repo:       repo,
		amqpClient: amqpClient,
	}
}

// SnapshotInput is a full submission of one store's balances, used by both
// SaveDraft and Publish. DraftID resumes an existing draft when set.
type SnapshotInput struct {
	DraftID   *int64
	StoreID   int64
	Date      core.Date
	Balances  []core.BalanceInput
	YTDSales  decimal.Decimal
	YTDProfit decimal.Decimal
	CreatedBy string
	Notes     string
}

// prepare validates the input against the catalog and returns the snapshot
// totals. Every submitted account must exist, be active, and belong to the
// submitted store.
func (s *SnapshotService) prepare(ctx context.Context, in SnapshotInput) (core.Totals, error) {
	if in.StoreID <= 0 {
		return core.Totals{}, core.NewValidationError("store_id", "store is required")
	}
	if in.Date.IsZero() {
		return core.Totals{}, core.NewValidationError("snapshot_date", "snapshot date is required")
	}

	store, err := s.repo.Queries().GetStore(ctx, in.StoreID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Totals{}, core.NewNotFoundError("store", in.StoreID)
		}
		return core.Totals{}, core.NewPersistenceError("get store", err)
	}
	if !store.Active {
		return core.Totals{}, core.NewValidationError("store_id", "store is inactive")
	}

	accounts, err := s.repo.Queries().ListAccounts(ctx, storage.AccountFilter{StoreID: in.StoreID})
	if err != nil {
		return core.Totals{}, core.NewPersistenceError("list accounts", err)
	}
	categories := make(map[int64]core.Category, len(accounts))
	active := make(map[int64]bool, len(accounts))
	for _, a := range accounts {
		categories[a.ID] = a.Type.Category
		active[a.ID] = a.Active
	}

	lines := make([]core.BalanceLine, 0, len(in.Balances))
	seen := make(map[int64]bool, len(in.Balances))
	for _, b := range in.Balances {
		cat, ok := categories[b.AccountID]
		if !ok {
			return core.Totals{}, core.NewValidationError("balances",
				fmt.Sprintf("account %d does not belong to store %d", b.AccountID, in.StoreID))
		}
		if !active[b.AccountID] {
			return core.Totals{}, core.NewValidationError("balances",
				fmt.Sprintf("account %d is inactive", b.AccountID))
		}
		if seen[b.AccountID] {
			return core.Totals{}, core.NewValidationError("balances",
				fmt.Sprintf("account %d submitted more than once", b.AccountID))
		}
		seen[b.AccountID] = true
		lines = append(lines, core.BalanceLine{Amount: b.Amount, Category: cat})
	}

	totals, err := core.ComputeTotals(lines, in.YTDSales, in.YTDProfit)
	if err != nil {
		return core.Totals{}, fmt.Errorf("compute totals: %w", err)
	}
	return totals, nil
}

func snapshotFromInput(in SnapshotInput, totals core.Totals, status core.SnapshotStatus) core.Snapshot {
	createdBy := in.CreatedBy
	if createdBy == "" {
		createdBy = "system"
	}
	return core.Snapshot{
		StoreID:          in.StoreID,
		Date:             in.Date,
		Status:           status,
		TotalAssets:      totals.TotalAssets,
		TotalLiabilities: totals.TotalLiabilities,
		NetPosition:      totals.NetPosition,
		YTDSales:         totals.YTDSales,
		YTDProfit:        totals.YTDProfit,
		ProfitMargin:     totals.ProfitMargin,
		CreatedBy:        createdBy,
		Notes:            in.Notes,
	}
}

func insertBalances(ctx context.Context, q *storage.Queries, snapshotID int64, balances []core.BalanceInput) error {
	for _, b := range balances {
		_, err := q.InsertBalance(ctx, core.AccountBalance{
			SnapshotID: snapshotID,
			AccountID:  b.AccountID,
			Balance:    b.Amount,
			Points:     b.Points,
			Sales:      b.Sales,
			Orders:     b.Orders,
			Spend:      b.Spend,
			CPA:        b.CPA,
			Profit:     b.Profit,
			Notes:      b.Notes,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SaveDraft stores or refreshes a draft snapshot. An existing draft's
// balances are replaced wholesale, so the stored draft always mirrors the
// latest submission.
func (s *SnapshotService) SaveDraft(ctx context.Context, in SnapshotInput) (core.Snapshot, error) {
	totals, err := s.prepare(ctx, in)
	if err != nil {
		return core.Snapshot{}, err
	}

	snap := snapshotFromInput(in, totals, core.StatusDraft)

	err = s.repo.WithTx(ctx, func(q *storage.Queries) error {
		if in.DraftID != nil {
			existing, err := q.GetSnapshot(ctx, *in.DraftID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return core.NewNotFoundError("draft", *in.DraftID)
				}
				return core.NewPersistenceError("get draft", err)
			}
			if existing.Status != core.StatusDraft {
				return core.NewNotFoundError("draft", *in.DraftID)
			}
			if existing.StoreID != in.StoreID {
				return core.NewValidationError("store_id", "draft belongs to a different store")
			}
			snap.ID = existing.ID
			snap.CreatedAt = existing.CreatedAt
			if err := q.DeleteSnapshotBalances(ctx, existing.ID); err != nil {
				return core.NewPersistenceError("clear draft balances", err)
			}
			if err := q.UpdateSnapshotTotals(ctx, snap); err != nil {
				return core.NewPersistenceError("update draft", err)
			}
		} else {
			id, err := q.CreateSnapshot(ctx, snap)
			if err != nil {
				return core.NewPersistenceError("create draft", err)
			}
			snap.ID = id
		}
		if err := insertBalances(ctx, q, snap.ID, in.Balances); err != nil {
			return core.NewPersistenceError("insert balances", err)
		}
		return nil
	})
	if err != nil {
		return core.Snapshot{}, err
	}

	slog.InfoContext(ctx, "Saved draft snapshot",
		"snapshot_id", snap.ID,
		"store_id", snap.StoreID,
		"balances", len(in.Balances))
	return s.Get(ctx, snap.ID)
}

// Publish creates a completed snapshot from the submission. If the input
// references an existing draft, that draft is removed in the same
// transaction; a stale or missing draft reference is ignored. The published
// snapshot is always a fresh row.
func (s *SnapshotService) Publish(ctx context.Context, in SnapshotInput) (core.Snapshot, error) {
	totals, err := s.prepare(ctx, in)
	if err != nil {
		return core.Snapshot{}, err
	}

	var snap core.Snapshot
	err = s.repo.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		snap, err = s.publishTx(ctx, q, in, totals)
		return err
	})
	if err != nil {
		return core.Snapshot{}, err
	}

	// Publish async export message (non-blocking)
	if err := s.publishSnapshotMessage(ctx, snap.ID, snap.StoreID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish snapshot message",
			"snapshot_id", snap.ID, "error", err)
		// Don't fail the request, the snapshot is saved locally
	}

	slog.InfoContext(ctx, "Published snapshot",
		"snapshot_id", snap.ID,
		"store_id", snap.StoreID,
		"net_position", snap.NetPosition)
	return s.Get(ctx, snap.ID)
}

// publishTx inserts the completed snapshot and its balances inside the
// caller's transaction, removing the referenced draft first. A stale or
// missing draft reference is ignored.
func (s *SnapshotService) publishTx(ctx context.Context, q *storage.Queries, in SnapshotInput, totals core.Totals) (core.Snapshot, error) {
	snap := snapshotFromInput(in, totals, core.StatusCompleted)

	if in.DraftID != nil {
		existing, err := q.GetSnapshot(ctx, *in.DraftID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// Draft already gone, publish proceeds regardless.
		case err != nil:
			return core.Snapshot{}, core.NewPersistenceError("get draft", err)
		case existing.Status == core.StatusDraft:
			if _, err := q.DeleteSnapshot(ctx, existing.ID); err != nil {
				return core.Snapshot{}, core.NewPersistenceError("delete draft", err)
			}
		}
	}
	id, err := q.CreateSnapshot(ctx, snap)
	if err != nil {
		return core.Snapshot{}, core.NewPersistenceError("create snapshot", err)
	}
	snap.ID = id
	if err := insertBalances(ctx, q, snap.ID, in.Balances); err != nil {
		return core.Snapshot{}, core.NewPersistenceError("insert balances", err)
	}
	return snap, nil
}

func (s *SnapshotService) publishSnapshotMessage(ctx context.Context, snapshotID, storeID int64) error {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping snapshot message")
		return nil
	}
	return s.amqpClient.PublishSnapshotPublished(ctx, snapshotID, storeID)
}

// Get returns one snapshot by id.
func (s *SnapshotService) Get(ctx context.Context, id int64) (core.Snapshot, error) {
	snap, err := s.repo.Queries().GetSnapshot(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Snapshot{}, core.NewNotFoundError("snapshot", id)
		}
		return core.Snapshot{}, core.NewPersistenceError("get snapshot", err)
	}
	return snap, nil
}

// GetBalances returns the stored balance rows of a snapshot.
func (s *SnapshotService) GetBalances(ctx context.Context, snapshotID int64) ([]core.AccountBalance, error) {
	if _, err := s.Get(ctx, snapshotID); err != nil {
		return nil, err
	}
	balances, err := s.repo.Queries().ListSnapshotBalances(ctx, snapshotID)
	if err != nil {
		return nil, core.NewPersistenceError("list balances", err)
	}
	return balances, nil
}

// List returns snapshots matching the filter, newest first.
func (s *SnapshotService) List(ctx context.Context, f storage.SnapshotFilter) ([]core.Snapshot, error) {
	snaps, err := s.repo.Queries().ListSnapshots(ctx, f)
	if err != nil {
		return nil, core.NewPersistenceError("list snapshots", err)
	}
	return snaps, nil
}

// ListDrafts returns all open drafts with store names and balance counts.
func (s *SnapshotService) ListDrafts(ctx context.Context) ([]storage.DraftSummary, error) {
	drafts, err := s.repo.Queries().ListDrafts(ctx)
	if err != nil {
		return nil, core.NewPersistenceError("list drafts", err)
	}
	return drafts, nil
}

// DeleteDraft discards an open draft. Published snapshots cannot be deleted
// this way.
func (s *SnapshotService) DeleteDraft(ctx context.Context, id int64) error {
	snap, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if snap.Status != core.StatusDraft {
		return core.NewNotFoundError("draft", id)
	}
	if _, err := s.repo.Queries().DeleteSnapshot(ctx, id); err != nil {
		return core.NewPersistenceError("delete draft", err)
	}
	slog.InfoContext(ctx, "Deleted draft snapshot", "snapshot_id", id)
	return nil
}

// LatestCompleted returns the most recent published snapshot for a store.
func (s *SnapshotService) LatestCompleted(ctx context.Context, storeID int64) (core.Snapshot, error) {
	snap, err := s.repo.Queries().LatestCompletedSnapshot(ctx, storeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Snapshot{}, core.NewNotFoundError("completed snapshot for store", storeID)
		}
		return core.Snapshot{}, core.NewPersistenceError("latest completed snapshot", err)
	}
	return snap, nil
}

// LatestPerStore returns the newest published snapshot of every store that
// has one.
func (s *SnapshotService) LatestPerStore(ctx context.Context) ([]core.Snapshot, error) {
	latest, err := s.repo.Queries().LatestCompletedPerStore(ctx)
	if err != nil {
		return nil, core.NewPersistenceError("latest snapshots per store", err)
	}
	snaps := make([]core.Snapshot, 0, len(latest))
	for _, snap := range latest {
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].StoreID < snaps[j].StoreID })
	return snaps, nil
}

// LineItems returns the joined balance rows of a snapshot for balance sheet
// rendering.
func (s *SnapshotService) LineItems(ctx context.Context, snapshotID int64) (core.Snapshot, []storage.BalanceLineItem, error) {
	snap, err := s.Get(ctx, snapshotID)
	if err != nil {
		return core.Snapshot{}, nil, err
	}
	items, err := s.repo.Queries().ListSnapshotLineItems(ctx, snapshotID)
	if err != nil {
		return core.Snapshot{}, nil, core.NewPersistenceError("list line items", err)
	}
	return snap, items, nil
}

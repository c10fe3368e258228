package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storeledger/internal/amqp"
	"storeledger/internal/export"
	"storeledger/internal/storage"
)

// ExportWorker pushes published snapshots to the external spreadsheet. It
// handles announcements from the queue and periodically sweeps for
// snapshots that were published while the worker was down.
type ExportWorker struct {
	repo      *storage.Repository
	writer    export.SnapshotWriter
	batchSize int
}

func NewExportWorker(repo *storage.Repository, writer export.SnapshotWriter, batchSize int) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &ExportWorker{
		repo:      repo,
		writer:    writer,
		batchSize: batchSize,
	}
}

// HandleSnapshotMessage exports the snapshot named by one queue message.
func (w *ExportWorker) HandleSnapshotMessage(msg *amqp.SnapshotPublishedMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return w.exportSnapshot(ctx, msg.SnapshotID)
}

func (w *ExportWorker) exportSnapshot(ctx context.Context, snapshotID int64) error {
	q := w.repo.Queries()

	snap, err := q.GetSnapshot(ctx, snapshotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Snapshot deleted before export; nothing to do.
			slog.WarnContext(ctx, "Snapshot vanished before export", "snapshot_id", snapshotID)
			return nil
		}
		return fmt.Errorf("load snapshot %d: %w", snapshotID, err)
	}

	store, err := q.GetStore(ctx, snap.StoreID)
	if err != nil {
		return fmt.Errorf("load store %d: %w", snap.StoreID, err)
	}

	rowRef, err := w.writer.Append(ctx, store, snap)
	if err != nil {
		return fmt.Errorf("append snapshot %d to sheet: %w", snapshotID, err)
	}

	if err := q.MarkSnapshotExported(ctx, snapshotID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark snapshot %d exported: %w", snapshotID, err)
	}

	slog.InfoContext(ctx, "Exported snapshot",
		"snapshot_id", snapshotID,
		"store", store.Code,
		"row_ref", rowRef)
	return nil
}

// ProcessUnexported sweeps up to the batch size of published snapshots that
// never reached the spreadsheet. A failing snapshot stops the sweep so it is
// retried on the next pass.
func (w *ExportWorker) ProcessUnexported(ctx context.Context) error {
	snaps, err := w.repo.Queries().ListUnexportedSnapshots(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list unexported snapshots: %w", err)
	}
	if len(snaps) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Catch-up export pass", "pending", len(snaps))
	for _, snap := range snaps {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.exportSnapshot(ctx, snap.ID); err != nil {
			return err
		}
	}
	return nil
}

package export

import (
	"context"

	"storeledger/internal/core"
)

// Ports for outbound adapters.
type (
	// SnapshotWriter appends a published snapshot summary row to an
	// external spreadsheet.
	SnapshotWriter interface {
		Append(ctx context.Context, store core.Store, snap core.Snapshot) (rowRef string, err error)
	}
)

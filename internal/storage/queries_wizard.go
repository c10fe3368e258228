package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"storeledger/internal/core"
)

const wizardColumns = "id, session_token, store_id, snapshot_date, current_step, completed_at, created_at, updated_at"

func scanWizardSession(row interface{ Scan(...any) error }) (core.WizardSession, error) {
	var (
		w         core.WizardSession
		date      sql.NullTime
		completed sql.NullTime
	)
	err := row.Scan(&w.ID, &w.Token, &w.StoreID, &date, &w.CurrentStep, &completed, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return core.WizardSession{}, err
	}
	if date.Valid {
		w.SnapshotDate = &core.Date{Time: date.Time}
	}
	if completed.Valid {
		w.CompletedAt = &completed.Time
	}
	return w, nil
}

func (q *Queries) CreateWizardSession(ctx context.Context, token string, storeID int64, snapshotDate *core.Date) (core.WizardSession, error) {
	ts := now()
	var date any
	if snapshotDate != nil {
		date = snapshotDate.Time
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO wizard_sessions (session_token, store_id, snapshot_date, current_step, created_at, updated_at)
		 VALUES (?, ?, ?, 1, ?, ?)`,
		token, storeID, date, ts, ts)
	if err != nil {
		return core.WizardSession{}, fmt.Errorf("insert wizard session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.WizardSession{}, fmt.Errorf("wizard session insert id: %w", err)
	}
	return core.WizardSession{
		ID:           id,
		Token:        token,
		StoreID:      storeID,
		SnapshotDate: snapshotDate,
		CurrentStep:  1,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}, nil
}

func (q *Queries) GetWizardSessionByToken(ctx context.Context, token string) (core.WizardSession, error) {
	return scanWizardSession(q.db.QueryRowContext(ctx,
		"SELECT "+wizardColumns+" FROM wizard_sessions WHERE session_token = ?", token))
}

// UpsertWizardStep stores the payload for one step, replacing any earlier
// payload for the same step.
func (q *Queries) UpsertWizardStep(ctx context.Context, sessionID int64, step int, payload json.RawMessage) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO wizard_steps (session_id, step, payload, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id, step) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		sessionID, step, string(payload), now())
	if err != nil {
		return fmt.Errorf("upsert wizard step: %w", err)
	}
	return nil
}

func (q *Queries) ListWizardSteps(ctx context.Context, sessionID int64) (map[int]json.RawMessage, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT step, payload FROM wizard_steps WHERE session_id = ? ORDER BY step", sessionID)
	if err != nil {
		return nil, fmt.Errorf("list wizard steps: %w", err)
	}
	defer rows.Close()

	steps := make(map[int]json.RawMessage)
	for rows.Next() {
		var (
			step    int
			payload string
		)
		if err := rows.Scan(&step, &payload); err != nil {
			return nil, fmt.Errorf("scan wizard step: %w", err)
		}
		steps[step] = json.RawMessage(payload)
	}
	return steps, rows.Err()
}

// UpdateWizardProgress advances the bookmark and snapshot date of a session.
func (q *Queries) UpdateWizardProgress(ctx context.Context, sessionID int64, currentStep int, snapshotDate *core.Date) error {
	var date any
	if snapshotDate != nil {
		date = snapshotDate.Time
	}
	_, err := q.db.ExecContext(ctx,
		"UPDATE wizard_sessions SET current_step = ?, snapshot_date = COALESCE(?, snapshot_date), updated_at = ? WHERE id = ?",
		currentStep, date, now(), sessionID)
	if err != nil {
		return fmt.Errorf("update wizard progress: %w", err)
	}
	return nil
}

func (q *Queries) CompleteWizardSession(ctx context.Context, sessionID int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE wizard_sessions SET completed_at = ?, updated_at = ? WHERE id = ?",
		at, now(), sessionID)
	if err != nil {
		return fmt.Errorf("complete wizard session: %w", err)
	}
	return nil
}

func (q *Queries) InsertHistoricalImport(ctx context.Context, imp core.HistoricalImport) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO historical_imports (filename, import_date, status, notes) VALUES (?, ?, ?, ?)",
		imp.Filename, imp.ImportDate, imp.Status, imp.Notes)
	if err != nil {
		return 0, fmt.Errorf("insert historical import: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("historical import insert id: %w", err)
	}
	return id, nil
}

func (q *Queries) ListHistoricalImports(ctx context.Context) ([]core.HistoricalImport, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, filename, import_date, status, notes FROM historical_imports ORDER BY import_date DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list historical imports: %w", err)
	}
	defer rows.Close()

	var imports []core.HistoricalImport
	for rows.Next() {
		var imp core.HistoricalImport
		if err := rows.Scan(&imp.ID, &imp.Filename, &imp.ImportDate, &imp.Status, &imp.Notes); err != nil {
			return nil, fmt.Errorf("scan historical import: %w", err)
		}
		imports = append(imports, imp)
	}
	return imports, rows.Err()
}

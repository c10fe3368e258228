package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storeledger/internal/core"
)

const snapshotColumns = `id, store_id, snapshot_date, status, total_assets, total_liabilities, net_position,
	ytd_sales, ytd_profit, profit_margin, created_by, notes, created_at, updated_at`

func scanSnapshot(row interface{ Scan(...any) error }) (core.Snapshot, error) {
	var (
		s                        core.Snapshot
		date                     time.Time
		assets, liabilities, net string
		sales, profit, margin    string
	)
	err := row.Scan(&s.ID, &s.StoreID, &date, &s.Status, &assets, &liabilities, &net,
		&sales, &profit, &margin, &s.CreatedBy, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return core.Snapshot{}, err
	}
	s.Date = core.Date{Time: date}
	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{assets, &s.TotalAssets},
		{liabilities, &s.TotalLiabilities},
		{net, &s.NetPosition},
		{sales, &s.YTDSales},
		{profit, &s.YTDProfit},
		{margin, &s.ProfitMargin},
	} {
		d, err := scanDecimal(f.raw)
		if err != nil {
			return core.Snapshot{}, err
		}
		*f.dst = d
	}
	return s, nil
}

func (q *Queries) CreateSnapshot(ctx context.Context, s core.Snapshot) (int64, error) {
	ts := now()
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO snapshots (store_id, snapshot_date, status, total_assets, total_liabilities, net_position,
		 ytd_sales, ytd_profit, profit_margin, created_by, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.StoreID, s.Date.Time, s.Status,
		decimalText(s.TotalAssets), decimalText(s.TotalLiabilities), decimalText(s.NetPosition),
		decimalText(s.YTDSales), decimalText(s.YTDProfit), decimalText(s.ProfitMargin),
		s.CreatedBy, s.Notes, ts, ts)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("snapshot insert id: %w", err)
	}
	return id, nil
}

func (q *Queries) GetSnapshot(ctx context.Context, id int64) (core.Snapshot, error) {
	return scanSnapshot(q.db.QueryRowContext(ctx,
		"SELECT "+snapshotColumns+" FROM snapshots WHERE id = ?", id))
}

// UpdateSnapshotTotals rewrites the aggregated figures and metadata of an
// existing snapshot.
func (q *Queries) UpdateSnapshotTotals(ctx context.Context, s core.Snapshot) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE snapshots SET snapshot_date = ?, total_assets = ?, total_liabilities = ?, net_position = ?,
		 ytd_sales = ?, ytd_profit = ?, profit_margin = ?, created_by = ?, notes = ?, updated_at = ?
		 WHERE id = ?`,
		s.Date.Time,
		decimalText(s.TotalAssets), decimalText(s.TotalLiabilities), decimalText(s.NetPosition),
		decimalText(s.YTDSales), decimalText(s.YTDProfit), decimalText(s.ProfitMargin),
		s.CreatedBy, s.Notes, now(), s.ID)
	if err != nil {
		return fmt.Errorf("update snapshot totals: %w", err)
	}
	return nil
}

// SnapshotFilter narrows ListSnapshots. Zero-valued fields are ignored.
type SnapshotFilter struct {
	StoreID int64
	Status  core.SnapshotStatus
	From    *core.Date
	To      *core.Date
	Limit   int
}

func (q *Queries) ListSnapshots(ctx context.Context, f SnapshotFilter) ([]core.Snapshot, error) {
	query := "SELECT " + snapshotColumns + " FROM snapshots"
	var (
		conds []string
		args  []any
	)
	if f.StoreID > 0 {
		conds = append(conds, "store_id = ?")
		args = append(args, f.StoreID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.From != nil {
		conds = append(conds, "snapshot_date >= ?")
		args = append(args, f.From.Time)
	}
	if f.To != nil {
		conds = append(conds, "snapshot_date <= ?")
		args = append(args, f.To.Time)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY snapshot_date DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []core.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// DraftSummary is a draft snapshot with its store name and captured balance
// count, for the resume-a-draft listing.
type DraftSummary struct {
	Snapshot     core.Snapshot
	StoreName    string
	BalanceCount int64
}

func (q *Queries) ListDrafts(ctx context.Context) ([]DraftSummary, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT s.id, s.store_id, s.snapshot_date, s.status, s.total_assets, s.total_liabilities, s.net_position,
		 s.ytd_sales, s.ytd_profit, s.profit_margin, s.created_by, s.notes, s.created_at, s.updated_at,
		 st.name, COUNT(b.id)
		 FROM snapshots s
		 JOIN stores st ON st.id = s.store_id
		 LEFT JOIN account_balances b ON b.snapshot_id = s.id
		 WHERE s.status = 'draft'
		 GROUP BY s.id
		 ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var drafts []DraftSummary
	for rows.Next() {
		var (
			d                        DraftSummary
			date                     time.Time
			assets, liabilities, net string
			sales, profit, margin    string
		)
		err := rows.Scan(&d.Snapshot.ID, &d.Snapshot.StoreID, &date, &d.Snapshot.Status,
			&assets, &liabilities, &net, &sales, &profit, &margin,
			&d.Snapshot.CreatedBy, &d.Snapshot.Notes, &d.Snapshot.CreatedAt, &d.Snapshot.UpdatedAt,
			&d.StoreName, &d.BalanceCount)
		if err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		d.Snapshot.Date = core.Date{Time: date}
		for _, f := range []struct {
			raw string
			dst *decimal.Decimal
		}{
			{assets, &d.Snapshot.TotalAssets},
			{liabilities, &d.Snapshot.TotalLiabilities},
			{net, &d.Snapshot.NetPosition},
			{sales, &d.Snapshot.YTDSales},
			{profit, &d.Snapshot.YTDProfit},
			{margin, &d.Snapshot.ProfitMargin},
		} {
			dec, err := scanDecimal(f.raw)
			if err != nil {
				return nil, err
			}
			*f.dst = dec
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

func (q *Queries) DeleteSnapshot(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("delete snapshot: %w", err)
	}
	return res.RowsAffected()
}

// DeleteSnapshotBalances clears all balance rows of a snapshot ahead of a
// full re-insert.
func (q *Queries) DeleteSnapshotBalances(ctx context.Context, snapshotID int64) error {
	_, err := q.db.ExecContext(ctx,
		"DELETE FROM account_balances WHERE snapshot_id = ?", snapshotID)
	if err != nil {
		return fmt.Errorf("delete snapshot balances: %w", err)
	}
	return nil
}

// LatestCompletedSnapshot returns the most recent completed snapshot for a
// store, by snapshot date then insertion order.
func (q *Queries) LatestCompletedSnapshot(ctx context.Context, storeID int64) (core.Snapshot, error) {
	return scanSnapshot(q.db.QueryRowContext(ctx,
		"SELECT "+snapshotColumns+` FROM snapshots
		 WHERE store_id = ? AND status = 'completed'
		 ORDER BY snapshot_date DESC, id DESC LIMIT 1`, storeID))
}

// LatestCompletedPerStore returns the newest completed snapshot of every
// store that has one, keyed by store id.
func (q *Queries) LatestCompletedPerStore(ctx context.Context) (map[int64]core.Snapshot, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+snapshotColumns+` FROM snapshots
		 WHERE status = 'completed'
		 ORDER BY snapshot_date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list completed snapshots: %w", err)
	}
	defer rows.Close()

	latest := make(map[int64]core.Snapshot)
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if _, ok := latest[s.StoreID]; !ok {
			latest[s.StoreID] = s
		}
	}
	return latest, rows.Err()
}

func (q *Queries) MarkSnapshotExported(ctx context.Context, id int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE snapshots SET exported_at = ? WHERE id = ?", at, id)
	if err != nil {
		return fmt.Errorf("mark snapshot exported: %w", err)
	}
	return nil
}

// ListUnexportedSnapshots returns completed snapshots that never reached the
// spreadsheet, oldest first.
func (q *Queries) ListUnexportedSnapshots(ctx context.Context, limit int) ([]core.Snapshot, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+snapshotColumns+` FROM snapshots
		 WHERE status = 'completed' AND exported_at IS NULL
		 ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unexported snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []core.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

func (q *Queries) InsertBalance(ctx context.Context, b core.AccountBalance) (int64, error) {
	ts := now()
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO account_balances (snapshot_id, account_id, balance, points, sales, orders, spend, cpa, profit, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.SnapshotID, b.AccountID, decimalText(b.Balance), b.Points,
		nullDecimalText(b.Sales), nullInt(b.Orders), nullDecimalText(b.Spend),
		nullDecimalText(b.CPA), nullDecimalText(b.Profit), b.Notes, ts, ts)
	if err != nil {
		return 0, fmt.Errorf("insert balance: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("balance insert id: %w", err)
	}
	return id, nil
}

func scanBalance(row interface{ Scan(...any) error }) (core.AccountBalance, error) {
	var (
		b            core.AccountBalance
		balance      string
		sales, spend sql.NullString
		cpa, profit  sql.NullString
		orders       sql.NullInt64
	)
	err := row.Scan(&b.ID, &b.SnapshotID, &b.AccountID, &balance, &b.Points,
		&sales, &orders, &spend, &cpa, &profit, &b.Notes, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return core.AccountBalance{}, err
	}
	if b.Balance, err = scanDecimal(balance); err != nil {
		return core.AccountBalance{}, err
	}
	if b.Sales, err = scanNullDecimal(sales); err != nil {
		return core.AccountBalance{}, err
	}
	if b.Spend, err = scanNullDecimal(spend); err != nil {
		return core.AccountBalance{}, err
	}
	if b.CPA, err = scanNullDecimal(cpa); err != nil {
		return core.AccountBalance{}, err
	}
	if b.Profit, err = scanNullDecimal(profit); err != nil {
		return core.AccountBalance{}, err
	}
	if orders.Valid {
		b.Orders = &orders.Int64
	}
	return b, nil
}

func (q *Queries) ListSnapshotBalances(ctx context.Context, snapshotID int64) ([]core.AccountBalance, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, snapshot_id, account_id, balance, points, sales, orders, spend, cpa, profit, notes, created_at, updated_at
		 FROM account_balances WHERE snapshot_id = ? ORDER BY id`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("list snapshot balances: %w", err)
	}
	defer rows.Close()

	var balances []core.AccountBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// BalanceLineItem is a stored balance joined with the account it belongs to,
// carrying everything a balance sheet rendering needs.
type BalanceLineItem struct {
	Balance     core.AccountBalance
	AccountName string
	TypeName    string
	Category    core.Category
	SortOrder   int
	BankName    string
}

// ListSnapshotLineItems joins balances with account and type metadata,
// ordered the way the balance sheet presents them.
func (q *Queries) ListSnapshotLineItems(ctx context.Context, snapshotID int64) ([]BalanceLineItem, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT b.id, b.snapshot_id, b.account_id, b.balance, b.points, b.sales, b.orders, b.spend, b.cpa, b.profit, b.notes, b.created_at, b.updated_at,
		 a.account_name, t.name, t.category, t.sort_order, COALESCE(bk.name, '')
		 FROM account_balances b
		 JOIN accounts a ON a.id = b.account_id
		 JOIN account_types t ON t.id = a.account_type_id
		 LEFT JOIN banks bk ON bk.id = a.bank_id
		 WHERE b.snapshot_id = ?
		 ORDER BY t.sort_order, a.account_name`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("list snapshot line items: %w", err)
	}
	defer rows.Close()

	var items []BalanceLineItem
	for rows.Next() {
		var (
			it           BalanceLineItem
			balance      string
			sales, spend sql.NullString
			cpa, profit  sql.NullString
			orders       sql.NullInt64
		)
		err := rows.Scan(&it.Balance.ID, &it.Balance.SnapshotID, &it.Balance.AccountID,
			&balance, &it.Balance.Points, &sales, &orders, &spend, &cpa, &profit,
			&it.Balance.Notes, &it.Balance.CreatedAt, &it.Balance.UpdatedAt,
			&it.AccountName, &it.TypeName, &it.Category, &it.SortOrder, &it.BankName)
		if err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		if it.Balance.Balance, err = scanDecimal(balance); err != nil {
			return nil, err
		}
		if it.Balance.Sales, err = scanNullDecimal(sales); err != nil {
			return nil, err
		}
		if it.Balance.Spend, err = scanNullDecimal(spend); err != nil {
			return nil, err
		}
		if it.Balance.CPA, err = scanNullDecimal(cpa); err != nil {
			return nil, err
		}
		if it.Balance.Profit, err = scanNullDecimal(profit); err != nil {
			return nil, err
		}
		if orders.Valid {
			it.Balance.Orders = &orders.Int64
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (q *Queries) CountSnapshotBalances(ctx context.Context, snapshotID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM account_balances WHERE snapshot_id = ?", snapshotID).Scan(&n)
	return n, err
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

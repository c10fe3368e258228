package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"storeledger/internal/core"
)

const storeColumns = "id, name, code, is_active, created_at, updated_at"

func scanStore(row interface{ Scan(...any) error }) (core.Store, error) {
	var s core.Store
	err := row.Scan(&s.ID, &s.Name, &s.Code, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (q *Queries) CreateStore(ctx context.Context, name, code string, active bool) (core.Store, error) {
	ts := now()
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO stores (name, code, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		name, code, active, ts, ts)
	if err != nil {
		return core.Store{}, fmt.Errorf("insert store: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Store{}, fmt.Errorf("store insert id: %w", err)
	}
	return core.Store{ID: id, Name: name, Code: code, Active: active, CreatedAt: ts, UpdatedAt: ts}, nil
}

func (q *Queries) GetStore(ctx context.Context, id int64) (core.Store, error) {
	return scanStore(q.db.QueryRowContext(ctx,
		"SELECT "+storeColumns+" FROM stores WHERE id = ?", id))
}

func (q *Queries) GetStoreByCode(ctx context.Context, code string) (core.Store, error) {
	return scanStore(q.db.QueryRowContext(ctx,
		"SELECT "+storeColumns+" FROM stores WHERE code = ?", code))
}

func (q *Queries) ListStores(ctx context.Context, activeOnly bool) ([]core.Store, error) {
	query := "SELECT " + storeColumns + " FROM stores"
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY name"

	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	var stores []core.Store
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

func (q *Queries) CountStores(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stores").Scan(&n)
	return n, err
}

const accountTypeColumns = "id, name, category, sort_order, created_at, updated_at"

func scanAccountType(row interface{ Scan(...any) error }) (core.AccountType, error) {
	var t core.AccountType
	err := row.Scan(&t.ID, &t.Name, &t.Category, &t.SortOrder, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (q *Queries) CreateAccountType(ctx context.Context, name string, category core.Category, sortOrder int) (core.AccountType, error) {
	ts := now()
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO account_types (name, category, sort_order, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		name, category, sortOrder, ts, ts)
	if err != nil {
		return core.AccountType{}, fmt.Errorf("insert account type: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.AccountType{}, fmt.Errorf("account type insert id: %w", err)
	}
	return core.AccountType{ID: id, Name: name, Category: category, SortOrder: sortOrder, CreatedAt: ts, UpdatedAt: ts}, nil
}

func (q *Queries) GetAccountType(ctx context.Context, id int64) (core.AccountType, error) {
	return scanAccountType(q.db.QueryRowContext(ctx,
		"SELECT "+accountTypeColumns+" FROM account_types WHERE id = ?", id))
}

func (q *Queries) GetAccountTypeByName(ctx context.Context, name string) (core.AccountType, error) {
	return scanAccountType(q.db.QueryRowContext(ctx,
		"SELECT "+accountTypeColumns+" FROM account_types WHERE name = ?", name))
}

func (q *Queries) ListAccountTypes(ctx context.Context) ([]core.AccountType, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+accountTypeColumns+" FROM account_types ORDER BY sort_order, name")
	if err != nil {
		return nil, fmt.Errorf("list account types: %w", err)
	}
	defer rows.Close()

	var types []core.AccountType
	for rows.Next() {
		t, err := scanAccountType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func (q *Queries) CountAccountsForType(ctx context.Context, typeID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM accounts WHERE account_type_id = ?", typeID).Scan(&n)
	return n, err
}

func (q *Queries) DeleteAccountType(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, "DELETE FROM account_types WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("delete account type: %w", err)
	}
	return res.RowsAffected()
}

const bankColumns = "id, name, is_active, created_at, updated_at"

func scanBank(row interface{ Scan(...any) error }) (core.Bank, error) {
	var b core.Bank
	err := row.Scan(&b.ID, &b.Name, &b.Active, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (q *Queries) CreateBank(ctx context.Context, name string, active bool) (core.Bank, error) {
	ts := now()
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO banks (name, is_active, created_at, updated_at) VALUES (?, ?, ?, ?)",
		name, active, ts, ts)
	if err != nil {
		return core.Bank{}, fmt.Errorf("insert bank: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Bank{}, fmt.Errorf("bank insert id: %w", err)
	}
	return core.Bank{ID: id, Name: name, Active: active, CreatedAt: ts, UpdatedAt: ts}, nil
}

func (q *Queries) GetBankByName(ctx context.Context, name string) (core.Bank, error) {
	return scanBank(q.db.QueryRowContext(ctx,
		"SELECT "+bankColumns+" FROM banks WHERE name = ?", name))
}

func (q *Queries) ListBanks(ctx context.Context, activeOnly bool) ([]core.Bank, error) {
	query := "SELECT " + bankColumns + " FROM banks"
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY name"

	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	defer rows.Close()

	var banks []core.Bank
	for rows.Next() {
		b, err := scanBank(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bank: %w", err)
		}
		banks = append(banks, b)
	}
	return banks, rows.Err()
}

// AccountFilter narrows ListAccounts. Zero-valued fields are ignored.
type AccountFilter struct {
	StoreID    int64
	TypeID     int64
	ActiveOnly bool
}

const accountSelect = `SELECT a.id, a.store_id, a.account_type_id, a.bank_id, a.account_name, a.account_number, a.is_active, a.created_at, a.updated_at,
	t.id, t.name, t.category, t.sort_order, t.created_at, t.updated_at,
	b.id, b.name, b.is_active, b.created_at, b.updated_at
FROM accounts a
JOIN account_types t ON t.id = a.account_type_id
LEFT JOIN banks b ON b.id = a.bank_id`

func scanAccountJoined(row interface{ Scan(...any) error }) (core.Account, error) {
	var (
		a        core.Account
		t        core.AccountType
		bankID   sql.NullInt64
		bName    sql.NullString
		bActive  sql.NullBool
		bCreated sql.NullTime
		bUpdated sql.NullTime
		bID      sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.StoreID, &a.TypeID, &bankID, &a.Name, &a.Number, &a.Active, &a.CreatedAt, &a.UpdatedAt,
		&t.ID, &t.Name, &t.Category, &t.SortOrder, &t.CreatedAt, &t.UpdatedAt,
		&bID, &bName, &bActive, &bCreated, &bUpdated)
	if err != nil {
		return core.Account{}, err
	}
	a.Type = &t
	if bankID.Valid {
		a.BankID = &bankID.Int64
		a.Bank = &core.Bank{
			ID:        bID.Int64,
			Name:      bName.String,
			Active:    bActive.Bool,
			CreatedAt: bCreated.Time,
			UpdatedAt: bUpdated.Time,
		}
	}
	return a, nil
}

func (q *Queries) ListAccounts(ctx context.Context, f AccountFilter) ([]core.Account, error) {
	query := accountSelect
	var (
		conds []string
		args  []any
	)
	if f.ActiveOnly {
		conds = append(conds, "a.is_active = 1")
	}
	if f.StoreID > 0 {
		conds = append(conds, "a.store_id = ?")
		args = append(args, f.StoreID)
	}
	if f.TypeID > 0 {
		conds = append(conds, "a.account_type_id = ?")
		args = append(args, f.TypeID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY t.sort_order, a.account_name"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccountJoined(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (q *Queries) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	return scanAccountJoined(q.db.QueryRowContext(ctx, accountSelect+" WHERE a.id = ?", id))
}

func (q *Queries) GetAccountByStoreAndName(ctx context.Context, storeID int64, name string) (core.Account, error) {
	return scanAccountJoined(q.db.QueryRowContext(ctx,
		accountSelect+" WHERE a.store_id = ? AND a.account_name = ?", storeID, name))
}

func (q *Queries) CreateAccount(ctx context.Context, a core.Account) (int64, error) {
	ts := now()
	var bankID any
	if a.BankID != nil {
		bankID = *a.BankID
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO accounts (store_id, account_type_id, bank_id, account_name, account_number, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.StoreID, a.TypeID, bankID, a.Name, a.Number, a.Active, ts, ts)
	if err != nil {
		return 0, fmt.Errorf("insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("account insert id: %w", err)
	}
	return id, nil
}

func (q *Queries) SetAccountActive(ctx context.Context, id int64, active bool) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE accounts SET is_active = ?, updated_at = ? WHERE id = ?", active, now(), id)
	if err != nil {
		return fmt.Errorf("set account active: %w", err)
	}
	return nil
}

func (q *Queries) DeleteAccount(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// AccountHasBalances reports whether any snapshot balance references the account.
func (q *Queries) AccountHasBalances(ctx context.Context, id int64) (bool, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM account_balances WHERE account_id = ?", id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count account balances: %w", err)
	}
	return n > 0, nil
}

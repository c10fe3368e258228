package core

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	CategoryAsset     Category = "Asset"
	CategoryLiability Category = "Liability"

	StatusDraft     SnapshotStatus = "draft"
	StatusCompleted SnapshotStatus = "completed"

	// WizardStepCount is the number of steps in the capture wizard.
	WizardStepCount = 7
)

type (
	Category       string
	SnapshotStatus string

	// Date is a calendar date without time-of-day, serialized as YYYY-MM-DD.
	Date struct {
		time.Time
	}

	Store struct {
		ID        int64
		Name      string
		Code      string
		Active    bool
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	AccountType struct {
		ID        int64
		Name      string
		Category  Category
		SortOrder int
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	Bank struct {
		ID        int64
		Name      string
		Active    bool
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	Account struct {
		ID        int64
		StoreID   int64
		TypeID    int64
		BankID    *int64
		Name      string
		Number    string
		Active    bool
		CreatedAt time.Time
		UpdatedAt time.Time

		// Denormalized joins, populated by list queries.
		Type *AccountType
		Bank *Bank
	}

	Snapshot struct {
		ID               int64
		StoreID          int64
		Date             Date
		Status           SnapshotStatus
		TotalAssets      decimal.Decimal
		TotalLiabilities decimal.Decimal
		NetPosition      decimal.Decimal
		YTDSales         decimal.Decimal
		YTDProfit        decimal.Decimal
		ProfitMargin     decimal.Decimal
		CreatedBy        string
		Notes            string
		CreatedAt        time.Time
		UpdatedAt        time.Time
	}

	AccountBalance struct {
		ID         int64
		SnapshotID int64
		AccountID  int64
		Balance    decimal.Decimal
		Points     int64
		Sales      *decimal.Decimal
		Orders     *int64
		Spend      *decimal.Decimal
		CPA        *decimal.Decimal
		Profit     *decimal.Decimal
		Notes      string
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	// WizardSession tracks one wizard run. Step payloads are opaque JSON
	// documents keyed by step number 1..WizardStepCount.
	WizardSession struct {
		ID           int64
		Token        string
		StoreID      int64
		SnapshotDate *Date
		CurrentStep  int
		Steps        map[int]json.RawMessage
		CompletedAt  *time.Time
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	HistoricalImport struct {
		ID         int64
		Filename   string
		ImportDate time.Time
		Status     string
		Notes      string
	}

	// BalanceInput is one submitted account balance in a draft or publish
	// request. Balances are stored signed exactly as submitted. The metric
	// fields are optional and only supplied for merchant accounts.
	BalanceInput struct {
		AccountID int64
		Amount    decimal.Decimal
		Points    int64
		Sales     *decimal.Decimal
		Orders    *int64
		Spend     *decimal.Decimal
		CPA       *decimal.Decimal
		Profit    *decimal.Decimal
		Notes     string
	}
)

// Valid reports whether c is a recognized account category.
func (c Category) Valid() bool {
	return c == CategoryAsset || c == CategoryLiability
}

const dateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, NewValidationError("snapshot_date", "must be a YYYY-MM-DD date")
	}
	return Date{Time: t}, nil
}

func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (s *Store) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return NewValidationError("name", "store name is required")
	}
	if strings.TrimSpace(s.Code) == "" {
		return NewValidationError("code", "store code is required")
	}
	if len(s.Code) > 20 {
		return NewValidationError("code", "store code too long (max 20 characters)")
	}
	return nil
}

func (t *AccountType) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return NewValidationError("name", "account type name is required")
	}
	if !t.Category.Valid() {
		return NewValidationError("category", "category must be Asset or Liability")
	}
	return nil
}

func (a *Account) Validate() error {
	if a.StoreID <= 0 {
		return NewValidationError("store_id", "store is required")
	}
	if a.TypeID <= 0 {
		return NewValidationError("account_type_id", "account type is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return NewValidationError("account_name", "account name is required")
	}
	if len(a.Name) > 200 {
		return NewValidationError("account_name", "account name too long (max 200 characters)")
	}
	return nil
}

// Completed reports whether the wizard session reached its terminal state.
func (w *WizardSession) Completed() bool {
	return w.CompletedAt != nil
}

// StepValid reports whether n is a valid wizard step number.
func StepValid(n int) bool {
	return n >= 1 && n <= WizardStepCount
}

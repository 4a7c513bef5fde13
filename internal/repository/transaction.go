package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/bookkeeper/constants"
	"github.com/joseph-ayodele/bookkeeper/internal/common"
	"github.com/joseph-ayodele/bookkeeper/internal/entity"
)

var transactionColumns = []string{
	"id", "date", "type", "category", "vendor_or_customer", "description",
	"amount", "tax_amount", "source_document", "fingerprint", "provider",
	"notes", "flags", "created_at", "modified_at",
}

type TransactionRepository interface {
	Save(ctx context.Context, t *entity.Transaction) (int64, error)
	Exists(ctx context.Context, fingerprint string) (bool, error)
	Get(ctx context.Context, id int64) (*entity.Transaction, error)
	Update(ctx context.Context, t *entity.Transaction) error
	Delete(ctx context.Context, id int64) error
	ListByDateRange(ctx context.Context, from, to *time.Time, txType constants.TxType) ([]*entity.Transaction, error)
}

type transactionRepository struct {
	db     *DB
	now    func() time.Time
	logger *slog.Logger
}

func NewTransactionRepository(db *DB, logger *slog.Logger) TransactionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &transactionRepository{db: db, now: time.Now, logger: logger}
}

func (r *transactionRepository) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.Dialect)
}

// Save inserts a validated record and returns its id. A fingerprint that is already
// stored yields common.ErrDuplicate.
func (r *transactionRepository) Save(ctx context.Context, t *entity.Transaction) (int64, error) {
	if t == nil {
		return 0, common.ErrInvalidInput
	}
	now := r.now().UTC()
	created := t.CreatedAt
	if created.IsZero() {
		created = now
	}

	q, args := r.builder().Insert(transactionsTable).
		Columns(transactionColumns[1:]...).
		Values(
			t.DateString(), string(t.Type), t.Category, t.VendorOrCustomer, t.Description,
			t.Amount.StringFixed(2), t.TaxAmount.StringFixed(2), t.SourceDocument, t.Fingerprint, t.Provider,
			t.Notes, strings.Join(t.Flags, ","), formatTime(created), formatTime(now),
		).
		Returning("id").
		Query()

	rows := &entsql.Rows{}
	if err := r.db.Driver.Query(ctx, q, args, rows); err != nil {
		return 0, r.mapWriteErr("save", t.Fingerprint, err)
	}
	defer rows.Close()

	var id int64
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, r.mapWriteErr("save", t.Fingerprint, err)
		}
		return 0, fmt.Errorf("save transaction: no id returned: %w", common.ErrDatabase)
	}
	if err := rows.Scan(&id); err != nil {
		return 0, fmt.Errorf("save transaction: %w", err)
	}
	t.ID, t.CreatedAt, t.ModifiedAt = id, created, now
	r.logger.Debug("transaction saved", "id", id, "fingerprint", t.Fingerprint)
	return id, nil
}

func (r *transactionRepository) Exists(ctx context.Context, fingerprint string) (bool, error) {
	q, args := r.builder().Select(entsql.Count("*")).
		From(r.builder().Table(transactionsTable)).
		Where(entsql.EQ("fingerprint", fingerprint)).
		Query()

	rows := &entsql.Rows{}
	if err := r.db.Driver.Query(ctx, q, args, rows); err != nil {
		r.logger.Error("failed to check fingerprint", "fingerprint", fingerprint, "error", err)
		return false, fmt.Errorf("exists: %w", err)
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return false, fmt.Errorf("exists: %w", err)
		}
	}
	return n > 0, rows.Err()
}

func (r *transactionRepository) Get(ctx context.Context, id int64) (*entity.Transaction, error) {
	out, err := r.query(ctx, r.builder().Select(transactionColumns...).
		From(r.builder().Table(transactionsTable)).
		Where(entsql.EQ("id", id)))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("transaction %d: %w", id, common.ErrNotFound)
	}
	return out[0], nil
}

// Update rewrites the editable fields and bumps modified_at. Fingerprint and source are immutable.
func (r *transactionRepository) Update(ctx context.Context, t *entity.Transaction) error {
	now := r.now().UTC()
	q, args := r.builder().Update(transactionsTable).
		Set("date", t.DateString()).
		Set("type", string(t.Type)).
		Set("category", t.Category).
		Set("vendor_or_customer", t.VendorOrCustomer).
		Set("description", t.Description).
		Set("amount", t.Amount.StringFixed(2)).
		Set("tax_amount", t.TaxAmount.StringFixed(2)).
		Set("notes", t.Notes).
		Set("flags", strings.Join(t.Flags, ",")).
		Set("modified_at", formatTime(now)).
		Where(entsql.EQ("id", t.ID)).
		Query()

	var res entsql.Result
	if err := r.db.Driver.Exec(ctx, q, args, &res); err != nil {
		return r.mapWriteErr("update", t.Fingerprint, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("transaction %d: %w", t.ID, common.ErrNotFound)
	}
	t.ModifiedAt = now
	return nil
}

func (r *transactionRepository) Delete(ctx context.Context, id int64) error {
	q, args := r.builder().Delete(transactionsTable).Where(entsql.EQ("id", id)).Query()
	var res entsql.Result
	if err := r.db.Driver.Exec(ctx, q, args, &res); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("transaction %d: %w", id, common.ErrNotFound)
	}
	return nil
}

// ListByDateRange returns records with from <= date <= to (either bound optional), oldest first.
// An empty txType matches both income and expense.
func (r *transactionRepository) ListByDateRange(ctx context.Context, from, to *time.Time, txType constants.TxType) ([]*entity.Transaction, error) {
	var preds []*entsql.Predicate
	if from != nil {
		preds = append(preds, entsql.GTE("date", from.Format(time.DateOnly)))
	}
	if to != nil {
		preds = append(preds, entsql.LTE("date", to.Format(time.DateOnly)))
	}
	if txType != "" {
		preds = append(preds, entsql.EQ("type", string(txType)))
	}
	sel := r.builder().Select(transactionColumns...).
		From(r.builder().Table(transactionsTable)).
		OrderBy(entsql.Asc("date"), entsql.Asc("id"))
	if len(preds) > 0 {
		sel = sel.Where(entsql.And(preds...))
	}
	out, err := r.query(ctx, sel)
	if err != nil {
		r.logger.Error("failed to list transactions", "error", err)
		return nil, err
	}
	return out, nil
}

func (r *transactionRepository) query(ctx context.Context, sel *entsql.Selector) ([]*entity.Transaction, error) {
	q, args := sel.Query()
	rows := &entsql.Rows{}
	if err := r.db.Driver.Query(ctx, q, args, rows); err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []*entity.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(rows *entsql.Rows) (*entity.Transaction, error) {
	var (
		t                             entity.Transaction
		date, typ, amount, tax, flags string
		createdAt, modifiedAt         string
	)
	if err := rows.Scan(
		&t.ID, &date, &typ, &t.Category, &t.VendorOrCustomer, &t.Description,
		&amount, &tax, &t.SourceDocument, &t.Fingerprint, &t.Provider,
		&t.Notes, &flags, &createdAt, &modifiedAt,
	); err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	d, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return nil, fmt.Errorf("transaction %d: bad date %q: %w", t.ID, date, err)
	}
	t.Date = d
	t.Type = constants.TxType(typ)
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("transaction %d: bad amount %q: %w", t.ID, amount, err)
	}
	if t.TaxAmount, err = decimal.NewFromString(tax); err != nil {
		return nil, fmt.Errorf("transaction %d: bad tax_amount %q: %w", t.ID, tax, err)
	}
	if flags != "" {
		t.Flags = strings.Split(flags, ",")
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	t.ModifiedAt, _ = time.Parse(time.RFC3339Nano, modifiedAt)
	return &t, nil
}

func (r *transactionRepository) mapWriteErr(op, fingerprint string, err error) error {
	if isUniqueViolation(err) {
		r.logger.Info("duplicate fingerprint", "op", op, "fingerprint", fingerprint)
		return fmt.Errorf("%s transaction: %w", op, common.ErrDuplicate)
	}
	r.logger.Error("failed to write transaction", "op", op, "fingerprint", fingerprint, "error", err)
	return fmt.Errorf("%s transaction: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

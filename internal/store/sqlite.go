package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/domain"
)

// EnsureSchema creates tables if they don't exist.
// Instants are stored as unix nanoseconds so they read back unchanged.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS reminders (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  owner TEXT NOT NULL,
  title TEXT NOT NULL CHECK(length(title) > 0),
  created_at INTEGER NOT NULL,
  deadline INTEGER NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  stream TEXT NOT NULL DEFAULT '',
  topic TEXT NOT NULL DEFAULT '',
  recipients TEXT NOT NULL DEFAULT '[]',
  repeat_value INTEGER CHECK(repeat_value IS NULL OR repeat_value > 0),
  repeat_unit TEXT CHECK(repeat_unit IS NULL OR repeat_unit IN ('minute','hour','day','week')),
  repeat_from INTEGER,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_reminders_owner ON reminders(owner, deadline);
CREATE INDEX IF NOT EXISTS idx_reminders_active ON reminders(active);
CREATE TABLE IF NOT EXISTS deliveries (
  id TEXT PRIMARY KEY,
  reminder_id INTEGER NOT NULL,
  recipient TEXT NOT NULL,
  success INTEGER NOT NULL DEFAULT 0,
  error TEXT,
  delivered_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deliveries_reminder ON deliveries(reminder_id);
`
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	return ensureColumn(db, "reminders", "repeat_from", "INTEGER")
}

// ensureColumn adds a column missing from a table created by an older schema.
func ensureColumn(db *sql.DB, table, column, decl string) error {
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM pragma_table_info(?) WHERE name=?`, table, column).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl))
	return err
}

// Repository is the durable reminder store. Lookups of unknown ids return an
// error wrapping domain.ErrNotFound.
type Repository interface {
	Create(ctx context.Context, r domain.Reminder) (int64, error)
	Get(ctx context.Context, id int64) (domain.Reminder, error)
	ListByOwner(ctx context.Context, owner string) ([]domain.Reminder, error)
	ListActive(ctx context.Context) ([]domain.Reminder, error)
	Delete(ctx context.Context, id int64) error
	SetActive(ctx context.Context, id int64, active bool) error
	// UpdateRecurrence sets the interval and its first occurrence; a zero from
	// anchors the interval at the deadline.
	UpdateRecurrence(ctx context.Context, id int64, iv *domain.Interval, from time.Time) error
	UpdateRecipients(ctx context.Context, id int64, recipients []string) error

	RecordDelivery(ctx context.Context, d domain.Delivery) (string, error)
	ListDeliveries(ctx context.Context, reminderID int64) ([]domain.Delivery, error)
}

type sqliteRepo struct{ db *sql.DB }

func NewSQLiteRepo(db *sql.DB) Repository { return &sqliteRepo{db: db} }

const reminderCols = `id,owner,title,created_at,deadline,active,stream,topic,recipients,repeat_value,repeat_unit,repeat_from`

type scanner interface {
	Scan(dest ...any) error
}

func scanReminder(row scanner) (domain.Reminder, error) {
	var (
		r                 domain.Reminder
		created, deadline int64
		stream, topic     string
		recipients        string
		repeatValue       sql.NullInt64
		repeatUnit        sql.NullString
		repeatFrom        sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Owner, &r.Title, &created, &deadline, &r.Active, &stream, &topic, &recipients, &repeatValue, &repeatUnit, &repeatFrom); err != nil {
		return domain.Reminder{}, err
	}
	r.CreatedAt = time.Unix(0, created)
	r.Deadline = time.Unix(0, deadline)
	if stream != "" || topic != "" {
		r.Destination = &domain.Destination{Stream: stream, Topic: topic}
	}
	if err := json.Unmarshal([]byte(recipients), &r.Recipients); err != nil {
		return domain.Reminder{}, fmt.Errorf("decode recipients of reminder %d: %w", r.ID, err)
	}
	if len(r.Recipients) == 0 {
		r.Recipients = nil
	}
	if repeatValue.Valid && repeatUnit.Valid {
		r.Recurrence = &domain.Interval{Value: int(repeatValue.Int64), Unit: domain.Unit(repeatUnit.String)}
	}
	if repeatFrom.Valid {
		r.RepeatFrom = time.Unix(0, repeatFrom.Int64)
	}
	return r, nil
}

func recurrenceArgs(iv *domain.Interval) (any, any) {
	if iv == nil {
		return nil, nil
	}
	return iv.Value, string(iv.Unit)
}

func instantArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}

func encodeRecipients(recipients []string) (string, error) {
	if recipients == nil {
		recipients = []string{}
	}
	b, err := json.Marshal(recipients)
	return string(b), err
}

func (r *sqliteRepo) Create(ctx context.Context, rem domain.Reminder) (int64, error) {
	var stream, topic string
	if rem.Destination != nil {
		stream, topic = rem.Destination.Stream, rem.Destination.Topic
	}
	recipients, err := encodeRecipients(rem.Recipients)
	if err != nil {
		return 0, err
	}
	repeatValue, repeatUnit := recurrenceArgs(rem.Recurrence)
	res, err := r.db.ExecContext(ctx, `
INSERT INTO reminders (owner,title,created_at,deadline,active,stream,topic,recipients,repeat_value,repeat_unit,repeat_from,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP)
`, rem.Owner, rem.Title, rem.CreatedAt.UnixNano(), rem.Deadline.UnixNano(), rem.Active, stream, topic, recipients, repeatValue, repeatUnit, instantArg(rem.RepeatFrom))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *sqliteRepo) Get(ctx context.Context, id int64) (domain.Reminder, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reminderCols+` FROM reminders WHERE id=?`, id)
	rem, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reminder{}, domain.NotFound(id)
	}
	return rem, err
}

func (r *sqliteRepo) ListByOwner(ctx context.Context, owner string) ([]domain.Reminder, error) {
	return r.list(ctx, `SELECT `+reminderCols+` FROM reminders WHERE owner=? ORDER BY deadline, id`, owner)
}

func (r *sqliteRepo) ListActive(ctx context.Context) ([]domain.Reminder, error) {
	return r.list(ctx, `SELECT `+reminderCols+` FROM reminders WHERE active=1 ORDER BY deadline, id`)
}

func (r *sqliteRepo) list(ctx context.Context, query string, args ...any) ([]domain.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rem)
	}
	return out, rows.Err()
}

func (r *sqliteRepo) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, id, `DELETE FROM reminders WHERE id=?`, id)
}

func (r *sqliteRepo) SetActive(ctx context.Context, id int64, active bool) error {
	return r.exec(ctx, id, `UPDATE reminders SET active=?,updated_at=CURRENT_TIMESTAMP WHERE id=?`, active, id)
}

func (r *sqliteRepo) UpdateRecurrence(ctx context.Context, id int64, iv *domain.Interval, from time.Time) error {
	repeatValue, repeatUnit := recurrenceArgs(iv)
	if iv == nil {
		from = time.Time{}
	}
	return r.exec(ctx, id, `UPDATE reminders SET repeat_value=?,repeat_unit=?,repeat_from=?,updated_at=CURRENT_TIMESTAMP WHERE id=?`, repeatValue, repeatUnit, instantArg(from), id)
}

func (r *sqliteRepo) UpdateRecipients(ctx context.Context, id int64, recipients []string) error {
	enc, err := encodeRecipients(recipients)
	if err != nil {
		return err
	}
	return r.exec(ctx, id, `UPDATE reminders SET recipients=?,updated_at=CURRENT_TIMESTAMP WHERE id=?`, enc, id)
}

// exec runs a single-row statement and maps "no row touched" to ErrNotFound.
func (r *sqliteRepo) exec(ctx context.Context, id int64, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound(id)
	}
	return nil
}

func (r *sqliteRepo) RecordDelivery(ctx context.Context, d domain.Delivery) (string, error) {
	id := d.ID
	if id == "" {
		id = "dlv_" + uuid.NewString()
	}
	if d.DeliveredAt.IsZero() {
		d.DeliveredAt = time.Now()
	}
	var errStr sql.NullString
	if d.Error != "" {
		errStr = sql.NullString{String: d.Error, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO deliveries (id,reminder_id,recipient,success,error,delivered_at) VALUES (?,?,?,?,?,?)`,
		id, d.ReminderID, d.Recipient, d.Success, errStr, d.DeliveredAt.UnixNano())
	return id, err
}

func (r *sqliteRepo) ListDeliveries(ctx context.Context, reminderID int64) ([]domain.Delivery, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id,reminder_id,recipient,success,error,delivered_at FROM deliveries WHERE reminder_id=? ORDER BY delivered_at`, reminderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Delivery
	for rows.Next() {
		var (
			d      domain.Delivery
			errStr sql.NullString
			at     int64
		)
		if err := rows.Scan(&d.ID, &d.ReminderID, &d.Recipient, &d.Success, &errStr, &at); err != nil {
			return nil, err
		}
		d.Error = errStr.String
		d.DeliveredAt = time.Unix(0, at)
		out = append(out, d)
	}
	return out, rows.Err()
}

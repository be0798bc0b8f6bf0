package surface

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"courier/service/action"
	"courier/service/delivery"
)

var ErrNotFound = errors.New("notification not found")

type State string

const (
	StatePresented State = "presented"
	StateCancelled State = "cancelled"
)

type Record struct {
	ID          string
	Title       string
	Body        string
	Actions     []action.Descriptor
	Extras      map[string]string
	State       State
	PresentedAt time.Time
	CancelledAt *time.Time
}

// Ledger records every presented notification and whether it is still showing.
// Cancel is the single point that decides whether an interaction is a duplicate.
type Ledger struct {
	db     *sql.DB
	sealer *Sealer
	logger *slog.Logger
}

func NewLedger(db *sql.DB, sealer *Sealer, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	l := &Ledger{db: db, sealer: sealer, logger: logger}
	if err := l.createTables(); err != nil {
		return nil, err
	}

	if err := l.checkIntegrity(); err != nil {
		if errors.Is(err, ErrSealedDataCorrupted) {
			logger.Warn("Sealed extras unreadable (API_KEY likely changed), clearing them", "error", err)
			if clearErr := l.clearExtras(); clearErr != nil {
				logger.Error("Failed to clear unreadable extras", "error", clearErr)
			}
		} else {
			return nil, err
		}
	}

	return l, nil
}

func (l *Ledger) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			actions TEXT NOT NULL DEFAULT '[]',
			extras_sealed BLOB,
			state TEXT NOT NULL,
			presented_at INTEGER NOT NULL,
			cancelled_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_state ON notifications(state)`,
	}

	for _, query := range queries {
		if _, err := l.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

// Present records a notification as showing. Presenting an id again replaces
// the earlier notification and makes it cancellable once more.
func (l *Ledger) Present(ctx context.Context, rec Record) error {
	actions, err := json.Marshal(rec.Actions)
	if err != nil {
		return fmt.Errorf("failed to encode actions: %w", err)
	}
	if rec.Actions == nil {
		actions = []byte("[]")
	}

	var sealed []byte
	if len(rec.Extras) > 0 {
		plain, err := json.Marshal(rec.Extras)
		if err != nil {
			return fmt.Errorf("failed to encode extras: %w", err)
		}
		if sealed, err = l.sealer.Seal(plain); err != nil {
			return fmt.Errorf("failed to seal extras: %w", err)
		}
	}

	presentedAt := rec.PresentedAt
	if presentedAt.IsZero() {
		presentedAt = time.Now()
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO notifications (id, title, body, actions, extras_sealed, state, presented_at, cancelled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			actions = excluded.actions,
			extras_sealed = excluded.extras_sealed,
			state = excluded.state,
			presented_at = excluded.presented_at,
			cancelled_at = NULL
	`, rec.ID, rec.Title, rec.Body, string(actions), sealed, StatePresented, presentedAt.UnixMilli())
	return err
}

// Cancel transitions a presented notification to cancelled. Only the first
// caller for a given presentation gets delivery.Cancelled.
func (l *Ledger) Cancel(ctx context.Context, id string) (delivery.Cancellation, error) {
	res, err := l.db.ExecContext(ctx, `
		UPDATE notifications SET state = ?, cancelled_at = ?
		WHERE id = ? AND state = ?
	`, StateCancelled, time.Now().UnixMilli(), id, StatePresented)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		return delivery.Cancelled, nil
	}

	var state State
	err = l.db.QueryRowContext(ctx, `SELECT state FROM notifications WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return delivery.NotPresented, nil
	}
	if err != nil {
		return 0, err
	}
	return delivery.AlreadyCancelled, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*Record, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, title, body, actions, extras_sealed, state, presented_at, cancelled_at
		FROM notifications WHERE id = ?
	`, id)

	var rec Record
	var actions string
	var sealed []byte
	var presentedAt int64
	var cancelledAt sql.NullInt64

	err := row.Scan(&rec.ID, &rec.Title, &rec.Body, &actions, &sealed, &rec.State, &presentedAt, &cancelledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(actions), &rec.Actions); err != nil {
		return nil, fmt.Errorf("failed to decode actions: %w", err)
	}
	rec.PresentedAt = time.UnixMilli(presentedAt)
	if cancelledAt.Valid {
		t := time.UnixMilli(cancelledAt.Int64)
		rec.CancelledAt = &t
	}

	rec.Extras = map[string]string{}
	if len(sealed) > 0 {
		plain, err := l.sealer.Open(sealed)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(plain, &rec.Extras); err != nil {
			return nil, fmt.Errorf("failed to decode extras: %w", err)
		}
	}

	return &rec, nil
}

// Active lists notifications that are still showing, newest first.
func (l *Ledger) Active(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id FROM notifications WHERE state = ? ORDER BY presented_at DESC
	`, StatePresented)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Prune deletes cancelled notifications older than the cutoff.
func (l *Ledger) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE state = ? AND cancelled_at < ?
	`, StateCancelled, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (l *Ledger) checkIntegrity() error {
	rows, err := l.db.Query(`SELECT id, extras_sealed FROM notifications WHERE extras_sealed IS NOT NULL`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var sealed []byte
		if err := rows.Scan(&id, &sealed); err != nil {
			return err
		}
		if _, err := l.sealer.Open(sealed); err != nil {
			return fmt.Errorf("extras for %s: %w", id, err)
		}
	}
	return rows.Err()
}

func (l *Ledger) clearExtras() error {
	_, err := l.db.Exec(`UPDATE notifications SET extras_sealed = NULL`)
	return err
}

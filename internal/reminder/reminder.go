// Package reminder schedules medicine reminders. Reminders persist in
// SQLite; a polling loop fires the due ones and publishes a notification
// for each.
package reminder

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/arogyasahayak/sahayak/internal/notify"
)

// Reminder is one recurring medicine schedule for one user.
type Reminder struct {
	ID        int64      `json:"id"`
	UserID    string     `json:"user_id"`
	Medicine  string     `json:"medicine"`
	Dosage    string     `json:"dosage"`
	Schedule  string     `json:"schedule"` // "every 8h" or "daily 09:00,21:00"
	Enabled   bool       `json:"enabled"`
	LastFired *time.Time `json:"last_fired,omitempty"`
	NextRun   time.Time  `json:"next_run"`
	CreatedAt time.Time  `json:"created_at"`
}

// Scheduler owns reminder persistence and the firing loop.
type Scheduler struct {
	db           *sql.DB
	dispatcher   *notify.Dispatcher
	logger       *slog.Logger
	pollInterval time.Duration
}

func New(db *sql.DB, dispatcher *notify.Dispatcher, pollInterval time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("initializing reminder schema: %w", err)
	}
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &Scheduler{
		db:           db,
		dispatcher:   dispatcher,
		logger:       logger,
		pollInterval: pollInterval,
	}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			medicine TEXT NOT NULL,
			dosage TEXT DEFAULT '',
			schedule TEXT NOT NULL,
			enabled BOOLEAN DEFAULT 1,
			last_fired DATETIME,
			next_run DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_reminders_user ON reminders(user_id);
		CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(enabled, next_run);
	`)
	return err
}

// Create adds a reminder and computes its first firing time.
func (s *Scheduler) Create(ctx context.Context, userID, medicine, dosage, schedule string) (int64, error) {
	nextRun, err := computeNextRun(schedule, time.Now())
	if err != nil {
		return 0, fmt.Errorf("invalid schedule: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (user_id, medicine, dosage, schedule, next_run)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, medicine, dosage, schedule, nextRun,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// List returns a user's reminders, soonest first.
func (s *Scheduler) List(ctx context.Context, userID string) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, medicine, dosage, schedule, enabled, last_fired, next_run, created_at
		 FROM reminders WHERE user_id = ? ORDER BY next_run ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []Reminder
	for rows.Next() {
		var r Reminder
		var lastFired sql.NullTime
		if err := rows.Scan(&r.ID, &r.UserID, &r.Medicine, &r.Dosage, &r.Schedule,
			&r.Enabled, &lastFired, &r.NextRun, &r.CreatedAt); err != nil {
			return nil, err
		}
		if lastFired.Valid {
			r.LastFired = &lastFired.Time
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// Delete removes a user's reminder. Deleting someone else's reminder is
// a no-op, reported as not found.
func (s *Scheduler) Delete(ctx context.Context, userID string, id int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM reminders WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("reminder %d not found", id)
	}
	return nil
}

// Pause disables a reminder without deleting it.
func (s *Scheduler) Pause(ctx context.Context, userID string, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE reminders SET enabled = 0 WHERE id = ? AND user_id = ?", id, userID)
	return err
}

// Resume re-enables a reminder and reschedules it from now.
func (s *Scheduler) Resume(ctx context.Context, userID string, id int64) error {
	var schedule string
	err := s.db.QueryRowContext(ctx,
		"SELECT schedule FROM reminders WHERE id = ? AND user_id = ?", id, userID,
	).Scan(&schedule)
	if err != nil {
		return err
	}

	nextRun, err := computeNextRun(schedule, time.Now())
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE reminders SET enabled = 1, next_run = ? WHERE id = ? AND user_id = ?",
		nextRun, id, userID)
	return err
}

// Start begins the polling loop.
func (s *Scheduler) Start(ctx context.Context) {
	go s.pollLoop(ctx)
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.fireDue(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context) {
	now := time.Now()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, medicine, dosage, schedule, next_run
		 FROM reminders WHERE enabled = 1 AND next_run <= ?`, now)
	if err != nil {
		s.logger.Error("checking due reminders", "error", err)
		return
	}

	type due struct {
		id       int64
		userID   string
		medicine string
		dosage   string
		schedule string
		nextRun  time.Time
	}
	var dues []due
	for rows.Next() {
		var d due
		if err := rows.Scan(&d.id, &d.userID, &d.medicine, &d.dosage, &d.schedule, &d.nextRun); err != nil {
			s.logger.Error("scanning reminder", "error", err)
			continue
		}
		dues = append(dues, d)
	}
	rows.Close()

	for _, d := range dues {
		body := "Time to take " + d.medicine
		if d.dosage != "" {
			body += " (" + d.dosage + ")"
		}
		s.dispatcher.Publish(notify.Notification{
			UserID: d.userID,
			Kind:   notify.KindMedicineReminder,
			Title:  d.medicine,
			Body:   body,
			DueAt:  d.nextRun,
		})

		nextRun, err := computeNextRun(d.schedule, now)
		if err != nil {
			s.logger.Error("rescheduling reminder", "id", d.id, "error", err)
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			"UPDATE reminders SET last_fired = ?, next_run = ? WHERE id = ?",
			now, nextRun, d.id); err != nil {
			s.logger.Error("updating reminder", "id", d.id, "error", err)
		}

		s.logger.Info("reminder fired", "id", d.id, "user", d.userID, "medicine", d.medicine)
	}
}

package waitlist

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrApplicationNotFound = stderrors.New("application not found")

// ApplicationStore is the Postgres applicant store.
type ApplicationStore struct {
	db *sql.DB
}

func NewApplicationStore(db *sql.DB) *ApplicationStore {
	return &ApplicationStore{db: db}
}

const applicationColumns = `id, email, user_id, answers, score, status, email_verified, created_at, approved_at`

// SelectPending returns up to limit pending applications, oldest first.
func (s *ApplicationStore) SelectPending(ctx context.Context, limit int) ([]Application, error) {
	query := `SELECT ` + applicationColumns + `
		FROM waitlist_applications
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending applications: %w", err)
	}
	defer rows.Close()

	var apps []Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending applications: %w", err)
	}
	return apps, nil
}

func (s *ApplicationStore) SelectByID(ctx context.Context, id string) (*Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM waitlist_applications WHERE id = $1`

	app, err := scanApplication(s.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrApplicationNotFound
	}
	return app, err
}

// Insert stores a new application. Empty ID, Status and CreatedAt are filled in.
func (s *ApplicationStore) Insert(ctx context.Context, app *Application) error {
	if app.ID == "" {
		app.ID = uuid.New().String()
	}
	if app.Status == "" {
		app.Status = StatusPending
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now().UTC()
	}
	answers, err := json.Marshal(app.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	query := `
		INSERT INTO waitlist_applications (id, email, user_id, answers, score, status, email_verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		app.ID, app.Email, sql.NullString{String: app.UserID, Valid: app.UserID != ""},
		answers, app.Score, app.Status, app.EmailVerified, app.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *ApplicationStore) CountApproved(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT approved_count FROM waitlist_capacity WHERE id = 1`).Scan(&n)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count approved: %w", err)
	}
	return n, nil
}

// ApproveWithCeiling claims one capacity slot and approves the application in a
// single transaction. It returns false without changing anything when the
// counter has already reached ceiling.
func (s *ApplicationStore) ApproveWithCeiling(ctx context.Context, id string, ceiling int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin approval: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx, `
		UPDATE waitlist_capacity
		SET approved_count = approved_count + 1
		WHERE id = 1 AND approved_count < $1
		RETURNING approved_count`, ceiling).Scan(&count)
	if stderrors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim capacity: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE waitlist_applications
		SET status = $1, approved_at = NOW()
		WHERE id = $2 AND status = $3`, StatusApproved, id, StatusPending)
	if err != nil {
		return false, fmt.Errorf("approve application: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit approval: %w", err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*Application, error) {
	var (
		app        Application
		userID     sql.NullString
		answers    []byte
		approvedAt sql.NullTime
	)
	err := row.Scan(&app.ID, &app.Email, &userID, &answers, &app.Score, &app.Status,
		&app.EmailVerified, &app.CreatedAt, &approvedAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan application: %w", err)
	}
	app.UserID = userID.String
	if approvedAt.Valid {
		t := approvedAt.Time
		app.ApprovedAt = &t
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &app.Answers); err != nil {
			return nil, fmt.Errorf("decode answers for %s: %w", app.ID, err)
		}
	}
	return &app, nil
}

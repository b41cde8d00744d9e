package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wespeak/backend/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict signals a stats version mismatch on save; the caller
	// reloads and retries.
	ErrConflict = errors.New("stats version conflict")
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) CreateOrganization(ctx context.Context, org models.Organization) (string, error) {
	statsJSON, err := json.Marshal(org.Stats)
	if err != nil {
		return "", err
	}
	var id string
	err = s.Pool.QueryRow(ctx, `
		INSERT INTO organizations (name, sector, info, followers, is_crisis, stats, stats_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, NOW())
		RETURNING id
	`, org.Name, org.Sector, org.Info, org.Followers, org.IsCrisis, statsJSON).Scan(&id)
	return id, err
}

func (s *Store) GetOrganization(ctx context.Context, id string) (models.Organization, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, name, sector, info, followers, is_crisis, stats, stats_version, created_at
		FROM organizations WHERE id = $1
	`, id)

	var (
		org       models.Organization
		statsJSON []byte
	)
	if err := row.Scan(&org.ID, &org.Name, &org.Sector, &org.Info, &org.Followers, &org.IsCrisis, &statsJSON, &org.StatsVersion, &org.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Organization{}, ErrNotFound
		}
		return models.Organization{}, err
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &org.Stats); err != nil {
			return models.Organization{}, err
		}
	}
	return org, nil
}

func (s *Store) ListOrganizations(ctx context.Context) ([]models.Organization, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, name, sector, info, followers, is_crisis, stats, stats_version, created_at
		FROM organizations ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Organization
	for rows.Next() {
		var (
			org       models.Organization
			statsJSON []byte
		)
		if err := rows.Scan(&org.ID, &org.Name, &org.Sector, &org.Info, &org.Followers, &org.IsCrisis, &statsJSON, &org.StatsVersion, &org.CreatedAt); err != nil {
			return nil, err
		}
		if len(statsJSON) > 0 {
			if err := json.Unmarshal(statsJSON, &org.Stats); err != nil {
				return nil, err
			}
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

func (s *Store) ListOrganizationIDs(ctx context.Context) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id FROM organizations ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SaveStats writes the aggregate record guarded by the version read with
// it. A concurrent writer bumps the version first and this update matches
// zero rows, surfacing ErrConflict.
func (s *Store) SaveStats(ctx context.Context, id string, stats models.Stats, isCrisis bool, version int64) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE organizations
		SET stats = $1, is_crisis = $2, stats_version = stats_version + 1
		WHERE id = $3 AND stats_version = $4
	`, statsJSON, isCrisis, id, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM organizations WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (s *Store) CreateComplaint(ctx context.Context, c models.Complaint) (string, error) {
	var id string
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO complaints (company_id, user_id, topic, message, location, reimbursement, anonymous, state, reopen, created)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9)
		RETURNING id
	`, c.CompanyID, c.UserID, c.Topic, c.Message, c.Location, c.Reimbursement, c.Anonymous, int(c.State), c.Created).Scan(&id)
	return id, err
}

func (s *Store) GetComplaint(ctx context.Context, id string) (models.Complaint, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, company_id, user_id, topic, message, location, reimbursement, anonymous, state, reopen, created
		FROM complaints WHERE id = $1
	`, id)

	var (
		c     models.Complaint
		state int
	)
	if err := row.Scan(&c.ID, &c.CompanyID, &c.UserID, &c.Topic, &c.Message, &c.Location, &c.Reimbursement, &c.Anonymous, &state, &c.Reopen, &c.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Complaint{}, ErrNotFound
		}
		return models.Complaint{}, err
	}
	c.State = models.ComplaintState(state)
	return c, nil
}

func (s *Store) UpdateComplaintState(ctx context.Context, id string, state models.ComplaintState, reopen bool) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE complaints SET state = $1, reopen = $2 WHERE id = $3
	`, int(state), reopen, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListComplaints(ctx context.Context, companyID string) ([]models.Complaint, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, company_id, user_id, topic, message, location, reimbursement, anonymous, state, reopen, created
		FROM complaints WHERE company_id = $1 ORDER BY created ASC
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Complaint
	for rows.Next() {
		var (
			c     models.Complaint
			state int
		)
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.UserID, &c.Topic, &c.Message, &c.Location, &c.Reimbursement, &c.Anonymous, &state, &c.Reopen, &c.Created); err != nil {
			return nil, err
		}
		c.State = models.ComplaintState(state)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CountReplies(ctx context.Context, companyID string) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM chats WHERE company_id = $1`, companyID).Scan(&n)
	return n, err
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (s *Store) CreateSweepRun(ctx context.Context, status string) (string, error) {
	var id string
	err := s.Pool.QueryRow(ctx, `INSERT INTO sweep_runs (status, started_at) VALUES ($1, NOW()) RETURNING id`, status).Scan(&id)
	return id, err
}

func (s *Store) FinishSweepRun(ctx context.Context, runID string, status string, summary []byte) error {
	_, err := s.Pool.Exec(ctx, `UPDATE sweep_runs SET status = $1, summary = $2, finished_at = NOW() WHERE id = $3`, status, summary, runID)
	return err
}

func (s *Store) GetLatestSweepRun(ctx context.Context) (models.SweepRun, error) {
	row := s.Pool.QueryRow(ctx, `SELECT id, started_at, finished_at, status, summary FROM sweep_runs ORDER BY started_at DESC LIMIT 1`)

	var (
		run      models.SweepRun
		finished *time.Time
	)
	if err := row.Scan(&run.ID, &run.StartedAt, &finished, &run.Status, &run.Summary); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.SweepRun{}, ErrNotFound
		}
		return models.SweepRun{}, err
	}
	run.FinishedAt = finished
	return run, nil
}

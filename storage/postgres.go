package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"staywatch/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// =============================================================================
// Accommodations
// =============================================================================

// GetDueAccommodations returns active accommodations whose last check is
// older than the given interval (or that were never checked), skipping
// stays whose check-out date has already passed.
func (s *PostgresStore) GetDueAccommodations(ctx context.Context, interval time.Duration, limit int) ([]models.Accommodation, error) {
	query := `
		SELECT id, user_id, platform, url, check_in, check_out, guests, active,
			last_status, last_price, checked_at, created_at, updated_at
		FROM accommodations
		WHERE active = TRUE
			AND check_out >= CURRENT_DATE
			AND (checked_at IS NULL OR checked_at < $1)
		ORDER BY checked_at NULLS FIRST
		LIMIT $2`

	due := time.Now().Add(-interval)
	rows, err := s.pool.Query(ctx, query, due, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accs []models.Accommodation
	for rows.Next() {
		var a models.Accommodation
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.Platform, &a.URL, &a.CheckIn, &a.CheckOut, &a.Guests, &a.Active,
			&a.LastStatus, &a.LastPrice, &a.CheckedAt, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		accs = append(accs, a)
	}
	return accs, rows.Err()
}

func (s *PostgresStore) GetAccommodationByID(ctx context.Context, id uuid.UUID) (*models.Accommodation, error) {
	query := `
		SELECT id, user_id, platform, url, check_in, check_out, guests, active,
			last_status, last_price, checked_at, created_at, updated_at
		FROM accommodations WHERE id = $1`

	var a models.Accommodation
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.UserID, &a.Platform, &a.URL, &a.CheckIn, &a.CheckOut, &a.Guests, &a.Active,
		&a.LastStatus, &a.LastPrice, &a.CheckedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAccommodationResult writes the outcome of one check back onto the
// accommodation row.
func (s *PostgresStore) UpdateAccommodationResult(ctx context.Context, id uuid.UUID, status models.CheckStatus, price *string, checkedAt time.Time) error {
	query := `
		UPDATE accommodations
		SET last_status = $2, last_price = COALESCE($3, last_price), checked_at = $4, updated_at = NOW()
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query, id, status, price, checkedAt)
	return err
}

// =============================================================================
// Check Logs
// =============================================================================

func (s *PostgresStore) CreateCheckLog(ctx context.Context, cl *models.CheckLog) error {
	if cl.ID == uuid.Nil {
		cl.ID = uuid.New()
	}
	query := `
		INSERT INTO check_logs (id, accommodation_id, status, price, error_message, notification_sent, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		cl.ID, cl.AccommodationID, cl.Status, cl.Price, cl.ErrorMessage, cl.NotificationSent, cl.CheckedAt,
	).Scan(&cl.ID)
}

func (s *PostgresStore) MarkCheckLogNotified(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE check_logs SET notification_sent = TRUE WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, id)
	return err
}

func (s *PostgresStore) GetRecentCheckLogs(ctx context.Context, accommodationID uuid.UUID, limit int) ([]models.CheckLog, error) {
	query := `
		SELECT id, accommodation_id, status, price, error_message, notification_sent, checked_at
		FROM check_logs
		WHERE accommodation_id = $1
		ORDER BY checked_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, accommodationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.CheckLog
	for rows.Next() {
		var cl models.CheckLog
		if err := rows.Scan(
			&cl.ID, &cl.AccommodationID, &cl.Status, &cl.Price, &cl.ErrorMessage, &cl.NotificationSent, &cl.CheckedAt,
		); err != nil {
			return nil, err
		}
		logs = append(logs, cl)
	}
	return logs, rows.Err()
}

// PruneCheckLogs deletes logs older than the cutoff and returns how many
// rows went away.
func (s *PostgresStore) PruneCheckLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM check_logs WHERE checked_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// =============================================================================
// Selector Configs & Patterns
// =============================================================================

func (s *PostgresStore) GetSelectorConfigs(ctx context.Context, platform models.Platform) ([]models.SelectorConfig, error) {
	query := `
		SELECT id, platform, category, name, selector, COALESCE(extractor, ''), priority, active
		FROM selector_configs
		WHERE platform = $1 AND active = TRUE
		ORDER BY category, priority`

	rows, err := s.pool.Query(ctx, query, platform)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []models.SelectorConfig
	for rows.Next() {
		var sc models.SelectorConfig
		if err := rows.Scan(&sc.ID, &sc.Platform, &sc.Category, &sc.Name, &sc.Selector, &sc.Extractor, &sc.Priority, &sc.Active); err != nil {
			return nil, err
		}
		configs = append(configs, sc)
	}
	return configs, rows.Err()
}

func (s *PostgresStore) GetPatterns(ctx context.Context, platform models.Platform) ([]models.Pattern, error) {
	query := `
		SELECT id, platform, bucket, value, priority, active
		FROM patterns
		WHERE platform = $1 AND active = TRUE
		ORDER BY bucket, priority`

	rows, err := s.pool.Query(ctx, query, platform)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []models.Pattern
	for rows.Next() {
		var p models.Pattern
		if err := rows.Scan(&p.ID, &p.Platform, &p.Bucket, &p.Value, &p.Priority, &p.Active); err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// =============================================================================
// Users & Credentials
// =============================================================================

// GetUserWithCredential loads a user plus their messaging credential, if
// one is linked. A user without a credential comes back with Credential nil.
func (s *PostgresStore) GetUserWithCredential(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT id, email FROM users WHERE id = $1`

	var u models.User
	err := s.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Email)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	credQuery := `
		SELECT user_id, provider_id, access_token, COALESCE(refresh_token, ''), expires_at
		FROM messaging_credentials WHERE user_id = $1`

	var c models.MessagingCredential
	err = s.pool.QueryRow(ctx, credQuery, id).Scan(&c.UserID, &c.ProviderID, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt)
	if err == pgx.ErrNoRows {
		return &u, nil
	}
	if err != nil {
		return nil, err
	}
	u.Credential = &c
	return &u, nil
}

// =============================================================================
// Settings
// =============================================================================

func (s *PostgresStore) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

// =============================================================================
// Check Runs
// =============================================================================

func (s *PostgresStore) CreateCheckRun(ctx context.Context, run *models.CheckRun) error {
	query := `
		INSERT INTO check_runs (started_at, status, checked, available, unavailable, errors, notifications)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		run.StartedAt, run.Status, run.Checked, run.Available, run.Unavailable, run.Errors, run.Notifications,
	).Scan(&run.ID)
}

func (s *PostgresStore) UpdateCheckRun(ctx context.Context, run *models.CheckRun) error {
	query := `
		UPDATE check_runs SET
			finished_at = $2, status = $3, checked = $4, available = $5,
			unavailable = $6, errors = $7, notifications = $8
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query,
		run.ID, run.FinishedAt, run.Status, run.Checked, run.Available, run.Unavailable, run.Errors, run.Notifications,
	)
	return err
}

package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"staywatch/models"
)

// SQLiteStore holds operational data that stays on the worker host:
// the operator command queue and a local mirror of cycle runs.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT NOT NULL,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS check_runs (
		id INTEGER PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		status TEXT NOT NULL,
		checked INTEGER DEFAULT 0,
		available INTEGER DEFAULT 0,
		unavailable INTEGER DEFAULT 0,
		errors INTEGER DEFAULT 0,
		notifications INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_runs_started ON check_runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) EnqueueCommand(cmd models.CommandType, params *models.CommandParams) error {
	var raw []byte
	if params != nil {
		var err error
		raw, err = json.Marshal(params)
		if err != nil {
			return err
		}
	}
	_, err := s.db.Exec(`INSERT INTO commands (command, params) VALUES (?, ?)`, string(cmd), raw)
	return err
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, COALESCE(params, '{}'), created_at
		FROM commands
		WHERE processed_at IS NULL
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params string
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt); err != nil {
			return nil, err
		}
		cmd.Params = json.RawMessage(params)
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func (s *SQLiteStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	params := &models.CommandParams{}
	if len(cmd.Params) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(cmd.Params, params); err != nil {
		return nil, err
	}
	return params, nil
}

// =============================================================================
// Run mirror
// =============================================================================

func (s *SQLiteStore) RecordRunStart(run *models.CheckRun) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO check_runs (started_at, status) VALUES (?, ?)`,
		run.StartedAt, string(run.Status))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) RecordRunFinish(localID int64, run *models.CheckRun) error {
	_, err := s.db.Exec(`
		UPDATE check_runs SET
			finished_at = ?, status = ?, checked = ?, available = ?,
			unavailable = ?, errors = ?, notifications = ?
		WHERE id = ?`,
		run.FinishedAt, string(run.Status), run.Checked, run.Available,
		run.Unavailable, run.Errors, run.Notifications, localID)
	return err
}

func (s *SQLiteStore) GetLastRunTime() (time.Time, error) {
	var ts time.Time
	err := s.db.QueryRow(`SELECT started_at FROM check_runs ORDER BY started_at DESC LIMIT 1`).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return ts, nil
}

func (s *SQLiteStore) GetLastRun() (*models.CheckRun, error) {
	row := s.db.QueryRow(`
		SELECT id, started_at, finished_at, status, checked, available, unavailable, errors, notifications
		FROM check_runs ORDER BY id DESC LIMIT 1`)

	var run models.CheckRun
	var finished sql.NullTime
	err := row.Scan(&run.ID, &run.StartedAt, &finished, &run.Status,
		&run.Checked, &run.Available, &run.Unavailable, &run.Errors, &run.Notifications)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}

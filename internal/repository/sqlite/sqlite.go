package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/promptwizard/internal/domain"
	"github.com/dshills/promptwizard/internal/engine"
	"github.com/dshills/promptwizard/internal/repository"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// timeFormat has fixed-width fractional seconds so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// New creates a new SQLite repository.
func New(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := repo.seedModels(); err != nil {
		return nil, fmt.Errorf("seed models: %w", err)
	}

	return repo, nil
}

func (r *SQLiteRepository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		goal TEXT NOT NULL,
		current_step TEXT NOT NULL,
		answers TEXT NOT NULL DEFAULT '{}', -- JSON object, insertion ordered
		template TEXT,
		variables TEXT NOT NULL DEFAULT '[]', -- JSON array
		variable_values TEXT NOT NULL DEFAULT '{}', -- JSON object
		test_results TEXT NOT NULL DEFAULT '[]' -- JSON array
	);

	CREATE TABLE IF NOT EXISTS prompts (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		session_id TEXT REFERENCES sessions(id),
		template TEXT NOT NULL,
		variables TEXT NOT NULL DEFAULT '{}', -- JSON object
		resolved_prompt TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_prompts_session ON prompts(session_id);

	CREATE TABLE IF NOT EXISTS results (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		prompt_id TEXT NOT NULL REFERENCES prompts(id),
		model TEXT NOT NULL,
		temperature REAL NOT NULL,
		response TEXT NOT NULL,
		response_time INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_results_prompt ON results(prompt_id);

	CREATE TABLE IF NOT EXISTS models (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		provider TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := r.db.Exec(schema)
	return err
}

func (r *SQLiteRepository) seedModels() error {
	for _, m := range repository.DefaultModels() {
		_, err := r.db.Exec(
			`INSERT OR IGNORE INTO models (id, name, provider, description, is_active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.Name, m.Provider, m.Description, m.IsActive,
			m.CreatedAt.Format(timeFormat), m.UpdatedAt.Format(timeFormat))
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Sessions

func (r *SQLiteRepository) CreateSession(ctx context.Context, s *domain.Session) error {
	cols, err := encodeSession(s)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, updated_at, goal, current_step, answers, template, variables, variable_values, test_results)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID.String(), s.CreatedAt.UTC().Format(timeFormat), s.UpdatedAt.UTC().Format(timeFormat),
		s.Goal, string(s.CurrentStep), cols.answers, cols.template, cols.variables, cols.values, cols.results)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return domain.ErrConflict
	}
	return err
}

func (r *SQLiteRepository) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	return getSession(ctx, r.db, id)
}

// UpdateSession applies the update inside a transaction and returns the stored session.
func (r *SQLiteRepository) UpdateSession(ctx context.Context, id uuid.UUID, update domain.SessionUpdate) (*domain.Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	s, err := getSession(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	repository.ApplyUpdate(s, update)
	s.UpdatedAt = time.Now().UTC()

	cols, err := encodeSession(s)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ?, current_step = ?, answers = ?, template = ?,
		 variables = ?, variable_values = ?, test_results = ? WHERE id = ?`,
		s.UpdatedAt.Format(timeFormat), string(s.CurrentStep), cols.answers, cols.template,
		cols.variables, cols.values, cols.results, id.String())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSession(ctx context.Context, q querier, id uuid.UUID) (*domain.Session, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, created_at, updated_at, goal, current_step, answers, template, variables, variable_values, test_results
		 FROM sessions WHERE id = ?`, id.String())

	var s domain.Session
	var idStr, createdStr, updatedStr, stepStr, answersJSON, varsJSON, valuesJSON, resultsJSON string
	var tmpl sql.NullString
	if err := row.Scan(&idStr, &createdStr, &updatedStr, &s.Goal, &stepStr, &answersJSON, &tmpl, &varsJSON, &valuesJSON, &resultsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	var err error
	if s.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = time.Parse(timeFormat, createdStr); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = time.Parse(timeFormat, updatedStr); err != nil {
		return nil, err
	}
	s.CurrentStep = domain.Step(stepStr)
	if tmpl.Valid {
		s.Template = &tmpl.String
	}

	s.Answers = engine.NewAnswers()
	if err := json.Unmarshal([]byte(answersJSON), s.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal([]byte(varsJSON), &s.Variables); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}
	if err := json.Unmarshal([]byte(valuesJSON), &s.VariableValues); err != nil {
		return nil, fmt.Errorf("decode variable values: %w", err)
	}
	if err := json.Unmarshal([]byte(resultsJSON), &s.TestResults); err != nil {
		return nil, fmt.Errorf("decode test results: %w", err)
	}
	repository.Normalize(&s)
	return &s, nil
}

type sessionColumns struct {
	answers   string
	template  interface{}
	variables string
	values    string
	results   string
}

func encodeSession(s *domain.Session) (sessionColumns, error) {
	c := repository.CloneSession(s)
	repository.Normalize(c)

	var cols sessionColumns
	answersJSON, err := json.Marshal(c.Answers)
	if err != nil {
		return cols, fmt.Errorf("encode answers: %w", err)
	}
	varsJSON, _ := json.Marshal(c.Variables)
	valuesJSON, _ := json.Marshal(c.VariableValues)
	resultsJSON, _ := json.Marshal(c.TestResults)

	cols.answers = string(answersJSON)
	cols.variables = string(varsJSON)
	cols.values = string(valuesJSON)
	cols.results = string(resultsJSON)
	if c.Template != nil {
		cols.template = *c.Template
	}
	return cols, nil
}

// Prompts

func (r *SQLiteRepository) CreatePrompt(ctx context.Context, p *domain.Prompt) error {
	varsJSON, err := json.Marshal(nonNilMap(p.Variables))
	if err != nil {
		return fmt.Errorf("encode variables: %w", err)
	}
	var sessionID interface{}
	if p.SessionID != nil {
		sessionID = p.SessionID.String()
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO prompts (id, created_at, session_id, template, variables, resolved_prompt) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.CreatedAt.UTC().Format(timeFormat), sessionID, p.Template, string(varsJSON), p.ResolvedPrompt)
	return err
}

func (r *SQLiteRepository) GetPrompt(ctx context.Context, id uuid.UUID) (*domain.Prompt, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, created_at, session_id, template, variables, resolved_prompt FROM prompts WHERE id = ?`, id.String())

	var p domain.Prompt
	var idStr, createdStr, varsJSON string
	var sessionID sql.NullString
	if err := row.Scan(&idStr, &createdStr, &sessionID, &p.Template, &varsJSON, &p.ResolvedPrompt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	var err error
	if p.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = time.Parse(timeFormat, createdStr); err != nil {
		return nil, err
	}
	if sessionID.Valid {
		sid, err := uuid.Parse(sessionID.String)
		if err != nil {
			return nil, err
		}
		p.SessionID = &sid
	}
	if err := json.Unmarshal([]byte(varsJSON), &p.Variables); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}
	return &p, nil
}

// Results

func (r *SQLiteRepository) CreateResult(ctx context.Context, res *domain.Result) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO results (id, created_at, prompt_id, model, temperature, response, response_time) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.ID.String(), res.CreatedAt.UTC().Format(timeFormat), res.PromptID.String(),
		res.Model, res.Temperature, res.Response, res.ResponseTime)
	return err
}

func (r *SQLiteRepository) ListResultsForPrompt(ctx context.Context, promptID uuid.UUID) ([]*domain.Result, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, prompt_id, model, temperature, response, response_time
		 FROM results WHERE prompt_id = ? ORDER BY created_at DESC`, promptID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.Result
	for rows.Next() {
		var res domain.Result
		var idStr, createdStr, promptStr string
		if err := rows.Scan(&idStr, &createdStr, &promptStr, &res.Model, &res.Temperature, &res.Response, &res.ResponseTime); err != nil {
			return nil, err
		}
		if res.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		if res.PromptID, err = uuid.Parse(promptStr); err != nil {
			return nil, err
		}
		if res.CreatedAt, err = time.Parse(timeFormat, createdStr); err != nil {
			return nil, err
		}
		results = append(results, &res)
	}
	return results, rows.Err()
}

// Models

func (r *SQLiteRepository) ListActiveModels(ctx context.Context) ([]*domain.Model, error) {
	return r.listModels(ctx, `SELECT id, name, provider, description, is_active, created_at, updated_at
		FROM models WHERE is_active = 1 ORDER BY name ASC`)
}

func (r *SQLiteRepository) ListModels(ctx context.Context) ([]*domain.Model, error) {
	return r.listModels(ctx, `SELECT id, name, provider, description, is_active, created_at, updated_at
		FROM models ORDER BY name ASC`)
}

func (r *SQLiteRepository) listModels(ctx context.Context, query string) ([]*domain.Model, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []*domain.Model
	for rows.Next() {
		var m domain.Model
		var createdStr, updatedStr string
		if err := rows.Scan(&m.ID, &m.Name, &m.Provider, &m.Description, &m.IsActive, &createdStr, &updatedStr); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = time.Parse(timeFormat, createdStr); err != nil {
			return nil, err
		}
		if m.UpdatedAt, err = time.Parse(timeFormat, updatedStr); err != nil {
			return nil, err
		}
		models = append(models, &m)
	}
	return models, rows.Err()
}

func (r *SQLiteRepository) UpsertModel(ctx context.Context, m *domain.Model) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO models (id, name, provider, description, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, provider = excluded.provider,
		 description = excluded.description, is_active = excluded.is_active, updated_at = excluded.updated_at`,
		m.ID, m.Name, m.Provider, m.Description, m.IsActive,
		m.CreatedAt.UTC().Format(timeFormat), m.UpdatedAt.UTC().Format(timeFormat))
	return err
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// Ensure SQLiteRepository implements repository.Repository
var _ repository.Repository = (*SQLiteRepository)(nil)

// Package postgres implements the repository against PostgreSQL through the
// pgx database/sql driver.
package postgres

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
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	uniqueViolation = "23505"

	sessionColumns = `id, created_at, updated_at, goal, current_step, answers, template, variables, variable_values, test_results`
	promptColumns  = `id, created_at, session_id, template, variables, resolved_prompt`
	resultColumns  = `id, created_at, prompt_id, model, temperature, response, response_time`
	modelColumns   = `id, name, provider, description, is_active, created_at, updated_at`
)

// Options configures the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnTimeout     time.Duration
}

// PostgresRepository implements Repository using PostgreSQL.
// The schema is owned by the embedded migrations; see Migrate.
type PostgresRepository struct {
	db *sql.DB
}

// New opens the pool and verifies connectivity.
func New(ctx context.Context, dsn string, opts Options) (*PostgresRepository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	timeout := opts.ConnTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// Sessions

func (r *PostgresRepository) CreateSession(ctx context.Context, s *domain.Session) error {
	cols, err := encodeSession(s)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8::jsonb, $9::jsonb, $10::jsonb)`,
		s.ID, s.CreatedAt.UTC(), s.UpdatedAt.UTC(), s.Goal, string(s.CurrentStep),
		cols.answers, cols.template, cols.variables, cols.values, cols.results)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrConflict
	}
	return err
}

func (r *PostgresRepository) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	return repository.QueryOne(ctx, r.db,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, []any{id}, scanSession)
}

// UpdateSession locks the row, applies the update and writes it back in one transaction.
func (r *PostgresRepository) UpdateSession(ctx context.Context, id uuid.UUID, update domain.SessionUpdate) (*domain.Session, error) {
	return repository.WithTx(ctx, r.db, func(tx *sql.Tx) (*domain.Session, error) {
		s, err := repository.QueryOne(ctx, tx,
			`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, []any{id}, scanSession)
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
			`UPDATE sessions SET updated_at = $1, current_step = $2, answers = $3::jsonb, template = $4,
			 variables = $5::jsonb, variable_values = $6::jsonb, test_results = $7::jsonb WHERE id = $8`,
			s.UpdatedAt, string(s.CurrentStep), cols.answers, cols.template,
			cols.variables, cols.values, cols.results, id)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

func scanSession(sc repository.Scanner) (*domain.Session, error) {
	var s domain.Session
	var step string
	var tmpl sql.NullString
	var answersJSON, varsJSON, valuesJSON, resultsJSON []byte
	if err := sc.Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt, &s.Goal, &step,
		&answersJSON, &tmpl, &varsJSON, &valuesJSON, &resultsJSON); err != nil {
		return nil, err
	}
	s.CurrentStep = domain.Step(step)
	if tmpl.Valid {
		s.Template = &tmpl.String
	}

	var pairs []answerPair
	if err := json.Unmarshal(answersJSON, &pairs); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	s.Answers = engine.NewAnswers()
	for _, p := range pairs {
		s.Answers.Set(p.Key, p.Value)
	}
	if err := json.Unmarshal(varsJSON, &s.Variables); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}
	if err := json.Unmarshal(valuesJSON, &s.VariableValues); err != nil {
		return nil, fmt.Errorf("decode variable values: %w", err)
	}
	if err := json.Unmarshal(resultsJSON, &s.TestResults); err != nil {
		return nil, fmt.Errorf("decode test results: %w", err)
	}
	repository.Normalize(&s)
	return &s, nil
}

type answerPair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type encodedSession struct {
	answers   string
	template  sql.NullString
	variables string
	values    string
	results   string
}

// encodeSession renders the JSON columns. jsonb does not keep object key
// order, so answers are stored as an array of pairs.
func encodeSession(s *domain.Session) (encodedSession, error) {
	c := repository.CloneSession(s)
	repository.Normalize(c)

	var enc encodedSession
	pairs := make([]answerPair, 0, c.Answers.Len())
	for pair := c.Answers.Oldest(); pair != nil; pair = pair.Next() {
		pairs = append(pairs, answerPair{Key: pair.Key, Value: pair.Value})
	}
	answersJSON, err := json.Marshal(pairs)
	if err != nil {
		return enc, fmt.Errorf("encode answers: %w", err)
	}
	varsJSON, _ := json.Marshal(c.Variables)
	valuesJSON, _ := json.Marshal(c.VariableValues)
	resultsJSON, _ := json.Marshal(c.TestResults)

	enc.answers = string(answersJSON)
	enc.variables = string(varsJSON)
	enc.values = string(valuesJSON)
	enc.results = string(resultsJSON)
	if c.Template != nil {
		enc.template = sql.NullString{String: *c.Template, Valid: true}
	}
	return enc, nil
}

// Prompts

func (r *PostgresRepository) CreatePrompt(ctx context.Context, p *domain.Prompt) error {
	vars := p.Variables
	if vars == nil {
		vars = map[string]string{}
	}
	varsJSON, err := json.Marshal(vars)
	if err != nil {
		return fmt.Errorf("encode variables: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO prompts (`+promptColumns+`) VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		p.ID, p.CreatedAt.UTC(), uuid.NullUUID{UUID: derefID(p.SessionID), Valid: p.SessionID != nil},
		p.Template, string(varsJSON), p.ResolvedPrompt)
	return err
}

func (r *PostgresRepository) GetPrompt(ctx context.Context, id uuid.UUID) (*domain.Prompt, error) {
	return repository.QueryOne(ctx, r.db,
		`SELECT `+promptColumns+` FROM prompts WHERE id = $1`, []any{id}, scanPrompt)
}

func scanPrompt(sc repository.Scanner) (*domain.Prompt, error) {
	var p domain.Prompt
	var sessionID uuid.NullUUID
	var varsJSON []byte
	if err := sc.Scan(&p.ID, &p.CreatedAt, &sessionID, &p.Template, &varsJSON, &p.ResolvedPrompt); err != nil {
		return nil, err
	}
	if sessionID.Valid {
		sid := sessionID.UUID
		p.SessionID = &sid
	}
	if err := json.Unmarshal(varsJSON, &p.Variables); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}
	return &p, nil
}

// Results

func (r *PostgresRepository) CreateResult(ctx context.Context, res *domain.Result) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO results (`+resultColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		res.ID, res.CreatedAt.UTC(), res.PromptID, res.Model, res.Temperature, res.Response, res.ResponseTime)
	return err
}

func (r *PostgresRepository) ListResultsForPrompt(ctx context.Context, promptID uuid.UUID) ([]*domain.Result, error) {
	return repository.QueryMany(ctx, r.db,
		`SELECT `+resultColumns+` FROM results WHERE prompt_id = $1 ORDER BY created_at DESC`,
		[]any{promptID}, scanResult)
}

func scanResult(sc repository.Scanner) (*domain.Result, error) {
	var res domain.Result
	err := sc.Scan(&res.ID, &res.CreatedAt, &res.PromptID, &res.Model, &res.Temperature, &res.Response, &res.ResponseTime)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Models

func (r *PostgresRepository) ListActiveModels(ctx context.Context) ([]*domain.Model, error) {
	return repository.QueryMany(ctx, r.db,
		`SELECT `+modelColumns+` FROM models WHERE is_active ORDER BY name ASC`, nil, scanModel)
}

func (r *PostgresRepository) ListModels(ctx context.Context) ([]*domain.Model, error) {
	return repository.QueryMany(ctx, r.db,
		`SELECT `+modelColumns+` FROM models ORDER BY name ASC`, nil, scanModel)
}

func scanModel(sc repository.Scanner) (*domain.Model, error) {
	var m domain.Model
	err := sc.Scan(&m.ID, &m.Name, &m.Provider, &m.Description, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PostgresRepository) UpsertModel(ctx context.Context, m *domain.Model) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO models (`+modelColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, provider = EXCLUDED.provider,
		 description = EXCLUDED.description, is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at`,
		m.ID, m.Name, m.Provider, m.Description, m.IsActive, m.CreatedAt.UTC(), m.UpdatedAt.UTC())
	return err
}

func derefID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

// Ensure PostgresRepository implements repository.Repository
var _ repository.Repository = (*PostgresRepository)(nil)

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/model"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/priority"
)

// schema is applied once at startup by Postgres.Migrate. Column layout
// mirrors spec §3 one-to-one; Config/Metadata/AttemptedProcessors are
// stored as jsonb since they are opaque to the store.
const schema = `
CREATE TABLE IF NOT EXISTS processors (
	id                    uuid PRIMARY KEY,
	name                  text NOT NULL,
	type                  text NOT NULL,
	priority              integer NOT NULL,
	enabled               boolean NOT NULL DEFAULT true,
	config                jsonb NOT NULL DEFAULT '{}',
	success_rate          double precision NOT NULL DEFAULT 0,
	response_time         integer NOT NULL DEFAULT 0,
	circuit_breaker_open  boolean NOT NULL DEFAULT false,
	consecutive_failures  integer NOT NULL DEFAULT 0,
	last_failure_time     timestamptz,
	created_at            timestamptz NOT NULL DEFAULT now(),
	updated_at            timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transactions (
	id                        uuid PRIMARY KEY,
	amount                    numeric(18,2) NOT NULL,
	currency                  text NOT NULL,
	status                    text NOT NULL,
	processor_id              uuid REFERENCES processors(id),
	processor_transaction_id  text,
	failure_reason            text,
	processing_time_ms        bigint,
	attempted_processors      jsonb NOT NULL DEFAULT '[]',
	metadata                  jsonb NOT NULL DEFAULT '{}',
	created_at                timestamptz NOT NULL DEFAULT now(),
	updated_at                timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions (created_at DESC);

CREATE TABLE IF NOT EXISTS health_metrics (
	id                  uuid PRIMARY KEY,
	processor_id        uuid NOT NULL REFERENCES processors(id),
	timestamp           timestamptz NOT NULL DEFAULT now(),
	success_count       integer NOT NULL,
	failure_count       integer NOT NULL,
	avg_response_time   double precision NOT NULL,
	total_transactions  integer NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_health_metrics_processor_timestamp ON health_metrics (processor_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS system_logs (
	id              uuid PRIMARY KEY,
	level           text NOT NULL,
	message         text NOT NULL,
	service         text NOT NULL,
	transaction_id  uuid,
	processor_id    uuid,
	metadata        jsonb NOT NULL DEFAULT '{}',
	timestamp       timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_system_logs_timestamp ON system_logs (timestamp DESC);
`

// Postgres is the relational State Store backend, selected via
// STORE_BACKEND=postgres. Grounded on the example pack's sqlx-backed
// repositories, generalized across all four entities.
type Postgres struct {
	db *sqlx.DB
}

// OpenPostgres connects to dsn and returns a ready-to-migrate Postgres store.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Migrate applies the schema. Idempotent: safe to call on every startup.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *Postgres) Close() error { return p.db.Close() }

type processorRow struct {
	ID                  uuid.UUID      `db:"id"`
	Name                string         `db:"name"`
	Type                string         `db:"type"`
	Priority            int            `db:"priority"`
	Enabled             bool           `db:"enabled"`
	Config              []byte         `db:"config"`
	SuccessRate         float64        `db:"success_rate"`
	ResponseTime        int            `db:"response_time"`
	CircuitBreakerOpen  bool           `db:"circuit_breaker_open"`
	ConsecutiveFailures int            `db:"consecutive_failures"`
	LastFailureTime     sql.NullTime   `db:"last_failure_time"`
	CreatedAt           sql.NullTime   `db:"created_at"`
	UpdatedAt           sql.NullTime   `db:"updated_at"`
}

func (r processorRow) toModel() (model.Processor, error) {
	var cfg map[string]any
	if len(r.Config) > 0 {
		if err := json.Unmarshal(r.Config, &cfg); err != nil {
			return model.Processor{}, fmt.Errorf("decode processor config: %w", err)
		}
	}
	p := model.Processor{
		ID:                  r.ID,
		Name:                r.Name,
		Type:                r.Type,
		Priority:            r.Priority,
		Enabled:             r.Enabled,
		Config:              cfg,
		SuccessRate:         r.SuccessRate,
		ResponseTime:        r.ResponseTime,
		CircuitBreakerOpen:  r.CircuitBreakerOpen,
		ConsecutiveFailures: r.ConsecutiveFailures,
		CreatedAt:           r.CreatedAt.Time,
		UpdatedAt:           r.UpdatedAt.Time,
	}
	if r.LastFailureTime.Valid {
		t := r.LastFailureTime.Time
		p.LastFailureTime = &t
	}
	return p, nil
}

func (p *Postgres) CreateProcessor(ctx context.Context, proc model.Processor) error {
	cfg, err := json.Marshal(proc.Config)
	if err != nil {
		return fmt.Errorf("encode processor config: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO processors (id, name, type, priority, enabled, config, success_rate, response_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		proc.ID, proc.Name, proc.Type, proc.Priority, proc.Enabled, cfg, proc.SuccessRate, proc.ResponseTime)
	return err
}

func (p *Postgres) GetProcessor(ctx context.Context, id uuid.UUID) (model.Processor, error) {
	var row processorRow
	err := p.db.GetContext(ctx, &row, `SELECT * FROM processors WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Processor{}, fmt.Errorf("processor %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Processor{}, err
	}
	return row.toModel()
}

func (p *Postgres) GetAllProcessors(ctx context.Context) ([]model.Processor, error) {
	var rows []processorRow
	if err := p.db.SelectContext(ctx, &rows, `SELECT * FROM processors ORDER BY priority ASC, id ASC`); err != nil {
		return nil, err
	}
	out := make([]model.Processor, 0, len(rows))
	for _, r := range rows {
		proc, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, proc)
	}
	return out, nil
}

func (p *Postgres) GetActiveProcessors(ctx context.Context) ([]model.Processor, error) {
	var rows []processorRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT * FROM processors
		WHERE enabled = true AND circuit_breaker_open = false
		ORDER BY priority ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	out := make([]model.Processor, 0, len(rows))
	for _, r := range rows {
		proc, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, proc)
	}
	return out, nil
}

func (p *Postgres) ListProcessorCandidates(ctx context.Context) ([]priority.Candidate, error) {
	all, err := p.GetAllProcessors(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]priority.Candidate, 0, len(all))
	for _, proc := range all {
		out = append(out, priority.Candidate{
			ProcessorID: proc.ID,
			Name:        proc.Name,
			Priority:    proc.Priority,
			Enabled:     proc.Enabled,
		})
	}
	return out, nil
}

func (p *Postgres) UpdateProcessor(ctx context.Context, id uuid.UUID, update ProcessorUpdate) (model.Processor, error) {
	current, err := p.GetProcessor(ctx, id)
	if err != nil {
		return model.Processor{}, err
	}

	if update.Enabled != nil {
		current.Enabled = *update.Enabled
	}
	if update.CircuitBreakerOpen != nil {
		current.CircuitBreakerOpen = *update.CircuitBreakerOpen
	}
	if update.ConsecutiveFailures != nil {
		current.ConsecutiveFailures = *update.ConsecutiveFailures
	}
	if update.LastFailureTime != nil {
		current.LastFailureTime = *update.LastFailureTime
	}

	_, err = p.db.ExecContext(ctx, `
		UPDATE processors
		SET enabled = $2, circuit_breaker_open = $3, consecutive_failures = $4,
		    last_failure_time = $5, updated_at = now()
		WHERE id = $1`,
		id, current.Enabled, current.CircuitBreakerOpen, current.ConsecutiveFailures, current.LastFailureTime)
	if err != nil {
		return model.Processor{}, err
	}
	return p.GetProcessor(ctx, id)
}

type transactionRow struct {
	ID                     uuid.UUID      `db:"id"`
	Amount                 string         `db:"amount"`
	Currency               string         `db:"currency"`
	Status                 string         `db:"status"`
	ProcessorID            *uuid.UUID     `db:"processor_id"`
	ProcessorTransactionID *string        `db:"processor_transaction_id"`
	FailureReason          *string        `db:"failure_reason"`
	ProcessingTimeMS       *int64         `db:"processing_time_ms"`
	AttemptedProcessors    []byte         `db:"attempted_processors"`
	Metadata               []byte         `db:"metadata"`
	CreatedAt              sql.NullTime   `db:"created_at"`
	UpdatedAt              sql.NullTime   `db:"updated_at"`
}

func (r transactionRow) toModel() (model.Transaction, error) {
	amount, err := parseAmountColumn(r.Amount)
	if err != nil {
		return model.Transaction{}, err
	}

	var attempted []string
	if len(r.AttemptedProcessors) > 0 {
		if err := json.Unmarshal(r.AttemptedProcessors, &attempted); err != nil {
			return model.Transaction{}, fmt.Errorf("decode attempted_processors: %w", err)
		}
	}
	var metadata map[string]any
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &metadata); err != nil {
			return model.Transaction{}, fmt.Errorf("decode metadata: %w", err)
		}
	}

	return model.Transaction{
		ID:                     r.ID,
		Amount:                 amount,
		Currency:               r.Currency,
		Status:                 model.TransactionStatus(r.Status),
		ProcessorID:            r.ProcessorID,
		ProcessorTransactionID: r.ProcessorTransactionID,
		FailureReason:          r.FailureReason,
		ProcessingTimeMS:       r.ProcessingTimeMS,
		AttemptedProcessors:    attempted,
		Metadata:               metadata,
		CreatedAt:              r.CreatedAt.Time,
		UpdatedAt:              r.UpdatedAt.Time,
	}, nil
}

func (p *Postgres) CreateTransaction(ctx context.Context, t model.Transaction) error {
	attempted, err := json.Marshal(t.AttemptedProcessors)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO transactions (id, amount, currency, status, attempted_processors, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Amount.String(), t.Currency, t.Status, attempted, metadata)
	return err
}

func (p *Postgres) UpdateTransaction(ctx context.Context, id uuid.UUID, update TransactionUpdate) (model.Transaction, error) {
	attempted, err := json.Marshal(update.AttemptedProcessors)
	if err != nil {
		return model.Transaction{}, err
	}
	_, err = p.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, processor_id = $3, processor_transaction_id = $4,
		    failure_reason = $5, processing_time_ms = $6, attempted_processors = $7,
		    updated_at = now()
		WHERE id = $1`,
		id, update.Status, update.ProcessorID, update.ProcessorTransactionID,
		update.FailureReason, update.ProcessingTimeMS, attempted)
	if err != nil {
		return model.Transaction{}, err
	}
	return p.GetTransaction(ctx, id)
}

func (p *Postgres) GetTransaction(ctx context.Context, id uuid.UUID) (model.Transaction, error) {
	var row transactionRow
	err := p.db.GetContext(ctx, &row, `SELECT * FROM transactions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Transaction{}, err
	}
	return row.toModel()
}

func (p *Postgres) GetTransactions(ctx context.Context, limit, offset int) ([]model.Transaction, error) {
	var rows []transactionRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT * FROM transactions ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]model.Transaction, 0, len(rows))
	for _, r := range rows {
		t, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (p *Postgres) GetTotalTransactionCount(ctx context.Context) (int, error) {
	var count int
	err := p.db.GetContext(ctx, &count, `SELECT count(*) FROM transactions`)
	return count, err
}

func (p *Postgres) CreateHealthMetric(ctx context.Context, m model.HealthMetric) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO health_metrics (id, processor_id, success_count, failure_count, avg_response_time, total_transactions)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.ProcessorID, m.SuccessCount, m.FailureCount, m.AvgResponseTime, m.TotalTransactions)
	return err
}

func (p *Postgres) GetLatestHealthMetrics(ctx context.Context) ([]model.HealthMetric, error) {
	var rows []model.HealthMetric
	err := p.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT ON (processor_id) *
		FROM health_metrics
		ORDER BY processor_id, timestamp DESC`)
	return rows, err
}

func (p *Postgres) CreateSystemLog(ctx context.Context, log model.SystemLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	metadata, err := json.Marshal(log.Metadata)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO system_logs (id, level, message, service, transaction_id, processor_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		log.ID, log.Level, log.Message, log.Service, log.TransactionID, log.ProcessorID, metadata)
	return err
}

func (p *Postgres) GetSystemLogs(ctx context.Context, limit int, level *model.LogLevel) ([]model.SystemLog, error) {
	type row struct {
		model.SystemLog
		Metadata []byte `db:"metadata"`
	}
	var rows []row

	query := `SELECT id, level, message, service, transaction_id, processor_id, metadata, timestamp
		FROM system_logs`
	args := []any{limit}
	if level != nil {
		query += ` WHERE level = $2 ORDER BY timestamp DESC LIMIT $1`
		args = append(args, *level)
	} else {
		query += ` ORDER BY timestamp DESC LIMIT $1`
	}

	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	out := make([]model.SystemLog, 0, len(rows))
	for _, r := range rows {
		entry := r.SystemLog
		if len(r.Metadata) > 0 {
			if err := json.Unmarshal(r.Metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("decode log metadata: %w", err)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

func (p *Postgres) GetSystemStats(ctx context.Context) (SystemStats, error) {
	var row struct {
		TotalTransactions int     `db:"total_transactions"`
		SuccessRate       float64 `db:"success_rate"`
		AvgResponseTime   int64   `db:"avg_response_time"`
		ActiveProcessors  int     `db:"active_processors"`
	}
	err := p.db.GetContext(ctx, &row, `
		SELECT
			(SELECT count(*) FROM transactions) AS total_transactions,
			COALESCE(round((100.0 * (SELECT count(*) FROM transactions WHERE status = 'success')
				/ NULLIF((SELECT count(*) FROM transactions), 0))::numeric, 1), 0) AS success_rate,
			COALESCE((SELECT round(avg(processing_time_ms)) FROM transactions WHERE processing_time_ms IS NOT NULL), 0) AS avg_response_time,
			(SELECT count(*) FROM processors WHERE enabled = true AND circuit_breaker_open = false) AS active_processors
	`)
	if err != nil {
		return SystemStats{}, err
	}
	return SystemStats{
		TotalTransactions: row.TotalTransactions,
		SuccessRate:       row.SuccessRate,
		AvgResponseTime:   row.AvgResponseTime,
		ActiveProcessors:  row.ActiveProcessors,
	}, nil
}

func parseAmountColumn(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(raw)
}

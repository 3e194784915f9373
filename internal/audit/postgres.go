package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/raaihank/pii-gateway/internal/config"
	"github.com/raaihank/pii-gateway/internal/logger"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PostgresLedger appends events to a PostgreSQL table. Rows are only ever
// inserted; the serial id gives the append order.
type PostgresLedger struct {
	db     *sqlx.DB
	table  string
	logger *logger.Logger
}

type eventRow struct {
	Timestamp    time.Time      `db:"timestamp"`
	Event        string         `db:"event"`
	InputLength  int            `db:"input_length"`
	BlockedItems int            `db:"blocked_items"`
	RiskTypes    pq.StringArray `db:"risk_types"`
	Details      []byte         `db:"details"`
}

// NewPostgresLedger connects to cfg.DatabaseURL and ensures the table exists.
func NewPostgresLedger(cfg config.PostgresConfig, log *logger.Logger) (*PostgresLedger, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ledger, err := NewPostgresLedgerFromDB(db, cfg.Table, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	ledger.logger.Info("Postgres audit ledger initialized",
		zap.String("database_url", maskURL(cfg.DatabaseURL)),
		zap.String("table", ledger.table),
		zap.Int("max_open_conns", cfg.MaxOpenConns))

	return ledger, nil
}

// NewPostgresLedgerFromDB wraps an open connection and ensures the table
// exists.
func NewPostgresLedgerFromDB(db *sqlx.DB, table string, log *logger.Logger) (*PostgresLedger, error) {
	if table == "" {
		table = "audit_events"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid audit table name %q", table)
	}
	if log == nil {
		log = logger.Nop()
	}

	l := &PostgresLedger{db: db, table: table, logger: log.WithComponent("audit-postgres")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := l.initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}
	return l, nil
}

func (l *PostgresLedger) initialize(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			event TEXT NOT NULL,
			input_length INTEGER NOT NULL,
			blocked_items INTEGER NOT NULL,
			risk_types TEXT[] NOT NULL,
			details JSONB NOT NULL
		)`, l.table)

	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("creating table %s: %w", l.table, err)
	}
	return nil
}

func (l *PostgresLedger) Backend() string { return "postgres" }

// Append inserts ev as one row.
func (l *PostgresLedger) Append(ctx context.Context, ev Event) error {
	details, err := json.Marshal(ev.Details)
	if err != nil {
		return fmt.Errorf("encoding details: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (timestamp, event, input_length, blocked_items, risk_types, details)
		VALUES ($1, $2, $3, $4, $5, $6)`, l.table)

	if _, err := l.db.ExecContext(ctx, query,
		ev.Timestamp,
		ev.Event,
		ev.InputLength,
		ev.BlockedItems,
		pq.Array(ev.RiskTypes),
		details,
	); err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	l.logger.Debug("Audit event inserted", zap.Int("blocked_items", ev.BlockedItems))
	return nil
}

// Events returns every row in insertion order.
func (l *PostgresLedger) Events(ctx context.Context) ([]Event, error) {
	query := fmt.Sprintf(`
		SELECT timestamp, event, input_length, blocked_items, risk_types, details
		FROM %s
		ORDER BY id`, l.table)

	var rows []eventRow
	if err := l.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}

	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		ev := Event{
			Timestamp:    r.Timestamp,
			Event:        r.Event,
			InputLength:  r.InputLength,
			BlockedItems: r.BlockedItems,
			RiskTypes:    []string(r.RiskTypes),
			Details:      map[string]int{},
		}
		if len(r.Details) > 0 {
			if err := json.Unmarshal(r.Details, &ev.Details); err != nil {
				return nil, fmt.Errorf("decoding details: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, nil
}

// Close closes the database connection.
func (l *PostgresLedger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// maskURL hides the password component of a connection URL.
func maskURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	scheme := strings.Index(userPart, "://")
	if colon < 0 || colon <= scheme+2 {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}

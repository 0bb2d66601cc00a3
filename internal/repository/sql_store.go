package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"consignado-bot/internal/domain"
)

//go:embed schema.sql
var schema string

// SQLStore keeps conversations in PostgreSQL or SQLite. Queries use $n
// placeholders, which both drivers accept.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// ParseDatabaseURL maps a DATABASE_URL to a database/sql driver name and DSN.
//
//	postgres://... or postgresql://...  -> postgres
//	sqlite://path or sqlite::memory:     -> sqlite3
//	file:path                            -> sqlite3
func ParseDatabaseURL(raw string) (driver, dsn string, err error) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return "postgres", raw, nil
	case strings.HasPrefix(raw, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(raw, "sqlite://"), nil
	case strings.HasPrefix(raw, "sqlite:"):
		return "sqlite3", strings.TrimPrefix(raw, "sqlite:"), nil
	case strings.HasPrefix(raw, "file:"):
		return "sqlite3", raw, nil
	case raw == "":
		return "", "", errors.New("repository: database url is empty")
	default:
		return "", "", fmt.Errorf("repository: unsupported database url scheme in %q", redactURL(raw))
	}
}

// OpenSQL opens and pings the database named by url.
func OpenSQL(ctx context.Context, url string) (*SQLStore, error) {
	driver, dsn, err := ParseDatabaseURL(url)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		// SQLite allows one writer; a single connection also keeps
		// :memory: databases shared across queries.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: ping %s: %w", driver, err)
	}
	return &SQLStore{db: db, driver: driver}, nil
}

// NewSQLStore wraps an existing handle.
func NewSQLStore(db *sql.DB, driver string) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("repository: db must not be nil")
	}
	return &SQLStore{db: db, driver: driver}, nil
}

// Migrate creates the tables and indexes if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("repository: Migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Driver() string { return s.driver }

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("repository: Ping: %w", err)
	}
	return nil
}

func (s *SQLStore) GetConversation(ctx context.Context, phone string) (domain.Conversation, bool, error) {
	var (
		c     domain.Conversation
		state string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT phone, state, cpf, created_at, last_activity FROM conversations WHERE phone = $1`,
		phone,
	).Scan(&c.Phone, &state, &c.CPF, &c.CreatedAt, &c.LastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Conversation{}, false, nil
	}
	if err != nil {
		return domain.Conversation{}, false, fmt.Errorf("repository: GetConversation: %w", err)
	}
	c.State = domain.State(state)
	c.CreatedAt = c.CreatedAt.UTC()
	c.LastActivity = c.LastActivity.UTC()
	return c, true, nil
}

// SaveConversation upserts the conversation keyed by phone. created_at is
// kept from the first insert.
func (s *SQLStore) SaveConversation(ctx context.Context, conv domain.Conversation) error {
	if strings.TrimSpace(conv.Phone) == "" {
		return errors.New("repository: SaveConversation: phone is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (phone, state, cpf, created_at, last_activity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (phone) DO UPDATE SET
			state = excluded.state,
			cpf = excluded.cpf,
			last_activity = excluded.last_activity`,
		conv.Phone, string(conv.State), conv.CPF, conv.CreatedAt.UTC(), conv.LastActivity.UTC(),
	)
	if err != nil {
		return fmt.Errorf("repository: SaveConversation: %w", err)
	}
	return nil
}

func (s *SQLStore) AppendMessage(ctx context.Context, msg domain.Message) error {
	if msg.ID == "" || msg.Phone == "" {
		return errors.New("repository: AppendMessage: id and phone are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, phone, body, direction, gateway_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.Phone, msg.Body, string(msg.Direction), msg.GatewayID, msg.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("repository: AppendMessage: %w", err)
	}
	return nil
}

func (s *SQLStore) ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT phone, state, cpf, created_at, last_activity
		FROM conversations
		ORDER BY last_activity DESC, phone ASC
		LIMIT $1`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("repository: ListConversations: %w", err)
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		var (
			c     domain.Conversation
			state string
		)
		if err := rows.Scan(&c.Phone, &state, &c.CPF, &c.CreatedAt, &c.LastActivity); err != nil {
			return nil, fmt.Errorf("repository: ListConversations scan: %w", err)
		}
		c.State = domain.State(state)
		c.CreatedAt = c.CreatedAt.UTC()
		c.LastActivity = c.LastActivity.UTC()
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: ListConversations rows: %w", err)
	}
	return convs, nil
}

func (s *SQLStore) ListMessages(ctx context.Context, phone string, limit int) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, phone, body, direction, gateway_id, created_at
		FROM messages
		WHERE phone = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		phone, normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("repository: ListMessages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var (
			m   domain.Message
			dir string
		)
		if err := rows.Scan(&m.ID, &m.Phone, &m.Body, &dir, &m.GatewayID, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("repository: ListMessages scan: %w", err)
		}
		m.Direction = domain.Direction(dir)
		m.Timestamp = m.Timestamp.UTC()
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: ListMessages rows: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *SQLStore) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM conversations WHERE state = $1),
			(SELECT COUNT(*) FROM messages)`,
		string(domain.StateCPFValidated),
	).Scan(&st.Conversations, &st.ValidatedConversations, &st.Messages)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("repository: Stats: %w", err)
	}
	return st, nil
}

// redactURL drops credentials from a URL before it is logged or returned.
func redactURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	return raw[:scheme+3] + "***" + raw[at:]
}

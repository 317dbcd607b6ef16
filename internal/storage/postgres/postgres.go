package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Exchange  string                 `json:"exchange"`
}

// MessageRow represents one chat message stored in Postgres.
type MessageRow struct {
	MessageID int64     `json:"message_id"`
	Timestamp time.Time `json:"ts"`
	Role      string    `json:"role"`
	Farm      *string   `json:"farm,omitempty"`
	Body      string    `json:"body"`
}

// Client manages the Postgres connection for event and chat persistence.
type Client struct {
	db       *sql.DB
	exchange string
}

// New creates a new Postgres client using environment variables.
// Returns an error if connection fails (caller should handle gracefully;
// the service runs without persistence).
func New(exchangeID string) (*Client, error) {
	host := getEnv("PGHOST", "127.0.0.1")
	port := getEnv("PGPORT", "5432")
	user := getEnv("PGUSER", "flowdeck")
	dbname := getEnv("PGDATABASE", "flowdeck")
	password := os.Getenv("PGPASSWORD")

	var connStr string
	if password != "" {
		connStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host, port, user, password, dbname)
	} else {
		connStr = fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
			host, port, user, dbname)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:       db,
		exchange: exchangeID,
	}

	if err := client.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return client, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func (c *Client) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS events (
			event_id BIGSERIAL PRIMARY KEY,
			ts       TIMESTAMPTZ NOT NULL,
			level    TEXT NOT NULL,
			event    TEXT NOT NULL,
			msg      TEXT,
			fields   JSONB,
			exchange TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_events_exchange ON events(exchange);
		CREATE TABLE IF NOT EXISTS messages (
			message_id BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			role       TEXT NOT NULL,
			farm       TEXT,
			body       TEXT NOT NULL,
			exchange   TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_ts ON messages(ts DESC);
	`
	_, err := c.db.Exec(query)
	return err
}

// AppendEvent inserts an event into the database.
func (c *Client) AppendEvent(ts time.Time, level, event, msg string, fields map[string]interface{}) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	query := `
		INSERT INTO events (ts, level, event, msg, fields, exchange)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = c.db.Exec(query, ts, level, event, msgPtr, fieldsJSON, c.exchange)
	return err
}

// AppendMessage inserts one chat message. Role is "user" or "farm"; farm is
// empty for broadcast replies aggregated by the exchange.
func (c *Client) AppendMessage(ts time.Time, role, farm, body string) error {
	var farmPtr *string
	if farm != "" {
		farmPtr = &farm
	}

	query := `
		INSERT INTO messages (ts, role, farm, body, exchange)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := c.db.Exec(query, ts, role, farmPtr, body, c.exchange)
	return err
}

// RecentMessages returns the last N chat messages, oldest first.
func (c *Client) RecentMessages(limit int) ([]MessageRow, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT message_id, ts, role, farm, body
		FROM (
			SELECT message_id, ts, role, farm, body
			FROM messages
			WHERE exchange = $1
			ORDER BY ts DESC
			LIMIT $2
		) recent
		ORDER BY ts ASC
	`
	rows, err := c.db.Query(query, c.exchange, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []MessageRow
	for rows.Next() {
		var m MessageRow
		var farm sql.NullString

		if err := rows.Scan(&m.MessageID, &m.Timestamp, &m.Role, &farm, &m.Body); err != nil {
			return nil, err
		}
		if farm.Valid {
			m.Farm = &farm.String
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// QueryEvents returns the last N events in descending order by timestamp.
func (c *Client) QueryEvents(limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	query := `
		SELECT event_id, ts, level, event, msg, fields, exchange
		FROM events
		WHERE exchange = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, c.exchange, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.Exchange); err != nil {
			return nil, err
		}
		if msg.Valid {
			e.Message = &msg.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

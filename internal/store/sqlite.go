// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is fixed width so that timestamps compare correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: SQLite has a single writer, and :memory: databases
	// are per-connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			email      TEXT NOT NULL UNIQUE,
			role       TEXT NOT NULL,
			status     TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (role IN ('representative', 'admin')),
			CHECK (status IN ('online', 'offline', 'busy', 'away'))
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id                TEXT PRIMARY KEY,
			customer_name     TEXT,
			customer_email    TEXT,
			website_id        TEXT,
			status            TEXT NOT NULL,
			mode              TEXT NOT NULL,
			representative_id TEXT REFERENCES users(id),
			last_activity_at  TEXT NOT NULL,
			created_at        TEXT NOT NULL,
			updated_at        TEXT NOT NULL,

			CHECK (status IN ('active', 'waiting', 'closed')),
			CHECK (mode IN ('automated', 'escalated', 'human')),
			CHECK ((mode = 'human') = (representative_id IS NOT NULL))
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_activity
			ON conversations(last_activity_at);

		CREATE TABLE IF NOT EXISTS messages (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			sender_type     TEXT NOT NULL,
			sender_id       TEXT,
			content         TEXT NOT NULL,
			metadata_json   TEXT,
			created_at      TEXT NOT NULL,

			CHECK (sender_type IN ('customer', 'representative', 'assistant', 'system'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_order
			ON messages(conversation_id, created_at, seq);

		CREATE TABLE IF NOT EXISTS email_threads (
			conversation_id TEXT PRIMARY KEY REFERENCES conversations(id),
			thread_id       TEXT NOT NULL,
			root_message_id TEXT NOT NULL,
			last_message_id TEXT NOT NULL,
			references_json TEXT NOT NULL,
			updated_at      TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "messages",
			column: "metadata_json",
			apply:  `ALTER TABLE messages ADD COLUMN metadata_json TEXT`,
		},
		{
			table:  "conversations",
			column: "website_id",
			apply:  `ALTER TABLE conversations ADD COLUMN website_id TEXT`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(field, s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", field, err)
	}
	return t, nil
}

// nullString returns nil for empty strings so they are stored as NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreateConversation inserts a new conversation.
// Zero timestamps are filled with the current time.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	if err := ValidateModeInvariant(conv); err != nil {
		return err
	}

	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}
	if conv.LastActivityAt.IsZero() {
		conv.LastActivityAt = conv.CreatedAt
	}

	query := `
		INSERT INTO conversations (id, customer_name, customer_email, website_id, status, mode,
			representative_id, last_activity_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		nullString(conv.CustomerName),
		nullString(conv.CustomerEmail),
		nullString(conv.WebsiteID),
		string(conv.Status),
		string(conv.Mode),
		nullString(conv.RepresentativeID),
		formatTime(conv.LastActivityAt),
		formatTime(conv.CreatedAt),
		formatTime(conv.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID)
	return nil
}

const conversationColumns = `id, customer_name, customer_email, website_id, status, mode,
	representative_id, last_activity_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var name, email, website, rep sql.NullString
	var status, mode, lastActivity, created, updated string

	if err := row.Scan(&conv.ID, &name, &email, &website, &status, &mode, &rep, &lastActivity, &created, &updated); err != nil {
		return nil, err
	}

	conv.CustomerName = name.String
	conv.CustomerEmail = email.String
	conv.WebsiteID = website.String
	conv.RepresentativeID = rep.String
	conv.Status = ConversationStatus(status)
	conv.Mode = Mode(mode)

	var err error
	if conv.LastActivityAt, err = parseTime("last_activity_at", lastActivity); err != nil {
		return nil, err
	}
	if conv.CreatedAt, err = parseTime("created_at", created); err != nil {
		return nil, err
	}
	if conv.UpdatedAt, err = parseTime("updated_at", updated); err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns conversations ordered by most recent activity.
// If limit is 0 or negative, a default limit of 100 is used.
func (s *SQLiteStore) ListConversations(ctx context.Context, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations ORDER BY last_activity_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return convs, nil
}

// TransitionMode performs a compare-and-set update of mode, status and
// representative in a single statement.
func (s *SQLiteStore) TransitionMode(ctx context.Context, id string, t ModeTransition) (*Conversation, error) {
	if len(t.From) == 0 {
		return nil, fmt.Errorf("transition to %s: no source modes", t.To)
	}
	if err := ValidateModeInvariant(&Conversation{Mode: t.To, RepresentativeID: t.RepresentativeID}); err != nil {
		return nil, fmt.Errorf("transition to %s: %w", t.To, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(t.From)), ",")
	query := `
		UPDATE conversations
		SET mode = ?, status = ?, representative_id = ?, updated_at = ?
		WHERE id = ? AND mode IN (` + placeholders + `)
	`

	args := []any{string(t.To), string(t.Status), nullString(t.RepresentativeID), formatTime(time.Now()), id}
	for _, m := range t.From {
		args = append(args, string(m))
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("updating conversation mode: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		if _, err := s.GetConversation(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrModeConflict
	}

	s.logger.Debug("transitioned conversation", "id", id, "mode", t.To)
	return s.GetConversation(ctx, id)
}

// TouchConversation records activity on a conversation.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET last_activity_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetConversationStatus changes a conversation's status without touching mode.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) SetConversationStatus(ctx context.Context, id string, status ConversationStatus) (*Conversation, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), id)
	if err != nil {
		return nil, fmt.Errorf("updating conversation status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetConversation(ctx, id)
}

// ConversationStats counts conversations by status and online representatives.
func (s *SQLiteStore) ConversationStats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'waiting' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'closed' THEN 1 ELSE 0 END), 0)
		FROM conversations
	`).Scan(&st.TotalConversations, &st.ActiveConversations, &st.WaitingConversations, &st.ClosedConversations)
	if err != nil {
		return nil, fmt.Errorf("counting conversations: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role = ? AND status = ?`,
		string(RoleRepresentative), string(UserOnline)).Scan(&st.OnlineRepresentatives)
	if err != nil {
		return nil, fmt.Errorf("counting online representatives: %w", err)
	}
	return &st, nil
}

// SaveMessage saves a message to the database
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	if !msg.SenderType.Valid() {
		return fmt.Errorf("invalid sender type %q", msg.SenderType)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	var metadata any
	if len(msg.Metadata) > 0 {
		b, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		metadata = string(b)
	}

	query := `
		INSERT INTO messages (id, conversation_id, sender_type, sender_id, content, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		string(msg.SenderType),
		nullString(msg.SenderID),
		msg.Content,
		metadata,
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return ErrNotFound
		}
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "conversation_id", msg.ConversationID, "sender_type", msg.SenderType)
	return nil
}

const messageColumns = `id, conversation_id, sender_type, sender_id, content, metadata_json, created_at`

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var senderType, createdAt string
		var senderID, metadata sql.NullString

		if err := rows.Scan(&msg.ID, &msg.ConversationID, &senderType, &senderID, &msg.Content, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.SenderType = SenderType(senderType)
		msg.SenderID = senderID.String
		if msg.CreatedAt, err = parseTime("message created_at", createdAt); err != nil {
			return nil, err
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata for message %s: %w", msg.ID, err)
			}
		}

		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

// GetMessages retrieves messages for a conversation in (created_at, insertion) order.
// If limit is positive only the most recent limit messages are returned.
func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	if limit > 0 {
		return s.queryMessages(ctx, `
			SELECT `+messageColumns+` FROM (
				SELECT seq, `+messageColumns+`
				FROM messages
				WHERE conversation_id = ?
				ORDER BY created_at DESC, seq DESC
				LIMIT ?
			)
			ORDER BY created_at ASC, seq ASC
		`, conversationID, limit)
	}

	return s.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, seq ASC
	`, conversationID)
}

// GetMessagesAfter returns the messages that follow afterID in conversation order.
func (s *SQLiteStore) GetMessagesAfter(ctx context.Context, conversationID, afterID string) ([]*Message, error) {
	if afterID == "" {
		return s.GetMessages(ctx, conversationID, 0)
	}

	var seq int64
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT seq, created_at FROM messages WHERE id = ? AND conversation_id = ?`,
		afterID, conversationID,
	).Scan(&seq, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s.GetMessages(ctx, conversationID, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up cursor message: %w", err)
	}

	return s.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ?
			AND (created_at > ? OR (created_at = ? AND seq > ?))
		ORDER BY created_at ASC, seq ASC
	`, conversationID, createdAt, createdAt, seq)
}

// CountMessages returns the number of messages in a conversation
func (s *SQLiteStore) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return n, nil
}

// CreateUser inserts a staff account.
// Returns ErrDuplicateUser if the email is already registered.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
	if user.Status == "" {
		user.Status = UserOffline
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, role, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		user.ID, user.Name, user.Email, string(user.Role), string(user.Status),
		formatTime(user.CreatedAt), formatTime(user.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created user", "id", user.ID, "role", user.Role)
	return nil
}

const userColumns = `id, name, email, role, status, created_at, updated_at`

func scanUser(row rowScanner) (*User, error) {
	var u User
	var role, status, created, updated string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &status, &created, &updated); err != nil {
		return nil, err
	}
	u.Role = Role(role)
	u.Status = UserStatus(status)

	var err error
	if u.CreatedAt, err = parseTime("created_at", created); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime("updated_at", updated); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser retrieves a user by ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

// ListUsers returns all staff accounts ordered by name
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return users, nil
}

// UpdateUserStatus sets a user's presence.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) UpdateUserStatus(ctx context.Context, id string, status UserStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("updating user status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetEmailThread returns the notification thread for a conversation.
// Returns ErrNotFound if no email has been sent for it yet.
func (s *SQLiteStore) GetEmailThread(ctx context.Context, conversationID string) (*EmailThread, error) {
	var th EmailThread
	var refs, updated string
	err := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, thread_id, root_message_id, last_message_id, references_json, updated_at
		FROM email_threads WHERE conversation_id = ?
	`, conversationID).Scan(&th.ConversationID, &th.ThreadID, &th.RootMessageID, &th.LastMessageID, &refs, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying email thread: %w", err)
	}
	if err := json.Unmarshal([]byte(refs), &th.References); err != nil {
		return nil, fmt.Errorf("decoding references: %w", err)
	}
	if th.UpdatedAt, err = parseTime("updated_at", updated); err != nil {
		return nil, err
	}
	return &th, nil
}

// SaveEmailThread inserts or replaces the notification thread for a conversation
func (s *SQLiteStore) SaveEmailThread(ctx context.Context, thread *EmailThread) error {
	refs, err := json.Marshal(thread.References)
	if err != nil {
		return fmt.Errorf("encoding references: %w", err)
	}
	thread.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO email_threads
			(conversation_id, thread_id, root_message_id, last_message_id, references_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		thread.ConversationID, thread.ThreadID, thread.RootMessageID, thread.LastMessageID,
		string(refs), formatTime(thread.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving email thread: %w", err)
	}
	return nil
}

// Compile-time check that SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)

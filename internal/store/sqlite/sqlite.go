package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/synctalk/relay/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS conversations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	type       TEXT NOT NULL DEFAULT 'group',
	name       TEXT NOT NULL DEFAULT '',
	direct_key TEXT UNIQUE,
	created_by INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (created_by) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS participants (
	conversation_id INTEGER NOT NULL,
	user_id         INTEGER NOT NULL,
	joined_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (conversation_id, user_id),
	FOREIGN KEY (conversation_id) REFERENCES conversations(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL,
	sender_id       INTEGER NOT NULL,
	text            TEXT NOT NULL,
	media           TEXT NOT NULL DEFAULT '',
	deleted         BOOLEAN NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id),
	FOREIGN KEY (sender_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id DESC);
CREATE INDEX IF NOT EXISTS idx_participants_user ON participants(user_id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore ====

func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`,
		username, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*store.User, error) {
	var u store.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// ==== ConversationStore ====

func (s *SQLiteStore) CreateGroupConversation(ctx context.Context, name string, createdBy int64, participants []int64) (*store.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (type, name, created_by) VALUES (?, ?, ?)`,
		store.ConversationGroup, name, createdBy)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	members := append([]int64{createdBy}, participants...)
	for _, userID := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO participants (conversation_id, user_id) VALUES (?, ?)`,
			id, userID); err != nil {
			return nil, fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetConversation(ctx, id)
}

func (s *SQLiteStore) GetOrCreateDirectConversation(ctx context.Context, userA, userB int64) (*store.Conversation, error) {
	key := store.DirectKey(userA, userB)

	if conv, err := s.getConversationByDirectKey(ctx, key); err == nil {
		return conv, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (type, direct_key, created_by) VALUES (?, ?, ?)`,
		store.ConversationDirect, key, userA)
	if err != nil {
		return nil, fmt.Errorf("insert direct conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	for _, userID := range []int64{userA, userB} {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO participants (conversation_id, user_id) VALUES (?, ?)`,
			id, userID); err != nil {
			return nil, fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetConversation(ctx, id)
}

func (s *SQLiteStore) getConversationByDirectKey(ctx context.Context, key string) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, name, direct_key, created_by, created_at
		 FROM conversations WHERE direct_key = ?`, key)
	return scanConversation(row)
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id int64) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, name, direct_key, created_by, created_at
		 FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

func scanConversation(row *sql.Row) (*store.Conversation, error) {
	var c store.Conversation
	var directKey sql.NullString
	err := row.Scan(&c.ID, &c.Type, &c.Name, &directKey, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	if directKey.Valid {
		c.DirectKey = &directKey.String
	}
	return &c, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, userID int64) ([]*store.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.type, c.name, c.direct_key, c.created_by, c.created_at,
		        m.id, m.sender_id, m.text, m.media, m.created_at
		 FROM conversations c
		 JOIN participants p ON p.conversation_id = c.id
		 LEFT JOIN messages m ON m.id = (
		     SELECT id FROM messages
		     WHERE conversation_id = c.id AND deleted = 0
		     ORDER BY id DESC LIMIT 1
		 )
		 WHERE p.user_id = ?
		 ORDER BY COALESCE(m.id, c.id) DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*store.ConversationSummary
	for rows.Next() {
		var c store.Conversation
		var directKey sql.NullString
		var msgID, msgSender sql.NullInt64
		var msgText, msgMedia sql.NullString
		var msgCreatedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.Type, &c.Name, &directKey, &c.CreatedBy, &c.CreatedAt,
			&msgID, &msgSender, &msgText, &msgMedia, &msgCreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if directKey.Valid {
			c.DirectKey = &directKey.String
		}
		summary := &store.ConversationSummary{Conversation: &c}
		if msgID.Valid {
			summary.LastMessage = &store.Message{
				ID:             msgID.Int64,
				ConversationID: c.ID,
				SenderID:       msgSender.Int64,
				Text:           msgText.String,
				Media:          msgMedia.String,
				CreatedAt:      msgCreatedAt.Time,
			}
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddParticipant(ctx context.Context, conversationID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO participants (conversation_id, user_id) VALUES (?, ?)`,
		conversationID, userID)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RemoveParticipant(ctx context.Context, conversationID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM participants WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	return nil
}

func (s *SQLiteStore) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM participants WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) ListParticipants(ctx context.Context, conversationID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM participants WHERE conversation_id = ? ORDER BY user_id`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ==== MessageStore ====

func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, text, media) VALUES (?, ?, ?, ?)`,
		msg.ConversationID, msg.SenderID, msg.Text, msg.Media)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	msg.ID = id

	row := s.db.QueryRowContext(ctx, `SELECT created_at FROM messages WHERE id = ?`, id)
	if err := row.Scan(&msg.CreatedAt); err != nil {
		return fmt.Errorf("read created_at: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT id, conversation_id, sender_id, text, media, deleted, created_at
	          FROM messages WHERE conversation_id = ? AND deleted = 0`
	args := []any{conversationID}
	if beforeID != nil {
		query += ` AND id < ?`
		args = append(args, *beforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Text, &m.Media, &m.Deleted, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Oldest first for the client.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteStore) DeleteMessage(ctx context.Context, id, senderID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET deleted = 1 WHERE id = ? AND sender_id = ?`, id, senderID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

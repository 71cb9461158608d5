package stub

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"golang.org/x/crypto/bcrypt"

	"github.com/natthaphon/linkfeed/chat"
)

var (
	// ErrInvalidUser is returned when a user is not found or the
	// credentials do not match.
	ErrInvalidUser = errors.New("invalid user")
	// ErrConflictedUser is returned when the username is already taken.
	ErrConflictedUser = errors.New("user already exists")
)

// User is a stub-server account. Only what the realtime layer needs.
type User struct {
	ID           int
	Username     string
	PasswordHash string
}

// Store persists users and chat messages in SQLite. It backs the stub
// server only; the production backend is a separate system.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the SQLite database at file and applies the
// goose migrations found in migrationFS.
func OpenStore(file string, migrationFS fs.FS) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?cache=shared&_journal_mode=WAL", file))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate up: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateUser registers a user with a bcrypt-hashed password and returns the
// new user ID.
func (s *Store) CreateUser(ctx context.Context, username, password string) (int, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`,
		username, string(hash))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflictedUser
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return int(id), nil
}

// Authenticate verifies the credentials and returns the user.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidUser
	}
	return user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM users WHERE username = ?`, username)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidUser
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// SaveMessage persists one chat message.
func (s *Store) SaveMessage(ctx context.Context, sender, receiver int, text string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (sender, receiver, body, sent_at) VALUES (?, ?, ?, ?)`,
		sender, receiver, text, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// History returns the messages exchanged between two users ordered oldest
// first.
func (s *Store) History(ctx context.Context, a, b int) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sender, receiver, body, sent_at FROM messages
		 WHERE (sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)
		 ORDER BY sent_at ASC, id ASC`,
		a, b, b, a)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var m chat.Message
		var sentAt string
		if err := rows.Scan(&m.Sender, &m.Receiver, &m.Text, &sentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp, _ = time.Parse(time.RFC3339Nano, sentAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func isUniqueViolation(err error) bool {
	// Matching on the message avoids depending on the driver's error types.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

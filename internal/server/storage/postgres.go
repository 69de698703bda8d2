package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cloudzz-dev/rosterchat/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL,
	email         TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL DEFAULT (NOW() AT TIME ZONE 'utc')
);
CREATE UNIQUE INDEX IF NOT EXISTS users_username_lower ON users (LOWER(username));

CREATE TABLE IF NOT EXISTS students (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	courses       TEXT[] NOT NULL,
	phone_number  TEXT NOT NULL,
	date_of_birth DATE NOT NULL,
	created_at    TIMESTAMP NOT NULL DEFAULT (NOW() AT TIME ZONE 'utc')
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	sender_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	receiver_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	content     TEXT NOT NULL,
	sent_at     TIMESTAMP NOT NULL,
	read        BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS messages_receiver_unread ON messages (receiver_id) WHERE NOT read;
CREATE INDEX IF NOT EXISTS messages_sent_at ON messages (sent_at);
`

type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to connStr and creates the schema if needed.
func OpenPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	log.Println("Connected to database")
	return &Postgres{db: db}, nil
}

func (s *Postgres) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// User Methods

func (s *Postgres) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	u := models.User{ID: uuid.NewString(), Username: username, Email: email}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, username, email, password_hash) VALUES ($1, $2, $3, $4)",
		u.ID, u.Username, u.Email, passwordHash,
	)
	if isUniqueViolation(err) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Postgres) UserByUsername(ctx context.Context, username string) (*UserRecord, error) {
	var rec UserRecord
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash FROM users WHERE LOWER(username) = LOWER($1)",
		username,
	).Scan(&rec.ID, &rec.Username, &rec.Email, &rec.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Postgres) UserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, email FROM users WHERE id = $1",
		id,
	).Scan(&u.ID, &u.Username, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Postgres) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, username, email FROM users ORDER BY username")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Student Methods

const studentColumns = "id, name, courses, phone_number, date_of_birth"

func scanStudent(row interface{ Scan(...interface{}) error }) (models.Student, error) {
	var st models.Student
	var dob time.Time
	err := row.Scan(&st.ID, &st.Name, pq.Array(&st.Courses), &st.PhoneNumber, &dob)
	if err != nil {
		return st, err
	}
	st.DateOfBirth = models.NewDate(dob.Year(), dob.Month(), dob.Day())
	return st, nil
}

func (s *Postgres) ListStudents(ctx context.Context) ([]models.Student, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+studentColumns+" FROM students ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	students := []models.Student{}
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

func (s *Postgres) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	st, err := scanStudent(s.db.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Postgres) CreateStudent(ctx context.Context, st models.Student) (*models.Student, error) {
	st.ID = uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO students (id, name, courses, phone_number, date_of_birth) VALUES ($1, $2, $3, $4, $5)",
		st.ID, st.Name, pq.Array(st.Courses), st.PhoneNumber, st.DateOfBirth.String(),
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Postgres) UpdateStudent(ctx context.Context, st models.Student) (*models.Student, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE students SET name = $2, courses = $3, phone_number = $4, date_of_birth = $5 WHERE id = $1",
		st.ID, st.Name, pq.Array(st.Courses), st.PhoneNumber, st.DateOfBirth.String(),
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return &st, nil
}

func (s *Postgres) DeleteStudent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Message Methods

const messageSelect = `
	SELECT m.id, m.sender_id, m.receiver_id, su.username, ru.username, m.content, m.sent_at, m.read
	FROM messages m
	JOIN users su ON su.id = m.sender_id
	JOIN users ru ON ru.id = m.receiver_id
`

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	defer rows.Close()
	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var sentAt time.Time
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.SenderUsername, &m.ReceiverUsername, &m.Content, &sentAt, &m.Read); err != nil {
			return nil, err
		}
		m.Timestamp = models.NewTimestamp(asUTC(sentAt))
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// asUTC reinterprets a zone-less TIMESTAMP column value as UTC.
func asUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func (s *Postgres) queryMessage(ctx context.Context, id string) (*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, messageSelect+" WHERE m.id = $1", id)
	if err != nil {
		return nil, err
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	return &msgs[0], nil
}

func (s *Postgres) SaveMessage(ctx context.Context, senderID, receiverID, content string) (*models.Message, error) {
	for _, id := range []string{senderID, receiverID} {
		if _, err := s.UserByID(ctx, id); err != nil {
			return nil, err
		}
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (id, sender_id, receiver_id, content, sent_at) VALUES ($1, $2, $3, $4, $5)",
		id, senderID, receiverID, content, now(),
	)
	if err != nil {
		return nil, err
	}
	return s.queryMessage(ctx, id)
}

func (s *Postgres) Conversation(ctx context.Context, me, partner string) ([]models.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"UPDATE messages SET read = TRUE WHERE sender_id = $1 AND receiver_id = $2 AND NOT read",
		partner, me,
	)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, messageSelect+`
		WHERE (m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1)
		ORDER BY m.sent_at, m.id`, me, partner)
	if err != nil {
		return nil, err
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	return msgs, tx.Commit()
}

func (s *Postgres) MarkRead(ctx context.Context, messageID string) (*models.Message, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE messages SET read = TRUE WHERE id = $1", messageID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.queryMessage(ctx, messageID)
}

func (s *Postgres) Unread(ctx context.Context, me string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, messageSelect+" WHERE m.receiver_id = $1 AND NOT m.read ORDER BY m.sent_at, m.id", me)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func (s *Postgres) MessagesSince(ctx context.Context, me string, since time.Time) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, messageSelect+`
		WHERE (m.sender_id = $1 OR m.receiver_id = $1) AND m.sent_at > $2
		ORDER BY m.sent_at, m.id`, me, since.UTC())
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func (s *Postgres) Partners(ctx context.Context, me string) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.email
		FROM (
			SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS partner_id,
			       MAX(sent_at) AS last_at
			FROM messages
			WHERE (sender_id = $1 OR receiver_id = $1) AND sender_id <> receiver_id
			GROUP BY 1
		) p
		JOIN users u ON u.id = p.partner_id
		ORDER BY p.last_at DESC`, me)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

var _ Store = (*Postgres)(nil)

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"github.com/pegazus-alpha/cent-bot/internal/model"
	"github.com/pegazus-alpha/cent-bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertGroupSetting inserts a group settings row or merges it into the
// existing one. CreatedAt is preserved on conflict.
func (s *SQLite) UpsertGroupSetting(ctx context.Context, gs *model.GroupSetting) error {
	now := time.Now().UTC()
	if gs.CreatedAt.IsZero() {
		gs.CreatedAt = now
	}
	gs.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_settings
		   (group_id, group_name, welcome_enabled, welcome_message, goodbye_enabled, goodbye_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (group_id) DO UPDATE SET
		   group_name = excluded.group_name,
		   welcome_enabled = excluded.welcome_enabled,
		   welcome_message = excluded.welcome_message,
		   goodbye_enabled = excluded.goodbye_enabled,
		   goodbye_message = excluded.goodbye_message,
		   updated_at = excluded.updated_at`,
		gs.GroupID, gs.GroupName,
		boolToInt(gs.WelcomeEnabled), gs.WelcomeMessage,
		boolToInt(gs.GoodbyeEnabled), gs.GoodbyeMessage,
		gs.CreatedAt.Format(timeLayout), gs.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert group setting: %w", err)
	}
	return nil
}

// GetGroupSetting returns the settings row for a single group.
func (s *SQLite) GetGroupSetting(ctx context.Context, groupID string) (*model.GroupSetting, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT group_id, group_name, welcome_enabled, welcome_message, goodbye_enabled, goodbye_message, created_at, updated_at
		 FROM group_settings WHERE group_id = ?`, groupID,
	)
	return scanGroupSetting(row)
}

// ListGroupSettings returns all stored group settings ordered by name.
func (s *SQLite) ListGroupSettings(ctx context.Context) ([]model.GroupSetting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, group_name, welcome_enabled, welcome_message, goodbye_enabled, goodbye_message, created_at, updated_at
		 FROM group_settings ORDER BY group_name, group_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query group settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var settings []model.GroupSetting
	for rows.Next() {
		gs, err := scanGroupSetting(rows)
		if err != nil {
			return nil, err
		}
		settings = append(settings, *gs)
	}
	return settings, rows.Err()
}

// DeleteGroupSetting removes a group's settings row and reports whether one existed.
func (s *SQLite) DeleteGroupSetting(ctx context.Context, groupID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM group_settings WHERE group_id = ?`, groupID)
	if err != nil {
		return false, fmt.Errorf("delete group setting: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// UpsertUser inserts a user row or merges name and role into the existing
// one. FirstSeen is preserved on conflict.
func (s *SQLite) UpsertUser(ctx context.Context, u *model.User) error {
	if u.FirstSeen.IsZero() {
		u.FirstSeen = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (jid, name, role, first_seen) VALUES (?, ?, ?, ?)
		 ON CONFLICT (jid) DO UPDATE SET
		   name = excluded.name,
		   role = excluded.role`,
		u.JID, u.Name, u.Role, u.FirstSeen.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// SaveMessage inserts a message row, replacing the body on redelivery of the
// same message ID.
func (s *SQLite) SaveMessage(ctx context.Context, m *model.Message) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, jid, group_id, body, media_kind, timestamp) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   body = excluded.body,
		   media_kind = excluded.media_kind`,
		m.ID, m.JID, m.GroupID, m.Body, string(m.Media), m.Timestamp.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// ListGroupMembers returns the distinct users observed in a group's message
// history, ordered by name.
func (s *SQLite) ListGroupMembers(ctx context.Context, groupID string) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.jid, u.name, u.role, u.first_seen
		 FROM users u
		 WHERE u.jid IN (SELECT DISTINCT jid FROM messages WHERE group_id = ?)
		 ORDER BY u.name, u.jid`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		var u model.User
		var firstSeen string
		if err := rows.Scan(&u.JID, &u.Name, &u.Role, &firstSeen); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.FirstSeen, _ = time.Parse(timeLayout, firstSeen)
		users = append(users, u)
	}
	return users, rows.Err()
}

// AppendModerationLog appends one audit entry and populates its ID.
func (s *SQLite) AppendModerationLog(ctx context.Context, entry *model.ModerationLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO moderation_log (jid, action, reason, timestamp) VALUES (?, ?, ?, ?)`,
		entry.JID, entry.Action, entry.Reason, entry.Timestamp.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("append moderation log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanGroupSetting(row scannable) (*model.GroupSetting, error) {
	var gs model.GroupSetting
	var welcomeOn, goodbyeOn int
	var created, updated sql.NullString
	err := row.Scan(&gs.GroupID, &gs.GroupName,
		&welcomeOn, &gs.WelcomeMessage,
		&goodbyeOn, &gs.GoodbyeMessage,
		&created, &updated,
	)
	if err != nil {
		return nil, fmt.Errorf("scan group setting: %w", err)
	}
	gs.WelcomeEnabled = welcomeOn == 1
	gs.GoodbyeEnabled = goodbyeOn == 1
	if created.Valid {
		gs.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	if updated.Valid {
		gs.UpdatedAt, _ = time.Parse(timeLayout, updated.String)
	}
	return &gs, nil
}

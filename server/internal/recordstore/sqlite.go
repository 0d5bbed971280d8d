package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"chat-drafts/server/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS drafts (
	user_id     TEXT    NOT NULL,
	draft_key   TEXT    NOT NULL,
	channel_cid TEXT    NOT NULL,
	parent_id   TEXT    NOT NULL DEFAULT '',
	message     TEXT    NOT NULL,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	PRIMARY KEY (user_id, draft_key)
);
CREATE INDEX IF NOT EXISTS idx_drafts_user_updated ON drafts(user_id, updated_at DESC, draft_key DESC);
CREATE INDEX IF NOT EXISTS idx_drafts_updated ON drafts(updated_at);

CREATE TABLE IF NOT EXISTS reminders (
	user_id     TEXT    NOT NULL,
	message_id  TEXT    NOT NULL,
	channel_cid TEXT    NOT NULL,
	remind_at   INTEGER,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	PRIMARY KEY (user_id, message_id)
);
CREATE INDEX IF NOT EXISTS idx_reminders_user_updated ON reminders(user_id, updated_at DESC, message_id DESC);

CREATE TABLE IF NOT EXISTS users (
	id          TEXT PRIMARY KEY,
	name        TEXT    NOT NULL,
	image       TEXT    NOT NULL DEFAULT '',
	online      INTEGER NOT NULL DEFAULT 0,
	last_active INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	channel_cid TEXT    NOT NULL,
	user_id     TEXT    NOT NULL,
	text        TEXT    NOT NULL,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS attachments (
	id          TEXT PRIMARY KEY,
	message_id  TEXT    NOT NULL,
	channel_cid TEXT    NOT NULL,
	type        TEXT    NOT NULL,
	title       TEXT    NOT NULL DEFAULT '',
	url         TEXT    NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);
`

// SQLiteStore 是基于 SQLite（modernc.org/sqlite，纯 Go）的 Store 实现。
// 时间以 UTC 纳秒整数保存。
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite 打开（必要时创建）数据库文件并初始化表结构。
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertDraft(ctx context.Context, d *model.Draft) error {
	msg, err := json.Marshal(d.Message)
	if err != nil {
		return fmt.Errorf("encode draft message: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts (user_id, draft_key, channel_cid, parent_id, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, draft_key) DO UPDATE SET
			message = excluded.message,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		d.UserID, d.Key(), d.ChannelCID, d.ParentID, string(msg), toNanos(d.CreatedAt), toNanos(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert draft: %w", err)
	}
	return nil
}

const draftColumns = `user_id, channel_cid, parent_id, message, created_at, updated_at`

func (s *SQLiteStore) GetDraft(ctx context.Context, userID, channelCID, parentID string) (*model.Draft, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+draftColumns+` FROM drafts WHERE user_id = ? AND draft_key = ?`,
		userID, model.DraftKey(channelCID, parentID))
	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) DeleteDraft(ctx context.Context, userID, channelCID, parentID string) (*model.Draft, error) {
	d, err := s.GetDraft(ctx, userID, channelCID, parentID)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE user_id = ? AND draft_key = ?`, userID, d.Key())
	if err != nil {
		return nil, fmt.Errorf("delete draft: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return d, nil
}

func (s *SQLiteStore) ListDrafts(ctx context.Context, opts model.QueryOptions) (model.Page[*model.Draft], error) {
	cur, hasCursor, err := decodeCursor(opts.Next)
	if err != nil {
		return model.Page[*model.Draft]{}, err
	}
	limit := normalizeLimit(opts.Limit)

	query := `SELECT ` + draftColumns + ` FROM drafts WHERE user_id = ?`
	args := []any{opts.UserID}
	if channel := opts.Filter["channel_cid"]; channel != "" {
		query += ` AND channel_cid = ?`
		args = append(args, channel)
	}
	if hasCursor {
		query += ` AND (updated_at < ? OR (updated_at = ? AND draft_key < ?))`
		ts := toNanos(cur.LastUpdatedAt)
		args = append(args, ts, ts, cur.LastKey)
	}
	query += ` ORDER BY updated_at DESC, draft_key DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return model.Page[*model.Draft]{}, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var items []*model.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return model.Page[*model.Draft]{}, fmt.Errorf("scan draft: %w", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return model.Page[*model.Draft]{}, fmt.Errorf("list drafts: %w", err)
	}
	return keysetPage(items, limit, func(d *model.Draft) (time.Time, string) { return d.UpdatedAt, d.Key() }), nil
}

func (s *SQLiteStore) PurgeDraftsBefore(ctx context.Context, before time.Time) ([]*model.Draft, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+draftColumns+` FROM drafts WHERE updated_at < ? ORDER BY updated_at DESC, draft_key DESC`,
		toNanos(before))
	if err != nil {
		return nil, fmt.Errorf("select expired drafts: %w", err)
	}
	var purged []*model.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		purged = append(purged, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select expired drafts: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM drafts WHERE updated_at < ?`, toNanos(before)); err != nil {
		return nil, fmt.Errorf("delete expired drafts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit purge: %w", err)
	}
	return purged, nil
}

func (s *SQLiteStore) UpsertReminder(ctx context.Context, r *model.Reminder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (user_id, message_id, channel_cid, remind_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, message_id) DO UPDATE SET
			channel_cid = excluded.channel_cid,
			remind_at = excluded.remind_at,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		r.UserID, r.MessageID, r.ChannelCID, nullableNanos(r.RemindAt), toNanos(r.CreatedAt), toNanos(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert reminder: %w", err)
	}
	return nil
}

const reminderColumns = `user_id, message_id, channel_cid, remind_at, created_at, updated_at`

func (s *SQLiteStore) GetReminder(ctx context.Context, userID, messageID string) (*model.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE user_id = ? AND message_id = ?`, userID, messageID)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) DeleteReminder(ctx context.Context, userID, messageID string) (*model.Reminder, error) {
	r, err := s.GetReminder(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE user_id = ? AND message_id = ?`, userID, messageID)
	if err != nil {
		return nil, fmt.Errorf("delete reminder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *SQLiteStore) ListReminders(ctx context.Context, opts model.QueryOptions) (model.Page[*model.Reminder], error) {
	cur, hasCursor, err := decodeCursor(opts.Next)
	if err != nil {
		return model.Page[*model.Reminder]{}, err
	}
	limit := normalizeLimit(opts.Limit)

	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE user_id = ?`
	args := []any{opts.UserID}
	if channel := opts.Filter["channel_cid"]; channel != "" {
		query += ` AND channel_cid = ?`
		args = append(args, channel)
	}
	if hasCursor {
		query += ` AND (updated_at < ? OR (updated_at = ? AND message_id < ?))`
		ts := toNanos(cur.LastUpdatedAt)
		args = append(args, ts, ts, cur.LastKey)
	}
	query += ` ORDER BY updated_at DESC, message_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return model.Page[*model.Reminder]{}, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	var items []*model.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return model.Page[*model.Reminder]{}, fmt.Errorf("scan reminder: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return model.Page[*model.Reminder]{}, fmt.Errorf("list reminders: %w", err)
	}
	return keysetPage(items, limit, func(r *model.Reminder) (time.Time, string) { return r.UpdatedAt, r.MessageID }), nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context, q model.OffsetQuery) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, image, online, last_active FROM users
		WHERE instr(lower(name), lower(?)) = 1 OR ? = ''
		ORDER BY name, id LIMIT ? OFFSET ?`,
		q.Query, q.Query, sqlLimit(q.Limit), max(q.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := []model.User{}
	for rows.Next() {
		var (
			u          model.User
			online     int
			lastActive int64
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.Image, &online, &lastActive); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Online = online != 0
		u.LastActive = fromNanos(lastActive)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SearchMessages(ctx context.Context, q model.OffsetQuery) ([]model.Message, error) {
	query := `SELECT id, channel_cid, user_id, text, created_at FROM messages WHERE instr(lower(text), lower(?)) > 0`
	args := []any{q.Query}
	if q.ChannelCID != "" {
		query += ` AND channel_cid = ?`
		args = append(args, q.ChannelCID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, sqlLimit(q.Limit), max(q.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	out := []model.Message{}
	for rows.Next() {
		var (
			m       model.Message
			created int64
		)
		if err := rows.Scan(&m.ID, &m.ChannelCID, &m.UserID, &m.Text, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = fromNanos(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListAttachments(ctx context.Context, q model.OffsetQuery) ([]model.Attachment, error) {
	var (
		where []string
		args  []any
	)
	if q.ChannelCID != "" {
		where = append(where, "channel_cid = ?")
		args = append(args, q.ChannelCID)
	}
	if q.Type != "" {
		where = append(where, "type = ?")
		args = append(args, q.Type)
	}
	query := `SELECT id, message_id, channel_cid, type, title, url, created_at FROM attachments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, sqlLimit(q.Limit), max(q.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	out := []model.Attachment{}
	for rows.Next() {
		var (
			a       model.Attachment
			created int64
		)
		if err := rows.Scan(&a.ID, &a.MessageID, &a.ChannelCID, &a.Type, &a.Title, &a.URL, &created); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		a.CreatedAt = fromNanos(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Seed(ctx context.Context, data model.SeedData) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, u := range data.Users {
		online := 0
		if u.Online {
			online = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO users (id, name, image, online, last_active) VALUES (?, ?, ?, ?, ?)`,
			u.ID, u.Name, u.Image, online, toNanos(u.LastActive)); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	for _, m := range data.Messages {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO messages (id, channel_cid, user_id, text, created_at) VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.ChannelCID, m.UserID, m.Text, toNanos(m.CreatedAt)); err != nil {
			return fmt.Errorf("seed message %s: %w", m.ID, err)
		}
	}
	for _, a := range data.Attachments {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO attachments (id, message_id, channel_cid, type, title, url, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.MessageID, a.ChannelCID, a.Type, a.Title, a.URL, toNanos(a.CreatedAt)); err != nil {
			return fmt.Errorf("seed attachment %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDraft(row scanner) (*model.Draft, error) {
	var (
		d                model.Draft
		msg              string
		created, updated int64
	)
	if err := row.Scan(&d.UserID, &d.ChannelCID, &d.ParentID, &msg, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(msg), &d.Message); err != nil {
		return nil, fmt.Errorf("decode draft message: %w", err)
	}
	d.CreatedAt = fromNanos(created)
	d.UpdatedAt = fromNanos(updated)
	return &d, nil
}

func scanReminder(row scanner) (*model.Reminder, error) {
	var (
		r                model.Reminder
		remindAt         sql.NullInt64
		created, updated int64
	)
	if err := row.Scan(&r.UserID, &r.MessageID, &r.ChannelCID, &remindAt, &created, &updated); err != nil {
		return nil, err
	}
	if remindAt.Valid {
		t := fromNanos(remindAt.Int64)
		r.RemindAt = &t
	}
	r.CreatedAt = fromNanos(created)
	r.UpdatedAt = fromNanos(updated)
	return &r, nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nullableNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

// sqlLimit 把 0 映射为 SQLite 的“不限”。
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

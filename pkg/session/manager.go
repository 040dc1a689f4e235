package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNoActiveSession is returned when a chat has no session in an active
// status.
var ErrNoActiveSession = errors.New("no active session")

// Manager runs all session and message persistence against one database.
type Manager struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// NewManager prepares the schema and returns a manager. driver is the
// database/sql driver name in use (sqlite3, postgres, mysql).
func NewManager(ctx context.Context, db *sql.DB, driver string) (*Manager, error) {
	m := &Manager{db: db, driver: driver, logger: slog.Default()}
	if err := m.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return m, nil
}

func (m *Manager) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			chat_id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			message_id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS research_sessions (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			original_query TEXT NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			deep_search_result TEXT NOT NULL DEFAULT '',
			clarification_answers TEXT NOT NULL DEFAULT '',
			draft_report TEXT NOT NULL DEFAULT '',
			final_report TEXT NOT NULL DEFAULT '',
			session_metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON chat_messages (chat_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_chat ON research_sessions (chat_id, status)`,
	}
	for _, stmt := range statements {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind converts ? placeholders to the driver's native form.
func (m *Manager) rebind(query string) string {
	if m.driver != "postgres" {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// EnsureChat inserts the chat row if it does not exist.
func (m *Manager) EnsureChat(ctx context.Context, chatID string) error {
	query := `INSERT INTO chats (chat_id, created_at) VALUES (?, ?)`
	switch m.driver {
	case "mysql":
		query += ` ON DUPLICATE KEY UPDATE chat_id = chat_id`
	default:
		query += ` ON CONFLICT (chat_id) DO NOTHING`
	}
	_, err := m.db.ExecContext(ctx, m.rebind(query), chatID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ensure chat: %w", err)
	}
	return nil
}

// SaveMessage upserts a message by message_id. Re-saving the same id
// replaces the content, so streaming retries never duplicate a turn.
func (m *Manager) SaveMessage(ctx context.Context, msg Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO chat_messages (message_id, chat_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`
	switch m.driver {
	case "mysql":
		query += ` ON DUPLICATE KEY UPDATE content = VALUES(content)`
	default:
		query += ` ON CONFLICT (message_id) DO UPDATE SET content = excluded.content`
	}
	_, err := m.db.ExecContext(ctx, m.rebind(query),
		msg.MessageID, msg.ChatID, msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// ChatHistory returns the latest limit messages for the chat in
// chronological order.
func (m *Manager) ChatHistory(ctx context.Context, chatID string, limit int) ([]Message, error) {
	query := m.rebind(`SELECT message_id, chat_id, role, content, created_at
		FROM chat_messages WHERE chat_id = ?
		ORDER BY created_at DESC, message_id DESC LIMIT ?`)
	rows, err := m.db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.MessageID, &msg.ChatID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CreateSession supersedes any active sessions of the chat and inserts the
// new one in a single transaction.
func (m *Manager) CreateSession(ctx context.Context, chatID, query string, mode Mode) (*Session, error) {
	if err := m.EnsureChat(ctx, chatID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:            uuid.NewString(),
		ChatID:        chatID,
		OriginalQuery: query,
		Mode:          mode,
		Status:        StatusActive,
		Metadata:      map[string]any{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	supersede := m.rebind(`UPDATE research_sessions SET status = ?, updated_at = ?
		WHERE chat_id = ? AND status IN (?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, supersede,
		string(StatusSuperseded), now, chatID,
		string(activeStatuses[0]), string(activeStatuses[1]), string(activeStatuses[2])); err != nil {
		return nil, fmt.Errorf("supersede active sessions: %w", err)
	}

	insert := m.rebind(`INSERT INTO research_sessions
		(id, chat_id, original_query, mode, status, session_metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insert,
		sess.ID, sess.ChatID, sess.OriginalQuery, string(sess.Mode), string(sess.Status),
		"{}", now, now); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create session: %w", err)
	}
	return sess, nil
}

// GetActiveSession returns the chat's single session in an active status.
func (m *Manager) GetActiveSession(ctx context.Context, chatID string) (*Session, error) {
	query := m.rebind(sessionSelect + ` WHERE chat_id = ? AND status IN (?, ?, ?)
		ORDER BY created_at DESC LIMIT 1`)
	row := m.db.QueryRowContext(ctx, query, chatID,
		string(activeStatuses[0]), string(activeStatuses[1]), string(activeStatuses[2]))
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveSession
	}
	return sess, err
}

// GetOrCreateSession reuses the chat's active session or creates one.
func (m *Manager) GetOrCreateSession(ctx context.Context, chatID, query string, mode Mode) (*Session, error) {
	sess, err := m.GetActiveSession(ctx, chatID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrNoActiveSession) {
		return nil, err
	}
	return m.CreateSession(ctx, chatID, query, mode)
}

// GetSession loads one session by id.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := m.db.QueryRowContext(ctx, m.rebind(sessionSelect+` WHERE id = ?`), sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	return sess, err
}

const sessionSelect = `SELECT id, chat_id, original_query, mode, status,
	deep_search_result, clarification_answers, draft_report, final_report,
	session_metadata, created_at, updated_at, completed_at
	FROM research_sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var metadata string
	var completedAt sql.NullTime
	err := row.Scan(&sess.ID, &sess.ChatID, &sess.OriginalQuery, &sess.Mode, &sess.Status,
		&sess.DeepSearchResult, &sess.ClarificationAnswers, &sess.DraftReport, &sess.FinalReport,
		&metadata, &sess.CreatedAt, &sess.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		sess.CompletedAt = &completedAt.Time
	}
	if err := json.Unmarshal([]byte(metadata), &sess.Metadata); err != nil {
		sess.Metadata = map[string]any{}
	}
	return &sess, nil
}

// updateField writes one column on a non-terminal session.
func (m *Manager) updateField(ctx context.Context, sessionID, column string, value any) error {
	query := m.rebind(fmt.Sprintf(`UPDATE research_sessions SET %s = ?, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?, ?, ?)`, column))
	res, err := m.db.ExecContext(ctx, query, value, time.Now().UTC(), sessionID,
		string(StatusCompleted), string(StatusSuperseded), string(StatusCancelled), string(StatusExpired))
	if err != nil {
		return fmt.Errorf("update session %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s is terminal or missing", sessionID)
	}
	return nil
}

// UpdateStatus transitions a non-terminal session.
func (m *Manager) UpdateStatus(ctx context.Context, sessionID string, status Status) error {
	return m.updateField(ctx, sessionID, "status", string(status))
}

// CompleteSession marks the session completed and stores the final report.
func (m *Manager) CompleteSession(ctx context.Context, sessionID, finalReport string) error {
	now := time.Now().UTC()
	query := m.rebind(`UPDATE research_sessions
		SET status = ?, final_report = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?, ?, ?)`)
	res, err := m.db.ExecContext(ctx, query,
		string(StatusCompleted), finalReport, now, now, sessionID,
		string(StatusCompleted), string(StatusSuperseded), string(StatusCancelled), string(StatusExpired))
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s is terminal or missing", sessionID)
	}
	return nil
}

func (m *Manager) SaveDeepSearchResult(ctx context.Context, sessionID, result string) error {
	return m.updateField(ctx, sessionID, "deep_search_result", result)
}

func (m *Manager) SaveClarificationAnswers(ctx context.Context, sessionID, answers string) error {
	return m.updateField(ctx, sessionID, "clarification_answers", answers)
}

func (m *Manager) SaveDraftReport(ctx context.Context, sessionID, draft string) error {
	return m.updateField(ctx, sessionID, "draft_report", draft)
}

// UpdateMetadata merges keys into session_metadata. Metadata stays
// writable on terminal sessions.
func (m *Manager) UpdateMetadata(ctx context.Context, sessionID string, patch map[string]any) error {
	sess, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	for k, v := range patch {
		sess.Metadata[k] = v
	}
	data, err := json.Marshal(sess.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	query := m.rebind(`UPDATE research_sessions SET session_metadata = ?, updated_at = ? WHERE id = ?`)
	if _, err := m.db.ExecContext(ctx, query, string(data), time.Now().UTC(), sessionID); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return nil
}

// SupersedeActiveSessions marks every active session of the chat
// superseded.
func (m *Manager) SupersedeActiveSessions(ctx context.Context, chatID, reason string) (int64, error) {
	query := m.rebind(`UPDATE research_sessions SET status = ?, updated_at = ?
		WHERE chat_id = ? AND status IN (?, ?, ?)`)
	res, err := m.db.ExecContext(ctx, query, string(StatusSuperseded), time.Now().UTC(), chatID,
		string(activeStatuses[0]), string(activeStatuses[1]), string(activeStatuses[2]))
	if err != nil {
		return 0, fmt.Errorf("supersede sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		m.logger.Info("superseded active sessions", "chat_id", chatID, "count", n, "reason", reason)
	}
	return n, nil
}

// CleanupExpiredSessions expires active sessions older than the given age.
func (m *Manager) CleanupExpiredSessions(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	query := m.rebind(`UPDATE research_sessions SET status = ?, updated_at = ?
		WHERE status IN (?, ?, ?) AND created_at < ?`)
	res, err := m.db.ExecContext(ctx, query, string(StatusExpired), time.Now().UTC(),
		string(activeStatuses[0]), string(activeStatuses[1]), string(activeStatuses[2]), cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		m.logger.Info("expired stale sessions", "count", n)
	}
	return n, nil
}

// StartCleanupLoop sweeps expired sessions until the context ends.
func (m *Manager) StartCleanupLoop(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.CleanupExpiredSessions(ctx, maxAge); err != nil {
					m.logger.Warn("session cleanup failed", "error", err)
				}
			}
		}
	}()
}

// Package persistence stores conversations, cross-chat memory, profiles and
// auth sessions for signed-in users.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"triage-assistant/internal/platform/logger"
	"triage-assistant/internal/triage"
)

// Open connects to Postgres, retrying while the database comes up.
func Open(ctx context.Context, url string, log *logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			return db, nil
		}
		log.Info("waiting for database", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	db.Close()
	return nil, fmt.Errorf("database unreachable: %w", err)
}

// Postgres is the triage.Backend for deployments with a database.
type Postgres struct {
	db     *sql.DB
	tokens *Tokens
}

func NewPostgres(db *sql.DB, tokens *Tokens) *Postgres {
	return &Postgres{db: db, tokens: tokens}
}

func (p *Postgres) Enabled() bool { return true }

func (p *Postgres) SignUp(ctx context.Context, email, password string) (*triage.AuthSession, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		id, email, hash, time.Now())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("%w: email already registered", triage.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return p.issue(ctx, id)
}

func (p *Postgres) SignIn(ctx context.Context, email, password string) (*triage.AuthSession, error) {
	var id uuid.UUID
	var hash string
	err := p.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = $1`, normalizeEmail(email)).Scan(&id, &hash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %v", triage.ErrUnauthenticated, errBadCredentials)
		}
		return nil, err
	}
	if err := checkPassword(hash, password); err != nil {
		return nil, err
	}
	return p.issue(ctx, id)
}

// Resume accepts a still-valid access token as is; otherwise the refresh
// token is exchanged for a new pair.
func (p *Postgres) Resume(ctx context.Context, accessToken, refreshToken string) (*triage.AuthSession, error) {
	if id, err := p.tokens.Verify(accessToken); err == nil {
		return &triage.AuthSession{UserID: id, AccessToken: accessToken, RefreshToken: refreshToken}, nil
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: session expired", triage.ErrUnauthenticated)
	}

	var id uuid.UUID
	err := p.db.QueryRowContext(ctx,
		`DELETE FROM refresh_tokens WHERE token = $1 AND expires_at > $2 RETURNING user_id`,
		refreshToken, time.Now()).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: session expired", triage.ErrUnauthenticated)
		}
		return nil, err
	}
	return p.issue(ctx, id)
}

func (p *Postgres) issue(ctx context.Context, userID uuid.UUID) (*triage.AuthSession, error) {
	access, err := p.tokens.Issue(userID)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}
	refresh := uuid.New().String()
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token, user_id, expires_at) VALUES ($1, $2, $3)`,
		refresh, userID, p.tokens.refreshExpiry())
	if err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}
	return &triage.AuthSession{UserID: userID, AccessToken: access, RefreshToken: refresh}, nil
}

func (p *Postgres) CreateConversation(ctx context.Context, userID uuid.UUID, title string) (triage.ConversationSummary, error) {
	c := triage.ConversationSummary{ID: uuid.New(), Title: title, CreatedAt: time.Now()}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, userID, c.Title, c.CreatedAt)
	if err != nil {
		return triage.ConversationSummary{}, err
	}
	return c, nil
}

func (p *Postgres) ListConversations(ctx context.Context, userID uuid.UUID) ([]triage.ConversationSummary, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, title, created_at FROM conversations WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []triage.ConversationSummary{}
	for rows.Next() {
		var c triage.ConversationSummary
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) ListMessages(ctx context.Context, userID, conversationID uuid.UUID) ([]triage.Message, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT m.role, m.content, m.created_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.id = $1 AND c.user_id = $2
		ORDER BY m.id`, conversationID, userID)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func (p *Postgres) InsertMessage(ctx context.Context, conversationID uuid.UUID, role triage.Role, content string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, created_at) VALUES ($1, $2, $3, $4)`,
		conversationID, string(role), content, time.Now())
	return err
}

// RecentMessagesFromOtherConversations returns up to limit of the user's
// latest messages outside exclude, oldest first.
func (p *Postgres) RecentMessagesFromOtherConversations(ctx context.Context, userID, exclude uuid.UUID, limit int) ([]triage.Message, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT role, content, created_at FROM (
			SELECT m.id, m.role, m.content, m.created_at
			FROM messages m
			JOIN conversations c ON c.id = m.conversation_id
			WHERE c.user_id = $1 AND c.id <> $2 AND m.role IN ('user', 'assistant')
			ORDER BY m.id DESC
			LIMIT $3
		) recent
		ORDER BY id`, userID, exclude, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]triage.Message, error) {
	defer rows.Close()
	out := []triage.Message{}
	for rows.Next() {
		var m triage.Message
		var role string
		if err := rows.Scan(&role, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Role = triage.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) GetAllMemory(ctx context.Context, userID uuid.UUID) (map[string]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT key, value FROM user_memory WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertMemory(ctx context.Context, userID uuid.UUID, values map[string]string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for k, v := range values {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_memory (user_id, key, value, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, key) DO UPDATE SET
				value = $3,
				updated_at = $4`, userID, k, v, now)
		if err != nil {
			return fmt.Errorf("upserting memory %q: %w", k, err)
		}
	}
	return tx.Commit()
}

func (p *Postgres) GetProfile(ctx context.Context, userID uuid.UUID) (*triage.UserProfile, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx, `SELECT data FROM user_profiles WHERE user_id = $1`, userID).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var prof triage.UserProfile
	if err := json.Unmarshal(data, &prof); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &prof, nil
}

func (p *Postgres) UpsertProfile(ctx context.Context, userID uuid.UUID, prof triage.UserProfile) error {
	data, err := json.Marshal(prof)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			data = $2,
			updated_at = $3`, userID, data, time.Now())
	return err
}

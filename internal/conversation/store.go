package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"sparkchat/internal/models"
	"sparkchat/internal/personality"
	"sparkchat/internal/prompt"
	"sparkchat/internal/redis"
)

// ResetNotice is appended as the first assistant message of a restarted
// conversation so the user sees why the history vanished.
const ResetNotice = "We've reached the max number of messages, and the chat has restarted. Kindly refresh my memory...what were we saying?"

// imageMarker prefixes placeholder messages standing in for a shared image.
// Marked messages never enter the model context since the image bytes are
// long gone.
const imageMarker = "📷"

const historyCacheTTL = 5 * time.Minute

// Config bounds one conversation log.
type Config struct {
	// MaxMessages caps the stored log per (user, personality); reaching it
	// restarts the conversation.
	MaxMessages int
	// ContextWindow is how many trailing messages feed the model prompt.
	ContextWindow int
}

// Store persists per-user, per-personality conversation logs.
type Store struct {
	db      *sql.DB
	cache   *redis.Client
	catalog *personality.Catalog
	cfg     Config
	now     func() time.Time
}

func NewStore(db *sql.DB, cache *redis.Client, catalog *personality.Catalog, cfg Config) *Store {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 500
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 50
	}
	return &Store{db: db, cache: cache, catalog: catalog, cfg: cfg, now: time.Now}
}

func historyCacheKey(userID int64, personalityID string) string {
	return fmt.Sprintf("chat:history:%d:%s", userID, personalityID)
}

// Append stores one message. When the log has already reached its cap the
// whole log is cleared and a reset notice is inserted ahead of the new
// message, all in one transaction.
func (s *Store) Append(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE user_id = ? AND personality_id = ?`,
		msg.UserID, msg.PersonalityID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("count messages: %w", err)
	}

	if count >= s.cfg.MaxMessages {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE user_id = ? AND personality_id = ?`,
			msg.UserID, msg.PersonalityID,
		); err != nil {
			return fmt.Errorf("reset conversation: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (user_id, personality_id, role, content, attachment_ref, is_bookmarked, created_at)
			 VALUES (?, ?, ?, ?, '', 0, ?)`,
			msg.UserID, msg.PersonalityID, models.RoleAssistant, ResetNotice, msg.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert reset notice: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (user_id, personality_id, role, content, attachment_ref, is_bookmarked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.UserID, msg.PersonalityID, msg.Role, msg.Content, msg.AttachmentRef, msg.IsBookmarked, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	msg.ID = id

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}

	s.invalidateCache(ctx, msg.UserID, msg.PersonalityID)
	return nil
}

// History returns the full stored log, oldest first. An empty log yields a
// single unpersisted greeting from the personality so the client always has
// an opening message to show.
func (s *Store) History(ctx context.Context, userID int64, personalityID string) ([]models.Message, error) {
	if cached, ok := s.cachedHistory(ctx, userID, personalityID); ok {
		return cached, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, personality_id, role, content, attachment_ref, is_bookmarked, created_at
		 FROM messages WHERE user_id = ? AND personality_id = ?
		 ORDER BY created_at ASC, id ASC`,
		userID, personalityID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	if len(msgs) == 0 {
		p := s.catalog.ByID(personalityID)
		return []models.Message{{
			UserID:        userID,
			PersonalityID: p.ID,
			Role:          models.RoleAssistant,
			Content:       p.Greeting,
			CreatedAt:     s.now(),
		}}, nil
	}

	s.cacheHistory(ctx, userID, personalityID, msgs)
	return msgs, nil
}

// Window returns the model context: the trailing ContextWindow messages
// before the given message id, oldest first, with empty and image-marker
// messages dropped.
func (s *Store) Window(ctx context.Context, userID int64, personalityID string, beforeID int64) ([]prompt.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM messages
		 WHERE user_id = ? AND personality_id = ? AND id < ?
		 ORDER BY id DESC LIMIT ?`,
		userID, personalityID, beforeID, s.cfg.ContextWindow,
	)
	if err != nil {
		return nil, fmt.Errorf("query context window: %w", err)
	}
	defer rows.Close()

	var reversed []prompt.Turn
	for rows.Next() {
		var t prompt.Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("scan context row: %w", err)
		}
		reversed = append(reversed, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("context rows: %w", err)
	}

	turns := make([]prompt.Turn, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		t := reversed[i]
		content := strings.TrimSpace(t.Content)
		if content == "" || strings.HasPrefix(content, imageMarker) {
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Clear removes the whole log for one (user, personality) pair.
func (s *Store) Clear(ctx context.Context, userID int64, personalityID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE user_id = ? AND personality_id = ?`,
		userID, personalityID,
	); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	s.invalidateCache(ctx, userID, personalityID)
	return nil
}

// ToggleBookmark flips the bookmark flag on one of the user's messages.
// Unknown ids are a silent no-op.
func (s *Store) ToggleBookmark(ctx context.Context, userID, messageID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET is_bookmarked = 1 - is_bookmarked WHERE id = ? AND user_id = ?`,
		messageID, userID,
	)
	if err != nil {
		return fmt.Errorf("toggle bookmark: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		var personalityID string
		if err := s.db.QueryRowContext(ctx,
			`SELECT personality_id FROM messages WHERE id = ?`, messageID,
		).Scan(&personalityID); err == nil {
			s.invalidateCache(ctx, userID, personalityID)
		}
	}
	return nil
}

// Count reports the stored log length.
func (s *Store) Count(ctx context.Context, userID int64, personalityID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE user_id = ? AND personality_id = ?`,
		userID, personalityID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.PersonalityID, &m.Role, &m.Content, &m.AttachmentRef, &m.IsBookmarked, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message rows: %w", err)
	}
	return msgs, nil
}

func (s *Store) cachedHistory(ctx context.Context, userID int64, personalityID string) ([]models.Message, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, historyCacheKey(userID, personalityID))
	if err != nil {
		if err != redis.ErrCacheMiss {
			log.Printf("history cache get failed: %v", err)
		}
		return nil, false
	}
	var msgs []models.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil, false
	}
	return msgs, true
}

func (s *Store) cacheHistory(ctx context.Context, userID int64, personalityID string, msgs []models.Message) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, historyCacheKey(userID, personalityID), raw, historyCacheTTL); err != nil {
		log.Printf("history cache set failed: %v", err)
	}
}

func (s *Store) invalidateCache(ctx context.Context, userID int64, personalityID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, historyCacheKey(userID, personalityID)); err != nil {
		log.Printf("history cache del failed: %v", err)
	}
}

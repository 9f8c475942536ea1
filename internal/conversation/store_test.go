package conversation

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"sparkchat/internal/config"
	"sparkchat/internal/models"
	"sparkchat/internal/personality"
	"sparkchat/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{
		"sqlite3": {DSN: ":memory:"},
	}}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func insertUser(t *testing.T, db *sql.DB, username string) int64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, "x", time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	return id
}

func newTestStore(t *testing.T, cfg Config) (*Store, int64) {
	t.Helper()
	db := openTestDB(t)
	userID := insertUser(t, db, "alice")
	return NewStore(db, nil, personality.NewCatalog(), cfg), userID
}

func appendMsg(t *testing.T, store *Store, userID int64, personalityID string, role models.Role, content string) *models.Message {
	t.Helper()
	msg := &models.Message{
		UserID:        userID,
		PersonalityID: personalityID,
		Role:          role,
		Content:       content,
	}
	if err := store.Append(context.Background(), msg); err != nil {
		t.Fatalf("append %q: %v", content, err)
	}
	if msg.ID == 0 {
		t.Fatalf("append did not assign an id")
	}
	return msg
}

func TestAppendAndHistory(t *testing.T) {
	store, userID := newTestStore(t, Config{})
	ctx := context.Background()

	appendMsg(t, store, userID, "default", models.RoleUser, "hello")
	appendMsg(t, store, userID, "default", models.RoleAssistant, "hi, how can I help?")

	msgs, err := store.History(ctx, userID, "default")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "hello" || msgs[0].Role != models.RoleUser {
		t.Fatalf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].Content != "hi, how can I help?" || msgs[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected second message: %+v", msgs[1])
	}
}

func TestHistoryEmptyLogYieldsGreeting(t *testing.T) {
	store, userID := newTestStore(t, Config{})

	msgs, err := store.History(context.Background(), userID, "music_composer")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected the greeting only, got %d messages", len(msgs))
	}
	greeting := personality.NewCatalog().ByID("music_composer").Greeting
	if msgs[0].Content != greeting || msgs[0].Role != models.RoleAssistant {
		t.Fatalf("unexpected greeting message: %+v", msgs[0])
	}
	if msgs[0].ID != 0 {
		t.Fatalf("greeting must not be persisted")
	}

	count, err := store.Count(context.Background(), userID, "music_composer")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("greeting leaked into the log, count=%d", count)
	}
}

func TestAppendResetsAtCap(t *testing.T) {
	store, userID := newTestStore(t, Config{MaxMessages: 3})
	ctx := context.Background()

	appendMsg(t, store, userID, "default", models.RoleUser, "one")
	appendMsg(t, store, userID, "default", models.RoleAssistant, "two")
	appendMsg(t, store, userID, "default", models.RoleUser, "three")
	appendMsg(t, store, userID, "default", models.RoleUser, "four")

	msgs, err := store.History(ctx, userID, "default")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected reset notice plus new message, got %d messages", len(msgs))
	}
	if msgs[0].Content != ResetNotice || msgs[0].Role != models.RoleAssistant {
		t.Fatalf("expected reset notice first, got %+v", msgs[0])
	}
	if msgs[1].Content != "four" {
		t.Fatalf("expected the triggering message last, got %+v", msgs[1])
	}
}

func TestResetScopedToPersonality(t *testing.T) {
	store, userID := newTestStore(t, Config{MaxMessages: 2})
	ctx := context.Background()

	appendMsg(t, store, userID, "funny", models.RoleUser, "tell me a joke")
	appendMsg(t, store, userID, "default", models.RoleUser, "one")
	appendMsg(t, store, userID, "default", models.RoleAssistant, "two")
	appendMsg(t, store, userID, "default", models.RoleUser, "three")

	count, err := store.Count(ctx, userID, "funny")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("reset must not touch other personalities, count=%d", count)
	}
}

func TestWindowFiltersAndLimits(t *testing.T) {
	store, userID := newTestStore(t, Config{ContextWindow: 10})
	ctx := context.Background()

	appendMsg(t, store, userID, "default", models.RoleUser, "first")
	appendMsg(t, store, userID, "default", models.RoleAssistant, "second")
	appendMsg(t, store, userID, "default", models.RoleUser, "📷 Shared an image")
	appendMsg(t, store, userID, "default", models.RoleAssistant, "   ")
	last := appendMsg(t, store, userID, "default", models.RoleUser, "latest question")

	turns, err := store.Window(ctx, userID, "default", last.ID)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 usable turns, got %d: %+v", len(turns), turns)
	}
	if turns[0].Content != "first" || turns[1].Content != "second" {
		t.Fatalf("wrong turns: %+v", turns)
	}
}

func TestWindowRespectsContextWindow(t *testing.T) {
	store, userID := newTestStore(t, Config{ContextWindow: 2})
	ctx := context.Background()

	appendMsg(t, store, userID, "default", models.RoleUser, "old")
	appendMsg(t, store, userID, "default", models.RoleAssistant, "mid")
	appendMsg(t, store, userID, "default", models.RoleUser, "recent")
	last := appendMsg(t, store, userID, "default", models.RoleUser, "newest")

	turns, err := store.Window(ctx, userID, "default", last.ID)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected the trailing 2 turns, got %d", len(turns))
	}
	if turns[0].Content != "mid" || turns[1].Content != "recent" {
		t.Fatalf("window should keep the newest turns in order: %+v", turns)
	}
}

func TestToggleBookmark(t *testing.T) {
	store, userID := newTestStore(t, Config{})
	ctx := context.Background()

	msg := appendMsg(t, store, userID, "default", models.RoleAssistant, "keep this")

	if err := store.ToggleBookmark(ctx, userID, msg.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	msgs, err := store.History(ctx, userID, "default")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !msgs[0].IsBookmarked {
		t.Fatalf("message should be bookmarked")
	}

	if err := store.ToggleBookmark(ctx, userID, msg.ID); err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	msgs, err = store.History(ctx, userID, "default")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if msgs[0].IsBookmarked {
		t.Fatalf("second toggle should clear the bookmark")
	}

	// Unknown ids and other users' messages are silent no-ops.
	if err := store.ToggleBookmark(ctx, userID, 9999); err != nil {
		t.Fatalf("toggle unknown: %v", err)
	}
}

func TestClear(t *testing.T) {
	store, userID := newTestStore(t, Config{})
	ctx := context.Background()

	appendMsg(t, store, userID, "default", models.RoleUser, "wipe me")
	if err := store.Clear(ctx, userID, "default"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	count, err := store.Count(ctx, userID, "default")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("log should be empty, count=%d", count)
	}
}

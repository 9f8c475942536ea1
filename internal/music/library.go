package music

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"sparkchat/internal/models"

	"github.com/google/uuid"
)

// Library stores generated tracks: audio bytes on disk, metadata in the
// database. It enforces a per-user cap by evicting the oldest tracks.
type Library struct {
	db        *sql.DB
	baseDir   string
	maxTracks int
	now       func() time.Time
}

func NewLibrary(db *sql.DB, baseDir string, maxTracks int) *Library {
	if maxTracks <= 0 {
		maxTracks = 50
	}
	return &Library{db: db, baseDir: baseDir, maxTracks: maxTracks, now: time.Now}
}

func extForMime(mimeType string) string {
	switch mimeType {
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".mp3"
	}
}

// Save writes the audio file and inserts its metadata row. The file is
// removed again if the row insert fails, so disk and DB stay consistent.
func (l *Library) Save(ctx context.Context, userID int64, prompt string, data TrackData, freeTier bool, costCents int) (*models.GeneratedTrack, error) {
	userDir := filepath.Join(l.baseDir, fmt.Sprintf("%d", userID))
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return nil, fmt.Errorf("create track dir: %w", err)
	}

	track := &models.GeneratedTrack{
		ID:              uuid.NewString(),
		UserID:          userID,
		Prompt:          prompt,
		MimeType:        data.MimeType,
		DurationSeconds: data.DurationSeconds,
		FreeTier:        freeTier,
		CostCents:       costCents,
		CreatedAt:       l.now(),
	}
	track.StoragePath = filepath.Join(userDir, track.ID+extForMime(data.MimeType))

	if err := os.WriteFile(track.StoragePath, data.Bytes, 0o644); err != nil {
		return nil, fmt.Errorf("write track file: %w", err)
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO tracks (id, user_id, prompt, storage_path, mime_type, duration_seconds, free_tier, cost_cents, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		track.ID, track.UserID, track.Prompt, track.StoragePath, track.MimeType,
		track.DurationSeconds, track.FreeTier, track.CostCents, track.CreatedAt,
	)
	if err != nil {
		os.Remove(track.StoragePath)
		return nil, fmt.Errorf("insert track: %w", err)
	}
	return track, nil
}

// List returns the user's tracks, newest first. Rows whose file has gone
// missing are skipped rather than surfaced as broken entries.
func (l *Library) List(ctx context.Context, userID int64) ([]models.GeneratedTrack, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, user_id, prompt, storage_path, mime_type, duration_seconds, free_tier, cost_cents, created_at
		 FROM tracks WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []models.GeneratedTrack
	for rows.Next() {
		var t models.GeneratedTrack
		if err := rows.Scan(&t.ID, &t.UserID, &t.Prompt, &t.StoragePath, &t.MimeType,
			&t.DurationSeconds, &t.FreeTier, &t.CostCents, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		if _, err := os.Stat(t.StoragePath); err != nil {
			log.Printf("track %s file missing, skipping: %v", t.ID, err)
			continue
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("track rows: %w", err)
	}
	return tracks, nil
}

// Get fetches one track owned by the user.
func (l *Library) Get(ctx context.Context, userID int64, trackID string) (*models.GeneratedTrack, error) {
	var t models.GeneratedTrack
	err := l.db.QueryRowContext(ctx,
		`SELECT id, user_id, prompt, storage_path, mime_type, duration_seconds, free_tier, cost_cents, created_at
		 FROM tracks WHERE id = ? AND user_id = ?`,
		trackID, userID,
	).Scan(&t.ID, &t.UserID, &t.Prompt, &t.StoragePath, &t.MimeType,
		&t.DurationSeconds, &t.FreeTier, &t.CostCents, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Delete removes one track's row and file.
func (l *Library) Delete(ctx context.Context, userID int64, trackID string) error {
	t, err := l.Get(ctx, userID, trackID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup track: %w", err)
	}

	if _, err := l.db.ExecContext(ctx,
		`DELETE FROM tracks WHERE id = ? AND user_id = ?`, trackID, userID,
	); err != nil {
		return fmt.Errorf("delete track: %w", err)
	}
	if err := os.Remove(t.StoragePath); err != nil && !os.IsNotExist(err) {
		log.Printf("remove track file %s: %v", t.StoragePath, err)
	}
	return nil
}

// EnforceLimit evicts the oldest tracks beyond the per-user cap, file and
// row together.
func (l *Library) EnforceLimit(ctx context.Context, userID int64) error {
	var count int
	if err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tracks WHERE user_id = ?`, userID,
	).Scan(&count); err != nil {
		return fmt.Errorf("count tracks: %w", err)
	}
	if count <= l.maxTracks {
		return nil
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, storage_path FROM tracks WHERE user_id = ?
		 ORDER BY created_at ASC, id ASC LIMIT ?`,
		userID, count-l.maxTracks,
	)
	if err != nil {
		return fmt.Errorf("query evictable tracks: %w", err)
	}
	defer rows.Close()

	type victim struct {
		id   string
		path string
	}
	var victims []victim
	for rows.Next() {
		var v victim
		if err := rows.Scan(&v.id, &v.path); err != nil {
			return fmt.Errorf("scan evictable track: %w", err)
		}
		victims = append(victims, v)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("evictable rows: %w", err)
	}

	for _, v := range victims {
		if _, err := l.db.ExecContext(ctx,
			`DELETE FROM tracks WHERE id = ?`, v.id,
		); err != nil {
			return fmt.Errorf("evict track %s: %w", v.id, err)
		}
		if err := os.Remove(v.path); err != nil && !os.IsNotExist(err) {
			log.Printf("remove evicted track file %s: %v", v.path, err)
		}
		log.Printf("evicted track %s for user %d (library over %d)", v.id, userID, l.maxTracks)
	}
	return nil
}

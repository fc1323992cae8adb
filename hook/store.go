package hook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	_ "modernc.org/sqlite"

	"github.com/sciforge/toolbridge/logx"
	"github.com/sciforge/toolbridge/protocol"
	"github.com/sciforge/toolbridge/types"
)

const artifactStoreSchema = `
CREATE TABLE IF NOT EXISTS artifacts (
	id TEXT PRIMARY KEY,
	tool TEXT NOT NULL,
	content BLOB NOT NULL,
	created_at TEXT NOT NULL,
	expires_at TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_artifacts_expires ON artifacts(expires_at);`

// Artifact is one stored tool output addressable by ID.
type Artifact struct {
	ID        string
	Tool      string
	Content   string
	CreatedAt time.Time
	ExpiresAt time.Time // zero when the artifact never expires
}

// ArtifactStore persists oversized tool outputs in SQLite so call responses
// can carry a pointer record instead of the raw payload.
type ArtifactStore struct {
	db     *sql.DB
	ttl    time.Duration
	logger types.Logger
	cron   *cron.Cron
}

// NewArtifactStore opens (or creates) the store at dsn. A zero ttl keeps
// artifacts forever; otherwise each Put stamps an expiry ttl from now.
func NewArtifactStore(dsn string, ttl time.Duration, logger types.Logger) (*ArtifactStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("artifact store dsn is required")
	}
	if logger == nil {
		logger = logx.Nop()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening artifact store: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec(artifactStoreSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating artifact schema: %w", err)
	}

	return &ArtifactStore{db: db, ttl: ttl, logger: logger}, nil
}

// Put stores content and returns the addressable artifact record.
func (s *ArtifactStore) Put(ctx context.Context, tool, content string) (*Artifact, error) {
	a := &Artifact{
		ID:        uuid.NewString(),
		Tool:      tool,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	expires := ""
	if s.ttl > 0 {
		a.ExpiresAt = a.CreatedAt.Add(s.ttl)
		expires = a.ExpiresAt.Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, tool, content, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Tool, []byte(a.Content), a.CreatedAt.Format(time.RFC3339Nano), expires)
	if err != nil {
		return nil, fmt.Errorf("inserting artifact: %w", err)
	}
	s.logger.Debug("stored artifact", "id", a.ID, "tool", tool, "size", len(content))
	return a, nil
}

// Get retrieves an artifact by ID. Expired artifacts report not_found.
func (s *ArtifactStore) Get(ctx context.Context, id string) (*Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tool, content, created_at, expires_at FROM artifacts WHERE id = ?`, id)

	var a Artifact
	var content []byte
	var created, expires string
	if err := row.Scan(&a.ID, &a.Tool, &content, &created, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, protocol.NewError(protocol.KindNotFound, "artifact not found: %s", id)
		}
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	a.Content = string(content)
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if expires != "" {
		a.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expires)
		if time.Now().UTC().After(a.ExpiresAt) {
			return nil, protocol.NewError(protocol.KindNotFound, "artifact expired: %s", id)
		}
	}
	return &a, nil
}

// Sweep deletes expired artifacts and reports how many were removed.
func (s *ArtifactStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM artifacts WHERE expires_at != '' AND expires_at <= ?`,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("sweeping artifacts: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("swept expired artifacts", "count", n)
	}
	return n, nil
}

// StartCleanup schedules periodic expiry sweeps, e.g. "@every 10m".
func (s *ArtifactStore) StartCleanup(schedule string) error {
	if s.cron != nil {
		return errors.New("cleanup already started")
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error("artifact sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling artifact cleanup: %w", err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Close stops the cleanup schedule and closes the database.
func (s *ArtifactStore) Close() error {
	if s.cron != nil {
		s.cron.Stop()
	}
	return s.db.Close()
}

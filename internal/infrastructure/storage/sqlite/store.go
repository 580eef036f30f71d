package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kirillkom/grading-assistant/internal/core/domain"

	_ "modernc.org/sqlite"
)

// Store is a blob store kept in a single SQLite database.
type Store struct {
	db            *sql.DB
	publicBaseURL string
	now           func() time.Time
}

func New(dbPath, publicBaseURL string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{
		db:            db,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		now:           func() time.Time { return time.Now().UTC() },
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS folders (
		id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (parent_id, name)
	);

	CREATE TABLE IF NOT EXISTS blobs (
		id TEXT PRIMARY KEY,
		folder_id TEXT NOT NULL,
		name TEXT NOT NULL,
		mime_type TEXT NOT NULL DEFAULT '',
		data BLOB NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (folder_id, name)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) ListFiles(ctx context.Context, folderID string, exts ...string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM blobs WHERE folder_id = ?`, folderID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		if len(exts) > 0 && !matchesExt(name, exts) {
			continue
		}
		out[name] = id
	}
	return out, rows.Err()
}

func (s *Store) ListFolders(ctx context.Context, parentID string) ([]domain.FolderInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM folders WHERE parent_id = ? ORDER BY created_at DESC`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	var out []domain.FolderInfo
	for rows.Next() {
		var f domain.FolderInfo
		var created string
		if err := rows.Scan(&f.ID, &f.Name, &created); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		if f.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) FileID(ctx context.Context, folderID, name string) (string, bool, error) {
	return s.lookupID(ctx, `SELECT id FROM blobs WHERE folder_id = ? AND name = ?`, folderID, name)
}

func (s *Store) FolderID(ctx context.Context, parentID, name string) (string, bool, error) {
	return s.lookupID(ctx, `SELECT id FROM folders WHERE parent_id = ? AND name = ?`, parentID, name)
}

func (s *Store) EnsureFolder(ctx context.Context, parentID, name string) (string, error) {
	if err := domain.ValidateFolderName(name); err != nil {
		return "", err
	}
	if id, ok, err := s.FolderID(ctx, parentID, name); err != nil || ok {
		return id, err
	}
	if err := s.requireFolder(ctx, parentID); err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO folders (id, parent_id, name, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (parent_id, name) DO NOTHING`,
		id, parentID, name, formatTime(s.now()),
	)
	if err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}
	existing, _, err := s.FolderID(ctx, parentID, name)
	if err != nil {
		return "", err
	}
	return existing, nil
}

func (s *Store) ReadBytes(ctx context.Context, fileID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE id = ?`, fileID).Scan(&data)
	if err != nil {
		return nil, notFound("read file", fileID, err)
	}
	return data, nil
}

func (s *Store) ReadText(ctx context.Context, fileID string) (string, error) {
	raw, err := s.ReadBytes(ctx, fileID)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrInvalidInput, "read text", fmt.Errorf("%s is not utf-8 text", fileID))
	}
	return string(raw), nil
}

// WriteOrReplace deletes any same-named blob and inserts the new one in one
// transaction. The replacement gets a new id.
func (s *Store) WriteOrReplace(ctx context.Context, folderID, name string, data []byte, mimeType string) (string, error) {
	if err := domain.ValidateBlobName(name); err != nil {
		return "", err
	}
	if err := s.requireFolder(ctx, folderID); err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM blobs WHERE folder_id = ? AND name = ?`, folderID, name); err != nil {
		return "", fmt.Errorf("delete previous blob: %w", err)
	}
	if data == nil {
		data = []byte{}
	}
	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO blobs (id, folder_id, name, mime_type, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, folderID, name, mimeType, data, formatTime(s.now()),
	); err != nil {
		return "", fmt.Errorf("insert blob: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit write: %w", err)
	}
	return id, nil
}

func (s *Store) Delete(ctx context.Context, fileID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapError(domain.ErrNotFound, "delete blob", fmt.Errorf("blob %q", fileID))
	}
	return nil
}

func (s *Store) CreatedAt(ctx context.Context, fileID string) (time.Time, error) {
	var created string
	if err := s.db.QueryRowContext(ctx, `SELECT created_at FROM blobs WHERE id = ?`, fileID).Scan(&created); err != nil {
		return time.Time{}, notFound("read creation time", fileID, err)
	}
	return parseTime(created)
}

func (s *Store) FileName(ctx context.Context, fileID string) (string, error) {
	var name string
	if err := s.db.QueryRowContext(ctx, `SELECT name FROM blobs WHERE id = ?`, fileID).Scan(&name); err != nil {
		return "", notFound("read file name", fileID, err)
	}
	return name, nil
}

func (s *Store) ShareableLink(ctx context.Context, fileID string) (string, error) {
	if _, err := s.FileName(ctx, fileID); err != nil {
		return "", err
	}
	return s.publicBaseURL + "/v1/blobs?id=" + url.QueryEscape(fileID), nil
}

func (s *Store) lookupID(ctx context.Context, query, parentID, name string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, query, parentID, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup %q: %w", name, err)
	}
	return id, true, nil
}

func (s *Store) requireFolder(ctx context.Context, folderID string) error {
	if folderID == "" {
		return nil
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM folders WHERE id = ?`, folderID).Scan(&one)
	if err != nil {
		return notFound("lookup folder", folderID, err)
	}
	return nil
}

func notFound(op, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrNotFound, op, fmt.Errorf("%q", id))
	}
	return fmt.Errorf("%s: %w", op, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t, nil
}

func matchesExt(name string, exts []string) bool {
	ext := domain.Ext(name)
	for _, want := range exts {
		if strings.EqualFold(strings.TrimPrefix(want, "."), ext) {
			return true
		}
	}
	return false
}

package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

const createdMarker = ".created"

// Storage is a blob store on a directory tree. Folder and file ids are slash
// separated paths of escaped names relative to basePath; the root id is "".
type Storage struct {
	basePath      string
	publicBaseURL string
	now           func() time.Time
}

func New(basePath, publicBaseURL string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{
		basePath:      basePath,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Storage) ListFiles(_ context.Context, folderID string, exts ...string) (map[string]string, error) {
	dir, err := s.resolve(folderID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, wrapFSError("list files", err)
	}
	out := make(map[string]string)
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		name, err := unescapeName(entry.Name())
		if err != nil {
			continue
		}
		if len(exts) > 0 && !matchesExt(name, exts) {
			continue
		}
		out[name] = join(folderID, entry.Name())
	}
	return out, nil
}

func (s *Storage) ListFolders(_ context.Context, parentID string) ([]domain.FolderInfo, error) {
	dir, err := s.resolve(parentID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, wrapFSError("list folders", err)
	}
	out := make([]domain.FolderInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name, err := unescapeName(entry.Name())
		if err != nil {
			continue
		}
		id := join(parentID, entry.Name())
		created, err := s.folderCreatedAt(id)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.FolderInfo{ID: id, Name: name, CreatedAt: created})
	}
	return out, nil
}

func (s *Storage) FileID(_ context.Context, folderID, name string) (string, bool, error) {
	return s.lookup(folderID, name, false)
}

func (s *Storage) FolderID(_ context.Context, parentID, name string) (string, bool, error) {
	return s.lookup(parentID, name, true)
}

func (s *Storage) EnsureFolder(_ context.Context, parentID, name string) (string, error) {
	if err := domain.ValidateFolderName(name); err != nil {
		return "", err
	}
	id, ok, err := s.lookup(parentID, name, true)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}
	dir, err := s.resolve(id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}
	stamp := []byte(s.now().Format(time.RFC3339Nano))
	if err := os.WriteFile(filepath.Join(dir, createdMarker), stamp, 0o644); err != nil {
		return "", fmt.Errorf("write folder marker: %w", err)
	}
	return id, nil
}

func (s *Storage) ReadBytes(_ context.Context, fileID string) ([]byte, error) {
	p, err := s.resolve(fileID)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, wrapFSError("read file", err)
	}
	return raw, nil
}

func (s *Storage) ReadText(ctx context.Context, fileID string) (string, error) {
	raw, err := s.ReadBytes(ctx, fileID)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrInvalidInput, "read text", fmt.Errorf("%s is not utf-8 text", fileID))
	}
	return string(raw), nil
}

// WriteOrReplace writes through a temp file and renames it over any existing
// file of the same name.
func (s *Storage) WriteOrReplace(_ context.Context, folderID, name string, data []byte, _ string) (string, error) {
	if err := domain.ValidateBlobName(name); err != nil {
		return "", err
	}
	dir, err := s.resolve(folderID)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dir); err != nil {
		return "", wrapFSError("open folder", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}

	escaped := escapeName(name)
	if err := os.Rename(tmpName, filepath.Join(dir, escaped)); err != nil {
		return "", fmt.Errorf("replace file: %w", err)
	}
	return join(folderID, escaped), nil
}

func (s *Storage) Delete(_ context.Context, fileID string) error {
	p, err := s.resolve(fileID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return wrapFSError("delete file", err)
	}
	return nil
}

// CreatedAt is the modification time of the file. Files are only ever written
// through WriteOrReplace, which renames a fresh file into place, so this is the
// time the current content was created; replacing a file resets it.
func (s *Storage) CreatedAt(_ context.Context, fileID string) (time.Time, error) {
	p, err := s.resolve(fileID)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return time.Time{}, wrapFSError("stat file", err)
	}
	return info.ModTime().UTC(), nil
}

func (s *Storage) FileName(_ context.Context, fileID string) (string, error) {
	if _, err := s.resolve(fileID); err != nil {
		return "", err
	}
	return unescapeName(path.Base(fileID))
}

// ShareableLink points at the blob download endpoint of the API.
func (s *Storage) ShareableLink(_ context.Context, fileID string) (string, error) {
	if _, err := s.resolve(fileID); err != nil {
		return "", err
	}
	return s.publicBaseURL + "/v1/blobs?id=" + url.QueryEscape(fileID), nil
}

func (s *Storage) lookup(parentID, name string, wantDir bool) (string, bool, error) {
	if err := domain.ValidateFolderName(name); err != nil {
		return "", false, err
	}
	id := join(parentID, escapeName(name))
	p, err := s.resolve(id)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return id, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("stat %s: %w", id, err)
	}
	if info.IsDir() != wantDir {
		return id, false, nil
	}
	return id, true, nil
}

func (s *Storage) folderCreatedAt(id string) (time.Time, error) {
	dir, err := s.resolve(id)
	if err != nil {
		return time.Time{}, err
	}
	raw, err := os.ReadFile(filepath.Join(dir, createdMarker))
	if err == nil {
		if ts, perr := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(raw))); perr == nil {
			return ts, nil
		}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return time.Time{}, wrapFSError("stat folder", err)
	}
	return info.ModTime().UTC(), nil
}

// resolve maps an id to a path under basePath, rejecting traversal.
func (s *Storage) resolve(id string) (string, error) {
	if id == "" {
		return s.basePath, nil
	}
	for _, segment := range strings.Split(id, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", domain.WrapError(domain.ErrInvalidInput, "resolve blob id", fmt.Errorf("invalid id %q", id))
		}
	}
	return filepath.Join(s.basePath, filepath.FromSlash(id)), nil
}

func join(parentID, escaped string) string {
	if parentID == "" {
		return escaped
	}
	return parentID + "/" + escaped
}

var nameEscaper = strings.NewReplacer("%", "%25", "/", "%2F", "\\", "%5C")

func escapeName(name string) string {
	return nameEscaper.Replace(name)
}

func unescapeName(escaped string) (string, error) {
	name, err := url.PathUnescape(escaped)
	if err != nil {
		return "", fmt.Errorf("unescape %q: %w", escaped, err)
	}
	return name, nil
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

func wrapFSError(op string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return domain.WrapError(domain.ErrNotFound, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

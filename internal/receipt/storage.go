package receipt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Storage keeps the uploaded receipt images next to their drafts so a
// person can look at the receipt while correcting the fields.
type Storage interface {
	// Save stores the image of a draft and returns its storage key
	Save(draftID, filename string, data []byte) (string, error)

	// Get retrieves an image by storage key
	Get(key string) ([]byte, error)

	// Delete removes an image
	Delete(key string) error
}

// LocalStorage implements the Storage interface using local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Save writes the image as <draftID>_<sanitized filename>
func (l *LocalStorage) Save(draftID, filename string, data []byte) (string, error) {
	key := fmt.Sprintf("%s_%s", draftID, sanitizeFilename(filename))
	if err := os.WriteFile(filepath.Join(l.basePath, key), data, 0o644); err != nil {
		return "", fmt.Errorf("writing image: %w", err)
	}
	return key, nil
}

// Get reads an image from local storage
func (l *LocalStorage) Get(key string) ([]byte, error) {
	path, err := l.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return data, nil
}

// Delete removes an image from local storage
func (l *LocalStorage) Delete(key string) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	return nil
}

// path resolves a key inside the base directory. Keys never contain
// separators, anything else is rejected.
func (l *LocalStorage) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(l.basePath, key), nil
}

var (
	reUnsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	reSpaces      = regexp.MustCompile(`\s+`)
	reExtension   = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filepath.ToSlash(filename))
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	if !reExtension.MatchString(ext) {
		ext = ""
	}

	base = reUnsafeChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(reSpaces.ReplaceAllString(base, " "))

	// phone photos tend to have very long names
	const maxLen = 50
	if len(base) > maxLen {
		base = strings.TrimSpace(base[:maxLen])
	}

	if base == "" {
		base = "receipt"
	}

	return base + ext
}

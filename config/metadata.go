package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/magiconair/properties"
)

const (
	metadataHeader = "#Report.ixi"
	uuidKey        = "uuid"
)

// MetadataFile persists the local UUID in a small properties file. It is the
// UUID store used by the receiver.
type MetadataFile struct {
	path string
	mu   sync.Mutex
}

// NewMetadataFile returns a store backed by path. The file is created on the
// first Store.
func NewMetadataFile(path string) *MetadataFile {
	return &MetadataFile{path: path}
}

// Path returns the metadata file location.
func (m *MetadataFile) Path() string {
	return m.path
}

// Load returns the stored UUID, or "" when the file or property is missing.
func (m *MetadataFile) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read metadata: %w", err)
	}
	props, err := loadProperties(raw)
	if err != nil {
		return "", fmt.Errorf("parse metadata: %w", err)
	}
	return strings.TrimSpace(props.GetString(uuidKey, "")), nil
}

// Store overwrites the file with uuid.
func (m *MetadataFile) Store(value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New("config: refusing to store empty uuid")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("create metadata directory: %w", err)
	}

	props := properties.NewProperties()
	props.DisableExpansion = true
	if _, _, err := props.Set(uuidKey, value); err != nil {
		return fmt.Errorf("set metadata uuid: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, metadataHeader)
	fmt.Fprintf(&buf, "#%s\n", time.Now().UTC().Format(time.RFC1123))
	if _, err := props.Write(&buf, properties.ISO_8859_1); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace metadata: %w", err)
	}
	return nil
}

// LoadOrCreate returns the stored UUID. When none is stored a random one is
// generated and returned with stored=false; it is not written until the RCS
// confirms it.
func (m *MetadataFile) LoadOrCreate() (value string, stored bool, err error) {
	value, err = m.Load()
	if err != nil {
		return "", false, err
	}
	if value != "" {
		return value, true, nil
	}
	return uuid.NewString(), false, nil
}

// loadProperties parses Java properties text. ${} references are kept
// literally.
func loadProperties(raw []byte) (*properties.Properties, error) {
	loader := properties.Loader{Encoding: properties.ISO_8859_1, DisableExpansion: true}
	return loader.LoadBytes(raw)
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const connectionFileName = "connection.yaml"

// Connection is the last set of connection parameters entered by the
// operator.
type Connection struct {
	Host     string    `yaml:"host"`
	Password string    `yaml:"password,omitempty"`
	Secure   bool      `yaml:"secure,omitempty"`
	SavedAt  time.Time `yaml:"saved_at"`
}

// ConnectionStore persists a Connection in the state directory.
type ConnectionStore struct {
	dir string
}

// NewConnectionStore stores connection.yaml in dir. Pass an empty string to
// use the default XDG state path.
func NewConnectionStore(dir string) *ConnectionStore {
	if dir == "" {
		dir = defaultStateDir()
	}
	return &ConnectionStore{dir: dir}
}

// Path returns the full path to the connection file.
func (s *ConnectionStore) Path() string {
	return filepath.Join(s.dir, connectionFileName)
}

// Load reads the stored connection. ok is false when nothing was saved yet.
func (s *ConnectionStore) Load() (conn Connection, ok bool, err error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return Connection{}, false, nil
		}
		return Connection{}, false, fmt.Errorf("reading connection: %w", err)
	}
	if err := yaml.Unmarshal(data, &conn); err != nil {
		return Connection{}, false, fmt.Errorf("parsing connection: %w", err)
	}
	return conn, true, nil
}

// Save writes the connection using a temp-file-then-rename so a crash never
// leaves a truncated file. The file is readable by the owner only as it
// holds the password.
func (s *ConnectionStore) Save(conn Connection) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	conn.SavedAt = time.Now().UTC()

	data, err := yaml.Marshal(conn)
	if err != nil {
		return fmt.Errorf("marshaling connection: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".connection-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("renaming connection file: %w", err)
	}
	committed = true
	return nil
}

// Clear forgets the stored connection.
func (s *ConnectionStore) Clear() error {
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing connection: %w", err)
	}
	return nil
}

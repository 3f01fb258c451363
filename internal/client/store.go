package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"github.com/trafficwise/platform/internal/domain"
)

// FileStore keeps the session in a YAML file readable only by its owner.
type FileStore struct {
	path string
}

// NewFileStore stores the session at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) viper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(f.path)
	v.SetConfigType("yaml")
	v.SetConfigPermissions(0o600)
	return v
}

// Load reads the stored session; a missing file is no session.
func (f *FileStore) Load() (*StoredSession, error) {
	v := f.viper()
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if v.GetString("token") == "" {
		return nil, nil
	}
	return &StoredSession{
		Token:     v.GetString("token"),
		ExpiresAt: time.Unix(v.GetInt64("expires_at"), 0),
		Identity: domain.Identity{
			UID:         v.GetString("uid"),
			Email:       v.GetString("email"),
			DisplayName: v.GetString("display_name"),
		},
	}, nil
}

// Save replaces the stored session.
func (f *FileStore) Save(s *StoredSession) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	v := f.viper()
	v.Set("token", s.Token)
	v.Set("expires_at", s.ExpiresAt.Unix())
	v.Set("uid", s.Identity.UID)
	v.Set("email", s.Identity.Email)
	v.Set("display_name", s.Identity.DisplayName)
	if err := v.WriteConfigAs(f.path); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Clear forgets the stored session.
func (f *FileStore) Clear() error {
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

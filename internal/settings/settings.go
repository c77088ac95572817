// Package settings persists watchlog's settings blob: the primary service
// and, per service, the client registration and the current credentials.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/gauthierbraillon/watchlog/internal/auth"
	"github.com/gauthierbraillon/watchlog/internal/history"
)

const FileName = "settings.json"

var (
	ErrDirRequired = errors.New("settings directory not provided")
)

// ServiceSettings is one service's entry. TokenExpiresAt is unix
// milliseconds, 0 when no expiry is recorded.
type ServiceSettings struct {
	ClientID       string `json:"client_id,omitempty"`
	ClientSecret   string `json:"client_secret,omitempty"` // #nosec G117 - client registration stored locally
	AccessToken    string `json:"access_token,omitempty"`  // #nosec G117 - JSON field for OAuth token, not an exposed secret
	RefreshToken   string `json:"refresh_token,omitempty"` // #nosec G117 - JSON field for OAuth token, not an exposed secret
	TokenExpiresAt int64  `json:"token_expires_at,omitempty"`
}

// Credentials converts the stored token fields.
func (s ServiceSettings) Credentials() auth.Credentials {
	c := auth.Credentials{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}
	if s.TokenExpiresAt > 0 {
		c.ExpiresAt = time.UnixMilli(s.TokenExpiresAt).UTC()
	}
	return c
}

// WithCredentials returns a copy carrying c's token fields.
func (s ServiceSettings) WithCredentials(c auth.Credentials) ServiceSettings {
	s.AccessToken = c.AccessToken
	s.RefreshToken = c.RefreshToken
	s.TokenExpiresAt = 0
	if c.HasExpiry() {
		s.TokenExpiresAt = c.ExpiresAt.UnixMilli()
	}
	return s
}

type Settings struct {
	Primary history.Service `json:"primary"`
	Trakt   ServiceSettings `json:"trakt"`
	Simkl   ServiceSettings `json:"simkl"`
}

// Default returns settings for a fresh install.
func Default() Settings {
	return Settings{Primary: history.ServiceTrakt}
}

// Service returns the entry for s.
func (st Settings) Service(s history.Service) ServiceSettings {
	if s == history.ServiceSimkl {
		return st.Simkl
	}
	return st.Trakt
}

// SetService replaces the entry for s.
func (st *Settings) SetService(s history.Service, v ServiceSettings) {
	if s == history.ServiceSimkl {
		st.Simkl = v
		return
	}
	st.Trakt = v
}

// Store manages the settings file.
type Store struct {
	mu       sync.RWMutex
	fs       afero.Fs
	path     string
	settings Settings
}

// NewStore opens the settings file inside dir, creating dir if needed.
// A missing file yields Default().
func NewStore(fs afero.Fs, dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrDirRequired
	}
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}

	s := &Store{
		fs:   fs,
		path: filepath.Join(dir, FileName),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update applies fn to the settings and saves the result.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	fn(&next)
	if err := s.saveLocked(next); err != nil {
		return err
	}
	s.settings = next
	return nil
}

// SetPrimary records which service `history` uses by default.
func (s *Store) SetPrimary(service history.Service) error {
	return s.Update(func(st *Settings) { st.Primary = service })
}

// Persister returns an auth.Persister writing into service's entry.
func (s *Store) Persister(service history.Service) auth.Persister {
	return servicePersister{store: s, service: service}
}

type servicePersister struct {
	store   *Store
	service history.Service
}

func (p servicePersister) PersistCredentials(c auth.Credentials) error {
	return p.store.Update(func(st *Settings) {
		st.SetService(p.service, st.Service(p.service).WithCredentials(c))
	})
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.fs.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.settings = Default()
		return nil
	}
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	if len(data) == 0 {
		s.settings = Default()
		return nil
	}

	settings := Default()
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	if _, err := history.ParseService(string(settings.Primary)); err != nil {
		settings.Primary = history.ServiceTrakt
	}

	s.settings = settings
	return nil
}

func (s *Store) saveLocked(settings Settings) error {
	tmp := s.path + ".tmp"
	file, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create settings temp file: %w", err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(settings); err != nil {
		_ = file.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("sync settings: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("close settings temp file: %w", err)
	}

	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("rename settings file: %w", err)
	}
	return nil
}

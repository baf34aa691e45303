package clientstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
)

// Persister stores the durable part of State across process restarts.
type Persister interface {
	// Load returns the persisted state. ok is false when nothing was stored.
	Load(ctx context.Context) (state State, ok bool, err error)
	Save(ctx context.Context, state State) error
	Clear(ctx context.Context) error
}

// persisted is the on-disk shape; loading, error and hydration flags are
// runtime-only.
type persisted struct {
	User            *domainauth.NormalizedUser `json:"user"`
	AccessToken     string                     `json:"accessToken,omitempty"`
	RefreshToken    string                     `json:"refreshToken,omitempty"`
	IsAuthenticated bool                       `json:"isAuthenticated"`
}

// MemoryPersister keeps state in memory. Useful for tests and short-lived clients.
type MemoryPersister struct {
	mu    sync.Mutex
	state *State
}

// NewMemoryPersister creates an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister { return &MemoryPersister{} }

func (m *MemoryPersister) Load(_ context.Context) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return State{}, false, nil
	}
	return m.state.durable(), true, nil
}

func (m *MemoryPersister) Save(_ context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := state.durable()
	m.state = &d
	return nil
}

func (m *MemoryPersister) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = nil
	return nil
}

// FilePersister stores state as JSON in a single file, readable only by the owner.
type FilePersister struct {
	Path string
}

// NewFilePersister returns a persister writing to path.
func NewFilePersister(path string) *FilePersister { return &FilePersister{Path: path} }

// DefaultStatePath returns the per-user state file location.
func DefaultStatePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "fundwell", "auth-storage.json"), nil
}

func (f *FilePersister) Load(_ context.Context) (State, bool, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("read state file: %w", err)
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return State{}, false, fmt.Errorf("decode state file: %w", err)
	}
	return p.state(), true, nil
}

// Save writes atomically: a temp file in the same directory is renamed over Path.
func (f *FilePersister) Save(_ context.Context, state State) error {
	data, err := json.MarshalIndent(fromState(state), "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".auth-storage-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func (f *FilePersister) Clear(_ context.Context) error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove state file: %w", err)
	}
	return nil
}

func fromState(s State) persisted {
	return persisted{
		User:            s.User,
		AccessToken:     s.AccessToken,
		RefreshToken:    s.RefreshToken,
		IsAuthenticated: s.IsAuthenticated,
	}
}

func (p persisted) state() State {
	s := State{
		AccessToken:     p.AccessToken,
		RefreshToken:    p.RefreshToken,
		IsAuthenticated: p.IsAuthenticated,
	}
	if p.User != nil {
		// Files may be hand-edited; re-normalize on the way in.
		u := domainauth.Normalize(p.User.Raw())
		s.User = &u
	}
	if s.User == nil || s.AccessToken == "" {
		s.IsAuthenticated = false
	}
	return s
}

// Package clientstore is the client-side auth store: it holds the normalized
// user and tokens for a client process, persists them across restarts and
// reconciles them with a server-issued session.
package clientstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
	apperrors "github.com/fundwell/fundwell-web/internal/errors"
	"github.com/fundwell/fundwell-web/internal/service"
	"golang.org/x/sync/singleflight"
)

// DefaultHydrationTimeout bounds how long Hydrate waits on the persister.
const DefaultHydrationTimeout = 3 * time.Second

// ErrSuperseded is returned by an action whose result was discarded because a
// newer auth action was applied first.
var ErrSuperseded = errors.New("clientstore: superseded by a newer auth action")

// Authenticator is the subset of the auth service the store needs.
type Authenticator interface {
	Exchange(ctx context.Context, creds domainauth.Credentials) (*service.ExchangeResult, error)
	Me(ctx context.Context, accessToken string) (domainauth.NormalizedUser, error)
	Revoke(ctx context.Context, accessToken string) error
}

// State is a snapshot of the store.
type State struct {
	User            *domainauth.NormalizedUser
	AccessToken     string
	RefreshToken    string
	IsAuthenticated bool
	IsLoading       bool
	// Error is a display message; ErrorKind lets callers branch (e.g. to a
	// verification flow on FailureUnverified).
	Error     string
	ErrorKind domainauth.FailureKind
}

// durable returns the persisted subset of s.
func (s State) durable() State { return fromState(s).state() }

// Options groups dependencies for Store.
type Options struct {
	Auth             Authenticator
	Persister        Persister // Optional, defaults to an in-memory persister
	HydrationTimeout time.Duration
	Logger           *slog.Logger
}

// Store is safe for concurrent use.
//
// Every mutating action takes a generation number when it starts. A result is
// applied only if no action with a newer generation has been applied yet, so a
// slow response can never overwrite the outcome of a later action.
type Store struct {
	auth      Authenticator
	persister Persister
	timeout   time.Duration
	logger    *slog.Logger

	mu      sync.RWMutex
	state   State
	nextGen uint64
	applied uint64
	pending int

	hydrateOnce sync.Once
	hydrated    chan struct{}
	persistMu   sync.Mutex
	refreshes   singleflight.Group
}

// New constructs a Store. Call Hydrate before reading authentication state.
func New(opts Options) *Store {
	persister := opts.Persister
	if persister == nil {
		persister = NewMemoryPersister()
	}
	timeout := opts.HydrationTimeout
	if timeout <= 0 {
		timeout = DefaultHydrationTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		auth:      opts.Auth,
		persister: persister,
		timeout:   timeout,
		logger:    logger.With("component", "client_store"),
		hydrated:  make(chan struct{}),
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() State {
	st := s.state
	if st.User != nil {
		u := *st.User
		st.User = &u
	}
	return st
}

// Hydrate loads persisted state in the background. It is safe to call more
// than once; only the first call loads. Loading is bounded by the hydration
// timeout, after which the store is treated as hydrated and empty.
func (s *Store) Hydrate(ctx context.Context) {
	s.hydrateOnce.Do(func() {
		gen := s.begin()
		go s.hydrate(ctx, gen)
	})
}

func (s *Store) hydrate(ctx context.Context, gen uint64) {
	defer close(s.hydrated)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		state State
		ok    bool
		err   error
	}
	done := make(chan result, 1)
	go func() {
		st, ok, err := s.persister.Load(ctx)
		done <- result{st, ok, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err != nil {
		s.logger.WarnContext(ctx, "hydration failed, starting empty", "error", res.err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked()
	// A restored copy never replaces state that is already authenticated.
	if res.ok && res.err == nil && !s.state.IsAuthenticated && gen > s.applied {
		s.applied = gen
		loaded := res.state.durable()
		loaded.IsLoading = s.state.IsLoading
		s.state = loaded
	}
}

// Hydrated reports whether hydration has completed.
func (s *Store) Hydrated() bool {
	select {
	case <-s.hydrated:
		return true
	default:
		return false
	}
}

// WaitHydrated blocks until hydration completes or ctx is done. Hydrate must
// have been called.
func (s *Store) WaitHydrated(ctx context.Context) error {
	select {
	case <-s.hydrated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Authenticated waits for hydration and then reports whether a user is signed in.
func (s *Store) Authenticated(ctx context.Context) (bool, error) {
	if err := s.WaitHydrated(ctx); err != nil {
		return false, err
	}
	return s.Snapshot().IsAuthenticated, nil
}

// Login exchanges creds and stores the resulting session. On failure the
// error is recorded with its kind and returned; an existing session is kept.
func (s *Store) Login(ctx context.Context, creds domainauth.Credentials) error {
	gen := s.begin()

	res, err := s.auth.Exchange(ctx, creds)
	if err != nil {
		s.complete(ctx, gen, func(st *State) {
			st.Error = apperrors.FromFailure(err).Message
			st.ErrorKind = domainauth.KindOf(err)
		})
		return err
	}

	user := res.User
	applied := s.complete(ctx, gen, func(st *State) {
		*st = State{
			User:            &user,
			AccessToken:     res.Tokens.AccessToken,
			RefreshToken:    res.Tokens.RefreshToken,
			IsAuthenticated: true,
		}
	})
	if !applied {
		return ErrSuperseded
	}
	return nil
}

// RefreshUser re-fetches the user with the stored access token. A rejected
// token clears the session. Concurrent calls share one backend request, which
// runs under the first caller's ctx.
func (s *Store) RefreshUser(ctx context.Context) error {
	_, err, _ := s.refreshes.Do("refresh-user", func() (any, error) {
		return nil, s.refreshUser(ctx)
	})
	return err
}

func (s *Store) refreshUser(ctx context.Context) error {
	token := s.Snapshot().AccessToken
	if token == "" {
		return nil
	}
	gen := s.begin()

	user, err := s.auth.Me(ctx, token)
	switch {
	case err == nil:
		s.complete(ctx, gen, func(st *State) {
			if st.AccessToken != token {
				return
			}
			st.User = &user
			st.IsAuthenticated = true
			st.Error, st.ErrorKind = "", ""
		})
		return nil
	case domainauth.KindOf(err) == domainauth.FailureInvalid:
		s.complete(ctx, gen, func(st *State) {
			if st.AccessToken != token {
				return
			}
			*st = State{}
		})
		return err
	default:
		s.complete(ctx, gen, func(st *State) {
			st.Error = apperrors.FromFailure(err).Message
			st.ErrorKind = domainauth.KindOf(err)
		})
		return err
	}
}

// SyncWithSession reconciles a server-issued session into the store without a
// network call. It only writes when the store has no user or is not
// authenticated, and reports whether it wrote.
func (s *Store) SyncWithSession(ctx context.Context, session domainauth.Session) bool {
	if session.User.ID == "" {
		return false
	}
	user := domainauth.Normalize(session.User.Raw())

	s.mu.Lock()
	if s.state.User != nil && s.state.IsAuthenticated {
		s.mu.Unlock()
		return false
	}
	s.state.User = &user
	s.state.IsAuthenticated = true
	if session.AccessToken != "" {
		s.state.AccessToken = session.AccessToken
		s.state.RefreshToken = session.RefreshToken
	}
	s.state.Error, s.state.ErrorKind = "", ""
	s.mu.Unlock()

	s.persist(ctx)
	return true
}

// ClearAuth drops local state and the persisted copy. No network call is made.
// Clearing always applies and supersedes every action still in flight.
func (s *Store) ClearAuth(ctx context.Context) error {
	s.mu.Lock()
	s.nextGen++
	s.applied = s.nextGen
	s.state = State{IsLoading: s.pending > 0}
	s.mu.Unlock()

	return s.persistErr(ctx)
}

// Logout clears local state and then revokes the server-side session. The
// revoke is best effort: its failure is logged and does not fail Logout.
func (s *Store) Logout(ctx context.Context) error {
	token := s.Snapshot().AccessToken
	if err := s.ClearAuth(ctx); err != nil {
		return err
	}
	if token == "" || s.auth == nil {
		return nil
	}
	if err := s.auth.Revoke(ctx, token); err != nil {
		s.logger.WarnContext(ctx, "server-side revoke failed", "error", err)
	}
	return nil
}

// begin allocates a generation for a new action and marks the store loading.
func (s *Store) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextGen++
	s.pending++
	s.state.IsLoading = true
	return s.nextGen
}

func (s *Store) finishLocked() {
	if s.pending > 0 {
		s.pending--
	}
	s.state.IsLoading = s.pending > 0
}

// complete applies fn if gen is newer than the last applied generation and
// persists the result. It reports whether fn was applied.
func (s *Store) complete(ctx context.Context, gen uint64, fn func(*State)) bool {
	s.mu.Lock()
	s.finishLocked()
	if gen <= s.applied {
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "discarding stale auth result", "generation", gen)
		return false
	}
	s.applied = gen
	loading := s.state.IsLoading
	fn(&s.state)
	s.state.IsLoading = loading
	s.mu.Unlock()

	s.persist(ctx)
	return true
}

func (s *Store) persist(ctx context.Context) {
	if err := s.persistErr(ctx); err != nil {
		s.logger.WarnContext(ctx, "persist auth state failed", "error", err)
	}
}

// persistErr writes the latest state. Holding persistMu while re-reading the
// state keeps the last write the newest one.
func (s *Store) persistErr(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	snap := s.Snapshot()
	if !snap.IsAuthenticated {
		return s.persister.Clear(ctx)
	}
	return s.persister.Save(ctx, snap)
}

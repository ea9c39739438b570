// Package session issues and tracks user sessions. The service owns the
// current principal, broadcasts sign-in/out transitions to subscribers,
// and authenticates against the user table of the persistence adapter.
package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Joram-tec/expense-pro/internal/core"
	applog "github.com/Joram-tec/expense-pro/internal/log"
	"github.com/Joram-tec/expense-pro/internal/storage"
)

// State models the session lifecycle: Unknown until the first adapter
// probe completes, then Authenticated or Anonymous.
type State int

const (
	Unknown State = iota
	Anonymous
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Listener receives the state and the principal (nil unless authenticated)
// on every transition.
type Listener func(State, *core.Principal)

const minPasswordLen = 8

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

type Service struct {
	users storage.UserStore
	// cache persists the signed-in principal between restarts; only the
	// local adapter provides one.
	cache      storage.PrincipalCache
	bcryptCost int
	logger     *applog.Logger

	mu        sync.Mutex
	state     State
	principal *core.Principal
	subs      map[int]Listener
	nextSub   int
}

func NewService(users storage.UserStore, bcryptCost int, logger *applog.Logger) *Service {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	s := &Service{
		users:      users,
		bcryptCost: bcryptCost,
		logger:     logger.WithComponent("session"),
		state:      Unknown,
		subs:       make(map[int]Listener),
	}
	if pc, ok := users.(storage.PrincipalCache); ok {
		s.cache = pc
	}
	return s
}

// Init performs the first adapter probe, resuming a persisted session if
// the adapter kept one. The service stays Unknown until this completes.
func (s *Service) Init(ctx context.Context) error {
	var p *core.Principal
	if s.cache != nil {
		var err error
		p, err = s.cache.LoadCurrentPrincipal(ctx)
		if err != nil {
			return fmt.Errorf("probe persisted session: %w", err)
		}
	}

	if p != nil {
		s.logger.InfoContext(ctx, "Resumed persisted session", applog.FieldUserID, p.UserID)
		s.transition(Authenticated, p)
	} else {
		s.transition(Anonymous, nil)
	}
	return nil
}

// SignUp registers a new user and signs them in.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (core.Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailRe.MatchString(email) {
		return core.Principal{}, core.ErrAuthFailed
	}
	if len(password) < minPasswordLen {
		return core.Principal{}, core.ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return core.Principal{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.CreateUser(ctx, core.User{
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return core.Principal{}, core.ErrEmailInUse
		}
		return core.Principal{}, fmt.Errorf("create user: %w", err)
	}

	p := core.Principal{UserID: u.ID, Email: u.Email, DisplayName: u.DisplayName}
	s.persist(ctx, &p)
	s.logger.InfoContext(ctx, "User registered", applog.FieldUserID, u.ID)
	s.transition(Authenticated, &p)
	return p, nil
}

// SignIn validates credentials and binds the principal to the session.
func (s *Service) SignIn(ctx context.Context, email, password string) (core.Principal, error) {
	u, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return core.Principal{}, core.ErrAuthFailed
		}
		return core.Principal{}, fmt.Errorf("lookup user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return core.Principal{}, core.ErrAuthFailed
	}

	p := core.Principal{UserID: u.ID, Email: u.Email, DisplayName: u.DisplayName}
	s.persist(ctx, &p)
	s.logger.InfoContext(ctx, "User signed in", applog.FieldUserID, u.ID)
	s.transition(Authenticated, &p)
	return p, nil
}

// SignOut always succeeds: it clears the cached principal and broadcasts
// the Anonymous state.
func (s *Service) SignOut(ctx context.Context) {
	s.persist(ctx, nil)
	s.logger.InfoContext(ctx, "User signed out")
	s.transition(Anonymous, nil)
}

// Current returns the session state and the principal, nil unless
// authenticated.
func (s *Service) Current() (State, *core.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, clonePrincipal(s.principal)
}

// Subscribe registers a listener for session transitions. The returned
// handle unsubscribes; calling it more than once is harmless.
func (s *Service) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Service) persist(ctx context.Context, p *core.Principal) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SaveCurrentPrincipal(ctx, p); err != nil {
		// Losing session persistence degrades restart behavior only.
		s.logger.WarnContext(ctx, "Failed to persist session", applog.FieldError, err)
	}
}

func (s *Service) transition(state State, p *core.Principal) {
	s.mu.Lock()
	s.state = state
	s.principal = clonePrincipal(p)
	listeners := make([]Listener, 0, len(s.subs))
	for _, l := range s.subs {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(state, clonePrincipal(p))
	}
}

func clonePrincipal(p *core.Principal) *core.Principal {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

package session

import (
	"context"
	"errors"
	"testing"

	"github.com/Joram-tec/expense-pro/internal/core"
	"github.com/Joram-tec/expense-pro/internal/storage/local"
	"golang.org/x/crypto/bcrypt"
)

func newService(t *testing.T) (*Service, *local.Store) {
	t.Helper()
	store, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	return NewService(store, bcrypt.MinCost, nil), store
}

func TestInitWithoutPersistedSession(t *testing.T) {
	svc, _ := newService(t)

	state, p := svc.Current()
	if state != Unknown {
		t.Fatalf("state before Init = %s, want unknown", state)
	}

	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	state, p = svc.Current()
	if state != Anonymous || p != nil {
		t.Fatalf("after Init: state=%s principal=%+v", state, p)
	}
}

func TestSignUpThenSignIn(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.SignUp(ctx, "Ada@Example.com", "correct-horse", "Ada")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if p.Email != "ada@example.com" || p.UserID == "" {
		t.Fatalf("principal = %+v", p)
	}

	state, current := svc.Current()
	if state != Authenticated || current == nil || current.UserID != p.UserID {
		t.Fatalf("after SignUp: state=%s principal=%+v", state, current)
	}

	svc.SignOut(ctx)
	state, current = svc.Current()
	if state != Anonymous || current != nil {
		t.Fatalf("after SignOut: state=%s principal=%+v", state, current)
	}

	if _, err := svc.SignIn(ctx, "ada@example.com", "wrong-password"); !errors.Is(err, core.ErrAuthFailed) {
		t.Fatalf("wrong password: got %v, want ErrAuthFailed", err)
	}
	if _, err := svc.SignIn(ctx, "nobody@example.com", "correct-horse"); !errors.Is(err, core.ErrAuthFailed) {
		t.Fatalf("unknown user: got %v, want ErrAuthFailed", err)
	}

	back, err := svc.SignIn(ctx, "ada@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if back.UserID != p.UserID {
		t.Fatalf("signed in as %s, registered as %s", back.UserID, p.UserID)
	}
}

func TestSignUpValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, "not-an-email", "correct-horse", ""); !errors.Is(err, core.ErrAuthFailed) {
		t.Fatalf("bad email: got %v, want ErrAuthFailed", err)
	}
	if _, err := svc.SignUp(ctx, "ada@example.com", "short", ""); !errors.Is(err, core.ErrWeakPassword) {
		t.Fatalf("short password: got %v, want ErrWeakPassword", err)
	}

	if _, err := svc.SignUp(ctx, "ada@example.com", "correct-horse", ""); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if _, err := svc.SignUp(ctx, "ADA@example.com", "correct-horse", ""); !errors.Is(err, core.ErrEmailInUse) {
		t.Fatalf("duplicate email: got %v, want ErrEmailInUse", err)
	}
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	var states []State
	unsubscribe := svc.Subscribe(func(state State, _ *core.Principal) {
		states = append(states, state)
	})

	if err := svc.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := svc.SignUp(ctx, "ada@example.com", "correct-horse", ""); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	svc.SignOut(ctx)

	want := []State{Anonymous, Authenticated, Anonymous}
	if len(states) != len(want) {
		t.Fatalf("got %d transitions, want %d: %v", len(states), len(want), states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("transition %d = %s, want %s", i, states[i], want[i])
		}
	}

	// Unsubscribing twice is harmless and stops delivery.
	unsubscribe()
	unsubscribe()
	svc.SignOut(ctx)
	if len(states) != len(want) {
		t.Fatalf("listener fired after unsubscribe: %v", states)
	}
}

func TestSessionResumesAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(dir)
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	svc := NewService(store, bcrypt.MinCost, nil)
	ctx := context.Background()

	p, err := svc.SignUp(ctx, "ada@example.com", "correct-horse", "Ada")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	// A new service over the same adapter resumes the session.
	reopened, err := local.New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	svc2 := NewService(reopened, bcrypt.MinCost, nil)
	if err := svc2.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	state, current := svc2.Current()
	if state != Authenticated || current == nil || current.UserID != p.UserID {
		t.Fatalf("resumed session: state=%s principal=%+v", state, current)
	}
}

package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Joram-tec/expense-pro/internal/ledger"
	"github.com/Joram-tec/expense-pro/internal/middleware/ratelimit"
	"github.com/Joram-tec/expense-pro/internal/middleware/security"
	"github.com/Joram-tec/expense-pro/internal/middleware/trace"
	"github.com/Joram-tec/expense-pro/internal/session"
)

// Server exposes the ledger over a JSON API.
type Server struct {
	http.Server

	sessions *session.Service
	tokens   *session.Tokens
	ledger   *ledger.Store

	limiter      *ratelimit.Limiter
	shutdownOnce sync.Once
}

// Options carries the tunables NewServer does not take from its
// collaborators.
type Options struct {
	Addr              string
	RequestsPerMinute int
}

// NewServer configures routes and the middleware chain, returning a
// ready-to-run http.Server.
func NewServer(opts Options, sessions *session.Service, tokens *session.Tokens, store *ledger.Store) *Server {
	mux := http.NewServeMux()

	s := &Server{
		sessions: sessions,
		tokens:   tokens,
		ledger:   store,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RequestsPerMinute,
		}),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/signup", s.handleSignUp)
	mux.HandleFunc("POST /api/auth/signin", s.handleSignIn)
	mux.HandleFunc("POST /api/auth/signout", s.requireAuth(s.handleSignOut))
	mux.HandleFunc("GET /api/auth/me", s.requireAuth(s.handleMe))

	mux.HandleFunc("GET /api/snapshot", s.requireAuth(s.handleSnapshot))
	mux.HandleFunc("POST /api/snapshot/retry", s.requireAuth(s.handleRetry))

	mux.HandleFunc("GET /api/wallets", s.requireAuth(s.handleListWallets))
	mux.HandleFunc("POST /api/wallets", s.requireAuth(s.handleCreateWallet))
	mux.HandleFunc("DELETE /api/wallets/{id}", s.requireAuth(s.handleDeleteWallet))

	mux.HandleFunc("GET /api/transactions", s.requireAuth(s.handleListTransactions))
	mux.HandleFunc("POST /api/transactions", s.requireAuth(s.handleCreateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.requireAuth(s.handleDeleteTransaction))

	mux.HandleFunc("GET /api/budgets", s.requireAuth(s.handleBudgetReport))
	mux.HandleFunc("PUT /api/budgets/{category}", s.requireAuth(s.handleUpsertBudget))
	mux.HandleFunc("DELETE /api/budgets/{category}", s.requireAuth(s.handleDeleteBudget))

	mux.HandleFunc("GET /api/analysis/summary", s.requireAuth(s.handleSummary))

	mux.HandleFunc("GET /api/export/csv", s.requireAuth(s.handleExportCSV))
	mux.HandleFunc("GET /api/export/json", s.requireAuth(s.handleExportJSON))
	mux.HandleFunc("GET /api/export/xlsx", s.requireAuth(s.handleExportXLSX))

	mux.HandleFunc("POST /api/reset", s.requireAuth(s.handleReset))

	tracer := trace.NewMiddleware(extractClientIP)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := s.limiter.Middleware(extractClientIP)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           tracer.Middleware(headers.Middleware(limited(mux))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Shutdown stops the server and its background cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// extractClientIP resolves the caller address, preferring proxy headers.
func extractClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if idx := strings.IndexByte(ip, ','); idx >= 0 {
			ip = ip[:idx]
		}
		return strings.TrimSpace(ip)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	snap := s.ledger.Snapshot()
	if snap.LoadFailed {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("degraded"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

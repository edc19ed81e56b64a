package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MGallo-Code/famfit/internal/auth"
	"github.com/MGallo-Code/famfit/internal/config"
	"github.com/MGallo-Code/famfit/internal/oauth"
	"github.com/MGallo-Code/famfit/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Embeds the migration files and landing page INTO the go bin

//go:embed migrations/*.sql
var migrationsDir embed.FS

//go:embed web/index.html
var webDir embed.FS

func main() {
	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Include source location in log entries at debug level only.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: cfg.LogLevel == slog.LevelDebug,
	})))

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run() is a separate func so deferred closes always execute before os.Exit.
	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	endpoints, err := resolveEndpoints(ctx, cfg)
	if err != nil {
		return err
	}

	client, err := oauth.NewClient(oauth.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret.Value(),
		AuthMode:     oauth.AuthMode(cfg.ClientAuth),
		RedirectURL:  cfg.RedirectURL,
		Endpoints:    endpoints,
		Scopes:       cfg.Scopes,
		Timeout:      cfg.UpstreamTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to configure oauth client: %w", err)
	}

	pending, closePending, err := openPendingStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePending()

	tokens, closeTokens, err := openTokenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTokens()

	if cfg.SessionSecretGenerated {
		slog.Warn("SESSION_SECRET not set, using a random one; logins in flight will not survive a restart")
	}
	cookies, err := auth.NewLoginCookies([]byte(cfg.SessionSecret.Value()), cfg.CookieSecure, cfg.LoginTTL)
	if err != nil {
		return fmt.Errorf("failed to set up login cookies: %w", err)
	}

	h := auth.AuthHandler{
		Flow: &oauth.Flow{
			Client:      client,
			ResourceURL: cfg.ResourceURL,
			StaticState: cfg.StateSecret.Value(),
			Tokens:      tokens,
		},
		Pending:  pending,
		Cookies:  cookies,
		LoginTTL: cfg.LoginTTL,
	}

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{Handler: buildRouter(&h)}

	// The memory store only drops expired logins on read; sweep the rest every minute.
	// Cancelled via sweepCtx when run() returns.
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	if ms, ok := pending.(*store.MemoryStore); ok {
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if n := ms.Sweep(); n > 0 {
						slog.Debug("expired pending logins swept", "removed", n)
					}
				case <-sweepCtx.Done():
					return
				}
			}
		}()
	}

	// Start server in a goroutine; run() continues past this.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("famfit listening", "addr", ln.Addr().String(), "redirect_url", cfg.RedirectURL,
			"client_auth", cfg.ClientAuth, "token_store", cfg.TokenStore)
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	// Wait for server error or shutdown signal from ctx.
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// Stops accepting, waits for in-flight requests, gives up after 30s.
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// resolveEndpoints returns the configured endpoints, or discovers them from the issuer
// when neither is set explicitly.
func resolveEndpoints(ctx context.Context, cfg *config.Config) (oauth.Endpoints, error) {
	ep := oauth.Endpoints{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL}
	if cfg.Issuer == "" || (ep.AuthURL != "" && ep.TokenURL != "") {
		return ep, nil
	}

	discoverCtx, cancel := context.WithTimeout(ctx, cfg.UpstreamTimeout)
	defer cancel()
	found, err := oauth.Discover(discoverCtx, cfg.Issuer)
	if err != nil {
		return oauth.Endpoints{}, fmt.Errorf("failed to discover provider endpoints: %w", err)
	}
	// Explicit values win over discovered ones.
	if ep.AuthURL == "" {
		ep.AuthURL = found.AuthURL
	}
	if ep.TokenURL == "" {
		ep.TokenURL = found.TokenURL
	}
	slog.Info("provider endpoints discovered", "issuer", cfg.Issuer, "auth_url", ep.AuthURL, "token_url", ep.TokenURL)
	return ep, nil
}

// openPendingStore returns Redis when REDIS_URL is set, the in-memory store otherwise.
func openPendingStore(ctx context.Context, cfg *config.Config) (auth.PendingStore, func(), error) {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, keeping pending logins in memory")
		return store.NewMemoryStore(), func() {}, nil
	}
	rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up redis client: %w", err)
	}
	return store.NewRedisStore(rdb), func() { rdb.Close() }, nil
}

// openTokenStore opens the TOKEN_STORE backend. Returns a nil store for "none".
func openTokenStore(ctx context.Context, cfg *config.Config) (oauth.TokenStore, func(), error) {
	switch cfg.TokenStore {
	case config.TokenStoreFile:
		fileStore, err := store.NewFileStore(cfg.TokenDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to set up file token store: %w", err)
		}
		return fileStore, func() {}, nil

	case config.TokenStorePostgres:
		ps, err := store.NewPostgresStore(ctx, cfg.DatabaseURL.Value())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to set up postgres store: %w", err)
		}
		migrationsFS, err := fs.Sub(migrationsDir, "migrations")
		if err != nil {
			ps.Close()
			return nil, nil, fmt.Errorf("failed to access embedded migrations: %w", err)
		}
		if err := ps.Migrate(ctx, migrationsFS); err != nil {
			ps.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return ps, ps.Close, nil

	case config.TokenStoreSQLite:
		ss, err := store.NewSQLiteStore(cfg.DatabaseURL.Value())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to set up sqlite store: %w", err)
		}
		return ss, func() { ss.Close() }, nil

	default:
		slog.Info("token persistence disabled")
		return nil, func() {}, nil
	}
}

// buildRouter wires all routes and middleware.
// Called from run() and from smoke tests.
func buildRouter(h *auth.AuthHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(auth.AccessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, webDir, "web/index.html")
	})
	r.Get("/health", h.CheckHealth)
	r.Get("/login", h.Login)
	r.Get("/callback", h.Callback)
	r.Get("/tokens/{identity}/resource", h.ResourceForIdentity)

	return r
}

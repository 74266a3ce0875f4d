// Package app wires config, persistence, the lobby/session engines, the
// connection handler, and the cleanup worker into one runnable HTTP
// server, adapted from the teacher's ServePage in the same shape: an
// httprouter mux, a background listener goroutine, and context-driven
// shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"spellcast/internal/cleanup"
	"spellcast/internal/config"
	"spellcast/internal/dictionary"
	"spellcast/internal/identity"
	"spellcast/internal/lobby"
	"spellcast/internal/session"
	"spellcast/internal/store/sqlstore"
	"spellcast/internal/wsconn"
)

const (
	logDate         = `2006-01-02T15:04:05.000-07:00`
	requestTimeout  = 10 * time.Second
	idleConnTimeout = 10 * time.Minute
)

func logf(cfg *config.Config, format string, args ...any) {
	if !cfg.Verbose {
		return
	}
	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func securityHeaders(cfg *config.Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")
	if cfg.Scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

// parseDevTokens turns "token=user_id:username" flag entries into the map
// identity.NewStaticResolver expects. Malformed entries are skipped with a
// logged warning rather than failing startup.
func parseDevTokens(cfg *config.Config) map[string]identity.User {
	users := make(map[string]identity.User, len(cfg.DevTokens))
	for _, entry := range cfg.DevTokens {
		token, rest, ok := strings.Cut(entry, "=")
		if !ok {
			log.Printf("config: ignoring malformed --dev-token entry %q", entry)
			continue
		}
		idPart, username, ok := strings.Cut(rest, ":")
		if !ok {
			log.Printf("config: ignoring malformed --dev-token entry %q", entry)
			continue
		}
		userID, err := strconv.ParseInt(idPart, 10, 64)
		if err != nil {
			log.Printf("config: ignoring --dev-token entry with non-numeric user id %q", entry)
			continue
		}
		users[token] = identity.User{UserID: userID, Username: username}
	}
	return users
}

func serveHealthCheck(cfg *config.Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.Write([]byte("Ok\n"))
	}
}

func serveVersion(cfg *config.Config, version string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		fmt.Fprintf(w, "spellcast v%s\n", version)
	}
}

// qrSize is a mobile-friendly PNG edge length for invite codes.
const qrSize = 320

// serveLobbyQR renders a PNG QR code encoding the join link for a custom
// lobby code, so a host can share it by showing a screen (teacher's
// qrHandler, adapted from a per-game invite link to a lobby-code one).
func serveLobbyQR(cfg *config.Config, lobbies *lobby.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")
		if _, ok := lobbies.FindLobbyByCode(code); !ok {
			http.Error(w, "unknown lobby code", http.StatusNotFound)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		joinURL := fmt.Sprintf("%s://%s%s/join?code=%s", scheme, r.Host, cfg.Prefix, code)

		png, err := qrcode.Encode(joinURL, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		w.Write(png)
	}
}

func registerProfileHandlers(cfg *config.Config, mux *httprouter.Router) {
	mux.Handler("GET", cfg.Prefix+"/pprof/allocs", pprof.Handler("allocs"))
	mux.Handler("GET", cfg.Prefix+"/pprof/block", pprof.Handler("block"))
	mux.Handler("GET", cfg.Prefix+"/pprof/goroutine", pprof.Handler("goroutine"))
	mux.Handler("GET", cfg.Prefix+"/pprof/heap", pprof.Handler("heap"))
	mux.Handler("GET", cfg.Prefix+"/pprof/mutex", pprof.Handler("mutex"))
	mux.Handler("GET", cfg.Prefix+"/pprof/threadcreate", pprof.Handler("threadcreate"))
	mux.HandlerFunc("GET", cfg.Prefix+"/pprof/cmdline", pprof.Cmdline)
	mux.HandlerFunc("GET", cfg.Prefix+"/pprof/profile", pprof.Profile)
	mux.HandlerFunc("GET", cfg.Prefix+"/pprof/symbol", pprof.Symbol)
	mux.HandlerFunc("GET", cfg.Prefix+"/pprof/trace", pprof.Trace)
}

// Serve builds every dependency from cfg and blocks, serving until ctx is
// canceled.
func Serve(ctx context.Context, cfg *config.Config, version string) error {
	logf(cfg, "START: spellcast v%s", version)

	dict, err := dictionary.Load(cfg.DictionaryPath)
	if err != nil {
		return fmt.Errorf("app: loading dictionary: %w", err)
	}
	logf(cfg, "dictionary loaded with %d words", dict.Len())

	db, err := sqlstore.New(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("app: opening persistence: %w", err)
	}
	defer db.Close()

	lobbies := lobby.NewManager(cfg.Verbose)
	sessions := session.NewEngine(lobbies, db, dict, cfg.Verbose)
	resolver := identity.NewStaticResolver(parseDevTokens(cfg))
	conn := wsconn.NewHandler(resolver, lobbies, sessions, cfg.Verbose)

	sweeper := cleanup.NewWorker(lobbies, cfg.SweepInterval, cfg.PlayerGrace, cfg.LobbyGrace, cfg.Verbose)
	go sweeper.Run(ctx)

	mux := httprouter.New()
	cfg.Prefix = strings.TrimSuffix(cfg.Prefix, "/")

	mux.GET(cfg.Prefix+"/healthz", serveHealthCheck(cfg))
	mux.GET(cfg.Prefix+"/version", serveVersion(cfg, version))
	mux.GET(cfg.Prefix+"/lobby/:code/qr", serveLobbyQR(cfg, lobbies))
	mux.Handler("GET", cfg.Prefix+"/ws", conn)

	if cfg.Profile {
		registerProfileHandlers(cfg, mux)
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Bind, strconv.Itoa(cfg.Port)),
		Handler:           mux,
		IdleTimeout:       idleConnTimeout,
		ReadTimeout:       requestTimeout,
		ReadHeaderTimeout: requestTimeout,
		WriteTimeout:      requestTimeout,
	}

	errs := make(chan error, 1)
	go func() {
		logf(cfg, "SERVE: listening on %s://%s%s/", cfg.Scheme(), srv.Addr, cfg.Prefix)
		var err error
		if cfg.TLSCert != "" && cfg.TLSKey != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

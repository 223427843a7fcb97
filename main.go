package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/atelier/internal/api"
	"github.com/debemdeboas/atelier/internal/auth"
	"github.com/debemdeboas/atelier/internal/config"
	"github.com/debemdeboas/atelier/internal/db"
	"github.com/debemdeboas/atelier/internal/editor"
	"github.com/debemdeboas/atelier/internal/logger"
	"github.com/debemdeboas/atelier/internal/media"
	"github.com/debemdeboas/atelier/internal/model"
	"github.com/debemdeboas/atelier/internal/render"
	"github.com/debemdeboas/atelier/internal/repository"
	"github.com/debemdeboas/atelier/internal/routes"
	"github.com/debemdeboas/atelier/internal/sse"
	"github.com/debemdeboas/atelier/internal/storage"
)

const sessionCheckInterval = time.Minute

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file loaded")
	}

	boot := logger.New("info", "console")
	config.SetLogger(boot)
	if err := config.LoadConfig(*configPath); err != nil {
		boot.Fatal().Err(err).Str("path", *configPath).Msg("Error loading configuration")
	}
	cfg := config.AppConfig

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	setLoggers(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Error starting application")
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down server")
		}
	}()

	log.Info().Str("addr", srv.Addr).Str("site", cfg.Site.Name).Msg("Starting server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func setLoggers(l zerolog.Logger) {
	config.SetLogger(l.With().Str("component", "config").Logger())
	db.SetLogger(l.With().Str("component", "db").Logger())
	repository.SetLogger(l.With().Str("component", "repository").Logger())
	storage.SetLogger(l.With().Str("component", "storage").Logger())
	editor.SetLogger(l.With().Str("component", "editor").Logger())
	media.SetLogger(l.With().Str("component", "media").Logger())
	render.SetLogger(l.With().Str("component", "render").Logger())
	auth.SetLogger(l.With().Str("component", "auth").Logger())
	sse.SetLogger(l.With().Str("component", "sse").Logger())
	api.SetLogger(l.With().Str("component", "api").Logger())
}

type app struct {
	handler   http.Handler
	server    *api.Server
	sessions  *auth.Sessions
	workspace *editor.Workspace

	log     zerolog.Logger
	closers []func() error
}

// Close releases everything newApp acquired, in reverse order. Failures are
// logged and do not stop the remaining closers.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Error().Err(err).Msg("Error during shutdown")
		}
	}
	a.closers = nil
}

// newApp opens every store and builds the HTTP handler. Background
// watchers stop when ctx is done.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{log: log}
	render.SetRenderer(cfg.Content.Renderer)

	sqlite := db.NewSQLite(cfg.Database.Path)
	if err := sqlite.InitDB(); err != nil {
		return nil, fmt.Errorf(config.ErrInitializeDatabaseFmt, err)
	}
	a.closers = append(a.closers, sqlite.Close)

	posts := repository.NewDBPostRepository(sqlite)
	if err := posts.Init(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("%s: %w", config.ErrInitializingPosts, err)
	}
	if cfg.Database.ReloadInterval > 0 {
		go posts.Watch(ctx, time.Duration(cfg.Database.ReloadInterval)*time.Second)
	}

	store, fsStore, err := newObjectStore(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, err
	}

	snapshots, err := editor.OpenBoltRepository(cfg.Editor.SnapshotPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, snapshots.Close)

	admin := model.UserID(cfg.Features.Authentication.AdminUserID)
	sessions := auth.NewSessions(auth.SessionTTL, time.Now)
	go sessions.Watch(ctx, sessionCheckInterval)

	provider, ed, err := newAuthProvider(cfg.Features.Authentication, sqlite, sessions)
	if err != nil {
		a.Close()
		return nil, err
	}

	clients := sse.NewSSEClients()
	ws := editor.NewWorkspace(posts, snapshots, editor.WorkspaceConfig{
		AutosaveDelay: cfg.Editor.AutosaveDelay(),
		FlushOnClose:  cfg.Editor.FlushOnClose,
		TagPolicy:     cfg.Editor.TagPolicy,
	}, func(e editor.Event) {
		if a.server != nil {
			a.server.NotifyEditor(e)
		}
	})

	unsubscribe := sessions.OnChange(func(s *auth.Session) {
		ws.Mode().SetAdministrator(s != nil && s.UserID == admin)
	})
	a.closers = append(a.closers, func() error {
		unsubscribe()
		return nil
	})
	a.sessions = sessions
	a.workspace = ws

	a.server = api.New(api.Deps{
		Posts:     posts,
		Settings:  repository.NewDBSettingsRepository(sqlite),
		Workspace: ws,
		Ingestor:  media.NewIngestor(store, media.WithMaxUploadSize(cfg.Editor.MaxUploadBytes())),
		Auth:      provider,
		Sessions:  sessions,
		Clients:   clients,
	}, api.Options{
		AdminUserID:  admin,
		SyntaxTheme:  cfg.Editor.SyntaxTheme,
		PostsPerPage: cfg.Content.PostsPerPage,
		MaxPageSize:  cfg.Content.MaxPageSize,
		LivePreview:  cfg.Editor.LivePreview,
	})
	posts.SetReloadNotifier(a.server.NotifyPostChanged)

	mux := http.NewServeMux()
	a.server.Register(mux)

	mux.HandleFunc("GET "+routes.RobotsPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(config.HCType, "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("User-agent: *\nDisallow:"))
	})
	mux.HandleFunc("GET "+routes.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST "+routes.WebhookUser, provider.HandleWebhookUser)

	if fsStore != nil {
		mux.Handle("GET "+routes.MediaPath, http.StripPrefix(routes.MediaPath, http.FileServer(http.Dir(fsStore.Root()))))
	}
	if ed != nil {
		auth.RegisterEd25519AuthRoutes(mux, ed)
	}

	secured := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == routes.RobotsPath {
			mux.ServeHTTP(w, r)
		} else {
			secureHeaders(mux.ServeHTTP)(w, r)
		}
	})
	a.handler = withRequestLogger(log, provider.WithHeaderAuthorization()(secured))
	return a, nil
}

func newObjectStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, *storage.FSStore, error) {
	switch cfg.Type {
	case config.StorageS3:
		s3, err := storage.NewS3Store(ctx, storage.S3Options{
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			Endpoint:        cfg.Endpoint,
			Region:          cfg.Region,
			Bucket:          cfg.Bucket,
			PublicBaseURL:   cfg.PublicBaseURL,
		})
		return s3, nil, err
	default:
		prefix := cfg.PublicBaseURL
		if prefix == "" {
			prefix = config.MediaUrlPath
		}
		fs, err := storage.NewFSStore(cfg.LocalDir, prefix)
		if err != nil {
			return nil, nil, err
		}
		return fs, fs, nil
	}
}

// newAuthProvider returns the configured provider. The ed25519 provider is
// also returned on its own so its login routes can be mounted.
func newAuthProvider(cfg config.AuthConfig, database db.DB, sessions *auth.Sessions) (auth.AuthProvider, *auth.Ed25519AuthProvider, error) {
	if !cfg.Enabled {
		return auth.DisabledAuthProvider{}, nil, nil
	}

	switch cfg.Type {
	case "clerk":
		return auth.NewClerkAuthProvider(os.Getenv("CLERK_API"), database), nil, nil
	default:
		p, err := auth.NewEd25519AuthProvider(os.Getenv("ED25519_PUBKEY"), cfg.HeaderName, model.UserID(cfg.AdminUserID))
		if err != nil {
			return nil, nil, fmt.Errorf("error setting up ed25519 auth: %w", err)
		}
		p.BindSessions(sessions)
		return p, p, nil
	}
}

func secureHeaders(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-XSS-Protection", "1; mode=block")

		h(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE streaming working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withRequestLogger puts a request-scoped logger in the context and logs
// each request when it completes.
func withRequestLogger(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		l := log.With().Str("method", r.Method).Str("path", r.URL.Path).Logger()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r.WithContext(l.WithContext(r.Context())))

		l.Debug().Int("status", rec.status).Dur("duration", time.Since(start)).Msg("Request handled")
	})
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gymchat/internal/api"
	"gymchat/internal/config"
	"gymchat/internal/redis"
	"gymchat/internal/service/ai"
	"gymchat/internal/service/chat"
	"gymchat/internal/service/filestore"
	"gymchat/internal/service/staging"
	"gymchat/internal/storage"
	"gymchat/internal/worker"
)

const shutdownTimeout = 10 * time.Second

var configPath string

// conversation is what both the chat pipeline and the history routes need
// from the AI session.
type conversation interface {
	chat.Conversation
	api.HistoryStore
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	root := &cobra.Command{
		Use:   "gymchat",
		Short: "Gym trainer chat service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("GYMCHAT_CONFIG"), "path to config.json or config.yaml")
	root.AddCommand(serveCmd(), migrateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		log.Printf("gymchat: %v", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the uploaded_files table and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			db, driver, err := storage.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := storage.Ping(cmd.Context(), db); err != nil {
				return err
			}
			if err := storage.Migrate(cmd.Context(), db, driver); err != nil {
				return err
			}
			log.Printf("database migrated (%s)", driver)
			return nil
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, driver := openDatabase(ctx, cfg.Database)
	if db != nil {
		defer db.Close()
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = redis.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Printf("warning: redis unavailable, history mirror disabled: %v", err)
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	workers := worker.NewManager(cfg.BasicConfig.SessionQueueSize)
	defer workers.StopAll()

	var (
		conv   conversation = ai.DisabledSession{}
		stager chat.Stager
	)
	if cfg.AI.Enabled() {
		backend, err := ai.NewBackend(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI backend (%s): %v", cfg.AI.Provider, err)
			conv = ai.DisabledSession{Err: ai.ErrAIUnavailable}
		} else {
			s, err := newStager(ctx, cfg.BasicConfig, backend)
			if err != nil {
				return err
			}
			mgr, err := ai.NewManager(ai.ManagerConfig{
				Model:             backend.Model,
				SystemInstruction: cfg.AI.SystemInstruction,
				Workers:           workers,
				Cache:             rdb,
				CacheTTL:          time.Duration(cfg.Redis.TTL) * time.Minute,
			})
			if err != nil {
				return err
			}
			stager, conv = s, mgr
			log.Printf("AI session ready (%s/%s)", cfg.AI.Provider, cfg.AI.Model)
		}
	} else {
		log.Printf("GEMINI_API_KEY not set, chat replies are disabled")
	}

	var files chat.FileStore
	opts := api.Options{
		StaticDir:      cfg.BasicConfig.StaticDir,
		MaxUploadBytes: int64(cfg.BasicConfig.MaxUploadMB) << 20,
		ProviderLabel:  providerLabel(cfg.AI.Provider),
		AIEnabled:      conv.Ready() == nil,
	}
	if db != nil {
		files = filestore.New(db, driver)
		opts.DBPing = func(ctx context.Context) error { return storage.Ping(ctx, db) }
	}

	handler := api.NewHandler(chat.NewService(files, stager, conv), conv, opts)
	router := gin.Default()
	handler.RegisterRoutes(router)

	srv := &http.Server{Addr: cfg.BasicConfig.ServerAddress, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Printf("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// openDatabase opens and migrates the file store database. Failures are
// logged; uploads then fail to persist but chat keeps working.
func openDatabase(ctx context.Context, dbCfg config.DatabaseConfig) (*sql.DB, string) {
	db, driver, err := storage.Open(dbCfg)
	if err != nil {
		log.Printf("warning: open database: %v", err)
		return nil, ""
	}
	log.Printf("database driver: %s", driver)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := storage.Ping(pingCtx, db); err != nil {
		log.Printf("warning: database unreachable: %v", err)
		return db, driver
	}
	if err := storage.Migrate(ctx, db, driver); err != nil {
		log.Printf("warning: migrate database: %v", err)
	}
	return db, driver
}

func newStager(ctx context.Context, basic config.BasicConfig, backend *ai.Backend) (*staging.Stager, error) {
	var uploader staging.Uploader = staging.InlineUploader{
		MaxBytes: staging.DefaultInlineLimit,
		Accept:   backend.AcceptsFile,
	}
	if backend.Genai != nil {
		uploader = staging.NewGenaiUploader(backend.Genai)
	}
	s, err := staging.New(basic.StagingDir, uploader)
	if err != nil {
		return nil, err
	}
	interval := time.Duration(basic.StagingCleanInterval) * time.Minute
	if interval <= 0 {
		interval = staging.DefaultJanitorInterval
	}
	ttl := time.Duration(basic.StagingTTL) * time.Minute
	if ttl <= 0 {
		ttl = staging.DefaultStagedFileTTL
	}
	s.StartJanitor(ctx, interval, ttl)
	return s, nil
}

func providerLabel(provider string) string {
	switch provider {
	case "openai":
		return "OpenAI"
	case "claude":
		return "Claude"
	default:
		return "Gemini"
	}
}

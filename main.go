package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/solarboard/solarboard/database"
	"github.com/solarboard/solarboard/handlers"
	"github.com/solarboard/solarboard/services"
)

// Version information, set at build time with -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, envFile string

	root := &cobra.Command{
		Use:           "solarboard",
		Short:         "Board, chart and map backend for solar installation projects",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to a .env file")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("db", "", "sqlite database path")

	// load resolves the config of a command, flags last.
	load := func(cmd *cobra.Command) (Config, error) {
		cfg, err := LoadConfig(configPath, envFile)
		if err != nil {
			return cfg, err
		}
		flags := cmd.Flags()
		if flags.Changed("log-level") {
			cfg.LogLevel, _ = flags.GetString("log-level")
		}
		if flags.Changed("db") {
			cfg.DBPath, _ = flags.GetString("db")
		}
		if flags.Changed("addr") {
			cfg.Addr, _ = flags.GetString("addr")
		}
		if flags.Changed("save-delay") {
			cfg.SaveDelay, _ = flags.GetDuration("save-delay")
		}
		level, err := parseLevel(cfg.LogLevel)
		if err != nil {
			return cfg, err
		}
		slog.SetDefault(newLogger(os.Stderr, level))
		return cfg, nil
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	serve.Flags().String("addr", "", "listen address")
	serve.Flags().Duration("save-delay", 0, "quiet period before board changes are written")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			db, err := database.InitDB(cmd.Context(), cfg.DBPath)
			if err != nil {
				return err
			}
			return db.Close()
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "solarboard version %s\n", Version)
			fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
		},
	}

	root.AddCommand(serve, migrate, version)
	return root
}

func newLogger(w *os.File, level slog.Level) *slog.Logger {
	var out io.Writer = w
	noColor := !isatty.IsTerminal(w.Fd())
	if !noColor {
		out = colorable.NewColorable(w)
	}
	return slog.New(tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	}))
}

func runServe(ctx context.Context, cfg Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.InitDB(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// Initialize WebSocket hub
	hub := services.NewHub()
	go hub.Run()
	defer hub.Stop()

	// Initialize services
	boardStore := database.NewBoardService(db)
	users := database.NewUserService(db)
	persons := database.NewPersonService(db)
	comments := database.NewCommentService(db)
	boards := services.NewBoardService(boardStore, hub, cfg.SaveDelay)
	defer boards.Close()

	r := handlers.NewRouter(handlers.Dependencies{
		Auth:           services.NewAuthService(users, cfg.JWTSecret),
		Users:          users,
		Boards:         boards,
		Catalog:        boardStore,
		Persons:        persons,
		Comments:       services.NewCommentService(boards, comments, hub),
		Notifications:  comments,
		Hub:            hub,
		LoginLimiter:   handlers.NewRateLimiter(cfg.LoginRate),
		AllowedOrigins: cfg.AllowedOrigins,
	})
	mountStatic(r, cfg.StaticDir)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr, "db", cfg.DBPath)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown incomplete", "err", err)
	}
	return nil
}

// mountStatic serves a built frontend from dir, if set.
func mountStatic(r *mux.Router, dir string) {
	if dir == "" {
		return
	}
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(dir)))
}

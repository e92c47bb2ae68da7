package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"

	"github.com/modestbitboard/breadbox"
	"github.com/modestbitboard/breadbox/archive"
	"github.com/modestbitboard/breadbox/config"
	bbhttp "github.com/modestbitboard/breadbox/http"
	"github.com/modestbitboard/breadbox/ratelimit"
	"github.com/modestbitboard/breadbox/userdb"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the Breadbox HTTP server.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int("port", 8080, "HTTP server port")
	serveCmd.Flags().String("host", "0.0.0.0", "HTTP listen address")
	serveCmd.Flags().Bool("read-only", false, "deny all write and delete requests")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var directory breadbox.UserDirectory
	if cfg.Users.Type != "" {
		store, closeDB, openErr := userdb.Open(ctx, cfg.Users)
		if openErr != nil {
			return fmt.Errorf("open user database: %w", openErr)
		}
		defer closeDB()

		directory = store
		slog.Info("connected to user database", "type", cfg.Users.Type)
	} else {
		directory = userdb.NewMapDirectory(nil)
		slog.Warn("no user database configured, every API key will be rejected")
	}

	var issuer *breadbox.GrantIssuer
	if cfg.SignedURLs.Enabled {
		signer, signerErr := breadbox.NewSigner([]byte(cfg.SignedURLs.Secret))
		if signerErr != nil {
			return fmt.Errorf("create signer: %w", signerErr)
		}
		issuer = breadbox.NewGrantIssuer(signer, cfg.SignedURLs.Lifetime())
		slog.Info("signed URLs enabled", "lifetime", cfg.SignedURLs.Lifetime())
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimits.Enabled {
		rules, ruleErr := ratelimit.ParseRules(cfg.RateLimits.Rules)
		if ruleErr != nil {
			return fmt.Errorf("parse rate limit rules: %w", ruleErr)
		}
		limiter = ratelimit.New(rules)
	}

	groups, err := cfg.Permissions.Groups()
	if err != nil {
		return fmt.Errorf("parse permission groups: %w", err)
	}

	gate := bbhttp.NewGate(bbhttp.GateConfig{
		ProtectedPrefixes: cfg.Advanced.ProtectedPrefixes,
		Permissions:       groups,
		ReadOnly:          cfg.Advanced.ReadOnly,
		AuthHeader:        cfg.Advanced.AuthHeader,
		AuthCookie:        cfg.Advanced.AuthCookie,
		AuthQuery:         cfg.Advanced.AuthQuery,
		RateLimitExempt:   cfg.RateLimits.Exempt,
	}, directory, issuer, limiter)

	r := chi.NewRouter()

	if cfg.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			ExposedHeaders:   cfg.CORS.ExposedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		}))
	}

	r.Use(gate.Middleware)

	r.Get("/", handleAppInfo(cfg))
	r.Get("/coffee", handleCoffee)

	for name, arc := range cfg.Archives {
		schema, schemaErr := archive.ParseSchema(arc.Schema)
		if schemaErr != nil {
			return fmt.Errorf("archive %q: %w", name, schemaErr)
		}

		store, storeErr := archive.NewStore(name, arc.Path, schema)
		if storeErr != nil {
			return fmt.Errorf("archive %q: %w", name, storeErr)
		}

		routes := make([]bbhttp.FileRoute, 0, len(arc.Files))
		for _, fr := range arc.Files {
			routes = append(routes, bbhttp.FileRoute{
				Path:                fr.Path,
				Branch:              fr.Branch,
				Filename:            fr.Filename,
				OverwriteProtection: fr.OverwriteProtection,
			})
		}

		handler := bbhttp.NewHandler(store, routes, arc.Browse)
		r.Mount("/archive/"+name, handler.Router())
		slog.Info("mounted archive", "name", name, "path", arc.Path)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "err", err)
		}
		cancel()
	}()

	slog.Info("starting server", "addr", addr, "read_only", cfg.Advanced.ReadOnly)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func handleAppInfo(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bbhttp.WriteJSON(w, http.StatusOK, map[string]string{
			"name":    cfg.App.Name,
			"version": cfg.App.Version,
			"summary": cfg.App.Summary,
		})
	}
}

func handleCoffee(w http.ResponseWriter, r *http.Request) {
	bbhttp.Respond(w, "little_teapot", nil)
}

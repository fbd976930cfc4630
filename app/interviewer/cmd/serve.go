package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Soln1shko/AI-HR/internal/api/handlers"
	"github.com/Soln1shko/AI-HR/internal/api/middleware"
	"github.com/Soln1shko/AI-HR/internal/api/routes"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interview runner with its HTTP + WebSocket control API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides HTTP_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.HTTPAddr = serveAddr
	}
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openStores(cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.buildInterview(ctx, nil); err != nil {
		return err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	routes.RegisterRoutes(r, routes.Deps{
		Interview: handlers.NewInterviewHandler(rt.interview),
		History:   handlers.NewHistoryHandler(rt.sessions, rt.answers, rt.api),
		WS:        handlers.NewWSHandler(rt.interview, rt.events, log),
		JWTSecret: cfg.ControlJWTSecret,
	})
	if cfg.ControlJWTSecret == "" {
		log.Warn("CONTROL_JWT_SECRET is empty; control API accepts unauthenticated requests")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("control API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http: %w", err)
		}
	case <-ctx.Done():
	}

	// the interview is left open so a restarted runner can resume its countdown
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

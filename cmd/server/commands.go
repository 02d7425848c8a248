package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"forumcore/internal/router"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var (
	refreshRanks bool
	rankWindow   time.Duration
	rankTop      int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the ranking worker",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the schema (and seed topics if enabled)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()
		a.log.Info("migration complete")
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Recompute every denormalized counter from the source rows",
	RunE:  runReconcile,
}

func init() {
	reconcileCmd.Flags().BoolVar(&refreshRanks, "refresh-ranks", false,
		"also recompute hot ranks for recent posts")
	reconcileCmd.Flags().DurationVar(&rankWindow, "rank-window", 7*24*time.Hour,
		"how far back --refresh-ranks looks")
	reconcileCmd.Flags().IntVar(&rankTop, "rank-top", 100,
		"number of current top posts --refresh-ranks also recomputes")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 异步排名 worker
	rankingDone := make(chan struct{})
	go func() {
		a.forum.Ranking.Run(ctx)
		close(rankingDone)
	}()

	engine := router.New(router.Deps{
		DB:              a.db,
		Forum:           a.forum,
		Metrics:         a.metrics,
		Log:             a.log,
		SessionSecret:   a.cfg.Server.SessionSecret,
		TrustUserHeader: a.cfg.Server.TrustUserHeader,
	})
	srv := &http.Server{
		Addr:              ":" + a.cfg.Server.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	a.log.Info("server started", "port", a.cfg.Server.Port)

	select {
	case <-ctx.Done():
		a.log.Info("received signal, shutting down")
	case err := <-errCh:
		if err != nil {
			stop()
			<-rankingDone
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("error shutting down http server", "error", err)
	}
	<-rankingDone
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := a.forum.Reconcile(ctx)
	if err != nil {
		return err
	}
	a.log.Info("reconcile complete",
		"topics", report.Topics,
		"comments", report.Comments,
		"scores", report.Scores,
	)

	if refreshRanks {
		n, err := a.forum.Ranking.RefreshRecent(ctx, rankWindow, rankTop)
		if err != nil {
			return err
		}
		a.log.Info("hot ranks refreshed", "posts", n)
	}
	return nil
}

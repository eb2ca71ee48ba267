package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pawsaarthi/rescue-api/api/handlers"
	"github.com/pawsaarthi/rescue-api/config"
)

// shutdownGrace bounds how long in-flight requests may finish on exit
const shutdownGrace = 15 * time.Second

func main() {
	a := handlers.App{}
	a.Config = *config.New()

	// initialize database, services and router
	if err := a.Initialize(); err != nil {
		zap.S().Fatalw("failed to initialize rescue-api", "error", err)
	}
	a.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%v", a.Config.Port),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zap.S().Infow("rescue-api is up and running",
			"port", a.Config.Port,
			"url", a.Config.BaseURL,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Fatalw("server stopped", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	zap.S().Info("shutting down rescue-api")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.S().Errorw("graceful shutdown failed", "error", err)
	}
	a.Close()
	_ = zap.L().Sync()
}

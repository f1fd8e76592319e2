package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/tannoy-player/tannoy/hub"
	"github.com/tannoy-player/tannoy/key"
	"github.com/tannoy-player/tannoy/log"
	"github.com/tannoy-player/tannoy/orchestrator"
	"github.com/tannoy-player/tannoy/player"
	"github.com/tannoy-player/tannoy/queue"
	"github.com/tannoy-player/tannoy/resolver"
)

const shutdownGrace = 5 * time.Second

// Run assembles the whole service and blocks until SIGINT/SIGTERM.
func Run() error {
	store := queue.NewStore(viper.GetBool(key.QueueAutoplay))
	channel := player.NewMPV()
	observers := hub.New()
	orch := orchestrator.New(store, channel, resolver.New(), observers)

	orch.Start()
	defer func() {
		if err := orch.Close(); err != nil {
			log.Warnf("close orchestrator: %s", err)
		}
		observers.Close()
	}()

	api := NewAPI(orch, observers)
	addr := fmt.Sprintf("%s:%d", viper.GetString(key.ServerHost), viper.GetInt(key.ServerPort))

	srv := &http.Server{
		Addr:    addr,
		Handler: SetupRouter(api),
	}

	errc := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case sig := <-quit:
		log.Infof("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(ctx)
}

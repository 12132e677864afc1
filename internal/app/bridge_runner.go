package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/location_bridge/internal/bridge"
	"github.com/relabs-tech/location_bridge/internal/config"
	"github.com/relabs-tech/location_bridge/internal/logging"
	"github.com/relabs-tech/location_bridge/internal/looper"
)

// runBridge initialises the process bridge over host, starts the
// subscription and serves the control API until ctx is done. extra, when
// set, adds routes to the control router.
func runBridge(ctx context.Context, cfg *config.Config, host bridge.LocationService, native bridge.Native, extra func(chi.Router)) error {
	log := logging.WithComponent("app")

	loop := looper.New()
	b, err := bridge.Init(bridge.Options{Service: host, Executor: loop, Native: native})
	if err != nil {
		return err
	}
	defer b.Teardown()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := loop.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	b.Start()

	if cfg.BridgeHTTPPort > 0 {
		r := newControlRouter(b, log)
		if extra != nil {
			r.Group(extra)
		}
		serve(gctx, g, &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.BridgeHTTPPort),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		}, log)
	}

	err = g.Wait()
	log.Info().Msg("bridge shutting down")
	return err
}

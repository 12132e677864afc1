package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/location_bridge/internal/bridge"
)

// controller is the part of *bridge.Bridge exposed over HTTP.
type controller interface {
	Handle() bridge.Handle
	Start()
	Stop()
	Active() bool
	NotifyPermissionGranted()
}

// subscriptionStatus is the body of every /api/subscription response.
type subscriptionStatus struct {
	Handle uint64 `json:"handle"`
	Active bool   `json:"active"`
}

// newControlRouter builds the bridge control API plus /metrics.
func newControlRouter(c controller, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)

	status := func(w http.ResponseWriter, code int) {
		writeJSON(w, code, subscriptionStatus{Handle: uint64(c.Handle()), Active: c.Active()}, log)
	}

	r.Get("/api/subscription", func(w http.ResponseWriter, _ *http.Request) {
		status(w, http.StatusOK)
	})
	// registration completes asynchronously on the looper
	r.Post("/api/subscription/start", func(w http.ResponseWriter, _ *http.Request) {
		c.Start()
		status(w, http.StatusAccepted)
	})
	r.Post("/api/subscription/stop", func(w http.ResponseWriter, _ *http.Request) {
		c.Stop()
		status(w, http.StatusOK)
	})
	r.Post("/api/permission/granted", func(w http.ResponseWriter, _ *http.Request) {
		c.NotifyPermissionGranted()
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// simControls is the fault injection surface of simhost.Service.
type simControls interface {
	SetDenied(denied bool)
	SetProviderEnabled(enabled bool)
	Flush(requestCode int)
}

// simRoutes mounts /api/sim on r for driving the simulated host by hand.
func simRoutes(sim simControls) func(chi.Router) {
	return func(r chi.Router) {
		r.Post("/api/sim/provider/{state}", func(w http.ResponseWriter, req *http.Request) {
			on, ok := parseSwitch(chi.URLParam(req, "state"))
			if !ok {
				http.Error(w, "state must be on or off", http.StatusBadRequest)
				return
			}
			sim.SetProviderEnabled(on)
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/api/sim/deny/{state}", func(w http.ResponseWriter, req *http.Request) {
			on, ok := parseSwitch(chi.URLParam(req, "state"))
			if !ok {
				http.Error(w, "state must be on or off", http.StatusBadRequest)
				return
			}
			sim.SetDenied(on)
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/api/sim/flush", func(w http.ResponseWriter, req *http.Request) {
			code := 0
			if v := req.URL.Query().Get("code"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					http.Error(w, "code must be an integer", http.StatusBadRequest)
					return
				}
				code = n
			}
			sim.Flush(code)
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func parseSwitch(s string) (bool, bool) {
	switch s {
	case "on":
		return true, true
	case "off":
		return false, true
	default:
		return false, false
	}
}

func writeJSON(w http.ResponseWriter, code int, v any, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("json encode")
	}
}

// serve runs srv in g until ctx is done, then shuts it down.
func serve(ctx context.Context, g *errgroup.Group, srv *http.Server, log zerolog.Logger) {
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server %s: %w", srv.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

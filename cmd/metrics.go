package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgeflow/internal/monitoring"
)

// newMetricsMux exposes Prometheus metrics and a health check.
func newMetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", monitoring.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"}) //nolint:errcheck
	})
	return mux
}

// serveMetrics starts the metrics server in the background and returns a
// function that shuts it down. An empty addr serves nothing.
func serveMetrics(ctx context.Context, addr string) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, eris.Wrapf(err, "metrics listen %s", addr)
	}

	srv := &http.Server{
		Handler:           newMetricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log := zap.L().With(zap.String("component", "metrics"))
	go func() {
		log.Info("starting metrics server", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		log.Info("shutting down metrics server")
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}, nil
}

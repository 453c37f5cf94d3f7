package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mordilloSan/go_logger/logger"
)

// metricsServer serves /metrics for the lifetime of one run.
type metricsServer struct {
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

func startMetricsServer(addr string, handler http.Handler) (*metricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	m := &metricsServer{
		srv:      &http.Server{Handler: mux, ReadTimeout: 30 * time.Second, WriteTimeout: 60 * time.Second},
		listener: l,
		done:     make(chan struct{}),
	}
	logger.Infof("Metrics listening on http://%s/metrics", l.Addr())
	go func() {
		defer close(m.done)
		if err := m.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warnf("Metrics server error: %v", err)
		}
	}()
	return m, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (m *metricsServer) Addr() string {
	return m.listener.Addr().String()
}

func (m *metricsServer) Close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Metrics server shutdown error: %v", err)
	}
	<-m.done
}

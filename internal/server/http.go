package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

const (
	defaultReadHeaderTimeout = 10 * time.Second
	// Matrix runs answer within one tool call, so writes may take long.
	defaultWriteTimeout    = 30 * time.Minute
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// NewMux routes the MCP endpoint plus the unauthenticated /healthz and
// /status endpoints. wrap, when set, guards the MCP endpoint.
func NewMux(mcpSrv *mcpserver.MCPServer, endpoint string, sc *ServerContext, wrap func(http.Handler) http.Handler) *http.ServeMux {
	var mcpHandler http.Handler = mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath(endpoint),
	)
	if wrap != nil {
		mcpHandler = wrap(mcpHandler)
	}

	mux := http.NewServeMux()
	mux.Handle(endpoint, mcpHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"run_in_progress": sc != nil && sc.Running(),
		})
	})
	return mux
}

// NewHTTPServer creates an HTTP server with the default timeouts.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
}

// Serve runs start until it fails or ctx is cancelled, then calls shutdown
// with a bounded timeout.
func Serve(ctx context.Context, start func() error, shutdown func(context.Context) error) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverDone
	case err := <-serverDone:
		return err
	}
}

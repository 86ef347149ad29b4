package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/baristagate/internal/gateway"
	"github.com/MrWong99/baristagate/internal/observe"
	"github.com/MrWong99/baristagate/pkg/provider/credentials"
	"github.com/MrWong99/baristagate/pkg/provider/generative"
)

// maxInvokeBody bounds an /invoke request. Vision payloads carry a base64
// image, so this is generous.
const maxInvokeBody = 8 << 20

// invokeResponse is the JSON body of /invoke.
type invokeResponse struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Handler returns the local HTTP surface: POST /invoke, the health probes
// and the Prometheus /metrics endpoint, all behind the observe middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke", a.handleInvoke)
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(a.metrics)(mux)
}

func (a *App) handleInvoke(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInvokeBody))
	if err != nil {
		writeInvoke(w, http.StatusRequestEntityTooLarge, invokeResponse{Error: err.Error()})
		return
	}
	out, err := a.Invoke(r.Context(), body)
	if err != nil {
		writeInvoke(w, statusFor(err), invokeResponse{Error: err.Error()})
		return
	}
	writeInvoke(w, http.StatusOK, invokeResponse{Result: out})
}

// statusClientClosedRequest reports a caller that went away before the
// invocation finished. Being below 500, it is not counted as a server error.
const statusClientClosedRequest = 499

// statusFor maps an invocation error to an HTTP status.
func statusFor(err error) int {
	var (
		notFound *gateway.OperationNotFoundError
		credErr  *credentials.Error
		upErr    *generative.UpstreamError
	)
	switch {
	case errors.As(err, &notFound),
		errors.Is(err, gateway.ErrInvalidArguments),
		errors.Is(err, gateway.ErrMissingImage):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &credErr):
		return http.StatusBadGateway
	case errors.As(err, &upErr):
		if upErr.StatusCode == http.StatusTooManyRequests {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeInvoke(w http.ResponseWriter, status int, v invokeResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write invoke response", "err", err)
	}
}

// Run serves [App.Handler] on the configured listen address until ctx is
// cancelled, then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is like Run but uses an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("app: shutdown: %w", err)
	}
	return nil
}

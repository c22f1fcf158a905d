// Package server hosts routerd's HTTP surface: the webhook endpoints the
// channel service delivers transfer events to, the admin drain trigger, and
// health/metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/TtheBC01/vector/channel"
	"github.com/TtheBC01/vector/forwarding"
	"github.com/TtheBC01/vector/retry"
)

// Coordinator is the forwarding core driven by inbound events.
type Coordinator interface {
	ForwardTransferCreation(ctx context.Context, event channel.TransferCreatedEvent) (*forwarding.Outcome, error)
	ForwardTransferResolution(ctx context.Context, event channel.TransferResolvedEvent) (*forwarding.Outcome, error)
}

// Drainer replays a channel's queued work, standing in for the peer-liveness
// signal.
type Drainer interface {
	OnPeerLive(ctx context.Context, channelAddress common.Address) (retry.Result, error)
}

var errCoordinatorRequired = errors.New("routerd server: coordinator required")

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	// EventTimeout bounds the handling of one inbound event.
	EventTimeout time.Duration
}

// Server dispatches webhook events to the coordinators.
type Server struct {
	cfg     Config
	coord   Coordinator
	drainer Drainer
	logger  *slog.Logger
}

// New constructs the routerd HTTP server.
func New(cfg Config, coord Coordinator, drainer Drainer, logger *slog.Logger) (*Server, error) {
	if coord == nil {
		return nil, errCoordinatorRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 90 * time.Second
	}
	return &Server{cfg: cfg, coord: coord, drainer: drainer, logger: logger}, nil
}

// Handler builds the HTTP routing table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/events/transfer-created", s.handleTransferCreated)
	r.Post("/events/transfer-resolved", s.handleTransferResolved)
	r.Post("/admin/channels/{address}/drain", s.handleDrain)
	return otelhttp.NewHandler(r, "routerd")
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Webhook deliveries are acknowledged as received, never as processed: a
// queued retry is not a success, and the event source must not treat the ack
// as one. Each event runs as its own unit of work.
func (s *Server) handleTransferCreated(w http.ResponseWriter, r *http.Request) {
	var event channel.TransferCreatedEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid event payload", http.StatusBadRequest)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.EventTimeout)
		defer cancel()
		if _, err := s.coord.ForwardTransferCreation(ctx, event); err != nil {
			s.logger.Warn("transfer creation event failed", "error", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTransferResolved(w http.ResponseWriter, r *http.Request) {
	var event channel.TransferResolvedEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid event payload", http.StatusBadRequest)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.EventTimeout)
		defer cancel()
		if _, err := s.coord.ForwardTransferResolution(ctx, event); err != nil {
			s.logger.Warn("transfer resolution event failed", "error", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if s.drainer == nil {
		http.Error(w, "drain not configured", http.StatusServiceUnavailable)
		return
	}
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		http.Error(w, "invalid channel address", http.StatusBadRequest)
		return
	}
	result, err := s.drainer.OnPeerLive(r.Context(), common.HexToAddress(raw))
	if err != nil {
		s.logger.Error("drain failed", "channel", raw, "error", err)
		http.Error(w, "drain failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{
		"replayed":  result.Replayed,
		"failed":    result.Failed,
		"exhausted": result.Exhausted,
	})
}

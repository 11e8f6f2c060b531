package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
	orchestratorx "github.com/tanpawarit/whiteboard-agent/agent/orchestrator"
	qstashx "github.com/tanpawarit/whiteboard-agent/pkg/qstash"
)

const (
	SolvePath       = "/v1/solve"
	maxRequestBytes = 1 << 20
)

type Config struct {
	Addr         string        `split_words:"true" default:":8080"`
	PublicURL    string        `envconfig:"PUBLIC_URL" split_words:"true"`
	SolveTimeout time.Duration `split_words:"true" default:"5m"`
}

// Solver is the part of the orchestrator the HTTP front end needs.
type Solver interface {
	HandleMessage(ctx context.Context, sessionID string, text string) (orchestratorx.Outcome, error)
}

type Handler struct {
	solver   Solver
	store    contractx.TranscriptStore
	verifier *qstashx.Verifier
	cfg      Config
}

type SolveRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func NewHandler(solver Solver, store contractx.TranscriptStore, verifier *qstashx.Verifier, cfg Config) (*Handler, error) {
	if solver == nil {
		return nil, errors.New("solver is required")
	}
	if store == nil {
		return nil, errors.New("transcript store is required")
	}
	return &Handler{solver: solver, store: store, verifier: verifier, cfg: cfg}, nil
}

// RegisterRoutes registers the agent endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+SolvePath, h.handleSolve)
	mux.HandleFunc("GET /v1/sessions/{id}/transcript", h.handleTranscript)
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.handleClear)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (h *Handler) handleSolve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request body too large or unreadable"})
		return
	}

	if h.verifier.Enabled() {
		subject := ""
		if base := strings.TrimRight(strings.TrimSpace(h.cfg.PublicURL), "/"); base != "" {
			subject = base + SolvePath
		}
		if err := h.verifier.Verify(r.Header.Get(qstashx.SignatureHeader), body, subject); err != nil {
			log.Warn().Err(err).Msg("rejected unsigned solve request")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
			return
		}
	}

	var req SolveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	ctx := r.Context()
	if h.cfg.SolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.SolveTimeout)
		defer cancel()
	}

	out, err := h.solver.HandleMessage(ctx, req.SessionID, req.Message)
	if err != nil {
		writeError(w, req.SessionID, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	entries, err := h.store.Read(r.Context(), sessionID)
	if err != nil {
		writeError(w, sessionID, err)
		return
	}
	if entries == nil {
		entries = []contractx.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "entries": entries})
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if err := h.store.Clear(r.Context(), sessionID); err != nil {
		writeError(w, sessionID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
}

func writeError(w http.ResponseWriter, sessionID string, err error) {
	var storageErr *contractx.StorageError
	switch {
	case errors.Is(err, contractx.ErrInvalidSession),
		errors.Is(err, contractx.ErrInvalidMessage),
		errors.Is(err, contractx.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "solve timed out"})
	case errors.As(err, &storageErr):
		log.Error().Str("session_id", sessionID).Err(err).Msg("transcript storage failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "transcript storage unavailable"})
	default:
		log.Error().Str("session_id", sessionID).Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe runs the handler until ctx is done.
func ListenAndServe(ctx context.Context, cfg Config, h *Handler) error {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

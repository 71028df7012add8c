package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"medcmd/internal/core"
	"medcmd/internal/entity"
	"medcmd/internal/storage"
	"medcmd/pkg"
	"medcmd/src/logger"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type Handler struct {
	processor *core.Processor
}

func NewHandler(processor *core.Processor) *Handler {
	return &Handler{processor: processor}
}

type conversationRequest struct {
	SessionID  string   `json:"session_id"`
	Utterances []string `json:"utterances"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// capabilities lists what the interpreter understands.
type capabilities struct {
	EntityLabels []string       `json:"entity_labels"`
	Categories   []pkg.Category `json:"categories"`
	Intents      []string       `json:"intents"`
	Medications  []string       `json:"medications"`
}

type commandsResponse struct {
	Stats    *storage.CommandStats  `json:"stats"`
	Commands []pkg.CompletedCommand `json:"commands"`
}

// Router mounts every endpoint.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/process", h.Process)
		r.Post("/conversation", h.ProcessConversation)
		r.Get("/entities", h.Entities)
		r.Get("/interpret", h.Interpret)
		r.Get("/sessions/{id}", h.Session)
		r.Delete("/sessions/{id}", h.ClearSession)
		r.Get("/sessions/{id}/commands", h.SessionCommands)
	})
	return r
}

// Health reports unhealthy when the context store cannot be reached.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.processor.Contexts().HealthCheck(r.Context()); err != nil {
		logger.Warn().Err(err).Msg("Context store health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Process handles one turn.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	var req pkg.TurnRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.processor.Process(r.Context(), req)
	if err != nil {
		writeProcessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ProcessConversation replays several utterances through one session.
func (h *Handler) ProcessConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Utterances) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "utterances are required"})
		return
	}

	results, err := h.processor.ProcessConversation(r.Context(), req.SessionID, req.Utterances)
	if err != nil {
		writeProcessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// Entities lists the supported entity labels, buckets, intents and medications.
func (h *Handler) Entities(w http.ResponseWriter, _ *http.Request) {
	categories := make([]pkg.Category, 0, len(pkg.Categories))
	for _, c := range pkg.Categories {
		if c != pkg.CategoryOther {
			categories = append(categories, c)
		}
	}
	writeJSON(w, http.StatusOK, capabilities{
		EntityLabels: entity.Labels,
		Categories:   categories,
		Intents:      pkg.SupportedIntents,
		Medications:  h.processor.Medications(),
	})
}

// Interpret reads ?text= without touching any session.
func (h *Handler) Interpret(w http.ResponseWriter, r *http.Request) {
	in, err := h.processor.Interpret(r.Context(), r.URL.Query().Get("text"))
	if err != nil {
		writeProcessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	snap, err := h.processor.Contexts().Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeProcessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	if err := h.processor.Contexts().Clear(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeProcessError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionCommands returns the completed commands of a session and their summary.
func (h *Handler) SessionCommands(w http.ResponseWriter, r *http.Request) {
	log := h.processor.Commands()
	if log == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "command log is disabled"})
		return
	}

	id := chi.URLParam(r, "id")
	cmds, err := log.Load(id)
	if err != nil {
		writeProcessError(w, err)
		return
	}
	stats, err := log.Stats(id)
	if err != nil {
		writeProcessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandsResponse{Stats: stats, Commands: cmds})
}

func decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(dest); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func writeProcessError(w http.ResponseWriter, err error) {
	if errors.Is(err, core.ErrEmptyUtterance) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	logger.Error().Err(err).Msg("Request failed")
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := sonic.Marshal(body)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if strings.HasPrefix(r.URL.Path, "/health") {
			return
		}
		log := logger.Component("http")
		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

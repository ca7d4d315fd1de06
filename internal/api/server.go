// Package api serves the local HTTP interface used by companion UIs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/julianstephens/planmate/internal/broadcast"
	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/dispatcher"
	"github.com/julianstephens/planmate/internal/logger"
	"github.com/julianstephens/planmate/internal/metrics"
	"github.com/julianstephens/planmate/internal/models"
	"github.com/julianstephens/planmate/internal/records"
	"github.com/julianstephens/planmate/internal/scheduler"
	"github.com/julianstephens/planmate/internal/status"
)

const maxRequestBodySize = 1 << 20

// Jobs is the scheduler's queue as seen by the API.
type Jobs interface {
	// ForgetPlan drops scheduled work for a deleted plan.
	ForgetPlan(planID int64)
	Jobs() []scheduler.JobInfo
}

// Replier answers a conversation's latest user messages.
type Replier interface {
	Reply(ctx context.Context, convID int64) dispatcher.Outcome
}

// Server holds the API's collaborators.
type Server struct {
	Records  *records.Service
	Resolver *status.Resolver
	Writer   *status.Writer
	Hub      *broadcast.Hub
	Metrics  *metrics.Metrics
	Jobs     Jobs
	// Replier is optional; without it reply requests are rejected.
	Replier Replier
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID(logger.Component("api")))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealth)
	r.Get("/plans", s.handlePlans)
	r.Delete("/plans/{id}", s.handleDeletePlan)
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", s.handleConversations)
		r.Get("/{id}", s.handleConversation)
		r.Post("/{id}/messages", s.handleSendMessage)
		r.Delete("/{id}/messages", s.handleClearMessages)
		r.Get("/{id}/status", s.handleGetStatus)
		r.Put("/{id}/status", s.handlePutStatus)
	})
	r.Get("/events", s.handleEvents)
	r.Get("/jobs", s.handleJobs)
	r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Component("api").Info("API listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestID(lg *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			lg.Debug("request", "id", id, "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("writing response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, errorResponse{Error: fmt.Sprintf(format, args...)})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, records.ErrNotFound) {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	logger.Error("api storage error", "error", err)
	writeError(w, http.StatusInternalServerError, "storage error")
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": constants.Version})
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.Records.Plans.LoadAll(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if plans == nil {
		plans = []models.Plan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

type jobView struct {
	ID       string  `json:"id"`
	Tag      string  `json:"tag"`
	Periodic bool    `json:"periodic"`
	Interval float64 `json:"interval_seconds,omitempty"`
	State    string  `json:"state"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	out := []jobView{}
	if s.Jobs != nil {
		for _, j := range s.Jobs.Jobs() {
			v := jobView{ID: j.ID.String(), Tag: j.Tag, Periodic: j.Periodic, State: j.State.String()}
			if j.Periodic {
				v.Interval = j.Interval.Seconds()
			}
			out = append(out, v)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid plan id")
		return
	}
	if err := s.Records.DeletePlan(r.Context(), id, s.Writer); err != nil {
		writeStoreError(w, err)
		return
	}
	if s.Jobs != nil {
		s.Jobs.ForgetPlan(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

type conversationSummary struct {
	ID           int64         `json:"id"`
	Title        string        `json:"title"`
	PlanID       int64         `json:"plan_id"`
	Timestamp    time.Time     `json:"timestamp"`
	MessageCount int           `json:"message_count"`
	Status       models.Status `json:"status,omitempty"`
}

func summarize(convs []models.Conversation, st models.Status) []conversationSummary {
	out := make([]conversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationSummary{
			ID: c.ID, Title: c.Title, PlanID: c.PlanID, Timestamp: c.Timestamp,
			MessageCount: len(c.Messages), Status: st,
		})
	}
	return out
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	cats, err := s.Records.Conversations.Categorize(r.Context(), s.Resolver)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]conversationSummary{
		string(models.CategoryNotStarted): summarize(cats.NotStarted, models.StatusNotStarted),
		string(models.CategoryWorking):    summarize(cats.Working, models.StatusWorking),
		string(models.CategoryCompleted):  summarize(cats.Completed, models.StatusCompleted),
		string(models.CategoryNormal):     summarize(cats.Normal, ""),
	})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	conv, ok, err := s.Records.Conversations.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "conversation %d not found", id)
		return
	}
	if err := s.Records.Tracker.MarkOpened(r.Context(), id, s.Records.Clock.Now()); err != nil {
		logger.Warn("could not record conversation open", "conversation", id, "error", err)
	}
	if conv.Messages == nil {
		conv.Messages = []models.Message{}
	}
	writeJSON(w, http.StatusOK, conv)
}

type sendRequest struct {
	Text string `json:"text"`
	// Reply asks for an assistant answer before responding.
	Reply bool `json:"reply"`
}

type sendResponse struct {
	Message models.Message  `json:"message"`
	Reply   *models.Message `json:"reply,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.Reply && s.Replier == nil {
		writeError(w, http.StatusNotImplemented, "replies are not available")
		return
	}
	msg, count, err := s.Records.SendUserMessage(r.Context(), id, req.Text)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.publish(id, count)
	if !req.Reply {
		writeJSON(w, http.StatusCreated, msg)
		return
	}

	resp := sendResponse{Message: msg}
	out := s.Replier.Reply(r.Context(), id)
	switch {
	case out.StoreErr != nil:
		logger.Error("reply not stored", "conversation", id, "error", out.StoreErr)
		resp.Error = "reply could not be stored"
	default:
		resp.Reply = &out.Message
		if out.GenErr != nil {
			resp.Error = string(out.GenErr.Category)
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	if err := s.Records.ClearConversation(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	s.publish(id, 0)
	w.WriteHeader(http.StatusNoContent)
}

type statusBody struct {
	Status models.Status `json:"status"`
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	st, err := s.Resolver.Effective(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: st})
}

func (s *Server) handlePutStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var body statusBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	st, ok := models.ParseStatus(string(body.Status))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown status %q", body.Status)
		return
	}
	conv, found, err := s.Records.Conversations.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "conversation %d not found", id)
		return
	}
	if err := s.Writer.Set(r.Context(), conv.ID, conv.PlanID, st); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: st})
}

func (s *Server) publish(convID int64, count int) {
	if s.Hub != nil {
		s.Hub.Publish(broadcast.ConversationUpdated(convID, count, s.Records.Clock.Now()))
	}
}

package public

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

	"github.com/go-chi/chi/v5"

	"github.com/marcus/desk/internal/models"
	"github.com/marcus/desk/internal/state"
	"github.com/marcus/desk/internal/workflow"
)

// Server is the HTTP server for the shareable task links and web form.
type Server struct {
	config      Config
	state       *state.Store
	http        *http.Server
	rateLimiter *RateLimiter
	now         func() time.Time
	cancel      context.CancelFunc
}

// NewServer creates a Server over st.
func NewServer(cfg Config, st *state.Store) *Server {
	s := &Server{
		config:      cfg,
		state:       st,
		rateLimiter: NewRateLimiter(),
		now:         time.Now,
	}
	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start begins listening for HTTP requests (non-blocking). It returns the
// bound address.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.rateLimiter.runCleanup(ctx, 5*time.Minute)

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server", "err", err)
		}
	}()
	return ln.Addr().String(), nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.http.Shutdown(ctx)
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware, recoveryMiddleware, loggingMiddleware,
		corsMiddleware(s.config.AllowedOrigins), maxBytesMiddleware(1<<20))

	r.Get("/healthz", s.handleHealth)
	r.Get("/public-task", s.handleGetTask)
	r.Post("/public-task/confirm", s.handleConfirm)
	r.With(rateLimit(s.rateLimiter, s.config.RateLimitSubmit)).Post("/public-request", s.handleSubmit)
	return r
}

// TaskView is what a link holder may see of a task.
type TaskView struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Status       models.TaskStatus     `json:"status"`
	ClientName   string                `json:"clientName,omitempty"`
	Address      string                `json:"address,omitempty"`
	Deadline     string                `json:"deadline,omitempty"`
	Engineer     string                `json:"engineer,omitempty"`
	History      []models.HistoryEntry `json:"history"`
	Attachments  []string              `json:"attachments,omitempty"`
	Confirmation *models.Confirmation  `json:"clientConfirmation,omitempty"`
	CanConfirm   bool                  `json:"canConfirm"`
}

func (s *Server) view(t models.Task) TaskView {
	v := TaskView{
		ID:           t.ID,
		Title:        t.Title,
		Status:       t.Status,
		ClientName:   t.ClientName,
		Address:      t.Address,
		Deadline:     t.Deadline,
		History:      t.History,
		Attachments:  t.Attachments,
		Confirmation: t.ClientConfirmation,
		CanConfirm:   t.Status == models.TaskStatusCompleted && !t.IsConfirmed(),
	}
	if v.History == nil {
		v.History = []models.HistoryEntry{}
	}
	if t.EngineerID != "" {
		if u, ok := s.state.User(t.EngineerID); ok {
			v.Engineer = u.Name
		}
	}
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t, err := Lookup(s.state.Tasks(), q.Get("id"), q.Get("token"))
	if err != nil {
		fail(w, http.StatusNotFound, "task not found")
		return
	}
	respond(w, http.StatusOK, s.view(t))
}

type confirmRequest struct {
	Rating int `json:"rating"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	// the body is optional
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	q := r.URL.Query()
	t, err := Confirm(s.state, q.Get("id"), q.Get("token"), req.Rating, s.now())
	switch {
	case errors.Is(err, ErrNotFound):
		fail(w, http.StatusNotFound, "task not found")
		return
	case errors.Is(err, workflow.ErrAlreadyConfirmed), errors.Is(err, workflow.ErrNotCompleted):
		fail(w, http.StatusConflict, err.Error())
		return
	case err != nil && t.ID == "":
		logFor(r.Context()).Error("confirm task", "err", err)
		fail(w, http.StatusInternalServerError, "failed to confirm task")
		return
	case err != nil:
		// in-memory state is confirmed; the mirror write will be retried
		logFor(r.Context()).Error("confirm task: persist", "task", t.ID, "err", err)
	}
	logFor(r.Context()).Info("task confirmed", "task", t.ID, "rating", t.ClientConfirmation.Rating)
	respond(w, http.StatusOK, s.view(t))
}

type submitResponse struct {
	ID    string `json:"id"`
	Token string `json:"token"`
	Link  string `json:"link"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	t, err := SubmitRequest(s.state, req, s.now())
	switch {
	case errors.Is(err, ErrInvalidRequest):
		fail(w, http.StatusBadRequest, err.Error())
		return
	case err != nil && t.ID == "":
		logFor(r.Context()).Error("submit request", "err", err)
		fail(w, http.StatusInternalServerError, "failed to submit request")
		return
	case err != nil:
		logFor(r.Context()).Error("submit request: persist", "task", t.ID, "err", err)
	}
	logFor(r.Context()).Info("request submitted", "task", t.ID, "kind", req.Kind)
	respond(w, http.StatusCreated, submitResponse{
		ID:    t.ID,
		Token: t.PublicToken,
		Link:  StatusLink(s.config.BaseURL, t),
	})
}

package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/AutoPoster/internal/database"
	"github.com/TobiSchelling/AutoPoster/internal/metrics"
	"github.com/TobiSchelling/AutoPoster/internal/report"
)

var log = logrus.WithField("component", "server")

// Runner performs one dispatch tick.
type Runner interface {
	RunOnce(ctx context.Context) (*report.RunResult, error)
}

// Store is the persistence behind the post endpoints.
type Store interface {
	GetAccount(ctx context.Context, accountID int64) (*database.Account, error)
	InsertPost(ctx context.Context, p database.NewPost) (int64, error)
	GetPost(ctx context.Context, postID int64) (*database.Post, error)
	ListPostsForAccount(ctx context.Context, accountID int64, limit int) ([]database.Post, error)
}

// Server is the HTTP surface: the cron trigger plus post scheduling.
type Server struct {
	store    Store
	runner   Runner
	secret   string
	validate *validator.Validate
	mux      *http.ServeMux
}

// New creates a Server. An empty secret disables every authorized route.
func New(store Store, runner Runner, secret string) *Server {
	s := &Server{
		store:    store,
		runner:   runner,
		secret:   secret,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.Handle("GET /run", metrics.Instrument("/run", s.authorized(s.handleRun)))
	s.mux.Handle("POST /run", metrics.Instrument("/run", s.authorized(s.handleRun)))
	s.mux.Handle("POST /posts", metrics.Instrument("/posts", s.authorized(s.handleCreatePost)))
	s.mux.Handle("GET /posts", metrics.Instrument("/posts", s.authorized(s.handleListPosts)))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())
}

// authorized accepts "Authorization: Bearer <secret>" or "X-Cron-Secret".
func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.secret == "" {
			writeError(w, http.StatusServiceUnavailable, "server secret is not configured")
			return
		}
		token := r.Header.Get("X-Cron-Secret")
		if auth := r.Header.Get("Authorization"); token == "" && strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	result, err := s.runner.RunOnce(r.Context())
	if result == nil {
		result = &report.RunResult{}
	}
	env := report.NewEnvelope(result, err)
	if err != nil {
		log.WithError(err).WithField("run_id", result.RunID).Error("Run failed")
		writeJSON(w, http.StatusInternalServerError, env)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

type createPostRequest struct {
	AccountID   int64     `json:"account_id" validate:"required,gt=0"`
	Content     string    `json:"content" validate:"required,max=5000"`
	Hashtags    []string  `json:"hashtags" validate:"max=30,dive,startswith=#,min=2"`
	MediaURLs   []string  `json:"media_urls" validate:"max=10,dive,url"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

type postView struct {
	ID             int64      `json:"id"`
	AccountID      int64      `json:"account_id"`
	Platform       string     `json:"platform"`
	Content        string     `json:"content"`
	Hashtags       []string   `json:"hashtags"`
	MediaURLs      []string   `json:"media_urls"`
	Status         string     `json:"status"`
	Origin         string     `json:"origin"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
	ExternalPostID *string    `json:"external_post_id,omitempty"`
	PostURL        *string    `json:"post_url,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	PredictedScore *float64   `json:"predicted_score,omitempty"`
}

func newPostView(p database.Post) postView {
	v := postView{
		ID:             p.ID,
		AccountID:      p.AccountID,
		Platform:       string(p.Platform),
		Content:        p.Content,
		Hashtags:       p.Hashtags,
		MediaURLs:      p.MediaURLs,
		Status:         string(p.Status),
		Origin:         string(p.Origin),
		ScheduledAt:    p.ScheduledAt,
		PostedAt:       p.PostedAt,
		ExternalPostID: p.ExternalPostID,
		PostURL:        p.PostURL,
		ErrorMessage:   p.ErrorMessage,
		PredictedScore: p.PredictedScore,
	}
	if v.Hashtags == nil {
		v.Hashtags = []string{}
	}
	if v.MediaURLs == nil {
		v.MediaURLs = []string{}
	}
	return v
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, validationMessage(err))
		return
	}

	ctx := r.Context()
	account, err := s.store.GetAccount(ctx, req.AccountID)
	if err != nil {
		log.WithError(err).Error("Loading account")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if !account.IsActive {
		writeError(w, http.StatusConflict, "account inactive")
		return
	}

	scheduledAt := req.ScheduledAt.UTC()
	id, err := s.store.InsertPost(ctx, database.NewPost{
		AccountID:   account.ID,
		Platform:    account.Platform,
		Content:     req.Content,
		Hashtags:    req.Hashtags,
		MediaURLs:   req.MediaURLs,
		Status:      database.StatusScheduled,
		Origin:      database.OriginManual,
		ScheduledAt: &scheduledAt,
	})
	if err != nil {
		log.WithError(err).Error("Inserting post")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	post, err := s.store.GetPost(ctx, id)
	if err != nil || post == nil {
		log.WithError(err).WithField("post_id", id).Error("Reloading post")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	log.WithFields(logrus.Fields{
		"post_id":      id,
		"account_id":   account.ID,
		"scheduled_at": database.FormatTime(scheduledAt),
	}).Info("Scheduled post")
	writeJSON(w, http.StatusCreated, newPostView(*post))
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(r.URL.Query().Get("account_id"), 10, 64)
	if err != nil || accountID <= 0 {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	posts, err := s.store.ListPostsForAccount(r.Context(), accountID, limit)
	if err != nil {
		log.WithError(err).Error("Listing posts")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	views := make([]postView, 0, len(posts))
	for _, p := range posts {
		views = append(views, newPostView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": views})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("Writing response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("Server listening")
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

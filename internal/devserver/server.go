package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pamana/notes/internal/auth"
	"pamana/notes/internal/config"
	"pamana/notes/internal/logging"
	"pamana/notes/internal/model"
	"pamana/notes/internal/visibility"
)

// Server is a small backend speaking the same paths and payloads as the
// campus notes service. It exists so the client packages can be run and
// tested end to end.
type Server struct {
	cfg      config.Config
	repo     Repository
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logging.OrDefault(logger) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func NewServer(cfg config.Config, repo Repository, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		repo:   repo,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.logger)
	return s
}

// Close drops every live comment stream.
func (s *Server) Close() {
	s.hub.Close()
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/accounts/api/auth/token/", s.handleToken)
	r.Post("/accounts/api/auth/token/refresh/", s.handleRefresh)

	r.Route("/notes/api", func(r chi.Router) {
		r.Get("/public/", s.handlePublicNotes)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/subjects/", s.handleListSubjects)

			r.With(s.requireReviewer).Get("/pending/", s.handlePending)
			r.With(s.requireReviewer).Get("/moderated/", s.handleModerated)
			r.With(s.requireReviewer).Post("/approve/{id}/", s.handleApprove)
			r.With(s.requireReviewer).Post("/reject/{id}/", s.handleReject)

			r.Get("/student/dashboard/", s.handleDashboard)
			r.Post("/student/upload/", s.handleUpload)
			r.Get("/student/my-notes/", s.handleMyNotes)
			r.Patch("/student/notes/{id}/", s.handleUpdateNote)
			r.Delete("/student/notes/{id}/", s.handleDeleteNote)
			r.Get("/student/saved/", s.handleSaved)

			r.Post("/notes/{id}/like/", s.handleToggleNoteLike)
			r.Post("/notes/{id}/save/", s.handleToggleSave)
			r.Get("/notes/{id}/comments/", s.handleNoteComments)
			r.Post("/notes/{id}/comments/", s.handleCreateNoteComment)
		})
	})

	r.Route("/api/wall", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/posts/", s.handleListPosts)
		r.Post("/posts/", s.handleCreatePost)
		r.Post("/posts/{id}/like/", s.handleLikePost)
		r.Delete("/posts/{id}/delete/", s.handleDeletePost)
		r.Post("/comments/", s.handleCreateWallComment)
		r.Post("/comments/{id}/like/", s.handleLikeComment)
		r.Delete("/comments/{id}/delete/", s.handleDeleteWallComment)
		r.Post("/comments/{id}/report/", s.handleReport)
	})

	r.Get("/ws/notes/{id}/comments/", s.handleCommentStream)

	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireReviewer lets moderators and admins through.
func (s *Server) requireReviewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if _, err := visibility.QueueScope(roleOf(claims), courseOf(claims)); err != nil {
			writeError(w, http.StatusForbidden, "moderator_only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func roleOf(claims *auth.Claims) model.Role {
	if claims == nil {
		return model.RoleUnknown
	}
	return claims.ResolvedRole()
}

func courseOf(claims *auth.Claims) string {
	if claims == nil {
		return ""
	}
	return claims.Course
}

func viewerOf(claims *auth.Claims) visibility.Viewer {
	if claims == nil {
		return visibility.Viewer{}
	}
	return visibility.Viewer{
		Authenticated: true,
		SchoolID:      claims.SchoolID,
		Course:        claims.Course,
		Role:          claims.ResolvedRole(),
	}
}

func isStaff(claims *auth.Claims) bool {
	role := roleOf(claims)
	return role == model.RoleModerator || role == model.RoleAdmin
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

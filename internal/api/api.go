// Package api exposes the blog and its editor over HTTP as a JSON API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/atelier/internal/auth"
	"github.com/debemdeboas/atelier/internal/config"
	"github.com/debemdeboas/atelier/internal/editor"
	"github.com/debemdeboas/atelier/internal/media"
	"github.com/debemdeboas/atelier/internal/model"
	"github.com/debemdeboas/atelier/internal/repository"
	"github.com/debemdeboas/atelier/internal/routes"
	"github.com/debemdeboas/atelier/internal/sse"
)

var apiLogger zerolog.Logger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	apiLogger = l
}

// SettingsStore is the settings repository plus first-read seeding.
type SettingsStore interface {
	repository.SettingsRepository
	EnsureSettings(ctx context.Context) (*model.SiteSettings, error)
}

type Options struct {
	AdminUserID  model.UserID
	SyntaxTheme  string
	PostsPerPage int
	MaxPageSize  int
	LivePreview  bool
}

type Deps struct {
	Posts     repository.PostRepository
	Settings  SettingsStore
	Workspace *editor.Workspace
	Ingestor  *media.Ingestor
	Auth      auth.AuthProvider
	Sessions  *auth.Sessions
	Clients   *sse.SSEClients
}

type Server struct {
	Deps
	opts Options
}

func New(deps Deps, opts Options) *Server {
	if opts.PostsPerPage <= 0 {
		opts.PostsPerPage = 10
	}
	if opts.MaxPageSize < opts.PostsPerPage {
		opts.MaxPageSize = max(100, opts.PostsPerPage)
	}
	if opts.SyntaxTheme == "" {
		opts.SyntaxTheme = "gruvbox"
	}
	if deps.Clients == nil {
		deps.Clients = sse.NewSSEClients()
	}
	return &Server{Deps: deps, opts: opts}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+routes.APIPosts, s.handleListPosts)
	mux.HandleFunc("GET "+routes.APIPost, s.handleGetPost)
	mux.HandleFunc("GET "+routes.APISettings, s.handleGetSettings)
	mux.HandleFunc("PUT "+routes.APISettings, s.admin(s.handlePutSettings))

	mux.HandleFunc("GET "+routes.APIAdminPosts, s.admin(s.handleAdminListPosts))
	mux.HandleFunc("DELETE "+routes.APIAdminPost, s.admin(s.handleDeletePost))

	mux.HandleFunc("POST "+routes.EditorSession, s.admin(s.handleOpenSession))
	mux.HandleFunc("GET "+routes.EditorSession, s.admin(s.handleGetSession))
	mux.HandleFunc("DELETE "+routes.EditorSession, s.admin(s.handleCloseSession))
	mux.HandleFunc("PATCH "+routes.EditorFields, s.admin(s.handleUpdateField))
	mux.HandleFunc("POST "+routes.EditorTags, s.admin(s.handleAddTag))
	mux.HandleFunc("DELETE "+routes.EditorTag, s.admin(s.handleRemoveTag))
	mux.HandleFunc("POST "+routes.EditorSave, s.admin(s.handleSave))
	mux.HandleFunc("POST "+routes.EditorRecover, s.admin(s.handleRecover))
	mux.HandleFunc("POST "+routes.EditorImages, s.admin(s.handleUploadImage))
	mux.HandleFunc("GET "+routes.EditorImages, s.admin(s.handleListImages))
	mux.HandleFunc("POST "+routes.EditorResize, s.admin(s.handleResize))
	mux.HandleFunc("POST "+routes.EditorWrap, s.admin(s.handleWrap))
	mux.HandleFunc("POST "+routes.EditorInsert, s.admin(s.handleInsert))
	mux.HandleFunc("POST "+routes.EditorTOCObserve, s.admin(s.handleObserveTOC))

	mux.HandleFunc("GET "+routes.Mode, s.handleGetMode)
	mux.HandleFunc("POST "+routes.ModeEdit, s.admin(s.handleRequestEdit))

	mux.HandleFunc("POST "+routes.PartialsDraftPreview, s.admin(s.handlePreview))
	mux.HandleFunc("GET "+routes.SyntaxCSS, s.handleSyntaxCSS)
	mux.HandleFunc("GET "+routes.SSEPath, s.handleEvents)
}

type userKey struct{}

// admin wraps h so it only runs for the configured administrator. A live
// sign-in session is started when the provider authenticated the request
// without one.
func (s *Server) admin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.Auth.EnforceUserAndGetID(w, r)
		if err != nil {
			return
		}
		if s.opts.AdminUserID != "" && userID != s.opts.AdminUserID {
			zerolog.Ctx(r.Context()).Warn().Str("user_id", string(userID)).Msg("Non-administrator on admin route")
			writeError(w, r, editor.ErrReadOnly)
			return
		}

		switch {
		case s.Sessions == nil:
			s.Workspace.Mode().SetAdministrator(true)
		case s.Sessions.Current() == nil:
			s.Sessions.SignIn(userID)
		}

		h(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
	}
}

func requestUser(r *http.Request) model.UserID {
	id, _ := r.Context().Value(userKey{}).(model.UserID)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		apiLogger.Warn().Err(err).Msg("Error encoding response")
	}
}

var errBadJSON = fmt.Errorf("%w: malformed request body", editor.ErrValidation)

const maxJSONBody = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return nil
}

// page reads page and page_size, clamping the size to the configured bound.
func (s *Server) page(r *http.Request) (int, int) {
	q := r.URL.Query()
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(q.Get("page_size"))
	if err != nil || size < 1 {
		size = s.opts.PostsPerPage
	}
	return page, min(size, s.opts.MaxPageSize)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// classify maps an error to its HTTP status and kind. Order matters: save
// and upload errors wrap their cause.
func classify(err error) (int, string) {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, media.ErrFileTooLarge), errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge, "file_too_large"
	case errors.Is(err, media.ErrInvalidType):
		return http.StatusBadRequest, "invalid_type"
	case errors.Is(err, editor.ErrUnknownField):
		return http.StatusBadRequest, "unknown_field"
	case errors.Is(err, editor.ErrSlugImmutable):
		return http.StatusBadRequest, "slug_immutable"
	case errors.Is(err, editor.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, auth.ErrNoUser):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, editor.ErrReadOnly):
		return http.StatusForbidden, "read_only"
	case errors.Is(err, editor.ErrSessionClosed):
		return http.StatusConflict, "session_closed"
	case errors.Is(err, repository.ErrSlugTaken):
		return http.StatusConflict, "slug_taken"
	case errors.Is(err, media.ErrUpload):
		return http.StatusBadGateway, "upload"
	case errors.Is(err, editor.ErrSave):
		return http.StatusBadGateway, "save"
	case errors.Is(err, repository.ErrFetch):
		return http.StatusBadGateway, "fetch"
	case errors.Is(err, editor.ErrNoSession):
		return http.StatusNotFound, "no_session"
	case errors.Is(err, editor.ErrSnapshotNotFound):
		return http.StatusNotFound, "no_snapshot"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)

	l := zerolog.Ctx(r.Context())
	ev := l.Debug()
	if status >= http.StatusInternalServerError {
		ev = l.Error()
	}
	ev.Err(err).Int("status", status).Str("kind", kind).Str("path", r.URL.Path).Msg("Request failed")

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = config.ErrInternalServerError
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

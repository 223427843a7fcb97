package api

import (
	"net/http"
	"strings"

	"github.com/debemdeboas/atelier/internal/model"
	"github.com/debemdeboas/atelier/internal/outline"
	"github.com/debemdeboas/atelier/internal/render"
	"github.com/debemdeboas/atelier/internal/repository"
)

type postPage struct {
	Posts    []model.Post `json:"posts"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request, status model.PostStatus) {
	page, size := s.page(r)
	posts, total, err := s.Posts.ListPosts(r.Context(), repository.ListFilter{
		Status:   status,
		Category: r.URL.Query().Get("category"),
		Search:   strings.TrimSpace(r.URL.Query().Get("q")),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, postPage{Posts: posts, Total: total, Page: page, PageSize: size})
}

// handleListPosts is the public feed: published posts only, newest first.
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	s.listPosts(w, r, model.StatusPublished)
}

// handleAdminListPosts includes drafts unless ?status narrows it.
func (s *Server) handleAdminListPosts(w http.ResponseWriter, r *http.Request) {
	var status model.PostStatus
	if v := r.URL.Query().Get("status"); v != "" {
		status = model.ParsePostStatus(v)
	}
	s.listPosts(w, r, status)
}

type postView struct {
	Post *model.Post       `json:"post"`
	HTML string            `json:"html"`
	TOC  []outline.TOCItem `json:"toc"`
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.Posts.GetPostBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !post.IsPublished() {
		writeError(w, r, repository.ErrNotFound)
		return
	}

	rc := render.RenderCached([]byte(post.Body), s.syntaxTheme(r))
	writeJSON(w, http.StatusOK, postView{
		Post: post,
		HTML: string(rc.HTML),
		TOC:  outline.Project(rc.Headings),
	})
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id := model.PostID(r.PathValue("id"))
	if err := s.Posts.DeletePost(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.Settings.EnsureSettings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var patch model.SettingsPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}

	settings, err := s.Settings.UpsertSettings(r.Context(), patch, requestUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/debemdeboas/atelier/internal/editor"
	"github.com/debemdeboas/atelier/internal/media"
	"github.com/debemdeboas/atelier/internal/model"
	"github.com/debemdeboas/atelier/internal/outline"
)

type sessionView struct {
	Draft    editor.Draft      `json:"draft"`
	State    editor.State      `json:"state"`
	TOC      []outline.TOCItem `json:"toc"`
	Active   string            `json:"active,omitempty"`
	Pending  bool              `json:"autosave_pending"`
	Recovery *editor.Snapshot  `json:"recovery,omitempty"`
}

func (s *Server) view(sess *editor.Session) sessionView {
	active, _ := sess.TOC().Active()
	return sessionView{
		Draft:   sess.Draft(),
		State:   sess.State(),
		TOC:     sess.TOC().Items(),
		Active:  active,
		Pending: s.Workspace.Pending(),
	}
}

// edit runs f against the active session and answers with the session
// view, or with the mapped error.
func (s *Server) edit(w http.ResponseWriter, r *http.Request, f func(*editor.Session) (any, error)) {
	var extra any
	var sess *editor.Session
	err := s.Workspace.Edit(func(es *editor.Session) error {
		sess = es
		var err error
		extra, err = f(es)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if extra == nil {
		writeJSON(w, http.StatusOK, s.view(sess))
		return
	}
	writeJSON(w, http.StatusOK, struct {
		sessionView
		Result any `json:"result"`
	}{s.view(sess), extra})
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PostID model.PostID `json:"post_id"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}

	sess, snap, err := s.Workspace.Open(r.Context(), requestUser(r), req.PostID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	v := s.view(sess)
	v.Recovery = snap
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Workspace.Session()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(sess))
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Workspace.Close(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field editor.Field `json:"field"`
		Value string       `json:"value"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.edit(w, r, func(sess *editor.Session) (any, error) {
		return nil, sess.UpdateField(req.Field, req.Value)
	})
}

func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tag string `json:"tag"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.edit(w, r, func(sess *editor.Session) (any, error) {
		return nil, sess.AddTag(req.Tag)
	})
}

func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("tag")
	s.edit(w, r, func(sess *editor.Session) (any, error) {
		removed, err := sess.RemoveTag(tag)
		return map[string]bool{"removed": removed}, err
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	s.edit(w, r, func(sess *editor.Session) (any, error) {
		saved, err := sess.Save(r.Context())
		return map[string]bool{"saved": saved}, err
	})
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	s.edit(w, r, func(sess *editor.Session) (any, error) {
		d := sess.Draft()
		snap, err := s.Workspace.Snapshots().GetSnapshot(editor.SnapshotKey(&d))
		if err != nil {
			return nil, err
		}
		return nil, sess.Recover(snap)
	})
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text   string         `json:"text"`
		Cursor *editor.Cursor `json:"cursor"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.edit(w, r, func(sess *editor.Session) (any, error) {
		c, err := sess.InsertAtCursor(req.Text, req.Cursor)
		return map[string]editor.Cursor{"cursor": c}, err
	})
}

func (s *Server) handleWrap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Before string `json:"before"`
		After  string `json:"after"`
		Start  int    `json:"start"`
		End    int    `json:"end"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.edit(w, r, func(sess *editor.Session) (any, error) {
		c, err := sess.WrapSelection(req.Before, req.After, editor.Cursor{Start: req.Start, End: req.End})
		return map[string]editor.Cursor{"cursor": c}, err
	})
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL    string `json:"url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.edit(w, r, func(sess *editor.Session) (any, error) {
		changed, err := sess.ResizeImage(req.URL, req.Width, req.Height)
		return map[string]bool{"changed": changed}, err
	})
}

func (s *Server) handleObserveTOC(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ViewportHeight float64                `json:"viewport_height"`
		Entries        []outline.Intersection `json:"entries"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	// Scrolling is allowed in view mode too, so this skips the edit gate.
	sess, err := s.Workspace.Session()
	if err != nil {
		writeError(w, r, err)
		return
	}
	active, ok := sess.TOC().Observe(outline.Viewport{Height: req.ViewportHeight}, req.Entries)
	writeJSON(w, http.StatusOK, struct {
		Active string            `json:"active"`
		Found  bool              `json:"found"`
		TOC    []outline.TOCItem `json:"toc"`
	}{active, ok, sess.TOC().Items()})
}

// multipartOverhead is the room left for form fields around the file.
const multipartOverhead = 1 << 20

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.Ingestor.MaxUploadSize()+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, r, media.ErrFileTooLarge)
			return
		}
		writeError(w, r, errBadJSON)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, errBadJSON)
		return
	}
	defer file.Close()

	target, err := media.ParseTarget(r.FormValue("target"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var cursor *editor.Cursor
	if v := r.FormValue("cursor_start"); v != "" {
		start, err1 := strconv.Atoi(v)
		end, err2 := strconv.Atoi(r.FormValue("cursor_end"))
		if err1 != nil {
			writeError(w, r, errBadJSON)
			return
		}
		if err2 != nil {
			end = start
		}
		cursor = &editor.Cursor{Start: start, End: end}
	}

	up := media.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
		Alt:         r.FormValue("alt"),
	}

	s.edit(w, r, func(sess *editor.Session) (any, error) {
		return s.Ingestor.Ingest(r.Context(), sess, up, target, cursor)
	})
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Workspace.Session()
	if err != nil {
		writeError(w, r, err)
		return
	}
	objs, err := s.Ingestor.List(r.Context(), sess.PostID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": objs})
}

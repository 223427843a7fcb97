package api

import (
	"net/http"

	"github.com/debemdeboas/atelier/internal/auth"
	"github.com/debemdeboas/atelier/internal/editor"
)

type modeView struct {
	editor.Mode
	Session *auth.Session `json:"session,omitempty"`
}

func (s *Server) modeView() modeView {
	v := modeView{Mode: s.Workspace.Mode().Mode()}
	if s.Sessions != nil {
		v.Session = s.Sessions.Current()
	}
	return v
}

func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.modeView())
}

func (s *Server) handleRequestEdit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	s.Workspace.Mode().RequestEdit(req.Enabled)
	writeJSON(w, http.StatusOK, s.modeView())
}

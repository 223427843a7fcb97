package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/debemdeboas/atelier/internal/config"
	"github.com/debemdeboas/atelier/internal/editor"
	"github.com/debemdeboas/atelier/internal/model"
	"github.com/debemdeboas/atelier/internal/routes"
	"github.com/debemdeboas/atelier/internal/sse"
)

// handleEvents streams a topic. Post topics are public; the editor topic
// carries session state and is admin only.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	switch {
	case topic == routes.TopicEditor:
		s.admin(s.stream(topic))(w, r)
	case strings.HasPrefix(topic, routes.TopicPostPrefix) && len(topic) > len(routes.TopicPostPrefix):
		s.stream(topic)(w, r)
	default:
		http.Error(w, "topic parameter required", http.StatusBadRequest)
	}
}

func (s *Server) stream(topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set(config.HCType, config.CTypeEventStream)
		w.Header().Set(config.HCacheControl, "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Del("X-Content-Type-Options")

		fmt.Fprintf(w, "event: connected\ndata: %s\n\n", topic)
		flusher.Flush()

		client := sse.NewClient(topic)
		s.Clients.Add(client)
		apiLogger.Debug().Str("topic", topic).Msg("SSE client connected")

		defer func() {
			s.Clients.Delete(client)
			apiLogger.Debug().Str("topic", topic).Msg("SSE client disconnected")
		}()

		done := r.Context().Done()
		for {
			select {
			case msg := <-client.Msg:
				fmt.Fprintf(w, "data: %s\n\n", msg)
				flusher.Flush()
			case <-done:
				return
			}
		}
	}
}

// NotifyEditor forwards a workspace event to editor subscribers.
func (s *Server) NotifyEditor(e editor.Event) {
	b, err := json.Marshal(e)
	if err != nil {
		apiLogger.Warn().Err(err).Msg("Error encoding editor event")
		return
	}
	s.Clients.Broadcast(routes.TopicEditor, string(b))
}

// NotifyPostChanged tells readers of a post to reload it.
func (s *Server) NotifyPostChanged(id model.PostID) {
	s.Clients.Broadcast(routes.TopicPostPrefix+string(id), "reload")
}

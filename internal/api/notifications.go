package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListNotifications returns the caller's inbox, newest first.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q, "page")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	limit, err := intParam(q, "limit")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	inbox, err := s.inbox.ListForUser(r.Context(), userID(r), page, limit)
	if err != nil {
		s.writeDomainError(w, r, err, "listing notifications")
		return
	}
	writeJSON(w, http.StatusOK, inbox)
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.inbox.UnreadCount(r.Context(), userID(r))
	if err != nil {
		s.writeDomainError(w, r, err, "counting notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.inbox.MarkAllRead(r.Context(), userID(r))
	if err != nil {
		s.writeDomainError(w, r, err, "marking notifications read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// handleMarkRead marks one inbox item read. The id is the inbox item id,
// not the notification id.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.inbox.MarkRead(r.Context(), chi.URLParam(r, "id"), userID(r)); err != nil {
		s.writeDomainError(w, r, err, "marking notification read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.inbox.DeleteForUser(r.Context(), chi.URLParam(r, "id"), userID(r)); err != nil {
		s.writeDomainError(w, r, err, "deleting notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

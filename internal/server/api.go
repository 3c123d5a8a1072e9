package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/omochice/realtime-chat/internal/auth"
	"github.com/omochice/realtime-chat/internal/chat"
	"github.com/omochice/realtime-chat/pkg/protocol"
)

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Online      int    `json:"online"`
}

// handleEmit pushes a server-side event to the live connections of members.
func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	if _, err := s.hub.Authenticate(r.Context(), auth.CredentialFromRequest(r)); err != nil {
		s.log.Warn("Events API request rejected", "remote_addr", r.RemoteAddr, "error", err)
		writeJSON(w, http.StatusUnauthorized, apiResponse{Message: "unauthorized"})
		return
	}

	var req protocol.EmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventsRequestSize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Message: "invalid request body"})
		return
	}
	if err := protocol.Validate(req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Message: err.Error()})
		return
	}
	if !req.Event.ServerSide() {
		writeJSON(w, http.StatusBadRequest, apiResponse{Message: fmt.Sprintf("%s: %v", req.Event, protocol.ErrUnknownEvent)})
		return
	}

	s.hub.Router().EmitToIdentities(chat.Identities(req.Members), req.Event, req.Data)
	writeJSON(w, http.StatusAccepted, apiResponse{Success: true, Message: "event accepted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Connections: s.hub.Registry().Len(),
		Online:      len(s.hub.Presence().Snapshot()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

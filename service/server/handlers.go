package server

import (
	"errors"
	"net/http"

	"courier/service/delivery"
	"courier/service/host"
	"courier/service/lifecycle"
	"courier/service/payload"
	"courier/service/util"
)

type receiptResponse struct {
	ID          string `json:"id,omitempty"`
	MessageType string `json:"messageType,omitempty"`
	Shown       bool   `json:"shown"`
	KeepAlive   bool   `json:"keepAlive"`
	Delivered   bool   `json:"delivered"`
}

type outcomeResponse struct {
	Path     delivery.Path `json:"path"`
	Kind     string        `json:"kind"`
	Launched bool          `json:"launched"`
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var raw payload.RawPayload
	if err := util.DecodeJSON(w, r, &raw); err != nil {
		util.JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rc, err := s.app.OnMessageReceived(r.Context(), raw)
	if err != nil {
		s.entryPointError(w, "Failed to handle push", err)
		return
	}
	if rc.ID == "" {
		util.JSON(w, http.StatusAccepted, map[string]string{"status": "dropped"})
		return
	}

	util.JSON(w, http.StatusAccepted, receiptResponse{
		ID:          rc.ID,
		MessageType: string(rc.MessageType),
		Shown:       rc.Show,
		KeepAlive:   rc.KeepAlive,
		Delivered:   rc.Delivered,
	})
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var in delivery.Interaction
	if err := util.DecodeJSON(w, r, &in); err != nil {
		util.JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := s.app.OnInteraction(r.Context(), in)
	if errors.Is(err, delivery.ErrInvalidInteraction) {
		util.JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.entryPointError(w, "Failed to route interaction", err)
		return
	}

	util.JSON(w, http.StatusOK, outcomeResponse{
		Path:     out.Path,
		Kind:     out.Kind.String(),
		Launched: out.Launched,
	})
}

type lifecycleRequest struct {
	State string `json:"state"`
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	var req lifecycleRequest
	if err := util.DecodeJSON(w, r, &req); err != nil {
		util.JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	l := lifecycle.ParseLiveness(req.State)
	if l.String() != req.State {
		util.JSONError(w, "state must be foreground, background or unknown", http.StatusBadRequest)
		return
	}

	s.app.Lifecycle.Set(l)
	s.logger.Debug("Application liveness changed", "state", l.String())
	util.JSON(w, http.StatusOK, map[string]string{"state": l.String()})
}

func (s *Server) handleTaskRemoved(w http.ResponseWriter, r *http.Request) {
	resumed := s.app.OnTaskRemoved(r.Context())
	util.JSON(w, http.StatusOK, map[string]bool{"resumed": resumed})
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := util.DecodeJSON(w, r, &req); err != nil {
		util.JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		util.JSONError(w, "token is required", http.StatusBadRequest)
		return
	}

	if err := s.app.OnNewToken(r.Context(), req.Token); err != nil {
		s.entryPointError(w, "Failed to forward token", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	ids, err := s.app.Surface.Active(r.Context())
	if err != nil {
		util.LogAndError(w, s.logger, "Failed to list notifications", http.StatusInternalServerError, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	util.JSON(w, http.StatusOK, map[string][]string{"active": ids})
}

// entryPointError answers for an entry point failure. The app has already
// reported it to the crash sink, so a panic is not logged twice.
func (s *Server) entryPointError(w http.ResponseWriter, msg string, err error) {
	if !errors.Is(err, host.ErrEntryPointFailed) {
		s.logger.Warn(msg, "error", err)
	}
	util.JSONError(w, msg, http.StatusInternalServerError)
}

// File: internal/server/handlers.go
package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/auth"
	"github.com/xkilldash9x/voicepilot/internal/channel"
	"github.com/xkilldash9x/voicepilot/internal/engine"
	"github.com/xkilldash9x/voicepilot/internal/executor"
	"github.com/xkilldash9x/voicepilot/internal/turn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SessionInfo describes a live session.
type SessionInfo struct {
	ID     string     `json:"id"`
	Route  string     `json:"route"`
	Status string     `json:"status"`
	Turn   turn.State `json:"turn"`
}

type mountedResponse struct {
	Resumed *executor.Result `json:"resumed,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleVoice attaches an audio channel. With ?session=<id> it resumes an
// existing session; otherwise a new one is opened and closed again when the
// channel goes away.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	ctx := r.Context()

	var (
		sess  *engine.Session
		owned bool
		err   error
	)
	if id := r.URL.Query().Get("session"); id != "" {
		if sess, err = s.engine.Lookup(id, user); err != nil {
			s.respondWithError(w, err)
			return
		}
	} else {
		if sess, err = s.engine.Open(ctx, user, nil); err != nil {
			s.logger.Error("Failed to open session", zap.String("user_id", user), zap.Error(err))
			s.respond(w, http.StatusInternalServerError, errorResponse{Error: "could not open a session"})
			return
		}
		owned = true
	}

	conn, err := channel.Accept(w, r, s.upgrader, sess.ID(), s.logger)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		if owned {
			_ = s.engine.Close(ctx, sess.ID())
		}
		return
	}
	if err := sess.Attach(conn); err != nil {
		s.logger.Info("Refusing audio channel", zap.String("session_id", sess.ID()), zap.Error(err))
		_ = conn.Display(err.Error())
		conn.Close()
		_ = conn.Run(ctx, channel.HandlerFunc(func(channel.Inbound) {}))
		return
	}

	runErr := conn.Run(ctx, sess)
	sess.Detach(runErr)
	if owned && runErr == nil {
		if err := s.engine.Close(ctx, sess.ID()); err != nil && !errors.Is(err, engine.ErrSessionNotFound) {
			s.logger.Warn("Failed to close session", zap.String("session_id", sess.ID()), zap.Error(err))
		}
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	out := []SessionInfo{}
	for _, sess := range s.engine.Sessions(user) {
		out = append(out, SessionInfo{ID: sess.ID(), Route: sess.Route(), Status: sess.Status(), Turn: sess.TurnState()})
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.Snapshot(r.Context())
	if err != nil {
		s.logger.Error("Failed to capture snapshot", zap.String("session_id", sess.ID()), zap.Error(err))
		s.respond(w, http.StatusInternalServerError, errorResponse{Error: "could not capture the page"})
		return
	}
	s.respond(w, http.StatusOK, snap)
}

func (s *Server) handleMounted(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	res, err := sess.PageMounted(r.Context())
	if err != nil {
		s.logger.Error("Failed to process page mount", zap.String("session_id", sess.ID()), zap.Error(err))
		s.respond(w, http.StatusInternalServerError, errorResponse{Error: "could not check pending actions"})
		return
	}
	s.respond(w, http.StatusOK, mountedResponse{Resumed: res})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := s.engine.Restart(sess.ID()); err != nil {
		s.respondWithError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := s.engine.Close(r.Context(), sess.ID()); err != nil {
		s.respondWithError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	if err := s.engine.Logout(r.Context(), user); err != nil {
		// Sessions are gone either way; only the cleanup was partial.
		s.logger.Warn("Logout completed with errors", zap.String("user_id", user), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// session resolves {id} for the calling user and writes the error response
// when it cannot.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*engine.Session, bool) {
	user, _ := auth.UserFromContext(r.Context())
	sess, err := s.engine.Lookup(chi.URLParam(r, "id"), user)
	if err != nil {
		s.respondWithError(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) respondWithError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrSessionBusy), errors.Is(err, engine.ErrRestartRequired):
		status = http.StatusConflict
	}
	s.respond(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

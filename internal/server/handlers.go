package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"icgateway/internal/constants"
	"icgateway/internal/gateway"
	"icgateway/internal/protocol"
	"icgateway/internal/security"
	"icgateway/internal/session"
)

type healthResponse struct {
	Status string `json:"status"`
	gateway.Stats
}

type sessionResponse struct {
	session.Record
	Valid *bool `json:"valid,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(protocol.ErrorResponse(message)))
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientIP := security.GetClientIP(r)

	if !s.BruteProtector.Check(clientIP) {
		s.AuditLogger.LogBruteForce(clientIP, s.Config.MaxHandshakeFailures)
		http.Error(w, constants.MsgTooManyFailures, http.StatusTooManyRequests)
		return
	}

	if !s.ConnLimiter.TryConnect(clientIP) {
		s.AuditLogger.LogConnectionLimit(clientIP)
		http.Error(w, constants.MsgConnectionLimit, http.StatusTooManyRequests)
		return
	}
	defer s.ConnLimiter.Disconnect(clientIP)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("ip", clientIP).Msg("❌ WebSocket upgrade error")
		return
	}

	ctx := r.Context()
	sess, err := s.Coordinator.Accept(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("❌ Could not accept connection")
		ws.Close()
		return
	}

	log := s.log.With().Uint64("session_id", sess.ID()).Str("ip", clientIP).Logger()
	log.Info().Msg("🔌 Client connected")

	conn := &wsConn{
		ws:   ws,
		sess: sess,
		log:  log,
		onFrame: func(before gateway.State, err error) bool {
			switch {
			case errors.Is(err, gateway.ErrAuthentication):
				s.AuditLogger.LogAuthFailure(clientIP, err.Error())
				if s.BruteProtector.RecordFailure(clientIP) {
					s.AuditLogger.LogBruteForce(clientIP, s.Config.MaxHandshakeFailures)
					return false
				}
			case err == nil && before == gateway.AwaitingHandshake && sess.State() == gateway.Open:
				clientID, _ := sess.ClientID()
				s.BruteProtector.RecordSuccess(clientIP)
				s.AuditLogger.LogAuthSuccess(clientIP, clientID, sess.CanisterID())
			}
			return true
		},
	}

	writerDone := make(chan struct{})
	go func() {
		conn.writePump(ctx)
		close(writerDone)
	}()

	conn.readPump(ctx)
	sess.Close()
	<-writerDone

	disconnectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Config.CallTimeout)
	defer cancel()
	if err := s.Coordinator.Disconnect(disconnectCtx, sess.ID()); err != nil {
		log.Warn().Err(err).Msg("⚠️  Disconnect cleanup skipped")
	}

	if clientID, ok := sess.ClientID(); ok {
		s.AuditLogger.LogDisconnect(clientIP, clientID, sess.CanisterID())
	}
	log.Info().Msg("🔌 Client disconnected")
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Coordinator.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, constants.MsgShuttingDown)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Stats: stats})
}

// HandleSession reports the persisted record for a client id. With a
// canister_id query parameter it also reports whether the record is valid
// for that canister.
func (s *Server) HandleSession(w http.ResponseWriter, r *http.Request) {
	clientID, err := security.ParseClientID(r.PathValue("client_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, constants.MsgInvalidClientID)
		return
	}

	canisterID := r.URL.Query().Get("canister_id")
	if canisterID != "" && !security.ValidateCanisterID(canisterID) {
		writeError(w, http.StatusBadRequest, constants.MsgInvalidCanisterID)
		return
	}

	rec, err := s.Store.Get(r.Context(), clientID)
	if err != nil {
		s.log.Warn().Err(err).Uint64("client_id", clientID).Msg("session lookup failed")
		writeError(w, http.StatusServiceUnavailable, constants.MsgStoreUnavailable)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, constants.MsgSessionNotFound)
		return
	}

	resp := sessionResponse{Record: *rec}
	if canisterID != "" {
		valid := session.Validate(r.Context(), s.Store, clientID, canisterID)
		resp.Valid = &valid
	}
	writeJSON(w, http.StatusOK, resp)
}

package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"icgateway/internal/canister"
	"icgateway/internal/constants"
	"icgateway/internal/logger"
	"icgateway/internal/metrics"
	"icgateway/internal/protocol"
	"icgateway/internal/session"
)

type State int

const (
	AwaitingHandshake State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingHandshake:
		return "awaiting_handshake"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

type FrameType int

const (
	FrameText FrameType = iota
	FrameBinary
)

// Frame is one outbound WebSocket message queued for the write pump.
type Frame struct {
	Type FrameType
	Data []byte
}

// Sink receives poller deliveries. Deliver must not block; it reports
// false when the frame was not accepted.
type Sink interface {
	Deliver(frame []byte) bool
}

// Registrar binds an authenticated session to the poller of its canister.
type Registrar interface {
	Register(ctx context.Context, sessionID, clientID uint64, canisterID string, sink Sink) error
}

type SessionOptions struct {
	Canister    canister.Client
	Store       session.StoreInterface
	Verifier    Verifier
	Registrar   Registrar
	CallTimeout time.Duration
	SessionTTL  time.Duration
	QueueSize   int
}

// ClientSession is the per-connection handshake and relay state machine.
// Inbound frames must be handed to it from a single goroutine.
type ClientSession struct {
	id   uint64
	opts SessionOptions
	log  zerolog.Logger

	mu         sync.RWMutex
	state      State
	clientID   uint64
	canisterID string

	out       chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func NewClientSession(id uint64, opts SessionOptions) *ClientSession {
	if opts.QueueSize <= 0 {
		opts.QueueSize = constants.SessionSendQueueSize
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = constants.DefaultCallTimeout
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = constants.DefaultSessionTTL
	}
	if opts.Verifier == nil {
		opts.Verifier = Ed25519Verifier{}
	}

	metrics.SessionsActive.Inc()
	return &ClientSession{
		id:    id,
		opts:  opts,
		log:   logger.Component("session").With().Uint64("session_id", id).Logger(),
		state: AwaitingHandshake,
		out:   make(chan Frame, opts.QueueSize),
		done:  make(chan struct{}),
	}
}

func (s *ClientSession) ID() uint64 { return s.id }

func (s *ClientSession) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ClientID reports the authenticated client id. It stays readable after
// the session is closed.
func (s *ClientSession) ClientID() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientID, s.canisterID != ""
}

func (s *ClientSession) CanisterID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canisterID
}

// Outbound is drained by the connection's write pump.
func (s *ClientSession) Outbound() <-chan Frame { return s.out }

// Done is closed once the session is closed.
func (s *ClientSession) Done() <-chan struct{} { return s.done }

// HandleBinary processes one inbound binary frame. Failures are reported to
// the client as a status object; the returned error only classifies them
// for the caller. A frame that does not decode as a handshake closes the
// session.
func (s *ClientSession) HandleBinary(ctx context.Context, data []byte) error {
	switch s.State() {
	case AwaitingHandshake:
		return s.handshake(ctx, data)
	case Open:
		return s.relay(ctx, data)
	default:
		return nil
	}
}

// RejectText answers an inbound text frame. Only binary frames are part of
// the protocol.
func (s *ClientSession) RejectText() {
	if s.State() == Closed {
		return
	}
	s.sendText(protocol.ErrorResponse(constants.MsgTextNotSupported))
}

func (s *ClientSession) handshake(ctx context.Context, data []byte) error {
	first, content, err := protocol.DecodeHandshake(data)
	if err != nil {
		metrics.Handshakes.WithLabelValues("malformed").Inc()
		s.log.Warn().Err(err).Msg("⚠️  Malformed handshake, closing session")
		s.sendText(protocol.ErrorResponse(constants.MsgMalformedHandshake))
		s.Close()
		return err
	}

	log := s.log.With().Uint64("client_id", content.ClientID).Str("canister_id", content.CanisterID).Logger()

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	pubKey, err := s.opts.Canister.GetClientKey(callCtx, content.CanisterID, content.ClientID)
	cancel()
	if err != nil {
		metrics.Handshakes.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("❌ Failed to fetch client key")
		s.sendText(protocol.ErrorResponse(constants.MsgCanisterCallFailed))
		return err
	}

	if !s.opts.Verifier.Verify(pubKey, first.ClientCanisterID, first.Sig) {
		metrics.Handshakes.WithLabelValues("invalid_signature").Inc()
		log.Warn().Msg("🚫 Handshake signature rejected")
		s.sendText(protocol.ErrorResponse(constants.MsgInvalidSignature))
		return errors.Wrapf(ErrAuthentication, "client %d on %s", content.ClientID, content.CanisterID)
	}

	s.mu.Lock()
	if s.state != AwaitingHandshake {
		s.mu.Unlock()
		return nil
	}
	s.state = Open
	s.clientID = content.ClientID
	s.canisterID = content.CanisterID
	s.mu.Unlock()

	metrics.Handshakes.WithLabelValues("ok").Inc()
	log.Info().Msg("🤝 Client authenticated")

	storeCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	rec := session.NewRecord(content.ClientID, content.CanisterID)
	if err := s.opts.Store.Save(storeCtx, content.ClientID, rec, s.opts.SessionTTL); err != nil {
		metrics.StoreErrors.WithLabelValues("save").Inc()
		log.Warn().Err(err).Msg("⚠️  Failed to persist session")
	}
	cancel()

	if err := s.opts.Registrar.Register(ctx, s.id, content.ClientID, content.CanisterID, s); err != nil {
		log.Error().Err(err).Msg("❌ Failed to register session with poller")
		s.sendText(protocol.ErrorResponse(constants.MsgShuttingDown))
		return err
	}

	callCtx, cancel = context.WithTimeout(ctx, s.opts.CallTimeout)
	reply, err := s.opts.Canister.Open(callCtx, content.CanisterID, first.ClientCanisterID, first.Sig)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("❌ ws_open failed")
		s.sendText(protocol.ErrorResponse(constants.MsgCanisterCallFailed))
		return err
	}
	s.sendText(reply)
	return nil
}

func (s *ClientSession) relay(ctx context.Context, payload []byte) error {
	canisterID := s.CanisterID()

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	reply, err := s.opts.Canister.Message(callCtx, canisterID, payload)
	cancel()
	if err != nil {
		metrics.RelayCalls.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Str("canister_id", canisterID).Msg("❌ ws_message failed")
		s.sendText(protocol.ErrorResponse(constants.MsgCanisterCallFailed))
		return err
	}

	metrics.RelayCalls.WithLabelValues("ok").Inc()
	s.sendText(reply)
	return nil
}

// Deliver queues a poller frame without blocking. A full queue drops it.
func (s *ClientSession) Deliver(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.out <- Frame{Type: FrameBinary, Data: frame}:
		return true
	default:
		s.log.Warn().Msg("⚠️  Send queue full, dropping outbound message")
		return false
	}
}

// sendText queues a reply to the client, waiting for queue space.
func (s *ClientSession) sendText(text string) {
	select {
	case s.out <- Frame{Type: FrameText, Data: []byte(text)}:
	case <-s.done:
	}
}

// Close marks the session closed. Safe to call more than once.
func (s *ClientSession) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = Closed
		s.mu.Unlock()
		close(s.done)
		metrics.SessionsActive.Dec()
	})
}

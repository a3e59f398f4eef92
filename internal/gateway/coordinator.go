package gateway

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"icgateway/internal/canister"
	"icgateway/internal/config"
	"icgateway/internal/constants"
	"icgateway/internal/logger"
	"icgateway/internal/metrics"
	"icgateway/internal/session"
)

type pendingClose struct {
	clientID   uint64
	canisterID string
	sink       Sink
}

type Stats struct {
	Pollers  int `json:"pollers"`
	Sessions int `json:"sessions"`
}

// Coordinator owns session ids, pollers and disconnect bookkeeping. All of
// that state is touched only by the Run goroutine; callers submit closures
// through the mailbox.
type Coordinator struct {
	cfg      config.Config
	client   canister.Client
	store    session.StoreInterface
	verifier Verifier
	log      zerolog.Logger

	mailbox chan func()
	stopped chan struct{}
	done    chan struct{}
	pollWG  sync.WaitGroup

	// owned by Run
	runCtx  context.Context
	nextID  uint64
	pollers map[string]*Poller
	pending map[uint64]pendingClose
}

func NewCoordinator(cfg config.Config, client canister.Client, store session.StoreInterface, verifier Verifier) *Coordinator {
	if verifier == nil {
		verifier = Ed25519Verifier{}
	}
	return &Coordinator{
		cfg:      cfg,
		client:   client,
		store:    store,
		verifier: verifier,
		log:      logger.Component("coordinator"),
		mailbox:  make(chan func()),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
		pollers:  make(map[string]*Poller),
		pending:  make(map[uint64]pendingClose),
	}
}

// Run serves the mailbox until ctx is cancelled, then waits for the pollers
// it started to exit.
func (c *Coordinator) Run(ctx context.Context) error {
	c.runCtx = ctx
	c.log.Info().Msg("🚀 Coordinator started")

	defer close(c.done)
	for {
		select {
		case fn := <-c.mailbox:
			fn()
		case <-ctx.Done():
			close(c.stopped)
			c.pollWG.Wait()
			c.log.Info().Int("pollers", len(c.pollers)).Msg("✅ Coordinator stopped")
			return nil
		}
	}
}

// Wait blocks until Run has returned.
func (c *Coordinator) Wait() {
	<-c.done
}

// do runs fn on the coordinator goroutine and waits for it to finish.
func (c *Coordinator) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case c.mailbox <- func() { fn(); close(finished) }:
	case <-c.stopped:
		return ErrCoordinatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-c.stopped:
		select {
		case <-finished:
			return nil
		default:
			return ErrCoordinatorStopped
		}
	}
}

// Accept assigns the next session id and returns a session waiting for its
// handshake.
func (c *Coordinator) Accept(ctx context.Context) (*ClientSession, error) {
	var id uint64
	if err := c.do(ctx, func() {
		c.nextID++
		id = c.nextID
	}); err != nil {
		return nil, err
	}

	return NewClientSession(id, SessionOptions{
		Canister:    c.client,
		Store:       c.store,
		Verifier:    c.verifier,
		Registrar:   c,
		CallTimeout: c.cfg.CallTimeout,
		SessionTTL:  c.cfg.SessionTTL,
		QueueSize:   constants.SessionSendQueueSize,
	}), nil
}

// Register routes clientID on canisterID to sink, starting the canister's
// poller on first use.
func (c *Coordinator) Register(ctx context.Context, sessionID, clientID uint64, canisterID string, sink Sink) error {
	return c.do(ctx, func() {
		p, ok := c.pollers[canisterID]
		if ok {
			p.AddSession(clientID, sink)
		} else {
			p = NewPoller(canisterID, c.client, c.cfg.PollingInterval, c.cfg.CallTimeout)
			p.AddSession(clientID, sink)
			c.pollers[canisterID] = p
			metrics.PollersActive.Inc()

			c.pollWG.Add(1)
			go func() {
				defer c.pollWG.Done()
				defer metrics.PollersActive.Dec()
				p.Run(c.runCtx)
			}()
			c.log.Info().Str("canister_id", canisterID).Msg("🔄 Created poller")
		}

		c.pending[sessionID] = pendingClose{clientID: clientID, canisterID: canisterID, sink: sink}
		c.log.Debug().Uint64("session_id", sessionID).Uint64("client_id", clientID).Str("canister_id", canisterID).Msg("session registered")
	})
}

// Disconnect releases the bookkeeping for sessionID, deletes its persisted
// record and notifies the canister. Sessions that never completed the
// handshake, or were already disconnected, are ignored.
func (c *Coordinator) Disconnect(ctx context.Context, sessionID uint64) error {
	var (
		info   pendingClose
		poller *Poller
		found  bool
	)
	if err := c.do(ctx, func() {
		info, found = c.pending[sessionID]
		if found {
			delete(c.pending, sessionID)
			poller = c.pollers[info.canisterID]
		}
	}); err != nil {
		return err
	}
	if !found {
		return nil
	}

	log := c.log.With().Uint64("session_id", sessionID).Uint64("client_id", info.clientID).Str("canister_id", info.canisterID).Logger()

	if poller != nil {
		poller.RemoveSession(info.clientID, info.sink)
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	if err := c.store.Delete(storeCtx, info.clientID); err != nil {
		metrics.StoreErrors.WithLabelValues("delete").Inc()
		log.Warn().Err(err).Msg("⚠️  Failed to delete persisted session")
	}
	cancel()

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	err := c.client.Close(callCtx, info.canisterID, info.clientID)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("⚠️  ws_close failed")
	}

	log.Info().Msg("🔌 Session disconnected")
	return nil
}

// Poller returns the poller for canisterID if one has been created.
func (c *Coordinator) Poller(ctx context.Context, canisterID string) (*Poller, bool, error) {
	var (
		p  *Poller
		ok bool
	)
	err := c.do(ctx, func() { p, ok = c.pollers[canisterID] })
	return p, ok, err
}

func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := c.do(ctx, func() {
		st.Pollers = len(c.pollers)
		st.Sessions = len(c.pending)
	})
	return st, err
}

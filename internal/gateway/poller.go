package gateway

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"icgateway/internal/canister"
	"icgateway/internal/constants"
	"icgateway/internal/logger"
	"icgateway/internal/metrics"
	"icgateway/internal/protocol"
)

// Poller fetches outbound messages for one canister and routes each to
// the session currently registered for its client id.
type Poller struct {
	canisterID  string
	client      canister.Client
	interval    time.Duration
	callTimeout time.Duration
	log         zerolog.Logger

	mu     sync.Mutex
	routes map[uint64]Sink

	nonce atomic.Uint64
}

func NewPoller(canisterID string, client canister.Client, interval, callTimeout time.Duration) *Poller {
	if interval <= 0 {
		interval = constants.DefaultPollingInterval
	}
	if callTimeout <= 0 {
		callTimeout = constants.DefaultCallTimeout
	}
	return &Poller{
		canisterID:  canisterID,
		client:      client,
		interval:    interval,
		callTimeout: callTimeout,
		log:         logger.Component("poller").With().Str("canister_id", canisterID).Logger(),
		routes:      make(map[uint64]Sink),
	}
}

func (p *Poller) CanisterID() string { return p.canisterID }

// AddSession routes clientID to sink, replacing any previous entry.
func (p *Poller) AddSession(clientID uint64, sink Sink) {
	p.mu.Lock()
	p.routes[clientID] = sink
	p.mu.Unlock()
}

// RemoveSession drops the entry for clientID only if it still points at
// sink, so a reconnect that already replaced it is left alone.
func (p *Poller) RemoveSession(clientID uint64, sink Sink) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.routes[clientID]; ok && current == sink {
		delete(p.routes, clientID)
		return true
	}
	return false
}

func (p *Poller) lookup(clientID uint64) (Sink, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sink, ok := p.routes[clientID]
	return sink, ok
}

// Sessions returns the number of routed client ids.
func (p *Poller) Sessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.routes)
}

// NextNonce is the nonce the next poll will request.
func (p *Poller) NextNonce() uint64 {
	return p.nonce.Load()
}

// Run polls until ctx is cancelled. Failed polls are retried with
// exponential backoff and leave the nonce unchanged.
func (p *Poller) Run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.interval
	bo.MaxInterval = constants.PollBackoffMax
	bo.MaxElapsedTime = 0
	bo.Reset()

	p.log.Info().Dur("interval", p.interval).Msg("🔄 Poller started")
	defer func() {
		p.log.Info().Uint64("nonce", p.NextNonce()).Msg("🛑 Poller stopped")
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		delay := p.interval
		if err := p.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			delay = bo.NextBackOff()
			p.log.Warn().Err(err).Dur("retry_in", delay).Msg("⚠️  Poll failed")
		} else {
			bo.Reset()
		}
		timer.Reset(delay)
	}
}

// poll runs one fetch-and-dispatch cycle.
func (p *Poller) poll(ctx context.Context) error {
	nonce := p.nonce.Load()

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	start := time.Now()
	batch, err := p.client.GetMessages(callCtx, p.canisterID, nonce)
	cancel()
	metrics.PollDuration.WithLabelValues(p.canisterID).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PollErrors.WithLabelValues(p.canisterID).Inc()
		return errors.Wrapf(err, "poll %s at nonce %d", p.canisterID, nonce)
	}

	if batch == nil {
		return nil
	}

	next := nonce
	for _, msg := range batch.Messages {
		seq, err := protocol.ParseSequence(msg.Key)
		if err != nil {
			metrics.Messages.WithLabelValues(p.canisterID, metrics.OutcomeMalformed).Inc()
			p.log.Warn().Err(err).Uint64("client_id", msg.ClientID).Msg("⚠️  Skipping message with malformed key")
			continue
		}
		if seq != math.MaxUint64 && seq+1 > next {
			next = seq + 1
		}

		p.dispatch(msg, batch.Cert, batch.Tree)
	}

	if next > nonce {
		p.nonce.Store(next)
	}
	return nil
}

func (p *Poller) dispatch(msg protocol.EncodedMessage, cert, tree []byte) {
	sink, ok := p.lookup(msg.ClientID)
	if !ok {
		metrics.Messages.WithLabelValues(p.canisterID, metrics.OutcomeDropped).Inc()
		p.log.Debug().Uint64("client_id", msg.ClientID).Str("key", msg.Key).Msg("no session for client, dropping")
		return
	}

	frame, err := protocol.EncodeCertMessage(protocol.CertMessage{
		Key:  msg.Key,
		Val:  msg.Val,
		Cert: cert,
		Tree: tree,
	})
	if err != nil {
		metrics.Messages.WithLabelValues(p.canisterID, metrics.OutcomeMalformed).Inc()
		p.log.Error().Err(err).Str("key", msg.Key).Msg("❌ Failed to encode outbound message")
		return
	}

	if !sink.Deliver(frame) {
		metrics.Messages.WithLabelValues(p.canisterID, metrics.OutcomeDropped).Inc()
		return
	}
	metrics.Messages.WithLabelValues(p.canisterID, metrics.OutcomeDelivered).Inc()
}

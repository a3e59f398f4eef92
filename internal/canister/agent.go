package canister

import (
	"context"
	"net/url"
	"unicode/utf8"

	"github.com/aviate-labs/agent-go"
	"github.com/aviate-labs/agent-go/identity"
	"github.com/aviate-labs/agent-go/principal"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"icgateway/internal/constants"
	"icgateway/internal/logger"
	"icgateway/internal/protocol"
)

// replica is the part of the IC agent the gateway drives. Call submits an
// update and waits for its certified reply; Query is answered directly.
// Arguments and results are Candid encoded by the agent.
type replica interface {
	Call(canisterID principal.Principal, methodName string, args []any, values []any) error
	Query(canisterID principal.Principal, methodName string, args []any, values []any) error
}

// Agent implements Client on top of an IC agent with a fresh Ed25519
// identity.
type Agent struct {
	replica replica
	log     zerolog.Logger
}

// NewAgent connects to the network at networkURL. With fetchRootKey the
// network's root key is read up front, which only local replicas need.
func NewAgent(networkURL string, fetchRootKey bool) (*Agent, error) {
	host, err := url.Parse(networkURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid network url %q", networkURL)
	}

	id, err := identity.NewRandomEd25519Identity()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate agent identity")
	}

	ic, err := agent.New(agent.Config{
		Identity:      id,
		IngressExpiry: constants.IngressExpiry,
		ClientConfig:  &agent.ClientConfig{Host: host},
		FetchRootKey:  fetchRootKey,
	})
	if err != nil {
		return nil, errors.Wrapf(ErrTransport, "agent for %s: %v", host.Redacted(), err)
	}

	a := newAgent(ic)
	a.log.Info().Str("network", host.Redacted()).Bool("fetch_root_key", fetchRootKey).Msg("🔑 Canister agent ready")
	return a, nil
}

func newAgent(r replica) *Agent {
	return &Agent{replica: r, log: logger.Component("agent")}
}

func (a *Agent) GetClientKey(ctx context.Context, canisterID string, clientID uint64) ([]byte, error) {
	var key []byte
	if err := a.update(ctx, canisterID, constants.MethodGetClientKey, []any{clientID}, []any{&key}); err != nil {
		return nil, err
	}
	return key, nil
}

func (a *Agent) Open(ctx context.Context, canisterID string, clientCanisterID, sig []byte) (string, error) {
	var reply string
	if err := a.update(ctx, canisterID, constants.MethodOpen, []any{clientCanisterID, sig}, []any{&reply}); err != nil {
		return "", err
	}
	return textReply(reply), nil
}

func (a *Agent) Message(ctx context.Context, canisterID string, payload []byte) (string, error) {
	var reply string
	if err := a.update(ctx, canisterID, constants.MethodMessage, []any{payload}, []any{&reply}); err != nil {
		return "", err
	}
	return textReply(reply), nil
}

func (a *Agent) Close(ctx context.Context, canisterID string, clientID uint64) error {
	return a.update(ctx, canisterID, constants.MethodClose, []any{clientID}, nil)
}

func (a *Agent) GetMessages(ctx context.Context, canisterID string, nonce uint64) (*protocol.CertMessages, error) {
	var msgs protocol.CertMessages
	if err := a.invoke(ctx, a.replica.Query, canisterID, constants.MethodGetMessages, []any{nonce}, []any{&msgs}); err != nil {
		return nil, err
	}
	return &msgs, nil
}

func (a *Agent) update(ctx context.Context, canisterID, method string, args, values []any) error {
	return a.invoke(ctx, a.replica.Call, canisterID, method, args, values)
}

type callFunc func(canisterID principal.Principal, methodName string, args []any, values []any) error

// invoke runs one agent call bounded by ctx. The agent API is synchronous,
// so an expired ctx abandons the call rather than cancelling it; values are
// not read in that case.
func (a *Agent) invoke(ctx context.Context, call callFunc, canisterID, method string, args, values []any) error {
	id, err := principal.Decode(canisterID)
	if err != nil {
		return errors.Wrapf(protocol.ErrDecode, "canister id %q: %v", canisterID, err)
	}

	result := make(chan error, 1)
	go func() { result <- call(id, method, args, values) }()

	select {
	case err := <-result:
		if err != nil {
			return errors.Wrapf(ErrTransport, "%s on %s: %v", method, canisterID, err)
		}
		a.log.Debug().Str("canister_id", canisterID).Str("method", method).Msg("canister replied")
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ErrTransport, "%s on %s: %v", method, canisterID, ctx.Err())
	}
}

func textReply(reply string) string {
	if !utf8.ValidString(reply) {
		return protocol.ErrorResponse(constants.MsgInvalidUTF8)
	}
	return reply
}

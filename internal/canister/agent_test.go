package canister

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aviate-labs/agent-go/candid/idl"
	"github.com/aviate-labs/agent-go/principal"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icgateway/internal/constants"
	"icgateway/internal/protocol"
)

const ledgerID = "ryjl3-tyaaa-aaaaa-aaaba-cai"

type replicaCall struct {
	update   bool
	canister string
	method   string
	arg      []byte
}

// fakeReplica Candid-encodes arguments and canned replies the way the
// network would, so the Go types on both sides are checked.
type fakeReplica struct {
	mu      sync.Mutex
	calls   []replicaCall
	replies map[string]any
	err     error
	block   chan struct{}
}

func (r *fakeReplica) Call(id principal.Principal, method string, args, values []any) error {
	return r.invoke(true, id, method, args, values)
}

func (r *fakeReplica) Query(id principal.Principal, method string, args, values []any) error {
	return r.invoke(false, id, method, args, values)
}

func (r *fakeReplica) invoke(update bool, id principal.Principal, method string, args, values []any) error {
	if r.block != nil {
		<-r.block
	}
	arg, err := idl.Marshal(args)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.calls = append(r.calls, replicaCall{update: update, canister: id.String(), method: method, arg: arg})
	reply, ok := r.replies[method]
	r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	var out []any
	if ok {
		out = []any{reply}
	}
	raw, err := idl.Marshal(out)
	if err != nil {
		return err
	}
	return idl.Unmarshal(raw, values)
}

func (r *fakeReplica) lastCall(t *testing.T) replicaCall {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.calls)
	return r.calls[len(r.calls)-1]
}

func candidArgs(t *testing.T, args ...any) []byte {
	t.Helper()
	raw, err := idl.Marshal(args)
	require.NoError(t, err)
	return raw
}

func TestAgentGetClientKey(t *testing.T) {
	r := &fakeReplica{replies: map[string]any{constants.MethodGetClientKey: []byte{1, 2, 3}}}
	a := newAgent(r)

	key, err := a.GetClientKey(context.Background(), ledgerID, 7)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, key)

	call := r.lastCall(t)
	assert.True(t, call.update)
	assert.Equal(t, ledgerID, call.canister)
	assert.Equal(t, constants.MethodGetClientKey, call.method)
	assert.True(t, bytes.HasPrefix(call.arg, []byte("DIDL")))
	assert.Equal(t, candidArgs(t, uint64(7)), call.arg)
}

func TestAgentOpenAndMessage(t *testing.T) {
	r := &fakeReplica{replies: map[string]any{
		constants.MethodOpen:    `{"status":"ok"}`,
		constants.MethodMessage: "ack",
	}}
	a := newAgent(r)
	ctx := context.Background()

	reply, err := a.Open(ctx, ledgerID, []byte("inner"), []byte("sig"))
	require.NoError(t, err)
	assert.Equal(t, `{"status":"ok"}`, reply)
	assert.Equal(t, candidArgs(t, []byte("inner"), []byte("sig")), r.lastCall(t).arg)

	reply, err = a.Message(ctx, ledgerID, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "ack", reply)
	assert.True(t, r.lastCall(t).update)
	assert.Equal(t, candidArgs(t, []byte("payload")), r.lastCall(t).arg)
}

func TestAgentClose(t *testing.T) {
	r := &fakeReplica{}
	a := newAgent(r)

	require.NoError(t, a.Close(context.Background(), ledgerID, 7))
	call := r.lastCall(t)
	assert.Equal(t, constants.MethodClose, call.method)
	assert.Equal(t, candidArgs(t, uint64(7)), call.arg)
}

func TestAgentGetMessages(t *testing.T) {
	batch := protocol.CertMessages{
		Messages: []protocol.EncodedMessage{
			{ClientID: 7, Key: "gw_0", Val: []byte("a")},
			{ClientID: 9, Key: "gw_1", Val: []byte("b")},
		},
		Cert: []byte("cert"),
		Tree: []byte("tree"),
	}
	r := &fakeReplica{replies: map[string]any{constants.MethodGetMessages: batch}}
	a := newAgent(r)

	got, err := a.GetMessages(context.Background(), ledgerID, 5)
	require.NoError(t, err)
	assert.Equal(t, batch, *got)

	call := r.lastCall(t)
	assert.False(t, call.update, "ws_get_messages is a query")
	assert.Equal(t, candidArgs(t, uint64(5)), call.arg)
}

func TestAgentTextReplyMustBeUTF8(t *testing.T) {
	assert.Equal(t, "ok", textReply("ok"))
	assert.Equal(t, protocol.ErrorResponse(constants.MsgInvalidUTF8), textReply(string([]byte{0xff, 0xfe})))
}

func TestAgentErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("replica failure", func(t *testing.T) {
		a := newAgent(&fakeReplica{err: errors.New("(5) canister trapped")})
		_, err := a.Message(ctx, ledgerID, []byte("x"))
		assert.True(t, errors.Is(err, ErrTransport))
	})

	t.Run("bad canister id", func(t *testing.T) {
		r := &fakeReplica{}
		a := newAgent(r)
		_, err := a.GetClientKey(ctx, "not a principal!", 7)
		assert.True(t, errors.Is(err, protocol.ErrDecode))
		assert.Empty(t, r.calls)
	})

	t.Run("deadline", func(t *testing.T) {
		r := &fakeReplica{block: make(chan struct{})}
		defer close(r.block)
		a := newAgent(r)

		ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		start := time.Now()
		_, err := a.GetMessages(ctx, ledgerID, 0)
		assert.True(t, errors.Is(err, ErrTransport))
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestNewAgentRejectsBadURL(t *testing.T) {
	_, err := NewAgent("://missing-scheme", false)
	require.Error(t, err)
}

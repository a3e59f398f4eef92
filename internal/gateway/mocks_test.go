package gateway

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"icgateway/internal/protocol"
)

type MockCanister struct {
	mock.Mock
}

func (m *MockCanister) GetClientKey(ctx context.Context, canisterID string, clientID uint64) ([]byte, error) {
	args := m.Called(ctx, canisterID, clientID)
	key, _ := args.Get(0).([]byte)
	return key, args.Error(1)
}

func (m *MockCanister) Open(ctx context.Context, canisterID string, clientCanisterID, sig []byte) (string, error) {
	args := m.Called(ctx, canisterID, clientCanisterID, sig)
	return args.String(0), args.Error(1)
}

func (m *MockCanister) Message(ctx context.Context, canisterID string, payload []byte) (string, error) {
	args := m.Called(ctx, canisterID, payload)
	return args.String(0), args.Error(1)
}

func (m *MockCanister) Close(ctx context.Context, canisterID string, clientID uint64) error {
	args := m.Called(ctx, canisterID, clientID)
	return args.Error(0)
}

func (m *MockCanister) GetMessages(ctx context.Context, canisterID string, nonce uint64) (*protocol.CertMessages, error) {
	args := m.Called(ctx, canisterID, nonce)
	msgs, _ := args.Get(0).(*protocol.CertMessages)
	return msgs, args.Error(1)
}

// fakeSink records deliveries.
type fakeSink struct {
	mu     sync.Mutex
	frames [][]byte
	reject bool
}

func (s *fakeSink) Deliver(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject {
		return false
	}
	s.frames = append(s.frames, frame)
	return true
}

func (s *fakeSink) keys(t *testing.T) []string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		msg, err := protocol.DecodeCertMessage(f)
		require.NoError(t, err)
		keys = append(keys, msg.Key)
	}
	return keys
}

type registration struct {
	sessionID  uint64
	clientID   uint64
	canisterID string
	sink       Sink
}

type fakeRegistrar struct {
	mu    sync.Mutex
	calls []registration
	err   error
}

func (r *fakeRegistrar) Register(_ context.Context, sessionID, clientID uint64, canisterID string, sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, registration{sessionID, clientID, canisterID, sink})
	return nil
}

// identity is a client key pair able to produce handshake frames.
type identity struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newIdentity(t *testing.T) identity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return identity{pub: pub, priv: priv}
}

// handshake returns the signed inner bytes and the encoded first frame.
func (id identity) handshake(t *testing.T, clientID uint64, canisterID string) ([]byte, []byte) {
	t.Helper()
	inner, err := protocol.EncodeClientCanisterID(protocol.ClientCanisterID{ClientID: clientID, CanisterID: canisterID})
	require.NoError(t, err)
	frame, err := protocol.EncodeFirstMessage(protocol.FirstMessage{ClientCanisterID: inner, Sig: ed25519.Sign(id.priv, inner)})
	require.NoError(t, err)
	return inner, frame
}

func batchOf(clientID uint64, keys ...string) *protocol.CertMessages {
	msgs := make([]protocol.EncodedMessage, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, protocol.EncodedMessage{ClientID: clientID, Key: k, Val: []byte("payload-" + k)})
	}
	return &protocol.CertMessages{Messages: msgs, Cert: []byte("cert"), Tree: []byte("tree")}
}

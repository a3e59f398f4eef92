package constants

import "time"

const AppName = "icgateway"

// Network defaults
const (
	DefaultListenAddr = "127.0.0.1:8080"
	DefaultNetworkURL = "http://127.0.0.1:4943" // local replica; mainnet is https://ic0.app
	DefaultRedisURL   = "redis://127.0.0.1:6379"
	WSBufferSize      = 65536
	MaxWSMessageSize  = 2 * 1024 * 1024
)

// Gateway timing
const (
	DefaultPollingInterval = 200 * time.Millisecond
	DefaultCallTimeout     = 30 * time.Second
	PollBackoffMax         = 10 * time.Second
	IngressExpiry          = 4 * time.Minute
	CleanupInterval        = 30 * time.Second
	ShutdownTimeout        = 5 * time.Second
)

// WebSocket keep-alive
const (
	WSWriteWait          = 10 * time.Second
	WSPongWait           = 60 * time.Second
	WSPingPeriod         = (WSPongWait * 9) / 10
	SessionSendQueueSize = 256
)

// Session persistence
const (
	DefaultSessionTTL = 24 * time.Hour
	RedisKeyPrefix    = "session:"
)

// Connection limits
const (
	DefaultMaxConnectionsPerIP  = 100
	DefaultMaxHandshakeFailures = 5
	HandshakeBlockDuration      = 15 * time.Minute
)

// API endpoints
const (
	EndpointRoot      = "/"
	EndpointWebSocket = "/ws"
	EndpointHealth    = "/healthz"
	EndpointMetrics   = "/metrics"
	EndpointSession   = "GET /api/sessions/{client_id}"
	HeaderRequestID   = "X-Request-ID"
)

// Canister methods
const (
	MethodGetClientKey = "ws_get_client_key"
	MethodOpen         = "ws_open"
	MethodMessage      = "ws_message"
	MethodClose        = "ws_close"
	MethodGetMessages  = "ws_get_messages"
)

// Messages
const (
	MsgInvalidSignature   = "Invalid signature"
	MsgInvalidUTF8        = "Invalid UTF-8 response"
	MsgMalformedHandshake = "Malformed handshake"
	MsgCanisterCallFailed = "Canister call failed"
	MsgShuttingDown       = "Gateway is shutting down"
	MsgTextNotSupported   = "Text frames are not supported"
	MsgConnectionLimit    = "Connection limit exceeded"
	MsgTooManyFailures    = "Too many failed handshakes. Try again later."
	MsgSessionNotFound    = "Session not found"
	MsgInvalidClientID    = "Invalid client id"
	MsgInvalidCanisterID  = "Invalid canister id"
	MsgStoreUnavailable   = "Session store unavailable"
)

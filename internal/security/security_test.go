package security

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionLimiter(t *testing.T) {
	cl := NewConnectionLimiter(2)

	assert.True(t, cl.TryConnect("1.1.1.1"))
	assert.True(t, cl.TryConnect("1.1.1.1"))
	assert.False(t, cl.TryConnect("1.1.1.1"))
	assert.True(t, cl.TryConnect("2.2.2.2"))

	cl.Disconnect("1.1.1.1")
	assert.Equal(t, 1, cl.Count("1.1.1.1"))
	assert.True(t, cl.TryConnect("1.1.1.1"))

	cl.Disconnect("9.9.9.9")
	assert.Equal(t, 0, cl.Count("9.9.9.9"))
}

func TestBruteForceProtector(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	bf := newBruteForceProtector(3, time.Minute, func() time.Time { return now })

	assert.True(t, bf.Check("1.1.1.1"))
	assert.False(t, bf.RecordFailure("1.1.1.1"))
	assert.False(t, bf.RecordFailure("1.1.1.1"))
	assert.True(t, bf.Check("1.1.1.1"))
	assert.True(t, bf.RecordFailure("1.1.1.1"), "third failure blocks")
	assert.False(t, bf.Check("1.1.1.1"))
	assert.True(t, bf.Check("2.2.2.2"))

	now = now.Add(time.Minute)
	assert.True(t, bf.Check("1.1.1.1"), "block expires")

	bf.RecordFailure("3.3.3.3")
	bf.RecordSuccess("3.3.3.3")
	bf.mu.Lock()
	_, tracked := bf.attempts["3.3.3.3"]
	bf.mu.Unlock()
	assert.False(t, tracked)
}

func TestBruteForceCleanup(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	bf := newBruteForceProtector(1, time.Minute, func() time.Time { return now })
	bf.RecordFailure("1.1.1.1")

	now = now.Add(2 * time.Minute)
	bf.cleanup()
	assert.Empty(t, bf.attempts)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{name: "direct", remoteAddr: "203.0.113.5:4000", want: "203.0.113.5"},
		{
			name:       "untrusted proxy header ignored",
			remoteAddr: "203.0.113.5:4000",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1"},
			want:       "203.0.113.5",
		},
		{
			name:       "trusted proxy forwarded for",
			remoteAddr: "127.0.0.1:4000",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"},
			want:       "198.51.100.1",
		},
		{
			name:       "trusted proxy real ip",
			remoteAddr: "10.1.2.3:4000",
			headers:    map[string]string{"X-Real-Ip": "198.51.100.2"},
			want:       "198.51.100.2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(r))
		})
	}
}

func TestValidateCanisterID(t *testing.T) {
	assert.True(t, ValidateCanisterID("aaaaa-aa"))
	assert.True(t, ValidateCanisterID("rrkah-fqaaa-aaaaa-aaaaq-cai"))
	assert.False(t, ValidateCanisterID(""))
	assert.False(t, ValidateCanisterID("UPPER-CASE"))
	assert.False(t, ValidateCanisterID("a--b"))
	assert.False(t, ValidateCanisterID("rrkah-fqaaa-aaaaa-aaaaq-cai/../x"))
}

func TestParseClientID(t *testing.T) {
	id, err := ParseClientID("42")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	_, err = ParseClientID("-1")
	assert.Error(t, err)
	_, err = ParseClientID("abc")
	assert.Error(t, err)
}

func TestValidateOrigin(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, ValidateOrigin(r, []string{"https://app.example"}))

	r.Header.Set("Origin", "https://evil.example")
	assert.True(t, ValidateOrigin(r, nil))
	assert.False(t, ValidateOrigin(r, []string{"https://app.example"}))
	assert.True(t, ValidateOrigin(r, []string{"*"}))
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestAuditLoggerCapsEventsPerWindow(t *testing.T) {
	var buf bytes.Buffer
	now := time.Unix(1_700_000_000, 0)
	al := newAuditLogger(zerolog.New(&buf), func() time.Time { return now })

	for i := 0; i < MaxAuditEventsPerMinute; i++ {
		require.True(t, al.Log(AuditEvent{EventType: "auth_failure", IP: "1.1.1.1", Severity: zerolog.WarnLevel}))
	}
	assert.False(t, al.Log(AuditEvent{EventType: "auth_failure", IP: "1.1.1.1", Severity: zerolog.WarnLevel}))

	now = now.Add(time.Minute + time.Second)
	buf.Reset()
	al.LogAuthSuccess("1.1.1.1", 7, "aaaaa-aa")
	assert.Contains(t, buf.String(), `"event_type":"auth_success"`)
	assert.Contains(t, buf.String(), `"canister_id":"aaaaa-aa"`)
}

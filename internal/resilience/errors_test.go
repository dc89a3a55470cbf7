package resilience

import (
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError(eris.New("503"), 503), true},
		{"wrapped transient", fmt.Errorf("call failed: %w", NewTransientError(eris.New("429"), 429)), true},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, true},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"string heuristic", eris.New("Get \"https://x\": TLS handshake timeout"), true},
		{"io timeout message", eris.New("read tcp 1.2.3.4: i/o timeout"), true},
		{"plain error", eris.New("invalid input"), false},
		{"http 400 style", eris.New("apify: status 401"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := eris.New("boom")
	te := NewTransientError(inner, 500)

	assert.Equal(t, "boom", te.Error())
	assert.Equal(t, inner, te.Unwrap())
	assert.Equal(t, 500, te.StatusCode)
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 501} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

package httpapi

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckOriginAcceptsMatchingHost(t *testing.T) {
	r := httptest.NewRequest("GET", "http://chat.example.com/ws", nil)
	r.Host = "chat.example.com"
	r.Header.Set("Origin", "https://chat.example.com")
	assert.True(t, checkOrigin(r))
}

func TestCheckOriginAcceptsMatchingHostWithPort(t *testing.T) {
	r := httptest.NewRequest("GET", "http://localhost:8080/ws", nil)
	r.Host = "localhost:8080"
	r.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, checkOrigin(r))
}

func TestCheckOriginRejectsMissingOrigin(t *testing.T) {
	r := httptest.NewRequest("GET", "http://chat.example.com/ws", nil)
	r.Host = "chat.example.com"
	assert.False(t, checkOrigin(r))
}

func TestCheckOriginRejectsMismatchedHost(t *testing.T) {
	r := httptest.NewRequest("GET", "http://chat.example.com/ws", nil)
	r.Host = "chat.example.com"
	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, checkOrigin(r))
}

func TestCheckOriginCaseInsensitive(t *testing.T) {
	r := httptest.NewRequest("GET", "http://Chat.Example.com/ws", nil)
	r.Host = "Chat.Example.com"
	r.Header.Set("Origin", "https://chat.example.com")
	assert.True(t, checkOrigin(r))
}

func TestHostWithoutPort(t *testing.T) {
	assert.Equal(t, "example.com", hostWithoutPort("example.com:8080"))
	assert.Equal(t, "example.com", hostWithoutPort("example.com"))
}

package security

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

func TestIsIPAllowedLoopback(t *testing.T) {
	assert.True(t, IsIPAllowed(nil, net.ParseIP("127.0.0.1")))
	assert.True(t, IsIPAllowed(nil, net.ParseIP("::1")))
}

func TestIsIPAllowedNetwork(t *testing.T) {
	allowed := []*net.IPNet{mustCIDR("10.0.1.0/24")}
	assert.True(t, IsIPAllowed(allowed, net.ParseIP("10.0.1.5")))
	assert.True(t, IsIPAllowed(allowed, net.ParseIP("10.0.1.254")))
	assert.False(t, IsIPAllowed(allowed, net.ParseIP("10.0.2.1")))
	assert.False(t, IsIPAllowed(allowed, net.ParseIP("192.168.1.1")))
}

func TestIsIPAllowedExternalDenied(t *testing.T) {
	allowed := []*net.IPNet{mustCIDR("10.0.1.0/24")}
	assert.False(t, IsIPAllowed(allowed, net.ParseIP("8.8.8.8")))
	assert.False(t, IsIPAllowed(allowed, net.ParseIP("1.1.1.1")))
}

func TestAdminAuthDisabled(t *testing.T) {
	a := &AdminAuth{}
	assert.False(t, a.Enabled())
	req := httptest.NewRequest(http.MethodPost, "/admin/databases", nil)
	assert.Equal(t, AuthDisabled, a.Authenticate(req))
}

func TestAdminAuthFlow(t *testing.T) {
	a := &AdminAuth{Token: "secret123", AllowedNetworks: []*net.IPNet{mustCIDR("10.0.1.0/24")}}

	req := httptest.NewRequest(http.MethodPost, "/admin/databases", nil)
	req.RemoteAddr = "10.0.1.5:1234"
	assert.Equal(t, AuthMissingToken, a.Authenticate(req))

	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, AuthInvalidToken, a.Authenticate(req))

	req.Header.Set("Authorization", "Bearer secret123")
	assert.Equal(t, AuthOK, a.Authenticate(req))

	req2 := httptest.NewRequest(http.MethodPost, "/admin/databases", nil)
	req2.RemoteAddr = "8.8.8.8:1234"
	req2.Header.Set("Authorization", "Bearer secret123")
	assert.Equal(t, AuthForbiddenIP, a.Authenticate(req2))
}

package security

import (
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name              string
		remoteAddr        string
		xff               string
		xRealIP           string
		trustProxy        bool
		trustedProxyCount int
		want              string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "203.0.113.5:44321",
			want:       "203.0.113.5",
		},
		{
			name:       "headers ignored without trust",
			remoteAddr: "203.0.113.5:44321",
			xff:        "198.51.100.1",
			xRealIP:    "198.51.100.2",
			want:       "203.0.113.5",
		},
		{
			name:       "single XFF entry with trust",
			remoteAddr: "10.0.0.1:80",
			xff:        "198.51.100.1",
			trustProxy: true,
			want:       "198.51.100.1",
		},
		{
			name:              "XFF chain with one trusted proxy",
			remoteAddr:        "10.0.0.1:80",
			xff:               "198.51.100.1, 203.0.113.9, 10.0.0.1",
			trustProxy:        true,
			trustedProxyCount: 1,
			want:              "203.0.113.9",
		},
		{
			name:              "XFF chain with two trusted proxies",
			remoteAddr:        "10.0.0.1:80",
			xff:               "198.51.100.1, 203.0.113.9, 10.0.0.1",
			trustProxy:        true,
			trustedProxyCount: 2,
			want:              "198.51.100.1",
		},
		{
			name:       "malformed XFF falls through to X-Real-IP",
			remoteAddr: "10.0.0.1:80",
			xff:        "not-an-ip",
			xRealIP:    "198.51.100.2",
			trustProxy: true,
			want:       "198.51.100.2",
		},
		{
			name:       "malformed headers fall back to remote addr",
			remoteAddr: "203.0.113.5:44321",
			xff:        "junk",
			xRealIP:    "also junk",
			trustProxy: true,
			want:       "203.0.113.5",
		},
		{
			name:       "IPv6 remote addr",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "203.0.113.5",
			want:       "203.0.113.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}

			got := GetClientIP(r, tt.trustProxy, tt.trustedProxyCount)
			if got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIPIndex(t *testing.T) {
	tests := []struct {
		total, trusted, want int
	}{
		{1, 1, 0}, // only the client in the list
		{2, 1, 0}, // client, proxy
		{3, 1, 1}, // spoofed, client, proxy
		{3, 2, 0}, // client, proxy, proxy
		{3, 0, 1}, // zero trusted defaults to one
		{2, 5, 0}, // more proxies claimed than entries
	}
	for _, tt := range tests {
		if got := clientIPIndex(tt.total, tt.trusted); got != tt.want {
			t.Errorf("clientIPIndex(%d, %d) = %d, want %d", tt.total, tt.trusted, got, tt.want)
		}
	}
}

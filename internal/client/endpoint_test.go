package client

import (
	"errors"
	"strings"
	"testing"
)

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		preferSecure bool
		wantURL      string
		wantSecHost  bool
	}{
		{"plain host", "studio.local:4444", false, "ws://studio.local:4444", false},
		{"page served securely", "studio.local:4444", true, "wss://studio.local:4444", false},
		{"port 443 implies secure", "obs.example.com:443", false, "wss://obs.example.com:443", true},
		{"explicit ws wins over page", "ws://studio.local:4444", true, "ws://studio.local:4444", false},
		{"explicit wss", "wss://obs.example.com", false, "wss://obs.example.com:443", true},
		{"https scheme maps to wss", "https://obs.example.com:8443", false, "wss://obs.example.com:8443", true},
		{"http scheme default port", "http://10.0.0.5", true, "ws://10.0.0.5:80", false},
		{"whitespace trimmed", "  localhost:4444 ", false, "ws://localhost:4444", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := ResolveEndpoint(tt.raw, tt.preferSecure)
			if got := ep.URL(); got != tt.wantURL {
				t.Errorf("URL() = %q, want %q", got, tt.wantURL)
			}
			if ep.SecureHost != tt.wantSecHost {
				t.Errorf("SecureHost = %v, want %v", ep.SecureHost, tt.wantSecHost)
			}
		})
	}
}

func TestDescribeDisconnect(t *testing.T) {
	insecure := ResolveEndpoint("studio.local:4444", false)
	secure := ResolveEndpoint("studio.local:4444", true)

	t.Run("network error suggests secure prefix", func(t *testing.T) {
		msg := DescribeDisconnect(DisconnectInfo{Reason: ReasonNetworkError, Endpoint: insecure, Err: errors.New("connection refused")})
		if !strings.Contains(msg, "insecure connection") || !strings.Contains(msg, "connection refused") {
			t.Errorf("unexpected message: %q", msg)
		}
		if !strings.Contains(msg, "wss://studio.local:4444") {
			t.Errorf("missing wss:// suggestion: %q", msg)
		}
	})

	t.Run("secure page warns about mixed content", func(t *testing.T) {
		msg := DescribeDisconnect(DisconnectInfo{Reason: ReasonNetworkError, Endpoint: secure, PreferSecure: true})
		if !strings.Contains(msg, "prefers secure connections") {
			t.Errorf("missing mixed-content warning: %q", msg)
		}
		if !strings.Contains(msg, "ws://studio.local:4444") {
			t.Errorf("missing ws:// suggestion: %q", msg)
		}
	})

	t.Run("auth failure", func(t *testing.T) {
		msg := DescribeDisconnect(DisconnectInfo{Reason: ReasonAuthFailure, Endpoint: insecure})
		if !strings.Contains(msg, "authentication failure") {
			t.Errorf("unexpected message: %q", msg)
		}
		if strings.Contains(msg, "Suggestion") {
			t.Errorf("auth failure should not suggest a scheme: %q", msg)
		}
	})

	t.Run("requested", func(t *testing.T) {
		if msg := DescribeDisconnect(DisconnectInfo{Reason: ReasonRequested}); msg != "Not connected: connection closed." {
			t.Errorf("unexpected message: %q", msg)
		}
	})
}

func TestAuthResponse(t *testing.T) {
	// Same inputs must give the same string; any change must change it.
	a := AuthResponse("pw", "salt", "challenge")
	if a != AuthResponse("pw", "salt", "challenge") {
		t.Fatal("AuthResponse is not deterministic")
	}
	for _, other := range []string{
		AuthResponse("pw2", "salt", "challenge"),
		AuthResponse("pw", "salt2", "challenge"),
		AuthResponse("pw", "salt", "challenge2"),
	} {
		if other == a {
			t.Errorf("AuthResponse collided for different inputs")
		}
	}
	if len(a) != 44 {
		t.Errorf("len(AuthResponse) = %d, want 44 (base64 sha256)", len(a))
	}
}

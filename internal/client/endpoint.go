package client

import (
	"net"
	"net/url"
	"strings"
)

// Endpoint is a resolved connection target.
type Endpoint struct {
	// Host is host:port without a scheme.
	Host string
	// Secure selects wss:// for this attempt.
	Secure bool
	// SecureHost is true when the host itself asked for a secure transport,
	// either through an explicit scheme or port 443.
	SecureHost bool
}

// URL returns the websocket URL for the endpoint.
func (e Endpoint) URL() string {
	scheme := "ws"
	if e.Secure {
		scheme = "wss"
	}
	return scheme + "://" + e.Host
}

// TransportName returns "secure" or "insecure".
func (e Endpoint) TransportName() string {
	if e.Secure {
		return "secure"
	}
	return "insecure"
}

// ResolveEndpoint decides between a secure and an insecure transport.
// An explicit scheme in raw wins; otherwise port 443 implies secure; otherwise
// preferSecure (the panel itself being served securely) implies secure, since
// a secure page may not be allowed to open an insecure socket.
func ResolveEndpoint(raw string, preferSecure bool) Endpoint {
	raw = strings.TrimSpace(raw)
	secureHost := strings.HasSuffix(raw, ":443")
	ep := Endpoint{
		Host:       raw,
		Secure:     preferSecure || secureHost,
		SecureHost: secureHost,
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			return ep
		}
		secure := u.Scheme == "wss" || u.Scheme == "https"
		port := u.Port()
		if port == "" {
			port = "80"
			if secure {
				port = "443"
			}
		}
		ep.Host = net.JoinHostPort(u.Hostname(), port)
		ep.Secure = secure
		ep.SecureHost = secure
	}
	return ep
}

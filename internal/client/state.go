package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// State is the connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	// StateConnected means the transport is open but not yet authenticated.
	StateConnected
	StateAuthenticated
	// StateAuthFailed and StateErrored persist until the next Connect.
	StateAuthFailed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateAuthFailed:
		return "auth_failed"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrNotConnected is the fail-fast error for calls made while not authenticated.
	ErrNotConnected = errors.New("not connected")
	// ErrAuthFailed is returned by Connect when OBS rejects the credential.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrTimeout marks a request that got no response in time.
	ErrTimeout = errors.New("request timed out")
	// errClosed settles requests still pending when the transport closes.
	errClosed = errors.New("connection closed")
)

// Reason classifies why a session stopped being connected.
type Reason string

const (
	ReasonNetworkError Reason = "network-error"
	ReasonRemoteClosed Reason = "remote-closed"
	ReasonAuthFailure  Reason = "auth-failure"
	// ReasonRequested is an operator-initiated Disconnect.
	ReasonRequested Reason = "requested"
)

// DisconnectInfo accompanies the disconnected lifecycle callback.
type DisconnectInfo struct {
	Reason       Reason
	Endpoint     Endpoint
	PreferSecure bool
	Err          error
}

// Lifecycle is notified of connected/disconnected transitions. Connected is
// called once per successful authentication, on the dispatch goroutine,
// ordered with pushed events.
type Lifecycle interface {
	Connected(ctx context.Context)
	Disconnected(info DisconnectInfo)
}

// DescribeDisconnect returns the operator-facing explanation for a
// disconnect, including a scheme-prefix workaround when a protocol mismatch
// is likely.
func DescribeDisconnect(info DisconnectInfo) string {
	over := "over " + info.Endpoint.TransportName() + " connection"
	switch info.Reason {
	case ReasonAuthFailure:
		return fmt.Sprintf("Not connected (%s): connection closed after authentication failure.", over)
	case ReasonRequested:
		return "Not connected: connection closed."
	case ReasonRemoteClosed:
		if info.Err == nil {
			return "Not connected: connection closed."
		}
		return fmt.Sprintf("Not connected (%s): remote closed the connection.", over)
	}

	var b strings.Builder
	desc := "websocket error (check network connection and whether OBS is still responsive)"
	if info.Err != nil {
		desc = info.Err.Error()
	}
	fmt.Fprintf(&b, "Not connected (%s): %s", over, desc)
	b.WriteString("\nIf OBS is running on the host, perhaps it cannot be reached on this protocol and/or port.")
	if info.PreferSecure && !info.Endpoint.SecureHost {
		b.WriteString("\nThe panel prefers secure connections. Connecting to an insecure host may not be allowed.")
		if info.Endpoint.Secure {
			b.WriteString(" Attempt to enforce a secure connection did not work.")
		}
	}
	if info.Endpoint.Secure {
		fmt.Fprintf(&b, "\nSuggestion: prefix the host with ws:// to enforce an insecure connection. Example: ws://%s", info.Endpoint.Host)
	} else {
		fmt.Fprintf(&b, "\nSuggestion: prefix the host with wss:// to enforce a secure connection (if the host supports it). Example: wss://%s", info.Endpoint.Host)
	}
	return b.String()
}

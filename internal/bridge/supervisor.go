package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/dvangennip/web-remote-for-OBS/internal/client"
)

// Connector opens an OBS session.
type Connector interface {
	Connect(ctx context.Context, raw, credential string) error
}

// Supervisor keeps the bridge's session connected, reconnecting with
// exponential backoff after the transport drops. It is registered as a
// client.Lifecycle to learn about drops.
type Supervisor struct {
	conn       Connector
	host       string
	credential string
	minBackoff time.Duration
	maxBackoff time.Duration
	clock      clock.Clock
	log        zerolog.Logger
	down       chan client.DisconnectInfo
}

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Clock      clock.Clock
	Log        zerolog.Logger
}

func NewSupervisor(conn Connector, host, credential string, opts SupervisorOptions) *Supervisor {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = time.Second
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Supervisor{
		conn:       conn,
		host:       host,
		credential: credential,
		minBackoff: opts.MinBackoff,
		maxBackoff: opts.MaxBackoff,
		clock:      opts.Clock,
		log:        opts.Log.With().Str("component", "supervisor").Logger(),
		down:       make(chan client.DisconnectInfo, 1),
	}
}

func (s *Supervisor) Connected(context.Context) {}

// Disconnected records the drop. Operator-requested disconnects are not
// retried.
func (s *Supervisor) Disconnected(info client.DisconnectInfo) {
	if info.Reason == client.ReasonRequested {
		return
	}
	select {
	case s.down <- info:
	default:
	}
}

// Run connects and reconnects until ctx is cancelled. A rejected credential
// is returned immediately since retrying cannot fix it.
func (s *Supervisor) Run(ctx context.Context) error {
	backoff := s.minBackoff
	for {
		s.drain()
		err := s.conn.Connect(ctx, s.host, s.credential)
		switch {
		case err == nil:
			backoff = s.minBackoff
			select {
			case <-ctx.Done():
				return nil
			case info := <-s.down:
				s.log.Warn().Str("reason", string(info.Reason)).Msg(client.DescribeDisconnect(info))
			}
		case errors.Is(err, client.ErrAuthFailed):
			return err
		case ctx.Err() != nil:
			return nil
		default:
			s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("connect failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(backoff):
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

func (s *Supervisor) drain() {
	for {
		select {
		case <-s.down:
		default:
			return
		}
	}
}

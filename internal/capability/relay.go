package capability

import (
	"context"
	"fmt"
	"time"

	"reactnet/config"
	"reactnet/internal/errors"
	"reactnet/internal/reactor"
	"reactnet/internal/session"
)

// Relay writes Request to the session's connection, then copies
// everything the peer sends to the session's stdout until the peer
// closes.  The connection is driven through select() like any other
// reactor participant.
type Relay struct {
	Request []byte
	Idle    time.Duration // give up after this long without data; 0 means DefaultReceiveTimeout
	Tick    time.Duration // longest single select() wait; 0 means DefaultLoopTick
}

// Handle returns nil when the peer closed the connection or ctx was
// cancelled, and an error wrapping [errors.ErrTimeout] when the peer
// went quiet for longer than Idle.
func (r *Relay) Handle(ctx context.Context, sess *session.Session) error {
	idle := r.Idle
	if idle <= 0 {
		idle = config.DefaultReceiveTimeout
	}
	tick := r.Tick
	if tick <= 0 {
		tick = config.DefaultLoopTick
	}

	sets := reactor.NewSets()
	pending := r.Request
	buf := make([]byte, 32<<10)
	last := time.Now()
	var received int64

	for {
		select {
		case <-ctx.Done():
			sess.Logger.Verbose("relay: cancelled after %d bytes", received)
			return nil
		default:
		}

		for len(pending) > 0 {
			n, err := sess.Conn.Send(pending)
			if err != nil {
				return fmt.Errorf("send request: %w", err)
			}
			if n == 0 {
				break
			}
			pending = pending[n:]
		}

		sets.Reset()
		if err := sess.Conn.Register(sets); err != nil {
			return err
		}
		if len(pending) > 0 {
			if err := sets.AddWrite(sess.Conn.FD()); err != nil {
				return err
			}
		}
		if _, err := sets.Wait(tick); err != nil {
			return err
		}

		if !sess.Conn.Ready(sets) {
			if time.Since(last) > idle {
				return fmt.Errorf("relay: no data for %v: %w", idle, errors.ErrTimeout)
			}
			continue
		}

		n, err := sess.Conn.Receive(buf)
		if n > 0 {
			last = time.Now()
			received += int64(n)
			if _, werr := sess.Stdout.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write output: %w", werr)
			}
		}
		switch {
		case errors.Is(err, errors.ErrPeerClosed):
			sess.Logger.Verbose("relay: peer closed after %d bytes", received)
			return nil
		case err != nil:
			return err
		}
	}
}

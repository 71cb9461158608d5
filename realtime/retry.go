package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy controls redialing after a failed dial or a dropped transport.
// Backoff grows exponentially from Base up to Cap, with up to Jitter of
// random spread added to each interval.
type RetryPolicy struct {
	Base        time.Duration
	Jitter      time.Duration
	Cap         time.Duration
	MaxAttempts uint64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:        500 * time.Millisecond,
		Jitter:      250 * time.Millisecond,
		Cap:         30 * time.Second,
		MaxAttempts: 10,
	}
}

func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.Base)
	if p.Cap > 0 {
		b = retry.WithCappedDuration(p.Cap, b)
	}
	if p.Jitter > 0 {
		b = retry.WithJitter(p.Jitter, b)
	}
	if p.MaxAttempts > 0 {
		b = retry.WithMaxRetries(p.MaxAttempts, b)
	}
	return b
}

// dial performs the websocket handshake, retrying per the configured policy.
// Close aborts an in-progress dial through context cancellation.
func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	if c.closed() {
		return nil, ErrClosed
	}

	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-dialCtx.Done():
		}
	}()

	if c.retry == nil {
		ws, _, err := c.dialer.DialContext(dialCtx, c.endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", c.endpoint, err)
		}
		return ws, nil
	}

	var ws *websocket.Conn
	err := retry.Do(dialCtx, c.retry.backoff(), func(ctx context.Context) error {
		conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
		if err != nil {
			c.logger.Debug(fmt.Sprintf("dial failed, backing off: %v", err))
			return retry.RetryableError(err)
		}
		ws = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.endpoint, err)
	}
	return ws, nil
}

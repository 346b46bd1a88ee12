package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nirmal141/nvidiaxdell-hack/pkg/enums"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
)

// ConnState is the follower's connection lifecycle state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
)

// Event mirrors the progress stream's wire format.
type Event struct {
	JobID       string         `json:"job_id"`
	VideoID     string         `json:"video_id"`
	State       enums.JobState `json:"state"`
	CurrentUnit int            `json:"current_unit"`
	TotalUnits  int            `json:"total_units"`
	Message     string         `json:"message,omitempty"`
	Error       string         `json:"error,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// dialer abstracts websocket dialing for tests.
type dialer interface {
	DialContext(ctx context.Context, url string, header map[string][]string) (conn, error)
}

type conn interface {
	ReadJSON(v any) error
	Close() error
}

type gorillaDialer struct {
	inner *websocket.Dialer
}

func (d gorillaDialer) DialContext(ctx context.Context, url string, header map[string][]string) (conn, error) {
	c, _, err := d.inner.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Options tunes the follower's reconnect behaviour.
type Options struct {
	// InitialBackoff is the first reconnect delay; it doubles per failed
	// attempt up to MaxBackoff and resets once a connection delivers events.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxAttempts bounds consecutive connects that produce no events,
	// whether the dial failed or the stream went silent. Zero means 5.
	MaxAttempts int
}

func (o Options) withDefaults() Options {
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 10 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	return o
}

// Follower consumes a job progress stream and survives transient drops. It
// keeps reconnecting until the stream reaches its end: a terminal progress
// event, or the no-job status snapshot the server sends once processing has
// already finished.
type Follower struct {
	url     string
	opts    Options
	dial    dialer
	logg    *logger.Logger
	onEvent func(Event)
	onState func(ConnState)

	lastEvent *Event
}

// NewFollower builds a follower for one video's progress URL. onEvent
// receives every event; onState is optional.
func NewFollower(url string, opts Options, logg *logger.Logger, onEvent func(Event), onState func(ConnState)) (*Follower, error) {
	if url == "" {
		return nil, fmt.Errorf("progress url required")
	}
	if onEvent == nil {
		return nil, fmt.Errorf("event callback required")
	}
	return &Follower{
		url:     url,
		opts:    opts.withDefaults(),
		dial:    gorillaDialer{inner: websocket.DefaultDialer},
		logg:    logg,
		onEvent: onEvent,
		onState: onState,
	}, nil
}

func (f *Follower) setState(state ConnState) {
	if f.onState != nil {
		f.onState(state)
	}
}

// Run follows the stream until the job reaches a terminal state, the retry
// budget is exhausted, or ctx is cancelled. It returns the final event when
// one was observed.
func (f *Follower) Run(ctx context.Context) (*Event, error) {
	backoff := f.opts.InitialBackoff
	attempts := 0

	f.setState(StateConnecting)
	for {
		if err := ctx.Err(); err != nil {
			f.setState(StateDisconnected)
			return f.lastEvent, err
		}

		c, err := f.dial.DialContext(ctx, f.url, nil)
		if err != nil {
			attempts++
			if attempts >= f.opts.MaxAttempts {
				f.setState(StateDisconnected)
				return f.lastEvent, fmt.Errorf("connecting to progress stream: %w", err)
			}
			if f.logg != nil {
				f.logg.Warn(ctx, fmt.Sprintf("progress connect failed, retrying in %s: %v", backoff, err))
			}
			f.setState(StateReconnecting)
			if !sleep(ctx, backoff) {
				f.setState(StateDisconnected)
				return f.lastEvent, ctx.Err()
			}
			backoff = nextBackoff(backoff, f.opts.MaxBackoff)
			continue
		}

		f.setState(StateConnected)

		delivered, done, readErr := f.consume(ctx, c)
		c.Close()

		if done {
			f.setState(StateDisconnected)
			return f.lastEvent, nil
		}
		if err := ctx.Err(); err != nil {
			f.setState(StateDisconnected)
			return f.lastEvent, err
		}

		// The retry budget only resets when the connection made progress.
		// A server that accepts the dial but yields nothing burns the
		// budget down instead of looping forever.
		if delivered > 0 {
			attempts = 0
			backoff = f.opts.InitialBackoff
		} else {
			attempts++
			if attempts >= f.opts.MaxAttempts {
				f.setState(StateDisconnected)
				if readErr != nil {
					return f.lastEvent, fmt.Errorf("progress stream yielded no events: %w", readErr)
				}
				return f.lastEvent, fmt.Errorf("progress stream yielded no events after %d connects", attempts)
			}
		}

		// connection dropped mid-job: reconnect
		if f.logg != nil && readErr != nil {
			f.logg.Warn(ctx, fmt.Sprintf("progress stream dropped, reconnecting: %v", readErr))
		}
		f.setState(StateReconnecting)
		if !sleep(ctx, backoff) {
			f.setState(StateDisconnected)
			return f.lastEvent, ctx.Err()
		}
		backoff = nextBackoff(backoff, f.opts.MaxBackoff)
	}
}

// consume reads events until the stream ends or the connection breaks. It
// reports how many job events arrived and whether the stream reached its
// natural end. A payload without a state field is the status snapshot the
// server writes when no job is live; it means there is nothing to follow.
func (f *Follower) consume(ctx context.Context, c conn) (delivered int, done bool, err error) {
	for {
		var event Event
		if err := c.ReadJSON(&event); err != nil {
			return delivered, false, err
		}
		if event.State == "" {
			return delivered, true, nil
		}
		delivered++
		f.lastEvent = &event
		f.onEvent(event)
		if event.State.IsTerminal() {
			return delivered, true, nil
		}
		if ctx.Err() != nil {
			return delivered, false, ctx.Err()
		}
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

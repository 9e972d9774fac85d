package watcher

import (
	"context"
	"time"

	"github.com/ritzau/node-composer/pkg/logging"
)

// Default debounce timing for inbox events.
const (
	DefaultQuietPeriod = 200 * time.Millisecond
	DefaultMaxWait     = 2 * time.Second
)

// Debouncer merges bursts of events so a file still being written is read
// once, after it settles.
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer.
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing.
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

// run flushes after quietPeriod without events, or maxWait after the first
// event of a batch, whichever comes first.
func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	var (
		quiet   <-chan time.Time
		maxWait <-chan time.Time
		seen    = make(map[string]bool)
		paths   []string
	)

	flush := func() {
		quiet, maxWait = nil, nil
		if len(paths) == 0 {
			return
		}
		logging.Debug("Flushing inbox events", "count", len(paths))
		select {
		case d.output <- ChangeEvent{Paths: paths, Timestamp: time.Now()}:
		case <-ctx.Done():
		}
		seen = make(map[string]bool)
		paths = nil
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}
			for _, p := range event.Paths {
				if !seen[p] {
					seen[p] = true
					paths = append(paths, p)
				}
			}
			quiet = time.After(d.quietPeriod)
			if maxWait == nil {
				maxWait = time.After(d.maxWait)
			}

		case <-quiet:
			flush()

		case <-maxWait:
			flush()
		}
	}
}

// Output returns the channel of debounced events.
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}

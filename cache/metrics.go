package cache

import "time"

// Metrics receives an event for each outcome of a call to the Coordinator
type Metrics interface {
	// Hit is called when a fresh entry was served from the store
	Hit()

	// Miss is called when the entry was absent or expired
	Miss()

	// Coalesced is called when a miss was satisfied by another caller's
	// fetch round, in this process or another
	Coalesced()

	// Fetched is called after every fetch this process performed
	Fetched(d time.Duration, err error)

	// StoreFailed is called whenever the store returned an error
	StoreFailed()
}

// NoopMetrics discards all events
type NoopMetrics struct{}

func (NoopMetrics) Hit()                        {}
func (NoopMetrics) Miss()                       {}
func (NoopMetrics) Coalesced()                  {}
func (NoopMetrics) Fetched(time.Duration, error) {}
func (NoopMetrics) StoreFailed()                {}

package dispatcher

// Option configures handler registration.
type Option func(*settings)

type settings struct {
	queue     int
	blocking  bool
	coalesced bool
	logged    bool
}

// Buffered runs the handler on its own goroutine behind a queue of the given
// size. Dispatch returns "queued" as soon as the event is accepted.
func Buffered(size int) Option {
	return func(s *settings) {
		s.queue = size
	}
}

// Blocking makes Dispatch wait for room in a full queue instead of failing
// with ErrQueueFull.
func Blocking() Option {
	return func(s *settings) {
		s.blocking = true
	}
}

// Coalesced makes a full queue give up its oldest pending event to the new
// one. Only the latest signals matter for commands like viewport changes.
func Coalesced() Option {
	return func(s *settings) {
		s.coalesced = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(s *settings) {
		s.logged = true
	}
}

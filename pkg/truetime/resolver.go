package truetime

import (
	"context"
	"errors"
	"net"
	"time"
)

// hostEntry is one (host, port) pair to try resolving, in priority
// order.
type hostEntry struct {
	host string
	port int
}

// resolveResult is delivered to onComplete exactly once.
type resolveResult struct {
	host      string
	addresses []net.Addr
	err       error
}

// resolver tries entries in order, returning the first successful set of
// addresses, or, once the whole list is exhausted, the last entry's
// failure classified as ErrCannotFindHost, ErrDNSLookupFailed or
// ErrTimedOut. Resolution is cancellable via stop().
type resolver struct {
	entries []hostEntry
	timeout time.Duration
	lookup  func(ctx context.Context, host string) ([]net.IPAddr, error)

	cancel context.CancelFunc
}

// defaultLookup is a seam tests substitute to control DNS resolution
// deterministically, including simulating a single pool entry resolving to
// several addresses.
var defaultLookup = net.DefaultResolver.LookupIPAddr

// newResolver requires a non-empty list of entries.
func newResolver(entries []hostEntry, timeout time.Duration) *resolver {
	if len(entries) == 0 {
		panic("truetime: resolver requires a non-empty host list")
	}
	r := &resolver{entries: entries, timeout: timeout}
	r.lookup = defaultLookup
	return r
}

// resolve tries each entry in turn and delivers the first success, or an
// aggregate failure once the list is exhausted, to onComplete. It runs on
// its own goroutine and returns immediately.
func (r *resolver) resolve(onComplete func(resolveResult)) {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	go r.tryFrom(ctx, 0, nil, onComplete)
}

// stop prevents any further callback from firing.
func (r *resolver) stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *resolver) tryFrom(ctx context.Context, index int, lastErr error, onComplete func(resolveResult)) {
	if ctx.Err() != nil {
		return
	}
	if index >= len(r.entries) {
		if lastErr == nil {
			lastErr = ErrCannotFindHost
		}
		onComplete(resolveResult{err: lastErr})
		return
	}

	entry := r.entries[index]

	attemptCtx, cancelAttempt := context.WithTimeout(ctx, r.timeout)
	defer cancelAttempt()

	ips, err := r.lookup(attemptCtx, entry.host)
	if ctx.Err() != nil {
		return
	}
	if err != nil || len(ips) == 0 {
		r.tryFrom(ctx, index+1, classifyLookupFailure(err, attemptCtx.Err()), onComplete)
		return
	}

	addresses := make([]net.Addr, 0, len(ips))
	for _, ip := range ips {
		addresses = append(addresses, &net.UDPAddr{IP: ip.IP, Port: entry.port, Zone: ip.Zone})
	}

	onComplete(resolveResult{host: entry.host, addresses: addresses})
}

// classifyLookupFailure maps a single entry's lookup failure onto the
// three-way taxonomy the engine's callers distinguish: a timed-out
// attempt, a name that genuinely doesn't resolve, or everything else a
// resolver library can fail with.
func classifyLookupFailure(err error, attemptCtxErr error) error {
	if errors.Is(attemptCtxErr, context.DeadlineExceeded) {
		return ErrTimedOut
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return ErrTimedOut
		}
		if dnsErr.IsNotFound {
			return ErrCannotFindHost
		}
	}

	if err == nil {
		// The lookup succeeded but returned zero addresses.
		return ErrCannotFindHost
	}

	return ErrDNSLookupFailed
}

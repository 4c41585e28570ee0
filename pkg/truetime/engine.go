package truetime

import (
	"context"
	"fmt"
	"time"

	"github.com/andrewlester/truetime/internal/ntp"
)

// Status narrates where the engine's state machine currently sits. It is
// exposed for observability only; nothing in this package branches on a
// caller reading it.
type Status int

const (
	StatusStopped Status = iota
	StatusRunning
	StatusWaitingForNetwork
	StatusPolling
)

// Client is the public true-time client: start it against a pool of NTP
// host names, then read ReferenceTime/Now at will. All exported methods
// are safe to call from any goroutine. Apart from Status, which waits for
// its answer, they return once their work is queued; the actual work
// happens on the engine's own serialisation goroutine.
type Client struct {
	config Config

	cmd      chan func()
	callback chan func()
	done     chan struct{}

	cell      *referenceCell
	monotonic MonotonicSource
	reach     ReachabilitySource

	updates chan struct{}

	// Everything below is only ever touched from the cmd goroutine.
	status              Status
	poolHosts           []string
	port                int
	started             bool
	finished            bool
	lastReachability    Reachability
	reachabilitySub     chan Reachability
	unsubscribeReach    func()
	roundActive         bool
	roundCancel         context.CancelFunc
	roundResolver       *resolver
	roundGen            int
	pollTimer           *time.Timer
	firstCallbacks      []func(*ReferenceTime)
	completionCallbacks []func(*ReferenceTime, error)
}

// ClientOption configures a Client at construction time, independently of
// the sampling Config. Most callers never need one; withMonotonicSource
// substitutes a different MonotonicSource for the default system clock.
type ClientOption func(*Client)

func withMonotonicSource(m MonotonicSource) ClientOption {
	return func(c *Client) { c.monotonic = m }
}

// NewClient constructs a Client and starts its background goroutines. It
// does not begin sampling until Start is called.
func NewClient(config Config, reach ReachabilitySource, opts ...ClientOption) *Client {
	c := &Client{
		config:    config,
		cmd:       make(chan func(), 64),
		callback:  make(chan func(), 256),
		done:      make(chan struct{}),
		cell:      newReferenceCell(),
		monotonic: systemMonotonicSource{},
		reach:     reach,
		updates:   make(chan struct{}, 1),
		status:    StatusStopped,
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.runLoop()
	go c.runCallbacks()
	return c
}

// Updates returns a channel that receives a value on every published
// update: the transition from no-reference to first-reference, and every
// subsequent successful round completion. The channel is buffered with
// capacity 1 and a new publication replaces a pending value rather than
// blocking, so a slow reader only ever sees "there is news", not every
// individual event.
func (c *Client) Updates() <-chan struct{} { return c.updates }

// ReferenceTime returns the latest accepted reference, or nil if none has
// ever been produced. It reads the reference cell directly and bypasses
// the command queue entirely, per the cell's own concurrency contract:
// safe from any goroutine, any time, no blocking.
func (c *Client) ReferenceTime() *ReferenceTime {
	return c.cell.Get()
}

// Now returns the client's current best estimate of true time. ok is
// false if no reference has ever been obtained.
func (c *Client) Now() (t ntp.Time64, ok bool) {
	ref := c.cell.Get()
	if ref == nil {
		return ntp.Time64{}, false
	}
	return ref.Now(), true
}

// Status reports where the engine's state machine currently sits. It
// round-trips through the command domain, so it blocks until any posted
// work ahead of it has run.
func (c *Client) Status() Status {
	result := make(chan Status, 1)
	c.post(func() { result <- c.status })
	select {
	case s := <-result:
		return s
	case <-c.done:
		return StatusStopped
	}
}

// Start begins sampling against pool (host names, tried as addresses
// resolve) on port. Calling Start again while already started changes
// the pool/port used by future rounds; it does not restart a round in
// flight.
func (c *Client) Start(pool []string, port int) {
	c.post(func() {
		c.poolHosts = pool
		c.port = port
		c.started = true
		c.status = StatusRunning

		if c.unsubscribeReach == nil {
			c.reachabilitySub = make(chan Reachability, 8)
			c.unsubscribeReach = c.reach.Subscribe(c.reachabilitySub)
			go c.pumpReachability(c.reachabilitySub)
		}

		if ref := c.cell.Get(); ref != nil {
			c.armPollTimer(c.config.PollInterval - time.Duration(ref.UptimeInterval())*time.Millisecond)
		}
	})
}

// Pause drops the reachability subscription, cancels the poll timer, and
// tears down any in-flight round. Callbacks already queued from a prior
// Start are discarded without being invoked; a subsequent Start is
// required before any new work happens.
func (c *Client) Pause() {
	c.post(func() {
		c.started = false
		c.status = StatusStopped

		if c.unsubscribeReach != nil {
			c.unsubscribeReach()
			c.unsubscribeReach = nil
			c.reachabilitySub = nil
		}

		c.cancelPollTimer()
		if c.roundActive {
			c.cancelRound()
		}
		c.firstCallbacks = nil
		c.completionCallbacks = nil
	})
}

// Close permanently shuts down the client's background goroutines. A
// closed Client must not be used again.
func (c *Client) Close() {
	c.Pause()
	close(c.done)
}

// FetchIfNeeded asks for the current reference time. first, if non-nil,
// fires as soon as any reference exists (possibly immediately, possibly
// from a still-running round's first accepted sample). completion, if
// non-nil, fires once the round behind the current/next reference has
// fully finished, with an error if it failed. Under Offline, completion
// fires immediately with ErrOffline (B4) rather than waiting.
func (c *Client) FetchIfNeeded(first func(*ReferenceTime), completion func(*ReferenceTime, error)) {
	c.post(func() {
		ref := c.cell.Get()

		if ref != nil && first != nil {
			c.deliver1(first, ref)
		}

		if c.lastReachability == Unreachable {
			if completion != nil {
				c.deliver2(completion, ref, ErrOffline)
			}
			return
		}

		if ref != nil && c.finished {
			if completion != nil {
				c.deliver2(completion, ref, nil)
			}
			return
		}

		if first != nil && ref == nil {
			c.firstCallbacks = append(c.firstCallbacks, first)
		}
		if completion != nil {
			c.completionCallbacks = append(c.completionCallbacks, completion)
		}

		if !c.roundActive && c.started && len(c.poolHosts) > 0 {
			c.startRound()
		}
	})
}

// post enqueues fn onto the engine's serial command domain. It is the
// only way any method on Client touches engine state.
func (c *Client) post(fn func()) {
	select {
	case c.cmd <- fn:
	case <-c.done:
	}
}

func (c *Client) runLoop() {
	for {
		select {
		case fn := <-c.cmd:
			fn()
		case <-c.done:
			return
		}
	}
}

// runCallbacks drains queued user callbacks on its own goroutine, never
// the command goroutine, so no callback ever fires while holding the
// engine's internal state, while still running them strictly in the order
// they were scheduled.
func (c *Client) runCallbacks() {
	for {
		select {
		case fn := <-c.callback:
			fn()
		case <-c.done:
			return
		}
	}
}

func (c *Client) deliver1(fn func(*ReferenceTime), ref *ReferenceTime) {
	c.callback <- func() { fn(ref) }
}

func (c *Client) deliver2(fn func(*ReferenceTime, error), ref *ReferenceTime, err error) {
	c.callback <- func() { fn(ref, err) }
}

func (c *Client) publishUpdate() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// pumpReachability forwards source events into the command domain. It
// exits once sub is closed or the client is shut down. Pause cancels the
// subscription but does not close sub, so a pump started before a Pause
// keeps waiting on it until Close.
func (c *Client) pumpReachability(sub chan Reachability) {
	for {
		select {
		case status, ok := <-sub:
			if !ok {
				return
			}
			c.post(func() { c.handleReachability(status) })
		case <-c.done:
			return
		}
	}
}

func (c *Client) handleReachability(status Reachability) {
	ntp.Info("truetime: reachability changed:", status)
	c.lastReachability = status

	if status == Unreachable {
		c.status = StatusWaitingForNetwork
		c.cancelPollTimer()
		if c.roundActive {
			c.cancelRound()
		}
		c.failPendingCompletions(ErrOffline)
		return
	}

	c.status = StatusRunning
	if !c.roundActive && c.started && len(c.poolHosts) > 0 && !c.finished {
		c.startRound()
	}
}

func (c *Client) failPendingCompletions(err error) {
	ref := c.cell.Get()
	callbacks := c.completionCallbacks
	c.completionCallbacks = nil
	for _, cb := range callbacks {
		c.deliver2(cb, ref, err)
	}
}

// cancelRound tears down the in-flight round without waiting for its
// goroutine to drain. It releases both handles the round owns: the
// resolver (if resolution hasn't finished yet) and the pool's context
// (which in turn unblocks every connection still in flight).
func (c *Client) cancelRound() {
	if c.roundResolver != nil {
		c.roundResolver.stop()
		c.roundResolver = nil
	}
	if c.roundCancel != nil {
		c.roundCancel()
	}
	c.roundActive = false
}

func (c *Client) armPollTimer(d time.Duration) {
	c.cancelPollTimer()
	if d < 0 {
		d = 0
	}
	c.pollTimer = time.AfterFunc(d, func() {
		c.post(c.handlePollTimerFired)
	})
}

func (c *Client) cancelPollTimer() {
	if c.pollTimer != nil {
		c.pollTimer.Stop()
		c.pollTimer = nil
	}
}

func (c *Client) handlePollTimerFired() {
	c.invalidate()
	if c.started && c.lastReachability != Unreachable && len(c.poolHosts) > 0 {
		c.startRound()
	}
}

// invalidate tears down any running round and marks the engine as not
// finished, ahead of starting the next poll-driven round.
func (c *Client) invalidate() {
	if c.roundActive {
		c.cancelRound()
	}
	c.finished = false
}

// startRound kicks off resolution for the current pool. At most one round
// runs at a time; every caller checks roundActive first.
func (c *Client) startRound() {
	c.roundActive = true
	c.status = StatusRunning
	c.roundGen++
	gen := c.roundGen
	ntp.Info(fmt.Sprintf("truetime: round %d starting, pool=%v port=%d", gen, c.poolHosts, c.port))

	entries := make([]hostEntry, 0, len(c.poolHosts))
	for _, host := range c.poolHosts {
		entries = append(entries, hostEntry{host: host, port: c.port})
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.roundCancel = cancel

	res := newResolver(entries, c.config.Timeout)
	c.roundResolver = res
	res.resolve(func(result resolveResult) {
		c.post(func() { c.handleResolved(ctx, gen, result) })
	})
}

// isCurrentRound reports whether gen still names the round in flight.
// Once a round is cancelled or superseded (Pause, Offline, another
// startRound), its stale resolver/pool callbacks are dropped here instead
// of mutating state that belongs to a newer round.
func (c *Client) isCurrentRound(gen int) bool {
	return gen == c.roundGen && c.roundActive
}

func (c *Client) handleResolved(ctx context.Context, gen int, result resolveResult) {
	if !c.isCurrentRound(gen) {
		return
	}
	// Resolution for this round has delivered; the resolver has nothing
	// left to cancel, so cancelRound no longer needs a handle to it.
	c.roundResolver = nil

	if result.err != nil {
		c.roundActive = false
		c.failPendingCompletions(result.err)
		return
	}

	addresses := result.addresses
	if len(addresses) > c.config.MaxServers {
		addresses = addresses[:c.config.MaxServers]
	}

	resolved := make([]resolvedAddress, 0, len(addresses))
	for _, addr := range addresses {
		resolved = append(resolved, resolvedAddress{entryHost: result.host, addr: addr})
	}

	roundFirstFired := false

	go func() {
		p := &pool{config: c.config, monotonic: c.monotonic}
		result := p.run(ctx, resolved, func(event progressEvent) {
			if event.result.err != nil || roundFirstFired {
				return
			}
			roundFirstFired = true
			c.post(func() { c.handleFirstSample(gen, event.result.sample) })
		})
		c.post(func() { c.handleRoundComplete(gen, result) })
	}()
}

func (c *Client) handleFirstSample(gen int, sample Sample) {
	if !c.isCurrentRound(gen) {
		return
	}
	if c.cell.Get() != nil {
		// A prior round already established a reference. "first" fires
		// only for the very first reference a client ever produces; a
		// caller that arrives after that point gets delivered immediately
		// by FetchIfNeeded instead.
		return
	}

	ref := ReferenceTime{
		WallTime:         ntp.Time64FromUnix(sample.ResponseTimeMS/1000, (sample.ResponseTimeMS%1000)*1000).AddMilliseconds(sample.OffsetMS),
		UptimeAtResponse: sample.ResponseTicks,
		ServerResponse:   &sample,
		StartTime:        &sample.StartTime,
		SampleSize:       1,
		Host:             sample.ServerHost,
	}
	c.cell.Set(ref)
	ntp.Debug(fmt.Sprintf("truetime: round %d first sample from %s, offset=%dms delay=%dms", gen, sample.ServerHost, sample.OffsetMS, sample.DelayMS))

	callbacks := c.firstCallbacks
	c.firstCallbacks = nil
	for _, cb := range callbacks {
		c.deliver1(cb, &ref)
	}

	// The transition from no-reference to first-reference is its own
	// publish point, distinct from a round's final completion.
	c.publishUpdate()
}

func (c *Client) handleRoundComplete(gen int, result poolResult) {
	if !c.isCurrentRound(gen) {
		return
	}
	c.roundActive = false

	sample, ok := selectSample(result.hostsInOrder, result.samplesByHost)
	if result.cancelled || !ok {
		err := ErrNoValidPacket
		if result.cancelled {
			err = ErrOffline
		}
		ntp.Info(fmt.Sprintf("truetime: round %d finished with no sample: %v", gen, err))
		c.failPendingCompletions(err)
		return
	}

	ref := ReferenceTime{
		WallTime:         ntp.Time64FromUnix(sample.ResponseTimeMS/1000, (sample.ResponseTimeMS%1000)*1000).AddMilliseconds(sample.OffsetMS),
		UptimeAtResponse: sample.ResponseTicks,
		ServerResponse:   &sample,
		StartTime:        &sample.StartTime,
		SampleSize:       result.completed,
		Host:             sample.ServerHost,
	}
	c.cell.Set(ref)
	c.finished = true
	c.status = StatusPolling
	ntp.Info(fmt.Sprintf("truetime: round %d complete, selected %s, sample_size=%d", gen, sample.ServerHost, result.completed))

	callbacks := c.completionCallbacks
	c.completionCallbacks = nil
	for _, cb := range callbacks {
		c.deliver2(cb, &ref, nil)
	}

	c.publishUpdate()
	c.armPollTimer(c.config.PollInterval - time.Duration(ref.UptimeInterval())*time.Millisecond)
}

// String renders a Status for logging.
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusRunning:
		return "running"
	case StatusWaitingForNetwork:
		return "waiting-for-network"
	case StatusPolling:
		return "polling"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

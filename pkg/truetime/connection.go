package truetime

import (
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/andrewlester/truetime/internal/ntp"
)

// timeNow is a seam for tests; production code always uses time.Now.
var timeNow = time.Now

// connState mirrors a single exchange's lifecycle. Go's net package
// collapses "register read/write readiness" into a blocking call with a
// deadline, so Sending and AwaitingReply are here mostly for narration and
// tests rather than distinct goroutine-resumption points; the transitions
// they represent still happen in the expected order.
type connState int

const (
	connIdle connState = iota
	connSending
	connAwaitingReply
	connCompleted
	connFailed
	connTimedOut
)

// connResult is what a connection delivers to its pool exactly once,
// on reaching a terminal state.
type connResult struct {
	sample Sample
	err    error
}

// connection runs a single UDP exchange against one address, retrying up
// to maxRetries times on non-timeout failure. One connection talks to
// exactly one address; the socket is never shared.
type connection struct {
	host            string
	address         net.Addr
	timeout         time.Duration
	maxRetries      int
	maxDispersionMS int64
	ttl             int
	monotonic       MonotonicSource

	dialUDP func(network string, addr net.Addr) (net.Conn, error)

	state    connState
	attempts int

	mu      sync.Mutex
	netConn net.Conn
	closed  bool
}

func newConnection(host string, address net.Addr, cfg Config, monotonic MonotonicSource) *connection {
	return &connection{
		host:            host,
		address:         address,
		timeout:         cfg.Timeout,
		maxRetries:      cfg.MaxRetries,
		maxDispersionMS: cfg.MaxDispersion.Milliseconds(),
		ttl:             cfg.TTL,
		monotonic:       monotonic,
		dialUDP:         dialUDPAddr,
		state:           connIdle,
	}
}

func dialUDPAddr(network string, addr net.Addr) (net.Conn, error) {
	return net.Dial(network, addr.String())
}

// close forces the connection terminal from a goroutine other than the
// one running it: it shuts the socket, so a pending Read/Write unblocks
// immediately, and marks the connection closed so a retry triggered by
// that unblock doesn't open a new one. Idempotent; safe to call even if
// the connection never started or has already finished.
func (c *connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.netConn != nil {
		c.netConn.Close()
	}
}

// run executes the connection's full retry loop synchronously on the
// calling goroutine (the pool gives every connection its own goroutine,
// so this blocks that goroutine and no other). It returns exactly one
// connResult, never more.
func (c *connection) run() connResult {
	if c.state != connIdle {
		panic("truetime: connection already started")
	}

	var lastErr error
	for {
		sample, err := c.attempt()
		if err == nil {
			c.state = connCompleted
			return connResult{sample: sample}
		}

		if err == ErrTimedOut {
			c.state = connTimedOut
			return connResult{err: ErrTimedOut}
		}

		lastErr = err
		c.attempts++
		if c.attempts > c.maxRetries {
			c.state = connFailed
			return connResult{err: lastErr}
		}
		// Failed with attempts remaining: re-enter Sending.
	}
}

// attempt performs one send/receive exchange. It returns ErrTimedOut
// verbatim so run() can distinguish "don't retry" from every other
// failure.
func (c *connection) attempt() (Sample, error) {
	c.state = connSending

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Sample{}, ErrTimedOut
	}
	c.mu.Unlock()

	conn, err := c.dialUDP("udp", c.address)
	if err != nil {
		return Sample{}, &ConnectionError{Err: err}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return Sample{}, ErrTimedOut
	}
	c.netConn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.netConn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	if c.ttl != 0 {
		// Best-effort: a loopback or non-IPv4 socket rejects SetTTL, and
		// that's not a reason to fail the exchange.
		ipv4.NewConn(conn).SetTTL(c.ttl)
	}

	startWall := ntp.Time64FromTime(timeNow())
	requestTicks := c.monotonic.Uptime()

	if _, err := conn.Write(ntp.EncodeRequest(startWall)); err != nil {
		return Sample{}, &ConnectionError{Err: err}
	}

	c.state = connAwaitingReply
	if err := conn.SetReadDeadline(timeNow().Add(c.timeout)); err != nil {
		return Sample{}, &ConnectionError{Err: err}
	}

	buf := make([]byte, ntp.PacketSize+1) // +1 to detect oversized datagrams
	n, err := conn.Read(buf)
	responseTicks := c.monotonic.Uptime()
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return Sample{}, ErrTimedOut
		}
		return Sample{}, &ConnectionError{Err: err}
	}

	if n != ntp.PacketSize {
		return Sample{}, ErrBadServerResponse
	}

	packet, err := ntp.Decode(buf[:n])
	if err != nil {
		return Sample{}, ErrBadServerResponse
	}
	ntp.Debug("truetime: received packet from", c.address, "stratum", packet.Stratum, "mode", packet.Mode)

	responseTimeMS := startWall.UnixMilliseconds() + responseTicks.Sub(requestTicks)

	return validate(acceptableResponse{
		packet:         packet,
		startTime:      startWall,
		requestTicks:   requestTicks,
		responseTicks:  responseTicks,
		responseTimeMS: responseTimeMS,
		host:           c.host,
		address:        c.address,
	}, c.maxDispersionMS)
}

package truetime

import (
	"context"
	"net"
	"sync"
)

// progressEvent is delivered once per terminal connection. A finished
// connection frees its concurrency slot as soon as its goroutine exits,
// so the next connection may launch before this event is delivered.
type progressEvent struct {
	host   string
	result connResult
}

// poolResult is what a pool reports back to the engine: every sample
// keyed by the address it came from (in first-seen order, for selector
// tie-breaking) plus how many connections actually completed, counted
// regardless of whether they were accepted.
type poolResult struct {
	hostsInOrder  []string
	samplesByHost map[string][]Sample
	completed     int
	cancelled     bool
}

// resolvedAddress pairs a socket address with the pool entry that
// resolved to it, so log lines and ReferenceTime.Host can show the
// human-entered name while the selector still groups by the concrete
// address each datagram actually went to.
type resolvedAddress struct {
	entryHost string
	addr      net.Addr
}

// pool runs the connections for one sampling round: len(addresses) *
// samplesPerAddress exchanges, at most maxConnections running
// concurrently.
type pool struct {
	config    Config
	monotonic MonotonicSource

	cancel context.CancelFunc
}

// run spawns every connection and blocks the calling goroutine until
// either all of them reach a terminal state or ctx is cancelled.
// progress fires synchronously, in arrival order, for each terminal
// connection run drains before it returns, never after; once ctx is
// cancelled, connections that finish later produce no progress event.
func (p *pool) run(ctx context.Context, addresses []resolvedAddress, progress func(progressEvent)) poolResult {
	type job struct {
		host      string
		entryHost string
		address   net.Addr
	}

	var jobs []job
	hostsInOrder := make([]string, 0, len(addresses))
	seen := make(map[string]bool)
	for _, addr := range addresses {
		key := addr.addr.String()
		if !seen[key] {
			seen[key] = true
			hostsInOrder = append(hostsInOrder, key)
		}
		for i := 0; i < p.config.SamplesPerAddress; i++ {
			jobs = append(jobs, job{host: key, entryHost: addr.entryHost, address: addr.addr})
		}
	}

	results := make(chan progressEvent, len(jobs))
	sem := make(chan struct{}, p.config.MaxConnections)
	var wg sync.WaitGroup

	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}

			conn := newConnection(j.entryHost, j.address, p.config, p.monotonic)

			// conn.run() blocks on a socket Read that ctx cancellation
			// alone can't interrupt; watch ctx here and force the
			// connection closed so a round torn down mid-exchange doesn't
			// leave the goroutine and socket alive until Config.Timeout.
			stopWatch := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					conn.close()
				case <-stopWatch:
				}
			}()

			result := conn.run()
			close(stopWatch)

			select {
			case results <- progressEvent{host: j.host, result: result}:
			case <-ctx.Done():
			}
		}(j)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	samplesByHost := make(map[string][]Sample, len(hostsInOrder))
	completed := 0
	cancelled := false

drain:
	for {
		select {
		case event, ok := <-results:
			if !ok {
				break drain
			}
			completed++
			if progress != nil {
				progress(event)
			}
			if event.result.err == nil {
				samplesByHost[event.host] = append(samplesByHost[event.host], event.result.sample)
			}
		case <-ctx.Done():
			cancelled = true
			break drain
		}
	}

	return poolResult{
		hostsInOrder:  hostsInOrder,
		samplesByHost: samplesByHost,
		completed:     completed,
		cancelled:     cancelled,
	}
}

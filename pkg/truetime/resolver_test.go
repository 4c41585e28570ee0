package truetime

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestResolverSucceedsOnFirstEntry(t *testing.T) {
	r := newResolver([]hostEntry{{host: "first.example", port: 123}}, time.Second)
	r.lookup = func(ctx context.Context, host string) ([]net.IPAddr, error) {
		return []net.IPAddr{{IP: net.IPv4(10, 0, 0, 1)}}, nil
	}

	done := make(chan resolveResult, 1)
	r.resolve(func(res resolveResult) { done <- res })

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("unexpected error: %v", res.err)
		}
		if len(res.addresses) != 1 {
			t.Fatalf("expected 1 address, got %d", len(res.addresses))
		}
	case <-time.After(time.Second):
		t.Fatal("resolve did not complete")
	}
}

func TestResolverFallsBackThroughEntries(t *testing.T) {
	entries := []hostEntry{
		{host: "bad.example", port: 123},
		{host: "good.example", port: 123},
	}
	r := newResolver(entries, time.Second)
	r.lookup = func(ctx context.Context, host string) ([]net.IPAddr, error) {
		if host == "bad.example" {
			return nil, net.InvalidAddrError("no such host")
		}
		return []net.IPAddr{{IP: net.IPv4(10, 0, 0, 2)}}, nil
	}

	done := make(chan resolveResult, 1)
	r.resolve(func(res resolveResult) { done <- res })

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("unexpected error: %v", res.err)
		}
		if res.host != "good.example" {
			t.Fatalf("expected fallback to good.example, got %s", res.host)
		}
	case <-time.After(time.Second):
		t.Fatal("resolve did not complete")
	}
}

func TestResolverExhaustsAllEntries(t *testing.T) {
	entries := []hostEntry{{host: "a.example", port: 123}, {host: "b.example", port: 123}}
	r := newResolver(entries, time.Second)
	r.lookup = func(ctx context.Context, host string) ([]net.IPAddr, error) {
		return nil, net.InvalidAddrError("no such host")
	}

	done := make(chan resolveResult, 1)
	r.resolve(func(res resolveResult) { done <- res })

	select {
	case res := <-done:
		if res.err != ErrDNSLookupFailed {
			t.Fatalf("expected ErrDNSLookupFailed, got %v", res.err)
		}
	case <-time.After(time.Second):
		t.Fatal("resolve did not complete")
	}
}

func TestResolverClassifiesNotFoundAsCannotFindHost(t *testing.T) {
	entries := []hostEntry{{host: "missing.example", port: 123}}
	r := newResolver(entries, time.Second)
	r.lookup = func(ctx context.Context, host string) ([]net.IPAddr, error) {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}

	done := make(chan resolveResult, 1)
	r.resolve(func(res resolveResult) { done <- res })

	select {
	case res := <-done:
		if res.err != ErrCannotFindHost {
			t.Fatalf("expected ErrCannotFindHost, got %v", res.err)
		}
	case <-time.After(time.Second):
		t.Fatal("resolve did not complete")
	}
}

func TestResolverClassifiesEmptyResultAsCannotFindHost(t *testing.T) {
	entries := []hostEntry{{host: "empty.example", port: 123}}
	r := newResolver(entries, time.Second)
	r.lookup = func(ctx context.Context, host string) ([]net.IPAddr, error) {
		return nil, nil
	}

	done := make(chan resolveResult, 1)
	r.resolve(func(res resolveResult) { done <- res })

	select {
	case res := <-done:
		if res.err != ErrCannotFindHost {
			t.Fatalf("expected ErrCannotFindHost, got %v", res.err)
		}
	case <-time.After(time.Second):
		t.Fatal("resolve did not complete")
	}
}

func TestResolverClassifiesDNSTimeoutAsTimedOut(t *testing.T) {
	entries := []hostEntry{{host: "slow.example", port: 123}}
	r := newResolver(entries, time.Second)
	r.lookup = func(ctx context.Context, host string) ([]net.IPAddr, error) {
		return nil, &net.DNSError{Err: "i/o timeout", Name: host, IsTimeout: true}
	}

	done := make(chan resolveResult, 1)
	r.resolve(func(res resolveResult) { done <- res })

	select {
	case res := <-done:
		if res.err != ErrTimedOut {
			t.Fatalf("expected ErrTimedOut, got %v", res.err)
		}
	case <-time.After(time.Second):
		t.Fatal("resolve did not complete")
	}
}

func TestResolverClassifiesAttemptDeadlineAsTimedOut(t *testing.T) {
	entries := []hostEntry{{host: "slow.example", port: 123}}
	r := newResolver(entries, 10*time.Millisecond)
	r.lookup = func(ctx context.Context, host string) ([]net.IPAddr, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	done := make(chan resolveResult, 1)
	r.resolve(func(res resolveResult) { done <- res })

	select {
	case res := <-done:
		if res.err != ErrTimedOut {
			t.Fatalf("expected ErrTimedOut, got %v", res.err)
		}
	case <-time.After(time.Second):
		t.Fatal("resolve did not complete")
	}
}

func TestResolverStopPreventsCallback(t *testing.T) {
	entries := []hostEntry{{host: "slow.example", port: 123}}
	r := newResolver(entries, time.Second)

	block := make(chan struct{})
	r.lookup = func(ctx context.Context, host string) ([]net.IPAddr, error) {
		<-block
		return []net.IPAddr{{IP: net.IPv4(10, 0, 0, 3)}}, nil
	}

	fired := make(chan struct{}, 1)
	r.resolve(func(res resolveResult) { fired <- struct{}{} })
	r.stop()
	close(block)

	select {
	case <-fired:
		t.Fatal("callback should not fire after stop")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNewResolverPanicsOnEmptyEntries(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for an empty entry list")
		}
	}()
	newResolver(nil, time.Second)
}

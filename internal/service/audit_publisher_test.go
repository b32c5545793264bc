package service_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/HeliumBERT/tracking/internal/queue"
	"github.com/HeliumBERT/tracking/internal/service"
)

// silentBroker accepts TCP connections and never writes a byte.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestPublishDoesNotWaitOnUnresponsiveBroker(t *testing.T) {
	p := service.NewAMQPAuditPublisher(service.AMQPPublisherConfig{
		URL:         silentBroker(t),
		Buffer:      1,
		DialTimeout: 200 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := p.PublishAuditRecorded(ctx, queue.AuditRecordedEvent{ID: "a1"}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := p.PublishAuditRecorded(ctx, queue.AuditRecordedEvent{ID: "a2"}); !errors.Is(err, service.ErrAuditBacklogFull) {
		t.Fatalf("second publish err = %v, want backlog full", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("publish blocked for %s", elapsed)
	}
}

func TestPublisherRunStopsWhileBrokerHangs(t *testing.T) {
	p := service.NewAMQPAuditPublisher(service.AMQPPublisherConfig{
		URL:         silentBroker(t),
		DialTimeout: 200 * time.Millisecond,
	}, nil)
	if err := p.PublishAuditRecorded(context.Background(), queue.AuditRecordedEvent{ID: "a1"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation; dial is not bounded")
	}
}

func TestRecorderPublishIsNonBlocking(t *testing.T) {
	p := service.NewAMQPAuditPublisher(service.AMQPPublisherConfig{URL: silentBroker(t), Buffer: 4}, nil)
	f := newFixture(t)
	f.seed("alice", "BASIC")

	deps := service.Deps{Store: f.store, Hasher: f.hasher, Audit: service.NewAuditRecorder(f.clock.Now, p, nil), Now: f.clock.Now}
	ss, err := service.NewSessionService(deps, service.SessionConfig{InactivityTimeout: timeout, ActivityCheckInterval: interval})
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if _, err := ss.Create(context.Background(), service.Credentials{Username: "alice", Password: "alice-pw"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("login took %s with a hung broker", elapsed)
	}
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/sos-core/internal/profile"
)

type fakeActivator struct {
	mu    sync.Mutex
	calls []string
	known map[string]bool
}

func (f *fakeActivator) ActivateFrom(_ context.Context, id string, src profile.Source) (profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if src != profile.SourceRemote {
		return profile.Profile{}, fmt.Errorf("unexpected source %q", src)
	}
	if !f.known[id] {
		return profile.Profile{}, profile.ErrUnknownProfile
	}
	f.calls = append(f.calls, id)
	return profile.Profile{Identifier: id, Active: true}, nil
}

func (f *fakeActivator) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func message(t *testing.T, ev ActivationEvent) *sarama.ConsumerMessage {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: "t", Partition: 0, Offset: 1, Timestamp: time.Now().UTC(), Value: b}
}

func newTestRunner(target Activator) *Runner {
	cfg := Config{Enabled: true, Instance: "node-a"}
	return NewRunner(cfg, target, Options{Register: prometheus.NewRegistry()})
}

func TestHandleMessage_AppliesRemoteAndSkipsStale(t *testing.T) {
	fa := &fakeActivator{known: map[string]bool{"hydrology": true, "inspire": true}}
	r := newTestRunner(fa)
	ctx := context.Background()

	if err := r.handleMessage(ctx, message(t, ActivationEvent{Profile: "hydrology", Instance: "node-b", Version: 5})); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	// same version again and an older one are dropped
	if err := r.handleMessage(ctx, message(t, ActivationEvent{Profile: "hydrology", Instance: "node-b", Version: 5})); err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if err := r.handleMessage(ctx, message(t, ActivationEvent{Profile: "inspire", Instance: "node-b", Version: 4})); err != nil {
		t.Fatalf("stale: %v", err)
	}
	// versions are tracked per instance
	if err := r.handleMessage(ctx, message(t, ActivationEvent{Profile: "inspire", Instance: "node-c", Version: 1})); err != nil {
		t.Fatalf("other instance: %v", err)
	}

	got := fa.Calls()
	if len(got) != 2 || got[0] != "hydrology" || got[1] != "inspire" {
		t.Fatalf("calls got %v want [hydrology inspire]", got)
	}
}

func TestHandleMessage_IgnoresOwnInstance(t *testing.T) {
	fa := &fakeActivator{known: map[string]bool{"hydrology": true}}
	r := newTestRunner(fa)
	if err := r.handleMessage(context.Background(), message(t, ActivationEvent{Profile: "hydrology", Instance: "node-a", Version: 1})); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	if n := len(fa.Calls()); n != 0 {
		t.Fatalf("own event applied %d times", n)
	}
}

func TestHandleMessage_BadInput(t *testing.T) {
	fa := &fakeActivator{known: map[string]bool{}}
	r := newTestRunner(fa)
	ctx := context.Background()

	if err := r.handleMessage(ctx, &sarama.ConsumerMessage{Value: []byte("{")}); err == nil {
		t.Fatal("expected decode error")
	}
	if err := r.handleMessage(ctx, message(t, ActivationEvent{Instance: "node-b", Version: 1})); !errors.Is(err, errInvalidEvent) {
		t.Fatalf("got %v want errInvalidEvent", err)
	}
	// unknown profiles are logged and skipped
	if err := r.handleMessage(ctx, message(t, ActivationEvent{Profile: "nope", Instance: "node-b", Version: 1})); err != nil {
		t.Fatalf("unknown profile: %v", err)
	}
}

func TestHandleMessage_AgainstHandler(t *testing.T) {
	h := profile.New(profile.Options{})
	if err := h.Put(context.Background(), profile.Profile{Identifier: "hydrology"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	var local int
	h.OnLocalActivation(func(context.Context, profile.Profile) { local++ })

	r := newTestRunner(h)
	if err := r.handleMessage(context.Background(), message(t, ActivationEvent{Profile: "hydrology", Instance: "node-b", Version: 1})); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	if got := h.Active().Identifier; got != "hydrology" {
		t.Fatalf("active got %q want hydrology", got)
	}
	// remote activations are not published again
	if local != 0 {
		t.Fatalf("local listener called %d times", local)
	}
}

func TestReadiness(t *testing.T) {
	r := NewRunner(Config{}, nil, Options{})
	if ok, _ := r.Readiness(); !ok {
		t.Fatal("disabled runner should be ready")
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("disabled Start: %v", err)
	}

	r = newTestRunner(&fakeActivator{})
	if ok, _ := r.Readiness(); ok {
		t.Fatal("enabled runner without assignment should not be ready")
	}
}

func TestPublisher_SendsEvent(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, nil)
	var got ActivationEvent
	mp.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
		return json.Unmarshal(val, &got)
	})

	p := newPublisher(mp, Config{Topic: "t", Instance: "node-a"}, PublisherOptions{Register: prometheus.NewRegistry()})
	p.PublishActivation(context.Background(), profile.Profile{Identifier: "hydrology"})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got.Profile != "hydrology" || got.Instance != "node-a" || got.Version == 0 || got.TS.IsZero() {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestPublisher_VersionsIncrease(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, nil)
	var versions []uint64
	for range 2 {
		mp.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
			var ev ActivationEvent
			if err := json.Unmarshal(val, &ev); err != nil {
				return err
			}
			versions = append(versions, ev.Version)
			return nil
		})
	}

	p := newPublisher(mp, Config{Topic: "t", Instance: "node-a"}, PublisherOptions{Register: prometheus.NewRegistry()})
	p.PublishActivation(context.Background(), profile.Profile{Identifier: "a"})
	p.PublishActivation(context.Background(), profile.Profile{Identifier: "b"})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(versions) != 2 || versions[1] <= versions[0] {
		t.Fatalf("versions not increasing: %v", versions)
	}
}

func TestMetrics_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRunner(Config{Instance: "node-a"}, &fakeActivator{}, Options{Register: reg})
	mp := mocks.NewAsyncProducer(t, nil)
	p := newPublisher(mp, Config{Topic: "t", Instance: "node-a"}, PublisherOptions{Register: reg})
	if r.ms.msgs != p.ms.msgs || r.ms.lag != p.ms.lag {
		t.Fatal("publisher and runner should share collectors on one registry")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestClaims_Snapshot(t *testing.T) {
	var c claims
	if ok, parts := c.snapshot(); ok || parts != nil {
		t.Fatalf("fresh claims: ok=%v parts=%v", ok, parts)
	}
	c.set(map[string][]int32{"a": {2, 0}, "b": {1}})
	ok, parts := c.snapshot()
	if !ok || len(parts) != 3 || parts[0] != 0 || parts[2] != 2 {
		t.Fatalf("after set: ok=%v parts=%v", ok, parts)
	}
	parts[0] = 99
	if _, again := c.snapshot(); again[0] != 0 {
		t.Fatal("snapshot shares the internal slice")
	}
	c.clear()
	if ok, _ := c.snapshot(); ok {
		t.Fatal("cleared claims still active")
	}
}

func TestVersionLog_Advance(t *testing.T) {
	l := newVersionLog(2)
	steps := []struct {
		instance string
		version  uint64
		want     bool
	}{
		{"a", 3, true},
		{"a", 3, false},
		{"a", 2, false},
		{"a", 4, true},
		{"b", 1, true},
		{"c", 1, true},
		// "a" was evicted by b and c
		{"a", 1, true},
	}
	for i, s := range steps {
		if got := l.advance(s.instance, s.version); got != s.want {
			t.Fatalf("step %d: advance(%q, %d) = %v, want %v", i, s.instance, s.version, got, s.want)
		}
	}
}

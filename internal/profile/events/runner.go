package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/sos-core/internal/profile"
)

// Activator applies a remote activation.
type Activator interface {
	ActivateFrom(ctx context.Context, id string, src profile.Source) (profile.Profile, error)
}

var errInvalidEvent = errors.New("invalid activation event")

// Runner consumes activation events published by other instances.
type Runner struct {
	log    *slog.Logger
	cfg    Config
	target Activator
	ms     *metricSet
	seen   *versionLog
	owned  claims
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
}

func NewRunner(cfg Config, target Activator, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	return &Runner{
		log:    opts.Logger,
		cfg:    cfg,
		target: target,
		ms:     newMetricSet(opts.Register),
		seen:   newVersionLog(1024),
	}
}

// Start joins the consumer group and returns once the background loop is
// running. A disabled runner returns immediately.
func (r *Runner) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.log.Info("profile event runner disabled")
		return nil
	}
	if r.target == nil {
		return errors.New("profile event runner: activator is required")
	}

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, r.cfg.consumerConfig())
	if err != nil {
		return fmt.Errorf("consumer group: %w", err)
	}
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(2)
	go r.consume(ctx, group)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("profile event runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers, "instance", r.cfg.Instance)
	return nil
}

// consume rejoins the group after every rebalance or transient failure until
// ctx is cancelled.
func (r *Runner) consume(ctx context.Context, group sarama.ConsumerGroup) {
	defer r.wg.Done()
	defer func() {
		if err := group.Close(); err != nil {
			r.log.Error("kafka consumer group close", "err", err)
		}
	}()

	h := &groupHandler{runner: r}
	for ctx.Err() == nil {
		err := group.Consume(ctx, []string{r.cfg.Topic}, h)
		if err == nil {
			continue
		}
		r.log.Error("kafka consume error", "err", err)
		select {
		case <-time.After(r.cfg.RetryBackoff):
		case <-ctx.Done():
		}
	}
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("profile event runner stopped")
}

// Readiness reports whether the consumer currently holds partitions. A
// disabled runner is always ready.
func (r *Runner) Readiness() (ready bool, partitions []int32) {
	if !r.cfg.Enabled {
		return true, nil
	}
	return r.owned.snapshot()
}

// claims tracks the partitions assigned in the current group session.
type claims struct {
	mu     sync.RWMutex
	active bool
	parts  []int32
}

func (c *claims) set(byTopic map[string][]int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = true
	c.parts = c.parts[:0]
	for _, ps := range byTopic {
		c.parts = append(c.parts, ps...)
	}
	slices.Sort(c.parts)
}

func (c *claims) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.parts = nil
}

func (c *claims) snapshot() (bool, []int32) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active, slices.Clone(c.parts)
}

func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()
	if !msg.Timestamp.IsZero() {
		r.ms.lag.Set(time.Since(msg.Timestamp).Seconds())
	}

	var ev ActivationEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		return fmt.Errorf("decode: %w", err)
	}
	if !ev.valid() {
		r.ms.msgs.WithLabelValues("error").Inc()
		return errInvalidEvent
	}
	if ev.Instance == r.cfg.Instance {
		r.ms.msgs.WithLabelValues("self").Inc()
		return nil
	}
	if !r.seen.advance(ev.Instance, ev.Version) {
		r.ms.msgs.WithLabelValues("skip_version").Inc()
		return nil
	}

	_, err := r.target.ActivateFrom(ctx, ev.Profile, profile.SourceRemote)
	r.ms.proc.Observe(time.Since(start).Seconds())
	if errors.Is(err, profile.ErrUnknownProfile) {
		r.ms.msgs.WithLabelValues("unknown_profile").Inc()
		r.log.Warn("remote activation of unknown profile", "profile", ev.Profile, "instance", ev.Instance)
		return nil
	}
	if err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		return fmt.Errorf("activate %q: %w", ev.Profile, err)
	}
	r.ms.msgs.WithLabelValues("ok").Inc()
	return nil
}

type groupHandler struct {
	runner *Runner
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.runner.owned.set(sess.Claims())
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.runner.owned.clear()
	return nil
}

// ConsumeClaim marks every message, failed ones included; a malformed
// event must not stall the partition.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.runner.handleMessage(sess.Context(), msg); err != nil {
			h.runner.log.Warn("profile event skipped", "partition", msg.Partition, "offset", msg.Offset, "err", err)
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/sos-core/internal/profile"
)

// Publisher sends local activations to the topic without blocking the
// request that caused them.
type Publisher struct {
	log      *slog.Logger
	topic    string
	instance string
	events   chan ActivationEvent
	prod     sarama.AsyncProducer
	ms       *metricSet
	version  atomic.Uint64
	stopped  chan struct{}
	now      func() time.Time
}

type PublisherOptions struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
}

func NewPublisher(cfg Config, opts PublisherOptions) (*Publisher, error) {
	prod, err := sarama.NewAsyncProducer(cfg.Brokers, cfg.producerConfig())
	if err != nil {
		return nil, fmt.Errorf("profile events: create async producer: %w", err)
	}
	return newPublisher(prod, cfg, opts), nil
}

func newPublisher(prod sarama.AsyncProducer, cfg Config, opts PublisherOptions) *Publisher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	p := &Publisher{
		log:      opts.Logger,
		topic:    cfg.Topic,
		instance: cfg.Instance,
		events:   make(chan ActivationEvent, cfg.QueueSize),
		prod:     prod,
		ms:       newMetricSet(opts.Register),
		stopped:  make(chan struct{}),
		now:      time.Now,
	}
	// versions start at the wall clock so a restarted instance is not
	// deduplicated against its previous run
	p.version.Store(uint64(time.Now().UnixNano()))

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.log.Error("profile events: marshal", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic:     p.topic,
				Key:       sarama.StringEncoder(ev.Instance),
				Value:     sarama.ByteEncoder(b),
				Timestamp: ev.TS,
			}
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				p.ms.published.WithLabelValues("error").Inc()
				p.log.Error("profile events: producer error", "err", err)
			}
		}
	}()

	return p
}

// PublishActivation queues an event for p. It matches the signature of
// profile.Handler.OnLocalActivation.
func (p *Publisher) PublishActivation(_ context.Context, prof profile.Profile) {
	ev := ActivationEvent{
		Profile:  prof.Identifier,
		Instance: p.instance,
		Version:  p.version.Add(1),
		TS:       p.now().UTC(),
	}
	select {
	case p.events <- ev:
		p.ms.published.WithLabelValues("queued").Inc()
	default:
		p.ms.published.WithLabelValues("dropped").Inc()
		p.log.Warn("profile events: queue full, activation not propagated", "profile", ev.Profile)
	}
}

func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped

	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("profile events: close producer: %w", err)
	}
	return nil
}

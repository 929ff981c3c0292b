package events

import (
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

type Config struct {
	Enabled  bool
	Brokers  []string
	Topic    string
	GroupID  string
	Instance string

	QueueSize        int
	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	RetryBackoff     time.Duration
}

// FromEnv reads PROFILE_EVENTS_ENABLED, KAFKA_BROKERS, KAFKA_TOPIC,
// KAFKA_GROUP_ID and INSTANCE_ID. Each instance gets its own consumer group
// by default so every instance sees every activation.
func FromEnv() Config {
	enabled := strings.ToLower(os.Getenv("PROFILE_EVENTS_ENABLED")) == "true"
	brokers := strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	if brokers == "" {
		brokers = "localhost:9092"
	}
	topic := strings.TrimSpace(os.Getenv("KAFKA_TOPIC"))
	if topic == "" {
		topic = "sos-profile-activation"
	}
	instance := strings.TrimSpace(os.Getenv("INSTANCE_ID"))
	if instance == "" {
		instance, _ = os.Hostname()
	}
	if instance == "" {
		instance = "sos"
	}
	group := strings.TrimSpace(os.Getenv("KAFKA_GROUP_ID"))
	if group == "" {
		group = "sos-profiles-" + instance
	}

	return Config{
		Enabled:          enabled,
		Brokers:          split(brokers),
		Topic:            topic,
		GroupID:          group,
		Instance:         instance,
		QueueSize:        64,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		RetryBackoff:     2 * time.Second,
	}
}

func split(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}

// consumerConfig starts new groups at the newest offset: activations made
// before startup are already in the profile store.
func (c Config) consumerConfig() *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_5_0_0
	sc.ClientID = "sos-" + c.Instance
	sc.Consumer.Group.Session.Timeout = c.SessionTimeout
	sc.Consumer.Group.Heartbeat.Interval = c.Heartbeat
	sc.Consumer.Group.Rebalance.Timeout = c.RebalanceTimeout
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true
	return sc
}

func (c Config) producerConfig() *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_5_0_0
	sc.ClientID = "sos-" + c.Instance
	sc.Producer.Return.Errors = true
	sc.Producer.Return.Successes = false
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	return sc
}

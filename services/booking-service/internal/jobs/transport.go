package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/hourbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// Transport moves a job out of the process.
type Transport interface {
	Publish(ctx context.Context, job Job) error
}

// TopicCancellationMail carries KindCancellationMail jobs.
const TopicCancellationMail = "jobs.cancellation-mail"

var defaultTopics = map[string]string{
	KindCancellationMail: TopicCancellationMail,
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaTransport writes each job as one message keyed by Job.Key, with event_id, event_type and
// W3C trace headers.
type KafkaTransport struct {
	writer messageWriter
	topics map[string]string
}

func NewKafkaTransport(brokers string) *KafkaTransport {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      kafkax.SplitBrokers(brokers),
		Balancer:     &kafka.Hash{},
		RequiredAcks: int(kafka.RequireAll),
	})
	return &KafkaTransport{writer: writer, topics: defaultTopics}
}

func (t *KafkaTransport) Publish(ctx context.Context, job Job) error {
	topic, ok := t.topics[job.Kind]
	if !ok {
		return fmt.Errorf("no topic for job kind %q", job.Kind)
	}
	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(job.Key),
		Value:   job.Payload,
		Time:    job.EnqueuedAt,
		Headers: kafkax.MetaHeaders(kafkax.EventMeta{EventID: job.ID, EventType: job.Kind}),
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	return t.writer.WriteMessages(ctx, msg)
}

func (t *KafkaTransport) Close() error {
	return t.writer.Close()
}

// LogTransport stands in for Kafka when no brokers are configured.
type LogTransport struct {
	Logger *slog.Logger
}

func (t LogTransport) Publish(_ context.Context, job Job) error {
	t.Logger.Info("job published to log transport", "job_id", job.ID, "kind", job.Kind, "key", job.Key, "payload", string(job.Payload))
	return nil
}

package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
	"github.com/ideacrew/gluedb-sub000/internal/store"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes confirmation documents to one topic, keyed by hbx
// enrollment id so that confirmations for an enrollment stay ordered.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

var _ enrollment.Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

// PublishConfirmation renders doc and writes it synchronously.
func (p *KafkaPublisher) PublishConfirmation(ctx context.Context, doc enrollment.Document, hbx, employer string) (bool, []error) {
	body, err := doc.Render()
	if err != nil {
		return false, []error{fmt.Errorf("render %s: %w", doc.Action, err)}
	}
	id, err := doc.Hash()
	if err != nil {
		return false, []error{fmt.Errorf("hash %s: %w", doc.Action, err)}
	}
	if err := p.write(ctx, id, doc.Action, hbx, employer, body); err != nil {
		return false, []error{err}
	}
	return true, nil
}

// Send writes a queued confirmation. It satisfies Sender for OutboxRelay.
func (p *KafkaPublisher) Send(ctx context.Context, c store.Confirmation) error {
	return p.write(ctx, c.ID, c.ActionURI, c.HbxEnrollmentID, c.EmployerID, c.Document)
}

func (p *KafkaPublisher) write(ctx context.Context, id, action, hbx, employer string, body []byte) error {
	headers := []kafka.Header{
		{Key: "confirmation_id", Value: []byte(id)},
		{Key: "action_uri", Value: []byte(action)},
	}
	if employer != "" {
		headers = append(headers, kafka.Header{Key: "employer_id", Value: []byte(employer)})
	}
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   p.topic,
		Key:     []byte(hbx),
		Value:   body,
		Headers: headers,
		Time:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("write %s for %s: %w", action, hbx, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

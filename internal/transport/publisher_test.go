package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
	"github.com/ideacrew/gluedb-sub000/internal/store"
	"github.com/ideacrew/gluedb-sub000/internal/testutil"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaPublisher_PublishConfirmation(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, topic: "enrollment.confirmations"}

	doc := enrollment.NewDocument(enrollment.URIInitial, testutil.Event("1001").Shop("emp-9").Build(), "1001")
	ok, errs := p.PublishConfirmation(context.Background(), doc, "1001", "emp-9")
	require.Empty(t, errs)
	assert.True(t, ok)

	require.Len(t, w.msgs, 1)
	m := w.msgs[0]
	assert.Equal(t, "enrollment.confirmations", m.Topic)
	assert.Equal(t, "1001", string(m.Key))
	body, err := doc.Render()
	require.NoError(t, err)
	assert.Equal(t, body, m.Value)
	hash, err := doc.Hash()
	require.NoError(t, err)
	assert.Equal(t, hash, header(m, "confirmation_id"))
	assert.Equal(t, enrollment.URIInitial, header(m, "action_uri"))
	assert.Equal(t, "emp-9", header(m, "employer_id"))
}

func TestKafkaPublisher_WriteFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := &KafkaPublisher{writer: w, topic: "c"}

	doc := enrollment.NewDocument(enrollment.URITerminateEnrollment, testutil.Event("1").Term("2024-03-31").Build(), "1")
	ok, errs := p.PublishConfirmation(context.Background(), doc, "1", "")
	assert.False(t, ok)
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "leader not available")
}

func TestKafkaPublisher_Send(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, topic: "c"}

	err := p.Send(context.Background(), store.Confirmation{
		ID: "abc", ActionURI: enrollment.URIAutoRenew, HbxEnrollmentID: "7", Document: []byte(`{}`),
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "7", string(w.msgs[0].Key))
	assert.Equal(t, "abc", header(w.msgs[0], "confirmation_id"))
	assert.Empty(t, header(w.msgs[0], "employer_id"))
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "t")
	assert.ErrorContains(t, err, "broker")
	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	assert.ErrorContains(t, err, "topic")
}

package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// MemoryMarkers is an in-memory idempotency store.
type MemoryMarkers struct {
	mu      sync.Mutex
	markers map[enrollment.Marker]bool
	// Err, when set, is returned by every call.
	Err error
}

// NewMemoryMarkers creates an empty store.
func NewMemoryMarkers() *MemoryMarkers {
	return &MemoryMarkers{markers: make(map[enrollment.Marker]bool)}
}

func (m *MemoryMarkers) Exists(_ context.Context, mk enrollment.Marker) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	return m.markers[mk], nil
}

func (m *MemoryMarkers) Seen(_ context.Context, hbx, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	for mk := range m.markers {
		if mk.HbxEnrollmentID == hbx && mk.ContentHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryMarkers) Mark(_ context.Context, mk enrollment.Marker) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	if m.markers[mk] {
		return false, nil
	}
	m.markers[mk] = true
	return true, nil
}

// Len returns the number of markers written.
func (m *MemoryMarkers) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.markers)
}

// Ack is one recorded acknowledgment.
type Ack struct {
	HbxEnrollmentID string
	Disposition     enrollment.Disposition
	Reason          string
}

// RecordingAck records acknowledgments.
type RecordingAck struct {
	mu   sync.Mutex
	Acks []Ack
}

func (a *RecordingAck) Acknowledge(_ context.Context, ev *enrollment.Event, d enrollment.Disposition, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Acks = append(a.Acks, Ack{HbxEnrollmentID: ev.HbxEnrollmentID, Disposition: d, Reason: reason})
	return nil
}

// ByDisposition returns the hbx ids acknowledged with d, in order.
func (a *RecordingAck) ByDisposition(d enrollment.Disposition) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, ack := range a.Acks {
		if ack.Disposition == d {
			out = append(out, ack.HbxEnrollmentID)
		}
	}
	return out
}

// ErrPublish is returned by RecordingPublisher when Fail is set.
var ErrPublish = errors.New("publish failed")

// RecordingPublisher records confirmations.
type RecordingPublisher struct {
	mu   sync.Mutex
	Docs []enrollment.Document
	// Fail makes every publish fail.
	Fail bool
	// FailAction makes publishes of one action URI fail.
	FailAction string
}

func (p *RecordingPublisher) PublishConfirmation(_ context.Context, doc enrollment.Document, _, _ string) (bool, []error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Fail || (p.FailAction != "" && doc.Action == p.FailAction) {
		return false, []error{ErrPublish}
	}
	p.Docs = append(p.Docs, doc)
	return true, nil
}

// Actions returns the published action URIs in order.
func (p *RecordingPublisher) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Docs))
	for i, d := range p.Docs {
		out[i] = d.Action
	}
	return out
}

// RecordingNotifier records policy-updated notifications.
type RecordingNotifier struct {
	mu      sync.Mutex
	Updated []string
}

func (n *RecordingNotifier) PolicyUpdated(_ context.Context, policyID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Updated = append(n.Updated, policyID)
	return nil
}

package enrollment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// BatchDoc is the wire form of a batch.
type BatchDoc struct {
	ID     string     `json:"id" yaml:"id"`
	Events []EventDoc `json:"events" yaml:"events"`
}

// EventDoc is the wire form of a notice.
type EventDoc struct {
	HbxEnrollmentID   string      `json:"hbx_enrollment_id" yaml:"hbx_enrollment_id"`
	EventGroupID      string      `json:"event_group_id,omitempty" yaml:"event_group_id,omitempty"`
	ActiveYear        int         `json:"active_year" yaml:"active_year"`
	Termination       bool        `json:"termination,omitempty" yaml:"termination,omitempty"`
	Cancel            bool        `json:"cancel,omitempty" yaml:"cancel,omitempty"`
	Cobra             bool        `json:"cobra,omitempty" yaml:"cobra,omitempty"`
	Shop              bool        `json:"shop,omitempty" yaml:"shop,omitempty"`
	TermForNonPayment bool        `json:"term_for_non_payment,omitempty" yaml:"term_for_non_payment,omitempty"`
	SubscriberStart   string      `json:"subscriber_start" yaml:"subscriber_start"`
	SubscriberEnd     string      `json:"subscriber_end,omitempty" yaml:"subscriber_end,omitempty"`
	SubmittedAt       string      `json:"submitted_at" yaml:"submitted_at"`
	SubscriberID      string      `json:"subscriber_id" yaml:"subscriber_id"`
	Members           []MemberDoc `json:"members" yaml:"members"`
	PlanID            string      `json:"plan_id" yaml:"plan_id"`
	CarrierID         string      `json:"carrier_id" yaml:"carrier_id"`
	RatingArea        string      `json:"rating_area,omitempty" yaml:"rating_area,omitempty"`
	AppliedAPTC       int64       `json:"applied_aptc,omitempty" yaml:"applied_aptc,omitempty"`
	EmployerID        string      `json:"employer_id,omitempty" yaml:"employer_id,omitempty"`
	ExistingPolicyRef string      `json:"existing_policy_ref,omitempty" yaml:"existing_policy_ref,omitempty"`
}

// MemberDoc is the wire form of a member. Start defaults to the subscriber
// start and End to the subscriber end.
type MemberDoc struct {
	ID         string `json:"id" yaml:"id"`
	Subscriber bool   `json:"subscriber,omitempty" yaml:"subscriber,omitempty"`
	Start      string `json:"start,omitempty" yaml:"start,omitempty"`
	End        string `json:"end,omitempty" yaml:"end,omitempty"`
	Tobacco    string `json:"tobacco,omitempty" yaml:"tobacco,omitempty"`
}

// DecodeBatchJSON decodes a JSON batch, rejecting unknown fields.
func DecodeBatchJSON(data []byte) (*Batch, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var doc BatchDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode batch json: %w", err)
	}
	return doc.Batch()
}

// DecodeBatchYAML decodes a YAML batch, rejecting unknown fields.
func DecodeBatchYAML(data []byte) (*Batch, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc BatchDoc
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode batch yaml: empty document")
		}
		return nil, fmt.Errorf("decode batch yaml: %w", err)
	}
	return doc.Batch()
}

// Batch converts the wire form into a batch.
func (d BatchDoc) Batch() (*Batch, error) {
	if len(d.Events) == 0 {
		return nil, fmt.Errorf("batch %q has no events", d.ID)
	}
	b := &Batch{ID: d.ID, Events: make([]*Event, 0, len(d.Events))}
	for i, ed := range d.Events {
		ev, err := ed.Event()
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		b.Events = append(b.Events, ev)
	}
	return b, nil
}

// Event converts the wire form into an Event.
func (d EventDoc) Event() (*Event, error) {
	if d.HbxEnrollmentID == "" {
		return nil, fmt.Errorf("hbx_enrollment_id is required")
	}
	if d.ActiveYear == 0 {
		return nil, fmt.Errorf("active_year is required")
	}
	start, err := ParseDate(d.SubscriberStart)
	if err != nil {
		return nil, fmt.Errorf("subscriber_start: %w", err)
	}
	var end *time.Time
	if d.SubscriberEnd != "" {
		t, err := ParseDate(d.SubscriberEnd)
		if err != nil {
			return nil, fmt.Errorf("subscriber_end: %w", err)
		}
		end = &t
	}
	submitted, err := time.Parse(time.RFC3339, d.SubmittedAt)
	if err != nil {
		return nil, fmt.Errorf("submitted_at: %w", err)
	}
	ev := &Event{
		HbxEnrollmentID:   d.HbxEnrollmentID,
		EventGroupID:      d.EventGroupID,
		ActiveYear:        d.ActiveYear,
		IsTermination:     d.Termination || d.Cancel,
		IsCancel:          d.Cancel,
		IsCobra:           d.Cobra,
		IsShop:            d.Shop,
		TermForNonPayment: d.TermForNonPayment,
		SubscriberStart:   start,
		SubscriberEnd:     end,
		SubmittedAt:       submitted.UTC(),
		SubscriberID:      d.SubscriberID,
		PlanID:            d.PlanID,
		CarrierID:         d.CarrierID,
		RatingArea:        d.RatingArea,
		AppliedAPTC:       d.AppliedAPTC,
		EmployerID:        d.EmployerID,
		ExistingPolicyRef: d.ExistingPolicyRef,
	}
	for i, md := range d.Members {
		m := Member{ID: md.ID, Subscriber: md.Subscriber, Start: start, End: end, Tobacco: md.Tobacco}
		if md.ID == "" {
			return nil, fmt.Errorf("members[%d]: id is required", i)
		}
		if md.Start != "" {
			if m.Start, err = ParseDate(md.Start); err != nil {
				return nil, fmt.Errorf("members[%d].start: %w", i, err)
			}
		}
		if md.End != "" {
			t, err := ParseDate(md.End)
			if err != nil {
				return nil, fmt.Errorf("members[%d].end: %w", i, err)
			}
			m.End = &t
		}
		if md.Subscriber && ev.SubscriberID == "" {
			ev.SubscriberID = md.ID
		}
		ev.Members = append(ev.Members, m)
	}
	if ev.SubscriberID == "" {
		return nil, fmt.Errorf("subscriber_id is required")
	}
	return ev, nil
}

// Doc converts an Event back into its wire form.
func (e *Event) Doc() EventDoc {
	d := EventDoc{
		HbxEnrollmentID:   e.HbxEnrollmentID,
		EventGroupID:      e.EventGroupID,
		ActiveYear:        e.ActiveYear,
		Termination:       e.IsTermination,
		Cancel:            e.IsCancel,
		Cobra:             e.IsCobra,
		Shop:              e.IsShop,
		TermForNonPayment: e.TermForNonPayment,
		SubscriberStart:   FormatDate(e.SubscriberStart),
		SubmittedAt:       e.SubmittedAt.UTC().Format(time.RFC3339),
		SubscriberID:      e.SubscriberID,
		PlanID:            e.PlanID,
		CarrierID:         e.CarrierID,
		RatingArea:        e.RatingArea,
		AppliedAPTC:       e.AppliedAPTC,
		EmployerID:        e.EmployerID,
		ExistingPolicyRef: e.ExistingPolicyRef,
	}
	if e.SubscriberEnd != nil {
		d.SubscriberEnd = FormatDate(*e.SubscriberEnd)
	}
	for _, m := range e.Members {
		md := MemberDoc{ID: m.ID, Subscriber: m.Subscriber, Tobacco: m.Tobacco}
		if !SameDay(m.Start, e.SubscriberStart) {
			md.Start = FormatDate(m.Start)
		}
		if m.End != nil && !SameEnd(m.End, e.SubscriberEnd) {
			md.End = FormatDate(*m.End)
		}
		d.Members = append(d.Members, md)
	}
	return d
}

package enrollment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
id: batch-1
events:
  - hbx_enrollment_id: "1001"
    active_year: 2024
    termination: true
    subscriber_start: "2024-01-01"
    subscriber_end: "2024-01-31"
    submitted_at: "2024-01-15T10:00:00Z"
    subscriber_id: sub-1
    plan_id: plan-a
    carrier_id: carrier-a
    members:
      - id: sub-1
        subscriber: true
        tobacco: N
      - id: dep-1
        start: "2024-01-10"
`

// YAML batches decode with member dates defaulting to subscriber dates.
func TestDecodeBatchYAML(t *testing.T) {
	b, err := DecodeBatchYAML([]byte(sampleYAML))
	require.NoError(t, err)
	require.Len(t, b.Events, 1)

	ev := b.Events[0]
	assert.Equal(t, "batch-1", b.ID)
	assert.True(t, ev.IsTermination)
	assert.False(t, ev.IsCancel)
	assert.Equal(t, Day(2024, time.January, 31), *ev.SubscriberEnd)
	assert.Equal(t, []string{"dep-1", "sub-1"}, ev.AllMemberIDs())
	assert.Equal(t, Day(2024, time.January, 10), ev.Members[1].Start)
	assert.Equal(t, Day(2024, time.January, 31), *ev.Members[1].End)
	assert.Equal(t, map[string]string{"sub-1": "N", "dep-1": ""}, ev.TobaccoUsageByMember())
}

// Unknown fields are rejected in both encodings.
func TestDecodeBatch_UnknownFields(t *testing.T) {
	_, err := DecodeBatchYAML([]byte("id: x\nbogus: 1\nevents: []\n"))
	require.Error(t, err)

	_, err = DecodeBatchJSON([]byte(`{"id":"x","bogus":1,"events":[]}`))
	require.Error(t, err)
}

func TestDecodeBatchJSON_Validation(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"no events", `{"id":"x","events":[]}`, "no events"},
		{"missing hbx", `{"id":"x","events":[{"active_year":2024}]}`, "hbx_enrollment_id is required"},
		{"bad start", `{"id":"x","events":[{"hbx_enrollment_id":"1","active_year":2024,"subscriber_start":"01/01/2024"}]}`, "subscriber_start"},
		{"bad submitted", `{"id":"x","events":[{"hbx_enrollment_id":"1","active_year":2024,"subscriber_start":"2024-01-01","submitted_at":"yesterday"}]}`, "submitted_at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBatchJSON([]byte(tt.json))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// A cancel is always a termination.
func TestEventDoc_CancelImpliesTermination(t *testing.T) {
	ev, err := EventDoc{
		HbxEnrollmentID: "1",
		ActiveYear:      2024,
		Cancel:          true,
		SubscriberStart: "2024-01-01",
		SubscriberEnd:   "2024-01-01",
		SubmittedAt:     "2024-01-02T00:00:00Z",
		Members:         []MemberDoc{{ID: "s", Subscriber: true}},
	}.Event()
	require.NoError(t, err)
	assert.True(t, ev.IsTermination)
	assert.True(t, ev.IsCancel)
	assert.Equal(t, "s", ev.SubscriberID)
}

// Converting to the wire form and back preserves content identity.
func TestEventDoc_Roundtrip(t *testing.T) {
	b, err := DecodeBatchYAML([]byte(sampleYAML))
	require.NoError(t, err)
	ev := b.Events[0]

	back, err := ev.Doc().Event()
	require.NoError(t, err)
	assert.Equal(t, ev.ContentHash(), back.ContentHash())
	assert.Equal(t, ev.SubmittedAt, back.SubmittedAt)
}

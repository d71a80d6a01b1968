package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

func TestEventBuilder_Defaults(t *testing.T) {
	ev := Event("1").Build()

	assert.Equal(t, 2024, ev.ActiveYear)
	assert.Equal(t, D("2024-01-01"), ev.SubscriberStart)
	assert.Equal(t, []string{"sub-1"}, ev.AllMemberIDs())
	assert.Equal(t, D("2024-01-01"), ev.Members[0].Start)
	assert.Nil(t, ev.ExistingPolicy())
}

// Start moves the plan year unless it was fixed.
func TestEventBuilder_YearFollowsStart(t *testing.T) {
	assert.Equal(t, 2023, Event("1").Start("2023-03-01").Build().ActiveYear)
	assert.Equal(t, 2024, Event("1").Year(2024).Start("2023-03-01").Build().ActiveYear)
}

func TestEventBuilder_Cancel(t *testing.T) {
	ev := Event("1").Start("2024-02-01").Cancel().Build()
	assert.True(t, ev.IsTermination)
	assert.True(t, ev.IsCancel)
	assert.Equal(t, D("2024-02-01"), *ev.SubscriberEnd)
}

func TestEventBuilder_Lineage(t *testing.T) {
	pol := &enrollment.Policy{ID: "1"}
	ev := Event("1").Existing(pol).Build()
	assert.Same(t, pol, ev.ExistingPolicy())
}

func TestSequenceIDs(t *testing.T) {
	g := NewSequenceIDs("")
	assert.Equal(t, "batch-0001", g.Generate())
	assert.Equal(t, "batch-0002", g.Generate())
}

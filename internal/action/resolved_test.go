package action

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
	"github.com/ideacrew/gluedb-sub000/internal/testutil"
)

type fixture struct {
	policies  *testutil.MemoryPolicies
	markers   *testutil.MemoryMarkers
	publisher *testutil.RecordingPublisher
	notifier  *testutil.RecordingNotifier
	carriers  enrollment.CarrierTable
}

func newFixture() *fixture {
	return &fixture{
		policies:  testutil.NewMemoryPolicies(),
		markers:   testutil.NewMemoryMarkers(),
		publisher: &testutil.RecordingPublisher{},
		notifier:  &testutil.RecordingNotifier{},
		carriers:  enrollment.CarrierTable{},
	}
}

func (f *fixture) deps() Deps {
	return Deps{
		Policies:  f.policies,
		Markers:   f.markers,
		Publisher: f.publisher,
		Notifier:  f.notifier,
		Carriers:  f.carriers,
	}
}

// seed stores the policy a starter would have created and returns it.
func (f *fixture) seed(ev *enrollment.Event) *enrollment.Policy {
	p := testutil.PolicyFrom(ev)
	f.policies.PutPolicy(p)
	return p
}

func (f *fixture) resolve(t *testing.T, c enrollment.Chunk, want Kind) *Resolved {
	t.Helper()
	r, ok := Resolve(c, f.deps())
	require.True(t, ok, "chunk %v did not classify", c.HbxIDs())
	require.Equal(t, want, r.Descriptor.Kind)
	return r
}

// mutations drops member upserts so assertions list policy calls only.
func mutations(calls []string) []string {
	var out []string
	for _, c := range calls {
		if !strings.HasPrefix(c, "CreateMember ") {
			out = append(out, c)
		}
	}
	return out
}

func TestPersist_Termination(t *testing.T) {
	tests := []struct {
		name       string
		end        string
		nonPayment bool
		notified   []string
	}{
		{name: "mid-year end notifies", end: "2024-01-31", notified: []string{"1001"}},
		{name: "year end with unchanged flag is exempt", end: "2024-12-31"},
		{name: "changed non-payment flag notifies", end: "2024-12-31", nonPayment: true, notified: []string{"1001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture()
			pol := f.seed(testutil.Event("1001").Build())

			b := testutil.Event("1001").Term(tt.end).Existing(pol)
			if tt.nonPayment {
				b = b.NonPayment()
			}
			r := f.resolve(t, enrollment.Chunk{b.Build()}, KindTermination)

			ok, err := r.Persist(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []string{"TerminateAsOf 1001 " + tt.end}, f.policies.MutationCalls())
			assert.Equal(t, tt.notified, f.notifier.Updated)
			assert.Equal(t, enrollment.StatusTerminated, f.policies.Policy("1001").Status)

			ok, errs := r.Publish(ctx)
			require.Empty(t, errs)
			assert.True(t, ok)
			assert.Equal(t, []string{enrollment.URITerminateEnrollment}, f.publisher.Actions())
			assert.Equal(t, StatePublished, r.State())
		})
	}
}

func carrierSwitch(f *fixture) enrollment.Chunk {
	old := f.seed(testutil.Event("1").Build())
	f.seed(testutil.Event("R").Start("2025-01-01").Build())
	f.carriers["carrier-a"] = enrollment.Carrier{ID: "carrier-a", Reinstates: true, CascadeCancelRenewals: true}
	return enrollment.Chunk{
		testutil.Event("1").Term("2024-05-31").Existing(old).Build(),
		testutil.Event("2").Start("2024-06-01").Carrier("carrier-b").Build(),
	}
}

func TestPersist_CarrierSwitchCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	r := f.resolve(t, carrierSwitch(f), KindCarrierSwitch)

	ok, err := r.Persist(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []string{
		"CreateMember sub-1",
		"CreatePolicy 2",
		"TerminateAsOf 1 2024-05-31",
		"CancelDependentRenewals 1",
	}, f.policies.MutationCalls())
	assert.Equal(t, []string{"R"}, r.CascadeCanceled())
	assert.True(t, f.policies.Policy("R").IsCanceled())
	assert.Equal(t, 2, f.markers.Len())

	ok, errs := r.Publish(ctx)
	require.Empty(t, errs)
	assert.True(t, ok)
	assert.Equal(t, []string{enrollment.URITerminateEnrollment, enrollment.URIInitial}, f.publisher.Actions())
}

func TestPersist_CarrierWithoutCascadeKeepsRenewals(t *testing.T) {
	f := newFixture()
	c := carrierSwitch(f)
	f.carriers["carrier-a"] = enrollment.Carrier{ID: "carrier-a", Reinstates: true}
	r := f.resolve(t, c, KindCarrierSwitch)

	ok, err := r.Persist(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, f.policies.MutationCalls(), "CancelDependentRenewals 1")
	assert.Empty(t, r.CascadeCanceled())
	assert.False(t, f.policies.Policy("R").IsCanceled())
}

func TestPersist_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := carrierSwitch(f)
	r := f.resolve(t, c, KindCarrierSwitch)

	ok, err := r.Persist(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	calls := f.policies.MutationCalls()

	ok, err = r.Persist(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second persist on the same action")

	again := r.Descriptor.Bind(c, f.deps())
	ok, err = again.Persist(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "redelivered chunk")
	assert.Equal(t, StateRejected, again.State())
	assert.Equal(t, calls, f.policies.MutationCalls(), "no further mutations")

	ok, errs := again.Publish(ctx)
	assert.False(t, ok)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrNotPersisted)
	assert.Empty(t, f.publisher.Docs)
}

func TestPublish_RequiresPersist(t *testing.T) {
	f := newFixture()
	r := f.resolve(t, carrierSwitch(f), KindCarrierSwitch)

	ok, errs := r.Publish(context.Background())
	assert.False(t, ok)
	assert.Equal(t, []error{ErrNotPersisted}, errs)
	assert.Equal(t, StatePending, r.State())
}

func TestPublish_FailureKeepsPersisted(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	r := f.resolve(t, carrierSwitch(f), KindCarrierSwitch)
	_, err := r.Persist(ctx)
	require.NoError(t, err)

	f.publisher.FailAction = enrollment.URIInitial
	ok, errs := r.Publish(ctx)
	assert.False(t, ok)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], testutil.ErrPublish)
	assert.Equal(t, StatePersisted, r.State())

	f.publisher.FailAction = ""
	ok, errs = r.Publish(ctx)
	assert.True(t, ok)
	assert.Empty(t, errs)
	assert.Equal(t, StatePublished, r.State())
}

func TestPersist_DependentAdd(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	pol := f.seed(testutil.Event("1").Members("dep-1").Build())
	c := enrollment.Chunk{
		testutil.Event("1").Members("dep-1").Term("2024-03-31").Existing(pol).Build(),
		testutil.Event("2").Start("2024-04-01").Members("dep-1", "dep-2").Build(),
	}
	r := f.resolve(t, c, KindDependentAdd)

	ok, err := r.Persist(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"AddMembersToPolicy 1 dep-2"}, mutations(f.policies.MutationCalls()))
	assert.Equal(t, []string{"dep-1", "dep-2", "sub-1"}, f.policies.Policy("1").MemberIDs())

	docs := r.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, enrollment.URIChangeMemberAdd, docs[0].Action)
	assert.Equal(t, []string{"dep-2"}, docs[0].AffectedMembers)
	assert.Equal(t, "1", docs[0].PolicyID)
	assert.Equal(t, "2", docs[0].HbxEnrollmentID)
}

func TestPersist_DependentDrop(t *testing.T) {
	f := newFixture()
	pol := f.seed(testutil.Event("1").Members("dep-1").Build())
	c := enrollment.Chunk{
		testutil.Event("1").Members("dep-1").Term("2024-03-31").Existing(pol).Build(),
		testutil.Event("2").Start("2024-04-01").Build(),
	}
	r := f.resolve(t, c, KindDependentDrop)

	ok, err := r.Persist(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"DropMembersFromPolicy 1 dep-1"}, f.policies.MutationCalls())

	docs := r.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, enrollment.URIChangeMemberTerminate, docs[0].Action)
	assert.Equal(t, []string{"dep-1"}, docs[0].AffectedMembers)
}

func TestPersist_RetroContinuityAndTerm(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seed(testutil.Event("20").Build())
	r := f.resolve(t, continuityTriple(), KindRetroContinuityAndTerm)
	assert.Equal(t, "20", r.Termination.HbxEnrollmentID)
	assert.Equal(t, "10", r.Action.HbxEnrollmentID)
	assert.Equal(t, "11", r.AdditionalAction.HbxEnrollmentID)

	ok, err := r.Persist(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{
		"CreatePolicy 10",
		"CreatePolicy 11",
		"TerminateAsOf 20 2024-01-31",
	}, mutations(f.policies.MutationCalls()))
	assert.Equal(t, 3, f.markers.Len())

	ok, errs := r.Publish(ctx)
	require.Empty(t, errs)
	assert.True(t, ok)
	assert.Equal(t, []string{
		enrollment.URITerminateEnrollment,
		enrollment.URIInitial,
		enrollment.URIAutoRenew,
	}, f.publisher.Actions())
}

func TestPersist_RetroAddAndTerm(t *testing.T) {
	f := newFixture()
	c := enrollment.Chunk{
		testutil.Event("1").Term("2024-03-31").Build(),
		testutil.Event("1").Build(),
	}
	r := f.resolve(t, c, KindRetroAddAndTerm)

	ok, err := r.Persist(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"CreatePolicy 1", "TerminateAsOf 1 2024-03-31"}, mutations(f.policies.MutationCalls()))
	assert.Equal(t, []string{enrollment.URIInitial, enrollment.URITerminateEnrollment},
		actionsOf(r.Documents()))
}

func TestPersist_PriorYearPurchaseRenewalCancel(t *testing.T) {
	f := newFixture()
	renewal := f.seed(testutil.Event("20").Build())
	d, c, ok := MatchBatch([]*enrollment.Event{
		testutil.Event("10").Start("2023-01-01").Build(),
		testutil.Event("20").Cancel().Existing(renewal).Build(),
	})
	require.True(t, ok)

	r := d.Bind(c, f.deps())
	ok, err := r.Persist(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"CreatePolicy 10", "CancelViaExchange 20"}, mutations(f.policies.MutationCalls()))
	assert.True(t, f.policies.Policy("20").IsCanceled())
	assert.Equal(t, []string{enrollment.URIInitial, enrollment.URITerminateEnrollment}, actionsOf(r.Documents()))
}

func TestPersist_PreconditionRejects(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture) enrollment.Chunk
		kind  Kind
		calls []string
	}{
		{
			name: "initial for existing policy",
			setup: func(f *fixture) enrollment.Chunk {
				pol := f.seed(testutil.Event("5").Build())
				return enrollment.Chunk{testutil.Event("5").Existing(pol).Build()}
			},
			kind: KindInitialEnrollment,
		},
		{
			name: "termination without policy",
			setup: func(f *fixture) enrollment.Chunk {
				return enrollment.Chunk{testutil.Event("9").Term("2024-03-31").Build()}
			},
			kind: KindTermination,
		},
		{
			name: "carrier termination extending coverage",
			setup: func(f *fixture) enrollment.Chunk {
				pol := testutil.PolicyFrom(testutil.Event("1").Build())
				pol.Status = enrollment.StatusTerminated
				pol.End = testutil.DP("2024-03-31")
				f.policies.PutPolicy(pol)
				return enrollment.Chunk{testutil.Event("1").Term("2024-06-30").Existing(pol).
					CarrierProfile(enrollment.Carrier{ID: "carrier-a"}).Build()}
			},
			kind: KindCarrierSpecificTermination,
		},
		{
			name: "create refused before any mutation",
			setup: func(f *fixture) enrollment.Chunk {
				f.policies.Refuse["CreatePolicy"] = true
				return carrierSwitch(f)
			},
			kind:  KindCarrierSwitch,
			calls: []string{"CreatePolicy 2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			r := f.resolve(t, tt.setup(f), tt.kind)

			ok, err := r.Persist(context.Background())
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, StateRejected, r.State())
			assert.Equal(t, tt.calls, mutations(f.policies.MutationCalls()))
			assert.Zero(t, f.markers.Len())
			assert.Empty(t, f.notifier.Updated)
		})
	}
}

func TestPersist_PartialPersist(t *testing.T) {
	f := newFixture()
	c := carrierSwitch(f)
	f.policies.Errs["TerminateAsOf"] = errors.New("database is locked")
	r := f.resolve(t, c, KindCarrierSwitch)

	ok, err := r.Persist(context.Background())
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, IsPartialPersist(err))

	var pe *PartialPersistError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "terminate 1", pe.Step)
	assert.Zero(t, f.markers.Len(), "marker must not be written so redelivery retries")
	assert.Equal(t, StatePending, r.State())
}

func TestPersist_NewMemberCountsAsMutation(t *testing.T) {
	tests := []struct {
		name    string
		known   bool
		partial bool
	}{
		{name: "new subscriber", partial: true},
		{name: "known subscriber", known: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.known {
				f.seed(testutil.Event("0").Build())
			}
			f.policies.Refuse["CreatePolicy"] = true
			r := f.resolve(t, enrollment.Chunk{testutil.Event("3").Start("2024-07-01").Build()}, KindInitialEnrollment)

			ok, err := r.Persist(context.Background())
			assert.False(t, ok)
			assert.Equal(t, []string{"CreateMember sub-1", "CreatePolicy 3"}, f.policies.MutationCalls())
			assert.Zero(t, f.markers.Len())
			if !tt.partial {
				require.NoError(t, err)
				assert.Equal(t, StateRejected, r.State())
				return
			}
			require.Error(t, err)
			var pe *PartialPersistError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "create policy 3", pe.Step)
			assert.ErrorIs(t, err, ErrRefused)
			assert.Equal(t, StatePending, r.State())
		})
	}
}

func TestPersist_MemberAddCreateMemberFailure(t *testing.T) {
	f := newFixture()
	pol := f.seed(testutil.Event("1").Build())
	f.policies.Errs["CreateMember"] = errors.New("database is locked")
	r := f.resolve(t, enrollment.Chunk{
		testutil.Event("1").Term("2024-05-31").Existing(pol).Build(),
		testutil.Event("2").Start("2024-06-01").Members("dep-1").Build(),
	}, KindDependentAdd)

	ok, err := r.Persist(context.Background())
	require.Error(t, err)
	assert.False(t, ok)
	assert.False(t, IsPartialPersist(err))
	assert.Equal(t, []string{"CreateMember sub-1"}, f.policies.MutationCalls())
}

func TestPersist_CollaboratorErrorBeforeMutation(t *testing.T) {
	f := newFixture()
	c := carrierSwitch(f)
	f.policies.Errs["CreatePolicy"] = errors.New("database is locked")
	r := f.resolve(t, c, KindCarrierSwitch)

	ok, err := r.Persist(context.Background())
	require.Error(t, err)
	assert.False(t, ok)
	assert.False(t, IsPartialPersist(err))
}

func actionsOf(docs []enrollment.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Action
	}
	return out
}

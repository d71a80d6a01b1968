package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// Scenario defines an end-to-end enrollment scenario: persisted state to
// start from, batches to process, and checks on what happened.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Carriers configures carrier profiles by id. Carriers not listed get
	// the default profile.
	Carriers map[string]CarrierFixture `yaml:"carriers,omitempty"`

	// Setup is the persisted state loaded before the first step.
	Setup Setup `yaml:"setup,omitempty"`

	// Steps are processed in order against the same store.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count,
	// final_state, confirmations, dispositions
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// CarrierFixture is a carrier profile. Reinstates defaults to true.
type CarrierFixture struct {
	Name                  string `yaml:"name,omitempty"`
	Reinstates            *bool  `yaml:"reinstates,omitempty"`
	CascadeCancelRenewals bool   `yaml:"cascade_cancel_renewals,omitempty"`
}

// Carrier converts the fixture into a profile for id.
func (c CarrierFixture) Carrier(id string) enrollment.Carrier {
	out := enrollment.DefaultCarrier(id)
	if c.Name != "" {
		out.Name = c.Name
	}
	if c.Reinstates != nil {
		out.Reinstates = *c.Reinstates
	}
	out.CascadeCancelRenewals = c.CascadeCancelRenewals
	return out
}

// Setup holds the plans and policies present before the first batch.
type Setup struct {
	Plans    []PlanFixture   `yaml:"plans,omitempty"`
	Policies []PolicyFixture `yaml:"policies,omitempty"`
}

// PlanFixture is a persisted plan.
type PlanFixture struct {
	ID            string `yaml:"id"`
	CarrierID     string `yaml:"carrier_id"`
	Year          int    `yaml:"year"`
	RenewalPlanID string `yaml:"renewal_plan_id,omitempty"`
}

// Plan converts the fixture.
func (p PlanFixture) Plan() *enrollment.Plan {
	return &enrollment.Plan{ID: p.ID, CarrierID: p.CarrierID, Year: p.Year, RenewalPlanID: p.RenewalPlanID}
}

// PolicyFixture is a persisted policy. Year defaults to the start year,
// status to active, and members to the subscriber alone.
type PolicyFixture struct {
	ID                string                 `yaml:"id"`
	SubscriberID      string                 `yaml:"subscriber_id"`
	PlanID            string                 `yaml:"plan_id"`
	CarrierID         string                 `yaml:"carrier_id"`
	Year              int                    `yaml:"year,omitempty"`
	Shop              bool                   `yaml:"shop,omitempty"`
	Cobra             bool                   `yaml:"cobra,omitempty"`
	EmployerID        string                 `yaml:"employer_id,omitempty"`
	Status            string                 `yaml:"status,omitempty"`
	Start             string                 `yaml:"start"`
	End               string                 `yaml:"end,omitempty"`
	TermForNonPayment bool                   `yaml:"term_for_non_payment,omitempty"`
	RatingArea        string                 `yaml:"rating_area,omitempty"`
	AppliedAPTC       int64                  `yaml:"applied_aptc,omitempty"`
	Members           []enrollment.MemberDoc `yaml:"members,omitempty"`
}

// Policy converts the fixture into a policy.
func (f PolicyFixture) Policy() (*enrollment.Policy, error) {
	start, err := enrollment.ParseDate(f.Start)
	if err != nil {
		return nil, fmt.Errorf("policy %s: start: %w", f.ID, err)
	}
	p := &enrollment.Policy{
		ID:                f.ID,
		SubscriberID:      f.SubscriberID,
		PlanID:            f.PlanID,
		CarrierID:         f.CarrierID,
		Year:              f.Year,
		IsShop:            f.Shop,
		IsCobra:           f.Cobra,
		EmployerID:        f.EmployerID,
		Status:            enrollment.PolicyStatus(f.Status),
		Start:             start,
		TermForNonPayment: f.TermForNonPayment,
		RatingArea:        f.RatingArea,
		AppliedAPTC:       f.AppliedAPTC,
	}
	if p.Year == 0 {
		p.Year = start.Year()
	}
	if p.Status == "" {
		p.Status = enrollment.StatusActive
	}
	if f.End != "" {
		end, err := enrollment.ParseDate(f.End)
		if err != nil {
			return nil, fmt.Errorf("policy %s: end: %w", f.ID, err)
		}
		p.End = &end
	}

	members := f.Members
	if len(members) == 0 {
		members = []enrollment.MemberDoc{{ID: f.SubscriberID, Subscriber: true}}
	}
	for i, md := range members {
		m := enrollment.PolicyMember{ID: md.ID, Subscriber: md.Subscriber, Start: start, End: p.End, Tobacco: md.Tobacco}
		if md.Start != "" {
			if m.Start, err = enrollment.ParseDate(md.Start); err != nil {
				return nil, fmt.Errorf("policy %s: members[%d].start: %w", f.ID, i, err)
			}
		}
		if md.End != "" {
			end, err := enrollment.ParseDate(md.End)
			if err != nil {
				return nil, fmt.Errorf("policy %s: members[%d].end: %w", f.ID, i, err)
			}
			m.End = &end
		}
		p.Members = append(p.Members, m)
	}
	return p, nil
}

// Step processes one batch and optionally checks the report.
type Step struct {
	// Batch uses the inbound wire form.
	Batch enrollment.BatchDoc `yaml:"batch"`

	// Expect checks the batch report. If nil, the step must only succeed.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect specifies the expected batch report.
type StepExpect struct {
	// Error is the expected runtime error code, e.g. CYCLE_DETECTED.
	// Empty means the batch must succeed.
	Error string `yaml:"error,omitempty"`

	// Dropped is the expected number of filtered notices.
	Dropped *int `yaml:"dropped,omitempty"`

	// WholeBatch is the expected compound action claiming the batch.
	WholeBatch string `yaml:"whole_batch,omitempty"`

	// Order is the expected canonical order of surviving notices.
	Order []string `yaml:"order,omitempty"`

	// Actions lists the matched actions in chunk order.
	Actions []string `yaml:"actions,omitempty"`

	// Outcomes lists every chunk outcome in chunk order.
	Outcomes []string `yaml:"outcomes,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a chunk ran with action, notices and outcome
	// - "trace_order": actions ran in order
	// - "trace_count": action ran exactly Count times
	// - "final_state": query table and verify expected values
	// - "confirmations": outbox documents queued for one enrollment
	// - "dispositions": acknowledgments recorded for one enrollment
	Type string `yaml:"type"`

	// Action is the action name (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// HbxEnrollmentIDs are the chunk's notices (trace_contains).
	HbxEnrollmentIDs []string `yaml:"hbx_enrollment_ids,omitempty"`

	// Outcome is the chunk outcome (trace_contains).
	Outcome string `yaml:"outcome,omitempty"`

	// Canceled are the renewals the chunk canceled (trace_contains).
	Canceled []string `yaml:"canceled_renewals,omitempty"`

	// HbxEnrollmentID selects the enrollment (confirmations, dispositions).
	HbxEnrollmentID string `yaml:"hbx_enrollment_id,omitempty"`

	// Documents are the expected action URIs in enqueue order (confirmations).
	Documents []string `yaml:"documents,omitempty"`

	// Dispositions are the expected acknowledgments in order (dispositions).
	Dispositions []string `yaml:"dispositions,omitempty"`

	// Table is the store table name (final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (final_state). All fields must match.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state). Subset match.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected action order (trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertConfirmations = "confirmations"
	AssertDispositions  = "dispositions"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: empty document")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, p := range s.Setup.Plans {
		if p.ID == "" {
			return fmt.Errorf("setup.plans[%d]: id is required", i)
		}
		if p.Year == 0 {
			return fmt.Errorf("setup.plans[%d]: year is required", i)
		}
	}
	for i, p := range s.Setup.Policies {
		if p.ID == "" {
			return fmt.Errorf("setup.policies[%d]: id is required", i)
		}
		if p.SubscriberID == "" {
			return fmt.Errorf("setup.policies[%d]: subscriber_id is required", i)
		}
		if p.Start == "" {
			return fmt.Errorf("setup.policies[%d]: start is required", i)
		}
		switch enrollment.PolicyStatus(p.Status) {
		case "", enrollment.StatusActive, enrollment.StatusTerminated, enrollment.StatusCanceled:
		default:
			return fmt.Errorf("setup.policies[%d]: unknown status %q", i, p.Status)
		}
	}

	for i, step := range s.Steps {
		if len(step.Batch.Events) == 0 {
			return fmt.Errorf("steps[%d]: batch.events is required and must be non-empty", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertConfirmations, AssertDispositions:
		if a.HbxEnrollmentID == "" {
			return fmt.Errorf("assertions[%d]: hbx_enrollment_id is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

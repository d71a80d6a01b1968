package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ideacrew/gluedb-sub000/internal/action"
	"github.com/ideacrew/gluedb-sub000/internal/causal"
	"github.com/ideacrew/gluedb-sub000/internal/chunk"
	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
	"github.com/ideacrew/gluedb-sub000/internal/filter"
	"github.com/ideacrew/gluedb-sub000/internal/store"
)

// DefaultWorkers is the number of batches Run processes concurrently.
const DefaultWorkers = 4

// ErrStopped is returned by Submit once the engine no longer accepts jobs.
var ErrStopped = errors.New("engine stopped")

// Journal records the outcome of every chunk.
type Journal interface {
	RecordAction(ctx context.Context, rec store.ActionRecord) error
}

var partitioner = chunk.Partitioner{
	Triple:   action.QualifiesAsTriple,
	Adjacent: action.IsAdjacentTo,
}

// Engine resolves batches against a fixed set of collaborators.
//
// Thread-safety model:
//   - Process, Classify, Enqueue, Submit: safe from any goroutine
//   - Run: call from one goroutine; it starts the workers itself
//
// The engine keeps no per-batch state between calls.
type Engine struct {
	deps    action.Deps
	ack     enrollment.Acknowledger
	journal Journal
	clock   *Clock
	ids     BatchIDGenerator
	workers int
	queue   *jobQueue
}

// Option configures an Engine.
type Option func(*Engine)

// WithAcknowledger sets where notice dispositions are sent.
func WithAcknowledger(a enrollment.Acknowledger) Option {
	return func(e *Engine) { e.ack = a }
}

// WithJournal records every chunk outcome.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithClock sets the logical clock used for action log sequence numbers.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithBatchIDs sets the generator used for batches without an id.
func WithBatchIDs(g BatchIDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithWorkers sets how many batches Run processes concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// New creates an Engine. deps.Policies, deps.Markers and deps.Publisher
// are required.
func New(deps action.Deps, opts ...Option) *Engine {
	e := &Engine{
		deps:    deps,
		clock:   NewClock(),
		ids:     UUIDv7Generator{},
		workers: DefaultWorkers,
		queue:   newJobQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// batchPlan is the ordered work for one batch. Chunks are classified one at
// a time, against lineage reloaded after the chunks before them ran.
type batchPlan struct {
	chunks []enrollment.Chunk
	// whole is set when one descriptor claimed the entire batch.
	whole *action.Descriptor
	// survivors are the notices left after filtering.
	survivors []*enrollment.Event
}

// planned is a chunk and the descriptor chosen for it, nil when none
// qualifies.
type planned struct {
	chunk      enrollment.Chunk
	descriptor *action.Descriptor
}

// Process runs the full pipeline over one batch and executes every chunk.
// On error the returned report covers the chunks handled so far.
func (e *Engine) Process(ctx context.Context, b *enrollment.Batch) (*Report, error) {
	id, err := e.admit(b)
	if err != nil {
		return nil, err
	}
	rep := &Report{BatchID: id, Received: len(b.Events), Chunks: []ChunkResult{}}

	bp, err := e.plan(ctx, id, b.Events, filter.New(e.deps.Markers, e.ack), rep)
	if err != nil {
		if IsCycleError(err) {
			if qerr := e.quarantine(ctx, id, bp.survivors, err); qerr != nil {
				err = qerr
			}
		}
		logBatchError(id, err)
		return rep, err
	}
	for _, c := range bp.chunks {
		p, err := e.classify(ctx, id, bp, c)
		if err != nil {
			logBatchError(id, err)
			return rep, err
		}
		res, err := e.execute(ctx, id, p)
		rep.Chunks = append(rep.Chunks, res)
		if err != nil {
			logBatchError(id, err)
			return rep, err
		}
	}

	slog.Info("batch processed",
		"batch_id", id,
		"received", rep.Received,
		"dropped", rep.Dropped,
		"chunks", len(rep.Chunks),
		"published", rep.Count(OutcomePublished),
		"unmatched", rep.Count(OutcomeUnmatched),
	)
	return rep, nil
}

// Classify runs the pipeline up to classification without mutating,
// publishing or acknowledging anything. Since nothing is applied, every
// chunk sees the lineage stored before the batch.
func (e *Engine) Classify(ctx context.Context, b *enrollment.Batch) (*Report, error) {
	id, err := e.admit(b)
	if err != nil {
		return nil, err
	}
	rep := &Report{BatchID: id, Received: len(b.Events), Chunks: []ChunkResult{}}

	bp, err := e.plan(ctx, id, b.Events, filter.New(e.deps.Markers, nil), rep)
	if err != nil {
		return rep, err
	}
	for _, c := range bp.chunks {
		p, err := e.classify(ctx, id, bp, c)
		if err != nil {
			return rep, err
		}
		res := ChunkResult{HbxEnrollmentIDs: hbxIDs(p.chunk), Outcome: OutcomeUnmatched}
		if p.descriptor != nil {
			res.Action = p.descriptor.Name
			res.Outcome = OutcomeClassified
			for _, doc := range p.descriptor.Bind(p.chunk, e.deps).Documents() {
				res.Documents = append(res.Documents, doc.Action)
			}
		}
		rep.Chunks = append(rep.Chunks, res)
	}
	return rep, nil
}

func (e *Engine) admit(b *enrollment.Batch) (string, error) {
	if b == nil {
		return "", NewInvalidBatchError("", "nil batch")
	}
	id := b.ID
	if id == "" {
		id = e.ids.Generate()
	}
	if len(b.Events) == 0 {
		return id, NewInvalidBatchError(id, "batch has no events")
	}
	for i, ev := range b.Events {
		if ev == nil || ev.HbxEnrollmentID == "" {
			return id, NewInvalidBatchError(id, fmt.Sprintf("event %d has no hbx enrollment id", i))
		}
	}
	return id, nil
}

// plan hydrates, filters, orders and partitions. The returned plan carries
// the survivors even when ordering fails.
func (e *Engine) plan(ctx context.Context, id string, events []*enrollment.Event, pipeline *filter.Pipeline, rep *Report) (batchPlan, error) {
	var bp batchPlan
	hydrated, err := e.hydrate(ctx, events)
	if err != nil {
		return bp, NewCollaboratorError(id, "hydrate", err)
	}
	survivors, err := pipeline.Filter(ctx, hydrated)
	if err != nil {
		return bp, NewCollaboratorError(id, "filter", err)
	}
	survivors, err = pipeline.DropBogus(ctx, survivors)
	if err != nil {
		return bp, NewCollaboratorError(id, "bogus filter", err)
	}
	bp.survivors = survivors
	rep.Dropped = len(hydrated) - len(survivors)
	if len(survivors) == 0 {
		slog.Info("batch fully filtered", "batch_id", id, "received", len(events))
		return bp, nil
	}

	if d, c, ok := action.MatchBatch(survivors); ok {
		slog.Info("whole batch matched", "batch_id", id, "action", d.Name)
		rep.WholeBatch = d.Name
		rep.Order = hbxIDs(c)
		bp.whole = d
		bp.chunks = []enrollment.Chunk{c}
		return bp, nil
	}

	ordered, err := causal.Order(survivors)
	if err != nil {
		var ce *causal.CycleError
		if errors.As(err, &ce) {
			slog.Error("causal cycle detected",
				"batch_id", id,
				"path", strings.Join(ce.Path, " -> "),
				"event", "cycle_detected",
			)
			return bp, NewCycleError(id, ce)
		}
		return bp, fmt.Errorf("order batch %s: %w", id, err)
	}
	rep.Order = hbxIDs(ordered)
	bp.chunks = partitioner.Partition(ordered)
	return bp, nil
}

// classify reloads the chunk's lineage, so that policies created or ended
// by earlier chunks of the batch are visible, and picks its descriptor.
func (e *Engine) classify(ctx context.Context, id string, bp batchPlan, c enrollment.Chunk) (planned, error) {
	if bp.whole != nil {
		return planned{chunk: c, descriptor: bp.whole}, nil
	}
	fresh, err := e.hydrate(ctx, c)
	if err != nil {
		return planned{}, NewCollaboratorError(id, "hydrate", err)
	}
	c = enrollment.Chunk(fresh)
	return planned{chunk: c, descriptor: action.Classify(c)}, nil
}

// quarantine settles a batch that cannot be ordered: every surviving notice
// is acknowledged as dropped and the cycle is journaled, so an operator can
// find it without the batch being redelivered forever.
func (e *Engine) quarantine(ctx context.Context, id string, survivors []*enrollment.Event, cause error) error {
	reason := "causal cycle"
	var re *RuntimeError
	if errors.As(cause, &re) {
		reason += ": " + strings.ReplaceAll(re.Details["path"], ",", " -> ")
	}
	if err := e.acknowledge(ctx, survivors, enrollment.DispositionDropped, reason); err != nil {
		return NewCollaboratorError(id, "acknowledge", err)
	}
	return e.record(ctx, id, ChunkResult{
		Seq:              e.clock.Next(),
		HbxEnrollmentIDs: hbxIDs(survivors),
		Outcome:          OutcomeFailed,
		Errors:           []string{cause.Error()},
	})
}

// execute runs the two-phase protocol for one chunk.
func (e *Engine) execute(ctx context.Context, id string, p planned) (ChunkResult, error) {
	res := ChunkResult{Seq: e.clock.Next(), HbxEnrollmentIDs: hbxIDs(p.chunk)}

	if p.descriptor == nil {
		slog.Warn("no action qualifies for chunk",
			"batch_id", id,
			"chunk", res.HbxEnrollmentIDs,
		)
		res.Outcome = OutcomeUnmatched
		if err := e.acknowledge(ctx, p.chunk, enrollment.DispositionSkipped, "no action qualifies"); err != nil {
			return res, NewCollaboratorError(id, "acknowledge", err)
		}
		return res, e.record(ctx, id, res)
	}

	res.Action = p.descriptor.Name
	r := p.descriptor.Bind(p.chunk, e.deps)

	ok, err := r.Persist(ctx)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Errors = []string{err.Error()}
		if jerr := e.record(ctx, id, res); jerr != nil {
			slog.Error("record failed action", "batch_id", id, "error", jerr)
		}
		var pe *action.PartialPersistError
		if errors.As(err, &pe) {
			return res, NewPartialPersistError(id, pe)
		}
		return res, NewCollaboratorError(id, "persist "+p.descriptor.Name, err)
	}
	if !ok {
		res.Outcome = OutcomeRejected
		if err := e.acknowledge(ctx, p.chunk, enrollment.DispositionSkipped, "rejected by "+p.descriptor.Name); err != nil {
			return res, NewCollaboratorError(id, "acknowledge", err)
		}
		return res, e.record(ctx, id, res)
	}

	res.Canceled = r.CascadeCanceled()
	if err := e.acknowledge(ctx, p.chunk, enrollment.DispositionProcessed, p.descriptor.Name); err != nil {
		return res, NewCollaboratorError(id, "acknowledge", err)
	}

	published, errs := r.Publish(ctx)
	for _, doc := range r.Documents() {
		res.Documents = append(res.Documents, doc.Action)
	}
	if published {
		res.Outcome = OutcomePublished
	} else {
		res.Outcome = OutcomePersisted
		for _, err := range errs {
			res.Errors = append(res.Errors, err.Error())
		}
	}
	return res, e.record(ctx, id, res)
}

func (e *Engine) acknowledge(ctx context.Context, c []*enrollment.Event, d enrollment.Disposition, reason string) error {
	if e.ack == nil {
		return nil
	}
	for _, ev := range c {
		if err := e.ack.Acknowledge(ctx, ev, d, reason); err != nil {
			return fmt.Errorf("acknowledge %s: %w", ev.HbxEnrollmentID, err)
		}
	}
	return nil
}

func (e *Engine) record(ctx context.Context, id string, res ChunkResult) error {
	if e.journal == nil {
		return nil
	}
	err := e.journal.RecordAction(ctx, store.ActionRecord{
		BatchID:          id,
		Seq:              res.Seq,
		Action:           res.Action,
		HbxEnrollmentIDs: res.HbxEnrollmentIDs,
		Outcome:          string(res.Outcome),
		Detail:           strings.Join(res.Errors, "; "),
	})
	if err != nil {
		return NewCollaboratorError(id, "journal", err)
	}
	return nil
}

// Enqueue submits a job for Run. Returns false once the engine is stopped.
func (e *Engine) Enqueue(j Job) bool {
	return e.queue.Enqueue(j)
}

// Submit enqueues b and waits for its result.
func (e *Engine) Submit(ctx context.Context, b *enrollment.Batch) (*Report, error) {
	done := make(chan Result, 1)
	if !e.Enqueue(Job{Batch: b, Done: done}) {
		return nil, ErrStopped
	}
	select {
	case r := <-done:
		return r.Report, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run processes queued jobs with the configured number of workers. It
// blocks until ctx is canceled or Stop is called and the queue is drained.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "workers", e.workers)

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.work(ctx)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		slog.Info("engine stopping: context cancelled")
		e.queue.Close()
		return err
	}
	slog.Info("engine stopping: queue closed")
	return nil
}

func (e *Engine) work(ctx context.Context) {
	for {
		if job, ok := e.queue.TryDequeue(); ok {
			rep, err := e.Process(ctx, job.Batch)
			if job.Done != nil {
				select {
				case job.Done <- Result{Report: rep, Err: err}:
				case <-ctx.Done():
					return
				}
			}
			continue
		}
		if e.queue.Drained() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-e.queue.Wait():
		}
	}
}

// Stop closes the queue. Run returns once queued jobs are finished.
func (e *Engine) Stop() {
	e.queue.Close()
}

// logBatchError logs a failed batch with enough context to replay it.
func logBatchError(id string, err error) {
	attrs := []any{"batch_id", id, "error", err}
	var re *RuntimeError
	if errors.As(err, &re) {
		attrs = append(attrs, "code", string(re.Code))
		for k, v := range re.Details {
			attrs = append(attrs, k, v)
		}
	}
	slog.Error("batch processing failed", attrs...)
}

package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Loom/internal/dispatch"
	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/queue"
	"github.com/shaiso/Loom/internal/repo"
	"github.com/shaiso/Loom/internal/store"
)

// fakeRuns — in-memory RunStates с честной CAS-семантикой.
type fakeRuns struct {
	mu     sync.Mutex
	states map[uuid.UUID]*domain.RunState
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{states: make(map[uuid.UUID]*domain.RunState)}
}

func cloneState(s *domain.RunState) *domain.RunState {
	c := *s
	c.Fields = make(map[string]any, len(s.Fields))
	for k, v := range s.Fields {
		c.Fields[k] = v
	}
	return &c
}

func (f *fakeRuns) put(s *domain.RunState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[s.DocID] = cloneState(s)
}

func (f *fakeRuns) Get(_ context.Context, docID uuid.UUID) (*domain.RunState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[docID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return cloneState(s), nil
}

func (f *fakeRuns) UpdateCAS(_ context.Context, state *domain.RunState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.states[state.DocID]
	if !ok || stored.Revision != state.Revision {
		return repo.ErrConflict
	}
	state.Revision++
	f.states[state.DocID] = cloneState(state)
	return nil
}

// ListStale повторяет семантику репозитория: нетерминальные состояния
// старше horizon, исключая припаркованные на backoff.
func (f *fakeRuns) ListStale(_ context.Context, horizon time.Duration, limit int) ([]domain.RunState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now().UTC()
	cutoff := now.Add(-horizon)

	var out []domain.RunState
	for _, s := range f.states {
		if s.IsTerminal() || !s.UpdatedAt.Before(cutoff) {
			continue
		}
		if !s.NextAttemptAt.IsZero() && s.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, *cloneState(s))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// fakeDefs — in-memory Definitions.
type fakeDefs struct {
	versions  map[uuid.UUID]*domain.PipelineVersion
	templates map[uuid.UUID]*domain.Template
}

func (f *fakeDefs) PipelineVersion(_ context.Context, pipelineID uuid.UUID, _ int) (*domain.PipelineVersion, error) {
	v, ok := f.versions[pipelineID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return v, nil
}

func (f *fakeDefs) Template(_ context.Context, id uuid.UUID, _ int) (*domain.Template, error) {
	t, ok := f.templates[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return t, nil
}

// countingQueue считает публикации.
type countingQueue struct {
	*queue.MemoryQueue
	mu       sync.Mutex
	enqueued []domain.Task
}

func newCountingQueue() *countingQueue {
	return &countingQueue{MemoryQueue: queue.NewMemoryQueue(64)}
}

func (q *countingQueue) Enqueue(ctx context.Context, task *domain.Task, notBefore time.Time) error {
	q.mu.Lock()
	q.enqueued = append(q.enqueued, *task)
	q.mu.Unlock()
	return q.MemoryQueue.Enqueue(ctx, task, notBefore)
}

func (q *countingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.enqueued)
}

func (q *countingQueue) last() domain.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueued[len(q.enqueued)-1]
}

// testHarness — координатор с фейковыми зависимостями вокруг
// двухузлового pipeline "extract → embed".
type testHarness struct {
	coord    *Coordinator
	runs     *fakeRuns
	tasks    *countingQueue
	docs     *store.MemoryStore
	state    *domain.RunState
	pipeline uuid.UUID
}

func newHarness(t *testing.T, extract, embed dispatch.Action, retry *domain.RetryPolicy) *testHarness {
	t.Helper()

	pipelineID := uuid.New()
	extractTpl := uuid.New()
	embedTpl := uuid.New()

	spec := domain.PipelineSpec{
		Name:        "articles",
		InputSchema: []string{"text"},
		Nodes: []domain.NodeDef{
			{
				ID:           "extract",
				Action:       domain.ActionTransform,
				TemplateID:   extractTpl,
				InputFields:  []string{"text"},
				OutputFields: []string{"title"},
				Retry:        retry,
			},
			{
				ID:           "embed",
				Action:       domain.ActionModelEmbed,
				TemplateID:   embedTpl,
				InputFields:  []string{"text", "title"},
				OutputFields: []string{"vector"},
				Retry:        retry,
			},
		},
	}

	defs := &fakeDefs{
		versions: map[uuid.UUID]*domain.PipelineVersion{
			pipelineID: {PipelineID: pipelineID, Version: 1, Spec: spec},
		},
		templates: map[uuid.UUID]*domain.Template{
			extractTpl: {ID: extractTpl, Version: 1, Body: "{{ .text }}"},
			embedTpl:   {ID: embedTpl, Version: 1, Body: "{{ .title }}: {{ .text }}"},
		},
	}

	registry := dispatch.NewRegistry()
	registry.Register(domain.ActionTransform, extract)
	registry.Register(domain.ActionModelEmbed, embed)

	runs := newFakeRuns()
	tasks := newCountingQueue()
	docs := store.NewMemoryStore()

	coord := New(Config{
		RunStates:   runs,
		Definitions: defs,
		Invoker:     dispatch.New(dispatch.Config{Registry: registry}),
		Tasks:       tasks,
		Documents:   docs,
		Logger:      slog.Default(),
	})

	version := defs.versions[pipelineID]
	state := domain.NewRunState(uuid.New(), version, map[string]any{"text": "body of the article"})
	runs.put(state)

	return &testHarness{
		coord:    coord,
		runs:     runs,
		tasks:    tasks,
		docs:     docs,
		state:    state,
		pipeline: pipelineID,
	}
}

func (h *testHarness) firstTask() *domain.Task {
	return domain.NewTask(h.state, 0, 0, time.Time{})
}

func (h *testHarness) currentState(t *testing.T) *domain.RunState {
	t.Helper()
	state, err := h.runs.Get(context.Background(), h.state.DocID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	return state
}

func okExtract() dispatch.Action {
	return dispatch.NewScriptedAction(dispatch.ScriptedReply{Outputs: map[string]any{"title": "Title"}})
}

func okEmbed() dispatch.Action {
	return dispatch.NewScriptedAction(dispatch.ScriptedReply{Outputs: map[string]any{"vector": []float32{0.5}}})
}

func TestProcessRunsPipelineToCompletion(t *testing.T) {
	h := newHarness(t, okExtract(), okEmbed(), nil)
	ctx := context.Background()

	// Узел 0: extract
	if err := h.coord.Process(ctx, h.firstTask()); err != nil {
		t.Fatalf("process node 0: %v", err)
	}

	state := h.currentState(t)
	if state.Status != domain.RunStatusRunning {
		t.Errorf("status = %s, want RUNNING", state.Status)
	}
	if state.Cursor != 1 {
		t.Errorf("cursor = %d, want 1", state.Cursor)
	}
	if state.Fields["title"] != "Title" {
		t.Errorf("title = %v, want %q", state.Fields["title"], "Title")
	}
	if h.tasks.count() != 1 {
		t.Fatalf("enqueued = %d, want 1", h.tasks.count())
	}
	next := h.tasks.last()
	if next.NodeIndex != 1 || next.Attempt != 0 {
		t.Errorf("next task = node %d attempt %d, want node 1 attempt 0", next.NodeIndex, next.Attempt)
	}

	// Узел 1: embed, последний
	if err := h.coord.Process(ctx, &next); err != nil {
		t.Fatalf("process node 1: %v", err)
	}

	state = h.currentState(t)
	if state.Status != domain.RunStatusSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", state.Status)
	}
	if state.Cursor != 2 {
		t.Errorf("cursor = %d, want 2", state.Cursor)
	}

	// Ровно два enqueue на весь прогон: узел 1 и ничего после завершения
	if h.tasks.count() != 1 {
		t.Errorf("enqueued = %d, want 1 (nothing after the final node)", h.tasks.count())
	}

	// Документ передан хранилищу
	doc, err := h.docs.Get(ctx, h.state.DocID)
	if err != nil {
		t.Fatalf("stored document: %v", err)
	}
	if doc.Fields["title"] != "Title" {
		t.Errorf("stored title = %v, want %q", doc.Fields["title"], "Title")
	}
	if doc.PipelineVersion != 1 {
		t.Errorf("stored version = %d, want 1", doc.PipelineVersion)
	}
}

func TestProcessDuplicateDeliveryIsDiscarded(t *testing.T) {
	extract := okExtract().(*dispatch.ScriptedAction)
	h := newHarness(t, extract, okEmbed(), nil)
	ctx := context.Background()

	task := h.firstTask()
	if err := h.coord.Process(ctx, task); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	// Дубликат той же доставки
	if err := h.coord.Process(ctx, task); err != nil {
		t.Fatalf("duplicate delivery: %v", err)
	}

	state := h.currentState(t)
	if state.Cursor != 1 {
		t.Errorf("cursor = %d, want 1 (duplicate must not re-apply outputs)", state.Cursor)
	}
	if extract.Calls() != 1 {
		t.Errorf("extract calls = %d, want 1 (duplicate must not re-invoke)", extract.Calls())
	}
	if h.tasks.count() != 1 {
		t.Errorf("enqueued = %d, want 1 (duplicate must not enqueue)", h.tasks.count())
	}
}

func TestProcessTransientFailureRetriesWithBackoff(t *testing.T) {
	policy := &domain.RetryPolicy{MaxAttempts: 3, Backoff: "exponential", InitialDelayMs: 50, MaxDelayMs: 1000}
	extract := dispatch.NewScriptedAction(
		dispatch.ScriptedReply{Err: dispatch.Transientf("model overloaded")},
		dispatch.ScriptedReply{Outputs: map[string]any{"title": "Title"}},
	)
	h := newHarness(t, extract, okEmbed(), policy)
	ctx := context.Background()

	if err := h.coord.Process(ctx, h.firstTask()); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	state := h.currentState(t)
	if state.Status != domain.RunStatusRunning {
		t.Errorf("status = %s, want RUNNING", state.Status)
	}
	if state.Cursor != 0 {
		t.Errorf("cursor = %d, want 0 (node not advanced)", state.Cursor)
	}
	if state.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", state.Attempt)
	}
	if state.LastError == "" {
		t.Error("last_error must record the transient failure")
	}

	if h.tasks.count() != 1 {
		t.Fatalf("enqueued = %d, want 1 retry task", h.tasks.count())
	}
	retry := h.tasks.last()
	if retry.NodeIndex != 0 || retry.Attempt != 1 {
		t.Errorf("retry task = node %d attempt %d, want node 0 attempt 1", retry.NodeIndex, retry.Attempt)
	}
	if retry.NotBefore.IsZero() {
		t.Error("retry task must carry a not_before delay")
	}
	if !state.NextAttemptAt.Equal(retry.NotBefore) {
		t.Errorf("next_attempt_at = %v, want %v (the retry's not_before)", state.NextAttemptAt, retry.NotBefore)
	}

	// Повторная доставка проходит
	if err := h.coord.Process(ctx, &retry); err != nil {
		t.Fatalf("retry delivery: %v", err)
	}
	state = h.currentState(t)
	if state.Cursor != 1 {
		t.Errorf("cursor = %d, want 1 after successful retry", state.Cursor)
	}
	if state.Attempt != 0 {
		t.Errorf("attempt = %d, want 0 (reset on advance)", state.Attempt)
	}
	if state.LastError != "" {
		t.Errorf("last_error = %q, want empty after advance", state.LastError)
	}
	if !state.NextAttemptAt.IsZero() {
		t.Errorf("next_attempt_at = %v, want zero after advance", state.NextAttemptAt)
	}
}

// Прохождение с backoff длиннее staleHorizon не должно выглядеть для
// poll как потерянная доставка: перестановка выполнила бы узел задолго
// до его not_before.
func TestPollSkipsRunParkedOnRetryBackoff(t *testing.T) {
	policy := &domain.RetryPolicy{MaxAttempts: 3, Backoff: "fixed", InitialDelayMs: 600000, MaxDelayMs: 600000}
	extract := dispatch.NewScriptedAction(
		dispatch.ScriptedReply{Err: dispatch.Transientf("model overloaded")},
		dispatch.ScriptedReply{Outputs: map[string]any{"title": "Title"}},
	)
	h := newHarness(t, extract, okEmbed(), policy)
	ctx := context.Background()

	if err := h.coord.Process(ctx, h.firstTask()); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if h.tasks.count() != 1 {
		t.Fatalf("enqueued = %d, want 1 retry task", h.tasks.count())
	}

	state := h.currentState(t)
	if state.NextAttemptAt.IsZero() {
		t.Fatal("retry must persist next_attempt_at")
	}
	if until := time.Until(state.NextAttemptAt); until < 9*time.Minute {
		t.Fatalf("next_attempt_at in %v, want about 10m", until)
	}

	// Состояние давно не обновлялось, но retry ещё припаркован
	state.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	h.runs.put(state)

	h.coord.poll(ctx)
	if h.tasks.count() != 1 {
		t.Errorf("enqueued = %d, want 1 (poll must not requeue a parked retry)", h.tasks.count())
	}
	if extract.Calls() != 1 {
		t.Errorf("invocations = %d, want 1 (no early re-invocation)", extract.Calls())
	}

	// Backoff истёк, а доставка так и не пришла — теперь это потерянный
	// task, и poll обязан его восстановить
	state.NextAttemptAt = time.Now().UTC().Add(-time.Second)
	h.runs.put(state)

	h.coord.poll(ctx)
	if h.tasks.count() != 2 {
		t.Fatalf("enqueued = %d, want 2 (poll requeues once not_before passed)", h.tasks.count())
	}
	requeued := h.tasks.last()
	if requeued.NodeIndex != 0 || requeued.Attempt != 1 {
		t.Errorf("requeued task = node %d attempt %d, want node 0 attempt 1", requeued.NodeIndex, requeued.Attempt)
	}

	if err := h.coord.Process(ctx, &requeued); err != nil {
		t.Fatalf("requeued delivery: %v", err)
	}
	if got := h.currentState(t); got.Cursor != 1 {
		t.Errorf("cursor = %d, want 1 after recovered retry", got.Cursor)
	}
}

func TestProcessRetryExhaustion(t *testing.T) {
	policy := &domain.RetryPolicy{MaxAttempts: 2, Backoff: "fixed", InitialDelayMs: 10}
	extract := dispatch.NewScriptedAction(
		dispatch.ScriptedReply{Err: dispatch.Transientf("still down")},
	)
	h := newHarness(t, extract, okEmbed(), policy)
	ctx := context.Background()

	if err := h.coord.Process(ctx, h.firstTask()); err != nil {
		t.Fatalf("attempt 1: %v", err)
	}
	retry := h.tasks.last()

	if err := h.coord.Process(ctx, &retry); err != nil {
		t.Fatalf("attempt 2: %v", err)
	}

	state := h.currentState(t)
	if state.Status != domain.RunStatusFailed {
		t.Errorf("status = %s, want FAILED", state.Status)
	}
	if state.FailureKind != domain.FailureRetryExhausted {
		t.Errorf("failure_kind = %s, want RETRY_EXHAUSTED", state.FailureKind)
	}
	if state.Attempt != 2 {
		t.Errorf("attempt = %d, want 2 (exactly max_attempts invocations)", state.Attempt)
	}
	if extract.Calls() != 2 {
		t.Errorf("invocations = %d, want exactly 2", extract.Calls())
	}
	if h.tasks.count() != 1 {
		t.Errorf("enqueued = %d, want 1 (no retry after exhaustion)", h.tasks.count())
	}
	if h.docs.Len() != 0 {
		t.Error("failed run must not hand the document to the store")
	}
}

func TestProcessPermanentFailure(t *testing.T) {
	extract := dispatch.NewScriptedAction(
		dispatch.ScriptedReply{Err: dispatch.Permanentf("schema mismatch")},
	)
	h := newHarness(t, extract, okEmbed(), nil)

	if err := h.coord.Process(context.Background(), h.firstTask()); err != nil {
		t.Fatalf("process: %v", err)
	}

	state := h.currentState(t)
	if state.Status != domain.RunStatusFailed {
		t.Errorf("status = %s, want FAILED", state.Status)
	}
	if state.FailureKind != domain.FailurePermanent {
		t.Errorf("failure_kind = %s, want PERMANENT", state.FailureKind)
	}
	if extract.Calls() != 1 {
		t.Errorf("invocations = %d, want 1 (no retries for permanent)", extract.Calls())
	}
	if h.tasks.count() != 0 {
		t.Errorf("enqueued = %d, want 0", h.tasks.count())
	}
}

func TestProcessTerminalStateDiscardsTask(t *testing.T) {
	extract := okExtract().(*dispatch.ScriptedAction)
	h := newHarness(t, extract, okEmbed(), nil)

	h.state.MarkFailed(domain.FailureCancelled, "cancelled by operator")
	h.runs.put(h.state)

	if err := h.coord.Process(context.Background(), h.firstTask()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if extract.Calls() != 0 {
		t.Errorf("invocations = %d, want 0 for a terminal run", extract.Calls())
	}
	if h.tasks.count() != 0 {
		t.Errorf("enqueued = %d, want 0", h.tasks.count())
	}
}

func TestProcessUnknownStateDiscardsTask(t *testing.T) {
	h := newHarness(t, okExtract(), okEmbed(), nil)

	orphan := domain.NewTask(h.state, 0, 0, time.Time{})
	orphan.DocID = uuid.New()

	if err := h.coord.Process(context.Background(), orphan); err != nil {
		t.Fatalf("process: %v", err)
	}
	if h.tasks.count() != 0 {
		t.Errorf("enqueued = %d, want 0", h.tasks.count())
	}
}

func TestProcessOutputContractViolationIsPermanent(t *testing.T) {
	extract := dispatch.NewScriptedAction(
		dispatch.ScriptedReply{Outputs: map[string]any{"title": "Title", "surprise": 1}},
	)
	h := newHarness(t, extract, okEmbed(), nil)

	if err := h.coord.Process(context.Background(), h.firstTask()); err != nil {
		t.Fatalf("process: %v", err)
	}

	state := h.currentState(t)
	if state.Status != domain.RunStatusFailed {
		t.Errorf("status = %s, want FAILED", state.Status)
	}
	if state.FailureKind != domain.FailurePermanent {
		t.Errorf("failure_kind = %s, want PERMANENT", state.FailureKind)
	}
}

func TestProcessLostRaceDiscardsDelivery(t *testing.T) {
	extract := okExtract().(*dispatch.ScriptedAction)
	h := newHarness(t, extract, okEmbed(), nil)
	ctx := context.Background()

	task := h.firstTask()

	// Конкурирующий писатель успевает записать между чтением и CAS:
	// симулируем, продвинув revision в хранилище
	concurrent := h.currentState(t)
	concurrent.MarkRunning()
	if err := h.runs.UpdateCAS(ctx, concurrent); err != nil {
		t.Fatalf("concurrent write: %v", err)
	}
	concurrent.Advance(map[string]any{"title": "Other"})
	if err := h.runs.UpdateCAS(ctx, concurrent); err != nil {
		t.Fatalf("concurrent advance: %v", err)
	}

	// Доставка отстала: cursor уже 1 — guard отбрасывает
	if err := h.coord.Process(ctx, task); err != nil {
		t.Fatalf("process: %v", err)
	}
	if extract.Calls() != 0 {
		t.Errorf("invocations = %d, want 0", extract.Calls())
	}

	state := h.currentState(t)
	if state.Fields["title"] != "Other" {
		t.Errorf("title = %v, want the concurrent writer's value", state.Fields["title"])
	}
}

func TestDecideAdvanceResetsAttempt(t *testing.T) {
	spec := &domain.PipelineSpec{Nodes: []domain.NodeDef{{ID: "a", OutputFields: []string{"x"}}, {ID: "b", OutputFields: []string{"y"}}}}
	state := &domain.RunState{Cursor: 0, Attempt: 2, Fields: map[string]any{}, Status: domain.RunStatusRunning, LastError: "old"}

	d := Decide(state, spec, map[string]any{"x": 1}, nil, time.Now())
	if d.Outcome != OutcomeAdvance {
		t.Fatalf("outcome = %v, want advance", d.Outcome)
	}
	if state.Attempt != 0 || state.LastError != "" {
		t.Errorf("advance must reset attempt and last_error, got attempt=%d last_error=%q", state.Attempt, state.LastError)
	}
	if d.Next == nil || d.Next.NodeIndex != 1 {
		t.Errorf("next task must target node 1")
	}
}

func TestDecideCompleteOnLastNode(t *testing.T) {
	spec := &domain.PipelineSpec{Nodes: []domain.NodeDef{{ID: "only", OutputFields: []string{"x"}}}}
	state := &domain.RunState{Cursor: 0, Fields: map[string]any{}, Status: domain.RunStatusRunning}

	d := Decide(state, spec, map[string]any{"x": 1}, nil, time.Now())
	if d.Outcome != OutcomeComplete {
		t.Fatalf("outcome = %v, want complete", d.Outcome)
	}
	if state.Status != domain.RunStatusSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", state.Status)
	}
	if d.Next != nil {
		t.Error("complete must not produce a next task")
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	spec := &domain.PipelineSpec{Nodes: []domain.NodeDef{{ID: "a", OutputFields: []string{"x"}, Retry: &domain.RetryPolicy{MaxAttempts: 5, Backoff: "exponential", InitialDelayMs: 100, MaxDelayMs: 5000}}}}
	now := time.Unix(1700000000, 0).UTC()
	invErr := dispatch.Transientf("flaky")

	mk := func() *domain.RunState {
		return &domain.RunState{DocID: uuid.Nil, Cursor: 0, Attempt: 1, Fields: map[string]any{}, Status: domain.RunStatusRunning}
	}

	d1 := Decide(mk(), spec, nil, invErr, now)
	d2 := Decide(mk(), spec, nil, invErr, now)

	if d1.Outcome != d2.Outcome || d1.Delay != d2.Delay {
		t.Errorf("decisions differ: %+v vs %+v", d1, d2)
	}
	if !d1.Retry.NotBefore.Equal(d2.Retry.NotBefore) {
		t.Errorf("not_before differs: %v vs %v", d1.Retry.NotBefore, d2.Retry.NotBefore)
	}
}

func TestIsStale(t *testing.T) {
	base := func() *domain.RunState {
		return &domain.RunState{Cursor: 1, Attempt: 1, Status: domain.RunStatusRunning}
	}

	tests := []struct {
		name  string
		state *domain.RunState
		task  domain.Task
		want  bool
	}{
		{"current node and attempt", base(), domain.Task{NodeIndex: 1, Attempt: 1}, false},
		{"cursor moved past", base(), domain.Task{NodeIndex: 0, Attempt: 0}, true},
		{"attempt already counted", base(), domain.Task{NodeIndex: 1, Attempt: 0}, true},
		{"future attempt allowed", base(), domain.Task{NodeIndex: 1, Attempt: 2}, false},
		{"terminal succeeded", &domain.RunState{Cursor: 2, Status: domain.RunStatusSucceeded}, domain.Task{NodeIndex: 2}, true},
		{"terminal failed", &domain.RunState{Cursor: 1, Status: domain.RunStatusFailed}, domain.Task{NodeIndex: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStale(tt.state, &tt.task); got != tt.want {
				t.Errorf("IsStale = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	policy := &domain.RetryPolicy{Backoff: "exponential", InitialDelayMs: 1000, MaxDelayMs: 30000}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 30 * time.Second}, // clamp: 32s > max
		{10, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := backoffDelay(tt.attempt, policy); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	fixed := &domain.RetryPolicy{Backoff: "fixed", InitialDelayMs: 500}
	if got := backoffDelay(4, fixed); got != 500*time.Millisecond {
		t.Errorf("fixed backoff = %v, want 500ms", got)
	}
}

func TestBackoffStaysWithinQueueMaxDelay(t *testing.T) {
	// Политика с предельно допустимой задержкой не должна превышать
	// то, что очередь способна отложить
	policy := &domain.RetryPolicy{Backoff: "exponential", InitialDelayMs: 60000, MaxDelayMs: 600000}
	if got := backoffDelay(20, policy); got > queue.MaxDelay {
		t.Errorf("backoff %v exceeds queue.MaxDelay %v", got, queue.MaxDelay)
	}
}

// Сквозной прогон через MemoryConsumer: ingestion-задача проходит
// оба узла без ручного прокачивания очереди.
func TestCoordinatorEndToEndWithConsumer(t *testing.T) {
	h := newHarness(t, okExtract(), okEmbed(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	consumer := queue.NewMemoryConsumer(h.tasks.MemoryQueue, h.coord.HandleDelivery)
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.Start(ctx)
	}()

	if err := h.tasks.Enqueue(ctx, h.firstTask(), time.Time{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		state := h.currentState(t)
		if state.IsTerminal() {
			if state.Status != domain.RunStatusSucceeded {
				t.Fatalf("status = %s, want SUCCEEDED", state.Status)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("run did not finish, status=%s cursor=%d", state.Status, state.Cursor)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done

	if h.docs.Len() != 1 {
		t.Errorf("stored documents = %d, want 1", h.docs.Len())
	}
}

package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/orgsync/pkg/domain/outcome"
	"github.com/felixgeelhaar/orgsync/pkg/domain/planning"
	"github.com/felixgeelhaar/orgsync/pkg/domain/remote"
)

// DefaultConcurrency bounds in-flight remote calls when no value is configured.
const DefaultConcurrency = 4

// ExecutorOptions tunes plan execution.
type ExecutorOptions struct {
	Concurrency  int
	MaxAttempts  int
	InitialDelay time.Duration
	Logger       *slog.Logger
}

// Executor applies a plan's actions against a remote client, honouring
// dependency order and a bounded worker count.
type Executor struct {
	client      remote.Client
	concurrency int
	retryConfig retry.Config
	logger      *slog.Logger
}

func NewExecutor(client remote.Client, opts ExecutorOptions) *Executor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Executor{
		client:      client,
		concurrency: opts.Concurrency,
		retryConfig: retry.Config{
			MaxAttempts:   opts.MaxAttempts,
			InitialDelay:  opts.InitialDelay,
			BackoffPolicy: retry.BackoffExponential,
		},
		logger: opts.Logger,
	}
}

// completion is what a worker reports back to the coordinator.
type completion struct {
	index    int
	status   outcome.Status
	detail   string
	attempts int
}

// tracker is the coordinator's view of the run. Workers never touch it.
type tracker struct {
	mu         sync.Mutex
	plan       *planning.Plan
	index      map[string]int
	dependents map[string][]string
	remaining  []int
	machines   []*planning.ActionStateMachine
	results    []outcome.ActionResult
	ready      []int
}

func newTracker(plan *planning.Plan) (*tracker, error) {
	t := &tracker{
		plan:       plan,
		index:      make(map[string]int, len(plan.Actions)),
		dependents: plan.Dependents(),
		remaining:  make([]int, len(plan.Actions)),
		machines:   make([]*planning.ActionStateMachine, len(plan.Actions)),
		results:    make([]outcome.ActionResult, len(plan.Actions)),
	}
	for i, a := range plan.Actions {
		fsm, err := planning.NewActionStateMachine(a.ID)
		if err != nil {
			return nil, err
		}
		t.index[a.ID] = i
		t.machines[i] = fsm
		t.remaining[i] = len(a.DependsOn)
		t.results[i] = outcome.ActionResult{Action: a}
	}
	for i := range plan.Actions {
		if t.remaining[i] == 0 {
			t.markReady(i)
		}
	}
	return t, nil
}

func (t *tracker) markReady(i int) {
	if err := t.machines[i].Transition(planning.EventReady); err == nil {
		t.ready = append(t.ready, i)
	}
}

// next pops the next ready action and moves it to running.
func (t *tracker) next() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.ready) > 0 {
		i := t.ready[0]
		t.ready = t.ready[1:]
		if t.machines[i].Transition(planning.EventDispatch) == nil {
			return i, true
		}
	}
	return 0, false
}

func (t *tracker) hasReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ready) > 0
}

// complete records a worker's result and releases or blocks dependents.
// It returns the IDs of actions blocked as a consequence.
func (t *tracker) complete(c completion) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	event := planning.EventFail
	switch c.status {
	case outcome.StatusSucceeded:
		event = planning.EventSucceed
	case outcome.StatusSkippedAlreadySatisfied:
		event = planning.EventSkip
	}
	_ = t.machines[c.index].Transition(event)

	r := &t.results[c.index]
	r.Status = c.status
	r.Detail = c.detail
	r.Attempts = c.attempts

	id := t.plan.Actions[c.index].ID
	if !t.machines[c.index].Unblocks() {
		return t.block(id)
	}
	for _, dep := range t.dependents[id] {
		j := t.index[dep]
		t.remaining[j]--
		if t.remaining[j] == 0 && t.machines[j].Current() == planning.StatePending {
			t.markReady(j)
		}
	}
	return nil
}

// block fails every pending transitive dependent of the failed action.
func (t *tracker) block(failed string) []string {
	var blocked []string
	queue := []string{failed}
	for len(queue) > 0 {
		cause := queue[0]
		queue = queue[1:]
		for _, dep := range t.dependents[cause] {
			j := t.index[dep]
			if t.machines[j].Transition(planning.EventBlock) != nil {
				continue
			}
			t.results[j].Status = outcome.StatusFailed
			t.results[j].Detail = fmt.Sprintf("%s %s", outcome.DetailBlockedPrefix, cause)
			blocked = append(blocked, dep)
			queue = append(queue, dep)
		}
	}
	return blocked
}

// cancelRemaining fails every action that never reached a worker.
func (t *tracker) cancelRemaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i, m := range t.machines {
		if m.IsTerminal() {
			continue
		}
		if m.Transition(planning.EventCancel) != nil {
			continue
		}
		t.results[i].Status = outcome.StatusFailed
		t.results[i].Detail = outcome.DetailCancelled
		n++
	}
	t.ready = nil
	return n
}

// Execute runs every action of the plan and returns one result per action,
// in plan order. It only errors for a plan whose dependency graph is invalid.
func (e *Executor) Execute(ctx context.Context, plan *planning.Plan) ([]outcome.ActionResult, error) {
	if err := plan.ValidateDAG(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	t, err := newTracker(plan)
	if err != nil {
		return nil, err
	}
	if len(plan.Actions) == 0 {
		return t.results, nil
	}

	work := make(chan int)
	done := make(chan completion)
	var wg sync.WaitGroup
	for w := 0; w < e.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				done <- e.run(ctx, plan.Org, plan.Actions[i], i)
			}
		}()
	}

	cancelled := ctx.Done()
	stopped := false
	inFlight := 0
	for {
		if !stopped && ctx.Err() != nil {
			stopped = true
			cancelled = nil
		}
		for !stopped && inFlight < e.concurrency {
			i, ok := t.next()
			if !ok {
				break
			}
			e.logger.Debug("dispatching action", "action_id", plan.Actions[i].ID)
			inFlight++
			work <- i
		}
		if inFlight == 0 && (stopped || !t.hasReady()) {
			break
		}

		select {
		case c := <-done:
			inFlight--
			for _, id := range t.complete(c) {
				e.logger.Warn("action blocked", "action_id", id, "dependency", plan.Actions[c.index].ID)
			}
		case <-cancelled:
			stopped = true
			cancelled = nil
			e.logger.Warn("execution cancelled, waiting for in-flight actions", "in_flight", inFlight)
		}
	}
	close(work)
	wg.Wait()

	if n := t.cancelRemaining(); n > 0 {
		e.logger.Warn("actions cancelled before dispatch", "count", n)
	}
	return t.results, nil
}

// attemptResult carries the terminal outcome of a call through the retry
// loop. Only transient failures surface as retry errors.
type attemptResult struct {
	status outcome.Status
	detail string
}

func (e *Executor) run(ctx context.Context, org string, action planning.Action, index int) completion {
	// In-flight calls complete even if the run is cancelled.
	callCtx := context.WithoutCancel(ctx)
	attempts := 0
	var lastErr error

	res, err := retry.New[attemptResult](e.retryConfig).Do(callCtx, func(callCtx context.Context) (attemptResult, error) {
		if attempts > 0 && ctx.Err() != nil {
			return attemptResult{
				status: outcome.StatusFailed,
				detail: fmt.Sprintf("cancelled after %d attempt(s): %v", attempts, lastErr),
			}, nil
		}
		attempts++
		err := e.apply(callCtx, org, action)
		switch {
		case err == nil:
			return attemptResult{status: outcome.StatusSucceeded}, nil
		case errors.Is(err, remote.ErrAlreadyExists):
			return attemptResult{status: outcome.StatusSkippedAlreadySatisfied, detail: err.Error()}, nil
		case remote.IsTransient(err):
			lastErr = err
			e.logger.Warn("transient failure, retrying",
				"action_id", action.ID,
				"attempt", attempts,
				"error", err)
			return attemptResult{}, err
		default:
			return attemptResult{status: outcome.StatusFailed, detail: err.Error()}, nil
		}
	})
	if err != nil {
		res = attemptResult{status: outcome.StatusFailed, detail: err.Error()}
	}

	level := slog.LevelInfo
	if res.status == outcome.StatusFailed {
		level = slog.LevelError
	}
	e.logger.Log(ctx, level, "action finished",
		"action_id", action.ID,
		"status", string(res.status),
		"attempts", attempts,
		"detail", res.detail)

	return completion{index: index, status: res.status, detail: res.detail, attempts: attempts}
}

func (e *Executor) apply(ctx context.Context, org string, a planning.Action) error {
	switch a.Kind {
	case planning.KindCreateRepo:
		if a.RepoSpec == nil {
			return remote.Permanent("create_repo", errors.New("action carries no repository spec"))
		}
		return e.client.CreateRepo(ctx, org, *a.RepoSpec)
	case planning.KindCreateBranch:
		return e.client.CreateBranch(ctx, org, a.Repo, a.Branch, a.FromBranch)
	case planning.KindSetDefaultBranch:
		return e.client.SetDefaultBranch(ctx, org, a.Repo, a.Branch)
	case planning.KindApplyProtection:
		if a.Protection == nil {
			return remote.Permanent("apply_protection", errors.New("action carries no protection policy"))
		}
		return e.client.ApplyBranchProtection(ctx, org, a.Repo, a.Branch, *a.Protection)
	case planning.KindRemoveProtection:
		return e.client.RemoveBranchProtection(ctx, org, a.Repo, a.Branch)
	case planning.KindCreateProject:
		return e.client.CreateProject(ctx, org, a.Project)
	default:
		return remote.Permanent(string(a.Kind), fmt.Errorf("unsupported action kind %q", a.Kind))
	}
}

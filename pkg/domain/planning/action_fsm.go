package planning

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Action lifecycle states. These must remain untyped string constants for
// statekit.StateID compatibility.
const (
	StatePending   = "pending"
	StateReady     = "ready"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateSkipped   = "skipped"
	StateFailed    = "failed"
	StateBlocked   = "blocked"
	StateCancelled = "cancelled"
)

// Action lifecycle events.
const (
	EventReady    = "ready"
	EventDispatch = "dispatch"
	EventSucceed  = "succeed"
	EventSkip     = "skip"
	EventFail     = "fail"
	EventBlock    = "block"
	EventCancel   = "cancel"
)

// ActionContext carries state data.
type ActionContext struct {
	ActionID string
}

// ActionStateMachine tracks one action from planning to a terminal state.
// An action can only be dispatched from the ready state.
type ActionStateMachine struct {
	interpreter *statekit.Interpreter[ActionContext]
}

func NewActionStateMachine(actionID string) (*ActionStateMachine, error) {
	builder := statekit.NewMachine[ActionContext]("action-machine").
		WithInitial(StatePending).
		WithContext(ActionContext{ActionID: actionID})

	builder.State(StatePending).
		On(EventReady).Target(StateReady).
		On(EventBlock).Target(StateBlocked).
		On(EventCancel).Target(StateCancelled).
		Done()

	builder.State(StateReady).
		On(EventDispatch).Target(StateRunning).
		On(EventCancel).Target(StateCancelled).
		Done()

	builder.State(StateRunning).
		On(EventSucceed).Target(StateSucceeded).
		On(EventSkip).Target(StateSkipped).
		On(EventFail).Target(StateFailed).
		Done()

	builder.State(StateSucceeded).Done()
	builder.State(StateSkipped).Done()
	builder.State(StateFailed).Done()
	builder.State(StateBlocked).Done()
	builder.State(StateCancelled).Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build action state machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()

	return &ActionStateMachine{interpreter: interpreter}, nil
}

// Transition attempts to move the action to a new state.
func (sm *ActionStateMachine) Transition(event string) error {
	before := sm.Current()
	sm.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	if sm.Current() != before {
		return nil
	}
	return fmt.Errorf("event %q is not allowed while the action is %s", event, before)
}

func (sm *ActionStateMachine) Current() string {
	return string(sm.interpreter.State().Value)
}

// IsTerminal reports whether the action reached a final state.
func (sm *ActionStateMachine) IsTerminal() bool {
	switch sm.Current() {
	case StateSucceeded, StateSkipped, StateFailed, StateBlocked, StateCancelled:
		return true
	default:
		return false
	}
}

// Unblocks reports whether dependents of this action may proceed.
func (sm *ActionStateMachine) Unblocks() bool {
	s := sm.Current()
	return s == StateSucceeded || s == StateSkipped
}

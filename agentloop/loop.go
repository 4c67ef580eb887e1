package agentloop

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/corralhq/corral/modelservice"
)

// State represents the current lifecycle state of a run.
type State string

const (
	StateIdle             State = "idle"
	StateRunning          State = "running"
	StateDispatchingTools State = "dispatching_tools"
	StateCompleted        State = "completed"
	StateAborted          State = "aborted"
)

// StopReason describes why a run terminated.
type StopReason string

const (
	// ReasonCompleted means the model produced a final text answer.
	ReasonCompleted StopReason = "completed"
	// ReasonServiceError means a model service call failed and the run
	// was aborted.
	ReasonServiceError StopReason = "service_error"
	// ReasonBudgetExhausted means the iteration budget ran out before
	// the model finished. It is a termination class of its own, not an
	// error.
	ReasonBudgetExhausted StopReason = "budget_exhausted"
)

// ModelService is the model-facing dependency of the loop. The concrete
// implementation lives in the modelservice package; tests substitute
// scripted fakes.
type ModelService interface {
	Generate(ctx context.Context, req modelservice.Request) (*modelservice.Response, error)
}

// LoopConfig holds configuration for a run.
type LoopConfig struct {
	// Model names the model to request. Empty uses the service default.
	Model string
	// SystemInstruction is sent with every request.
	SystemInstruction string
	// MaxIterations bounds how many service round trips a run may make.
	// Every round trip counts, including ones where the model returns
	// nothing usable.
	MaxIterations int
	// EventBufferSize sizes the emitter channel. 0 uses the default.
	EventBufferSize int
}

// DefaultMaxIterations bounds a run when no explicit budget is set.
const DefaultMaxIterations = 20

// DefaultLoopConfig returns the default run configuration.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{MaxIterations: DefaultMaxIterations}
}

// Result is the outcome of a finished run.
type Result struct {
	// FinalText is the model's answer. Empty unless Reason is
	// ReasonCompleted.
	FinalText string
	// Iterations is how many service round trips the run made.
	Iterations int
	// Reason says how the run ended.
	Reason StopReason
	// Usage is the token usage accumulated across all round trips.
	Usage modelservice.Usage
}

// Loop drives the conversation between the model service and the tool
// registry: send the transcript, append what comes back, dispatch any
// tool calls, feed the results in, repeat until the model answers in
// plain text or the budget runs out.
type Loop struct {
	id         string
	service    ModelService
	registry   *ToolRegistry
	transcript *Transcript
	emitter    *EventEmitter
	config     LoopConfig
	state      State
	usage      modelservice.Usage
	mu         sync.Mutex
}

// NewLoop creates a loop over the given service and tool registry.
func NewLoop(service ModelService, registry *ToolRegistry, config *LoopConfig) *Loop {
	cfg := DefaultLoopConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}

	id := uuid.New().String()
	return &Loop{
		id:         id,
		service:    service,
		registry:   registry,
		transcript: NewTranscript(),
		emitter:    NewEventEmitter(id, cfg.EventBufferSize),
		config:     cfg,
		state:      StateIdle,
	}
}

// ID returns the run identifier.
func (l *Loop) ID() string { return l.id }

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Events returns the event channel for this run.
func (l *Loop) Events() <-chan RunEvent {
	return l.emitter.Events()
}

// Transcript returns a snapshot of the conversation so far.
func (l *Loop) Transcript() []modelservice.Turn {
	return l.transcript.Turns()
}

// Usage returns the token usage accumulated so far.
func (l *Loop) Usage() modelservice.Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usage
}

// Run executes the loop for a single user prompt. It returns a non-nil
// Result whenever the run terminated on its own terms, including budget
// exhaustion; the error is non-nil only for a service failure or a
// reused loop.
func (l *Loop) Run(ctx context.Context, prompt string) (*Result, error) {
	l.mu.Lock()
	if l.state != StateIdle {
		l.mu.Unlock()
		return nil, fmt.Errorf("loop %s already ran (state %s)", l.id, l.state)
	}
	l.state = StateRunning
	l.mu.Unlock()

	defer l.emitter.Close()
	l.emitter.Emit(EventRunStart, map[string]any{"prompt": prompt})

	l.transcript.Append(modelservice.UserTurn(prompt))

	for iteration := 1; iteration <= l.config.MaxIterations; iteration++ {
		l.setState(StateRunning)
		l.emitter.Emit(EventIterationStart, map[string]any{"iteration": iteration})

		resp, err := l.service.Generate(ctx, modelservice.Request{
			Model:             l.config.Model,
			Turns:             l.transcript.Turns(),
			Tools:             l.registry.Schemas(),
			SystemInstruction: l.config.SystemInstruction,
		})
		if err != nil {
			l.setState(StateAborted)
			l.emitter.Emit(EventError, map[string]any{"error": err.Error()})
			l.emitter.Emit(EventRunEnd, map[string]any{"reason": string(ReasonServiceError)})
			return &Result{
				Iterations: iteration,
				Reason:     ReasonServiceError,
				Usage:      l.Usage(),
			}, fmt.Errorf("model service: %w", err)
		}

		l.mu.Lock()
		l.usage = l.usage.Add(resp.Usage)
		l.mu.Unlock()

		l.transcript.Append(resp.Turns...)
		l.emitter.Emit(EventModelResponse, map[string]any{
			"iteration":  iteration,
			"tool_calls": len(resp.ToolCalls()),
		})

		// Finished text ends the run even when the same response also
		// asks for tool calls.
		if text := resp.Text(); text != "" {
			l.setState(StateCompleted)
			l.emitter.Emit(EventRunEnd, map[string]any{"reason": string(ReasonCompleted)})
			return &Result{
				FinalText:  text,
				Iterations: iteration,
				Reason:     ReasonCompleted,
				Usage:      l.Usage(),
			}, nil
		}

		calls := resp.ToolCalls()
		if len(calls) == 0 {
			// An empty response still spends an iteration.
			continue
		}

		// Dispatch sequentially in call order, appending each result
		// before starting the next, so later tools observe earlier
		// effects.
		l.setState(StateDispatchingTools)
		for _, call := range calls {
			l.emitter.Emit(EventToolCallStart, map[string]any{
				"tool":    call.Name,
				"call_id": call.ID,
			})
			result := l.registry.Dispatch(ctx, call)
			l.emitter.Emit(EventToolCallEnd, map[string]any{
				"tool":     result.Name,
				"call_id":  result.CallID,
				"is_error": result.IsError(),
			})
			l.transcript.Append(modelservice.ToolTurn(modelservice.ToolResultData{
				ToolCallID: result.CallID,
				Name:       result.Name,
				Content:    result.Content(),
				IsError:    result.IsError(),
			}))
		}
	}

	l.setState(StateAborted)
	l.emitter.Emit(EventBudgetExceeded, map[string]any{"max_iterations": l.config.MaxIterations})
	l.emitter.Emit(EventRunEnd, map[string]any{"reason": string(ReasonBudgetExhausted)})
	return &Result{
		Iterations: l.config.MaxIterations,
		Reason:     ReasonBudgetExhausted,
		Usage:      l.Usage(),
	}, nil
}

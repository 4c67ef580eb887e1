package agentloop

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corralhq/corral/modelservice"
)

// scriptedService replays a fixed sequence of responses, one per call.
type scriptedService struct {
	steps    []scriptedStep
	requests []modelservice.Request
}

type scriptedStep struct {
	response *modelservice.Response
	err      error
}

func (s *scriptedService) Generate(ctx context.Context, req modelservice.Request) (*modelservice.Response, error) {
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		return &modelservice.Response{}, nil
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	if step.err != nil {
		return nil, step.err
	}
	return step.response, nil
}

func textResponse(text string) scriptedStep {
	return scriptedStep{response: &modelservice.Response{
		Turns: []modelservice.Turn{modelservice.ModelTurn(modelservice.TextPart(text))},
		Usage: modelservice.Usage{PromptTokens: 10, ResponseTokens: 5},
	}}
}

func toolCallResponse(calls ...modelservice.ToolCallData) scriptedStep {
	parts := make([]modelservice.Part, 0, len(calls))
	for _, call := range calls {
		parts = append(parts, modelservice.ToolCallPart(call.ID, call.Name, call.Arguments))
	}
	return scriptedStep{response: &modelservice.Response{
		Turns: []modelservice.Turn{modelservice.ModelTurn(parts...)},
		Usage: modelservice.Usage{PromptTokens: 10, ResponseTokens: 5},
	}}
}

func echoRegistry() *ToolRegistry {
	registry := NewToolRegistry()
	registry.Register(RegisteredTool{
		Schema: modelservice.ToolSchema{Name: "echo"},
		Executor: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			return "echo: " + string(arguments), nil
		},
	})
	return registry
}

func TestLoopCompletesOnText(t *testing.T) {
	service := &scriptedService{steps: []scriptedStep{textResponse("all done")}}
	loop := NewLoop(service, echoRegistry(), nil)

	result, err := loop.Run(context.Background(), "do the thing")
	require.NoError(t, err)

	assert.Equal(t, "all done", result.FinalText)
	assert.Equal(t, ReasonCompleted, result.Reason)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, StateCompleted, loop.State())
	assert.Equal(t, modelservice.Usage{PromptTokens: 10, ResponseTokens: 5}, result.Usage)
}

func TestLoopRequestCarriesConfiguration(t *testing.T) {
	service := &scriptedService{steps: []scriptedStep{textResponse("ok")}}
	loop := NewLoop(service, echoRegistry(), &LoopConfig{
		Model:             "gemini-2.5-pro",
		SystemInstruction: "be brief",
	})

	_, err := loop.Run(context.Background(), "hello")
	require.NoError(t, err)

	require.Len(t, service.requests, 1)
	req := service.requests[0]
	assert.Equal(t, "gemini-2.5-pro", req.Model)
	assert.Equal(t, "be brief", req.SystemInstruction)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "echo", req.Tools[0].Name)
	require.Len(t, req.Turns, 1)
	assert.Equal(t, "hello", req.Turns[0].Text())
}

func TestLoopDispatchesToolCallsInOrder(t *testing.T) {
	service := &scriptedService{steps: []scriptedStep{
		toolCallResponse(
			modelservice.ToolCallData{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"n":1}`)},
			modelservice.ToolCallData{ID: "c2", Name: "echo", Arguments: json.RawMessage(`{"n":2}`)},
		),
		textResponse("finished"),
	}}
	loop := NewLoop(service, echoRegistry(), nil)

	result, err := loop.Run(context.Background(), "run tools")
	require.NoError(t, err)
	assert.Equal(t, "finished", result.FinalText)
	assert.Equal(t, 2, result.Iterations)

	// The second request must already contain both tool results, in
	// call order, each as its own turn after the model turn.
	require.Len(t, service.requests, 2)
	turns := service.requests[1].Turns
	require.Len(t, turns, 4) // user, model, tool result, tool result
	assert.Equal(t, modelservice.RoleUser, turns[0].Role)
	assert.Equal(t, modelservice.RoleModel, turns[1].Role)
	for i, wantID := range []string{"c1", "c2"} {
		turn := turns[2+i]
		require.Equal(t, modelservice.RoleTool, turn.Role)
		require.Len(t, turn.Parts, 1)
		tr := turn.Parts[0].ToolResult
		require.NotNil(t, tr)
		assert.Equal(t, wantID, tr.ToolCallID)
		assert.False(t, tr.IsError)
		assert.Contains(t, tr.Content, "echo:")
	}

	// Cumulative usage across both round trips.
	assert.Equal(t, modelservice.Usage{PromptTokens: 20, ResponseTokens: 10}, result.Usage)
}

func TestLoopTextWinsOverToolCalls(t *testing.T) {
	// One response carrying both an answer and a tool call completes
	// the run; the call is never dispatched.
	step := scriptedStep{response: &modelservice.Response{
		Turns: []modelservice.Turn{modelservice.ModelTurn(
			modelservice.TextPart("here is the answer"),
			modelservice.ToolCallPart("c1", "echo", nil),
		)},
	}}
	service := &scriptedService{steps: []scriptedStep{step}}

	dispatched := false
	registry := NewToolRegistry()
	registry.Register(RegisteredTool{
		Schema: modelservice.ToolSchema{Name: "echo"},
		Executor: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			dispatched = true
			return "", nil
		},
	})
	loop := NewLoop(service, registry, nil)

	result, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "here is the answer", result.FinalText)
	assert.Equal(t, 1, result.Iterations)
	assert.False(t, dispatched)
}

func TestLoopFeedsUnknownToolErrorBack(t *testing.T) {
	service := &scriptedService{steps: []scriptedStep{
		toolCallResponse(modelservice.ToolCallData{ID: "c1", Name: "no_such_tool"}),
		textResponse("recovered"),
	}}
	loop := NewLoop(service, echoRegistry(), nil)

	result, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.FinalText)

	turns := service.requests[1].Turns
	tr := turns[len(turns)-1].Parts[0].ToolResult
	require.NotNil(t, tr)
	assert.True(t, tr.IsError)
	assert.Contains(t, tr.Content, "unknown tool")
}

func TestLoopBudgetExhaustion(t *testing.T) {
	// Every response asks for another tool call; the model never
	// finishes.
	steps := make([]scriptedStep, 0, 5)
	for i := 0; i < 5; i++ {
		steps = append(steps, toolCallResponse(modelservice.ToolCallData{ID: "c", Name: "echo"}))
	}
	service := &scriptedService{steps: steps}
	loop := NewLoop(service, echoRegistry(), &LoopConfig{MaxIterations: 3})

	result, err := loop.Run(context.Background(), "never ends")
	require.NoError(t, err, "budget exhaustion is not an error")

	assert.Equal(t, ReasonBudgetExhausted, result.Reason)
	assert.Equal(t, 3, result.Iterations)
	assert.Empty(t, result.FinalText)
	assert.Equal(t, StateAborted, loop.State())
	assert.Len(t, service.requests, 3)
}

func TestLoopEmptyResponseSpendsIteration(t *testing.T) {
	service := &scriptedService{steps: []scriptedStep{
		{response: &modelservice.Response{}},
		textResponse("eventually"),
	}}
	loop := NewLoop(service, echoRegistry(), nil)

	result, err := loop.Run(context.Background(), "hm")
	require.NoError(t, err)
	assert.Equal(t, "eventually", result.FinalText)
	assert.Equal(t, 2, result.Iterations)
}

func TestLoopServiceErrorAborts(t *testing.T) {
	service := &scriptedService{steps: []scriptedStep{
		toolCallResponse(modelservice.ToolCallData{ID: "c1", Name: "echo"}),
		{err: &modelservice.ServerError{ProviderError: modelservice.ProviderError{
			ServiceError: modelservice.ServiceError{Message: "backend down"},
		}}},
	}}
	loop := NewLoop(service, echoRegistry(), nil)

	result, err := loop.Run(context.Background(), "go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model service")

	require.NotNil(t, result)
	assert.Equal(t, ReasonServiceError, result.Reason)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, StateAborted, loop.State())
}

func TestLoopCannotBeReused(t *testing.T) {
	service := &scriptedService{steps: []scriptedStep{textResponse("once")}}
	loop := NewLoop(service, echoRegistry(), nil)

	_, err := loop.Run(context.Background(), "first")
	require.NoError(t, err)

	_, err = loop.Run(context.Background(), "second")
	require.Error(t, err)
}

func TestLoopEmitsEvents(t *testing.T) {
	service := &scriptedService{steps: []scriptedStep{
		toolCallResponse(modelservice.ToolCallData{ID: "c1", Name: "echo"}),
		textResponse("done"),
	}}
	loop := NewLoop(service, echoRegistry(), nil)

	_, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)

	seen := map[EventKind]int{}
	for event := range loop.Events() {
		seen[event.Kind]++
		assert.Equal(t, loop.ID(), event.RunID)
	}
	assert.Equal(t, 1, seen[EventRunStart])
	assert.Equal(t, 1, seen[EventRunEnd])
	assert.Equal(t, 2, seen[EventIterationStart])
	assert.Equal(t, 1, seen[EventToolCallStart])
	assert.Equal(t, 1, seen[EventToolCallEnd])
}

func TestLoopTranscriptIsAppendOnlyRecord(t *testing.T) {
	service := &scriptedService{steps: []scriptedStep{
		toolCallResponse(modelservice.ToolCallData{ID: "c1", Name: "echo"}),
		textResponse("done"),
	}}
	loop := NewLoop(service, echoRegistry(), nil)

	_, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)

	// user, model (tool call), tool result, model (text)
	transcript := loop.Transcript()
	require.Len(t, transcript, 4)
	assert.Equal(t, modelservice.RoleUser, transcript[0].Role)
	assert.Equal(t, modelservice.RoleModel, transcript[1].Role)
	assert.Equal(t, modelservice.RoleTool, transcript[2].Role)
	assert.Equal(t, modelservice.RoleModel, transcript[3].Role)

	// Mutating the snapshot must not corrupt the record.
	transcript[0] = modelservice.Turn{}
	assert.Equal(t, modelservice.RoleUser, loop.Transcript()[0].Role)
}

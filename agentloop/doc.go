// Package agentloop implements a bounded, tool-using agent loop over a
// sandboxed working directory.
//
// A run is a turn-based conversation between a model service and four
// local tools; the loop sends the transcript, executes any tool calls
// the model makes, feeds the results back, and repeats until the model
// answers in plain text or the iteration budget runs out.
//
// # Architecture
//
// The package is organized around these core concepts:
//
//   - Loop: The orchestrator holding the transcript, driving service
//     round trips, dispatching tool calls, and enforcing the budget.
//   - Sandbox: Path containment and the four tool operations (list,
//     read, write, run script), all confined to one root directory.
//   - ToolRegistry: Registration and dispatch of tools; every dispatch
//     returns a well-formed result, never a panic.
//   - Transcript: The append-only conversation record.
//   - EventEmitter: Typed event stream for host application integration.
//
// Tool failures are recoverable: they become error-carrying tool results
// the model can react to. Only a model service failure aborts a run.
//
// # Quick Start
//
//	sandbox, err := agentloop.NewSandbox("/path/to/project")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	registry := agentloop.NewToolRegistry()
//	agentloop.RegisterCoreTools(registry, sandbox)
//
//	loop := agentloop.NewLoop(service, registry, nil)
//	result, err := loop.Run(ctx, "Create a hello.py file")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.FinalText)
package agentloop

// Package modelservice defines the request/response contract between the
// agent loop and a text-generation service, and ships a Gemini adapter built
// on google.golang.org/genai.
//
// The contract is deliberately small: a Request carries the ordered
// conversation turns, the fixed tool schema set, and a system instruction;
// a Response carries zero or more result turns plus usage counters. A turn is
// a tagged union of text, tool-call, and tool-result parts, so the same type
// serves user input, model output, and tool feedback.
//
// Providers plug in behind the ProviderAdapter interface and are routed by a
// Client, which also applies a bounded retry policy to transient failures.
// Errors are classified into typed values (see errors.go); only rate limits,
// server errors, and timeouts are considered retryable.
package modelservice

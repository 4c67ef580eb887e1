package modelservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GeminiAdapter wraps a genai.Client and implements ProviderAdapter. It
// translates between the service contract types and the Gemini API's
// content/part model.
type GeminiAdapter struct {
	client *genai.Client
	model  string
}

// GeminiOption configures a GeminiAdapter.
type GeminiOption func(*geminiConfig)

type geminiConfig struct {
	apiKey  string
	model   string
	baseURL string
}

// WithAPIKey sets the API key for the adapter.
func WithAPIKey(key string) GeminiOption {
	return func(c *geminiConfig) {
		c.apiKey = key
	}
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GeminiOption {
	return func(c *geminiConfig) {
		c.model = model
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) GeminiOption {
	return func(c *geminiConfig) {
		c.baseURL = url
	}
}

// NewGeminiAdapter creates an adapter for the Gemini API. If no API key is
// given, the genai client falls back to its environment lookup.
func NewGeminiAdapter(ctx context.Context, opts ...GeminiOption) (*GeminiAdapter, error) {
	cfg := &geminiConfig{model: DefaultModel}
	for _, opt := range opts {
		opt(cfg)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, &ConfigurationError{ServiceError: ServiceError{
			Message: "create genai client", Cause: err,
		}}
	}

	return &GeminiAdapter{client: client, model: cfg.model}, nil
}

// Name returns the provider identifier.
func (a *GeminiAdapter) Name() string { return "gemini" }

// Generate sends the conversation to the Gemini API and converts the result
// back into contract types.
func (a *GeminiAdapter) Generate(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}

	contents, err := contentsFromTurns(req.Turns)
	if err != nil {
		return nil, &ServiceError{Message: "encode conversation", Cause: err}
	}

	config := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: declarationsFromSchemas(req.Tools)}}
	}

	result, err := a.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	resp := &Response{}
	for _, cand := range result.Candidates {
		if cand.Content == nil {
			continue
		}
		turn, err := turnFromContent(cand.Content)
		if err != nil {
			return nil, &ServiceError{Message: "decode candidate", Cause: err}
		}
		resp.Turns = append(resp.Turns, turn)
	}
	if result.UsageMetadata != nil {
		resp.Usage = Usage{
			PromptTokens:   int(result.UsageMetadata.PromptTokenCount),
			ResponseTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}
	return resp, nil
}

// contentsFromTurns converts contract turns into genai contents. Tool result
// turns are sent under the user role as function responses, which is how the
// Gemini API expects tool feedback.
func contentsFromTurns(turns []Turn) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		var role genai.Role
		switch turn.Role {
		case RoleUser, RoleTool:
			role = genai.RoleUser
		case RoleModel:
			role = genai.RoleModel
		default:
			return nil, fmt.Errorf("unsupported turn role %q", turn.Role)
		}

		parts := make([]*genai.Part, 0, len(turn.Parts))
		for _, part := range turn.Parts {
			switch part.Kind {
			case PartText:
				parts = append(parts, genai.NewPartFromText(part.Text))
			case PartToolCall:
				var args map[string]any
				if len(part.ToolCall.Arguments) > 0 {
					if err := json.Unmarshal(part.ToolCall.Arguments, &args); err != nil {
						return nil, fmt.Errorf("tool call %s arguments: %w", part.ToolCall.Name, err)
					}
				}
				parts = append(parts, genai.NewPartFromFunctionCall(part.ToolCall.Name, args))
			case PartToolResult:
				payload := map[string]any{"output": part.ToolResult.Content}
				if part.ToolResult.IsError {
					payload = map[string]any{"error": part.ToolResult.Content}
				}
				parts = append(parts, genai.NewPartFromFunctionResponse(part.ToolResult.Name, payload))
			default:
				return nil, fmt.Errorf("unsupported part kind %q", part.Kind)
			}
		}
		contents = append(contents, &genai.Content{Role: string(role), Parts: parts})
	}
	return contents, nil
}

// turnFromContent converts a genai candidate content into a model turn.
func turnFromContent(content *genai.Content) (Turn, error) {
	turn := Turn{Role: RoleModel}
	for _, part := range content.Parts {
		switch {
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return Turn{}, fmt.Errorf("tool call %s arguments: %w", part.FunctionCall.Name, err)
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = uuid.New().String()
			}
			turn.Parts = append(turn.Parts, ToolCallPart(id, part.FunctionCall.Name, args))
		case part.Text != "":
			turn.Parts = append(turn.Parts, TextPart(part.Text))
		}
	}
	return turn, nil
}

// declarationsFromSchemas converts tool schemas into genai function
// declarations.
func declarationsFromSchemas(schemas []ToolSchema) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(schemas))
	for _, schema := range schemas {
		properties := make(map[string]*genai.Schema, len(schema.Parameters))
		for _, param := range schema.Parameters {
			switch param.Type {
			case ParamStringArray:
				properties[param.Name] = &genai.Schema{
					Type:        genai.TypeArray,
					Items:       &genai.Schema{Type: genai.TypeString},
					Description: param.Description,
				}
			default:
				properties[param.Name] = &genai.Schema{
					Type:        genai.TypeString,
					Description: param.Description,
				}
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        schema.Name,
			Description: schema.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
			},
		})
	}
	return decls
}

// classifyGeminiError maps genai client errors onto the service error
// taxonomy so the retry policy can tell transient failures apart.
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return ErrorFromStatusCode(apiErr.Code, apiErr.Message, "gemini")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RequestTimeoutError{ServiceError: ServiceError{Message: "gemini request timed out", Cause: err}}
	}
	return &NetworkError{ServiceError: ServiceError{Message: "gemini request failed", Cause: err}}
}

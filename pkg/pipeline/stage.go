package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mendsys/mend/pkg/errors"
	"github.com/mendsys/mend/pkg/llm"
	"github.com/mendsys/mend/pkg/mcp"
	"github.com/mendsys/mend/pkg/resilience"
)

// maxToolTurns bounds the tool-call loop inside a single stage run.
const maxToolTurns = 8

// defaultCallTimeout bounds a single provider call.
const defaultCallTimeout = 60 * time.Second

// Collaborator is one model-backed stage of the incident pipeline. It
// holds the stage instruction, the provider, and the tools the model may
// call while producing its answer.
type Collaborator struct {
	name        string
	instruction string
	provider    llm.Provider
	model       string
	tools       *mcp.Registry
	retry       resilience.RetryConfig
	timeout     resilience.TimeoutConfig
	breaker     *resilience.CircuitBreaker
	logger      *slog.Logger
}

// CollaboratorOption configures a Collaborator.
type CollaboratorOption func(*Collaborator) error

// NewCollaborator creates a named stage backed by the given provider.
func NewCollaborator(name string, provider llm.Provider, opts ...CollaboratorOption) (*Collaborator, error) {
	if name == "" {
		return nil, errors.New(errors.CodeInvalidInput, "collaborator name is required", nil)
	}
	if provider == nil {
		return nil, errors.New(errors.CodeInvalidInput, "collaborator provider is required", nil)
	}
	c := &Collaborator{
		name:     name,
		provider: provider,
		retry:    resilience.DefaultRetryConfig(),
		timeout:  resilience.TimeoutConfig{Duration: defaultCallTimeout},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: name})
	}
	return c, nil
}

// WithInstruction sets the stage's system instruction.
func WithInstruction(instruction string) CollaboratorOption {
	return func(c *Collaborator) error {
		c.instruction = instruction
		return nil
	}
}

// WithModel sets the model name passed to the provider.
func WithModel(model string) CollaboratorOption {
	return func(c *Collaborator) error {
		c.model = model
		return nil
	}
}

// WithTools gives the stage access to MCP tools.
func WithTools(tools *mcp.Registry) CollaboratorOption {
	return func(c *Collaborator) error {
		c.tools = tools
		return nil
	}
}

// WithRetry overrides the retry policy for provider calls.
func WithRetry(retry resilience.RetryConfig) CollaboratorOption {
	return func(c *Collaborator) error {
		c.retry = retry
		return nil
	}
}

// WithCallTimeout bounds each provider call. Zero disables the bound.
func WithCallTimeout(d time.Duration) CollaboratorOption {
	return func(c *Collaborator) error {
		c.timeout = resilience.TimeoutConfig{Duration: d}
		return nil
	}
}

// WithBreaker sets the circuit breaker guarding provider calls. Stages
// sharing a provider can share one breaker.
func WithBreaker(breaker *resilience.CircuitBreaker) CollaboratorOption {
	return func(c *Collaborator) error {
		if breaker != nil {
			c.breaker = breaker
		}
		return nil
	}
}

// WithLogger sets the stage logger.
func WithLogger(logger *slog.Logger) CollaboratorOption {
	return func(c *Collaborator) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// Name returns the stage name.
func (c *Collaborator) Name() string { return c.name }

// Run sends the stage input to the model and returns its final text
// answer, dispatching any tool calls the model makes along the way.
func (c *Collaborator) Run(ctx context.Context, input string) (string, error) {
	messages := make([]llm.Message, 0, 4)
	if c.instruction != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: c.instruction})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: input})

	var tools []llm.Tool
	if c.tools != nil {
		tools = c.tools.Definitions()
	}

	for turn := 0; turn < maxToolTurns; turn++ {
		resp, err := c.chat(ctx, llm.ChatRequest{
			Model:    c.model,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			messages = append(messages, c.dispatch(ctx, call))
		}
	}

	return "", errors.New(errors.CodeLLMError, "tool call turns exceeded", nil).
		WithContext("stage", c.name).
		WithContext("max_turns", maxToolTurns)
}

// chat calls the provider through the stage's resilience stack: retry
// with backoff around a circuit breaker around a per-call timeout.
func (c *Collaborator) chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	result, err := c.retry.DoWithResult(ctx, func() (interface{}, error) {
		var resp *llm.ChatResponse
		err := c.breaker.Call(ctx, func() error {
			value, terr := resilience.WithTimeoutResult(ctx, c.timeout, func() (interface{}, error) {
				return c.provider.Chat(ctx, req)
			})
			if terr != nil {
				return terr
			}
			resp = value.(*llm.ChatResponse)
			return nil
		})
		return resp, err
	})
	if err != nil {
		if me := errors.AsMendError(err); me != nil {
			return nil, me
		}
		return nil, errors.New(errors.CodeLLMError, "model call failed", err).
			WithContext("stage", c.name)
	}
	return result.(*llm.ChatResponse), nil
}

// dispatch executes one tool call and wraps the outcome as a tool message.
// Tool failures are reported back to the model rather than aborting the
// stage; the model decides how to proceed without the tool.
func (c *Collaborator) dispatch(ctx context.Context, call llm.ToolCall) llm.Message {
	name := call.Function.Name
	var output any
	var err error
	if c.tools == nil {
		err = fmt.Errorf("no tools available")
	} else {
		output, err = c.tools.Call(ctx, name, call.Function.Arguments)
	}
	if err != nil {
		c.logger.Warn("tool call failed", "stage", c.name, "tool", name, "error", err)
		return llm.Message{
			Role:       llm.RoleTool,
			Content:    fmt.Sprintf("tool %s failed: %v", name, err),
			ToolCallID: call.ID,
		}
	}

	content, ok := output.(string)
	if !ok {
		encoded, merr := json.Marshal(output)
		if merr != nil {
			content = fmt.Sprintf("%v", output)
		} else {
			content = string(encoded)
		}
	}
	return llm.Message{
		Role:       llm.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
	}
}

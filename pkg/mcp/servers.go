package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/mendsys/mend/pkg/errors"
	"github.com/mendsys/mend/pkg/llm"
)

// ServerSpec describes an MCP server and the environment variable that
// gates it. A spec names either a subprocess (Command) or a remote
// endpoint (URL). A spec with an empty gate variable is skipped rather
// than connected with missing credentials.
type ServerSpec struct {
	// Name is the logical identifier for the toolset.
	Name string

	// Gate is the environment variable that must be set for this server
	// to be loaded.
	Gate string

	// Command is the server binary, resolved on PATH at connect time.
	Command string

	// Args are passed to the server subprocess.
	Args []string

	// Env returns the environment passed to the subprocess.
	Env func() map[string]string

	// URL is the remote Streamable HTTP endpoint. When set, Command is
	// ignored and the connection goes over HTTP.
	URL string

	// Headers returns the HTTP headers sent to a remote server,
	// typically carrying the API key.
	Headers func() map[string]string
}

// Enabled reports whether the gating environment variable is set.
func (s ServerSpec) Enabled() bool {
	return os.Getenv(s.Gate) != ""
}

// Remote reports whether the spec connects over HTTP instead of
// launching a subprocess.
func (s ServerSpec) Remote() bool {
	return s.URL != ""
}

// Connect establishes the connection: Streamable HTTP for remote specs,
// a Stdio subprocess otherwise.
func (s ServerSpec) Connect(opts ...ClientOption) (*Client, error) {
	if s.Remote() {
		var headers map[string]string
		if s.Headers != nil {
			headers = s.Headers()
		}
		return NewClientWithStreamableHTTP(s.URL, headers, opts...)
	}
	path, err := exec.LookPath(s.Command)
	if err != nil {
		return nil, fmt.Errorf("%s not found on PATH: %w", s.Command, err)
	}
	var env map[string]string
	if s.Env != nil {
		env = s.Env()
	}
	return NewClientWithStdio(path, env, s.Args, opts...)
}

// DefaultServerSpecs returns the toolsets incident collaborators can use:
// ServiceNow for CMDB and knowledge base queries, ElevenLabs for spoken
// incident summaries, Perplexity for web search, plus remote Datadog,
// Postman, and Braintrust endpoints. Each is gated on its credential
// being present.
func DefaultServerSpecs() []ServerSpec {
	return []ServerSpec{
		{
			Name:    "servicenow",
			Gate:    "SERVICENOW_INSTANCE_URL",
			Command: "mcp-servicenow",
			Env: func() map[string]string {
				authType := os.Getenv("SERVICENOW_AUTH_TYPE")
				if authType == "" {
					authType = "basic"
				}
				return map[string]string{
					"SERVICENOW_INSTANCE_URL": os.Getenv("SERVICENOW_INSTANCE_URL"),
					"SERVICENOW_USERNAME":     os.Getenv("SERVICENOW_USERNAME"),
					"SERVICENOW_PASSWORD":     os.Getenv("SERVICENOW_PASSWORD"),
					"SERVICENOW_AUTH_TYPE":    authType,
				}
			},
		},
		{
			Name:    "elevenlabs",
			Gate:    "ELEVENLABS_API_KEY",
			Command: "uvx",
			Args:    []string{"elevenlabs-mcp"},
			Env: func() map[string]string {
				return map[string]string{
					"ELEVENLABS_API_KEY":         os.Getenv("ELEVENLABS_API_KEY"),
					"ELEVENLABS_MCP_OUTPUT_MODE": "both",
				}
			},
		},
		{
			Name:    "perplexity",
			Gate:    "PERPLEXITY_API_KEY",
			Command: "uvx",
			Args:    []string{"perplexity-mcp"},
			Env: func() map[string]string {
				return map[string]string{
					"PERPLEXITY_API_KEY": os.Getenv("PERPLEXITY_API_KEY"),
				}
			},
		},
		{
			Name: "datadog",
			Gate: "DD_API_KEY",
			URL:  "https://mcp.datadoghq.com/sse",
			Headers: func() map[string]string {
				return map[string]string{
					"DD-API-KEY":         os.Getenv("DD_API_KEY"),
					"DD-APPLICATION-KEY": os.Getenv("DD_APP_KEY"),
				}
			},
		},
		{
			Name: "postman",
			Gate: "POSTMAN_API_KEY",
			URL:  "https://mcp.postman.com/minimal",
			Headers: func() map[string]string {
				return map[string]string{
					"Authorization": "Bearer " + os.Getenv("POSTMAN_API_KEY"),
				}
			},
		},
		{
			Name: "braintrust",
			Gate: "BRAINTRUST_API_KEY",
			URL:  "https://api.braintrust.dev/mcp",
			Headers: func() map[string]string {
				return map[string]string{
					"Authorization": "Bearer " + os.Getenv("BRAINTRUST_API_KEY"),
				}
			},
		},
	}
}

// Registry holds the tools discovered across connected MCP servers and
// dispatches calls by tool name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]*ToolAdapter
	clients  []*Client
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]*ToolAdapter),
	}
}

// AddClient discovers the client's tools and registers an adapter for each.
// A tool name already present is kept; later servers do not shadow earlier ones.
func (r *Registry) AddClient(ctx context.Context, c *Client) error {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = append(r.clients, c)
	for _, tool := range tools {
		if _, exists := r.adapters[tool.Name]; exists {
			continue
		}
		adapter, err := NewToolAdapter(tool, c)
		if err != nil {
			return err
		}
		r.adapters[tool.Name] = adapter
	}
	return nil
}

// Definitions returns LLM function definitions for every registered tool.
func (r *Registry) Definitions() []llm.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.Tool, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		defs = append(defs, adapter.ToolDefinition())
	}
	return defs
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[name]
	return adapter, ok
}

// Call dispatches a tool call by name.
func (r *Registry) Call(ctx context.Context, name string, input any) (any, error) {
	tool, ok := r.Lookup(name)
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "unknown tool", nil).
			WithContext("tool", name)
	}
	return tool.Call(ctx, input)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// Close closes every client added to the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, c := range r.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.clients = nil
	r.adapters = make(map[string]*ToolAdapter)
	return firstErr
}

// LoadRegistry connects every enabled server spec and registers its tools.
// A server that fails to connect is logged and skipped; collaborators run
// without its tools rather than failing startup.
func LoadRegistry(ctx context.Context, logger *slog.Logger, specs []ServerSpec, opts ...ClientOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	registry := NewRegistry()
	for _, spec := range specs {
		if !spec.Enabled() {
			logger.Debug("mcp server skipped, credential not set", "server", spec.Name, "gate", spec.Gate)
			continue
		}
		client, err := spec.Connect(opts...)
		if err != nil {
			logger.Warn("mcp server skipped", "server", spec.Name, "error", err)
			continue
		}
		if err := registry.AddClient(ctx, client); err != nil {
			logger.Warn("mcp tool discovery failed", "server", spec.Name, "error", err)
			_ = client.Close()
			continue
		}
		logger.Info("mcp server loaded", "server", spec.Name, "tools", registry.Len())
	}
	return registry
}

package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"mcpod/internal/domain"
)

// Orchestrator is the lifecycle surface the management handlers call.
// Satisfied by app.Orchestrator.
type Orchestrator interface {
	StartServers(ctx context.Context, servers []string) domain.StartServersResult
	StopServers(ctx context.Context, servers []string) error
	ActiveServers(ctx context.Context) ([]domain.Server, error)
	CatalogServers(ctx context.Context, catalog string) ([]domain.ServerMetadata, error)
	InstalledServers(ctx context.Context) ([]string, error)
	ServerInfo(ctx context.Context, server string) (*domain.ServerMetadata, error)
	ServerTools(ctx context.Context, server string) ([]domain.Tool, error)
}

// PromptProvider serves per-server usage prompts. Satisfied by
// app.PromptManager.
type PromptProvider interface {
	Prompt(ctx context.Context, server string) (string, error)
	PromptsForServers(ctx context.Context, servers []string) map[string]string
}

// ToolCaller is the proxy surface exposed through the management server.
type ToolCaller interface {
	CallTool(ctx context.Context, toolName string, args map[string]any) domain.CallToolResult
	ListActiveTools() []domain.Tool
}

// Toolkit covers the toolkit-level config and secret operations.
type Toolkit interface {
	ConfigRead(ctx context.Context) (map[string]any, error)
	ConfigWrite(ctx context.Context, config map[string]any) error
	SecretList(ctx context.Context) ([]string, error)
	SecretSet(ctx context.Context, key, value string) error
	SecretRemove(ctx context.Context, key string) error
}

// Server exposes orchestration as MCP management tools over stdio. Every
// backend tool stays behind call_tool; only management tools are registered
// directly.
type Server struct {
	orchestrator Orchestrator
	prompts      PromptProvider
	caller       ToolCaller
	toolkit      Toolkit
	logger       *zap.Logger
	server       *mcp.Server
}

type Options struct {
	Orchestrator Orchestrator
	Prompts      PromptProvider
	Caller       ToolCaller
	Toolkit      Toolkit
	Name         string
	Version      string
	Logger       *zap.Logger
}

func New(opts Options) *Server {
	if opts.Orchestrator == nil {
		panic("mcpserver.New requires an orchestrator")
	}
	if opts.Caller == nil {
		panic("mcpserver.New requires a tool caller")
	}
	if opts.Toolkit == nil {
		panic("mcpserver.New requires a toolkit client")
	}
	name := opts.Name
	if name == "" {
		name = "mcpod"
	}
	version := opts.Version
	if version == "" {
		version = "0.1.0"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		orchestrator: opts.Orchestrator,
		prompts:      opts.Prompts,
		caller:       opts.Caller,
		toolkit:      opts.Toolkit,
		logger:       logger.Named("mcpserver"),
	}
	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, &mcp.ServerOptions{
		HasTools: true,
	})
	s.registerManagementTools()
	return s
}

// Run serves the management tools over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("management server starting (stdio transport)")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerManagementTools() {
	for _, def := range s.managementTools() {
		s.server.AddTool(def.tool, def.handler)
	}
}

type toolDef struct {
	tool    *mcp.Tool
	handler mcp.ToolHandler
}

func (s *Server) managementTools() []toolDef {
	return []toolDef{
		{
			tool: &mcp.Tool{
				Name:        "call_tool",
				Description: "Call a tool on an active MCP server by tool name.",
				InputSchema: objectSchema(map[string]any{
					"tool_name": map[string]any{
						"type":        "string",
						"description": "Name of the tool to call.",
					},
					"arguments": map[string]any{
						"type":        "object",
						"description": "Arguments passed through to the tool.",
					},
				}, "tool_name"),
			},
			handler: s.handleCallTool,
		},
		{
			tool: &mcp.Tool{
				Name:        "list_active_tools",
				Description: "List every tool registered by the active servers.",
				InputSchema: objectSchema(nil),
			},
			handler: s.handleListActiveTools,
		},
		{
			tool: &mcp.Tool{
				Name:        "get_active_servers",
				Description: "List the currently enabled servers and their tools.",
				InputSchema: objectSchema(nil),
			},
			handler: s.handleGetActiveServers,
		},
		{
			tool: &mcp.Tool{
				Name:        "start_servers",
				Description: "Enable servers and register their tools and prompts.",
				InputSchema: objectSchema(map[string]any{
					"servers": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Server names to enable.",
					},
				}, "servers"),
			},
			handler: s.handleStartServers,
		},
		{
			tool: &mcp.Tool{
				Name:        "stop_servers",
				Description: "Disable servers and tear down their tools and connections.",
				InputSchema: objectSchema(map[string]any{
					"servers": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Server names to disable.",
					},
				}, "servers"),
			},
			handler: s.handleStopServers,
		},
		{
			tool: &mcp.Tool{
				Name:        "list_catalog",
				Description: "List the servers available in a catalog.",
				InputSchema: objectSchema(map[string]any{
					"catalog": map[string]any{
						"type":        "string",
						"description": "Catalog name; defaults to the configured catalog.",
					},
				}),
			},
			handler: s.handleListCatalog,
		},
		{
			tool: &mcp.Tool{
				Name:        "list_installed_servers",
				Description: "List the names of every installed server.",
				InputSchema: objectSchema(nil),
			},
			handler: s.handleListInstalledServers,
		},
		{
			tool: &mcp.Tool{
				Name:        "get_server_info",
				Description: "Get catalog metadata for one server.",
				InputSchema: objectSchema(map[string]any{
					"server": map[string]any{
						"type":        "string",
						"description": "Server name.",
					},
				}, "server"),
			},
			handler: s.handleGetServerInfo,
		},
		{
			tool: &mcp.Tool{
				Name:        "get_server_tools",
				Description: "List the tools exposed by one server.",
				InputSchema: objectSchema(map[string]any{
					"server": map[string]any{
						"type":        "string",
						"description": "Server name.",
					},
				}, "server"),
			},
			handler: s.handleGetServerTools,
		},
		{
			tool: &mcp.Tool{
				Name:        "config_get",
				Description: "Read the toolkit-wide configuration.",
				InputSchema: objectSchema(nil),
			},
			handler: s.handleConfigGet,
		},
		{
			tool: &mcp.Tool{
				Name:        "config_set",
				Description: "Replace the toolkit-wide configuration.",
				InputSchema: objectSchema(map[string]any{
					"config": map[string]any{
						"type":        "object",
						"description": "Full configuration document to write.",
					},
				}, "config"),
			},
			handler: s.handleConfigSet,
		},
		{
			tool: &mcp.Tool{
				Name:        "secret_list",
				Description: "List configured secret keys. Values are never returned.",
				InputSchema: objectSchema(nil),
			},
			handler: s.handleSecretList,
		},
		{
			tool: &mcp.Tool{
				Name:        "secret_set",
				Description: "Store one secret.",
				InputSchema: objectSchema(map[string]any{
					"key": map[string]any{
						"type":        "string",
						"description": "Secret key.",
					},
					"value": map[string]any{
						"type":        "string",
						"description": "Secret value.",
					},
				}, "key", "value"),
			},
			handler: s.handleSecretSet,
		},
		{
			tool: &mcp.Tool{
				Name:        "secret_remove",
				Description: "Delete one secret.",
				InputSchema: objectSchema(map[string]any{
					"key": map[string]any{
						"type":        "string",
						"description": "Secret key.",
					},
				}, "key"),
			},
			handler: s.handleSecretRemove,
		},
	}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

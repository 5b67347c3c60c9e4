package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mcpod/internal/domain"
)

type callToolArgs struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

type serverBatchArgs struct {
	Servers []string `json:"servers"`
}

type serverArgs struct {
	Server string `json:"server"`
}

type catalogArgs struct {
	Catalog string `json:"catalog"`
}

type configSetArgs struct {
	Config map[string]any `json:"config"`
}

type secretSetArgs struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type secretArgs struct {
	Key string `json:"key"`
}

func (s *Server) handleCallTool(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args callToolArgs
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	if args.ToolName == "" {
		return errorResult("tool_name is required"), nil
	}
	result := s.caller.CallTool(ctx, args.ToolName, args.Arguments)
	return structuredResult(result, result.Status == domain.CallError), nil
}

func (s *Server) handleListActiveTools(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tools := s.caller.ListActiveTools()
	return structuredResult(map[string]any{
		"tools": tools,
		"count": len(tools),
	}, false), nil
}

func (s *Server) handleGetActiveServers(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	servers, err := s.orchestrator.ActiveServers(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return structuredResult(map[string]any{
		"servers": servers,
		"count":   len(servers),
	}, false), nil
}

func (s *Server) handleStartServers(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args serverBatchArgs
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	if len(args.Servers) == 0 {
		return errorResult("servers is required"), nil
	}
	result := s.orchestrator.StartServers(ctx, args.Servers)
	return structuredResult(result, result.Status == "error"), nil
}

func (s *Server) handleStopServers(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args serverBatchArgs
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	if len(args.Servers) == 0 {
		return errorResult("servers is required"), nil
	}
	if err := s.orchestrator.StopServers(ctx, args.Servers); err != nil {
		return errorResult(err.Error()), nil
	}
	return structuredResult(map[string]any{
		"status":  "ok",
		"servers": args.Servers,
	}, false), nil
}

func (s *Server) handleListCatalog(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args catalogArgs
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	servers, err := s.orchestrator.CatalogServers(ctx, args.Catalog)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return structuredResult(map[string]any{
		"servers": servers,
		"count":   len(servers),
	}, false), nil
}

func (s *Server) handleListInstalledServers(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.orchestrator.InstalledServers(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return structuredResult(map[string]any{
		"servers": names,
		"count":   len(names),
	}, false), nil
}

func (s *Server) handleGetServerInfo(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args serverArgs
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	if args.Server == "" {
		return errorResult("server is required"), nil
	}
	meta, err := s.orchestrator.ServerInfo(ctx, args.Server)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if meta == nil {
		return errorResult(fmt.Sprintf("server %s not found", args.Server)), nil
	}
	return structuredResult(meta, false), nil
}

func (s *Server) handleGetServerTools(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args serverArgs
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	if args.Server == "" {
		return errorResult("server is required"), nil
	}
	tools, err := s.orchestrator.ServerTools(ctx, args.Server)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return structuredResult(map[string]any{
		"server": args.Server,
		"tools":  tools,
		"count":  len(tools),
	}, false), nil
}

func (s *Server) handleConfigGet(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	config, err := s.toolkit.ConfigRead(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return structuredResult(config, false), nil
}

func (s *Server) handleConfigSet(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args configSetArgs
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	if args.Config == nil {
		return errorResult("config is required"), nil
	}
	if err := s.toolkit.ConfigWrite(ctx, args.Config); err != nil {
		return errorResult(err.Error()), nil
	}
	return structuredResult(map[string]any{"status": "ok"}, false), nil
}

func (s *Server) handleSecretList(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keys, err := s.toolkit.SecretList(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return structuredResult(map[string]any{
		"secrets": keys,
		"count":   len(keys),
	}, false), nil
}

func (s *Server) handleSecretSet(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args secretSetArgs
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	if args.Key == "" {
		return errorResult("key is required"), nil
	}
	if err := s.toolkit.SecretSet(ctx, args.Key, args.Value); err != nil {
		return errorResult(err.Error()), nil
	}
	return structuredResult(map[string]any{"status": "ok", "key": args.Key}, false), nil
}

func (s *Server) handleSecretRemove(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args secretArgs
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	if args.Key == "" {
		return errorResult("key is required"), nil
	}
	if err := s.toolkit.SecretRemove(ctx, args.Key); err != nil {
		return errorResult(err.Error()), nil
	}
	return structuredResult(map[string]any{"status": "ok", "key": args.Key}, false), nil
}

func decodeArgs(req *mcp.CallToolRequest, out any) error {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, out); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// structuredResult renders a payload both as JSON text and as structured
// content, so clients on either content model see the same data.
func structuredResult(payload any, isError bool) *mcp.CallToolResult {
	text, err := json.Marshal(payload)
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err))
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(text)}},
		StructuredContent: payload,
		IsError:           isError,
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
		IsError: true,
	}
}

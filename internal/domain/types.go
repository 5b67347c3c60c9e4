package domain

import "time"

// ServerStatus describes the lifecycle of a backend server as seen by the
// orchestrator.
type ServerStatus string

const (
	StatusInstalled ServerStatus = "installed"
	StatusActive    ServerStatus = "active"
	StatusInactive  ServerStatus = "inactive"
	StatusError     ServerStatus = "error"
)

// Tool is a named operation exposed by a backend server. Names are unique
// within a server's registration; the input schema is an opaque JSON schema
// object validated by callers, not by the orchestrator.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ServerMetadata is an immutable snapshot of catalog information for one
// server, produced by the discovery collaborator and cached by name.
type ServerMetadata struct {
	Name               string         `json:"name"`
	Description        string         `json:"description,omitempty"`
	Version            string         `json:"version,omitempty"`
	Keywords           []string       `json:"keywords,omitempty"`
	ToolsCount         int            `json:"tools_count"`
	ToolsPreview       []string       `json:"tools_preview,omitempty"`
	CatalogSource      string         `json:"catalog_source,omitempty"`
	Prompt             string         `json:"prompt,omitempty"`
	ConfigRequirements map[string]any `json:"config_requirements,omitempty"`
}

// Server layers status over registry state for status reporting.
type Server struct {
	Name        string          `json:"name"`
	Status      ServerStatus    `json:"status"`
	Metadata    *ServerMetadata `json:"metadata,omitempty"`
	Tools       []Tool          `json:"tools,omitempty"`
	ActiveSince *time.Time      `json:"active_since,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// CallStatus is the status field of a CallToolResult.
type CallStatus string

const (
	CallSuccess CallStatus = "success"
	CallError   CallStatus = "error"
)

// CallToolResult is the structured outcome of a proxied tool call. Failure
// paths populate Error and, where known, the implicated server.
type CallToolResult struct {
	Status CallStatus `json:"status"`
	Result any        `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"`
	Server string     `json:"server,omitempty"`
}

// StartServersResult reports the outcome of starting a batch of servers.
// Errors are keyed by server name so a partial failure never hides the
// servers that did come up.
type StartServersResult struct {
	Status  string            `json:"status"`
	Servers []string          `json:"servers"`
	Tools   []Tool            `json:"tools"`
	Prompts map[string]string `json:"prompts,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// CloneTool returns a deep copy so registry projections cannot be mutated
// by callers.
func CloneTool(t Tool) Tool {
	out := Tool{
		Name:        t.Name,
		Description: t.Description,
	}
	if t.InputSchema != nil {
		out.InputSchema = cloneJSONMap(t.InputSchema)
	}
	return out
}

// CloneTools deep-copies a tool slice.
func CloneTools(tools []Tool) []Tool {
	if tools == nil {
		return nil
	}
	out := make([]Tool, len(tools))
	for i, t := range tools {
		out[i] = CloneTool(t)
	}
	return out
}

func cloneJSONMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneJSONValue(v)
	}
	return out
}

func cloneJSONValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneJSONMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneJSONValue(item)
		}
		return out
	default:
		return v
	}
}

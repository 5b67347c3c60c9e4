package discovery

import (
	"encoding/json"
	"fmt"
	"sort"

	"mcpod/internal/domain"
)

// The toolkit's JSON output shapes drifted across releases; the parsers
// accept both the wrapped and the flat forms.

func parseCatalogServers(raw string) ([]domain.ServerMetadata, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	entries := data
	if wrapped, ok := data["servers"].(map[string]any); ok {
		entries = wrapped
	}

	names := make([]string, 0, len(entries))
	for name, value := range entries {
		if _, ok := value.(map[string]any); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	servers := make([]domain.ServerMetadata, 0, len(names))
	for _, name := range names {
		servers = append(servers, parseServerMetadata(name, entries[name].(map[string]any)))
	}
	return servers, nil
}

func parseServerMetadata(name string, data map[string]any) domain.ServerMetadata {
	meta := domain.ServerMetadata{
		Name:          name,
		Description:   stringField(data, "description"),
		Version:       stringField(data, "version"),
		Keywords:      stringSlice(data["keywords"]),
		ToolsCount:    intField(data, "tools_count"),
		ToolsPreview:  stringSlice(data["tools_preview"]),
		CatalogSource: stringField(data, "catalog_source"),
		Prompt:        stringField(data, "prompt"),
	}
	if reqs, ok := data["config_requirements"].(map[string]any); ok {
		meta.ConfigRequirements = reqs
	}
	return meta
}

func parseServerNames(raw string) ([]string, error) {
	var asList []any
	if err := json.Unmarshal([]byte(raw), &asList); err == nil {
		return namesFromList(asList), nil
	}

	var asMap map[string]any
	if err := json.Unmarshal([]byte(raw), &asMap); err != nil {
		return nil, fmt.Errorf("parse server list: %w", err)
	}
	if wrapped, ok := asMap["servers"].([]any); ok {
		return namesFromList(wrapped), nil
	}
	if enabled, ok := asMap["enabled"].([]any); ok {
		return namesFromList(enabled), nil
	}
	return nil, nil
}

func namesFromList(items []any) []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		switch typed := item.(type) {
		case string:
			names = append(names, typed)
		case map[string]any:
			if name := stringField(typed, "name"); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

func parseServerTools(raw, server string) ([]domain.Tool, error) {
	var asList []any
	if err := json.Unmarshal([]byte(raw), &asList); err == nil {
		return toolsForServer(asList, server), nil
	}

	var asMap map[string]any
	if err := json.Unmarshal([]byte(raw), &asMap); err != nil {
		return nil, fmt.Errorf("parse tool list: %w", err)
	}
	if wrapped, ok := asMap["tools"].([]any); ok {
		return toolsForServer(wrapped, server), nil
	}
	return nil, nil
}

func toolsForServer(items []any, server string) []domain.Tool {
	var tools []domain.Tool
	for _, item := range items {
		data, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if stringField(data, "server") != server {
			continue
		}
		tool := domain.Tool{
			Name:        stringField(data, "name"),
			Description: stringField(data, "description"),
		}
		if schema, ok := data["inputSchema"].(map[string]any); ok {
			tool.InputSchema = schema
		}
		tools = append(tools, tool)
	}
	return tools
}

func parseSecretKeys(raw string) ([]string, error) {
	var asList []any
	if err := json.Unmarshal([]byte(raw), &asList); err == nil {
		return namesFromList(asList), nil
	}

	var asMap map[string]any
	if err := json.Unmarshal([]byte(raw), &asMap); err != nil {
		return nil, fmt.Errorf("parse secret list: %w", err)
	}
	if wrapped, ok := asMap["secrets"].([]any); ok {
		return namesFromList(wrapped), nil
	}
	return nil, nil
}

func stringField(data map[string]any, key string) string {
	if value, ok := data[key].(string); ok {
		return value
	}
	return ""
}

func intField(data map[string]any, key string) int {
	switch typed := data[key].(type) {
	case float64:
		return int(typed)
	case int:
		return typed
	default:
		return 0
	}
}

func stringSlice(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

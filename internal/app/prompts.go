package app

import (
	"context"

	"go.uber.org/zap"

	"mcpod/internal/domain"
	"mcpod/internal/infra/cache"
	"mcpod/internal/infra/telemetry"
)

// PromptSource resolves the usage prompt for one server. Satisfied by the
// discovery client through server metadata.
type PromptSource interface {
	ServerInfo(ctx context.Context, server string) (*domain.ServerMetadata, error)
}

// PromptManager serves per-server usage prompts through the metadata cache.
// Prompts never expire once fetched; an empty prompt is not cached so a
// server that gains one later is picked up.
type PromptManager struct {
	source PromptSource
	cache  *cache.MetadataCache
	logger *zap.Logger
}

func NewPromptManager(source PromptSource, metadataCache *cache.MetadataCache, logger *zap.Logger) *PromptManager {
	if source == nil {
		panic("app.NewPromptManager requires a prompt source")
	}
	if metadataCache == nil {
		panic("app.NewPromptManager requires a metadata cache")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromptManager{
		source: source,
		cache:  metadataCache,
		logger: logger.Named("prompts"),
	}
}

// Prompt returns the usage prompt for one server, or "" when the server has
// none.
func (m *PromptManager) Prompt(ctx context.Context, server string) (string, error) {
	return m.cache.ServerPrompt(ctx, server, func(fetchCtx context.Context) (string, error) {
		meta, err := m.source.ServerInfo(fetchCtx, server)
		if err != nil {
			return "", err
		}
		if meta == nil {
			return "", nil
		}
		return meta.Prompt, nil
	})
}

// PromptsForServers collects prompts for a batch of servers. Servers without
// a prompt are omitted; per-server failures are logged and skipped.
func (m *PromptManager) PromptsForServers(ctx context.Context, servers []string) map[string]string {
	prompts := make(map[string]string, len(servers))
	for _, server := range servers {
		prompt, err := m.Prompt(ctx, server)
		if err != nil {
			m.logger.Warn("prompt fetch failed",
				telemetry.ServerField(server),
				zap.Error(err),
			)
			continue
		}
		if prompt != "" {
			prompts[server] = prompt
		}
	}
	return prompts
}

package mcpserver

import "github.com/modelcontextprotocol/go-sdk/mcp"

// MCPServer exposes the wrapped SDK server so external tests can connect
// in-memory transports to it.
func MCPServer(s *Server) *mcp.Server { return s.server }

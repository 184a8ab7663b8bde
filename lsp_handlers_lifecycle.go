// scriptcomplete/lsp_handlers_lifecycle.go
// Contains LSP method handlers related to the server lifecycle (initialize, shutdown, exit).
package scriptcomplete

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/jsonrpc2"
)

// ============================================================================
// LSP Lifecycle Method Handlers
// ============================================================================

// handleInitialize stores client capabilities and returns server capabilities.
func (s *Server) handleInitialize(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, params InitializeParams, logger *slog.Logger) (any, error) {
	clientName, clientVersion := "", ""
	if params.ClientInfo != nil {
		clientName, clientVersion = params.ClientInfo.Name, params.ClientInfo.Version
	}
	logger.Info("Handling initialize request", "client_name", clientName, "client_version", clientVersion)

	serverCapabilities := ServerCapabilities{
		TextDocumentSync: &TextDocumentSyncOptions{
			OpenClose: true,
			Change:    TextDocumentSyncKindFull,
		},
		CompletionProvider: &CompletionOptions{
			TriggerCharacters: triggerCharacters,
		},
	}

	result := InitializeResult{
		Capabilities: serverCapabilities,
		ServerInfo:   s.serverInfo,
	}

	s.stateMu.Lock()
	s.clientCaps = params.Capabilities
	s.initParams = &params
	s.stateMu.Unlock()

	logger.Info("Initialization successful", "server_capabilities", result.Capabilities)
	return result, nil
}

// handleShutdown marks the server as shutting down; requests other than exit
// are still answered but no new work is scheduled.
func (s *Server) handleShutdown(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, logger *slog.Logger) (any, error) {
	logger.Info("Handling shutdown request")
	s.stateMu.Lock()
	s.shutdown = true
	s.stateMu.Unlock()
	return nil, nil
}

// handleExit closes the connection, which ends Run.
func (s *Server) handleExit(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, logger *slog.Logger) (any, error) {
	logger.Info("Handling exit notification")
	if s.conn != nil {
		s.conn.Close()
	}
	return nil, nil
}

// ShutdownRequested reports whether the client sent shutdown before exit.
func (s *Server) ShutdownRequested() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.shutdown
}

func (s *Server) snippetSupport() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	td := s.clientCaps.TextDocument
	return td != nil && td.Completion != nil && td.Completion.CompletionItem != nil && td.Completion.CompletionItem.SnippetSupport
}

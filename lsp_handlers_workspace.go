// scriptcomplete/lsp_handlers_workspace.go
// Contains LSP method handlers related to workspace events (e.g., configuration changes).
package scriptcomplete

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/sourcegraph/jsonrpc2"
)

// ============================================================================
// LSP Workspace Method Handlers
// ============================================================================

// handleDidChangeConfiguration merges the client's settings (either nested
// under "scriptcomplete" or sent flat) into the current configuration.
func (s *Server) handleDidChangeConfiguration(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, params DidChangeConfigurationParams, logger *slog.Logger) (any, error) {
	logger.Info("Handling workspace/didChangeConfiguration")

	fileCfg, err := decodeClientSettings(params.Settings)
	if err != nil {
		logger.Error("Failed to unmarshal workspace/didChangeConfiguration settings", "error", err, "raw_settings", string(params.Settings))
		return nil, nil
	}

	newConfig := s.completer.GetCurrentConfig()
	mergedFields := mergeFileConfig(&newConfig, fileCfg)
	if mergedFields == 0 {
		logger.Debug("No relevant configuration changes found in workspace/didChangeConfiguration notification")
		return nil, nil
	}

	logger.Info("Applying configuration changes from client", "fields_merged", mergedFields)
	if err := s.completer.UpdateConfig(newConfig); err != nil {
		logger.Error("Failed to apply updated configuration", "error", err)
		s.sendShowMessage(MessageTypeError, fmt.Sprintf("Failed to apply configuration update: %v", err))
		return nil, nil
	}

	applied := s.completer.GetCurrentConfig()
	if s.levelVar != nil {
		if level, parseErr := ParseLogLevel(applied.LogLevel); parseErr == nil {
			s.levelVar.Set(level)
			logger.Info("Log level updated", "new_level", level)
		} else {
			logger.Warn("Cannot update logger level due to parse error", "level_string", applied.LogLevel, "error", parseErr)
		}
	}
	logger.Info("Server configuration updated successfully via workspace/didChangeConfiguration")
	return nil, nil
}

// decodeClientSettings accepts {"scriptcomplete": {...}} or the flat object.
func decodeClientSettings(raw json.RawMessage) (FileConfig, error) {
	var nested struct {
		ScriptComplete *FileConfig `json:"scriptcomplete"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.ScriptComplete != nil {
		return *nested.ScriptComplete, nil
	}
	var direct FileConfig
	if err := json.Unmarshal(raw, &direct); err != nil {
		return FileConfig{}, err
	}
	return direct, nil
}

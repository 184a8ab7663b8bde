// scriptcomplete/lsp_handlers_textdocument.go
// Contains LSP method handlers related to text document synchronization and completion.
package scriptcomplete

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/sourcegraph/jsonrpc2"
)

const completionTimeout = 5 * time.Second

// ============================================================================
// LSP Text Document Method Handlers
// ============================================================================

// handleDidOpen adds the opened file to the server's state.
func (s *Server) handleDidOpen(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, params DidOpenTextDocumentParams, logger *slog.Logger) (any, error) {
	doc := params.TextDocument
	openLogger := logger.With("uri", doc.URI, "version", doc.Version, "language", doc.LanguageID, "size", len(doc.Text))
	openLogger.Info("Handling textDocument/didOpen")

	s.files.Set(string(doc.URI), &OpenFile{
		URI:        doc.URI,
		LanguageID: doc.LanguageID,
		Content:    []byte(doc.Text),
		Version:    doc.Version,
	})
	return nil, nil
}

// handleDidChange replaces the stored content (Full sync) unless the change is
// older than what is already stored.
func (s *Server) handleDidChange(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, params DidChangeTextDocumentParams, logger *slog.Logger) (any, error) {
	uri := params.TextDocument.URI
	version := params.TextDocument.Version
	changeLogger := logger.With("uri", uri, "new_version", version)

	if len(params.ContentChanges) == 0 {
		changeLogger.Warn("Received didChange notification with no content changes")
		return nil, nil
	}
	newContent := []byte(params.ContentChanges[len(params.ContentChanges)-1].Text)
	changeLogger.Info("Handling textDocument/didChange", "new_size", len(newContent))

	s.files.Upsert(string(uri), nil, func(exist bool, current *OpenFile, _ *OpenFile) *OpenFile {
		if !exist {
			return &OpenFile{URI: uri, Content: newContent, Version: version}
		}
		if version <= current.Version {
			changeLogger.Warn("Ignoring out-of-order didChange notification", "current_version", current.Version)
			return current
		}
		return &OpenFile{URI: uri, LanguageID: current.LanguageID, Content: newContent, Version: version}
	})
	return nil, nil
}

// handleDidClose forgets the file.
func (s *Server) handleDidClose(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, params DidCloseTextDocumentParams, logger *slog.Logger) (any, error) {
	uri := params.TextDocument.URI
	logger.Info("Handling textDocument/didClose", "uri", uri)
	s.files.Remove(string(uri))
	return nil, nil
}

// handleCompletion answers textDocument/completion with the engine's hints.
// Failures computing hints are logged and answered with an empty list.
func (s *Server) handleCompletion(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, params CompletionParams, logger *slog.Logger) (any, error) {
	uri := params.TextDocument.URI
	lspPos := params.Position
	completionLogger := logger.With("uri", uri, "lsp_line", lspPos.Line, "lsp_char", lspPos.Character)
	completionLogger.Info("Handling textDocument/completion")

	empty := CompletionList{IsIncomplete: false, Items: []CompletionItem{}}

	file, ok := s.files.Get(string(uri))
	if !ok {
		completionLogger.Warn("Completion request for unknown file")
		return nil, fmt.Errorf("document not open: %s", uri)
	}

	_, _, offset, posErr := LspPositionToBytePosition(file.Content, lspPos, completionLogger)
	if posErr != nil {
		completionLogger.Error("Failed to convert LSP position to byte position", "error", posErr)
		return empty, nil
	}

	syntaxID := s.completer.SyntaxForLanguage(languageForFile(file, completionLogger))
	completionLogger = completionLogger.With("byte_offset", offset, "syntax", syntaxID)

	completionCtx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	hints, err := s.completer.GetHints(completionCtx, offset, syntaxID, string(file.Content))
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			completionLogger.Info("Completion request cancelled")
			return nil, &jsonrpc2.Error{Code: int64(JsonRpcRequestCancelled), Message: "Completion request cancelled"}
		case errors.Is(err, context.DeadlineExceeded):
			completionLogger.Warn("Completion request timed out")
		default:
			completionLogger.Warn("Computing hints failed", "error", err)
		}
		return empty, nil
	}

	completionLogger.Debug("Completion successful", "count", hints.Len())
	return CompletionList{
		IsIncomplete: false,
		Items:        completionItemsFromHints(hints, s.snippetSupport()),
	}, nil
}

// languageForFile returns the client's language id, or the file extension
// when the document was never opened with one.
func languageForFile(file *OpenFile, logger *slog.Logger) string {
	if file.LanguageID != "" {
		return file.LanguageID
	}
	path, err := ValidateAndGetFilePath(string(file.URI), logger)
	if err != nil {
		logger.Debug("Cannot derive language from URI", "error", err)
		return ""
	}
	switch ext := strings.TrimPrefix(filepath.Ext(path), "."); ext {
	case "vm", "vtl":
		return "velocity"
	default:
		return ext
	}
}

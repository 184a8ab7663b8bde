// scriptcomplete/lsp_server.go
// Implements the Language Server Protocol (LSP) server logic.
package scriptcomplete

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/goccy/go-json"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/sourcegraph/jsonrpc2"
)

// triggerCharacters start or continue a $reference.
var triggerCharacters = []string{"$", "!", "{", "."}

// ============================================================================
// LSP Server Implementation
// ============================================================================

// Server represents the LSP server instance.
type Server struct {
	conn           *jsonrpc2.Conn
	logger         *slog.Logger
	levelVar       *slog.LevelVar // Optional; adjusted on configuration changes.
	completer      *Completer
	files          cmap.ConcurrentMap[string, *OpenFile]
	clientCaps     ClientCapabilities
	serverInfo     *ServerInfo
	initParams     *InitializeParams
	requestTracker *RequestTracker
	shutdown       bool
	stateMu        sync.RWMutex // Guards clientCaps, initParams and shutdown.
}

// OpenFile represents a file currently open in the client editor.
type OpenFile struct {
	URI        DocumentURI
	LanguageID string
	Content    []byte
	Version    int
}

// NewServer creates a new LSP server instance. levelVar may be nil; when set,
// the log level follows workspace/didChangeConfiguration.
func NewServer(completer *Completer, logger *slog.Logger, levelVar *slog.LevelVar, version string) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		logger:    logger,
		levelVar:  levelVar,
		completer: completer,
		files:     cmap.New[*OpenFile](),
		serverInfo: &ServerInfo{
			Name:    "ScriptComplete LSP",
			Version: version,
		},
		requestTracker: NewRequestTracker(),
	}
	publishExpvarMetrics(s)
	return s
}

// Run starts the LSP server, listening on r and writing to w, and blocks
// until the connection closes.
func (s *Server) Run(r io.Reader, w io.Writer) {
	s.logger.Info("Starting LSP server run loop")

	stream := &stdrwc{r: r, w: w}
	objectStream := jsonrpc2.NewPlainObjectStream(stream)
	handler := jsonrpc2.HandlerWithError(s.handle)

	s.conn = jsonrpc2.NewConn(context.Background(), objectStream, handler)
	s.logger.Info("JSON-RPC connection established")

	<-s.conn.DisconnectNotify()
	s.logger.Info("JSON-RPC connection closed")
}

// stdrwc is a simple ReadWriteCloser that wraps stdin/stdout without closing them.
type stdrwc struct {
	r io.Reader
	w io.Writer
}

func (s *stdrwc) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *stdrwc) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *stdrwc) Close() error                { return nil }

// handle routes incoming LSP requests/notifications to appropriate methods.
func (s *Server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (result any, err error) {
	methodLogger := s.logger.With("method", req.Method, "is_notification", req.Notif)
	isRequest := !req.Notif
	if isRequest {
		methodLogger = methodLogger.With("req_id", req.ID)
	}
	methodLogger.Debug("Received request/notification")

	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			methodLogger.Error("Panic recovered in handler", "panic_value", r, "stack", stack)

			panicData, marshalErr := json.Marshal(fmt.Sprintf("Panic: %v", r))
			if marshalErr != nil {
				methodLogger.Error("Failed to marshal panic message for error data", "error", marshalErr)
				panicData = json.RawMessage(`"failed to marshal panic data"`)
			}
			rawPanicData := json.RawMessage(panicData)

			err = &jsonrpc2.Error{
				Code:    int64(JsonRpcInternalError),
				Message: fmt.Sprintf("Internal server error in method %s", req.Method),
				Data:    &rawPanicData,
			}
			result = nil
		}
	}()

	if isRequest {
		ctx = s.requestTracker.Add(req.ID, ctx)
		defer s.requestTracker.Remove(req.ID)
	}
	select {
	case <-ctx.Done():
		methodLogger.Warn("Request context cancelled before processing started", "error", ctx.Err())
		return nil, &jsonrpc2.Error{Code: int64(JsonRpcRequestCancelled), Message: "Request cancelled"}
	default:
	}

	unmarshalParams := func(target any) error {
		if req.Params == nil {
			return errors.New("params field is null")
		}
		return json.Unmarshal(*req.Params, target)
	}

	switch req.Method {
	case "initialize":
		var params InitializeParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Error("Failed to unmarshal initialize params", "error", err)
			return nil, &jsonrpc2.Error{Code: int64(JsonRpcInvalidParams), Message: fmt.Sprintf("Invalid initialize params: %v", err)}
		}
		return s.handleInitialize(ctx, conn, req, params, methodLogger)

	case "initialized":
		methodLogger.Info("Client initialized notification received")
		return nil, nil

	case "shutdown":
		return s.handleShutdown(ctx, conn, req, methodLogger)

	case "exit":
		return s.handleExit(ctx, conn, req, methodLogger)

	case "textDocument/didOpen":
		var params DidOpenTextDocumentParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Error("Failed to unmarshal didOpen params", "error", err)
			return nil, nil
		}
		return s.handleDidOpen(ctx, conn, req, params, methodLogger)

	case "textDocument/didChange":
		var params DidChangeTextDocumentParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Error("Failed to unmarshal didChange params", "error", err)
			return nil, nil
		}
		return s.handleDidChange(ctx, conn, req, params, methodLogger)

	case "textDocument/didClose":
		var params DidCloseTextDocumentParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Error("Failed to unmarshal didClose params", "error", err)
			return nil, nil
		}
		return s.handleDidClose(ctx, conn, req, params, methodLogger)

	case "textDocument/completion":
		var params CompletionParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Error("Failed to unmarshal completion params", "error", err)
			return nil, &jsonrpc2.Error{Code: int64(JsonRpcInvalidParams), Message: fmt.Sprintf("Invalid completion params: %v", err)}
		}
		return s.handleCompletion(ctx, conn, req, params, methodLogger)

	case "workspace/didChangeConfiguration":
		var params DidChangeConfigurationParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Error("Failed to unmarshal didChangeConfiguration params", "error", err)
			return nil, nil
		}
		return s.handleDidChangeConfiguration(ctx, conn, req, params, methodLogger)

	case "$/cancelRequest":
		var params CancelParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Error("Failed to unmarshal cancelRequest params", "error", err)
			return nil, nil
		}
		var cancelID jsonrpc2.ID
		switch idVal := params.ID.(type) {
		case float64:
			cancelID = jsonrpc2.ID{Num: uint64(idVal)}
		case string:
			cancelID = jsonrpc2.ID{Str: idVal, IsString: true}
		default:
			methodLogger.Warn("Could not determine type of cancel request ID", "id_value", params.ID, "id_type", fmt.Sprintf("%T", params.ID))
			return nil, nil
		}
		s.requestTracker.Cancel(cancelID)
		methodLogger.Info("Cancellation request processed", "cancelled_id", cancelID)
		return nil, nil

	default:
		if req.Notif {
			methodLogger.Debug("Ignoring unhandled notification")
			return nil, nil
		}
		methodLogger.Warn("Unhandled LSP method")
		return nil, &jsonrpc2.Error{Code: int64(JsonRpcMethodNotFound), Message: fmt.Sprintf("Method not supported: %s", req.Method)}
	}
}

// ============================================================================
// LSP Notification Sending Helpers
// ============================================================================

func (s *Server) sendShowMessage(msgType MessageType, message string) {
	if s.conn == nil {
		s.logger.Warn("Cannot send showMessage: connection is nil")
		return
	}
	params := ShowMessageParams{Type: msgType, Message: message}
	if err := s.conn.Notify(context.Background(), "window/showMessage", params); err != nil {
		s.logger.Error("Failed to send window/showMessage notification", "error", err, "message_type", msgType)
	} else {
		s.logger.Debug("Sent window/showMessage notification", "message_type", msgType)
	}
}

// ============================================================================
// Metrics Publishing
// ============================================================================

var expvarOnce sync.Once

// publishExpvarMetrics registers process-wide metrics for the first server
// created; expvar names can only be published once per process.
func publishExpvarMetrics(s *Server) {
	expvarOnce.Do(func() {
		startTime := time.Now()
		expvar.NewString("serverInfo.name").Set(s.serverInfo.Name)
		expvar.NewString("serverInfo.version").Set(s.serverInfo.Version)
		expvar.NewString("serverStartTime").Set(startTime.Format(time.RFC3339))
		expvar.Publish("goroutines", expvar.Func(func() any { return runtime.NumGoroutine() }))
		expvar.Publish("memory.allocBytes", expvar.Func(func() any {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			return m.Alloc
		}))
		expvar.Publish("lsp.openFiles", expvar.Func(func() any { return s.files.Count() }))
		expvar.Publish("lsp.pendingRequests", expvar.Func(func() any { return s.requestTracker.Count() }))

		cacheMetric := func(read func(hits, misses, keysAdded, keysEvicted uint64) uint64) expvar.Func {
			return func() any {
				if s.completer == nil {
					return uint64(0)
				}
				m := s.completer.MemoryCacheMetrics()
				if m == nil {
					return uint64(0)
				}
				return read(m.Hits(), m.Misses(), m.KeysAdded(), m.KeysEvicted())
			}
		}
		expvar.Publish("cache.memory.hits", cacheMetric(func(h, _, _, _ uint64) uint64 { return h }))
		expvar.Publish("cache.memory.misses", cacheMetric(func(_, m, _, _ uint64) uint64 { return m }))
		expvar.Publish("cache.memory.keysAdded", cacheMetric(func(_, _, a, _ uint64) uint64 { return a }))
		expvar.Publish("cache.memory.keysEvicted", cacheMetric(func(_, _, _, e uint64) uint64 { return e }))
		s.logger.Info("Expvar metrics published")
	})
}

// ============================================================================
// Request Cancellation Tracker
// ============================================================================

// RequestTracker manages cancellation contexts for ongoing LSP requests.
type RequestTracker struct {
	mu       sync.Mutex
	requests map[jsonrpc2.ID]context.CancelFunc
}

// NewRequestTracker creates a new tracker.
func NewRequestTracker() *RequestTracker {
	return &RequestTracker{
		requests: make(map[jsonrpc2.ID]context.CancelFunc),
	}
}

// Add registers a request ID and returns a context that Cancel(id) cancels.
func (rt *RequestTracker) Add(id jsonrpc2.ID, ctx context.Context) context.Context {
	reqCtx, cancel := context.WithCancel(ctx)
	rt.mu.Lock()
	rt.requests[id] = cancel
	rt.mu.Unlock()
	return reqCtx
}

// Remove deregisters a request ID and releases its context.
func (rt *RequestTracker) Remove(id jsonrpc2.ID) {
	rt.mu.Lock()
	cancel, found := rt.requests[id]
	delete(rt.requests, id)
	rt.mu.Unlock()
	if found {
		cancel()
	}
}

// Cancel finds the cancel function for a request ID and calls it.
func (rt *RequestTracker) Cancel(id jsonrpc2.ID) {
	rt.mu.Lock()
	cancel, found := rt.requests[id]
	if found {
		delete(rt.requests, id)
	}
	rt.mu.Unlock()

	if found {
		slog.Debug("Calling cancel function for request", "id", id)
		cancel()
	} else {
		slog.Debug("Cancel function not found for request ID", "id", id)
	}
}

// Count returns the number of currently tracked requests.
func (rt *RequestTracker) Count() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.requests)
}

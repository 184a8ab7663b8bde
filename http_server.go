// scriptcomplete/http_server.go
// Exposes hint computation over HTTP (GET/POST /hints).
package scriptcomplete

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
)

const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 2 * time.Minute
	maxHeaderBytes    = 1 << 20 // 1 MiB
	maxRequestBytes   = 8 << 20

	requestIDHeader = "X-Request-Id"
)

// HintProvider computes hints for a document; *Completer implements it.
type HintProvider interface {
	GetHints(ctx context.Context, offset int, syntaxID, text string) (Hints, error)
}

// HintsRequest is the POST /hints body.
type HintsRequest struct {
	Offset int    `json:"offset"`
	Syntax string `json:"syntax"`
	Text   string `json:"text"`
}

type hintsResponse struct {
	Hints []Hint `json:"hints"`
	Error string `json:"error,omitempty"`
}

// NewHTTPServer returns a server for addr with gzip, request ids and timeouts.
func NewHTTPServer(addr string, provider HintProvider, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/hints", HintsHandler(provider, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return &http.Server{
		Addr:              addr,
		Handler:           withRequestID(gzhttp.GzipHandler(mux)),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}
}

// withRequestID copies the client's request id, or assigns one, onto the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// HintsHandler serves GET /hints?offset=&syntax=&text= and POST /hints with a
// JSON HintsRequest body. Malformed input answers 400; failures while computing
// hints answer 500 with an empty hint list and an error message.
func HintsHandler(provider HintProvider, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	handlerLogger := logger.With("component", "HintsHandler")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLogger := handlerLogger.With("request_id", r.Header.Get(requestIDHeader), "method", r.Method)

		var req HintsRequest
		switch r.Method {
		case http.MethodGet:
			q := r.URL.Query()
			offset, err := strconv.Atoi(q.Get("offset"))
			if err != nil {
				writeHintsError(w, http.StatusBadRequest, fmt.Errorf("%w: offset %q", ErrInvalidPositionInput, q.Get("offset")), reqLogger)
				return
			}
			req = HintsRequest{Offset: offset, Syntax: q.Get("syntax"), Text: q.Get("text")}
		case http.MethodPost:
			body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
			if err := json.NewDecoder(body).Decode(&req); err != nil {
				writeHintsError(w, http.StatusBadRequest, fmt.Errorf("decoding request body: %w", err), reqLogger)
				return
			}
		default:
			w.Header().Set("Allow", "GET, POST")
			writeHintsError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method), reqLogger)
			return
		}

		start := time.Now()
		hints, err := provider.GetHints(r.Context(), req.Offset, req.Syntax, req.Text)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrInvalidPositionInput) {
				status = http.StatusBadRequest
			}
			writeHintsError(w, status, err, reqLogger)
			return
		}
		reqLogger.Debug("Served hints", "syntax", req.Syntax, "offset", req.Offset, "count", hints.Len(), "duration", time.Since(start))
		writeJSON(w, http.StatusOK, hintsResponse{Hints: hints.Items()}, reqLogger)
	})
}

func writeHintsError(w http.ResponseWriter, status int, err error, logger *slog.Logger) {
	if status >= http.StatusInternalServerError {
		logger.Error("Hint request failed", "status", status, "error", err)
	} else {
		logger.Debug("Rejected hint request", "status", status, "error", err)
	}
	writeJSON(w, status, hintsResponse{Hints: []Hint{}, Error: err.Error()}, logger)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write response", "error", err)
	}
}

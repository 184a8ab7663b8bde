// scriptcomplete/http_server_test.go
package scriptcomplete

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider answers with fixed hints or a fixed error and records the request.
type stubProvider struct {
	hints Hints
	err   error
	got   HintsRequest
}

func (p *stubProvider) GetHints(ctx context.Context, offset int, syntaxID, text string) (Hints, error) {
	p.got = HintsRequest{Offset: offset, Syntax: syntaxID, Text: text}
	if p.err != nil {
		return Hints{}, p.err
	}
	return p.hints, nil
}

func decodeHintsResponse(t *testing.T, rec *httptest.ResponseRecorder) hintsResponse {
	t.Helper()
	var resp hintsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHintsHandler(t *testing.T) {
	okHints := NewHints(Hint{"key", "key"}, Hint{"doc", "doc"})

	tests := []struct {
		name       string
		provider   *stubProvider
		newRequest func() *http.Request
		wantStatus int
		wantHints  []Hint
		wantReq    *HintsRequest
		wantErr    string
	}{
		{
			name:     "GET",
			provider: &stubProvider{hints: okHints},
			newRequest: func() *http.Request {
				q := url.Values{"offset": {"2"}, "syntax": {"velocity"}, "text": {"$k"}}
				return httptest.NewRequest(http.MethodGet, "/hints?"+q.Encode(), nil)
			},
			wantStatus: http.StatusOK,
			wantHints:  []Hint{{"doc", "doc"}, {"key", "key"}},
			wantReq:    &HintsRequest{Offset: 2, Syntax: "velocity", Text: "$k"},
		},
		{
			name:     "POST",
			provider: &stubProvider{hints: okHints},
			newRequest: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, "/hints", strings.NewReader(`{"offset":5,"syntax":"xwiki/2.1","text":"{{velocity}}$"}`))
			},
			wantStatus: http.StatusOK,
			wantHints:  []Hint{{"doc", "doc"}, {"key", "key"}},
			wantReq:    &HintsRequest{Offset: 5, Syntax: "xwiki/2.1", Text: "{{velocity}}$"},
		},
		{
			name:     "Empty result",
			provider: &stubProvider{},
			newRequest: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/hints?offset=0", nil)
			},
			wantStatus: http.StatusOK,
			wantHints:  []Hint{},
		},
		{
			name:     "Non numeric offset",
			provider: &stubProvider{hints: okHints},
			newRequest: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/hints?offset=abc", nil)
			},
			wantStatus: http.StatusBadRequest,
			wantHints:  []Hint{},
			wantErr:    "invalid input position",
		},
		{
			name:     "Malformed body",
			provider: &stubProvider{hints: okHints},
			newRequest: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, "/hints", strings.NewReader(`{"offset":`))
			},
			wantStatus: http.StatusBadRequest,
			wantHints:  []Hint{},
			wantErr:    "decoding request body",
		},
		{
			name:     "Offset rejected by provider",
			provider: &stubProvider{err: ErrInvalidOffset},
			newRequest: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/hints?offset=99&text=x", nil)
			},
			wantStatus: http.StatusBadRequest,
			wantHints:  []Hint{},
			wantErr:    "cursor offset out of range",
		},
		{
			name:     "Provider failure",
			provider: &stubProvider{err: errors.New("finder exploded")},
			newRequest: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/hints?offset=0", nil)
			},
			wantStatus: http.StatusInternalServerError,
			wantHints:  []Hint{},
			wantErr:    "finder exploded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HintsHandler(tt.provider, nil).ServeHTTP(rec, tt.newRequest())

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			resp := decodeHintsResponse(t, rec)
			assert.Equal(t, tt.wantHints, resp.Hints)
			if tt.wantErr != "" {
				assert.Contains(t, resp.Error, tt.wantErr)
			} else {
				assert.Empty(t, resp.Error)
			}
			if tt.wantReq != nil {
				assert.Equal(t, *tt.wantReq, tt.provider.got)
			}
		})
	}
}

func TestHintsHandler_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	HintsHandler(&stubProvider{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/hints", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
}

func TestNewHTTPServer(t *testing.T) {
	srv := NewHTTPServer("localhost:0", &stubProvider{hints: NewHints(Hint{"a", "a"})}, nil)
	assert.Equal(t, "localhost:0", srv.Addr)

	t.Run("Health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	})

	t.Run("Request id is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/hints?offset=0", nil)
		req.Header.Set(requestIDHeader, "req-42")
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
		assert.Equal(t, []Hint{{"a", "a"}}, decodeHintsResponse(t, rec).Hints)
	})

	t.Run("Against a live completer", func(t *testing.T) {
		c := newTestCompleter(t, sampleBindingsYAML)
		live := httptest.NewServer(NewHTTPServer("", c, nil).Handler)
		defer live.Close()

		q := url.Values{"offset": {"5"}, "syntax": {"velocity"}, "text": {"$doc."}}
		resp, err := http.Get(live.URL + "/hints?" + q.Encode())
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body hintsResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, []Hint{{"getTitle", "getTitle(...) String"}, {"save", "save(...)"}, {"title", "title String"}}, body.Hints)
	})
}

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"retrieval/internal/domain"
	"retrieval/internal/usecase"
)

type stubAnswerer struct {
	err     error
	panics  bool
	queries []string
}

func (a *stubAnswerer) Answer(query string) (*domain.Answer, error) {
	if a.panics {
		panic("boom")
	}
	a.queries = append(a.queries, query)
	if a.err != nil {
		return nil, a.err
	}
	return &domain.Answer{Query: query, Text: "Renew online.", Contexts: []string{"ctx"}}, nil
}

func readyServer(t *testing.T, answerer Answerer) *httptest.Server {
	t.Helper()
	ready := usecase.NewReadiness()
	require.NoError(t, ready.Run(func() error { return nil }))

	ts := httptest.NewServer(New(answerer, ready, Options{}).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestAskForm(t *testing.T) {
	answerer := &stubAnswerer{}
	ts := readyServer(t, answerer)

	resp, err := http.PostForm(ts.URL+"/ask", url.Values{"text": {"  How do I renew?  "}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, "How do I renew?", body["query"])
	assert.Equal(t, "Renew online.", body["answer"])
	assert.Equal(t, []any{"ctx"}, body["contexts"])
	assert.Equal(t, []string{"How do I renew?"}, answerer.queries)
}

func TestAskJSON(t *testing.T) {
	ts := readyServer(t, &stubAnswerer{})

	resp, err := http.Post(ts.URL+"/ask", "application/json", strings.NewReader(`{"text": "hello"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", decode(t, resp)["query"])

	resp, err = http.Post(ts.URL+"/ask", "application/json", strings.NewReader(`{"text":`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAskRejectsEmptyQuery(t *testing.T) {
	answerer := &stubAnswerer{}
	ts := readyServer(t, answerer)

	resp, err := http.PostForm(ts.URL+"/ask", url.Values{"text": {"   "}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, resp), "error")
	assert.Empty(t, answerer.queries)
}

func TestAskBeforeReady(t *testing.T) {
	ready := usecase.NewReadiness()
	answerer := &stubAnswerer{}
	ts := httptest.NewServer(New(answerer, ready, Options{}).Handler())
	defer ts.Close()

	resp, err := http.PostForm(ts.URL+"/ask", url.Values{"text": {"q"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()

	ready.Begin()
	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "building", decode(t, resp)["state"])

	ready.Finish(errors.New("no source data"))
	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body := decode(t, resp)
	assert.Equal(t, "failed", body["state"])
	assert.Equal(t, "no source data", body["error"])

	assert.Empty(t, answerer.queries)
}

func TestAskFailureAndPanic(t *testing.T) {
	ts := readyServer(t, &stubAnswerer{err: errors.New("quota exceeded")})
	resp, err := http.PostForm(ts.URL+"/ask", url.Values{"text": {"q"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "quota exceeded", decode(t, resp)["error"])

	ts = readyServer(t, &stubAnswerer{panics: true})
	resp, err = http.PostForm(ts.URL+"/ask", url.Values{"text": {"q"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthzAndMetrics(t *testing.T) {
	ts := readyServer(t, &stubAnswerer{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", decode(t, resp)["state"])

	resp, err = http.Get(ts.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `rag_http_requests_total{method="GET",path="/healthz",status="200"} 1`)
	assert.Contains(t, string(raw), "rag_ready 1")
}

func TestMetricsWatchCache(t *testing.T) {
	m := NewMetrics()
	m.WatchCache(func() (uint64, uint64) { return 3, 4 })
	ts := httptest.NewServer(m.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "rag_query_cache_hits_total 3")
	assert.Contains(t, string(raw), "rag_query_cache_misses_total 4")
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantdl/internal/cache"
	"quantdl/internal/dataaccess"
	"quantdl/internal/errors"
	"quantdl/pkg/contracts/domain"
)

type mapGateway struct {
	objects map[string][]byte
}

func (g *mapGateway) Read(ctx context.Context, path string) ([]byte, error) {
	data, ok := g.objects[path]
	if !ok {
		return nil, errors.NotFound("object", path)
	}
	return data, nil
}

func (g *mapGateway) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	for k := range g.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func fixtureObjects() map[string][]byte {
	return map[string][]byte{
		"data/master/security_master.csv": []byte(
			"security_id,permno,symbol,company,cik,cusip,start_date,end_date\n" +
				"SEC001,10001,ACME,Acme Corp,0000012345,123456789,2010-01-01,\n" +
				"SEC003,20002,GLOBO,Globo Inc,0000067890,987654321,2015-03-01,\n"),
		"data/master/calendar_master.csv": []byte("date\n2024-01-02\n2024-01-03\n"),
		"data/raw/ticks/daily/SEC001/history.csv": []byte(
			"timestamp,open,close,volume\n" +
				"2024-01-02,10,11,1000\n" +
				"2024-01-03,11,12,1100\n"),
		"data/raw/ticks/daily/SEC003/history.csv": []byte(
			"timestamp,open,close,volume\n" +
				"2024-01-02,20,21,2000\n" +
				"2024-01-03,21,22,2100\n"),
		"data/universe/tech.csv": []byte("symbol\nACME\nGLOBO\n"),
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gw := &mapGateway{objects: fixtureObjects()}
	dc, err := cache.New(t.TempDir(), time.Hour, 0, nil)
	require.NoError(t, err)
	client := dataaccess.New(gw, dc, nil)
	h := NewHandler(client, nil, 50, 4)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestResolveEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/resolve", domain.ResolveRequest{
		Symbols: []string{"ACME", "NOPE"},
		AsOf:    "2024-01-02",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got domain.ResolveResponse
	decodeBody(t, resp, &got)
	require.Len(t, got.Securities, 2)
	assert.True(t, got.Securities[0].Resolved)
	assert.Equal(t, "SEC001", got.Securities[0].Record.SecurityID)
	assert.False(t, got.Securities[1].Resolved)
	assert.Nil(t, got.Securities[1].Record)
}

func TestResolveRejectsBadDate(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/resolve", map[string]interface{}{
		"symbols": []string{"ACME"},
		"as_of":   "Jan 2 2024",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDataEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/data", domain.DataRequest{
		Source:  "ticks",
		Field:   "close",
		Symbols: []string{"ACME", "GLOBO"},
		Start:   "2024-01-02",
		End:     "2024-01-03",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got domain.TableResponse
	decodeBody(t, resp, &got)
	assert.Equal(t, []string{"2024-01-02", "2024-01-03"}, got.Dates)
	assert.Equal(t, []string{"ACME", "GLOBO"}, got.Columns)
	require.Len(t, got.Values, 2)
	require.NotNil(t, got.Values[0][0])
	assert.Equal(t, 11.0, *got.Values[0][0])
	assert.Equal(t, 21.0, *got.Values[0][1])
}

func TestDataRejectsUnknownSource(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/data", map[string]interface{}{
		"source":  "options",
		"field":   "close",
		"symbols": []string{"ACME"},
		"start":   "2024-01-02",
		"end":     "2024-01-03",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDataNotFoundProblem(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/data", domain.DataRequest{
		Source:  "ticks",
		Field:   "close",
		Symbols: []string{"NOPE"},
		Start:   "2024-01-02",
		End:     "2024-01-03",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/problem+json")

	var p struct {
		Code   string `json:"code"`
		Status int    `json:"status"`
	}
	decodeBody(t, resp, &p)
	assert.Equal(t, "NOT_FOUND", p.Code)
	assert.Equal(t, http.StatusNotFound, p.Status)
}

func TestEvalEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/eval", domain.EvalRequest{
		Expression: "close - open",
		Symbols:    []string{"ACME", "GLOBO"},
		Start:      "2024-01-02",
		End:        "2024-01-03",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got domain.TableResponse
	decodeBody(t, resp, &got)
	require.Len(t, got.Values, 2)
	require.NotNil(t, got.Values[0][0])
	assert.Equal(t, 1.0, *got.Values[0][0])
}

func TestEvalRejectedExpressionIs422(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/eval", domain.EvalRequest{
		Expression: "__import__('os')",
		Symbols:    []string{"ACME"},
		Start:      "2024-01-02",
		End:        "2024-01-03",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var p struct {
		Code string `json:"code"`
	}
	decodeBody(t, resp, &p)
	assert.Equal(t, "REJECTED_EXPRESSION", p.Code)
}

func TestEvalUnboundVariableIs422(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/eval", domain.EvalRequest{
		Expression: "mystery + 1",
		Symbols:    []string{"ACME"},
		Start:      "2024-01-02",
		End:        "2024-01-03",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var p struct {
		Code    string `json:"code"`
		Details string `json:"details"`
	}
	decodeBody(t, resp, &p)
	assert.Equal(t, "UNBOUND_VARIABLE", p.Code)
	assert.Equal(t, "mystery", p.Details)
}

func TestUniverseEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/universe/tech")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got domain.UniverseResponse
	decodeBody(t, resp, &got)
	assert.Equal(t, "tech", got.Name)
	assert.Equal(t, []string{"ACME", "GLOBO"}, got.Symbols)

	resp, err = http.Get(srv.URL + "/universe/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCacheEndpoints(t *testing.T) {
	srv := newTestServer(t)

	// Populate the cache with one fetch.
	resp := postJSON(t, srv.URL+"/data", domain.DataRequest{
		Source:  "ticks",
		Field:   "close",
		Symbols: []string{"ACME"},
		Start:   "2024-01-02",
		End:     "2024-01-03",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(srv.URL + "/cache/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats map[string]interface{}
	decodeBody(t, resp, &stats)
	assert.Greater(t, stats["entries"].(float64), 0.0)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/cache", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]string
	decodeBody(t, resp, &got)
	assert.Equal(t, "healthy", got["status"])
}

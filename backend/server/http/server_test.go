package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webwatch/backend/model"
	"github.com/webwatch/backend/registry"
	"github.com/webwatch/backend/service"
	"github.com/webwatch/backend/storage/memory"
)

type response struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zerolog.Nop()
	coord := service.NewCoordinator(service.Config{
		Store:    memory.NewMemStore(),
		Registry: registry.New(&logger),
		Logger:   &logger,
	})
	srv := NewServer(Config{
		Logger:       &logger,
		PartyService: coord,
		ListenAddr:   ":0",
	})
	ts := httptest.NewServer(srv.Server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, body string) (int, response) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	var decoded response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestCreateListGetParty(t *testing.T) {
	ts := newTestServer(t)

	code, resp := doJSON(t, http.MethodPost, ts.URL+"/api/party", `{"name":"movie night","media_ref":"ref.mp4"}`)
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, resp.Error)

	var created model.Party
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "movie night", created.Name)

	code, resp = doJSON(t, http.MethodGet, ts.URL+"/api/party", "")
	require.Equal(t, http.StatusOK, code)
	var parties []model.Party
	require.NoError(t, json.Unmarshal(resp.Data, &parties))
	require.Len(t, parties, 1)
	assert.Equal(t, created.ID, parties[0].ID)

	code, resp = doJSON(t, http.MethodGet, ts.URL+"/api/party/"+created.ID, "")
	require.Equal(t, http.StatusOK, code)
	var got model.Party
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, created.ID, got.ID)
}

func TestGetParty_UnknownIs404(t *testing.T) {
	ts := newTestServer(t)

	code, resp := doJSON(t, http.MethodGet, ts.URL+"/api/party/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.NotEmpty(t, resp.Error)
}

func TestCreateParty_NameRequired(t *testing.T) {
	ts := newTestServer(t)

	code, resp := doJSON(t, http.MethodPost, ts.URL+"/api/party", `{"media_ref":"ref.mp4"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, resp.Error)
}

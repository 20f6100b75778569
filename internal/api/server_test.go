package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sashko1391/they-voted-for-this/internal/game"
	"github.com/sashko1391/they-voted-for-this/internal/persistence"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	registry := game.NewRegistry(ctx, store, nil, 24, 3)
	srv := httptest.NewServer((&Server{Registry: registry}).Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(cancel)
	return srv
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func createGame(t *testing.T, srv *httptest.Server) (serverID, playerID, token string) {
	resp, out := postJSON(t, srv.URL+"/server/create", map[string]string{
		"playerName": "founder", "playerRole": "politician",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return out["serverId"].(string), out["playerId"].(string), out["playerToken"].(string)
}

func TestHealth(t *testing.T) {
	srv := testServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv := testServer(t)
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/server/create", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCreateJoinViewRoundTrip(t *testing.T) {
	srv := testServer(t)
	serverID, _, _ := createGame(t, srv)

	resp, out := postJSON(t, srv.URL+"/server/"+serverID+"/join", map[string]string{
		"playerName": "worker", "playerRole": "citizen",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	playerID := out["playerId"].(string)
	token := out["playerToken"].(string)
	require.Len(t, token, 32)

	viewURL := fmt.Sprintf("%s/server/%s/view?playerId=%s&token=%s", srv.URL, serverID, playerID, token)
	vresp, err := http.Get(viewURL)
	require.NoError(t, err)
	defer vresp.Body.Close()
	require.Equal(t, http.StatusOK, vresp.StatusCode)

	var vout map[string]any
	require.NoError(t, json.NewDecoder(vresp.Body).Decode(&vout))
	view := vout["view"].(map[string]any)
	require.Equal(t, "citizen", view["role"])
}

func TestViewRejectsBadToken(t *testing.T) {
	srv := testServer(t)
	serverID, playerID, _ := createGame(t, srv)

	viewURL := fmt.Sprintf("%s/server/%s/view?playerId=%s&token=%s", srv.URL, serverID, playerID, "wrong")
	resp, err := http.Get(viewURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestJoinFullServer(t *testing.T) {
	srv := testServer(t)
	serverID, _, _ := createGame(t, srv)

	for i := 0; i < 2; i++ {
		resp, _ := postJSON(t, srv.URL+"/server/"+serverID+"/join", map[string]string{
			"playerName": fmt.Sprintf("p%d", i), "playerRole": "citizen",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ := postJSON(t, srv.URL+"/server/"+serverID+"/join", map[string]string{
		"playerName": "late", "playerRole": "citizen",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestActionPendingLimit(t *testing.T) {
	srv := testServer(t)
	serverID, _, _ := createGame(t, srv)

	resp, out := postJSON(t, srv.URL+"/server/"+serverID+"/join", map[string]string{
		"playerName": "worker", "playerRole": "citizen",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	playerID := out["playerId"].(string)
	token := out["playerToken"].(string)

	submit := func() (*http.Response, map[string]any) {
		return postJSON(t, srv.URL+"/server/"+serverID+"/action", map[string]any{
			"playerId": playerID, "playerToken": token,
			"action": map[string]any{"action_type": "work"},
		})
	}

	for i := 1; i <= 5; i++ {
		resp, out := submit()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, float64(i), out["pendingCount"])
	}
	// The sixth is rejected with a distinct rate-limit error.
	resp6, _ := submit()
	require.Equal(t, http.StatusTooManyRequests, resp6.StatusCode)

	sresp, err := http.Get(srv.URL + "/server/" + serverID + "/status")
	require.NoError(t, err)
	defer sresp.Body.Close()
	var status map[string]any
	require.NoError(t, json.NewDecoder(sresp.Body).Decode(&status))
	for _, row := range status["players"].([]any) {
		p := row.(map[string]any)
		if p["id"] == playerID {
			require.Equal(t, float64(5), p["pending_actions"])
		}
	}
}

func TestActionWrongRole(t *testing.T) {
	srv := testServer(t)
	serverID, playerID, token := createGame(t, srv)

	// The founder is a politician; "work" is a citizen action.
	resp, _ := postJSON(t, srv.URL+"/server/"+serverID+"/action", map[string]any{
		"playerId": playerID, "playerToken": token,
		"action": map[string]any{"action_type": "work"},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusUnknownGame(t *testing.T) {
	srv := testServer(t)
	resp, err := http.Get(srv.URL + "/server/nope/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, false, out["initialized"])
}

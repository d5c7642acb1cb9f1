package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"zerozero/internal/app"
	"zerozero/pkg/config"
	"zerozero/pkg/events"
	"zerozero/pkg/store"
	"zerozero/pkg/transport"
)

const testAPIKey = "gw-test-key"

func newTestServer(t *testing.T) (*httptest.Server, *app.App, events.Bus) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	bus := events.NewFanOut()
	cfg := &config.Config{}
	cfg.Security.APIKey = testAPIKey

	a, err := app.New(app.Options{
		Config:    cfg,
		Store:     s,
		Transport: transport.NewMem(transport.NewHub(), "feed0000beef0000feed0000beef0000"),
		Bus:       bus,
	})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(a.Stop)

	srv := httptest.NewServer(New(a, bus, cfg, "", t.TempDir()).Router())
	t.Cleanup(srv.Close)
	return srv, a, bus
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body interface{}) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]json.RawMessage{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealthzOpenWithoutKey(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIKeyRequired(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := srv.Client().Get(srv.URL + "/v1/whoami")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWhoami(t *testing.T) {
	srv, a, _ := newTestServer(t)
	resp, body := doJSON(t, srv, http.MethodGet, "/v1/whoami", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var number string
	require.NoError(t, json.Unmarshal(body["number"], &number))
	require.Equal(t, a.Number(), number)
	require.True(t, strings.HasPrefix(number, "0x0-"))
}

func TestPinLifecycle(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, body := doJSON(t, srv, http.MethodPost, "/v1/pins", map[string]string{
		"value": "abc123", "label": "work",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var pin struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	}
	require.NoError(t, json.Unmarshal(body["pin"], &pin))
	require.Equal(t, "abc123", pin.Value)

	var uri string
	require.NoError(t, json.Unmarshal(body["uri"], &uri))
	require.True(t, strings.HasPrefix(uri, "0x0://"))
	require.True(t, strings.HasSuffix(uri, "/abc123"))

	// duplicate live value is rejected
	resp, _ = doJSON(t, srv, http.MethodPost, "/v1/pins", map[string]string{"value": "abc123"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodPut, "/v1/pins/"+pin.ID+"/label", map[string]string{"label": "home"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, srv, http.MethodPost, "/v1/pins/"+pin.ID+"/rotate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rotated struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	}
	require.NoError(t, json.Unmarshal(body["pin"], &rotated))
	require.Equal(t, pin.ID, rotated.ID)
	require.NotEqual(t, "abc123", rotated.Value)

	resp, _ = doJSON(t, srv, http.MethodDelete, "/v1/pins/"+pin.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodDelete, "/v1/pins/pin-missing", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSendQueuesWhenPeerOffline(t *testing.T) {
	srv, _, _ := newTestServer(t)

	_, body := doJSON(t, srv, http.MethodPost, "/v1/contacts", map[string]string{
		"number": "0x0-123-4567-8901", "pin": "cafe01", "label": "bob",
	})
	var contact struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body["contact"], &contact))

	resp, body := doJSON(t, srv, http.MethodPost, "/v1/contacts/"+contact.ID+"/messages", map[string]string{
		"content": "hello out there",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var msg struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body["message"], &msg))
	require.Equal(t, "queued", msg.Status)

	resp, body = doJSON(t, srv, http.MethodGet, "/v1/queue", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var items []struct {
		TheirNumber string `json:"theirNumber"`
	}
	require.NoError(t, json.Unmarshal(body["items"], &items))
	require.Len(t, items, 1)
	require.Equal(t, "0x0-123-4567-8901", items[0].TheirNumber)
}

func TestThreadMessagesAndRead(t *testing.T) {
	srv, a, _ := newTestServer(t)

	_, body := doJSON(t, srv, http.MethodPost, "/v1/pins", map[string]string{"value": "deed42"})
	var pin struct {
		Value string `json:"value"`
	}
	require.NoError(t, json.Unmarshal(body["pin"], &pin))

	_, err := a.SendToPin(pin.Value, "", "first", "loc-1")
	require.NoError(t, err)

	resp, body := doJSON(t, srv, http.MethodGet, "/v1/threads/"+pin.Value+"/messages", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msgs []struct {
		Content string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(body["messages"], &msgs))
	require.Len(t, msgs, 1)
	require.Equal(t, "first", msgs[0].Content)

	resp, _ = doJSON(t, srv, http.MethodPost, "/v1/threads/"+pin.Value+"/read", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestContactListAndRemove(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, _ := doJSON(t, srv, http.MethodPost, "/v1/contacts", map[string]string{
		"number": "0x0-222-3333-4444", "pin": "beef00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, srv, http.MethodGet, "/v1/contacts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var contacts []struct {
		ID          string `json:"id"`
		TheirNumber string `json:"theirNumber"`
	}
	require.NoError(t, json.Unmarshal(body["contacts"], &contacts))
	require.Len(t, contacts, 1)

	resp, _ = doJSON(t, srv, http.MethodDelete, "/v1/contacts/"+contacts[0].ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = doJSON(t, srv, http.MethodGet, "/v1/contacts", nil)
	contacts = contacts[:0]
	require.NoError(t, json.Unmarshal(body["contacts"], &contacts))
	require.Len(t, contacts, 0)
}

func TestContactRelabel(t *testing.T) {
	srv, _, _ := newTestServer(t)

	_, body := doJSON(t, srv, http.MethodPost, "/v1/contacts", map[string]string{
		"number": "0x0-555-6666-7777", "pin": "dead11",
	})
	var contact struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body["contact"], &contact))

	resp, body := doJSON(t, srv, http.MethodPut, "/v1/contacts/"+contact.ID+"/label", map[string]string{"label": "carol"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated struct {
		Label string `json:"label"`
	}
	require.NoError(t, json.Unmarshal(body["contact"], &updated))
	require.Equal(t, "carol", updated.Label)
}

func TestMaintenanceSweep(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, body := doJSON(t, srv, http.MethodPost, "/v1/maintenance/sweep?dry_run=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report struct {
		DryRun bool `json:"dry_run"`
	}
	require.NoError(t, json.Unmarshal(body["report"], &report))
	require.True(t, report.DryRun)
}

func TestBadSendRejected(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, _ := doJSON(t, srv, http.MethodPost, "/v1/messages", map[string]string{
		"pin": "nope99", "content": "hi",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebsocketInitRoundTrip(t *testing.T) {
	srv, _, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?key=" + testAPIKey
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "init"}))

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	sawInit := false
	for i := 0; i < 8 && !sawInit; i++ {
		var ev struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		if ev.Event == "init" {
			var payload struct {
				Number string `json:"number"`
			}
			require.NoError(t, json.Unmarshal(ev.Data, &payload))
			require.True(t, strings.HasPrefix(payload.Number, "0x0-"))
			sawInit = true
		}
	}
	require.True(t, sawInit, "init event not received over websocket")
}

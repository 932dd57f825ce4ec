package monitor

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RoverDrive/internal/model"
)

type fakeScans struct {
	reports []model.ScanReport
	limit   int
}

func (f *fakeScans) ScanReports(limit int) ([]model.ScanReport, error) {
	f.limit = limit
	return f.reports, nil
}

type fakeControls struct {
	mu    sync.Mutex
	cmd   model.DriveCommand
	goals []model.AutoGoal
}

func (f *fakeControls) SetCommand(cmd model.DriveCommand) {
	f.mu.Lock()
	f.cmd = cmd
	f.mu.Unlock()
}

func (f *fakeControls) ApplyGoal(g model.AutoGoal) {
	f.mu.Lock()
	f.goals = append(f.goals, g)
	f.mu.Unlock()
}

func testStatus() Status {
	return Status{
		VehicleID: "rover-1",
		Telemetry: model.Telemetry{VehicleID: "rover-1", Mag: 90},
		Route:     []model.Destination{{Lat: 1, Lng: 2}},
	}
}

func TestStatusAndScans(t *testing.T) {
	scans := &fakeScans{reports: []model.ScanReport{{Heading: 320, Resolved: true}}}
	hub := NewHub("", testStatus, scans, nil)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	assert.Equal(t, "rover-1", st.VehicleID)
	assert.Equal(t, 90.0, st.Telemetry.Mag)
	assert.Len(t, st.Route, 1)

	resp, err = http.Get(srv.URL + "/api/scans?limit=3")
	require.NoError(t, err)
	var reports []model.ScanReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reports))
	resp.Body.Close()
	assert.Equal(t, 3, scans.limit)
	require.Len(t, reports, 1)
	assert.Equal(t, 320.0, reports[0].Heading)

	resp, err = http.Get(srv.URL + "/api/scans?limit=x")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDisabledEndpoints(t *testing.T) {
	srv := httptest.NewServer(NewHub("", testStatus, nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/scans")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/drive", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestControlEndpoints(t *testing.T) {
	ctl := &fakeControls{}
	hub := NewHub("", testStatus, nil, ctl)
	var hooked []model.AutoGoal
	hub.OnGoal = func(g model.AutoGoal) { hooked = append(hooked, g) }
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	body, _ := json.Marshal(model.DriveCommand{Throttle: 40, Turn: -10})
	resp, err := http.Post(srv.URL+"/api/drive", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 40.0, ctl.cmd.Throttle)
	assert.Equal(t, -10.0, ctl.cmd.Turn)

	body, _ = json.Marshal(model.AutoGoal{MoreDestinations: true, Destination: model.Destination{Lat: 5, Lng: 6}})
	resp, err = http.Post(srv.URL+"/api/goal", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, ctl.goals, 1)
	assert.True(t, ctl.goals[0].MoreDestinations)
	require.Len(t, hooked, 1)
	assert.Equal(t, model.Destination{Lat: 5, Lng: 6}, hooked[0].Destination)

	resp, err = http.Get(srv.URL + "/api/goal")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/drive", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStopBeforeStartDoesNotListen(t *testing.T) {
	hub := NewHub("127.0.0.1:0", testStatus, nil, nil)
	hub.Stop()

	done := make(chan error, 1)
	go func() { done <- hub.Start() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		hub.Stop()
		t.Fatal("hub kept listening after Stop")
	}
}

func TestBroadcastReachesWebsocketClients(t *testing.T) {
	hub := NewHub("", testStatus, nil, nil)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(model.Telemetry{VehicleID: "rover-1", Heading: 123})

	var got model.Telemetry
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, 123.0, got.Heading)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

type fakeToken struct {
	err   error
	stuck bool
}

func (t *fakeToken) Wait() bool                     { return !t.stuck }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.stuck }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.stuck {
		close(ch)
	}
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeClient struct {
	topic        string
	payload      []byte
	token        *fakeToken
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topic = topic
	c.payload = payload.([]byte)
	return c.token
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func TestPublisher(t *testing.T) {
	client := &fakeClient{token: &fakeToken{}}
	p := newPublisher(client, "rover/telemetry")

	require.NoError(t, p.Publish(model.Telemetry{VehicleID: "rover-1", Mag: 12}))
	assert.Equal(t, "rover/telemetry", client.topic)
	var got model.Telemetry
	require.NoError(t, json.Unmarshal(client.payload, &got))
	assert.Equal(t, 12.0, got.Mag)

	client.token = &fakeToken{stuck: true}
	assert.ErrorIs(t, p.Publish(model.Telemetry{}), ErrPublishTimeout)

	boom := errors.New("boom")
	client.token = &fakeToken{err: boom}
	assert.ErrorIs(t, p.Publish(model.Telemetry{}), boom)

	p.Close()
	assert.True(t, client.disconnected)
}

package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/robotalks/canlog/pkg/datalog"
	"github.com/robotalks/canlog/pkg/node"
)

type fakeDevice struct {
	logging bool
}

func (d *fakeDevice) Status() node.Status {
	st := node.Status{ID: "n1", Mode: "normal", Storage: true}
	st.Log.Running = d.logging
	if d.logging {
		st.Log.File = "LOG_0001.BIN"
	}
	for i, v := range []float64{1.5, 2.5, -3.5, 4} {
		st.Lengths = append(st.Lengths, node.Length{ID: uint8(3 + i), Value: v, Valid: true})
	}
	return st
}

func (d *fakeDevice) StartLog() error {
	if d.logging {
		return datalog.ErrRunning
	}
	d.logging = true
	return nil
}

func (d *fakeDevice) StopLog() error {
	if !d.logging {
		return datalog.ErrNotRunning
	}
	d.logging = false
	return nil
}

func (d *fakeDevice) Files() ([]datalog.FileInfo, error) {
	return []datalog.FileInfo{{Name: "LOG_0000.BIN", Size: 5}}, nil
}

func (d *fakeDevice) OpenFile(name string) (io.ReadCloser, error) {
	if name != "LOG_0000.BIN" {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader("SDLG\x01")), nil
}

type echoExecutor struct{}

func (echoExecutor) Exec(_ context.Context, line string) (string, error) {
	if line == "" {
		return "", errors.New("empty")
	}
	return "ran " + line, nil
}

func newTestServer() (*Server, *fakeDevice) {
	dev := &fakeDevice{}
	s := NewServer("", dev, echoExecutor{})
	s.Clock = func() time.Time { return time.UnixMilli(1234) }
	s.LiveInterval = time.Millisecond
	return s, dev
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestStatusAndLive(t *testing.T) {
	s, _ := newTestServer()
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	var st StatusReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.Equal(t, "idle", st.Status)
	require.Equal(t, Firmware, st.Firmware)
	require.Equal(t, "n1", st.Node.ID)

	w = do(t, h, http.MethodGet, "/api/live", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"live":[{"t":1234,"fl":1.5,"fr":2.5,"rl":-3.5,"rr":4}]}`, w.Body.String())

	w = do(t, h, http.MethodPost, "/api/status", "")
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestLogControl(t *testing.T) {
	s, dev := newTestServer()
	h := s.Handler()

	w := do(t, h, http.MethodPost, "/api/log/start", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, dev.logging)
	var st StatusReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.Equal(t, "logging", st.Status)
	require.Equal(t, "LOG_0001.BIN", st.Session)

	w = do(t, h, http.MethodPost, "/api/log/start", "")
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), datalog.ErrRunning.Error())

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/log/stop", "").Code)
	require.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/log/stop", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/log/rotate", "").Code)
}

func TestFiles(t *testing.T) {
	s, _ := newTestServer()
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/api/files", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[{"name":"LOG_0000.BIN","size":5}]`, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/files/LOG_0000.BIN", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []byte("SDLG\x01"), w.Body.Bytes())

	w = do(t, h, http.MethodGet, "/api/files/LOG_0042.BIN", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommand(t *testing.T) {
	s, _ := newTestServer()
	h := s.Handler()

	w := do(t, h, http.MethodPost, "/api/cmd", " zeroall\n")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"output":"ran zeroall"}`, w.Body.String())

	w = do(t, h, http.MethodPost, "/api/cmd", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLiveFeed(t *testing.T) {
	s, _ := newTestServer()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, err := websocket.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/live/ws", "", ts.URL)
	require.NoError(t, err)
	defer conn.Close()
	for i := 0; i < 3; i++ {
		var smp Sample
		require.NoError(t, websocket.JSON.Receive(conn, &smp))
		require.Equal(t, Sample{T: 1234, FL: 1.5, FR: 2.5, RL: -3.5, RR: 4}, smp)
	}
}

func TestRun(t *testing.T) {
	s, _ := newTestServer()
	s.Addr = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	cancel()
	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)

	s.Addr = "bad address"
	require.Error(t, s.Run(context.Background()))
}

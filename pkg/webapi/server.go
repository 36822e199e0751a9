// Package webapi serves the node status and live measurements to the web
// UI over HTTP.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"golang.org/x/net/websocket"

	"github.com/robotalks/canlog/pkg/datalog"
	"github.com/robotalks/canlog/pkg/node"
)

// Device is the node surface the API exposes.
type Device interface {
	Status() node.Status
	StartLog() error
	StopLog() error
	Files() ([]datalog.FileInfo, error)
	OpenFile(name string) (io.ReadCloser, error)
}

// Executor runs console command lines.
type Executor interface {
	Exec(ctx context.Context, line string) (string, error)
}

// StatusReply is the body of GET /api/status.
type StatusReply struct {
	Status   string      `json:"status"`
	Session  string      `json:"session,omitempty"`
	Firmware string      `json:"firmware"`
	Message  string      `json:"message,omitempty"`
	Node     node.Status `json:"node"`
}

// Sample is one set of suspension lengths: front left, front right, rear
// left and rear right are encoders 3 to 6.
type Sample struct {
	T  int64   `json:"t"`
	FL float64 `json:"fl"`
	FR float64 `json:"fr"`
	RL float64 `json:"rl"`
	RR float64 `json:"rr"`
}

// LiveReply is the body of GET /api/live.
type LiveReply struct {
	Live []Sample `json:"live"`
}

// Firmware identifies the software in status replies.
const Firmware = "canlog"

// Server is the HTTP API.
type Server struct {
	Addr     string
	Device   Device
	Executor Executor
	// LiveInterval is the sample period of the live websocket feed.
	LiveInterval time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, dev Device, exec Executor) *Server {
	return &Server{
		Addr:         addr,
		Device:       dev,
		Executor:     exec,
		LiveInterval: 200 * time.Millisecond,
		Clock:        time.Now,
	}
}

// Name implements framework.Named.
func (s *Server) Name() string {
	return "webapi"
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.getStatus).Methods(http.MethodGet)
	api.HandleFunc("/live", s.getLive).Methods(http.MethodGet)
	api.Handle("/live/ws", websocket.Handler(s.serveLive))
	api.HandleFunc("/log/{action:start|stop}", s.postLog).Methods(http.MethodPost)
	api.HandleFunc("/files", s.getFiles).Methods(http.MethodGet)
	api.HandleFunc("/files/{name}", s.getFile).Methods(http.MethodGet)
	if s.Executor != nil {
		api.HandleFunc("/cmd", s.postCmd).Methods(http.MethodPost)
	}
	api.Use(corsMiddleware)
	return r
}

// Run implements framework.Runnable.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	server := &http.Server{Handler: s.Handler()}
	glog.Infof("webapi: listening on %s", ln.Addr())
	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ln) }()
	select {
	case err = <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		glog.Warningf("webapi: shutdown: %v", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Warningf("webapi: write reply: %v", err)
	}
}

type errorReply struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, &errorReply{Error: err.Error()})
}

func (s *Server) status() StatusReply {
	st := s.Device.Status()
	reply := StatusReply{Status: "idle", Firmware: Firmware, Node: st}
	switch {
	case !st.Storage:
		reply.Message = "no storage, logging disabled"
	case st.Log.Running:
		reply.Status, reply.Session = "logging", st.Log.File
	}
	return reply
}

func (s *Server) sample() Sample {
	st := s.Device.Status()
	smp := Sample{T: s.Clock().UnixMilli()}
	fields := []*float64{&smp.FL, &smp.FR, &smp.RL, &smp.RR}
	for i, l := range st.Lengths {
		if i < len(fields) {
			*fields[i] = l.Value
		}
	}
	return smp
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) getLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &LiveReply{Live: []Sample{s.sample()}})
}

func (s *Server) serveLive(conn *websocket.Conn) {
	defer conn.Close()
	ticker := time.NewTicker(s.LiveInterval)
	defer ticker.Stop()
	ctx := conn.Request().Context()
	for {
		if err := websocket.JSON.Send(conn, s.sample()); err != nil {
			glog.V(node.DebugInfo).Infof("webapi: live feed closed: %v", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) postLog(w http.ResponseWriter, r *http.Request) {
	var err error
	if mux.Vars(r)["action"] == "start" {
		err = s.Device.StartLog()
	} else {
		err = s.Device.StopLog()
	}
	switch {
	case errors.Is(err, datalog.ErrRunning), errors.Is(err, datalog.ErrNotRunning):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, datalog.ErrNoStorage):
		writeError(w, http.StatusServiceUnavailable, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, s.status())
	}
}

func (s *Server) getFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.Device.Files()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if files == nil {
		files = []datalog.FileInfo{}
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	f, err := s.Device.OpenFile(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	if _, err := io.Copy(w, f); err != nil {
		glog.Warningf("webapi: send %s: %v", name, err)
	}
}

func (s *Server) postCmd(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1024))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	line := strings.TrimSpace(string(body))
	out, err := s.Executor.Exec(r.Context(), line)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": out})
}

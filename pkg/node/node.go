// Package node wires the data-acquisition node: the CAN receive path, the
// mode gate, the encoder controller and the session logger.
package node

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/golang/glog"
	"github.com/spf13/afero"

	"github.com/robotalks/canlog/pkg/canbus"
	"github.com/robotalks/canlog/pkg/datalog"
	"github.com/robotalks/canlog/pkg/encoder"
	fx "github.com/robotalks/canlog/pkg/framework"
)

// Node is a running data-acquisition node.
type Node struct {
	Config   *Config
	ID       string
	Bus      canbus.Bus
	Storage  *datalog.FsStorage
	Logger   *datalog.Logger
	Lengths  *encoder.Lengths
	Gate     *Gate
	Receiver *Receiver
	Encoders *EncodersController

	loop    *fx.Loop
	running atomic.Bool
}

// NewNode creates a node on bus storing sessions in c.Dir of fs. A storage
// that cannot be mounted is reported and leaves the node without logging.
func (c *Config) NewNode(bus canbus.Bus, fs afero.Fs) (*Node, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	mode, _ := ParseMode(c.Mode)
	n := &Node{
		Config:  c,
		ID:      c.ID(),
		Bus:     bus,
		Lengths: &encoder.Lengths{},
	}
	var storage datalog.Storage
	if fs != nil {
		st, err := datalog.Mount(fs, c.Dir)
		if err != nil {
			glog.Errorf("storage unavailable, logging disabled: %v", err)
		} else {
			n.Storage, storage = st, st
		}
	}
	n.Logger = datalog.New(storage, c.Log)
	n.Gate = NewGate(bus, n.Logger, n.Lengths)
	n.Gate.SetMode(mode)
	n.Receiver = &Receiver{Bus: bus, Gate: n.Gate}
	n.Encoders = &EncodersController{
		Gate:            n.Gate,
		Lengths:         n.Lengths,
		PollInterval:    c.PollInterval,
		DisplayInterval: c.DisplayInterval,
		ZeroSpacing:     c.ZeroSpacing,
	}
	return n, nil
}

// AddToLoop implements framework.LoopAdder.
func (n *Node) AddToLoop(loop *fx.Loop) {
	n.loop = loop
	loop.AddRunnable(
		fx.NamedRun("writer", fx.RunFunc(n.Logger.Run)),
		n.Receiver,
	)
	loop.Add(n.Encoders)
}

// Run runs the node on its own loop until ctx is done. A running session
// is stopped on the way out so the file is complete.
func (n *Node) Run(ctx context.Context) error {
	loop := fx.NewLoop()
	loop.Add(n)
	if n.Config.AutoStart {
		if err := n.StartLog(); err != nil {
			glog.Errorf("autostart: %v", err)
		}
	}
	n.running.Store(true)
	err := loop.Run(ctx)
	n.running.Store(false)
	if n.Logger.Running() {
		if stopErr := n.Logger.Stop(); stopErr != nil {
			glog.Errorf("stop session: %v", stopErr)
		}
	}
	return err
}

// Mode returns the operating mode.
func (n *Node) Mode() Mode {
	return n.Gate.Mode()
}

// SetMode switches the operating mode.
func (n *Node) SetMode(m Mode) {
	if n.Gate.Mode() != m {
		glog.Infof("mode %s", m)
	}
	n.Gate.SetMode(m)
}

// StartLog starts a logging session.
func (n *Node) StartLog() error {
	return n.Logger.Start()
}

// StopLog stops the logging session.
func (n *Node) StopLog() error {
	return n.Logger.Stop()
}

// Zero zeroes encoder id.
func (n *Node) Zero(ctx context.Context, id uint8) error {
	if !encoder.ValidID(id) {
		return ErrInvalidEncoder
	}
	return n.sendZero(ctx, []uint8{id})
}

// ZeroAll zeroes every encoder, one after the other.
func (n *Node) ZeroAll(ctx context.Context) error {
	ids := make([]uint8, 0, encoder.Count)
	for id := uint8(encoder.FirstID); id <= encoder.LastID; id++ {
		ids = append(ids, id)
	}
	return n.sendZero(ctx, ids)
}

func (n *Node) sendZero(ctx context.Context, ids []uint8) error {
	if n.Gate.Mode() == ModeSniffer {
		return ErrSnifferMode
	}
	if !n.running.Load() || n.loop == nil {
		return ErrNotRunning
	}
	cmd := &zeroCmd{ids: ids, result: make(chan error, 1)}
	n.loop.PostMessage(cmd)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-cmd.result:
		return err
	}
}

// Files lists the stored sessions.
func (n *Node) Files() ([]datalog.FileInfo, error) {
	if n.Storage == nil {
		return nil, datalog.ErrNoStorage
	}
	return n.Storage.List()
}

// OpenFile opens a stored session for reading. name must be a plain file
// name.
func (n *Node) OpenFile(name string) (io.ReadCloser, error) {
	if n.Storage == nil {
		return nil, datalog.ErrNoStorage
	}
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("invalid file name %q", name)
	}
	return n.Storage.Open(name)
}

// Length is the reading of one encoder.
type Length struct {
	ID    uint8   `json:"id"`
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// Status is a snapshot of the node.
type Status struct {
	ID      string         `json:"id"`
	Mode    string         `json:"mode"`
	Debug   int            `json:"debug"`
	Storage bool           `json:"storage"`
	Bus     GateStats      `json:"bus"`
	Log     datalog.Status `json:"log"`
	Lengths []Length       `json:"lengths"`
}

// Status returns the current status.
func (n *Node) Status() Status {
	st := Status{
		ID:      n.ID,
		Mode:    n.Gate.Mode().String(),
		Debug:   DebugLevel(),
		Storage: n.Storage != nil,
		Bus:     n.Gate.Stats(),
		Log:     n.Logger.Status(),
	}
	for id := uint8(encoder.FirstID); id <= encoder.LastID; id++ {
		v, ok := n.Lengths.Get(id)
		st.Lengths = append(st.Lengths, Length{ID: id, Value: v, Valid: ok})
	}
	return st
}

// String formats the status for the console.
func (l Length) String() string {
	if !l.Valid {
		return fmt.Sprintf("ID %d: -", l.ID)
	}
	return fmt.Sprintf("ID %d: %.2f", l.ID, l.Value)
}

package node

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/robotalks/canlog/pkg/canbus"
	"github.com/robotalks/canlog/pkg/datalog"
)

// Mode is the operating mode of the node.
type Mode int32

// Modes.
const (
	// ModeNormal decodes encoder responses, polls the encoders and logs
	// frames as vehicle records.
	ModeNormal Mode = iota
	// ModeSniffer only listens: frames are logged raw as sniff records and
	// nothing is transmitted.
	ModeSniffer
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeSniffer:
		return "sniffer"
	}
	return "unknown"
}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return ModeNormal, nil
	case "sniffer", "sniff":
		return ModeSniffer, nil
	}
	return ModeNormal, &ModeError{Name: s}
}

// FrameHandler consumes received frames and reports whether it decoded f.
type FrameHandler interface {
	HandleFrame(f canbus.Frame) bool
}

// Gate routes received frames according to the mode and guards the
// transmit path.
type Gate struct {
	Bus     canbus.Bus
	Logger  *datalog.Logger
	Decoder FrameHandler

	mode     atomic.Int32
	received atomic.Uint64
	decoded  atomic.Uint64
	txErrors atomic.Uint64
}

// NewGate creates a Gate in ModeNormal.
func NewGate(bus canbus.Bus, logger *datalog.Logger, decoder FrameHandler) *Gate {
	return &Gate{Bus: bus, Logger: logger, Decoder: decoder}
}

// Mode returns the current mode.
func (g *Gate) Mode() Mode {
	return Mode(g.mode.Load())
}

// SetMode switches the mode. It takes effect with the next frame.
func (g *Gate) SetMode(m Mode) {
	g.mode.Store(int32(m))
}

// Transmit sends f unless the gate is in sniffer mode, where it fails with
// ErrSnifferMode whatever the bus state. Otherwise the bus result is
// returned as is.
func (g *Gate) Transmit(ctx context.Context, f canbus.Frame) error {
	if g.Mode() == ModeSniffer {
		return ErrSnifferMode
	}
	err := g.Bus.Send(ctx, f)
	if err != nil {
		g.txErrors.Add(1)
	}
	return err
}

// HandleFrame routes a received frame. In sniffer mode the decoder is
// bypassed and f is logged as a sniff record; in normal mode f goes through
// the decoder and is logged as a vehicle record. It must be called from a
// single goroutine as it is the producer side of the logger.
func (g *Gate) HandleFrame(f canbus.Frame) {
	g.received.Add(1)
	if g.Mode() == ModeSniffer {
		g.log(datalog.RecordSniff, f)
		return
	}
	if g.Decoder != nil && g.Decoder.HandleFrame(f) {
		g.decoded.Add(1)
	}
	g.log(datalog.RecordVehicle, f)
}

func (g *Gate) log(typ datalog.RecordType, f canbus.Frame) {
	if g.Logger != nil {
		g.Logger.LogFrame(typ, f)
	}
}

// GateStats counts the frames seen by a Gate.
type GateStats struct {
	Received uint64 `json:"received"`
	Decoded  uint64 `json:"decoded"`
	TxErrors uint64 `json:"tx_errors"`
}

// Stats returns the counters.
func (g *Gate) Stats() GateStats {
	return GateStats{
		Received: g.received.Load(),
		Decoded:  g.decoded.Load(),
		TxErrors: g.txErrors.Load(),
	}
}

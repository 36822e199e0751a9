// Package sim simulates the suspension encoders on a CAN bus so the node
// can run without hardware.
package sim

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/canlog/pkg/canbus"
	"github.com/robotalks/canlog/pkg/encoder"
)

// Encoders answers read and zero requests for encoder ids 3..6. Each
// encoder follows a sine around its own rest position.
type Encoders struct {
	Bus canbus.Bus
	// Clock returns the simulation time. Defaults to time.Now.
	Clock func() time.Time
	// Amplitude is the travel in raw counts.
	Amplitude float64
	// Period of one oscillation.
	Period time.Duration

	lock    sync.Mutex
	epoch   time.Time
	offsets [encoder.Count]int32
	reads   int
}

// New creates a simulator on bus.
func New(bus canbus.Bus) *Encoders {
	return &Encoders{
		Bus:       bus,
		Clock:     time.Now,
		Amplitude: 2000,
		Period:    2 * time.Second,
	}
}

// Name implements framework.Named.
func (s *Encoders) Name() string {
	return "sim-encoders"
}

// Run implements framework.Runnable.
func (s *Encoders) Run(ctx context.Context) error {
	for {
		f, err := s.Bus.Receive(ctx)
		if err != nil {
			if errors.Is(err, canbus.ErrClosed) {
				return nil
			}
			return err
		}
		if reply, ok := s.Handle(f); ok {
			if err := s.Bus.Send(ctx, reply); err != nil {
				glog.V(2).Infof("sim: reply %s: %v", reply, err)
			}
		}
	}
}

// Handle processes one request and returns the reply, if any.
func (s *Encoders) Handle(f canbus.Frame) (canbus.Frame, bool) {
	if f.Len != 3 || f.Data[0] != 0x03 {
		return canbus.Frame{}, false
	}
	id := f.Data[1]
	if !encoder.ValidID(id) || uint32(id) != f.ID {
		return canbus.Frame{}, false
	}
	switch encoder.Func(f.Data[2]) {
	case encoder.FuncRead:
		var data [7]byte
		data[0], data[1], data[2] = 0x07, id, byte(encoder.FuncRead)
		binary.LittleEndian.PutUint32(data[3:], uint32(s.Position(id)))
		s.lock.Lock()
		s.reads++
		s.lock.Unlock()
		return canbus.MustFrame(uint32(id), data[:]), true
	case encoder.FuncZero:
		s.lock.Lock()
		s.offsets[id-encoder.FirstID] += s.rawLocked(id)
		s.lock.Unlock()
		return canbus.MustFrame(uint32(id), []byte{0x04, id, byte(encoder.FuncZero), 0}), true
	}
	return canbus.Frame{}, false
}

// Position returns the current raw count of encoder id relative to its
// zero point.
func (s *Encoders) Position(id uint8) int32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.rawLocked(id)
}

// Reads returns the number of read requests answered.
func (s *Encoders) Reads() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.reads
}

func (s *Encoders) rawLocked(id uint8) int32 {
	now := s.Clock()
	if s.epoch.IsZero() {
		s.epoch = now
	}
	idx := int(id - encoder.FirstID)
	phase := float64(idx) * math.Pi / 2
	var v float64
	if s.Period > 0 {
		v = s.Amplitude * math.Sin(2*math.Pi*now.Sub(s.epoch).Seconds()/s.Period.Seconds()+phase)
	}
	return int32(math.Round(v)) - s.offsets[idx]
}

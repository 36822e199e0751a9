package node

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/canlog/pkg/canbus"
	"github.com/robotalks/canlog/pkg/datalog"
	"github.com/robotalks/canlog/pkg/encoder"
)

type fakeBus struct {
	sent []canbus.Frame
	err  error
}

func (b *fakeBus) Send(_ context.Context, f canbus.Frame) error {
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, f)
	return nil
}

func (b *fakeBus) Receive(ctx context.Context) (canbus.Frame, error) {
	<-ctx.Done()
	return canbus.Frame{}, ctx.Err()
}

func (b *fakeBus) Close() error { return nil }

func TestParseMode(t *testing.T) {
	testCases := []struct {
		in   string
		mode Mode
		ok   bool
	}{
		{"normal", ModeNormal, true},
		{"Sniffer", ModeSniffer, true},
		{" sniff ", ModeSniffer, true},
		{"monitor", ModeNormal, false},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			m, err := ParseMode(tc.in)
			if !tc.ok {
				var merr *ModeError
				require.ErrorAs(t, err, &merr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.mode, m)
			require.Equal(t, m, must(ParseMode(m.String())))
		})
	}
}

func must(m Mode, err error) Mode {
	if err != nil {
		panic(err)
	}
	return m
}

func TestGateTransmit(t *testing.T) {
	errBusOff := errors.New("bus off")
	testCases := []struct {
		name   string
		mode   Mode
		busErr error
		expect error
	}{
		{"normal ok", ModeNormal, nil, nil},
		{"normal bus error", ModeNormal, errBusOff, errBusOff},
		{"sniffer healthy bus", ModeSniffer, nil, ErrSnifferMode},
		{"sniffer failing bus", ModeSniffer, errBusOff, ErrSnifferMode},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bus := &fakeBus{err: tc.busErr}
			g := NewGate(bus, nil, nil)
			g.SetMode(tc.mode)
			err := g.Transmit(context.Background(), encoder.ReadRequest(3))
			require.Equal(t, tc.expect, err)
			if tc.mode == ModeSniffer {
				require.Empty(t, bus.sent)
				require.Zero(t, g.Stats().TxErrors)
			}
		})
	}
}

func TestGateRoutesFrames(t *testing.T) {
	fs := afero.NewMemMapFs()
	storage, err := datalog.Mount(fs, "/sd")
	require.NoError(t, err)
	cfg := datalog.DefaultConfig()
	cfg.StopGrace = 0
	logger := datalog.New(storage, cfg)
	logger.Clock = func() uint64 { return 1 }
	lengths := &encoder.Lengths{}
	g := NewGate(&fakeBus{}, logger, lengths)

	response := canbus.MustFrame(3, []byte{0x07, 3, 0x01, 0xff, 0x7f, 0, 0})
	other := canbus.MustFrame(0x321, []byte{1, 2})

	// nothing is logged without a session
	g.HandleFrame(response)
	require.NoError(t, logger.Start())
	g.HandleFrame(other)
	g.SetMode(ModeSniffer)
	g.HandleFrame(canbus.MustFrame(4, []byte{0x07, 4, 0x01, 0xff, 0x7f, 0, 0}))
	require.NoError(t, logger.Stop())

	v, seen := lengths.Get(3)
	require.True(t, seen)
	require.InDelta(t, 485, v, 1e-9)
	_, seen = lengths.Get(4)
	require.False(t, seen, "decoder is bypassed in sniffer mode")
	require.Equal(t, GateStats{Received: 3, Decoded: 1}, g.Stats())

	f, err := storage.Open("LOG_0000.BIN")
	require.NoError(t, err)
	defer f.Close()
	rd, err := datalog.NewReader(f)
	require.NoError(t, err)
	rec, err := rd.Next()
	require.NoError(t, err)
	require.Equal(t, datalog.RecordVehicle, rec.Type())
	require.Equal(t, uint32(0x321), rec.(*datalog.FrameRecord).ID)
	rec, err = rd.Next()
	require.NoError(t, err)
	require.Equal(t, datalog.RecordSniff, rec.Type())
	require.Equal(t, uint32(4), rec.(*datalog.FrameRecord).ID)
}

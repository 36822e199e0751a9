package canbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFrame(t *testing.T) {
	testCases := []struct {
		name   string
		frame  Frame
		str    string
		expect error
	}{
		{"standard", MustFrame(0x123, []byte{0xde, 0xad}), "123 [2] DE AD", nil},
		{"extended rtr", Frame{ID: 0x1abcdeff, Extended: true, RTR: true}, "1ABCDEFF [0] RTR", nil},
		{"empty", MustFrame(0x5, nil), "005 [0]", nil},
		{"std id too large", Frame{ID: 0x800}, "", ErrInvalidID},
		{"ext id too large", Frame{ID: 0x20000000, Extended: true}, "", ErrInvalidID},
		{"len too large", Frame{ID: 1, Len: 9}, "", ErrInvalidLen},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, tc.frame.Validate())
			if tc.expect != nil {
				_, err := tc.frame.MarshalBinary()
				require.Equal(t, tc.expect, err)
				return
			}
			require.Equal(t, tc.str, tc.frame.String())
			b, err := tc.frame.MarshalBinary()
			require.NoError(t, err)
			require.Len(t, b, WireSize)
			var f Frame
			require.NoError(t, f.UnmarshalBinary(b))
			require.Equal(t, tc.frame, f)
		})
	}
}

func TestNewFrame(t *testing.T) {
	f, err := NewFrame(0x1234, []byte{1, 2, 3})
	require.NoError(t, err)
	require.True(t, f.Extended)
	require.Equal(t, []byte{1, 2, 3}, f.Payload())

	_, err = NewFrame(1, make([]byte, 9))
	require.Equal(t, ErrInvalidLen, err)
}

func TestLoopbackBus(t *testing.T) {
	bus := NewLoopbackBus()
	a, b, c := bus.Open(), bus.Open(), bus.Open()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	frame := MustFrame(0x10, []byte{1})
	require.NoError(t, a.Send(ctx, frame))
	for _, ep := range []Bus{b, c} {
		f, err := ep.Receive(ctx)
		require.NoError(t, err)
		require.Equal(t, frame, f)
	}

	short, stop := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer stop()
	_, err := a.Receive(short)
	require.Equal(t, context.DeadlineExceeded, err)

	require.NoError(t, c.Close())
	_, err = c.Receive(ctx)
	require.Equal(t, ErrClosed, err)
	require.Equal(t, ErrClosed, c.Send(ctx, frame))

	require.NoError(t, bus.Close())
	require.Equal(t, ErrClosed, a.Send(ctx, frame))
	_, err = b.Receive(ctx)
	require.Equal(t, ErrClosed, err)
}

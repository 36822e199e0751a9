//go:build linux

package canbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// pollTimeout bounds how long a blocked Send/Receive goes without checking
// its context.
const pollTimeout = 50 * time.Millisecond

type socketCAN struct {
	iface string
	file  *os.File
}

// DialSocketCAN opens a raw CAN socket bound to iface (e.g. "can0").
func DialSocketCAN(iface string) (Bus, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("canbus: interface %s: %w", iface, err)
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("canbus: socket: %w", err)
	}
	if err = unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("canbus: bind %s: %w", iface, err)
	}
	// A non-blocking fd is registered with the runtime poller by os.NewFile,
	// which makes read/write deadlines work.
	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &socketCAN{iface: iface, file: os.NewFile(uintptr(fd), "socketcan:"+iface)}, nil
}

func (s *socketCAN) Send(ctx context.Context, frame Frame) error {
	buf, err := frame.MarshalBinary()
	if err != nil {
		return err
	}
	for {
		if err = ctx.Err(); err != nil {
			return err
		}
		s.file.SetWriteDeadline(time.Now().Add(pollTimeout))
		n, err := s.file.Write(buf)
		switch {
		case err == nil && n != len(buf):
			return errors.New("canbus: short write")
		case err == nil:
			return nil
		case errors.Is(err, os.ErrDeadlineExceeded):
			continue
		case errors.Is(err, os.ErrClosed):
			return ErrClosed
		default:
			return err
		}
	}
}

func (s *socketCAN) Receive(ctx context.Context) (Frame, error) {
	var f Frame
	buf := make([]byte, WireSize)
	for {
		if err := ctx.Err(); err != nil {
			return f, err
		}
		s.file.SetReadDeadline(time.Now().Add(pollTimeout))
		n, err := s.file.Read(buf)
		switch {
		case err == nil && n != len(buf):
			return f, errors.New("canbus: short read")
		case err == nil:
			err = f.UnmarshalBinary(buf)
			return f, err
		case errors.Is(err, os.ErrDeadlineExceeded):
			continue
		case errors.Is(err, os.ErrClosed):
			return f, ErrClosed
		default:
			return f, err
		}
	}
}

func (s *socketCAN) Close() error {
	return s.file.Close()
}

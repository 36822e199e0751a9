package node

import (
	"context"
	"errors"

	"github.com/golang/glog"

	"github.com/robotalks/canlog/pkg/canbus"
)

// Receiver is the receive path: it reads frames from the bus and hands them
// to the gate. It is the only producer of the logger and never touches
// storage.
type Receiver struct {
	Bus  canbus.Bus
	Gate *Gate
}

// Name implements framework.Named.
func (r *Receiver) Name() string {
	return "receiver"
}

// Run implements framework.Runnable.
func (r *Receiver) Run(ctx context.Context) error {
	for {
		f, err := r.Bus.Receive(ctx)
		if err != nil {
			if errors.Is(err, canbus.ErrClosed) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if glog.V(DebugVerbose) {
			glog.Infof("rx %s", f)
		}
		r.Gate.HandleFrame(f)
	}
}

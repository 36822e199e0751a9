package node

import (
	"context"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/canlog/pkg/framework"
	"github.com/robotalks/canlog/pkg/encoder"
)

// zeroCmd asks the encoders controller to zero ids.
type zeroCmd struct {
	ids    []uint8
	result chan error
}

// EncodersController polls the encoders, executes zero commands and reports
// the measured lengths. All its transmissions go through the gate from the
// loop goroutine.
type EncodersController struct {
	Gate            *Gate
	Lengths         *encoder.Lengths
	PollInterval    time.Duration
	DisplayInterval time.Duration
	ZeroSpacing     time.Duration

	lastPoll time.Time
}

// AddToLoop implements framework.LoopAdder.
func (c *EncodersController) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvControl, c)
	if c.DisplayInterval > 0 {
		loop.AddController(fx.PrLvPostProc, fx.Every(c.DisplayInterval, fx.ControlFunc(c.display)))
	}
}

// Control implements framework.Controller.
func (c *EncodersController) Control(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		if cmd, ok := mc.CurrentMessage().(*zeroCmd); ok {
			mc.MessageTaken()
			cmd.result <- c.zero(cc.Context(), cmd.ids)
		}
	}))
	if c.Gate.Mode() != ModeNormal {
		return nil
	}
	if now := cc.Time(); c.lastPoll.IsZero() || now.Sub(c.lastPoll) >= c.PollInterval {
		c.lastPoll = now
		return c.poll(cc.Context())
	}
	return nil
}

func (c *EncodersController) poll(ctx context.Context) error {
	for id := uint8(encoder.FirstID); id <= encoder.LastID; id++ {
		if err := c.Gate.Transmit(ctx, encoder.ReadRequest(id)); err != nil {
			glog.V(DebugInfo).Infof("poll encoder %d: %v", id, err)
		}
	}
	return nil
}

func (c *EncodersController) zero(ctx context.Context, ids []uint8) error {
	for n, id := range ids {
		if n > 0 && c.ZeroSpacing > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.ZeroSpacing):
			}
		}
		glog.Infof("zeroing encoder %d", id)
		if err := c.Gate.Transmit(ctx, encoder.ZeroRequest(id)); err != nil {
			return err
		}
	}
	return nil
}

func (c *EncodersController) display(fx.ControlContext) error {
	if glog.V(DebugInfo) {
		v := c.Lengths.Snapshot()
		glog.Infof("measured lengths: 3=%.2f 4=%.2f 5=%.2f 6=%.2f", v[0], v[1], v[2], v[3])
	}
	return nil
}

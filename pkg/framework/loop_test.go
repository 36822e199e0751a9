package framework

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	lock  sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.lock.Lock()
	r.calls = append(r.calls, s)
	r.lock.Unlock()
}

func (r *recorder) ctl(name string) Controller {
	return ControlFunc(func(ControlContext) error {
		r.add(name)
		return nil
	})
}

func newIteration(l *Loop) *loopIteration {
	iter := &loopIteration{loopCtl: loopCtl{l}, time: time.Now(), ctx: context.Background()}
	return iter
}

func TestLoopPriorityOrder(t *testing.T) {
	var rec recorder
	l := NewLoop()
	l.AddController(PrLvPostProc, rec.ctl("post"))
	l.AddController(PrLvSense, rec.ctl("sense"))
	l.AddController(PrLvControl, rec.ctl("control1"), rec.ctl("control2"))
	l.PreRunAt(PrLvControl, rec.ctl("pre"))
	l.PostRunAt(PrLvSense, rec.ctl("hook"))

	l.runIteration(context.Background())
	require.Equal(t, []string{"sense", "hook", "pre", "control1", "control2", "post"}, rec.calls)

	rec.calls = nil
	l.runIteration(context.Background())
	require.Equal(t, []string{"sense", "control1", "control2", "post"}, rec.calls)
}

func TestLoopMessages(t *testing.T) {
	l := NewLoop()
	var got []Message
	l.AddController(PrLvSense, ControlFunc(func(cc ControlContext) error {
		cc.Messages().ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
			if n, ok := mc.CurrentMessage().(int); ok && n%2 == 0 {
				mc.MessageTaken()
				got = append(got, n)
			}
		}))
		return nil
	}))
	l.AddController(PrLvControl, ControlFunc(func(cc ControlContext) error {
		cc.Messages().ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
			mc.MessageTaken()
			got = append(got, mc.CurrentMessage())
			if mc.CurrentMessage() == 3 {
				mc.StopProcessing()
			}
		}))
		return nil
	}))
	for i := 1; i <= 5; i++ {
		l.PostMessage(i)
	}
	l.runIteration(context.Background())
	require.Equal(t, []Message{2, 4, 1, 3}, got)

	// unhandled messages do not survive the iteration
	got = nil
	l.runIteration(context.Background())
	require.Empty(t, got)
}

func TestMessageStoreAddMessages(t *testing.T) {
	iter := newIteration(NewLoop())
	iter.AddMessages("a", "b")
	var seen []Message
	iter.ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
		seen = append(seen, mc.CurrentMessage())
		if mc.CurrentMessage() == "a" {
			mc.MessageTaken()
			mc.AddMessages("c")
		}
	}))
	require.Equal(t, []Message{"a", "b"}, seen)
	seen = nil
	iter.ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
		seen = append(seen, mc.CurrentMessage())
	}))
	require.Equal(t, []Message{"b", "c"}, seen)
}

func TestEvery(t *testing.T) {
	var count int
	ctl := Every(time.Second, ControlFunc(func(ControlContext) error {
		count++
		return nil
	}))
	iter := newIteration(NewLoop())
	start := iter.time
	for _, offset := range []time.Duration{0, 100 * time.Millisecond, 999 * time.Millisecond, time.Second, 1500 * time.Millisecond, 2 * time.Second} {
		iter.time = start.Add(offset)
		require.NoError(t, ctl.Control(iter))
	}
	require.Equal(t, 3, count)
}

func TestLoopRun(t *testing.T) {
	l := NewLoop()
	l.Interval = time.Millisecond
	iterCh := make(chan uint64, 1)
	l.AddController(PrLvNormal, ControlFunc(func(cc ControlContext) error {
		select {
		case iterCh <- cc.Iteration():
		default:
		}
		return nil
	}))
	started := make(chan LoopControl, 1)
	l.AddRunnable(RunFunc(func(ctx context.Context) error {
		started <- LoopCtlFrom(ctx)
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	require.NotNil(t, <-started)
	require.NotZero(t, <-iterCh)
	cancel()
	require.Equal(t, context.Canceled, <-errCh)
}

func TestRunnerAggregatesErrors(t *testing.T) {
	errBoom := errors.New("boom")
	r := NewRunner()
	r.Go(
		NamedRun("fail", RunFunc(func(context.Context) error { return errBoom })),
		RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
		RunFunc(func(context.Context) error { return nil }),
	)
	err := r.Wait()
	require.Error(t, err)
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, "boom", err.Error())
}

func TestRunWithContextCloser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	closer := &chanCloser{ch: make(chan struct{})}
	errCh := make(chan error, 1)
	go func() {
		errCh <- RunWithContextCloser(ctx, closer, func() error {
			<-closer.ch
			return errors.New("closed")
		})
	}()
	cancel()
	require.Equal(t, context.Canceled, <-errCh)
	require.Equal(t, 1, closer.count)

	closer = &chanCloser{ch: make(chan struct{})}
	require.NoError(t, RunWithContextCloser(context.Background(), closer, func() error { return nil }))
	require.Equal(t, 1, closer.count)
}

type chanCloser struct {
	ch    chan struct{}
	count int
}

func (c *chanCloser) Close() error {
	c.count++
	if c.count == 1 {
		close(c.ch)
	}
	return nil
}

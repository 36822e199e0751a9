package datalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/canlog/pkg/canbus"
)

// Config tunes a Logger.
type Config struct {
	// BufferSize is the ring capacity in bytes. It must exceed the largest
	// record; it does not affect the file format.
	BufferSize int `yaml:"buffer_size"`
	// ChunkSize bounds a single drain.
	ChunkSize int `yaml:"chunk_size"`
	// IdleInterval is the writer sleep while no session runs.
	IdleInterval time.Duration `yaml:"idle_interval"`
	// DrainInterval is the writer sleep when the ring is empty.
	DrainInterval time.Duration `yaml:"drain_interval"`
	// StopGrace lets an in-flight drain finish before the file is closed.
	StopGrace time.Duration `yaml:"stop_grace"`
	// MaxFiles is the number of file name indices tried by Start.
	MaxFiles int `yaml:"max_files"`
	// NamePattern formats the file index into a file name.
	NamePattern string `yaml:"name_pattern"`
}

// DefaultConfig returns the defaults: a 32 kB ring drained in 512 byte
// chunks into LOG_0000.BIN .. LOG_9999.BIN.
func DefaultConfig() Config {
	return Config{
		BufferSize:    32 * 1024,
		ChunkSize:     512,
		IdleInterval:  50 * time.Millisecond,
		DrainInterval: 5 * time.Millisecond,
		StopGrace:     50 * time.Millisecond,
		MaxFiles:      10000,
		NamePattern:   "LOG_%04d.BIN",
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BufferSize <= 0 {
		c.BufferSize = def.BufferSize
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = def.IdleInterval
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = def.DrainInterval
	}
	if c.StopGrace < 0 {
		c.StopGrace = 0
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = def.MaxFiles
	}
	if c.NamePattern == "" {
		c.NamePattern = def.NamePattern
	}
	return c
}

// Status is a snapshot of the logger diagnostics.
type Status struct {
	Running     bool   `json:"running"`
	File        string `json:"file,omitempty"`
	Dropped     uint32 `json:"dropped"`
	WriteErrors uint32 `json:"write_errors"`
	Buffered    int    `json:"buffered"`
	Free        int    `json:"free"`
}

// Logger owns a logging session: the ring, the running flag, the open
// session file and the counters.
//
// Push, LogFrame and LogSensor form the producer side and must be called
// from a single goroutine. Run is the writer task and must run in exactly
// one goroutine. Start, Stop and the diagnostics may be called from
// anywhere.
type Logger struct {
	// Clock returns the capture timestamp in microseconds. It must be
	// monotonic.
	Clock func() uint64

	cfg     Config
	storage Storage
	ring    *Ring

	running     atomic.Bool
	dropped     atomic.Uint32
	writeErrors atomic.Uint32

	ctlLock  sync.Mutex // serializes Start/Stop
	sinkLock sync.Mutex // consumer side: sink, file and draining
	sink     Sink
	file     string
}

// New creates a Logger writing to storage. A nil storage yields a logger
// whose Start always fails with ErrNoStorage.
func New(storage Storage, cfg Config) *Logger {
	cfg = cfg.withDefaults()
	epoch := time.Now()
	return &Logger{
		Clock:   func() uint64 { return uint64(time.Since(epoch).Microseconds()) },
		cfg:     cfg,
		storage: storage,
		ring:    NewRing(cfg.BufferSize),
	}
}

// Config returns the effective configuration.
func (l *Logger) Config() Config {
	return l.cfg
}

// Start opens the next unused session file, writes the header and starts
// accepting records. It fails with ErrRunning if a session is running and
// leaves the state untouched on any failure.
func (l *Logger) Start() error {
	l.ctlLock.Lock()
	defer l.ctlLock.Unlock()
	if l.running.Load() {
		return ErrRunning
	}
	if l.storage == nil {
		return ErrNoStorage
	}
	name, err := l.nextName()
	if err != nil {
		return err
	}
	sink, err := l.storage.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	hdr := EncodeHeader()
	if _, err = sink.Write(hdr[:]); err == nil {
		err = sink.Sync()
	}
	if err != nil {
		sink.Close()
		if rmErr := l.storage.Remove(name); rmErr != nil {
			glog.Warningf("datalog: remove %s: %v", name, rmErr)
		}
		return fmt.Errorf("write header %s: %w", name, err)
	}

	l.sinkLock.Lock()
	l.sink, l.file = sink, name
	l.ring.Reset()
	l.dropped.Store(0)
	l.writeErrors.Store(0)
	l.running.Store(true)
	l.sinkLock.Unlock()
	glog.Infof("datalog: session %s started", name)
	return nil
}

func (l *Logger) nextName() (string, error) {
	for i := 0; i < l.cfg.MaxFiles; i++ {
		name := fmt.Sprintf(l.cfg.NamePattern, i)
		exists, err := l.storage.Exists(name)
		if err != nil {
			return "", fmt.Errorf("check %s: %w", name, err)
		}
		if !exists {
			return name, nil
		}
	}
	return "", ErrNoFreeName
}

// Stop ends the session. Pushes become no-ops immediately; after the grace
// period whatever is still buffered is written out and the file is flushed
// and closed. Stop on an idle logger returns ErrNotRunning and does nothing.
func (l *Logger) Stop() error {
	l.ctlLock.Lock()
	defer l.ctlLock.Unlock()
	if !l.running.Swap(false) {
		return ErrNotRunning
	}
	time.Sleep(l.cfg.StopGrace)

	l.sinkLock.Lock()
	defer l.sinkLock.Unlock()
	buf := make([]byte, l.cfg.ChunkSize)
	for n := l.ring.Read(buf); n > 0; n = l.ring.Read(buf) {
		l.write(buf[:n])
	}
	err := errors.Join(l.sink.Sync(), l.sink.Close())
	glog.Infof("datalog: session %s stopped, %d records dropped", l.file, l.dropped.Load())
	l.sink = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", l.file, err)
	}
	return nil
}

// Push queues one encoded record; its first byte is the type tag. While no
// session runs there is nothing to log and Push returns true. Otherwise a
// record whose length is not the fixed size of its type is rejected with
// false and not counted, and a record the ring lacks room for is dropped,
// counted once and also yields false.
//
// true means the record was buffered, not that it reached the file: a push
// racing with Stop can land after the final drain and is discarded by the
// next Start.
func (l *Logger) Push(rec []byte) bool {
	if !l.running.Load() {
		return true
	}
	if len(rec) == 0 {
		return false
	}
	if size, ok := RecordType(rec[0]).FixedSize(); !ok || size != len(rec) {
		return false
	}
	if !l.ring.Write(rec) {
		l.dropped.Add(1)
		return false
	}
	return true
}

// LogFrame timestamps f and pushes it as a record of type typ.
func (l *Logger) LogFrame(typ RecordType, f canbus.Frame) bool {
	if !l.running.Load() {
		return true
	}
	rec := NewFrameRecord(typ, l.Clock(), f)
	var b [FrameRecordSize]byte
	rec.MarshalTo(b[:])
	return l.Push(b[:])
}

// LogSensor timestamps and pushes a sensor record. Sensor records of the
// current format version carry no payload.
func (l *Logger) LogSensor() bool {
	if !l.running.Load() {
		return true
	}
	rec := SensorRecord{TS: l.Clock()}
	var b [SensorRecordSize]byte
	rec.MarshalTo(b[:])
	return l.Push(b[:])
}

// Running reports whether a session is running.
func (l *Logger) Running() bool {
	return l.running.Load()
}

// Dropped returns the records dropped since the session started.
func (l *Logger) Dropped() uint32 {
	return l.dropped.Load()
}

// File returns the name of the running session file, or "" when idle.
func (l *Logger) File() string {
	if !l.running.Load() {
		return ""
	}
	l.sinkLock.Lock()
	defer l.sinkLock.Unlock()
	return l.file
}

// Status returns the current diagnostics.
func (l *Logger) Status() Status {
	st := Status{
		Running:     l.running.Load(),
		Dropped:     l.dropped.Load(),
		WriteErrors: l.writeErrors.Load(),
		Buffered:    l.ring.Len(),
		Free:        l.ring.Free(),
	}
	if st.Running {
		st.File = l.File()
	}
	return st
}

// Run is the writer task. It drains the ring into the session file until
// ctx is done, sleeping IdleInterval while no session runs and
// DrainInterval while the ring is empty.
func (l *Logger) Run(ctx context.Context) error {
	buf := make([]byte, l.cfg.ChunkSize)
	for {
		if wait := l.drain(buf); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// drain writes one chunk and returns how long to sleep before the next.
func (l *Logger) drain(buf []byte) time.Duration {
	l.sinkLock.Lock()
	defer l.sinkLock.Unlock()
	if !l.running.Load() {
		return l.cfg.IdleInterval
	}
	n := l.ring.Read(buf)
	if n == 0 {
		return l.cfg.DrainInterval
	}
	l.write(buf[:n])
	return 0
}

// write appends to the sink. Failures are reported and not retried.
func (l *Logger) write(p []byte) {
	if _, err := l.sink.Write(p); err != nil {
		l.writeErrors.Add(1)
		glog.Warningf("datalog: write %s: %v", l.file, err)
	}
}

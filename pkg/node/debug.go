package node

import (
	"flag"
	"fmt"
	"strconv"
	"sync/atomic"
)

// Debug levels. Each level enables the glog verbosity of the same value and
// lowers the stderr threshold. Messages below the threshold only go to the
// glog files in -log_dir.
const (
	DebugOff = iota
	DebugError
	DebugInfo
	DebugVerbose
)

var (
	debugLevel      atomic.Int32
	debugThresholds = [...]string{"FATAL", "ERROR", "INFO", "INFO"}
	debugNames      = [...]string{"off", "error", "info", "verbose"}
)

// SetDebugLevel changes the diagnostics output at runtime.
func SetDebugLevel(level int) error {
	if level < DebugOff || level > DebugVerbose {
		return fmt.Errorf("debug level %d out of range 0..3", level)
	}
	settings := [][2]string{
		// logtostderr bypasses stderrthreshold
		{"logtostderr", "false"},
		{"alsologtostderr", "false"},
		{"v", strconv.Itoa(level)},
		{"stderrthreshold", debugThresholds[level]},
	}
	for _, kv := range settings {
		if err := flag.Set(kv[0], kv[1]); err != nil {
			return err
		}
	}
	debugLevel.Store(int32(level))
	return nil
}

// DebugLevel returns the current debug level.
func DebugLevel() int {
	return int(debugLevel.Load())
}

// DebugLevelName names a debug level.
func DebugLevelName(level int) string {
	if level < DebugOff || level > DebugVerbose {
		return strconv.Itoa(level)
	}
	return debugNames[level]
}

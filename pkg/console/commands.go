// Package console implements the node command console. Commands run through
// an Executor so the same set serves the interactive shell and remote
// command channels.
package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/robotalks/canlog/pkg/datalog"
	"github.com/robotalks/canlog/pkg/node"
)

// Device is the node surface the commands operate on.
type Device interface {
	Status() node.Status
	Mode() node.Mode
	SetMode(node.Mode)
	Zero(ctx context.Context, id uint8) error
	ZeroAll(ctx context.Context) error
	StartLog() error
	StopLog() error
	Files() ([]datalog.FileInfo, error)
}

// Command is a console command.
type Command struct {
	Name    string
	Aliases []string
	Help    string
	Run     func(ctx context.Context, e *Executor, args []string) (string, error)
}

// ErrUnknownCommand is returned for a command name not registered.
var ErrUnknownCommand = errors.New("unknown command, type 'help'")

var commands []*Command

// AddCmds registers commands. It is meant to be called from init funcs.
func AddCmds(cmds ...*Command) {
	commands = append(commands, cmds...)
}

// Commands returns the registered commands sorted by name.
func Commands() []*Command {
	cmds := append([]*Command(nil), commands...)
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// Executor runs commands against a Device.
type Executor struct {
	Device Device
	// SetDebug changes the debug level.
	SetDebug func(level int) error
	// Debug returns the debug level.
	Debug func() int
}

// NewExecutor creates an Executor using the process-wide debug level.
func NewExecutor(dev Device) *Executor {
	return &Executor{Device: dev, SetDebug: node.SetDebugLevel, Debug: node.DebugLevel}
}

// Lookup finds a command by name or alias, ignoring case.
func Lookup(name string) *Command {
	for _, cmd := range commands {
		if strings.EqualFold(cmd.Name, name) {
			return cmd
		}
		for _, alias := range cmd.Aliases {
			if strings.EqualFold(alias, name) {
				return cmd
			}
		}
	}
	return nil
}

// Exec runs a command line such as "zero 4".
func (e *Executor) Exec(ctx context.Context, line string) (string, error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return "", nil
	}
	return e.Run(ctx, args[0], args[1:]...)
}

// Run runs command name with args.
func (e *Executor) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := Lookup(name)
	if cmd == nil {
		return "", fmt.Errorf("%s: %w", name, ErrUnknownCommand)
	}
	return cmd.Run(ctx, e, args)
}

var (
	// HelpCmd lists the commands.
	HelpCmd = Command{
		Name: "help",
		Help: "list commands",
		Run: func(_ context.Context, _ *Executor, _ []string) (string, error) {
			var w bytes.Buffer
			w.WriteString("Available commands:\n")
			for _, cmd := range Commands() {
				fmt.Fprintf(&w, "  %-10s %s\n", cmd.Name, cmd.Help)
			}
			return w.String(), nil
		},
	}

	// StatusCmd prints the lengths and the logging state.
	StatusCmd = Command{
		Name:    "status",
		Aliases: []string{"s"},
		Help:    "show measured lengths and logging state",
		Run: func(_ context.Context, e *Executor, _ []string) (string, error) {
			st := e.Device.Status()
			var w bytes.Buffer
			fmt.Fprintf(&w, "Mode: %s\n", st.Mode)
			w.WriteString("Measured lengths:\n")
			for _, l := range st.Lengths {
				fmt.Fprintf(&w, "  %s\n", l)
			}
			w.WriteString(formatLog(st.Log, st.Storage))
			return w.String(), nil
		},
	}

	// ZeroCmd zeroes one encoder.
	ZeroCmd = Command{
		Name: "zero",
		Help: "ID   zero encoder ID (3..6)",
		Run: func(ctx context.Context, e *Executor, args []string) (string, error) {
			if len(args) < 1 {
				return "", node.ErrInvalidEncoder
			}
			id, err := strconv.ParseUint(args[0], 10, 8)
			if err != nil {
				return "", node.ErrInvalidEncoder
			}
			if err := e.Device.Zero(ctx, uint8(id)); err != nil {
				return "", err
			}
			return fmt.Sprintf("ZERO encoder ID %d\n", id), nil
		},
	}

	// ZeroAllCmd zeroes every encoder.
	ZeroAllCmd = Command{
		Name: "zeroall",
		Help: "zero encoders 3..6",
		Run: func(ctx context.Context, e *Executor, _ []string) (string, error) {
			if err := e.Device.ZeroAll(ctx); err != nil {
				return "", err
			}
			return "ZERO ALL done\n", nil
		},
	}

	// LogCmd controls the logging session.
	LogCmd = Command{
		Name: "log",
		Help: "start|stop|status|files",
		Run: func(_ context.Context, e *Executor, args []string) (string, error) {
			sub := "status"
			if len(args) > 0 {
				sub = strings.ToLower(args[0])
			}
			switch sub {
			case "start":
				if err := e.Device.StartLog(); err != nil {
					return "", err
				}
				st := e.Device.Status()
				return fmt.Sprintf("logging to %s\n", st.Log.File), nil
			case "stop":
				if err := e.Device.StopLog(); err != nil {
					return "", err
				}
				st := e.Device.Status()
				return fmt.Sprintf("logging stopped, %d records dropped\n", st.Log.Dropped), nil
			case "status":
				st := e.Device.Status()
				return formatLog(st.Log, st.Storage), nil
			case "files", "ls":
				files, err := e.Device.Files()
				if err != nil {
					return "", err
				}
				var w bytes.Buffer
				for _, f := range files {
					fmt.Fprintf(&w, "%s %d\n", f.Name, f.Size)
				}
				return w.String(), nil
			}
			return "", fmt.Errorf("log %s: use start, stop, status or files", sub)
		},
	}

	// ModeCmd shows or switches the operating mode.
	ModeCmd = Command{
		Name: "mode",
		Help: "[normal|sniffer]",
		Run: func(_ context.Context, e *Executor, args []string) (string, error) {
			if len(args) > 0 {
				m, err := node.ParseMode(args[0])
				if err != nil {
					return "", err
				}
				e.Device.SetMode(m)
			}
			return fmt.Sprintf("mode %s\n", e.Device.Mode()), nil
		},
	}

	// DebugCmd shows or sets the debug level.
	DebugCmd = Command{
		Name: "debug",
		Help: "[0..3]  off, error, info, verbose",
		Run: func(_ context.Context, e *Executor, args []string) (string, error) {
			if len(args) > 0 {
				level, err := strconv.Atoi(args[0])
				if err != nil {
					return "", fmt.Errorf("invalid debug level %q", args[0])
				}
				if err := e.SetDebug(level); err != nil {
					return "", err
				}
			}
			level := e.Debug()
			return fmt.Sprintf("debug %d (%s)\n", level, node.DebugLevelName(level)), nil
		},
	}
)

func formatLog(st datalog.Status, storage bool) string {
	if !storage {
		return "Logging: no storage\n"
	}
	if !st.Running {
		return fmt.Sprintf("Logging: idle, %d records dropped in last session\n", st.Dropped)
	}
	return fmt.Sprintf("Logging: %s, %d buffered, %d free, %d dropped, %d write errors\n",
		st.File, st.Buffered, st.Free, st.Dropped, st.WriteErrors)
}

func init() {
	AddCmds(
		&HelpCmd,
		&StatusCmd,
		&ZeroCmd,
		&ZeroAllCmd,
		&LogCmd,
		&ModeCmd,
		&DebugCmd,
	)
}

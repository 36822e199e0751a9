package console

import (
	"context"
	"strings"

	"github.com/abiosoft/ishell"

	fx "github.com/robotalks/canlog/pkg/framework"
)

const (
	shellKey = "$shell"
	prompt   = "canlog> "
)

// Shell provides the ishell backed interactive console.
type Shell struct {
	Shell    *ishell.Shell
	Executor *Executor
	// Context is passed to commands.
	Context context.Context
}

// NewShell creates a shell with all registered commands.
func NewShell(exec *Executor) *Shell {
	s := &Shell{
		Shell:    ishell.New(),
		Executor: exec,
		Context:  context.Background(),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(prompt)
	for _, cmd := range Commands() {
		s.Shell.AddCmd(shellCmd(cmd))
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

func shellCmd(cmd *Command) *ishell.Cmd {
	return &ishell.Cmd{
		Name:    cmd.Name,
		Aliases: cmd.Aliases,
		Help:    cmd.Help,
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			out, err := cmd.Run(s.Context, s.Executor, c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if out != "" {
				c.Print(out)
			}
		},
	}
}

// Name implements framework.Named.
func (s *Shell) Name() string {
	return "console"
}

// Run implements framework.Runnable. It serves the console on stdin until
// ctx is done or the user exits.
func (s *Shell) Run(ctx context.Context) error {
	s.Context = ctx
	s.Shell.Println("Console ready. Type 'help' for commands.")
	return fx.RunWithContextCancel(ctx, s.Shell.Close, func() error {
		s.Shell.Run()
		return nil
	})
}

// Process runs a single command line without the interactive loop.
func (s *Shell) Process(line string) error {
	return s.Shell.Process(strings.Fields(line)...)
}

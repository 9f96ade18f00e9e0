package console

import (
	"os"

	"github.com/google/uuid"

	"github.com/beamnet/drivesim-server/internal/script"
)

// Console wires the interactive operator console together: a dedicated
// Script Instance (is_console=true), the raw-mode Input reader, and the
// throttled Output writer, plus interception of the two built-in commands
// that never reach the interpreter (exit, clear/cls), grounded on
// Console.cpp's ReadCin dispatch loop.
type Console struct {
	Sink *Sink

	// sessionID correlates every log line this console session produces
	// across a process that may be attached/detached from multiple times
	// (e.g. under a supervisor that restarts the foreground attachment).
	sessionID string

	instance *script.Instance
	input    *Input
	output   *Output
	onExit   func()
}

// New creates a Console bound to inst (the engine's console Script
// Instance). onExit is invoked when the operator types "exit" or presses
// Ctrl-D.
func New(sink *Sink, inst *script.Instance, onExit func()) *Console {
	c := &Console{Sink: sink, sessionID: uuid.NewString(), instance: inst, onExit: onExit}
	c.input = NewInput(c.HandleInput)
	c.output = NewOutput(sink, c.input.CurrentBuffer)
	return c
}

// SessionID returns the identifier correlating this console attachment's
// log lines.
func (c *Console) SessionID() string { return c.sessionID }

// Run starts the input and output loops and blocks until the input reader
// exits (EOF or a fatal read error). Callers typically run this on the
// main goroutine after starting background services.
func (c *Console) Run() {
	c.Sink.Print("console session " + c.sessionID + " attached")
	c.input.Setup()
	defer c.input.Restore()
	go c.output.Run()
	defer c.output.Stop()
	c.input.Run()
}

// HandleInput processes one submitted console line: "exit" and
// "clear"/"cls" are intercepted before reaching the interpreter; anything
// else is handed to the console's Script Instance as a one-shot Execute.
func (c *Console) HandleInput(line string) {
	switch line {
	case "exit":
		if c.onExit != nil {
			c.onExit()
		}
		return
	case "clear", "cls":
		os.Stdout.WriteString("\x1b[2J\x1b[H")
		return
	case "":
		return
	}
	c.instance.Execute(line)
}

package console

import (
	"os"
	"sync"

	"golang.org/x/term"
)

// maxHistory bounds the retained command history; once it grows past
// 2*maxHistory entries it is compacted back down to the most recent
// maxHistory, matching Console.cpp's ConsoleHistory compaction threshold.
const maxHistory = 10

const (
	keyEnter     = 13
	keyNewline   = 10
	keyBackspace = 8
	keyDelete    = 127
	keyEOT       = 4
	keyFormFeed  = 12
	keyEscape    = 27
)

// Input reads the controlling terminal byte by byte in raw mode,
// maintaining an edit buffer and bounded history, grounded on Console.cpp's
// ReadCin: Enter submits, Backspace/Delete erase, Ctrl-D ("exit") and
// Ctrl-L ("clear") are synthesized as commands, and arrow-key escape
// sequences walk history.
type Input struct {
	mu          sync.Mutex
	buffer      []rune
	history     []string
	historyPos  int
	lastPartial string // tentative buffer stashed when paging into history

	onLine func(line string)

	oldState *term.State
}

// NewInput creates an Input that calls onLine for every submitted command
// (including synthesized "exit" and "clear").
func NewInput(onLine func(line string)) *Input {
	return &Input{onLine: onLine}
}

// CurrentBuffer returns the in-progress edit line for the output redraw
// loop to render after the prompt.
func (in *Input) CurrentBuffer() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return string(in.buffer)
}

// Setup puts the terminal into raw mode. Failure is non-fatal (matches the
// original SetupConsole's "best effort" stance on terminals that don't
// support it, e.g. when stdin is redirected).
func (in *Input) Setup() {
	state, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err == nil {
		in.oldState = state
	}
}

// Restore returns the terminal to its prior mode, if Setup succeeded.
func (in *Input) Restore() {
	if in.oldState != nil {
		term.Restore(int(os.Stdin.Fd()), in.oldState)
	}
}

// Run reads stdin byte by byte until EOF or a fatal read error, dispatching
// submitted lines to onLine. Intended to run in its own goroutine.
func (in *Input) Run() {
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if n == 0 || err != nil {
			return
		}
		in.feed(buf[0])
	}
}

func (in *Input) feed(b byte) {
	switch b {
	case keyEnter, keyNewline:
		in.submit()
	case keyBackspace, keyDelete:
		in.backspace()
	case keyEOT:
		in.onLine("exit")
	case keyFormFeed:
		in.onLine("clear")
	case keyEscape:
		in.readEscapeSequence()
	default:
		in.mu.Lock()
		in.buffer = append(in.buffer, rune(b))
		in.mu.Unlock()
	}
}

// readEscapeSequence consumes the two-byte CSI suffix of an arrow-key
// sequence ("\x1b[A" up, "\x1b[B" down) and pages through history,
// matching Console.cpp's platform-specific composite escape handling
// (unix: ESC '[' 'A'/'B'; this implementation only targets the unix
// terminal shape, since Windows console mode is out of scope here).
func (in *Input) readEscapeSequence() {
	seq := make([]byte, 2)
	if n, err := os.Stdin.Read(seq); err != nil || n < 2 {
		return
	}
	if seq[0] != '[' {
		return
	}
	switch seq[1] {
	case 'A':
		in.historyUp()
	case 'B':
		in.historyDown()
	}
}

func (in *Input) backspace() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.buffer) > 0 {
		in.buffer = in.buffer[:len(in.buffer)-1]
	}
}

func (in *Input) submit() {
	in.mu.Lock()
	line := string(in.buffer)
	in.buffer = nil
	if line != "" {
		in.history = append(in.history, line)
		if len(in.history) > 2*maxHistory {
			in.history = append([]string(nil), in.history[len(in.history)-maxHistory:]...)
		}
	}
	in.historyPos = len(in.history)
	in.lastPartial = ""
	in.mu.Unlock()
	in.onLine(line)
}

func (in *Input) historyUp() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.historyPos == 0 {
		return
	}
	if in.historyPos == len(in.history) {
		in.lastPartial = string(in.buffer)
	}
	in.historyPos--
	in.buffer = []rune(in.history[in.historyPos])
}

func (in *Input) historyDown() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.historyPos >= len(in.history) {
		return
	}
	in.historyPos++
	if in.historyPos == len(in.history) {
		in.buffer = []rune(in.lastPartial)
		return
	}
	in.buffer = []rune(in.history[in.historyPos])
}

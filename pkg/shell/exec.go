package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/bmharper/ringbuffer"
)

// We prefer to return stderr over the process exit code
type ExitErrorVerbose struct {
	E exec.ExitError
}

func (e ExitErrorVerbose) Error() string {
	if len(e.E.Stderr) != 0 {
		return string(e.E.Stderr)
	}
	return e.E.Error()
}

func Run(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", ExitErrorVerbose{*exitErr}
		}
		return "", err
	}
	return string(out), nil
}

// StreamError is returned by Stream when the process fails.
// Tail holds the last lines of combined output, which usually explain the failure.
type StreamError struct {
	Err  error
	Tail []string
}

func (e *StreamError) Error() string {
	if len(e.Tail) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v\n%v", e.Err, strings.Join(e.Tail, "\n"))
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// StreamOptions control Stream
type StreamOptions struct {
	Dir      string            // Working directory. Empty means the current directory.
	OnLine   func(line string) // Called for every line of stdout and stderr, serialized
	TailSize int               // Number of trailing lines to retain. Default 20.
}

// Stream runs a program, delivering its stdout and stderr line by line to opts.OnLine.
// Long running tools such as trainers print progress with carriage returns, so '\r' is
// also treated as a line break.
// Returns the retained tail of output. If the process fails (or ctx is cancelled), the error is a *StreamError.
func Stream(ctx context.Context, opts StreamOptions, name string, args ...string) ([]string, error) {
	if opts.TailSize <= 0 {
		opts.TailSize = 20
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	tail := NewTail(opts.TailSize)
	var lock sync.Mutex
	emit := func(line string) {
		lock.Lock()
		defer lock.Unlock()
		tail.Add(line)
		if opts.OnLine != nil {
			opts.OnLine(line)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ScanLines(stdout, emit)
	}()
	go func() {
		defer wg.Done()
		ScanLines(stderr, emit)
	}()
	// The pipes must be drained before calling Wait
	wg.Wait()

	err = cmd.Wait()
	lines := tail.Lines()
	if err != nil {
		if ctx.Err() != nil {
			err = errors.Join(ctx.Err(), err)
		}
		return lines, &StreamError{Err: err, Tail: lines}
	}
	return lines, nil
}

// ScanLines splits r on '\n' or '\r', calling f for every non-empty line
func ScanLines(r io.Reader, f func(line string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(splitCRLF)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		if line != "" {
			f(line)
		}
	}
}

func splitCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, c := range data {
		if c == '\n' || c == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) != 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Tail keeps the most recent N lines
type Tail struct {
	n    int
	ring ringbuffer.RingP[string]
}

func NewTail(n int) *Tail {
	// The ring's size must be a power of 2
	size := 1
	for size < n {
		size *= 2
	}
	return &Tail{n: n, ring: ringbuffer.NewRingP[string](size)}
}

func (t *Tail) Add(line string) {
	t.ring.Add(line)
}

// Lines returns the retained lines, oldest first
func (t *Tail) Lines() []string {
	start := max(t.ring.Len()-t.n, 0)
	out := make([]string, 0, t.ring.Len()-start)
	for i := start; i < t.ring.Len(); i++ {
		out = append(out, t.ring.Peek(i))
	}
	return out
}

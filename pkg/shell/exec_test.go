package shell

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTail(t *testing.T) {
	tail := NewTail(3)
	require.Equal(t, 0, len(tail.Lines()))
	tail.Add("a")
	tail.Add("b")
	require.Equal(t, []string{"a", "b"}, tail.Lines())
	tail.Add("c")
	tail.Add("d")
	tail.Add("e")
	require.Equal(t, []string{"c", "d", "e"}, tail.Lines())
}

func TestScanLines(t *testing.T) {
	var lines []string
	ScanLines(strings.NewReader("epoch 1/3\repoch 2/3\r\nResults saved to runs/train/x\nlast"), func(line string) {
		lines = append(lines, line)
	})
	require.Equal(t, []string{"epoch 1/3", "epoch 2/3", "Results saved to runs/train/x", "last"}, lines)
}

func TestStream(t *testing.T) {
	var seen []string
	tail, err := Stream(context.Background(), StreamOptions{OnLine: func(line string) { seen = append(seen, line) }}, "sh", "-c", "echo one; echo two 1>&2")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"one", "two"}, seen)
	require.Equal(t, 2, len(tail))

	_, err = Stream(context.Background(), StreamOptions{TailSize: 1}, "sh", "-c", "echo first; echo boom; exit 3")
	require.Error(t, err)
	var se *StreamError
	require.True(t, errors.As(err, &se))
	require.Equal(t, []string{"boom"}, se.Tail)
	require.Contains(t, err.Error(), "boom")
}

func TestRun(t *testing.T) {
	out, err := Run("sh", "-c", "echo hello")
	require.NoError(t, err)
	require.Equal(t, "hello\n", out)

	_, err = Run("sh", "-c", "echo bad 1>&2; exit 1")
	require.Error(t, err)
	require.Equal(t, "bad\n", err.Error())
}

// Package pipeline implements model.ByteFilterPipeline by chaining a
// stream through a sequence of external filter commands (compression,
// encryption) the way the upload path in the rest of this codebase's
// ancestry chains a btrfs send through ssh and pv.
package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
)

// CommandPipeline wraps a reader by piping it through the stdin/stdout of
// each configured command in order. An empty Commands list is the
// identity pipeline.
type CommandPipeline struct {
	Commands [][]string
}

func Wrap(commands [][]string) *CommandPipeline {
	return &CommandPipeline{Commands: commands}
}

// Wrap chains r through every configured command and returns a reader of
// the final stage's stdout. Each stage's stderr is captured and surfaced
// if that stage exits nonzero.
func (p *CommandPipeline) Wrap(r io.Reader) (io.Reader, error) {
	if len(p.Commands) == 0 {
		return r, nil
	}

	cur := r
	var cmds []*exec.Cmd
	var stderrs []*bytes.Buffer

	for _, argv := range p.Commands {
		if len(argv) == 0 {
			return nil, fmt.Errorf("pipeline: empty command")
		}
		cmd := exec.Command(argv[0], argv[1:]...)
		cmd.Stdin = cur

		stderr := &bytes.Buffer{}
		cmd.Stderr = stderr

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("pipeline: pipe stdout for %s: %w", argv[0], err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("pipeline: start %s: %w", argv[0], err)
		}

		cmds = append(cmds, cmd)
		stderrs = append(stderrs, stderr)
		cur = stdout
	}

	return &waitingReader{r: cur, cmds: cmds, stderrs: stderrs}, nil
}

// waitingReader reads from the final stage's stdout and, once it reaches
// EOF, waits for every stage in order so a nonzero exit surfaces as a
// read error instead of silently truncating the stream.
type waitingReader struct {
	r       io.Reader
	cmds    []*exec.Cmd
	stderrs []*bytes.Buffer
	waited  bool
}

func (w *waitingReader) Read(p []byte) (int, error) {
	n, err := w.r.Read(p)
	if err == io.EOF {
		if waitErr := w.waitAll(); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}

func (w *waitingReader) waitAll() error {
	if w.waited {
		return nil
	}
	w.waited = true
	for i, cmd := range w.cmds {
		if err := cmd.Wait(); err != nil {
			return fmt.Errorf("pipeline: %s: %w: %s", cmd.Path, err, w.stderrs[i].String())
		}
	}
	return nil
}

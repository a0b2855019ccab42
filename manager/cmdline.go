package manager

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/docket"
	"github.com/xraph/docket/job"
)

// maxLineSize bounds one line of command output.
const maxLineSize = 1 << 20

// Cmdline describes a subprocess run as a job.
type Cmdline struct {
	// Args is the program followed by its arguments.
	Args []string
	// Dir is the working directory. Empty means the current one.
	Dir string
	// Env replaces the environment when non-nil.
	Env []string

	// StreamProgress appends every stdout line to the job's progress.
	StreamProgress bool

	// InterpretError turns a nonzero exit into the job's error. Returning
	// nil marks the job successful. When unset, a command-failed error
	// exposing stdout, stderr and the exit code is used.
	InterpretError func(exitCode int, stdout, stderr string) error

	// OnExit is always called once the process is gone, with the error
	// the job ends with.
	OnExit func(ctx context.Context, jobID string, err error)
}

// StartCmdline runs cmd in the background as a job. The process id is
// stored in the record while the process lives so CancelJob can kill it.
func (m *Manager) StartCmdline(ctx context.Context, cmd Cmdline, opts ...StartOption) (string, error) {
	if len(cmd.Args) == 0 {
		return "", docket.ErrEmptyCommand
	}
	all := append([]StartOption{Name(cmd.Args[0])}, opts...)
	all = append(all, Background(true))
	return m.StartCode(ctx, m.cmdlineCode(cmd), all...)
}

func (m *Manager) cmdlineCode(cmd Cmdline) job.Code {
	return func(ctx context.Context, j *job.Accessor) (err error) {
		storeCtx := context.WithoutCancel(ctx)
		if cmd.OnExit != nil {
			defer func() { cmd.OnExit(storeCtx, j.ID(), err) }()
		}

		c := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
		c.Dir = cmd.Dir
		if cmd.Env != nil {
			c.Env = cmd.Env
		}
		stdoutPipe, err := c.StdoutPipe()
		if err != nil {
			return err
		}
		stderrPipe, err := c.StderrPipe()
		if err != nil {
			return err
		}
		if err := c.Start(); err != nil {
			return job.NewError(job.CodeCommandFailed, "command could not be started").
				WithPrivate("cmd", strings.Join(cmd.Args, " ")).
				WithPrivate("cwd", cmd.Dir).
				WithCause(err)
		}

		m.setPID(storeCtx, j.ID(), c.Process.Pid)
		defer m.setPID(storeCtx, j.ID(), 0)

		var stdout, stderr strings.Builder
		var g errgroup.Group
		g.Go(func() error {
			return m.pump(stdoutPipe, &stdout, func(line string) {
				if !cmd.StreamProgress {
					return
				}
				if perr := j.Progress(storeCtx, line); perr != nil {
					m.logger.Warn("failed to record command output",
						slog.String("job_id", j.ID()),
						slog.String("error", perr.Error()),
					)
				}
			})
		})
		g.Go(func() error {
			return m.pump(stderrPipe, &stderr, nil)
		})
		pumpErr := g.Wait()
		waitErr := c.Wait()

		if waitErr == nil {
			if pumpErr != nil {
				return fmt.Errorf("read command output: %w", pumpErr)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if cmd.InterpretError != nil {
			return cmd.InterpretError(exitCode, stdout.String(), stderr.String())
		}
		return job.NewError(job.CodeCommandFailed, fmt.Sprintf("command exited with status %d", exitCode)).
			WithDetail("stdout", stdout.String()).
			WithDetail("stderr", stderr.String()).
			WithDetail("exit_code", exitCode).
			WithPrivate("cmd", strings.Join(cmd.Args, " ")).
			WithPrivate("cwd", cmd.Dir).
			WithCause(waitErr)
	}
}

// pump copies r line by line into buf, calling onLine for each line.
func (m *Manager) pump(r io.Reader, buf *strings.Builder, onLine func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if onLine != nil {
			onLine(line)
		}
	}
	if err := sc.Err(); err != nil {
		// Keep draining so the process never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}

// setPID records pid on the job, or removes it when pid is 0.
func (m *Manager) setPID(ctx context.Context, jobID string, pid int) {
	changes := map[string]any{"$set": map[string]any{job.FieldPID: int64(pid)}}
	if pid == 0 {
		changes = map[string]any{"$unset": map[string]any{job.FieldPID: true}}
	}
	if _, err := m.store.Update(ctx, m.config.JobsCollection, jobID, changes, false); err != nil {
		m.logger.Warn("failed to record process id",
			slog.String("job_id", jobID),
			slog.Int("pid", pid),
			slog.String("error", err.Error()),
		)
	}
}

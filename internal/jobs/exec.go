package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"phrasecron/internal/config"
	"phrasecron/internal/task/engine"
	logx "phrasecron/pkg/logx"
)

const (
	// exitTempFail is EX_TEMPFAIL from sysexits.h. A command exiting with it
	// asks to be retried later.
	exitTempFail = 75

	tempFailRetryDelay = 10 * time.Second
	outputTailBytes    = 4096
	waitDelay          = 5 * time.Second
)

// Action is what a job does when it fires.
type Action func(ctx context.Context) error

// UnitController is implemented by unitctl.Controller.
type UnitController interface {
	Do(ctx context.Context, unit, action string) error
}

// Builder creates Actions from job configs.
type Builder struct {
	log   logx.Logger
	units UnitController

	// Environ returns the base environment of commands. Defaults to
	// os.Environ.
	Environ func() []string
}

func NewBuilder(log logx.Logger, units UnitController) *Builder {
	return &Builder{log: log, units: units, Environ: os.Environ}
}

// Build returns the action for j. It does not check the schedule.
func (b *Builder) Build(j config.JobConfig) (Action, error) {
	switch {
	case j.Unit != nil:
		if b.units == nil {
			return nil, errors.New("unit jobs need a unit controller")
		}
		return b.unitAction(j.Name, *j.Unit), nil
	case len(j.Command.Args) > 0 && strings.TrimSpace(j.Command.Args[0]) != "":
		return b.commandAction(j), nil
	case strings.TrimSpace(j.Command.Shell) != "":
		return b.commandAction(j), nil
	default:
		return nil, errors.New("command required")
	}
}

func (b *Builder) unitAction(job string, u config.UnitAction) Action {
	log := b.log.With(logx.String("job", job), logx.String("unit", u.Name), logx.String("action", u.Action))
	return func(ctx context.Context) error {
		start := time.Now()
		if err := b.units.Do(ctx, u.Name, u.Action); err != nil {
			log.Warn("unit action failed", logx.Duration("took", time.Since(start)), logx.Err(err))
			if ctx.Err() != nil {
				return err
			}
			return classifyUnitErr(err)
		}
		log.Info("unit action done", logx.Duration("took", time.Since(start)))
		return nil
	}
}

func (b *Builder) commandAction(j config.JobConfig) Action {
	cmd := j.Command
	dir := j.Dir
	env := mergeEnv(b.environ(), j.Env)
	log := b.log.With(logx.String("job", j.Name))

	return func(ctx context.Context) error {
		var c *exec.Cmd
		if cmd.Shell != "" {
			c = exec.CommandContext(ctx, "/bin/sh", "-c", cmd.Shell)
		} else {
			c = exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
		}
		c.Dir = dir
		c.Env = env
		c.WaitDelay = waitDelay
		out := &tailBuffer{max: outputTailBytes}
		c.Stdout = out
		c.Stderr = out

		start := time.Now()
		err := c.Run()
		took := time.Since(start)
		if err == nil {
			log.Info("command finished", logx.Duration("took", took))
			if tail := out.String(); tail != "" {
				log.Debug("command output", logx.String("output", tail))
			}
			return nil
		}

		err = classifyExecErr(ctx, cmd.String(), err, out.String())
		log.Warn("command failed",
			logx.String("command", cmd.String()),
			logx.Duration("took", took),
			logx.String("output", out.String()),
			logx.Err(err),
		)
		return err
	}
}

func (b *Builder) environ() []string {
	if b.Environ == nil {
		return os.Environ()
	}
	return b.Environ()
}

// classifyExecErr decides whether the engine may retry a failed command.
// Start failures (missing binary, bad dir, no permission) are permanent;
// EX_TEMPFAIL asks for a delayed retry.
func classifyExecErr(ctx context.Context, command string, err error, output string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", command, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		wrapped := fmt.Errorf("%s: exit status %d%s", command, code, lastLine(output))
		if code == exitTempFail {
			return engine.RetryAfter(wrapped, tempFailRetryDelay)
		}
		return wrapped
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return engine.NoRetry(fmt.Errorf("%s: %w", command, err))
	}
	return fmt.Errorf("%s: %w", command, err)
}

// classifyUnitErr treats configuration problems as permanent.
func classifyUnitErr(err error) error {
	es := err.Error()
	if strings.Contains(es, "unknown action") || strings.Contains(es, "unsupported OS") || strings.Contains(es, "NoSuchUnit") || strings.Contains(es, "not found") {
		return engine.NoRetry(err)
	}
	return err
}

func lastLine(output string) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return ""
	}
	if i := strings.LastIndexByte(output, '\n'); i >= 0 {
		output = output[i+1:]
	}
	return ": " + strings.TrimSpace(output)
}

// mergeEnv appends extra to base in key order. exec.Cmd uses the last value
// of a duplicated key, so extra wins.
func mergeEnv(base []string, extra map[string]string) []string {
	env := append([]string(nil), base...)
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(p)
	if len(p) >= t.max {
		t.buf.Reset()
		p = p[len(p)-t.max:]
		t.truncated = true
	}
	if over := t.buf.Len() + len(p) - t.max; over > 0 {
		t.buf.Next(over)
		t.truncated = true
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := strings.TrimSpace(t.buf.String())
	if t.truncated && s != "" {
		return "..." + s
	}
	return s
}

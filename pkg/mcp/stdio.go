package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// maxLineSize bounds a single JSON-RPC line on stdout. Tool results can be
// large; 10MB matches what well-behaved servers stay under.
const maxLineSize = 10 * 1024 * 1024

// stdioDriver speaks line-delimited JSON-RPC to a child process.
type stdioDriver struct {
	*session
	cfg Config

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	closed bool

	exited chan struct{}
}

func newStdioDriver(cfg Config) (*stdioDriver, error) {
	if cfg.Command == "" {
		return nil, &ProtocolError{Reason: "stdio server has no command"}
	}
	return &stdioDriver{
		session: newSession(cfg),
		cfg:     cfg,
		exited:  make(chan struct{}),
	}, nil
}

func (d *stdioDriver) ID() string {
	return d.cfg.ServerID
}

func (d *stdioDriver) Open(ctx context.Context) error {
	d.setState(StateConnecting, nil)

	cmd := exec.Command(d.cfg.Command, d.cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range d.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	// Own process group so Close can terminate the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return d.openFailed(&TransportError{Transport: TransportStdio, Op: "stdin pipe", Err: err})
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return d.openFailed(&TransportError{Transport: TransportStdio, Op: "stdout pipe", Err: err})
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return d.openFailed(&TransportError{Transport: TransportStdio, Op: "stderr pipe", Err: err})
	}

	if err := cmd.Start(); err != nil {
		return d.openFailed(&TransportError{Transport: TransportStdio, Op: "start", Err: err})
	}

	d.mu.Lock()
	d.cmd = cmd
	d.stdin = stdin
	d.mu.Unlock()

	d.logger.Debug("child process started", "command", d.cfg.Command, "pid", cmd.Process.Pid)

	go d.readLoop(stdout)
	go d.stderrLoop(stderr)
	go d.waitLoop(cmd)

	hctx, cancel := context.WithTimeout(ctx, d.cfg.startupTimeout())
	defer cancel()
	if err := d.handshake(hctx, d.send); err != nil {
		d.terminate()
		return d.openFailed(err)
	}
	return nil
}

// openFailed reports a failed open as a DISCONNECTED transition, which is
// what drives the registry's retry accounting.
func (d *stdioDriver) openFailed(err error) error {
	d.fail(err)
	return err
}

func (d *stdioDriver) Call(ctx context.Context, method string, params, result any) error {
	return d.call(ctx, d.send, method, params, result)
}

func (d *stdioDriver) Notify(ctx context.Context, method string, params any) error {
	return d.notify(d.send, method, params)
}

// send writes one message followed by a newline. Writes are serialized so
// concurrent calls never interleave lines.
func (d *stdioDriver) send(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.stdin == nil {
		return ErrClosed
	}
	if _, err := d.stdin.Write(append(data, '\n')); err != nil {
		return &TransportError{Transport: TransportStdio, Op: "write", Err: err}
	}
	return nil
}

// readLoop parses stdout line-by-line and hands each envelope to the framer.
// Replies to server-initiated requests go back down stdin.
func (d *stdioDriver) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if reply := d.framer.Dispatch(line); reply != nil {
			if err := d.send(reply); err != nil {
				d.logger.Warn("failed to send reply", "error", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		d.logger.Debug("stdout closed", "error", err)
	}
}

func (d *stdioDriver) stderrLoop(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		d.logger.Log(context.Background(), classifyStderrLine(line), "server stderr", "line", line)
	}
}

// waitLoop reaps the child and reports unexpected exits.
func (d *stdioDriver) waitLoop(cmd *exec.Cmd) {
	err := cmd.Wait()
	close(d.exited)

	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	d.logger.Warn("child process exited", "code", exitCode, "error", err)
	d.fail(&TransportError{
		Transport: TransportStdio,
		Op:        "process",
		Err:       fmt.Errorf("exited with code %d", exitCode),
	})
}

func (d *stdioDriver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	stdin := d.stdin
	d.mu.Unlock()

	d.framer.Fail(ErrClosed)

	// EOF on stdin asks the server to exit on its own.
	if stdin != nil {
		stdin.Close()
	}

	select {
	case <-d.exited:
	case <-time.After(stdinCloseGracePeriod):
		d.terminate()
	}

	d.setState(StateClosed, nil)
	return nil
}

// terminate kills the child's process group.
func (d *stdioDriver) terminate() {
	d.mu.Lock()
	cmd := d.cmd
	d.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		cmd.Process.Kill()
	}
}

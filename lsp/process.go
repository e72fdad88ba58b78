package lsp

import (
	"bufio"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/Stryk91/lsp-mcp-bridge/logger"
)

// process owns one language server child process. Its stdin/stdout pipes are
// the protocol channel; stderr is drained to the log and never parsed.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	done    chan struct{}
	mu      sync.Mutex
	exitErr error
}

// startProcess launches the configured command. Fails with SpawnFailure when
// the executable cannot be started.
func startProcess(spec *ServerSpec, workDir string) (*process, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	if workDir != "" {
		cmd.Dir = workDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, NewError(KindSpawnFailure, "stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, NewError(KindSpawnFailure, "stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, NewError(KindSpawnFailure, "stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, NewError(KindSpawnFailure, "failed to start "+spec.Command, err)
	}

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		done:   make(chan struct{}),
	}

	go drainStderr(spec.Name, stderr)
	go p.wait()

	logger.Info("spawned language server", spec.Name, "pid", cmd.Process.Pid)

	return p, nil
}

func drainStderr(name string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		logger.Debug("["+name+" stderr]", scanner.Text())
	}
}

func (p *process) wait() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()

	close(p.done)
}

// Done is closed when the process has exited, however that happened.
func (p *process) Done() <-chan struct{} { return p.done }

// ExitErr reports the exit status once Done is closed.
func (p *process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func (p *process) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// kill force-terminates the process. Used as the fallback when the
// shutdown/exit handshake did not make it exit within the grace period.
func (p *process) kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// awaitExit waits up to d for the process to exit, then kills it.
func (p *process) awaitExit(d time.Duration) {
	select {
	case <-p.done:
	case <-time.After(d):
		logger.Warn("language server did not exit within grace period, killing pid", p.cmd.Process.Pid)
		p.kill()
		<-p.done
	}
}

// stdio adapts the child's pipes into the single io.ReadWriteCloser the
// framed stream is built on.
func (p *process) stdio() io.ReadWriteCloser {
	return &stdioPipe{p: p}
}

type stdioPipe struct {
	p *process
}

func (s *stdioPipe) Read(b []byte) (int, error)  { return s.p.stdout.Read(b) }
func (s *stdioPipe) Write(b []byte) (int, error) { return s.p.stdin.Write(b) }

func (s *stdioPipe) Close() error {
	s.p.stdin.Close()
	return s.p.stdout.Close()
}

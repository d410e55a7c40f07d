// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logicproc spawns and supervises the game-rules subprocess:
// framed stdout reader, stderr tee to a file, stdin writer draining an
// outbound queue, and an exit watcher.
package logicproc

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/saiblo/local-judger-go/internal/framing"
)

// terminationGrace is how long Terminate waits after SIGTERM before
// escalating to SIGKILL.
const terminationGrace = 3 * time.Second

// ExitKind classifies how the logic process's exit watcher concluded.
type ExitKind int

const (
	// ExitCrashed is a non-zero exit observed while the match was still
	// running, a LOGIC_CRASHED condition.
	ExitCrashed ExitKind = iota
	// ExitCleanWhileRunning is a zero exit observed while the match was
	// still expecting to hear from logic; logged, not a crash.
	ExitCleanWhileRunning
	// ExitAfterShutdown is any exit observed after Terminate was called;
	// expected, not reported.
	ExitAfterShutdown
)

// Config describes how to spawn the logic subprocess.
type Config struct {
	LogicPath string
	OutputDir string
}

// Channel owns the logic subprocess and its three standard streams.
type Channel struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *zap.Logger

	outbound chan []byte
	exited   chan struct{}

	shuttingDown atomic.Bool
	exitOnce     sync.Once
}

// Spawn starts the logic subprocess with piped stdio and begins its
// stdout/stderr reader goroutines. onFrame is called for every
// (target, payload) decoded from logic's stdout; onExit is called exactly
// once, when the process has exited, with its classification.
func Spawn(ctx context.Context, cfg Config, logger *zap.Logger, onFrame func(target int32, payload []byte), onExit func(ExitKind, error)) (*Channel, error) {
	cmd := exec.CommandContext(ctx, cfg.LogicPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
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

	ch := &Channel{
		cmd:      cmd,
		stdin:    stdin,
		logger:   logger,
		outbound: make(chan []byte, 64),
		exited:   make(chan struct{}),
	}

	stdoutDone := make(chan struct{})
	stderrDone := make(chan struct{})
	go ch.stdinLoop()
	go func() {
		defer close(stdoutDone)
		ch.stdoutLoop(stdout, onFrame)
	}()
	go func() {
		defer close(stderrDone)
		ch.stderrLoop(stderr, cfg.OutputDir)
	}()
	go ch.waitLoop(stdoutDone, stderrDone, onExit)

	return ch, nil
}

// Send enqueues a pre-framed payload for delivery on logic's stdin. It
// never blocks and never panics: outbound is never closed (only stdinLoop
// stops reading it, once exited fires), so a Send after the process has
// already exited just drops the frame instead of racing a closed-channel
// send.
func (c *Channel) Send(frame []byte) {
	select {
	case c.outbound <- frame:
	case <-c.exited:
	default:
		if c.logger != nil {
			c.logger.Warn("logic stdin queue full, dropping frame")
		}
	}
}

func (c *Channel) stdinLoop() {
	for {
		select {
		case frame := <-c.outbound:
			if _, err := c.stdin.Write(frame); err != nil {
				if c.logger != nil {
					c.logger.Warn("writing to logic stdin failed", zap.Error(err))
				}
				return
			}
		case <-c.exited:
			return
		}
	}
}

func (c *Channel) stdoutLoop(stdout io.Reader, onFrame func(int32, []byte)) {
	r := bufio.NewReader(stdout)
	for {
		target, payload, err := framing.ReadTargetedFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && c.logger != nil {
				c.logger.Warn("logic stdout disconnected due to error", zap.Error(err))
			}
			return
		}
		onFrame(target, payload)
	}
}

func (c *Channel) stderrLoop(stderr io.Reader, outputDir string) {
	path := filepath.Join(outputDir, "logic_stderr.txt")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		// Keep draining even without the file, so a chatty logic process
		// can never block on a full stderr pipe.
		if c.logger != nil {
			c.logger.Warn("could not open logic stderr file", zap.Error(err))
		}
	} else {
		defer file.Close()
	}

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if file != nil {
			file.WriteString(line)
			file.WriteString("\n")
		}
		if c.logger != nil {
			c.logger.Warn("logic stderr", zap.String("line", line))
		}
	}
}

// waitLoop reaps the process and classifies its exit. It waits for both
// reader loops to hit EOF before calling Wait: Wait closes the pipes, so
// reaping first could discard a final frame the process wrote just before
// exiting, and would let the exit classification outrun the dispatch of
// that frame (a logic that reports EndInfo and exits immediately must be
// seen as a clean GAME_OVER, not a premature exit).
func (c *Channel) waitLoop(stdoutDone, stderrDone <-chan struct{}, onExit func(ExitKind, error)) {
	<-stdoutDone
	<-stderrDone
	err := c.cmd.Wait()
	c.exitOnce.Do(func() {
		close(c.exited)
		if c.shuttingDown.Load() {
			onExit(ExitAfterShutdown, err)
			return
		}
		if err == nil {
			onExit(ExitCleanWhileRunning, nil)
			return
		}
		onExit(ExitCrashed, err)
	})
}

// Terminate sends SIGTERM to the logic process group and escalates to
// SIGKILL if it has not exited within the grace period. Signalling the
// whole group (Setpgid makes its id the process's pid) also ends any child
// the logic forked that still holds its pipes open, which would otherwise
// keep waitLoop from ever reaping. The process's actual reaping happens in
// the waitLoop goroutine started by Spawn; Terminate only sends signals and
// waits on its exit, so cmd.Wait is never called from two goroutines. It is
// idempotent and safe to call even if the process has already exited.
func (c *Channel) Terminate(ctx context.Context) {
	c.shuttingDown.Store(true)

	if c.cmd.Process == nil {
		return
	}
	pgid := c.cmd.Process.Pid
	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	select {
	case <-c.exited:
	case <-time.After(terminationGrace):
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		<-c.exited
	case <-ctx.Done():
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		<-c.exited
	}
}

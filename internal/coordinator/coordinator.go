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

// Package coordinator is the judger's routing engine: it owns the TCP
// listener, every AI endpoint, the logic channel, the round state
// machine, and the event journal, and applies match policy (OLE/RE/TLE
// classification, round fan-out, terminal transitions).
package coordinator

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/saiblo/local-judger-go/internal/aiconn"
	"github.com/saiblo/local-judger-go/internal/config"
	"github.com/saiblo/local-judger-go/internal/csync"
	"github.com/saiblo/local-judger-go/internal/framing"
	"github.com/saiblo/local-judger-go/internal/journal"
	"github.com/saiblo/local-judger-go/internal/logicproc"
	"github.com/saiblo/local-judger-go/internal/protocol"
	"github.com/saiblo/local-judger-go/internal/pubsub"
	"github.com/saiblo/local-judger-go/internal/roundstate"
)

// EventType names one kind of event delivered to the optional external
// handler. Only a subset of journal events is surfaced here; the rest
// (JUDGE_START, LOGIC_BOOTED, AI_RE, AI_TLE, AI_OLE, LOGIC_CRASHED,
// INTERNAL_ERROR) are internal-only.
type EventType int

const (
	TCPServerStarted EventType = iota
	AIConnected
	NewRound
	GameOver
)

// Event is delivered to the coordinator's external handler, in journal
// order, off the coordinator's own goroutines.
type Event struct {
	Type   EventType
	Addr   string
	AIID   int
	Round  int
	Scores []int
}

// Coordinator owns every moving part of one match. Its exported methods
// are safe to call from any goroutine; internal state transitions are
// funneled through mu, held only around state mutation and never across
// blocking I/O, per the concurrency model's mutex-based alternative to a
// single-owner event loop.
type Coordinator struct {
	cfg    config.Config
	logger *zap.Logger

	mu          sync.Mutex
	listener    net.Listener
	nextAIID    int
	endpoints   *csync.Slice[*aiconn.Endpoint]
	logic       *logicproc.Channel
	round       *roundstate.Machine
	j           *journal.Journal
	gameRunning bool
	finished    bool
	summary     journal.Summary

	shutdownOnce sync.Once
	terminalCh   chan struct{}

	broadcaster *pubsub.Broadcaster[Event]
}

// New creates a coordinator at its pre-game defaults. Start must be
// called to begin accepting connections.
func New(cfg config.Config, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		cfg:         cfg,
		logger:      logger,
		round:       roundstate.New(),
		gameRunning: true,
		terminalCh:  make(chan struct{}),
		endpoints:   csync.NewSlice[*aiconn.Endpoint](),
	}
}

// SetEventHandler installs the optional external event handler. It must
// be called before Start; handler runs on its own goroutine, off the
// coordinator's critical path, so a slow handler never stalls the match.
func (c *Coordinator) SetEventHandler(handler func(Event)) {
	c.broadcaster = pubsub.NewBroadcaster(func(e pubsub.Event[Event]) {
		handler(e.Payload)
	})
}

func (c *Coordinator) emit(e Event) {
	if c.broadcaster != nil {
		c.broadcaster.Publish(e)
	}
}

// Start binds the TCP listener, accepts player_count AI connections,
// spawns the logic subprocess on the Nth, and blocks until the match
// reaches a terminal transition, then returns the finalized Summary. err
// is non-nil, with an empty Summary, only for a failure that prevented
// the match from starting at all (e.g. the listener could not bind).
func (c *Coordinator) Start(ctx context.Context) (journal.Summary, error) {
	now := time.Now()
	c.mu.Lock()
	c.j = journal.New(now)
	c.mu.Unlock()

	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", c.cfg.Port))
	if err != nil {
		return journal.Summary{}, fmt.Errorf("coordinator: listen: %w", err)
	}
	c.mu.Lock()
	c.listener = ln
	c.mu.Unlock()

	c.logger.Info("judger server is running", zap.String("addr", ln.Addr().String()))
	c.emit(Event{Type: TCPServerStarted, Addr: ln.Addr().String()})

	go c.signalWatcher()
	go c.acceptLoop(ctx)

	<-c.terminalCh

	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary, nil
}

func (c *Coordinator) acceptLoop(ctx context.Context) {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			return
		}

		c.mu.Lock()
		if c.nextAIID >= c.cfg.PlayerCount {
			c.mu.Unlock()
			conn.Close()
			continue
		}
		aiID := c.nextAIID
		c.nextAIID++
		spawnLogicNow := c.nextAIID == c.cfg.PlayerCount
		c.mu.Unlock()

		ep := aiconn.New(aiID, conn, c.logger)
		c.endpoints.Append(ep) // ai_id is assigned in strict 0..n-1 order, so index == ai_id

		c.logger.Info("handling AI connection", zap.Int("ai_id", aiID), zap.String("addr", conn.RemoteAddr().String()))
		c.mu.Lock()
		c.j.AppendAIConnected(time.Now(), aiID)
		c.mu.Unlock()
		c.emit(Event{Type: AIConnected, AIID: aiID})

		go ep.Run(
			func() int { return c.round.OutputLimit() },
			func(payload []byte) { c.onAIFrame(aiID, payload) },
			func(reason aiconn.DisconnectReason) { c.onAIDisconnect(aiID, reason) },
		)

		if spawnLogicNow {
			c.spawnLogic(ctx)
		}
	}
}

func (c *Coordinator) spawnLogic(ctx context.Context) {
	logic, err := logicproc.Spawn(ctx, logicproc.Config{
		LogicPath: c.cfg.LogicPath,
		OutputDir: c.cfg.OutputDir,
	}, c.logger, c.onLogicFrame, c.onLogicExit)
	if err != nil {
		c.mu.Lock()
		c.gameRunning = false
		summary := c.j.AppendInternalError(time.Now(), c.round.State(), "failed to spawn logic: "+err.Error())
		c.mu.Unlock()
		c.finishMatch(summary)
		return
	}

	c.mu.Lock()
	c.logic = logic
	c.j.AppendLogicBooted(time.Now())
	c.mu.Unlock()

	playerList := make([]int, c.cfg.PlayerCount)
	for i := range playerList {
		playerList[i] = 1
	}
	init := protocol.InitMessage{
		PlayerList: playerList,
		PlayerNum:  c.cfg.PlayerCount,
		Config:     c.cfg.Config,
		Replay:     c.cfg.ReplayPath,
	}
	frame, err := encodeFrame(init)
	if err != nil {
		c.logger.Error("failed to encode init message", zap.Error(err))
		return
	}
	logic.Send(frame)
}

// onAIFrame handles a payload read from an AI's socket. It forwards the
// payload to logic only if the AI is currently in the listen set.
func (c *Coordinator) onAIFrame(aiID int, payload []byte) {
	if !c.round.Listening(aiID) {
		c.logger.Warn("received data from AI which is not listened", zap.Int("ai_id", aiID))
		return
	}

	elapsedMS := c.round.Elapsed(time.Now()).Milliseconds()
	msg := protocol.AINormalMessage{Player: aiID, Content: string(payload), ElapsedMS: elapsedMS}
	frame, err := encodeFrame(msg)
	if err != nil {
		c.logger.Error("failed to encode AI normal message", zap.Error(err))
		return
	}

	c.mu.Lock()
	logic := c.logic
	c.mu.Unlock()
	if logic != nil {
		logic.Send(frame)
	}
}

func (c *Coordinator) onAIDisconnect(aiID int, reason aiconn.DisconnectReason) {
	switch reason {
	case aiconn.ReasonOutputLimitExceeded:
		c.reportAIError(aiID, protocol.OutputLimitError, journal.AIOLE)
	case aiconn.ReasonError, aiconn.ReasonEOF:
		c.reportAIError(aiID, protocol.RunError, journal.AIRE)
	}
}

// reportAIError implements the first-AI-error-per-match policy: only the
// first classified error of any kind during a match is journaled and
// forwarded to logic; later ones are logged only.
func (c *Coordinator) reportAIError(aiID int, kind protocol.AIErrorKind, eventType journal.EventType) {
	now := time.Now()

	c.mu.Lock()
	if !c.gameRunning {
		c.mu.Unlock()
		c.logger.Info("AI error suppressed, game already concluded",
			zap.Int("ai_id", aiID), zap.String("kind", kind.LogName()))
		return
	}
	c.gameRunning = false
	round := c.round.State()

	switch eventType {
	case journal.AIOLE:
		c.j.AppendAIOLE(now, round, aiID, "")
	case journal.AIRE:
		c.j.AppendAIRE(now, round, aiID, "")
	case journal.AITLE:
		c.j.AppendAITLE(now, round, aiID, c.round.Elapsed(now))
	}
	logic := c.logic
	c.mu.Unlock()

	if logic == nil {
		return
	}
	frame, err := encodeFrame(protocol.AIErrorMessage{Player: aiID, State: round, Error: kind})
	if err != nil {
		c.logger.Error("failed to encode AI error message", zap.Error(err))
		return
	}
	logic.Send(frame)
}

// onLogicFrame handles one (target, payload) pair decoded from logic's
// stdout: target -1 is a control message for the judger itself; any other
// valid target is a verbatim forward to that AI.
func (c *Coordinator) onLogicFrame(target int32, payload []byte) {
	if target == -1 {
		c.onLogicControlMessage(payload)
		return
	}
	if target < 0 || int(target) >= c.cfg.PlayerCount {
		c.logger.Error("invalid target id from logic", zap.Int32("target", target))
		return
	}

	if ep, ok := c.endpoints.Get(int(target)); ok {
		ep.Write(payload)
	}
}

func (c *Coordinator) onLogicControlMessage(payload []byte) {
	msg, err := protocol.DecodeLogicMessage(payload)
	if err != nil {
		// A malformed or incomplete control message is logged and
		// dropped, not forwarded to logic and not treated as a match-
		// ending internal error: a single cosmetic protocol slip should
		// not abort an otherwise-healthy match.
		c.logger.Error("failed to decode logic control message", zap.Error(err))
		return
	}

	switch m := msg.(type) {
	case *protocol.RoundConfig:
		c.applyRoundConfig(m)
	case *protocol.RoundInfo:
		c.applyRoundInfo(m)
	case *protocol.EndInfo:
		c.applyEndInfo(m)
	}
}

func (c *Coordinator) applyRoundConfig(cfg *protocol.RoundConfig) {
	now := time.Now()
	var timeLimit time.Duration
	if cfg.Time > 0 {
		timeLimit = time.Duration(cfg.Time) * time.Second
	}
	changed, elapsed := c.round.ApplyRoundConfig(now, cfg.State, timeLimit)
	c.onRoundTransition(changed, cfg.State, elapsed, now)
}

func (c *Coordinator) applyRoundInfo(info *protocol.RoundInfo) {
	if len(info.Player) != len(info.Content) {
		c.logger.Error("player count is not equal to content count",
			zap.Int("player_count", len(info.Player)), zap.Int("content_count", len(info.Content)))
		return
	}

	now := time.Now()
	changed, elapsed := c.round.ApplyRoundInfo(now, info.State, info.Listen)
	c.onRoundTransition(changed, info.State, elapsed, now)

	for i, aiID := range info.Player {
		if aiID < 0 || aiID >= c.cfg.PlayerCount {
			c.logger.Error("invalid ai_id in round info fan-out", zap.Int("ai_id", aiID))
			continue
		}
		if ep, ok := c.endpoints.Get(aiID); ok {
			ep.Write([]byte(info.Content[i]))
		}
	}
}

// onRoundTransition arms the deadline timer and journals NEW_ROUND
// whenever the round index actually changed; a repeated state only
// refreshes the listen set.
// elapsed is the time spent in the outgoing round and is recorded on the
// NEW_ROUND entry.
func (c *Coordinator) onRoundTransition(changed bool, newState int, elapsed time.Duration, now time.Time) {
	if !changed {
		return
	}
	c.mu.Lock()
	c.j.AppendNewRound(now, newState, elapsed)
	c.mu.Unlock()
	c.emit(Event{Type: NewRound, Round: newState})
	c.round.ArmDeadline(c.onDeadline)
}

func (c *Coordinator) onDeadline(firstListenTarget int, empty bool) {
	if empty {
		c.logger.Warn("round deadline expired with no listen target; possible logic bug")
		return
	}
	c.reportAIError(firstListenTarget, protocol.TimeOutError, journal.AITLE)
}

func (c *Coordinator) applyEndInfo(info *protocol.EndInfo) {
	c.logger.Info("game over", zap.Ints("scores", info.Scores))

	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	c.gameRunning = false
	summary := c.j.AppendGameOver(time.Now(), c.round.State(), info.Scores)
	c.mu.Unlock()

	c.emit(Event{Type: GameOver, Scores: info.Scores})
	c.finishMatch(summary)
}

// onLogicExit handles the logic subprocess's exit classification.
func (c *Coordinator) onLogicExit(kind logicproc.ExitKind, err error) {
	switch kind {
	case logicproc.ExitAfterShutdown:
		return
	case logicproc.ExitCleanWhileRunning:
		c.logger.Warn("logic exited cleanly without reporting GAME_OVER")
		c.mu.Lock()
		if c.finished {
			c.mu.Unlock()
			return
		}
		c.gameRunning = false
		summary := c.j.AppendInternalError(time.Now(), c.round.State(), "logic exited without GAME_OVER")
		c.mu.Unlock()
		c.finishMatch(summary)
	case logicproc.ExitCrashed:
		c.mu.Lock()
		if c.finished {
			c.mu.Unlock()
			return
		}
		c.gameRunning = false
		comment := "logic process exited with an error"
		if err != nil {
			comment = err.Error()
		}
		summary := c.j.AppendLogicCrashed(time.Now(), c.round.State(), comment)
		c.mu.Unlock()
		c.finishMatch(summary)
	}
}

func (c *Coordinator) signalWatcher() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		c.mu.Lock()
		if c.finished {
			c.mu.Unlock()
			return
		}
		c.gameRunning = false
		summary := c.j.AppendInternalError(time.Now(), c.round.State(), "received signal: "+sig.String())
		c.mu.Unlock()
		c.finishMatch(summary)
	case <-c.terminalCh:
	}
}

// finishMatch records the finalized summary and runs the shutdown
// sequence. It is safe to call more than once; only the first caller's
// summary is kept, so a duplicate terminal event (a second EndInfo, or
// the exit watcher racing one) is a no-op. Teardown runs on its own
// goroutine: finishMatch is reached from the logic stdout dispatch path
// (EndInfo) and from the exit watcher, and Shutdown waits on both, so
// running it inline would deadlock the caller against itself.
func (c *Coordinator) finishMatch(summary journal.Summary) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	c.finished = true
	c.gameRunning = false
	c.summary = summary
	c.mu.Unlock()

	go func() {
		c.Shutdown()
		close(c.terminalCh)
	}()
}

// Shutdown closes the listener, cancels the deadline timer, closes every
// AI endpoint, and terminates the logic process. It is idempotent and
// safe to call concurrently with match progress (e.g. from an operator
// requesting an early stop).
func (c *Coordinator) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.logger.Info("judger server is shutting down")
		c.mu.Lock()
		ln := c.listener
		logic := c.logic
		c.mu.Unlock()

		if ln != nil {
			ln.Close()
		}
		c.round.CancelDeadline()

		c.endpoints.Range(func(_ int, ep *aiconn.Endpoint) bool {
			ep.Close()
			return true
		})
		if logic != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			logic.Terminate(ctx)
			cancel()
		}
		if c.broadcaster != nil {
			c.broadcaster.Close()
		}
	})

	// An operator-requested shutdown is itself a terminal transition. When
	// no other terminal event got there first, classify it so Start can
	// return a finalized summary instead of blocking forever.
	c.mu.Lock()
	var summary journal.Summary
	finalize := false
	if !c.finished && c.j != nil {
		c.gameRunning = false
		summary = c.j.AppendInternalError(time.Now(), c.round.State(), "shutdown requested")
		finalize = true
	}
	c.mu.Unlock()
	if finalize {
		c.finishMatch(summary)
	}
}

// encodeFrame renders a protocol message and prefixes it with its 4-byte
// signed length, the wire form judger->logic messages take.
func encodeFrame(enc interface{ Encode() ([]byte, error) }) ([]byte, error) {
	payload, err := enc.Encode()
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, 4+len(payload))
	frame = append(frame, framing.Int32ToBytes(int32(len(payload)))...)
	frame = append(frame, payload...)
	return frame, nil
}

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

// Package aiconn runs one connected AI's socket I/O: a framed reader that
// enforces the output limit, and a writer draining a per-connection FIFO
// outbound queue.
package aiconn

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/saiblo/local-judger-go/internal/framing"
)

// DisconnectReason classifies why an endpoint's read or write loop ended.
type DisconnectReason int

const (
	// ReasonEOF is a clean stream end: the peer closed the connection at a
	// frame boundary.
	ReasonEOF DisconnectReason = iota
	// ReasonError is any other I/O failure, reported as an RE.
	ReasonError
	// ReasonOutputLimitExceeded is a frame whose declared length exceeded
	// the output limit in effect at read time, reported as an OLE.
	ReasonOutputLimitExceeded
)

// Endpoint owns one AI connection: its socket, a framed reader goroutine,
// and a writer goroutine draining an outbound queue. ai_id is assigned by
// the coordinator in connection-accept order and is immutable once set.
type Endpoint struct {
	AIID int

	conn   net.Conn
	reader *bufio.Reader
	logger *zap.Logger

	outbound  chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps an accepted connection as an endpoint. It does not start any
// goroutines; call Run to begin reading and writing.
func New(aiID int, conn net.Conn, logger *zap.Logger) *Endpoint {
	return &Endpoint{
		AIID:     aiID,
		conn:     conn,
		reader:   bufio.NewReader(conn),
		logger:   logger,
		outbound: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

// Run starts the read and write loops and blocks until both exit. onFrame
// is called for every payload received from the AI, after output-limit
// checking; onDisconnect is called exactly once, from whichever loop
// first observes the connection ending, with the reason. outputLimit is
// read fresh for every frame, so a mid-match RoundConfig change (were one
// ever wired to alter the output limit) takes effect immediately.
func (e *Endpoint) Run(outputLimit func() int, onFrame func(payload []byte), onDisconnect func(DisconnectReason)) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		e.readLoop(outputLimit, onFrame, onDisconnect)
	}()
	go func() {
		defer wg.Done()
		e.writeLoop()
	}()

	wg.Wait()
}

func (e *Endpoint) readLoop(outputLimit func() int, onFrame func([]byte), onDisconnect func(DisconnectReason)) {
	for {
		payload, err := framing.ReadFrame(e.reader, outputLimit())
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				e.reportDisconnect(ReasonEOF, onDisconnect)
			case errors.Is(err, framing.ErrOutputLimitExceeded):
				e.reportDisconnect(ReasonOutputLimitExceeded, onDisconnect)
			default:
				e.reportDisconnect(ReasonError, onDisconnect)
			}
			return
		}
		if e.logger != nil {
			e.logger.Debug("received data from AI", zap.Int("ai_id", e.AIID), zap.Int("bytes", len(payload)))
		}
		onFrame(payload)
	}
}

// writeLoop drains the outbound queue. A failed write closes the
// connection; the read loop then observes the closed connection and makes
// the single onDisconnect report (ReasonError).
func (e *Endpoint) writeLoop() {
	for {
		select {
		case payload, ok := <-e.outbound:
			if !ok {
				return
			}
			if err := framing.WriteFrame(e.conn, payload); err != nil {
				e.Close()
				return
			}
		case <-e.closed:
			return
		}
	}
}

// Write enqueues a frame's payload for delivery to the AI. It never
// blocks: if the endpoint has already been closed, or its outbound queue
// is full because writeLoop is itself stuck flushing to a slow or
// unresponsive socket, the payload is dropped instead of stalling the
// caller. One stalled peer must never stall the coordinator's fan-out.
func (e *Endpoint) Write(payload []byte) {
	select {
	case e.outbound <- payload:
	case <-e.closed:
	default:
		if e.logger != nil {
			e.logger.Warn("AI outbound queue full, dropping frame", zap.Int("ai_id", e.AIID))
		}
	}
}

// Close closes the underlying connection and stops the write loop. It is
// safe to call more than once and from any goroutine.
func (e *Endpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closed)
		err = e.conn.Close()
	})
	return err
}

func (e *Endpoint) reportDisconnect(reason DisconnectReason, onDisconnect func(DisconnectReason)) {
	e.Close()
	onDisconnect(reason)
}

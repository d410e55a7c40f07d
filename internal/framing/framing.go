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

// Package framing implements the judger's wire-level frame codec: a
// 4-byte signed big-endian length prefix followed by that many payload
// bytes, with an optional 4-byte signed target prefix on logic's stdout
// stream.
package framing

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrOutputLimitExceeded is returned by ReadFrame when the declared frame
// length exceeds maxLen. The payload is not consumed from r.
var ErrOutputLimitExceeded = errors.New("framing: output limit exceeded")

// ErrNegativeLength is returned when a frame declares a negative length.
// A signed length field that goes negative is a protocol violation, not a
// valid empty-ish frame; the source process is treated as disconnected.
var ErrNegativeLength = errors.New("framing: negative frame length")

// ErrShortRead is returned when the stream ends partway through a length
// prefix or a payload. A clean io.EOF at a frame boundary is reported as
// io.EOF, not this error; this distinguishes "nothing more to read" from
// "the peer died mid-frame".
var ErrShortRead = errors.New("framing: short read before frame boundary")

// Int32ToBytes encodes x as 4 big-endian bytes, two's-complement signed.
func Int32ToBytes(x int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(x))
	return b
}

// BytesToInt32 decodes 4 big-endian bytes as a two's-complement signed
// int32. Callers must pass exactly 4 bytes.
func BytesToInt32(b []byte) int32 {
	return int32(binary.BigEndian.Uint32(b))
}

// readFull reads exactly len(buf) bytes from r. A stream that ends
// (io.EOF) before even one byte is read is reported as io.EOF (clean
// stream end, valid at a frame boundary); a partial read, or any other
// read error, is ErrShortRead.
func readFull(r io.Reader, buf []byte) error {
	n, err := io.ReadFull(r, buf)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) && n == 0 {
		return io.EOF
	}
	return ErrShortRead
}

// ReadFrame reads one `[length][payload]` frame from r. maxLen bounds the
// accepted payload length; a declared length greater than maxLen returns
// ErrOutputLimitExceeded without consuming the payload, since the length
// is checked before any of the body is read. maxLen <= 0 disables the
// limit. A clean EOF reading the length
// prefix is returned as io.EOF; anything shorter than a full prefix or
// payload is ErrShortRead; a negative declared length is
// ErrNegativeLength.
func ReadFrame(r io.Reader, maxLen int) ([]byte, error) {
	var lenBuf [4]byte
	if err := readFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := BytesToInt32(lenBuf[:])
	if length < 0 {
		return nil, ErrNegativeLength
	}
	if maxLen > 0 && int(length) > maxLen {
		return nil, ErrOutputLimitExceeded
	}

	payload := make([]byte, length)
	if length > 0 {
		if err := readFull(r, payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// ReadTargetedFrame reads one `[length][target][payload]` frame, as sent
// on logic's stdout. target == -1 marks a control message for the judger
// itself; 0 <= target < N marks a direct forward to that AI.
func ReadTargetedFrame(r io.Reader) (target int32, payload []byte, err error) {
	var lenBuf [4]byte
	if err = readFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	length := BytesToInt32(lenBuf[:])
	if length < 0 {
		return 0, nil, ErrNegativeLength
	}

	var targetBuf [4]byte
	if err = readFull(r, targetBuf[:]); err != nil {
		return 0, nil, err
	}
	target = BytesToInt32(targetBuf[:])

	payload = make([]byte, length)
	if length > 0 {
		if err = readFull(r, payload); err != nil {
			return 0, nil, err
		}
	}
	return target, payload, nil
}

// flusher is implemented by writers (such as bufio.Writer) that buffer
// output and need an explicit flush to reach the peer.
type flusher interface {
	Flush() error
}

// WriteFrame writes a `[length][payload]` frame to w and flushes it if w
// supports flushing, so a buffered frame always reaches the peer whole.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > (1<<31)-1 {
		return errors.New("framing: payload too large to encode as a signed int32 length")
	}
	if _, err := w.Write(Int32ToBytes(int32(len(payload)))); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// WriteTargetedFrame writes a `[length][target][payload]` frame to w, the
// shape logic writes on its stdout. The judger's own writes to logic's
// stdin are not targeted; this writer is used by tests that stand in for
// logic and exercise the logic-stdout decoder end to end.
func WriteTargetedFrame(w io.Writer, target int32, payload []byte) error {
	if len(payload) > (1<<31)-1 {
		return errors.New("framing: payload too large to encode as a signed int32 length")
	}
	if _, err := w.Write(Int32ToBytes(int32(len(payload)))); err != nil {
		return err
	}
	if _, err := w.Write(Int32ToBytes(target)); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

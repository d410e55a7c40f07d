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

package aiconn_test

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiblo/local-judger-go/internal/aiconn"
	"github.com/saiblo/local-judger-go/internal/framing"
)

func pipePair(t *testing.T) (serverSide net.Conn, clientSide net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	go func() {
		conn, _ := ln.Accept()
		acceptCh <- conn
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	server := <-acceptCh
	require.NotNil(t, server)
	return server, client
}

func TestEndpointDeliversFramesToHandler(t *testing.T) {
	server, client := pipePair(t)
	defer client.Close()

	ep := aiconn.New(0, server, zap.NewNop())

	var mu sync.Mutex
	var received [][]byte
	done := make(chan struct{})
	go ep.Run(
		func() int { return 2048 },
		func(payload []byte) {
			mu.Lock()
			received = append(received, payload)
			mu.Unlock()
			if len(received) == 1 {
				close(done)
			}
		},
		func(aiconn.DisconnectReason) {},
	)

	require.NoError(t, framing.WriteFrame(client, []byte("ok")))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][]byte{[]byte("ok")}, received)
}

func TestEndpointWriteReachesClient(t *testing.T) {
	server, client := pipePair(t)
	defer client.Close()

	ep := aiconn.New(0, server, zap.NewNop())
	go ep.Run(func() int { return 2048 }, func([]byte) {}, func(aiconn.DisconnectReason) {})

	ep.Write([]byte("go"))

	payload, err := framing.ReadFrame(client, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("go"), payload)
}

// TestEndpointWriteDropsWhenQueueFull drives the outbound queue to its
// capacity without starting the write loop, so nothing ever drains it,
// then checks one more Write returns instead of blocking forever.
func TestEndpointWriteDropsWhenQueueFull(t *testing.T) {
	server, client := pipePair(t)
	defer client.Close()
	defer server.Close()

	ep := aiconn.New(0, server, zap.NewNop())
	for i := 0; i < 64; i++ {
		ep.Write([]byte("x"))
	}

	done := make(chan struct{})
	go func() {
		ep.Write([]byte("one too many"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Write blocked on a full outbound queue instead of dropping the frame")
	}
}

func TestEndpointOutputLimitExceeded(t *testing.T) {
	server, client := pipePair(t)
	defer client.Close()

	ep := aiconn.New(0, server, zap.NewNop())

	var reason aiconn.DisconnectReason
	done := make(chan struct{})
	go ep.Run(
		func() int { return 4 },
		func([]byte) {},
		func(r aiconn.DisconnectReason) {
			reason = r
			close(done)
		},
	)

	require.NoError(t, framing.WriteFrame(client, make([]byte, 4096)))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disconnect callback was never invoked")
	}
	assert.Equal(t, aiconn.ReasonOutputLimitExceeded, reason)
}

func TestEndpointDisconnectOnClose(t *testing.T) {
	server, client := pipePair(t)

	ep := aiconn.New(0, server, zap.NewNop())

	var reason aiconn.DisconnectReason
	done := make(chan struct{})
	go ep.Run(
		func() int { return 2048 },
		func([]byte) {},
		func(r aiconn.DisconnectReason) {
			reason = r
			close(done)
		},
	)

	require.NoError(t, client.Close())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disconnect callback was never invoked")
	}
	assert.Equal(t, aiconn.ReasonEOF, reason)
}

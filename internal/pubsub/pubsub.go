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

// Package pubsub delivers coordinator events to a single external handler
// on a dedicated goroutine, so a slow or absent handler never stalls match
// progress.
package pubsub

import "sync"

// Event wraps a payload delivered to a subscriber, in publish order.
type Event[T any] struct {
	Payload T
}

// Broadcaster hands published values to one handler function, off the
// publisher's goroutine, preserving publish order.
type Broadcaster[T any] struct {
	mu      sync.Mutex
	pending []T
	signal  chan struct{}
	closed  bool
	done    chan struct{}
}

// NewBroadcaster starts the delivery goroutine. A nil handler discards
// every published event.
func NewBroadcaster[T any](handler func(Event[T])) *Broadcaster[T] {
	b := &Broadcaster[T]{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go b.deliver(handler)
	return b
}

// Publish enqueues a value for delivery without blocking on the handler.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.pending = append(b.pending, v)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Close stops accepting new events and blocks until the delivery goroutine
// has drained whatever was already queued.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
	<-b.done
}

func (b *Broadcaster[T]) deliver(handler func(Event[T])) {
	defer close(b.done)
	for {
		b.mu.Lock()
		batch := b.pending
		b.pending = nil
		closed := b.closed
		b.mu.Unlock()

		for _, v := range batch {
			if handler != nil {
				handler(Event[T]{Payload: v})
			}
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-b.signal
	}
}

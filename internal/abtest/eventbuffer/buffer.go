// Copyright 2026 The Project Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package eventbuffer implements C4: the two delivery modes an invocation
// or conversion event can take on its way into the metrics store (spec.md
// §4.4) — a synchronous direct fold, or an asynchronous append to a Stream
// that C5's batch applier later drains.
package eventbuffer

import (
	"time"

	"abtest/internal/abtest/events"
	"abtest/internal/abtest/metricsstore"
)

// Buffer is C4's operation set: accept one validated event and make it
// durable, either immediately (synchronous) or by handing it to a Stream
// for later batch processing (asynchronous).
type Buffer interface {
	Accept(e events.Event) error
}

// SyncBuffer folds every event directly into the metrics store on the
// request path, the "synchronous-delivery flag" mode from spec.md §6. It
// trades request latency for immediate counter visibility.
type SyncBuffer struct {
	store metricsstore.Store
}

// NewSyncBuffer returns a Buffer that folds directly into store.
func NewSyncBuffer(store metricsstore.Store) *SyncBuffer {
	return &SyncBuffer{store: store}
}

func (b *SyncBuffer) Accept(e events.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	delta := metricsstore.DeltasFromEvents([]events.Event{e})
	return b.store.Fold(delta, time.Now())
}

// StreamBuffer appends every event to a Stream instead of folding it
// immediately. C5's batch applier drains the stream later. This is the
// "asynchronous" mode from spec.md §4.4.
type StreamBuffer struct {
	stream Stream
}

// NewStreamBuffer returns a Buffer that defers delivery to stream.
func NewStreamBuffer(stream Stream) *StreamBuffer {
	return &StreamBuffer{stream: stream}
}

func (b *StreamBuffer) Accept(e events.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return b.stream.Append(e)
}

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

package eventbuffer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"abtest/internal/abtest/events"
)

// Stream is the asynchronous delivery-stream abstraction behind
// StreamBuffer. It is shaped after the teacher's KafkaProducer /
// RedisEvaler narrowing: one method, implemented by both a real broker
// client and a local file, so C5 can drain either without caring which.
type Stream interface {
	Append(e events.Event) error
}

// KafkaProducer is the minimal abstraction this package needs from a Kafka
// client, identical in shape to the teacher's persistence.KafkaProducer:
// produce one message, keyed for broker-side dedup and per-key ordering.
// Intentionally avoids importing a specific Kafka client library.
type KafkaProducer interface {
	Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

// LoggingKafkaProducer is a demo stand-in identical in shape to the
// teacher's persistence.LoggingKafkaProducer: it lets the "kafka" delivery
// stream be selected and exercised without a real broker client wired in.
// Not for production use.
type LoggingKafkaProducer struct{}

func (LoggingKafkaProducer) Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	fmt.Printf("[kafka-demo] TOPIC=%s KEY=%s VALUE=%s HEADERS=%v\n", topic, string(key), string(value), headers)
	return nil
}

// KafkaStream publishes events as Kafka messages, grounded on the teacher's
// KafkaPersister: the message key is the event's InferenceID so repeated
// delivery of the same inference is deduplicated broker-side the same way
// the teacher dedupes by CommitID.
type KafkaStream struct {
	producer       KafkaProducer
	topic          string
	defaultTimeout time.Duration
}

// NewKafkaStream returns a Stream that publishes to topic via producer.
func NewKafkaStream(producer KafkaProducer, topic string) *KafkaStream {
	return &KafkaStream{producer: producer, topic: topic, defaultTimeout: 10 * time.Second}
}

func (k *KafkaStream) Append(e events.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), k.defaultTimeout)
	defer cancel()

	b, err := e.EncodeLine()
	if err != nil {
		return fmt.Errorf("encode event for kafka: %w", err)
	}
	headers := map[string]string{"content-type": "application/json"}
	if err := k.producer.Produce(ctx, k.topic, []byte(e.InferenceID), b, headers); err != nil {
		return fmt.Errorf("kafka produce inference_id=%s: %w", e.InferenceID, err)
	}
	return nil
}

// FileStream is a buffered append-only NDJSON sink, grounded on the
// teacher's internal/sinks.SBatchFileSink: same open-append-buffer shape,
// generalized from tfd.SBatch records to Event records and from a
// time-since-last-flush heuristic to a flush at the end of every Append
// (C5 reads complete files between ticks, not a live
// tail, so partial-line risk from unflushed writes must be avoided here).
type FileStream struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
}

// NewFileStream opens (or creates) the NDJSON file at path in append mode.
func NewFileStream(path string) (*FileStream, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileStream{f: f, w: bufio.NewWriterSize(f, 1<<20), path: path}, nil
}

func (s *FileStream) Append(e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := json.NewEncoder(s.w)
	if err := enc.Encode(&e); err != nil {
		return fmt.Errorf("encode event to %s: %w", s.path, err)
	}
	return s.w.Flush()
}

// Close flushes and closes the underlying file.
func (s *FileStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.w.Flush()
	return s.f.Close()
}

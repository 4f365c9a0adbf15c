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
	"testing"
	"time"

	"abtest/internal/abtest/events"
	"abtest/internal/abtest/metricsstore"
	"abtest/pkg/bandit"
)

func mkEvent(typ events.Type, reward *float64) events.Event {
	return events.Event{
		Timestamp:       time.Now(),
		Type:            typ,
		EndpointName:    "e1",
		EndpointVariant: "ev1",
		UserID:          "u1",
		InferenceID:     "inf-1",
		Reward:          reward,
	}
}

func TestSyncBuffer_Accept_FoldsImmediately(t *testing.T) {
	store := metricsstore.NewMemoryStore()
	store.Register("e1", []string{"ev1"}, map[string]float64{"ev1": 1}, bandit.WeightedSampling, 0, 0, time.Now())
	buf := NewSyncBuffer(store)

	if err := buf.Accept(mkEvent(events.Invocation, nil)); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	rec, err := store.Read("e1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rec.Variants["ev1"].InvocationCount != 1 {
		t.Fatalf("InvocationCount = %d, want 1", rec.Variants["ev1"].InvocationCount)
	}
}

func TestSyncBuffer_Accept_RejectsInvalidEvent(t *testing.T) {
	store := metricsstore.NewMemoryStore()
	buf := NewSyncBuffer(store)
	r := 1.0
	// Invocation with a reward is invalid per events.Event.Validate.
	if err := buf.Accept(mkEvent(events.Invocation, &r)); err == nil {
		t.Fatal("expected validation error")
	}
}

type recordingStream struct {
	appended []events.Event
}

func (r *recordingStream) Append(e events.Event) error {
	r.appended = append(r.appended, e)
	return nil
}

func TestStreamBuffer_Accept_AppendsToStream(t *testing.T) {
	stream := &recordingStream{}
	buf := NewStreamBuffer(stream)
	r := 1.0
	if err := buf.Accept(mkEvent(events.Conversion, &r)); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if len(stream.appended) != 1 {
		t.Fatalf("appended = %d events, want 1", len(stream.appended))
	}
}

func TestStreamBuffer_Accept_RejectsInvalidEvent(t *testing.T) {
	stream := &recordingStream{}
	buf := NewStreamBuffer(stream)
	if err := buf.Accept(mkEvent(events.Conversion, nil)); err == nil {
		t.Fatal("expected validation error for conversion without reward")
	}
	if len(stream.appended) != 0 {
		t.Fatal("invalid event must not reach the stream")
	}
}

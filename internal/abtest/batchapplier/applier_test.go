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

package batchapplier

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"abtest/internal/abtest/events"
	"abtest/internal/abtest/metricsstore"
	"abtest/pkg/bandit"
)

func gzipLines(t *testing.T, lines []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, l := range lines {
		if _, err := gz.Write([]byte(l + "\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func eventLine(t *testing.T, e events.Event) string {
	t.Helper()
	b, err := e.EncodeLine()
	if err != nil {
		t.Fatalf("EncodeLine: %v", err)
	}
	return string(b)
}

func newTestApplier(t *testing.T, store metricsstore.Store) *Applier {
	t.Helper()
	return NewApplier(store, prometheus.NewRegistry())
}

func TestApplyArtifact_FoldsValidLinesAndSkipsMalformed(t *testing.T) {
	store := metricsstore.NewMemoryStore()
	store.Register("e1", []string{"ev1", "ev2"}, map[string]float64{"ev1": 1, "ev2": 1}, bandit.WeightedSampling, 0, 0, time.Now())
	a := newTestApplier(t, store)

	reward := 1.0
	lines := []string{
		eventLine(t, events.Event{Timestamp: time.Now(), Type: events.Invocation, EndpointName: "e1", EndpointVariant: "ev1", UserID: "ua", InferenceID: "i1"}),
		"{not valid json",
		eventLine(t, events.Event{Timestamp: time.Now(), Type: events.Conversion, EndpointName: "e1", EndpointVariant: "ev2", UserID: "uc", InferenceID: "i2", Reward: &reward}),
	}
	if err := a.ApplyArtifact(bytes.NewReader(gzipLines(t, lines))); err != nil {
		t.Fatalf("ApplyArtifact: %v", err)
	}

	rec, err := store.Read("e1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rec.Variants["ev1"].InvocationCount != 1 {
		t.Fatalf("ev1 invocation count = %d, want 1", rec.Variants["ev1"].InvocationCount)
	}
	if rec.Variants["ev2"].ConversionCount != 1 || rec.Variants["ev2"].RewardSum != 1 {
		t.Fatalf("ev2 = %+v, want conversion=1 reward=1", rec.Variants["ev2"])
	}
}

func TestApplyArtifact_EmptyArtifactIsNotAnError(t *testing.T) {
	store := metricsstore.NewMemoryStore()
	a := newTestApplier(t, store)
	if err := a.ApplyArtifact(bytes.NewReader(gzipLines(t, nil))); err != nil {
		t.Fatalf("ApplyArtifact(empty): %v", err)
	}
}

func TestApplyArtifact_NotGzip_ReturnsError(t *testing.T) {
	store := metricsstore.NewMemoryStore()
	a := newTestApplier(t, store)
	if err := a.ApplyArtifact(bytes.NewReader([]byte("plain text, not gzip"))); err == nil {
		t.Fatal("expected error opening a non-gzip stream")
	}
}

func TestApplyArtifactFile_ReadsFromDisk(t *testing.T) {
	store := metricsstore.NewMemoryStore()
	store.Register("e1", []string{"ev1"}, map[string]float64{"ev1": 1}, bandit.WeightedSampling, 0, 0, time.Now())
	a := newTestApplier(t, store)

	dir := t.TempDir()
	path := filepath.Join(dir, "batch-1.ndjson.gz")
	lines := []string{eventLine(t, events.Event{Timestamp: time.Now(), Type: events.Invocation, EndpointName: "e1", EndpointVariant: "ev1", UserID: "ua", InferenceID: "i1"})}
	if err := os.WriteFile(path, gzipLines(t, lines), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := a.ApplyArtifactFile(path); err != nil {
		t.Fatalf("ApplyArtifactFile: %v", err)
	}
	rec, _ := store.Read("e1")
	if rec.Variants["ev1"].InvocationCount != 1 {
		t.Fatalf("InvocationCount = %d, want 1", rec.Variants["ev1"].InvocationCount)
	}
}

func TestStartStop_DrainsPendingNotificationsBeforeReturning(t *testing.T) {
	store := metricsstore.NewMemoryStore()
	store.Register("e1", []string{"ev1"}, map[string]float64{"ev1": 1}, bandit.WeightedSampling, 0, 0, time.Now())
	a := newTestApplier(t, store)

	dir := t.TempDir()
	var paths []string
	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, "batch.ndjson.gz")
		lines := []string{eventLine(t, events.Event{Timestamp: time.Now(), Type: events.Invocation, EndpointName: "e1", EndpointVariant: "ev1", UserID: "u", InferenceID: "i"})}
		path = filepath.Join(dir, "batch-"+string(rune('a'+i))+".ndjson.gz")
		if err := os.WriteFile(path, gzipLines(t, lines), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		paths = append(paths, path)
	}

	notify := make(chan string, len(paths))
	for _, p := range paths {
		notify <- p
	}
	a.Start(notify)
	a.Stop()

	rec, _ := store.Read("e1")
	if rec.Variants["ev1"].InvocationCount != int64(len(paths)) {
		t.Fatalf("InvocationCount = %d, want %d (all queued artifacts drained on Stop)", rec.Variants["ev1"].InvocationCount, len(paths))
	}
}

func TestStop_IsIdempotent(t *testing.T) {
	store := metricsstore.NewMemoryStore()
	a := newTestApplier(t, store)
	notify := make(chan string)
	a.Start(notify)
	a.Stop()
	a.Stop() // must not panic on double-close
}

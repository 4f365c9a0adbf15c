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

// Package config loads the service's environment-variable configuration
// (spec.md §6) into one Config struct at startup. It generalizes the
// teacher's flag.* + core.SetThreshold* registry: every knob is captured
// once, in one place, and Snapshot() reproduces the teacher's
// "configured thresholds" summary (printed here at startup) from real env
// values instead of global threshold-name/value pairs.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"
)

// Config is every environment-variable knob the service reads at startup.
// WarmupInclusive documents the Open Question decision from SPEC_FULL.md:
// the warmup comparison is invocation_count <= warmup (inclusive), always
// true here, kept as a field so the choice is visible in configuration docs
// rather than silently hardcoded in C6.
type Config struct {
	AssignmentStoreName string // C2 backing store selector: "memory" or "redis"
	RedisAddr           string
	MetricsStoreName    string // C3 backing store selector: "memory" or "postgres"
	PostgresDSN         string
	DeliveryStreamName  string // C4 async stream selector: "file" or "kafka"
	StreamPath          string // FileStream path when DeliveryStreamName == "file"
	KafkaTopic          string
	SynchronousDelivery bool // spec.md §6 "synchronous-delivery flag"
	EndpointPrefix      string
	Stage               string
	LogLevel            string
	HTTPAddr            string
	MetricsAddr         string
	WarmupInclusive     bool
	BackendURL          string // inference front door HTTPBackend dispatches to
	BackendTimeout      time.Duration
	ChurnMetrics        bool // telemetry.Config.Enabled, opt-in like the teacher's churn_metrics flag
	LogInterval         time.Duration
}

// Load reads the service configuration from the environment, applying the
// defaults documented alongside each field.
func Load() Config {
	return Config{
		AssignmentStoreName: getenvDefault("ABTEST_ASSIGNMENT_STORE", "memory"),
		RedisAddr:           os.Getenv("ABTEST_REDIS_ADDR"),
		MetricsStoreName:    getenvDefault("ABTEST_METRICS_STORE", "memory"),
		PostgresDSN:         os.Getenv("ABTEST_POSTGRES_DSN"),
		DeliveryStreamName:  getenvDefault("ABTEST_DELIVERY_STREAM", "file"),
		StreamPath:          getenvDefault("ABTEST_STREAM_PATH", "abtest-events.ndjson"),
		KafkaTopic:          getenvDefault("ABTEST_KAFKA_TOPIC", "abtest-events"),
		SynchronousDelivery: getenvBoolDefault("ABTEST_SYNCHRONOUS_DELIVERY", true),
		EndpointPrefix:      os.Getenv("ABTEST_ENDPOINT_PREFIX"),
		Stage:               getenvDefault("ABTEST_STAGE", "prod"),
		LogLevel:            getenvDefault("ABTEST_LOG_LEVEL", "info"),
		HTTPAddr:            getenvDefault("ABTEST_HTTP_ADDR", ":8080"),
		MetricsAddr:         os.Getenv("ABTEST_METRICS_ADDR"),
		WarmupInclusive:     true,
		BackendURL:          getenvDefault("ABTEST_BACKEND_URL", "http://localhost:9000"),
		BackendTimeout:      getenvDurationDefault("ABTEST_BACKEND_TIMEOUT", 5*time.Second),
		ChurnMetrics:        getenvBoolDefault("ABTEST_CHURN_METRICS", false),
		LogInterval:         getenvDurationDefault("ABTEST_LOG_INTERVAL", 15*time.Second),
	}
}

// Snapshot returns the configuration as an unordered name/value map;
// PrintSnapshot renders it sorted by name, matching the teacher's
// "Configured thresholds" block.
func (c Config) Snapshot() map[string]string {
	return map[string]string{
		"assignment_store":    c.AssignmentStoreName,
		"metrics_store":       c.MetricsStoreName,
		"delivery_stream":     c.DeliveryStreamName,
		"synchronous_delivery": strconv.FormatBool(c.SynchronousDelivery),
		"endpoint_prefix":     c.EndpointPrefix,
		"stage":               c.Stage,
		"log_level":           c.LogLevel,
		"http_addr":           c.HTTPAddr,
	}
}

// PrintSnapshot writes the sorted snapshot to stdout, in the teacher's
// column-formatted style.
func (c Config) PrintSnapshot() {
	snap := c.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("%-22s %24s\n", "Name", "Value")
	for _, k := range keys {
		fmt.Printf("%-22s %24s\n", k, snap[k])
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// assignmentTTLDays is the default sticky-assignment TTL from spec.md §4.2.
const assignmentTTLDays = 90

// AssignmentTTL returns the default sticky-assignment expiry duration.
func AssignmentTTL() time.Duration {
	return assignmentTTLDays * 24 * time.Hour
}

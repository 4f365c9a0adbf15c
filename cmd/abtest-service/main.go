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

// Package main is the entry point for the A/B-testing assignment service.
//
// It wires the assignment + bandit + metrics core (C1-C3, C6), the
// asynchronous delivery and batch-apply path (C4-C5), and the endpoint
// registration service (C7) behind one HTTP server, then manages graceful
// shutdown so no in-flight event or pending batch is lost. Its overall
// shape - config-driven component selection, a background drain loop
// started before the HTTP server, and a signal-triggered shutdown that
// drains before it closes the listener - is grounded on the teacher's
// cmd/ratelimiter-api/main.go.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"abtest/internal/abtest/api"
	"abtest/internal/abtest/assignstore"
	"abtest/internal/abtest/assignsvc"
	"abtest/internal/abtest/backend"
	"abtest/internal/abtest/batchapplier"
	"abtest/internal/abtest/config"
	"abtest/internal/abtest/eventbuffer"
	"abtest/internal/abtest/metricsstore"
	"abtest/internal/abtest/registration"
	"abtest/internal/abtest/telemetry"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.Load()

	telemetry.Enable(telemetry.Config{
		Enabled:     cfg.ChurnMetrics,
		MetricsAddr: cfg.MetricsAddr,
		LogInterval: cfg.LogInterval,
	})

	assign, err := buildAssignmentStore(cfg)
	if err != nil {
		log.Fatalf("build assignment store: %v", err)
	}

	metrics, err := buildMetricsStore(cfg)
	if err != nil {
		log.Fatalf("build metrics store: %v", err)
	}

	applier := batchapplier.NewApplier(metrics, prometheus.DefaultRegisterer)

	var buffer eventbuffer.Buffer
	if cfg.SynchronousDelivery {
		buffer = eventbuffer.NewSyncBuffer(metrics)
	} else {
		stream, closeStream, err := buildDeliveryStream(cfg)
		if err != nil {
			log.Fatalf("build delivery stream: %v", err)
		}
		if closeStream != nil {
			defer closeStream()
		}
		buffer = eventbuffer.NewStreamBuffer(stream)
	}

	httpBackend := backend.NewHTTPBackend(cfg.BackendURL, cfg.BackendTimeout)

	assignSvc := assignsvc.New(metrics, assign, buffer, httpBackend, config.AssignmentTTL())
	regSvc := registration.New(metrics, httpBackend, cfg.EndpointPrefix, cfg.Stage)

	// Artifacts become available out-of-band (the batch transform job /
	// orchestration trigger is out of scope here); notifyArtifactHandler exposes
	// the one inbound surface C5 needs to react to one becoming ready.
	notify := make(chan string, 16)
	applier.Start(notify)

	mux := http.NewServeMux()
	apiServer := api.NewServer(assignSvc)
	apiServer.RegisterRoutes(mux)
	lifecycleServer := api.NewLifecycleServer(regSvc)
	lifecycleServer.RegisterRoutes(mux)
	mux.HandleFunc("/batch-artifact", notifyArtifactHandler(notify))
	if telemetry.Enabled() {
		mux.Handle("/metrics", telemetry.Handler())
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	fmt.Println("Configured thresholds:")
	cfg.PrintSnapshot()

	go func() {
		fmt.Printf("A/B assignment API server listening on %s\n", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("could not listen on %s: %v\n", cfg.HTTPAddr, err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("\nShutting down server...")

	applier.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("server shutdown failed: %v", err)
	}

	fmt.Println("Server gracefully stopped.")
}

// buildAssignmentStore selects C2's backing store. Grounded on the
// teacher's persistence.BuildPersister selector: validate against a closed
// set of adapter names, construct, fail loudly on anything unknown.
func buildAssignmentStore(cfg config.Config) (assignstore.Store, error) {
	switch cfg.AssignmentStoreName {
	case "", "memory":
		return assignstore.NewMemoryStore(), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, errors.New("assignment store \"redis\" requires ABTEST_REDIS_ADDR")
		}
		return assignstore.NewGoRedisStore(cfg.RedisAddr), nil
	default:
		return nil, fmt.Errorf("unknown assignment store: %s", cfg.AssignmentStoreName)
	}
}

// buildMetricsStore selects C3's backing store, same selector shape as
// buildAssignmentStore.
func buildMetricsStore(cfg config.Config) (metricsstore.Store, error) {
	switch cfg.MetricsStoreName {
	case "", "memory":
		return metricsstore.NewMemoryStore(), nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, errors.New("metrics store \"postgres\" requires ABTEST_POSTGRES_DSN")
		}
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return metricsstore.NewPostgresStore(db), nil
	default:
		return nil, fmt.Errorf("unknown metrics store: %s", cfg.MetricsStoreName)
	}
}

// buildDeliveryStream selects C4's asynchronous stream. The "kafka" case
// uses eventbuffer.LoggingKafkaProducer, the same dependency-free stand-in
// the teacher ships for its own Kafka adapter in persistence.BuildPersister
// - no Kafka client library is wired anywhere in this module, matching the
// teacher's own choice not to take on one for a demo-reachable code path.
func buildDeliveryStream(cfg config.Config) (eventbuffer.Stream, func(), error) {
	switch cfg.DeliveryStreamName {
	case "", "file":
		fs, err := eventbuffer.NewFileStream(cfg.StreamPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open file stream: %w", err)
		}
		return fs, func() { _ = fs.Close() }, nil
	case "kafka":
		topic := cfg.KafkaTopic
		if topic == "" {
			topic = "abtest-events"
		}
		return eventbuffer.NewKafkaStream(eventbuffer.LoggingKafkaProducer{}, topic), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown delivery stream: %s", cfg.DeliveryStreamName)
	}
}

type artifactNotification struct {
	Path string `json:"path"`
}

// notifyArtifactHandler lets an external trigger (e.g. the job that writes
// a batch-transform manifest) tell the applier a new artifact is ready to
// fold, matching spec.md §4.5's "triggered by a notification."
func notifyArtifactHandler(notify chan<- string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var body artifactNotification
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
			http.Error(w, "malformed or missing path", http.StatusBadRequest)
			return
		}
		select {
		case notify <- body.Path:
			w.WriteHeader(http.StatusAccepted)
		default:
			http.Error(w, "applier busy, retry later", http.StatusServiceUnavailable)
		}
	}
}

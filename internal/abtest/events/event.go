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

// Package events defines the append-only Event record shared by C6 (the
// assignment service, which emits events), C4 (the buffer that commits or
// streams them), and C5 (the batch applier that folds them back into the
// metrics store). Order across producers is never assumed.
package events

import (
	"encoding/json"
	"errors"
	"time"
)

// Type is a closed enum: replaces the mutable dict-shaped event record
// called out in DESIGN NOTES with a typed field; Event.Validate rejects
// unknown values with ErrUnsupportedEventType instead of propagating a
// stringly-typed tag.
type Type string

const (
	Invocation Type = "invocation"
	Conversion Type = "conversion"
)

var ErrUnsupportedEventType = errors.New("events: unsupported event type")

// Event is the wire and in-process shape of one invocation or conversion.
// Reward is required for Conversion and must be absent for Invocation;
// Validate enforces that, and the event buffers and the batch applier call it
// before an event is counted rather than trusting callers to set it correctly.
type Event struct {
	Timestamp      time.Time `json:"timestamp"`
	Type           Type      `json:"type"`
	EndpointName   string    `json:"endpoint_name"`
	EndpointVariant string   `json:"endpoint_variant"`
	UserID         string    `json:"user_id"`
	InferenceID    string    `json:"inference_id"`
	Reward         *float64  `json:"reward,omitempty"`
}

// Validate enforces the Type/Reward pairing and rejects unknown event types
// (spec.md §7, UnsupportedEventType).
func (e Event) Validate() error {
	switch e.Type {
	case Invocation:
		if e.Reward != nil {
			return errors.New("events: invocation event must not carry a reward")
		}
	case Conversion:
		if e.Reward == nil {
			return errors.New("events: conversion event requires a reward")
		}
	default:
		return ErrUnsupportedEventType
	}
	if e.EndpointName == "" || e.EndpointVariant == "" || e.UserID == "" {
		return errors.New("events: endpoint_name, endpoint_variant and user_id are required")
	}
	return nil
}

// EncodeLine marshals e as a single JSON line (no trailing newline), the
// wire format shared by the Kafka-shaped stream and the gzip NDJSON batch
// artifact (spec.md §6 "Event line format"). The synchronous fold path hands
// events over in-process and does not encode them.
func (e Event) EncodeLine() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeLine parses a single NDJSON line into an Event. Callers in C5 treat a
// parse failure as "skip this line, keep going" per spec.md §4.5.
func DecodeLine(line []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(line, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}

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

// Package apperr gives every error kind named in spec.md §7 a single typed
// home, so the HTTP layer (C6's api package) and the lifecycle handler (C7)
// map errors to status codes with one type switch instead of string
// matching on err.Error(). This replaces the "ad-hoc retry via exception
// propagation" pattern DESIGN NOTES calls out: callers get a Kind they can
// switch on and an explicit retry policy lives at the call site, not in the
// error itself.
package apperr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error dispositions from spec.md §7's table.
type Kind string

const (
	KindEndpointUnknown      Kind = "EndpointUnknown"
	KindInvalidEpsilon       Kind = "InvalidEpsilon"
	KindDegenerateWeights    Kind = "DegenerateWeights"
	KindEmptyVariantSet      Kind = "EmptyVariantSet"
	KindUnsupportedStrategy  Kind = "UnsupportedStrategy"
	KindUnsupportedEventType Kind = "UnsupportedEventType"
	KindStoreTransient       Kind = "StoreTransient"
	KindStreamTransient      Kind = "StreamTransient"
	KindBackendTransient     Kind = "BackendTransient"
	KindFilterRejected       Kind = "FilterRejected"
	KindInvalidRequest       Kind = "InvalidRequest"
)

// Error wraps an underlying cause with a Kind the caller can switch on.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error for op with the given kind and underlying cause.
// err may be nil when the kind itself is the whole story (e.g. EmptyVariantSet).
func New(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, and returns ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

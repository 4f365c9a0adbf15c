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

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"abtest/internal/abtest/apperr"
	"abtest/internal/abtest/registration"
)

// LifecycleServer wraps registration.Service behind the EventBridge-shaped
// envelope spec.md §6 describes for C7's input.
type LifecycleServer struct {
	svc *registration.Service
}

// NewLifecycleServer returns a LifecycleServer wrapping svc.
func NewLifecycleServer(svc *registration.Service) *LifecycleServer {
	return &LifecycleServer{svc: svc}
}

// RegisterRoutes adds the lifecycle route to mux.
func (s *LifecycleServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/lifecycle", s.handleLifecycle)
}

type lifecycleDetail struct {
	EndpointName   string            `json:"EndpointName"`
	EndpointStatus string            `json:"EndpointStatus"`
	Tags           map[string]string `json:"Tags"`
}

type lifecycleRequestBody struct {
	Source     string          `json:"source"`
	DetailType string          `json:"detail-type"`
	Detail     lifecycleDetail `json:"detail"`
}

type lifecycleResponseBody struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// handleLifecycle serves the endpoint lifecycle notification (spec.md §4.7,
// §6). Filter rejection is not an error: it returns 304 with no writes, same
// as a successful no-op.
func (s *LifecycleServer) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var body lifecycleRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	res, err := s.svc.Handle(r.Context(), registration.Notification{
		EndpointName: body.Detail.EndpointName,
		Status:       registration.Status(body.Detail.EndpointStatus),
		Tags:         body.Detail.Tags,
	}, time.Now())
	if err != nil {
		if kind, _ := apperr.KindOf(err); kind == apperr.KindInvalidRequest {
			writeJSON(w, http.StatusOK, lifecycleResponseBody{
				StatusCode: http.StatusBadRequest,
				Body:       err.Error(),
			})
			return
		}
		writeServiceError(w, err)
		return
	}
	if !res.Passed {
		writeJSON(w, http.StatusNotModified, lifecycleResponseBody{
			StatusCode: http.StatusNotModified,
			Body:       "filtered",
		})
		return
	}

	writeJSON(w, http.StatusOK, lifecycleResponseBody{
		StatusCode: res.StatusCode,
		Body:       "ok",
	})
}

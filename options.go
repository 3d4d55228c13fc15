// Copyright 2025 Edgeo SCADA
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

package modbus

import (
	"log/slog"
	"time"
)

// ServerOption is a functional option for configuring a transport server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger        *slog.Logger
	maxConns      int
	readTimeout   time.Duration
	rtuIdleReset  time.Duration
}

func defaultServerOptions() *serverOptions {
	return &serverOptions{
		logger:       slog.Default(),
		maxConns:     100,
		readTimeout:  DefaultReadTimeout,
		rtuIdleReset: 250 * time.Millisecond,
	}
}

// WithServerLogger sets the logger used by the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = logger
	}
}

// WithMaxConnections sets the maximum number of concurrent TCP connections.
func WithMaxConnections(n int) ServerOption {
	return func(o *serverOptions) {
		o.maxConns = n
	}
}

// WithReadTimeout sets the read timeout applied to each connection between
// frames.
func WithReadTimeout(d time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.readTimeout = d
	}
}

// WithRTUIdleReset sets the inter-frame silence duration after which a
// serial server discards a partially received RTU frame and resynchronizes.
func WithRTUIdleReset(d time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.rtuIdleReset = d
	}
}

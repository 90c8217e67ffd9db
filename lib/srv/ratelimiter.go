/*
Copyright 2024 Warpgate Labs.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package srv implements the Session Registry, Session Core, the
// Rate-Limiter Stack and the Known-Hosts Verifier: the parts of Warpgate
// that sit between the protocol-specific frontends and the Persistence
// Gateway.
package srv

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// unlimitedBurst is large enough that it never meaningfully caps a
// single Wait call's byte count, for gates configured with no cap.
const unlimitedBurst = 1 << 30

// byteGate is a single token-bucket throttle over a byte stream, backed
// by golang.org/x/time/rate. A nil cap means unlimited.
type byteGate struct {
	limiter *rate.Limiter
}

func newByteGate(bytesPerSecond *int64) *byteGate {
	if bytesPerSecond == nil || *bytesPerSecond <= 0 {
		return &byteGate{limiter: rate.NewLimiter(rate.Inf, unlimitedBurst)}
	}
	limit := rate.Limit(*bytesPerSecond)
	burst := int(*bytesPerSecond)
	if burst <= 0 {
		burst = 1
	}
	return &byteGate{limiter: rate.NewLimiter(limit, burst)}
}

func (g *byteGate) wait(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	// WaitN's burst must be able to hold n; clamp by waiting in chunks no
	// larger than the bucket's own burst size.
	burst := g.limiter.Burst()
	for n > 0 {
		chunk := n
		if burst > 0 && chunk > burst {
			chunk = burst
		}
		if err := g.limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

func (g *byteGate) setLimit(bytesPerSecond *int64) {
	if bytesPerSecond == nil || *bytesPerSecond <= 0 {
		g.limiter.SetLimit(rate.Inf)
		g.limiter.SetBurst(unlimitedBurst)
		return
	}
	g.limiter.SetLimit(rate.Limit(*bytesPerSecond))
	burst := int(*bytesPerSecond)
	if burst <= 0 {
		burst = 1
	}
	g.limiter.SetBurst(burst)
}

// RateLimiterStack is the three nested token-bucket gates a byte must
// clear, in order, to be forwarded: a global cap, the sending user's
// cap, and the target's cap. The tightest of the three determines
// effective throughput for any given stream.
type RateLimiterStack struct {
	global *byteGate

	mu      sync.Mutex
	byUser  map[string]*byteGate
	byTarget map[string]*byteGate
}

// NewRateLimiterStack creates a stack with the given global default.
func NewRateLimiterStack(globalBytesPerSecond *int64) *RateLimiterStack {
	return &RateLimiterStack{
		global:   newByteGate(globalBytesPerSecond),
		byUser:   make(map[string]*byteGate),
		byTarget: make(map[string]*byteGate),
	}
}

// SetGlobalLimit swaps the global gate's rate, e.g. in response to a
// Parameters update.
func (s *RateLimiterStack) SetGlobalLimit(bytesPerSecond *int64) {
	s.global.setLimit(bytesPerSecond)
}

// SetUserLimit sets or clears a per-user cap.
func (s *RateLimiterStack) SetUserLimit(username string, bytesPerSecond *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate, ok := s.byUser[username]
	if !ok {
		s.byUser[username] = newByteGate(bytesPerSecond)
		return
	}
	gate.setLimit(bytesPerSecond)
}

// SetTargetLimit sets or clears a per-target cap.
func (s *RateLimiterStack) SetTargetLimit(targetID string, bytesPerSecond *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate, ok := s.byTarget[targetID]
	if !ok {
		s.byTarget[targetID] = newByteGate(bytesPerSecond)
		return
	}
	gate.setLimit(bytesPerSecond)
}

func (s *RateLimiterStack) userGate(username string) *byteGate {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate, ok := s.byUser[username]
	if !ok {
		gate = newByteGate(nil)
		s.byUser[username] = gate
	}
	return gate
}

func (s *RateLimiterStack) targetGate(targetID string) *byteGate {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate, ok := s.byTarget[targetID]
	if !ok {
		gate = newByteGate(nil)
		s.byTarget[targetID] = gate
	}
	return gate
}

// Wait blocks until n bytes may be released through every gate in the
// stack: global, then the user's, then the target's. Ordering doesn't
// affect the steady-state rate (all three must clear), but waiting on
// the global gate first means a globally-throttled instance never lets
// per-user/per-target waiters pile up ahead of it.
func (s *RateLimiterStack) Wait(ctx context.Context, username, targetID string, n int) error {
	if err := s.global.wait(ctx, n); err != nil {
		return err
	}
	if err := s.userGate(username).wait(ctx, n); err != nil {
		return err
	}
	return s.targetGate(targetID).wait(ctx, n)
}

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

package auth

import (
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/warpgate-labs/warpgate"
)

// maxLockoutDuration caps the exponential backoff applied after repeated
// failed logins.
const maxLockoutDuration = 15 * time.Minute

// calculateBlockDuration returns the backoff duration after the nth
// consecutive failed attempt (n >= 1): 1s, 2s, 4s, ... capped at
// maxLockoutDuration.
func calculateBlockDuration(consecutiveFailures int) time.Duration {
	if consecutiveFailures <= 0 {
		return 0
	}
	d := time.Second
	for i := 1; i < consecutiveFailures; i++ {
		d *= 2
		if d >= maxLockoutDuration {
			return maxLockoutDuration
		}
	}
	return d
}

// failedAttemptInfo tracks one key's (username or source IP) consecutive
// failure streak.
type failedAttemptInfo struct {
	consecutiveFailures int
	lastFailureAt       time.Time
	blockedUntil        time.Time
}

func (f *failedAttemptInfo) blocked(now time.Time) bool {
	return now.Before(f.blockedUntil)
}

// SecurityStatus reports a key's current lockout standing.
type SecurityStatus struct {
	Blocked             bool
	BlockedUntil        time.Time
	ConsecutiveFailures int
}

// CleanupStats reports how many stale entries a sweep removed.
type CleanupStats struct {
	UsersRemoved int
	IPsRemoved   int
}

// LoginProtectionConfig configures a LoginProtectionService.
type LoginProtectionConfig struct {
	Clock clockwork.Clock
	// StaleAfter is how long an entry with no recent failures and no
	// active block may sit idle before a sweep removes it. Defaults to
	// 1 hour.
	StaleAfter time.Duration

	Log *logrus.Entry
}

// CheckAndSetDefaults validates the config and fills defaults.
func (c *LoginProtectionConfig) CheckAndSetDefaults() error {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = time.Hour
	}
	if c.Log == nil {
		c.Log = logrus.WithField(trace.Component, warpgate.ComponentAuth)
	}
	return nil
}

// LoginProtectionService tracks failed login attempts per username and
// per source IP independently, locking either one out with exponential
// backoff once it accumulates consecutive failures. A request is blocked
// if either its username or its source IP is currently locked out.
type LoginProtectionService struct {
	cfg LoginProtectionConfig

	mu        sync.Mutex
	byUser    map[string]*failedAttemptInfo
	byAddress map[string]*failedAttemptInfo
}

// NewLoginProtectionService creates a LoginProtectionService.
func NewLoginProtectionService(cfg LoginProtectionConfig) (*LoginProtectionService, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &LoginProtectionService{
		cfg:       cfg,
		byUser:    make(map[string]*failedAttemptInfo),
		byAddress: make(map[string]*failedAttemptInfo),
	}, nil
}

// CheckAllowed returns nil if neither username nor sourceAddr is
// currently locked out, or an AccessDenied error naming which one is and
// until when.
func (l *LoginProtectionService) CheckAllowed(username, sourceAddr string) error {
	now := l.cfg.Clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if info, ok := l.byUser[username]; ok && info.blocked(now) {
		return trace.AccessDenied("user %q is locked out until %s", username, info.blockedUntil.Format(time.RFC3339))
	}
	if info, ok := l.byAddress[sourceAddr]; ok && info.blocked(now) {
		return trace.AccessDenied("address %q is locked out until %s", sourceAddr, info.blockedUntil.Format(time.RFC3339))
	}
	return nil
}

// RecordFailure registers a failed login attempt, extending the key's
// backoff window.
func (l *LoginProtectionService) RecordFailure(username, sourceAddr string) {
	now := l.cfg.Clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	recordFailureLocked(l.byUser, username, now)
	recordFailureLocked(l.byAddress, sourceAddr, now)
}

func recordFailureLocked(m map[string]*failedAttemptInfo, key string, now time.Time) {
	info, ok := m[key]
	if !ok {
		info = &failedAttemptInfo{}
		m[key] = info
	}
	info.consecutiveFailures++
	info.lastFailureAt = now
	info.blockedUntil = now.Add(calculateBlockDuration(info.consecutiveFailures))
}

// RecordSuccess clears a key's failure streak after a successful login.
func (l *LoginProtectionService) RecordSuccess(username, sourceAddr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byUser, username)
	delete(l.byAddress, sourceAddr)
}

// UserStatus reports a username's current lockout standing.
func (l *LoginProtectionService) UserStatus(username string) SecurityStatus {
	return statusLocked(l.lockedCopy(l.byUser, username), l.cfg.Clock.Now())
}

// AddressStatus reports a source address's current lockout standing.
func (l *LoginProtectionService) AddressStatus(sourceAddr string) SecurityStatus {
	return statusLocked(l.lockedCopy(l.byAddress, sourceAddr), l.cfg.Clock.Now())
}

func (l *LoginProtectionService) lockedCopy(m map[string]*failedAttemptInfo, key string) *failedAttemptInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	info, ok := m[key]
	if !ok {
		return nil
	}
	copied := *info
	return &copied
}

func statusLocked(info *failedAttemptInfo, now time.Time) SecurityStatus {
	if info == nil {
		return SecurityStatus{}
	}
	return SecurityStatus{
		Blocked:             info.blocked(now),
		BlockedUntil:        info.blockedUntil,
		ConsecutiveFailures: info.consecutiveFailures,
	}
}

// Cleanup removes entries that have neither an active block nor a
// failure within StaleAfter, bounding unbounded growth from one-off
// clients that never return.
func (l *LoginProtectionService) Cleanup() CleanupStats {
	now := l.cfg.Clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := CleanupStats{}
	for key, info := range l.byUser {
		if !info.blocked(now) && now.Sub(info.lastFailureAt) > l.cfg.StaleAfter {
			delete(l.byUser, key)
			stats.UsersRemoved++
		}
	}
	for key, info := range l.byAddress {
		if !info.blocked(now) && now.Sub(info.lastFailureAt) > l.cfg.StaleAfter {
			delete(l.byAddress, key)
			stats.IPsRemoved++
		}
	}
	return stats
}

package domain

import (
	"testing"
	"time"
)

func TestSessionIdle(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	s := &Session{LastActivity: now.Add(-9 * time.Hour)}

	if !s.Idle(8*time.Hour, now) {
		t.Error("session inactive for 9h should be idle against an 8h TTL")
	}
	s.LastActivity = now.Add(-1 * time.Hour)
	if s.Idle(8*time.Hour, now) {
		t.Error("session active 1h ago should not be idle against an 8h TTL")
	}
}

func TestSessionNeedsRefreshAt80Percent(t *testing.T) {
	t.Parallel()
	issuedAt := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	expiry := issuedAt.Add(10 * time.Hour)
	s := &Session{Creds: BrokerCredentials{TokenExpiry: expiry}}

	before := issuedAt.Add(7*time.Hour + 59*time.Minute)
	if s.NeedsRefresh(before, issuedAt) {
		t.Error("should not need refresh before 80% of TTL has elapsed")
	}

	after := issuedAt.Add(8*time.Hour + 1*time.Minute)
	if !s.NeedsRefresh(after, issuedAt) {
		t.Error("should need refresh once past 80% of TTL")
	}
}

func TestSessionNeedsRefreshNoExpirySet(t *testing.T) {
	t.Parallel()
	s := &Session{}
	if s.NeedsRefresh(time.Now(), time.Now()) {
		t.Error("a session with no TokenExpiry should never report needing refresh")
	}
}

func TestSessionCloneIsIndependent(t *testing.T) {
	t.Parallel()
	s := &Session{ID: "s1", ErrorCount: 1}
	cp := s.Clone()
	cp.ErrorCount = 99

	if s.ErrorCount != 1 {
		t.Errorf("original session mutated via clone: ErrorCount = %d", s.ErrorCount)
	}
}

func TestSessionCloneNil(t *testing.T) {
	t.Parallel()
	var s *Session
	if s.Clone() != nil {
		t.Error("Clone of nil Session should return nil")
	}
}

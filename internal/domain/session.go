package domain

import "time"

// SessionHealth is the lifecycle health of a Broker Session (spec §3, §4.3).
type SessionHealth string

const (
	HealthNew            SessionHealth = "NEW"
	HealthAuthenticating SessionHealth = "AUTHENTICATING"
	HealthHealthy        SessionHealth = "HEALTHY"
	HealthDegraded       SessionHealth = "DEGRADED"
	HealthError          SessionHealth = "ERROR"
	HealthExpired        SessionHealth = "EXPIRED"
)

// BrokerCredentials are the encrypted-at-rest secrets for one session. The
// encryption itself is a BA concern (see internal/ba/secrets.go); this struct
// carries either plaintext (BA's in-memory registry copy) or the sealed form
// BA persists to hotstore, plus the token metadata needed to refresh.
type BrokerCredentials struct {
	APIKey       string
	ClientID     string
	Password     string
	TOTPSeed     string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
}

// Session is a live (or recently live) authenticated connection to a broker on
// behalf of one user credential (spec §3).
type Session struct {
	ID           string
	UserID       string
	CredentialID string
	BrokerType   string

	Creds BrokerCredentials

	LastActivity time.Time
	ErrorCount   int
	Health       SessionHealth

	CreatedAt time.Time
}

// Clone returns a copy safe to hand outside the registry's session lock.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// Idle reports whether the session has exceeded the inactivity TTL (default
// 8h per spec §3) and should be torn down.
func (s *Session) Idle(ttl time.Duration, now time.Time) bool {
	return now.Sub(s.LastActivity) >= ttl
}

// NeedsRefresh reports whether at least 80% of the span from issuedAt to the
// access token's expiry has elapsed (always true once that span is empty or
// negative; never true when no expiry is set).
func (s *Session) NeedsRefresh(now time.Time, issuedAt time.Time) bool {
	if s.Creds.TokenExpiry.IsZero() {
		return false
	}
	total := s.Creds.TokenExpiry.Sub(issuedAt)
	if total <= 0 {
		return true
	}
	elapsed := now.Sub(issuedAt)
	return elapsed.Seconds() >= 0.8*total.Seconds()
}

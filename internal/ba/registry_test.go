package ba

import (
	"testing"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
	"github.com/jai-bhardwaj/tradecore/internal/errs"
)

func TestRegistryAddGetRemove(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	sess := &domain.Session{UserID: "u1", CredentialID: "c1", Health: domain.HealthHealthy}
	r.add("u1", "c1", sess)

	hs, err := r.get("u1", "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if hs.sess.Health != domain.HealthHealthy {
		t.Errorf("Health = %s, want HEALTHY", hs.sess.Health)
	}

	r.remove("u1", "c1")
	if _, err := r.get("u1", "c1"); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("get after remove: err = %v, want NOT_FOUND", err)
	}
}

func TestRegistryGetMissingReturnsNotFound(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	if _, err := r.get("nobody", "nothing"); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestRegistryListByUserOnlyReturnsMatchingUser(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	r.add("u1", "c1", &domain.Session{UserID: "u1", CredentialID: "c1"})
	r.add("u1", "c2", &domain.Session{UserID: "u1", CredentialID: "c2"})
	r.add("u2", "c1", &domain.Session{UserID: "u2", CredentialID: "c1"})

	got := r.listByUser("u1")
	if len(got) != 2 {
		t.Fatalf("listByUser(u1) returned %d sessions, want 2", len(got))
	}
	for _, s := range got {
		if s.UserID != "u1" {
			t.Errorf("listByUser(u1) returned a session for %s", s.UserID)
		}
	}
}

func TestRegistryListByUserClonesNotAliases(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	r.add("u1", "c1", &domain.Session{UserID: "u1", CredentialID: "c1", ErrorCount: 1})

	got := r.listByUser("u1")
	got[0].ErrorCount = 99

	hs, _ := r.get("u1", "c1")
	if hs.sess.ErrorCount != 1 {
		t.Errorf("listByUser leaked a mutable alias: ErrorCount = %d, want 1", hs.sess.ErrorCount)
	}
}

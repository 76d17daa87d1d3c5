// Package memory is an in-process Record Store used when no database DSN is
// configured and in tests. It reproduces the PostgreSQL schema rules: case-
// insensitive unique emails, unique (report, recipient email) grants, cascade
// from users and reports, and set-null on a deleted grant recipient.
package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/healthvault/internal/server/models"
)

type Store struct {
	mu      sync.RWMutex
	users   map[string]models.User
	reports map[string]models.Report
	vitals  map[string]models.Vital
	shares  map[string]models.ShareGrant
	tokens  map[string]models.RefreshToken
	last    time.Time
}

func NewStore() *Store {
	return &Store{
		users:   make(map[string]models.User),
		reports: make(map[string]models.Report),
		vitals:  make(map[string]models.Vital),
		shares:  make(map[string]models.ShareGrant),
		tokens:  make(map[string]models.RefreshToken),
	}
}

// tick returns a strictly increasing timestamp so insertion order survives
// sorting by creation time. Caller holds the write lock.
func (s *Store) tick() time.Time {
	now := time.Now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}

// Snapshot returns an independent copy of the current state. Reads against it
// see one consistent point in time; writes to it are never merged back.
func (s *Store) Snapshot() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Store{
		users:   cloneMap(s.users),
		reports: cloneMap(s.reports),
		vitals:  cloneMap(s.vitals),
		shares:  cloneMap(s.shares),
		tokens:  cloneMap(s.tokens),
		last:    s.last,
	}
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func newID() string { return uuid.NewString() }

func sameEmail(a, b string) bool { return strings.EqualFold(a, b) }

// deleteReportLocked removes a report and everything hanging off it.
func (s *Store) deleteReportLocked(id string) {
	delete(s.reports, id)
	for vid, v := range s.vitals {
		if v.ReportID == id {
			delete(s.vitals, vid)
		}
	}
	for sid, g := range s.shares {
		if g.ReportID == id {
			delete(s.shares, sid)
		}
	}
}

func (s *Store) deleteUserLocked(id string) {
	delete(s.users, id)
	for rid, r := range s.reports {
		if r.UserID == id {
			s.deleteReportLocked(rid)
		}
	}
	for sid, g := range s.shares {
		switch {
		case g.SharedBy == id:
			delete(s.shares, sid)
		case g.RecipientUserID == id:
			g.RecipientUserID = ""
			s.shares[sid] = g
		}
	}
	for tok, rt := range s.tokens {
		if rt.UserID == id {
			delete(s.tokens, tok)
		}
	}
}

func (s *Store) Users() *UserRepository                 { return &UserRepository{s: s} }
func (s *Store) Reports() *ReportRepository             { return &ReportRepository{s: s} }
func (s *Store) Vitals() *VitalRepository               { return &VitalRepository{s: s} }
func (s *Store) Shares() *ShareRepository               { return &ShareRepository{s: s} }
func (s *Store) RefreshTokens() *RefreshTokenRepository { return &RefreshTokenRepository{s: s} }

package session

import (
	"sync"

	"github.com/vbonduro/screensolve/internal/domain"
)

// Slot holds the single current SolutionRecord. It is created by the
// composition root and shared by analysis and follow-up. Concurrent writers
// resolve last-writer-wins; the Assistant's busy token keeps that from
// happening within one process.
type Slot struct {
	mu  sync.RWMutex
	rec *domain.SolutionRecord
}

func NewSlot() *Slot {
	return &Slot{}
}

func (s *Slot) Store(rec domain.SolutionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = &rec
}

func (s *Slot) Load() (domain.SolutionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rec == nil {
		return domain.SolutionRecord{}, false
	}
	return *s.rec, true
}

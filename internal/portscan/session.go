package portscan

import "sync"

// Session is the ordered history of completed scans of one Engine.
type Session struct {
	mu      sync.Mutex
	records []ScanRecord
}

func (s *Session) append(r ScanRecord) {
	s.mu.Lock()
	s.records = append(s.records, r)
	s.mu.Unlock()
}

// Records returns a snapshot that the caller may keep or modify freely.
func (s *Session) Records() []ScanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScanRecord, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

// Len is the number of completed scans.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Package report renders and persists scan records: JSON and HTML files for
// the whole session, and colored tables for the terminal.
package report

import (
	"errors"

	"NetMonitorGo/internal/portscan"
)

// Sink receives the finished records of a session.
type Sink interface {
	Save(records []portscan.ScanRecord) error
}

// Multi saves to every sink and joins their errors. One failing sink does not
// stop the others.
type Multi []Sink

func (m Multi) Save(records []portscan.ScanRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

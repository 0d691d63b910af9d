package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"NetMonitorGo/internal/portscan"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var reportTmpl = template.Must(template.ParseFS(templateFS, "templates/report.html.tmpl"))

type htmlPage struct {
	Generated string
	Scans     []jsonScan
}

// RenderHTML renders records as a standalone HTML page.
func RenderHTML(records []portscan.ScanRecord, generated time.Time) ([]byte, error) {
	page := htmlPage{Generated: generated.Format(TimeLayout)}
	for _, r := range records {
		page.Scans = append(page.Scans, toJSON(r))
	}
	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// HTMLFile writes the session as an HTML report to Path.
type HTMLFile struct {
	Path string
	Now  func() time.Time // nil means time.Now
}

func (f HTMLFile) Save(records []portscan.ScanRecord) error {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	b, err := RenderHTML(records, now())
	if err != nil {
		return err
	}
	return writeFile(f.Path, b)
}

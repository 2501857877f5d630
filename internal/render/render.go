// Package render is the boundary to the report rendering engine.
// Rendering internals live outside this repository; deployments inject
// an implementation, and the built-in plain-text renderer exists so
// alertctl and tests can run without one.
package render

import (
	"fmt"
	"sort"
	"strings"

	"vulnalert/internal/store"
	"vulnalert/pkg/models"
)

// GetParams are the GET-style query parameters an alert applies when
// pulling report content.
type GetParams struct {
	FilterTerm       string
	Details          bool
	IgnorePagination bool
}

// Rendered is formatted report content plus its metadata.
type Rendered struct {
	Content     []byte
	Extension   string
	ContentType string
	FilterTerm  string
	Timezone    string
	HostSummary string
}

// Renderer produces formatted report content.
type Renderer interface {
	Render(report, delta *models.Report, get GetParams, format *models.ReportFormat, cfg *models.ReportConfig, notesDetails, overridesDetails bool) (*Rendered, error)
}

// Plain formats result rows as text, one finding per line. It honors
// the filter term only as far as the task store does.
type Plain struct {
	Tasks store.TaskStore
}

// Render formats the report.
func (p Plain) Render(report, delta *models.Report, get GetParams, format *models.ReportFormat, cfg *models.ReportConfig, notesDetails, overridesDetails bool) (*Rendered, error) {
	results, err := p.Tasks.Results(report.ID, get.FilterTerm)
	if err != nil {
		return nil, fmt.Errorf("load report %s results: %w", report.ID, err)
	}

	var b strings.Builder
	hosts := make(map[string]int)
	for _, r := range results {
		fmt.Fprintf(&b, "%s\t%s\t%.1f\t%s\n", r.Host, r.Port, r.Severity, r.NVT)
		hosts[r.Host]++
	}

	extension := "txt"
	contentType := "text/plain"
	if format != nil {
		if format.Extension != "" {
			extension = format.Extension
		}
		if format.ContentType != "" {
			contentType = format.ContentType
		}
	}

	return &Rendered{
		Content:     []byte(b.String()),
		Extension:   extension,
		ContentType: contentType,
		FilterTerm:  get.FilterTerm,
		Timezone:    report.Timezone,
		HostSummary: hostSummary(hosts),
	}, nil
}

func hostSummary(hosts map[string]int) string {
	if len(hosts) == 0 {
		return ""
	}
	names := make([]string, 0, len(hosts))
	for h := range hosts {
		names = append(names, h)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, h := range names {
		fmt.Fprintf(&b, "%s: %d results\n", h, hosts[h])
	}
	return b.String()
}

package report

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// DefaultSubject is used when no subject template is configured.
const DefaultSubject = `{{ .Tag }} {{ .Status }}: Docker backup {{ if .Failed }}finished with errors{{ else }}completed successfully{{ end }} on {{ .Hostname }}`

// SubjectData holds the fields available to subject templates.
type SubjectData struct {
	Tag      string
	Status   Status
	Hostname string
	RunID    string
	Stacks   int
	Failed   int
	Deleted  int
	Date     string
}

// NewSubjectData derives template data from a report.
func NewSubjectData(tag string, r *RunReport) SubjectData {
	return SubjectData{
		Tag:      tag,
		Status:   r.Status(),
		Hostname: r.Hostname,
		RunID:    r.RunID,
		Stacks:   len(r.Stacks),
		Failed:   r.Failed(),
		Deleted:  len(r.Retention.Deleted),
		Date:     r.Start.Format("2006-01-02"),
	}
}

// Subject executes a Go text/template with Sprig functions. An empty
// template selects DefaultSubject.
func Subject(tmplStr string, data SubjectData) (string, error) {
	if tmplStr == "" {
		tmplStr = DefaultSubject
	}

	t, err := template.New("subject").Funcs(sprig.TxtFuncMap()).Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("parsing subject template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing subject template: %w", err)
	}

	// Mail headers cannot carry newlines.
	return strings.Join(strings.Fields(buf.String()), " "), nil
}

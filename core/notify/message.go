package notify

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"sync"
	"text/template"

	"github.com/pkg/errors"

	"github.com/pnl-akademik/disiplin/assets"
	"github.com/pnl-akademik/disiplin/core/clustering"
)

// Message templates
const (
	TemplateLetter = "letter"
	TemplateReport = "report"
)

var (
	whatsappTemplatesDir = "templates/whatsapp"

	tmpls    map[string]*template.Template
	tmplErr  error
	tmplInit sync.Once

	funcs = template.FuncMap{
		"percent": func(part, total int) string { return fmt.Sprintf("%.1f", clustering.Percent(part, total)) },
	}
)

// MessageData is what a message template interpolates.
type MessageData struct {
	Name          string
	IDNumber      string
	TrackLevel    string
	Section       string
	TotalAbsences float64
	TotalSessions float64
	Status        string
	Cluster       string
	Insight       string
	Disciplined   bool

	PeriodName   string
	AcademicYear string
	BatchName    string
	Institution  string

	Stats clustering.Stats
}

func newMessageData(r clustering.ResultDetail, stats clustering.Stats, institution string) MessageData {
	data := MessageData{
		Name:          r.StudentName,
		IDNumber:      r.IDNumber,
		TrackLevel:    r.TrackLevel,
		Section:       r.Section,
		TotalAbsences: r.TotalAbsences,
		TotalSessions: r.TotalSessions,
		Status:        r.Status,
		Cluster:       r.Cluster,
		Insight:       r.Insight,
		Disciplined:   r.IsDisciplined(),
		Institution:   institution,
		Stats:         stats,
	}
	// the registered name wins over the spreadsheet spelling
	if r.User != nil && strings.TrimSpace(r.User.Name) != "" {
		data.Name = r.User.Name
	}
	if r.Batch != nil {
		data.BatchName = r.Batch.Name
		if r.Batch.Period != nil {
			data.PeriodName = r.Batch.Period.Name
			data.AcademicYear = r.Batch.Period.AcademicYear
		}
	}
	return data
}

// Render interpolates the named template. The output only depends on name and data.
func Render(name string, data MessageData) (string, error) {
	tmplInit.Do(func() { tmpls, tmplErr = parseTemplates() })
	if tmplErr != nil {
		return "", errors.Wrap(tmplErr, "parsing whatsapp templates")
	}
	tmpl, ok := tmpls[name]
	if !ok {
		return "", errors.Errorf("unknown whatsapp template %q", name)
	}

	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, data); err != nil {
		return "", errors.Wrap(err, "rendering "+name)
	}
	return buff.String(), nil
}

func parseTemplates() (map[string]*template.Template, error) {
	parsed := make(map[string]*template.Template, 2)
	for _, name := range []string{TemplateLetter, TemplateReport} {
		tmpl, err := template.New(name+".txt").Funcs(funcs).ParseFS(assets.FS, path.Join(whatsappTemplatesDir, name+".txt"))
		if err != nil {
			return nil, err
		}
		parsed[name] = tmpl.Option("missingkey=error")
	}
	return parsed, nil
}

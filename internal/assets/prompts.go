// Package assets holds the prompt templates embedded at compile time.
package assets

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"
)

// SummaryDefaultPrompt is the instruction sent with a video when the caller
// supplies no prompt of their own.
//
//go:embed prompts/summary-default.txt
var SummaryDefaultPrompt string

// SummarySuffix is appended to caller-supplied prompts so the model starts
// directly with the summary.
//
//go:embed prompts/summary-suffix.txt
var SummarySuffix string

//go:embed prompts/answer-system.txt
var answerSystemTemplate string

//go:embed prompts/classify.txt
var classifyTemplate string

var (
	answerSystemTmpl = template.Must(template.New("answer").Parse(answerSystemTemplate))
	classifyTmpl     = template.Must(template.New("classify").Parse(classifyTemplate))
)

// RenderAnswerSystem renders the question-answering system instruction
// around the retrieved summary chunks.
func RenderAnswerSystem(chunks []string) string {
	return render(answerSystemTmpl, struct{ Chunks []string }{chunks})
}

// ClassifyData is injected into the classification prompt.
type ClassifyData struct {
	VideoName     string
	Summary       string
	Categories    []string
	Suitabilities []string
}

// RenderClassifyPrompt renders the category and suitability prompt.
func RenderClassifyPrompt(d ClassifyData) string {
	return render(classifyTmpl, struct {
		VideoName     string
		Summary       string
		Categories    string
		Suitabilities string
	}{
		VideoName:     d.VideoName,
		Summary:       d.Summary,
		Categories:    strings.Join(d.Categories, ", "),
		Suitabilities: strings.Join(d.Suitabilities, ", "),
	})
}

func render(tmpl *template.Template, data any) string {
	var buf bytes.Buffer
	// The templates are static and only receive strings, so execution cannot fail.
	_ = tmpl.Execute(&buf, data)
	return strings.TrimSpace(buf.String())
}

// Package report renders matrix results as Markdown documents.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/giantswarm/version-matrix/internal/matrix"
	"github.com/giantswarm/version-matrix/internal/version"
)

// Render renders the section of one data set: a header, the preamble table,
// the result grid and the footnotes.
func Render(s matrix.Section) string {
	var b strings.Builder
	title := cases.Title(language.English, cases.NoLower)

	fmt.Fprintf(&b, "## %s\n\n", escape(s.DataSet.Label))

	if len(s.Preamble) > 0 {
		b.WriteString("| Key | Value |\n")
		b.WriteString("|----|----|\n")
		for _, kv := range s.Preamble {
			fmt.Fprintf(&b, "| %s | %s |\n", escape(title.String(kv.Key)), escape(kv.Value))
		}
		b.WriteString("\n")
	}

	writeGrid(&b, s.Grid)

	if len(s.Footnotes) > 0 {
		b.WriteString("\n")
		for _, f := range s.Footnotes {
			fmt.Fprintf(&b, "%s\n\n", f)
		}
	}
	return b.String()
}

func writeGrid(b *strings.Builder, g matrix.Grid) {
	header := []string{"#", "Test"}
	for _, c := range g.Columns {
		header = append(header, columnHeader(c))
	}
	writeRow(b, header)

	b.WriteString("|" + strings.Repeat("----|", len(header)) + "\n")

	for i, r := range g.Rows {
		name := escape(r.Name)
		if r.Footnote > 0 {
			name += fmt.Sprintf("<sup>%d</sup>", r.Footnote)
		}
		cells := []string{fmt.Sprint(r.ID), name}
		for _, c := range g.Columns {
			cells = append(cells, escape(c.Verdicts[i].String()))
		}
		writeRow(b, cells)
	}
}

func columnHeader(c matrix.Column) string {
	label := escape(c.Label)
	if c.IsReference {
		label += " (reference)"
	}
	return label
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString("| ")
	b.WriteString(strings.Join(cells, " | "))
	b.WriteString(" |\n")
}

// escape keeps cell text from breaking the table layout.
func escape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

// RenderDocument concatenates the sections under a document title.
func RenderDocument(title string, sections []matrix.Section) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(Render(s))
	}
	return b.String()
}

// RenderReport renders a whole matrix run, one section per data set.
func RenderReport(r *matrix.Report) string {
	title := fmt.Sprintf("%s: %s (%s)", r.Suite, r.RunID, version.RuntimeTag())
	return RenderDocument(title, r.Sections)
}

// FileName returns the document name for a base name, tagged with the
// runtime environment.
func FileName(base string) string {
	return fmt.Sprintf("%s_%s.md", base, version.RuntimeTag())
}

// Write stores the document in dir and returns its path.
func Write(dir, base, doc string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, FileName(base))
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// Package pdfextract pulls plain text out of an invoice PDF well enough
// for the vendor matching algorithm and the field-extraction heuristics to work
// from, using pdfcpu's content-stream extraction rather than a dedicated
// text-extraction library (none appears anywhere in the retrieved pack;
// pdfcpu is the only PDF-aware dependency any example repo carries).
package pdfextract

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ExtractText pulls the raw content streams out of a PDF and recovers the
// literal text operands pdfcpu leaves in place (the Tj and ' show-text
// operators; strings inside TJ arrays are not recovered), joining them into
// a best-effort plain-text rendition. This is
// not a layout-aware extraction — it is sufficient for keyword/regex
// heuristics, not for preserving reading order across columns.
func ExtractText(data []byte) (string, error) {
	dir, err := os.MkdirTemp("", "pdfextract-*")
	if err != nil {
		return "", fmt.Errorf("pdfextract: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, "invoice.pdf")
	if err := os.WriteFile(srcPath, data, 0o600); err != nil {
		return "", fmt.Errorf("pdfextract: write source: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(srcPath, dir, nil, conf); err != nil {
		return "", fmt.Errorf("pdfextract: extract content streams: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("pdfextract: read extracted content: %w", err)
	}

	var contentFiles []string
	for _, e := range entries {
		if !e.IsDir() && strings.Contains(e.Name(), "_content_") {
			contentFiles = append(contentFiles, e.Name())
		}
	}
	sort.Strings(contentFiles)

	var b strings.Builder
	for _, name := range contentFiles {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		b.WriteString(textFromContentStream(string(raw)))
		b.WriteByte(' ')
	}
	return strings.TrimSpace(b.String()), nil
}

var showTextPattern = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*(?:Tj|')`)

// textFromContentStream recovers the literal-string operands of PDF
// show-text operators ("(...) Tj") from a raw content stream, unescaping
// the handful of backslash escapes the spec allows inside a literal string.
func textFromContentStream(stream string) string {
	matches := showTextPattern.FindAllStringSubmatch(stream, -1)
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, unescapePDFString(m[1]))
	}
	return strings.Join(parts, " ")
}

var pdfEscapeReplacer = strings.NewReplacer(
	`\(`, "(",
	`\)`, ")",
	`\\`, `\`,
	`\n`, "\n",
	`\r`, "\r",
	`\t`, "\t",
)

func unescapePDFString(s string) string {
	return pdfEscapeReplacer.Replace(s)
}

// Package importer loads past entries from plain text, markdown, and PDF
// journal exports and saves them through the orchestrator, so the usual
// validation applies.
package importer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/meridell/daybook/internal/journal"
	"github.com/meridell/daybook/internal/storage"
)

// EntrySaver is the orchestrator surface the importer needs.
type EntrySaver interface {
	SaveEntry(ctx context.Context, p journal.SaveEntryParams) (storage.Entry, error)
}

// Importer turns export files into saved entries.
type Importer struct {
	svc    EntrySaver
	logger *slog.Logger
}

// New creates an Importer backed by the given orchestrator.
func New(svc EntrySaver) *Importer {
	return &Importer{svc: svc, logger: slog.Default()}
}

// Result reports what an import run did.
type Result struct {
	Saved   int
	Skipped int
	Entries []storage.Entry
}

// dateHeading matches markdown headings that open a dated section in a
// journal export, e.g. "## 2026-01-05" or "# 2026-01-05 Monday".
var dateHeading = regexp.MustCompile(`^#{1,3}\s+(\d{4}-\d{2}-\d{2})\b\s*(.*)$`)

// section is one candidate entry extracted from an export file.
type section struct {
	title string
	body  string
}

// ImportFile reads one export file and saves its sections as entries.
// Imported entries are tagged "note" unless tags are given, so they can
// never collide with the day's journal entry. Empty sections are skipped.
func (im *Importer) ImportFile(ctx context.Context, userID, path string, tags []string) (Result, error) {
	text, err := readExport(path)
	if err != nil {
		return Result{}, err
	}
	if len(tags) == 0 {
		tags = []string{"note", "imported"}
	}

	defaultTitle := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	sections := splitSections(text, defaultTitle)

	var res Result
	for _, sec := range sections {
		e, err := im.svc.SaveEntry(ctx, journal.SaveEntryParams{
			UserID:  userID,
			Title:   sec.title,
			Content: sec.body,
			Tags:    tags,
		})
		if err != nil {
			if err == journal.ErrEmptyContent {
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("saving imported entry %q: %w", sec.title, err)
		}
		res.Saved++
		res.Entries = append(res.Entries, e)
	}

	im.logger.Info("import finished", "path", path, "saved", res.Saved, "skipped", res.Skipped)
	return res, nil
}

// readExport extracts the text of an export file based on its extension.
func readExport(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDF(path)
	case ".md", ".markdown", ".txt", ".text":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading export: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported export format %q", filepath.Ext(path))
	}
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return buf.String(), nil
}

// splitSections breaks an export into entries at dated headings. Exports
// without dated headings become a single entry titled after the file.
func splitSections(text, defaultTitle string) []section {
	lines := strings.Split(text, "\n")

	var sections []section
	current := section{title: defaultTitle}
	var body strings.Builder
	started := false

	flush := func() {
		current.body = strings.TrimSpace(body.String())
		sections = append(sections, current)
		body.Reset()
	}

	for _, line := range lines {
		if m := dateHeading.FindStringSubmatch(strings.TrimRight(line, "\r")); m != nil {
			// Preamble text before the first dated heading becomes its own
			// entry; a blank preamble is just dropped.
			if started || strings.TrimSpace(body.String()) != "" {
				flush()
			} else {
				body.Reset()
			}
			title := m[1]
			if rest := strings.TrimSpace(m[2]); rest != "" {
				title += " " + rest
			}
			current = section{title: title}
			started = true
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return sections
}

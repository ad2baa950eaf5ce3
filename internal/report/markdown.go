/**
 * Markdown report assembly.
 *
 * Pure rendering over the per-file results; no I/O. Cell values are
 * escaped so extracted content can never corrupt table structure.
 */

package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/parseforge/ingest-worker/internal/models"
)

// Generate renders the consolidated report: header, per-type summary
// table, one section per file in input order, and a metadata appendix.
func Generate(results []models.ProcessedContent, files []models.FileMetadata) string {
	var b strings.Builder

	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}

	b.WriteString("# File Processing Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Files processed: %d (%d successful, %d failed)\n\n",
		len(results), successful, len(results)-successful)

	if len(results) == 0 {
		b.WriteString("No files were processed.\n")
		return b.String()
	}

	writeSummaryTable(&b, results)
	writeFileSections(&b, results, files)
	writeMetadataAppendix(&b, results)

	return b.String()
}

// writeSummaryTable renders the per-content-type statistics table.
func writeSummaryTable(b *strings.Builder, results []models.ProcessedContent) {
	type row struct {
		contentType string
		total       int
		successful  int
		failed      int
		seconds     float64
	}

	byType := make(map[string]*row)
	for _, r := range results {
		entry, ok := byType[r.ContentType]
		if !ok {
			entry = &row{contentType: r.ContentType}
			byType[r.ContentType] = entry
		}
		entry.total++
		entry.seconds += r.ProcessingTime
		if r.Success {
			entry.successful++
		} else {
			entry.failed++
		}
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	rows := make([][]string, 0, len(types))
	for _, t := range types {
		entry := byType[t]
		rows = append(rows, []string{
			entry.contentType,
			fmt.Sprintf("%d", entry.total),
			fmt.Sprintf("%d", entry.successful),
			fmt.Sprintf("%d", entry.failed),
			fmt.Sprintf("%.2fs", entry.seconds),
		})
	}

	b.WriteString("## Summary\n\n")
	writeTable(b, []string{"Content Type", "Total", "Successful", "Failed", "Time"}, rows)
	b.WriteString("\n")
}

// writeFileSections renders one section per file, in input order. Failed
// files show only the error.
func writeFileSections(b *strings.Builder, results []models.ProcessedContent, files []models.FileMetadata) {
	metaByID := make(map[string]models.FileMetadata, len(files))
	for _, f := range files {
		metaByID[f.FileID] = f
	}

	b.WriteString("## Files\n\n")
	for i, r := range results {
		fmt.Fprintf(b, "### %d. %s\n\n", i+1, r.FileName)
		fmt.Fprintf(b, "- ID: `%s`\n", r.FileID)
		fmt.Fprintf(b, "- Type: %s\n", r.ContentType)
		if meta, ok := metaByID[r.FileID]; ok {
			fmt.Fprintf(b, "- Size: %d bytes\n", meta.FileSize)
		}
		fmt.Fprintf(b, "- Processing time: %.2fs\n", r.ProcessingTime)

		if !r.Success {
			fmt.Fprintf(b, "- Status: FAILED\n\n")
			fmt.Fprintf(b, "**Error:** %s\n\n", escapeCell(r.ErrorMessage))
			continue
		}
		b.WriteString("- Status: success\n\n")

		if len(r.Metadata) > 0 {
			b.WriteString("#### Metadata\n\n")
			writeTable(b, []string{"Key", "Value"}, sortedPairs(r.Metadata))
			b.WriteString("\n")
		}

		b.WriteString("#### Content\n\n")
		b.WriteString(strings.TrimSpace(r.ProcessedText))
		b.WriteString("\n\n")
	}
}

// writeMetadataAppendix renders the full metadata of every successful file
// as one flat table.
func writeMetadataAppendix(b *strings.Builder, results []models.ProcessedContent) {
	var rows [][]string
	for _, r := range results {
		if !r.Success {
			continue
		}
		for _, pair := range sortedPairs(r.Metadata) {
			rows = append(rows, []string{r.FileName, pair[0], pair[1]})
		}
	}
	if len(rows) == 0 {
		return
	}

	b.WriteString("## Metadata Appendix\n\n")
	writeTable(b, []string{"File", "Key", "Value"}, rows)
}

// writeTable renders one markdown table from headers and rows. Ragged rows
// are padded to the header width.
func writeTable(b *strings.Builder, headers []string, rows [][]string) {
	if len(headers) == 0 {
		return
	}

	writeRow(b, headers)

	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(b, sep)

	for _, row := range rows {
		padded := make([]string, len(headers))
		for i := range padded {
			if i < len(row) {
				padded[i] = row[i]
			}
		}
		writeRow(b, padded)
	}
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString("|")
	for _, cell := range cells {
		b.WriteString(" ")
		b.WriteString(escapeCell(cell))
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

// escapeCell flattens newlines and escapes pipes so arbitrary extracted
// content cannot break table structure.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

// sortedPairs returns map entries as sorted [key, value] rows for stable
// rendering.
func sortedPairs(m map[string]string) [][]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, m[k]})
	}
	return rows
}

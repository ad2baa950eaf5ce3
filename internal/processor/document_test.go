package processor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Sheet1"
	rows := [][]interface{}{
		{"name", "amount", "note"},
		{"alpha", 10, "first"},
		{"beta", 20, "second"},
		{"gamma", 30, "third"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	_, err := f.NewSheet("Extras")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Extras", "A1", "only"))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestDocumentProcessorSupportedTypes(t *testing.T) {
	p := NewDocumentProcessor(NewLocalSource(t.TempDir()))

	assert.True(t, p.CanProcess("xlsx"))
	assert.True(t, p.CanProcess("csv"))
	assert.True(t, p.CanProcess("DOCX"))
	assert.False(t, p.CanProcess("txt"))
}

func TestDocumentProcessorXlsx(t *testing.T) {
	dir := t.TempDir()
	meta := textMeta("wb1", "report.xlsx", "xlsx")
	writeLocalFile(t, dir, meta, buildWorkbook(t))

	p := NewDocumentProcessor(NewLocalSource(dir))
	result, err := p.Process(context.Background(), meta)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "document", result.ContentType)
	assert.Equal(t, "2", result.Metadata["sheet_count"])
	assert.Contains(t, result.ProcessedText, "## Sheet: Sheet1")
	assert.Contains(t, result.ProcessedText, "## Sheet: Extras")
	assert.Contains(t, result.ProcessedText, "name, amount, note")
	assert.Contains(t, result.ProcessedText, `Numeric column "amount"`)
	assert.Contains(t, result.ProcessedText, "min=10 max=30 mean=20")
}

func TestDocumentProcessorCorruptXlsx(t *testing.T) {
	dir := t.TempDir()
	meta := textMeta("bad", "corrupt.xlsx", "xlsx")
	writeLocalFile(t, dir, meta, []byte("this is not a zip archive"))

	p := NewDocumentProcessor(NewLocalSource(dir))
	_, err := p.Process(context.Background(), meta)
	assert.Error(t, err)
}

func TestDocumentProcessorCsvComma(t *testing.T) {
	dir := t.TempDir()
	meta := textMeta("c1", "data.csv", "csv")
	writeLocalFile(t, dir, meta, []byte("city,population\noslo,700000\nbergen,290000\n"))

	p := NewDocumentProcessor(NewLocalSource(dir))
	result, err := p.Process(context.Background(), meta)
	require.NoError(t, err)

	assert.Equal(t, "comma", result.Metadata["delimiter"])
	assert.Equal(t, "3", result.Metadata["row_count"])
	assert.Equal(t, "2", result.Metadata["column_count"])
	assert.Equal(t, "utf-8", result.Metadata["encoding"])
	assert.Contains(t, result.ProcessedText, "city, population")
	assert.Contains(t, result.ProcessedText, `Numeric column "population"`)
}

func TestDocumentProcessorCsvSemicolon(t *testing.T) {
	dir := t.TempDir()
	meta := textMeta("c2", "euro.csv", "csv")
	writeLocalFile(t, dir, meta, []byte("a;b;c\n1;2;3\n"))

	p := NewDocumentProcessor(NewLocalSource(dir))
	result, err := p.Process(context.Background(), meta)
	require.NoError(t, err)

	assert.Equal(t, "semicolon", result.Metadata["delimiter"])
	assert.Equal(t, "3", result.Metadata["column_count"])
}

func TestDocumentProcessorCsvLatin1(t *testing.T) {
	dir := t.TempDir()
	meta := textMeta("c3", "legacy.csv", "csv")
	// "café" with latin1-encoded é.
	writeLocalFile(t, dir, meta, []byte{'n', 'a', 'm', 'e', '\n', 'c', 'a', 'f', 0xE9, '\n'})

	p := NewDocumentProcessor(NewLocalSource(dir))
	result, err := p.Process(context.Background(), meta)
	require.NoError(t, err)

	assert.Equal(t, "latin1", result.Metadata["encoding"])
	assert.Contains(t, result.ProcessedText, "café")
}

func TestLooksLikeHeading(t *testing.T) {
	assert.True(t, looksLikeHeading("Introduction"))
	assert.True(t, looksLikeHeading("Chapter 1: Background"))
	assert.False(t, looksLikeHeading("This sentence ends with a period."))
	assert.False(t, looksLikeHeading("A very long line that keeps going and going well past the heading length cutoff"))
}

func TestSummarizeSheetEmptyAndCapped(t *testing.T) {
	var empty strings.Builder
	summarizeSheet(&empty, "empty", nil)
	assert.Contains(t, empty.String(), "[empty sheet]")

	big := make([][]string, maxRowsPerSheet+10)
	for i := range big {
		big[i] = []string{"v"}
	}
	var capped strings.Builder
	summarizeSheet(&capped, "big", big)
	assert.Contains(t, capped.String(), "[row scan capped")
}

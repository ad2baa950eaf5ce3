package processor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parseforge/ingest-worker/internal/models"
)

// writeLocalFile materializes content where a LocalSource will find it.
func writeLocalFile(t *testing.T, dir string, meta models.FileMetadata, content []byte) {
	t.Helper()
	name := meta.FileID
	if meta.FileType != "" {
		name += "." + meta.FileType
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), content, 0o644))
}

func textMeta(id, name, ext string) models.FileMetadata {
	return models.FileMetadata{
		FileID:       id,
		OriginalName: name,
		FileType:     ext,
		UploadTime:   time.Now().UTC(),
	}
}

func TestTextProcessorSupportedTypes(t *testing.T) {
	p := NewTextProcessor(NewLocalSource(t.TempDir()), nil)

	assert.True(t, p.CanProcess("txt"))
	assert.True(t, p.CanProcess("GO"))
	assert.False(t, p.CanProcess("png"))
	assert.False(t, p.CanProcess("csv"), "csv belongs to the document processor")
	assert.NotEmpty(t, p.SupportedTypes())
}

func TestTextProcessorPlainText(t *testing.T) {
	dir := t.TempDir()
	meta := textMeta("f1", "notes.txt", "txt")
	writeLocalFile(t, dir, meta, []byte("hello world\nsecond line\n"))

	p := NewTextProcessor(NewLocalSource(dir), nil)
	result, err := p.Process(context.Background(), meta)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "text", result.ContentType)
	assert.Contains(t, result.ProcessedText, "hello world")
	assert.Equal(t, "3", result.Metadata["line_count"])
	assert.Equal(t, "4", result.Metadata["word_count"])
	assert.Equal(t, "utf-8", result.Metadata["encoding"])
	assert.Greater(t, result.ProcessingTime, 0.0)
}

func TestTextProcessorJSONProbe(t *testing.T) {
	dir := t.TempDir()

	valid := textMeta("f1", "ok.json", "json")
	writeLocalFile(t, dir, valid, []byte(`{"key": [1, 2, 3]}`))

	invalid := textMeta("f2", "broken.json", "json")
	writeLocalFile(t, dir, invalid, []byte(`{"key": `))

	p := NewTextProcessor(NewLocalSource(dir), nil)

	r1, err := p.Process(context.Background(), valid)
	require.NoError(t, err)
	assert.Equal(t, "true", r1.Metadata["valid_json"])
	assert.Equal(t, "object", r1.Metadata["json_root"])

	r2, err := p.Process(context.Background(), invalid)
	require.NoError(t, err)
	assert.Equal(t, "false", r2.Metadata["valid_json"])
}

func TestTextProcessorYAMLProbe(t *testing.T) {
	dir := t.TempDir()
	meta := textMeta("f1", "config.yaml", "yaml")
	writeLocalFile(t, dir, meta, []byte("name: demo\nvalues:\n  - 1\n  - 2\n"))

	p := NewTextProcessor(NewLocalSource(dir), nil)
	result, err := p.Process(context.Background(), meta)
	require.NoError(t, err)
	assert.Equal(t, "true", result.Metadata["valid_yaml"])
}

func TestTextProcessorMarkdownAnalysis(t *testing.T) {
	dir := t.TempDir()
	meta := textMeta("f1", "doc.md", "md")
	content := "# Title\n\n## Section\n\n| a | b |\n|---|---|\n\n```go\ncode\n```\n"
	writeLocalFile(t, dir, meta, []byte(content))

	p := NewTextProcessor(NewLocalSource(dir), nil)
	result, err := p.Process(context.Background(), meta)
	require.NoError(t, err)

	assert.Equal(t, "2", result.Metadata["heading_count"])
	assert.Equal(t, "true", result.Metadata["has_tables"])
	assert.Equal(t, "1", result.Metadata["code_block_count"])
}

func TestTextProcessorLogLevelHistogram(t *testing.T) {
	dir := t.TempDir()
	meta := textMeta("f1", "app.log", "log")
	content := "INFO started\nERROR boom\nERROR again\nWARN careful\nDEBUG detail\n"
	writeLocalFile(t, dir, meta, []byte(content))

	p := NewTextProcessor(NewLocalSource(dir), nil)
	result, err := p.Process(context.Background(), meta)
	require.NoError(t, err)

	assert.Equal(t, "2", result.Metadata["level_error"])
	assert.Equal(t, "1", result.Metadata["level_warn"])
	assert.Equal(t, "1", result.Metadata["level_info"])
	assert.Equal(t, "1", result.Metadata["level_debug"])
}

func TestTextProcessorCodeAnalysis(t *testing.T) {
	dir := t.TempDir()
	meta := textMeta("f1", "main.go", "go")
	content := "package main\n\n// comment one\n// comment two\nfunc main() {}\n"
	writeLocalFile(t, dir, meta, []byte(content))

	p := NewTextProcessor(NewLocalSource(dir), nil)
	result, err := p.Process(context.Background(), meta)
	require.NoError(t, err)

	assert.Equal(t, "2", result.Metadata["comment_lines"])
	assert.Equal(t, "2", result.Metadata["blank_lines"])
}

func TestTextProcessorMissingFile(t *testing.T) {
	p := NewTextProcessor(NewLocalSource(t.TempDir()), nil)
	_, err := p.Process(context.Background(), textMeta("ghost", "ghost.txt", "txt"))
	assert.Error(t, err)
}

func TestSniffDelimiter(t *testing.T) {
	assert.Equal(t, "comma", sniffDelimiter("a,b,c"))
	assert.Equal(t, "semicolon", sniffDelimiter("a;b;c;d"))
	assert.Equal(t, "tab", sniffDelimiter("a\tb\tc\td"))
	assert.Equal(t, "comma", sniffDelimiter("no delimiters here"))
}

func TestDecodeText(t *testing.T) {
	text, enc, err := decodeText([]byte("plain ascii"))
	require.NoError(t, err)
	assert.Equal(t, "plain ascii", text)
	assert.Equal(t, "utf-8", enc)

	withBOM := append([]byte{0xEF, 0xBB, 0xBF}, []byte("bom content")...)
	text, enc, err = decodeText(withBOM)
	require.NoError(t, err)
	assert.Equal(t, "bom content", text)
	assert.Equal(t, "utf-8-sig", enc)

	// 0xE9 is é in latin1 and invalid as a standalone UTF-8 byte.
	text, enc, err = decodeText([]byte{'c', 'a', 'f', 0xE9})
	require.NoError(t, err)
	assert.Equal(t, "latin1", enc)
	assert.Contains(t, text, "caf")

	// 你好 in GB2312 bytes; the gbk rung takes plain GB2312 text.
	text, enc, err = decodeText([]byte{0xC4, 0xE3, 0xBA, 0xC3})
	require.NoError(t, err)
	assert.Equal(t, "gbk", enc)
	assert.Equal(t, "你好", text)

	// 0x81 0x30 0x81 0x30 is the first four-byte GB18030 sequence
	// (U+0080); GBK rejects the 0x30 trail byte.
	text, enc, err = decodeText(append([]byte("ok"), 0x81, 0x30, 0x81, 0x30))
	require.NoError(t, err)
	assert.Equal(t, "gb18030", enc)
	assert.Equal(t, "ok\u0080", text)
}

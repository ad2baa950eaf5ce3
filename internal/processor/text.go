/**
 * Text processor for plain-text and source-code files.
 *
 * Extraction is local; the model service only normalizes the decoded text.
 * A model failure degrades to the raw text instead of failing the file.
 */

package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/parseforge/ingest-worker/internal/logging"
	"github.com/parseforge/ingest-worker/internal/model"
	"github.com/parseforge/ingest-worker/internal/models"
)

// textExtensions is the plain-text-like allow-list.
var textExtensions = []string{
	"txt", "md", "markdown", "rst", "log",
	"tsv", "json", "yaml", "yml", "xml", "toml",
	"html", "htm", "css", "ini", "cfg", "conf",
	"go", "py", "js", "ts", "jsx", "tsx", "java", "c", "h", "cpp",
	"rb", "rs", "sh", "bat", "sql", "php", "swift", "kt",
}

// commentPrefixes maps source extensions to their line-comment marker.
var commentPrefixes = map[string]string{
	"go":    "//",
	"js":    "//",
	"ts":    "//",
	"jsx":   "//",
	"tsx":   "//",
	"java":  "//",
	"c":     "//",
	"h":     "//",
	"cpp":   "//",
	"rs":    "//",
	"swift": "//",
	"kt":    "//",
	"php":   "//",
	"py":    "#",
	"rb":    "#",
	"sh":    "#",
	"yaml":  "#",
	"yml":   "#",
	"toml":  "#",
	"ini":   ";",
	"sql":   "--",
}

// TextProcessor handles plain-text and source-code content.
type TextProcessor struct {
	source    ContentSource
	modelSvc  model.MultimodalService
	supported map[string]bool
	logger    *logging.Logger
}

// NewTextProcessor creates a text processor. modelSvc may be nil, in which
// case normalization is skipped.
func NewTextProcessor(source ContentSource, modelSvc model.MultimodalService) *TextProcessor {
	supported := make(map[string]bool, len(textExtensions))
	for _, ext := range textExtensions {
		supported[ext] = true
	}
	return &TextProcessor{
		source:    source,
		modelSvc:  modelSvc,
		supported: supported,
		logger:    logging.NewLogger("TextProcessor"),
	}
}

func (p *TextProcessor) CanProcess(ext string) bool {
	return p.supported[strings.ToLower(ext)]
}

func (p *TextProcessor) SupportedTypes() []string {
	out := make([]string, len(textExtensions))
	copy(out, textExtensions)
	return out
}

// Process decodes, optionally normalizes, and analyzes one text file.
func (p *TextProcessor) Process(ctx context.Context, meta models.FileMetadata) (models.ProcessedContent, error) {
	start := time.Now()

	data, err := p.source.Bytes(ctx, meta)
	if err != nil {
		return models.ProcessedContent{}, fmt.Errorf("failed to load %s: %w", meta.OriginalName, err)
	}

	text, encoding, err := decodeText(data)
	if err != nil {
		return models.ProcessedContent{}, fmt.Errorf("failed to decode %s: %w", meta.OriginalName, err)
	}

	result := newResult(meta, "text", start)
	result.Metadata["encoding"] = encoding
	analyzeText(text, meta.FileType, result.Metadata)

	processed := text
	if p.modelSvc != nil {
		normalized, nerr := p.modelSvc.ProcessTextContent(ctx, text, map[string]string{
			"filename": meta.OriginalName,
			"fileType": meta.FileType,
			"mimeType": meta.MimeType,
		})
		if nerr != nil {
			p.logger.Warn("Text normalization failed, using raw text",
				"filename", meta.OriginalName,
				"error", nerr.Error())
			result.Metadata["normalized"] = "false"
		} else {
			processed = normalized
			result.Metadata["normalized"] = "true"
		}
	}

	result.ProcessedText = processed
	result.ProcessingTime = time.Since(start).Seconds()

	p.logger.Info("Processed text file",
		"filename", meta.OriginalName,
		"fileType", meta.FileType,
		"textLength", len(processed))

	return result, nil
}

// analyzeText fills extension-specific metadata keys.
func analyzeText(text, ext string, md map[string]string) {
	lines := strings.Split(text, "\n")
	md["line_count"] = strconv.Itoa(len(lines))
	md["char_count"] = strconv.Itoa(len(text))
	md["word_count"] = strconv.Itoa(len(strings.Fields(text)))

	switch ext {
	case "json":
		var probe interface{}
		if err := json.Unmarshal([]byte(text), &probe); err != nil {
			md["valid_json"] = "false"
		} else {
			md["valid_json"] = "true"
			md["json_root"] = jsonRootKind(probe)
		}
	case "yaml", "yml":
		var probe interface{}
		if err := yaml.Unmarshal([]byte(text), &probe); err != nil {
			md["valid_yaml"] = "false"
		} else {
			md["valid_yaml"] = "true"
		}
	case "csv", "tsv":
		md["delimiter"] = sniffDelimiter(firstLine(lines))
		md["row_count"] = strconv.Itoa(countNonEmpty(lines))
	case "md", "markdown":
		analyzeMarkdown(lines, md)
	case "log":
		analyzeLogLevels(lines, md)
	default:
		if prefix, ok := commentPrefixes[ext]; ok {
			analyzeCode(lines, prefix, md)
		}
	}
}

func jsonRootKind(v interface{}) string {
	switch v.(type) {
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return "null"
	}
}

// sniffDelimiter votes among comma, semicolon and tab by frequency on the
// header line. Comma wins ties by declaration order.
func sniffDelimiter(line string) string {
	candidates := []struct {
		name string
		sep  rune
	}{
		{"comma", ','},
		{"semicolon", ';'},
		{"tab", '\t'},
	}

	best := candidates[0].name
	bestCount := -1
	for _, c := range candidates {
		n := strings.Count(line, string(c.sep))
		if n > bestCount {
			best = c.name
			bestCount = n
		}
	}
	return best
}

func analyzeMarkdown(lines []string, md map[string]string) {
	headings := 0
	hasTable := false
	fences := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			headings++
		}
		if strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|") {
			hasTable = true
		}
		if strings.HasPrefix(trimmed, "```") {
			fences++
		}
	}
	md["heading_count"] = strconv.Itoa(headings)
	md["has_tables"] = strconv.FormatBool(hasTable)
	md["code_block_count"] = strconv.Itoa(fences / 2)
}

func analyzeLogLevels(lines []string, md map[string]string) {
	levels := []string{"ERROR", "WARN", "INFO", "DEBUG"}
	counts := make(map[string]int, len(levels))
	for _, line := range lines {
		upper := strings.ToUpper(line)
		for _, level := range levels {
			if strings.Contains(upper, level) {
				counts[level]++
				break
			}
		}
	}
	for _, level := range levels {
		md["level_"+strings.ToLower(level)] = strconv.Itoa(counts[level])
	}
}

func analyzeCode(lines []string, commentPrefix string, md map[string]string) {
	comments := 0
	blanks := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			blanks++
		case strings.HasPrefix(trimmed, commentPrefix):
			comments++
		}
	}
	md["comment_lines"] = strconv.Itoa(comments)
	md["blank_lines"] = strconv.Itoa(blanks)
	md["code_lines"] = strconv.Itoa(len(lines) - comments - blanks)
}

func firstLine(lines []string) string {
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

func countNonEmpty(lines []string) int {
	n := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// File: internal/services/ingest/extractor.go
package ingest

import (
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ExtractText converts uploaded file bytes into an ordered list of text
// segments, dispatching on the filename extension. It always returns at
// least one segment: unparseable input yields a diagnostic string instead of
// an error, so one bad file never aborts a whole upload.
func ExtractText(content []byte, filename string) []string {
	ext := strings.ToLower(filepath.Ext(filename))

	var segments []string
	switch ext {
	case ".txt", ".md":
		segments = extractPlainText(content, filename)
	case ".csv":
		segments = extractCSV(content)
	case ".docx":
		segments = extractDocx(content, filename)
	case ".xlsx", ".xls":
		segments = extractXlsx(content, filename)
	case ".pdf":
		segments = extractPDF(content, filename)
	default:
		segments = extractUnknown(content, filename, ext)
	}

	if len(segments) == 0 {
		segments = []string{fmt.Sprintf("文件 %s 内容为空", filename)}
	}
	return segments
}

// extractPlainText splits UTF-8 text into paragraphs on blank lines.
func extractPlainText(content []byte, filename string) []string {
	if !utf8.Valid(content) {
		return []string{fmt.Sprintf("文件 %s 不是有效的UTF-8文本", filename)}
	}
	text := string(content)
	var paragraphs []string
	for _, p := range strings.Split(normalizeNewlines(text), "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) == 0 && strings.TrimSpace(text) != "" {
		return []string{text}
	}
	return paragraphs
}

// extractCSV returns one segment per non-blank row, cells joined with " | ".
func extractCSV(content []byte) []string {
	reader := csv.NewReader(strings.NewReader(string(content)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows []string
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		blank := true
		for _, cell := range record {
			if strings.TrimSpace(cell) != "" {
				blank = false
				break
			}
		}
		if !blank {
			rows = append(rows, strings.Join(record, " | "))
		}
	}
	return rows
}

func extractUnknown(content []byte, filename, ext string) []string {
	if utf8.Valid(content) {
		text := string(content)
		if strings.TrimSpace(text) != "" {
			return []string{text}
		}
		return []string{fmt.Sprintf("文件 %s 内容为空", filename)}
	}
	return []string{fmt.Sprintf("不支持的文件格式: %s，无法解析为文本", ext)}
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// File: internal/services/ingest/pdf.go
package ingest

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const pdfPageMaxChars = 2000

var (
	pdfStreamRe     = regexp.MustCompile(`(?s)stream\r?\n(.*?)endstream`)
	pdfTextStringRe = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*T[Jj]`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// pdfPunct marks the punctuation runes whose adjacent repeats are collapsed
// during page cleanup.
var pdfPunct = map[rune]bool{
	'.': true, '。': true, ',': true, '，': true, ';': true, '；': true,
	':': true, '：': true, '!': true, '！': true, '?': true, '？': true,
}

// extractPDF recovers text from PDF content streams page by page: each
// flate-decoded stream with text-showing operators is treated as one page,
// tagged with a page-number prefix so document order survives downstream.
// PDFs that yield nothing (scans, encryption, pure images) produce a single
// diagnostic segment instead of failing the upload.
func extractPDF(content []byte, filename string) []string {
	if !bytes.HasPrefix(content, []byte("%PDF")) {
		return []string{fmt.Sprintf("PDF文件解析失败: %s 不是有效的PDF文件", filename)}
	}

	var pages []string
	pageNum := 0
	for _, match := range pdfStreamRe.FindAllSubmatch(content, -1) {
		raw := decodeStream(match[1])
		if raw == nil {
			continue
		}
		text := pdfStreamText(raw)
		if text == "" {
			continue
		}
		pageNum++
		cleaned := cleanPDFPageText(text)
		if len([]rune(cleaned)) > pdfPageMaxChars {
			cleaned = string([]rune(cleaned)[:pdfPageMaxChars]) + "..."
		}
		if len([]rune(cleaned)) > 20 {
			pages = append(pages, fmt.Sprintf("第%d页: %s", pageNum, cleaned))
		}
	}

	if len(pages) == 0 {
		return []string{fmt.Sprintf("PDF文件 %s 无法提取文本内容，可能是扫描版PDF、加密文件或纯图片文档", filename)}
	}
	return pages
}

// decodeStream inflates FlateDecode content; uncompressed streams that
// already contain text operators pass through unchanged.
func decodeStream(data []byte) []byte {
	if r, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
		decoded, err := io.ReadAll(r)
		r.Close()
		if err == nil {
			return decoded
		}
	}
	if bytes.Contains(data, []byte("BT")) {
		return data
	}
	return nil
}

// pdfStreamText collects literal string arguments of Tj/TJ operators.
func pdfStreamText(stream []byte) string {
	if !bytes.Contains(stream, []byte("BT")) {
		return ""
	}
	var b strings.Builder
	for _, match := range pdfTextStringRe.FindAllSubmatch(stream, -1) {
		b.Write(unescapePDFString(match[1]))
		b.WriteByte(' ')
	}
	return strings.TrimSpace(b.String())
}

func unescapePDFString(s []byte) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			default:
				out = append(out, s[i])
			}
			continue
		}
		out = append(out, s[i])
	}
	return out
}

func cleanPDFPageText(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = collapseRepeatedPunct(text)
	return strings.TrimSpace(text)
}

// collapseRepeatedPunct drops a punctuation rune that repeats its immediate
// predecessor, so "。。。" becomes "。". Go's regexp has no backreferences,
// hence the explicit scan.
func collapseRepeatedPunct(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prev := rune(-1)
	for _, r := range s {
		if r == prev && pdfPunct[r] {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

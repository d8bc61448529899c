// File: internal/services/ingest/docx.go
package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// extractDocx pulls paragraph text out of word/document.xml inside the DOCX
// zip container. One segment per non-empty paragraph.
func extractDocx(content []byte, filename string) []string {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return []string{fmt.Sprintf("Word文档解析失败: %v", err)}
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return []string{fmt.Sprintf("Word文档解析失败: %v", err)}
		}
		paragraphs, err := docxParagraphs(rc)
		rc.Close()
		if err != nil {
			return []string{fmt.Sprintf("Word文档解析失败: %v", err)}
		}
		if len(paragraphs) == 0 {
			return []string{fmt.Sprintf("Word文档 %s 无文本内容", filename)}
		}
		return paragraphs
	}
	return []string{fmt.Sprintf("Word文档 %s 无文本内容", filename)}
}

// docxParagraphs walks the WordprocessingML token stream, accumulating w:t
// runs and closing a paragraph at each </w:p>.
func docxParagraphs(r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)
	var paragraphs []string
	var current strings.Builder
	inText := false

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(current.String())
				if text != "" {
					paragraphs = append(paragraphs, text)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}

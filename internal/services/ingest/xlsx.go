// File: internal/services/ingest/xlsx.go
package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// extractXlsx reads the first worksheet of an XLSX workbook. The first row
// becomes a "表头: ..." segment, every following non-empty row becomes a
// "行N: ..." segment, cells joined with " | ".
func extractXlsx(content []byte, filename string) []string {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return []string{fmt.Sprintf("Excel文件解析失败: %v", err)}
	}

	shared := readSharedStrings(reader)
	rows, err := readFirstSheet(reader, shared)
	if err != nil {
		return []string{fmt.Sprintf("Excel文件解析失败: %v", err)}
	}
	if len(rows) == 0 {
		return []string{fmt.Sprintf("Excel文件 %s 为空", filename)}
	}

	segments := make([]string, 0, len(rows))
	segments = append(segments, "表头: "+strings.Join(rows[0], " | "))
	for i, row := range rows[1:] {
		joined := strings.Join(row, " | ")
		if strings.TrimSpace(strings.ReplaceAll(joined, "|", "")) == "" {
			continue
		}
		segments = append(segments, fmt.Sprintf("行%d: %s", i+1, joined))
	}
	return segments
}

type xlsxSST struct {
	Items []struct {
		T string `xml:"t"`
	} `xml:"si"`
}

func readSharedStrings(reader *zip.Reader) []string {
	for _, file := range reader.File {
		if file.Name != "xl/sharedStrings.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil
		}
		defer rc.Close()
		var sst xlsxSST
		if err := xml.NewDecoder(rc).Decode(&sst); err != nil {
			return nil
		}
		out := make([]string, len(sst.Items))
		for i, item := range sst.Items {
			out[i] = item.T
		}
		return out
	}
	return nil
}

type xlsxSheet struct {
	Rows []struct {
		Cells []struct {
			Type  string `xml:"t,attr"`
			Value string `xml:"v"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

func readFirstSheet(reader *zip.Reader, shared []string) ([][]string, error) {
	for _, file := range reader.File {
		if file.Name != "xl/worksheets/sheet1.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		var sheet xlsxSheet
		if err := xml.NewDecoder(rc).Decode(&sheet); err != nil {
			return nil, err
		}
		rows := make([][]string, 0, len(sheet.Rows))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				value := cell.Value
				if cell.Type == "s" {
					if idx, err := strconv.Atoi(value); err == nil && idx >= 0 && idx < len(shared) {
						value = shared[idx]
					}
				}
				cells = append(cells, value)
			}
			rows = append(rows, cells)
		}
		return rows, nil
	}
	return nil, fmt.Errorf("worksheet not found")
}

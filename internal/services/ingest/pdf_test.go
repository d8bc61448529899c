// File: internal/services/ingest/pdf_test.go
package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollapseRepeatedPunct(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"cjk full stop runs", "第一句。。。第二句！！", "第一句。第二句！"},
		{"ascii runs", "end... next??", "end. next?"},
		{"mixed punctuation kept when alternating", "。，。，", "。，。，"},
		{"repeated letters untouched", "AA组和BB组，，", "AA组和BB组，"},
		{"no punctuation", "纯文本内容", "纯文本内容"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, collapseRepeatedPunct(tc.in))
		})
	}
}

func TestCleanPDFPageText(t *testing.T) {
	got := cleanPDFPageText("第一行\r\n第二行。。。  结尾  ")
	assert.Equal(t, "第一行 第二行。 结尾", got)
}

func TestExtractPDF_NotAPDF(t *testing.T) {
	segments := extractPDF([]byte("plain bytes"), "fake.pdf")
	require.Len(t, segments, 1)
	assert.Contains(t, segments[0], "不是有效的PDF文件")
}

func TestExtractPDF_NoExtractableText(t *testing.T) {
	segments := extractPDF([]byte("%PDF-1.7\n%%EOF"), "scan.pdf")
	require.Len(t, segments, 1)
	assert.Contains(t, segments[0], "无法提取文本内容")
}

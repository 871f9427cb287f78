// Package testutil builds small PDF files for tests.
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// BuildPDF returns a PDF with one page per entry of pages. A "\n" inside a
// page starts a new text line; an empty entry yields a page with no text.
// info fills the document information dictionary (Title, Author, ...).
func BuildPDF(pages []string, info map[string]string) []byte {
	var (
		buf     bytes.Buffer
		offsets []int
	)
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	// 1 catalog, 2 page tree, 3 font, then a page and its content per page,
	// then the info dictionary
	fontID := 3
	pageID := func(i int) int { return 4 + 2*i }
	infoID := 4 + 2*len(pages)

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", pageID(i))
	}

	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, text := range pages {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", fontID, pageID(i)+1))

		content := pageContent(text)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var entries strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&entries, " /%s (%s)", k, escape(info[k]))
	}
	obj(fmt.Sprintf("<<%s >>", entries.String()))

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info %d 0 R >>\n", len(offsets)+1, infoID)
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xref)

	return buf.Bytes()
}

// WritePDF writes BuildPDF(pages, info) to dir/name and returns the path.
func WritePDF(t testing.TB, dir, name string, pages []string, info map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, BuildPDF(pages, info), 0644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

// BrokenXrefPDF is BuildPDF(pages, info) with startxref pointing at the
// catalog object instead of the cross reference table. Every object is
// intact, so a reader that rebuilds the table by scanning can still open it.
func BrokenXrefPDF(pages []string, info map[string]string) []byte {
	data := BuildPDF(pages, info)
	i := bytes.LastIndex(data, []byte("startxref\n"))
	tail := fmt.Sprintf("startxref\n%d\n%%%%EOF\n", len("%PDF-1.4\n"))
	return append(data[:i:i], tail...)
}

// CorruptPDF is a file with a PDF extension and header that no parser accepts.
func CorruptPDF() []byte {
	return []byte("%PDF-1.4\nthis is not a real pdf body\n%%EOF\n")
}

func pageContent(text string) string {
	if text == "" {
		return "q Q"
	}
	var b strings.Builder
	b.WriteString("BT\n/F1 12 Tf\n72 720 Td\n")
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString("0 -14 Td\n")
		}
		fmt.Fprintf(&b, "(%s) Tj\n", escape(line))
	}
	b.WriteString("ET")
	return b.String()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

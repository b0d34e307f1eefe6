// Package extract turns uploaded document payloads into plain text.
package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyText         = errors.New("no text extracted from document")
	// ErrExtraction marks a payload the format parser could not read, e.g.
	// corrupt bytes behind a supported extension. A client error, not ours.
	ErrExtraction = errors.New("could not read document")
)

// Text extracts plain text from payload, dispatching on the filename
// extension. The result is trimmed; payloads that yield only whitespace
// return ErrEmptyText.
func Text(payload []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	var (
		text string
		err  error
	)
	switch ext {
	case ".pdf":
		text, err = pdfText(payload)
	case ".docx":
		text, err = docxText(payload)
	case ".pptx":
		text, err = pptxText(payload)
	case ".xlsx":
		text, err = xlsxText(payload)
	case ".ods":
		text, err = odsText(payload)
	case ".md", ".markdown":
		text, err = markdownText(payload)
	case ".txt":
		text = string(payload)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return "", fmt.Errorf("%w: extracting %s: %v", ErrExtraction, ext, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	return text, nil
}

func pdfText(payload []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return "", err
	}

	var text strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		text.WriteString(pageText)
		text.WriteString("\n\n")
	}
	return text.String(), nil
}

func docxText(payload []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return "", err
	}
	defer r.Close()

	// GetContent returns the raw document.xml; the visible text lives in
	// <w:t> runs.
	return tagText(r.Editable().GetContent(), "<w:t", "</w:t>"), nil
}

func pptxText(payload []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return "", err
	}

	// Slide order inside the archive is not guaranteed.
	var names []string
	files := make(map[string]*zip.File)
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			names = append(names, f.Name)
			files[f.Name] = f
		}
	}
	sort.Strings(names)

	var text strings.Builder
	for _, name := range names {
		rc, err := files[name].Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		text.WriteString(tagText(string(data), "<a:t", "</a:t>"))
		text.WriteString("\n\n")
	}
	return text.String(), nil
}

func xlsxText(payload []byte) (string, error) {
	f, err := xlsx.OpenBinary(payload)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, sheet := range f.Sheets {
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				text.WriteString(cell.String() + "\t")
			}
			text.WriteString("\n")
		}
		text.WriteString("\n")
	}
	return text.String(), nil
}

func odsText(payload []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer f.Close()

	var text strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))
		for _, row := range rows {
			for _, cell := range row {
				text.WriteString(cell + "\t")
			}
			text.WriteString("\n")
		}
		text.WriteString("\n")
	}
	return text.String(), nil
}

// tagText collects the character data of every occurrence of an XML tag,
// tolerating attributes on the opening tag.
func tagText(content, openTag, closeTag string) string {
	var text strings.Builder
	rest := content
	for {
		i := strings.Index(rest, openTag)
		if i < 0 {
			break
		}
		rest = rest[i+len(openTag):]
		gt := strings.IndexByte(rest, '>')
		if gt < 0 {
			break
		}
		// Guard against matching a longer tag name, e.g. <w:tbl> for <w:t.
		attrs := rest[:gt]
		if attrs != "" && attrs[0] != ' ' && attrs[0] != '/' {
			rest = rest[gt+1:]
			continue
		}
		rest = rest[gt+1:]
		end := strings.Index(rest, closeTag)
		if end < 0 {
			break
		}
		text.WriteString(rest[:end])
		text.WriteString(" ")
		rest = rest[end+len(closeTag):]
	}
	return text.String()
}

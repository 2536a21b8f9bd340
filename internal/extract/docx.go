package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

// decodeDOCX returns body paragraphs joined by newlines. Paragraphs nested in
// tables or text boxes are not body paragraphs.
func decodeDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", parseErr("open docx", err)
	}
	var part *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			part = f
			break
		}
	}
	if part == nil {
		return "", parseErr("open docx", fmt.Errorf("missing %s", docxBody))
	}
	rc, err := part.Open()
	if err != nil {
		return "", parseErr("open docx body", err)
	}
	defer func() { _ = rc.Close() }()

	paragraphs, err := bodyParagraphs(rc)
	if err != nil {
		return "", parseErr("read docx body", err)
	}
	return strings.Join(paragraphs, "\n"), nil
}

// bodyParagraphs walks WordprocessingML and collects the text of every
// w:p that is a direct child of w:body.
func bodyParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		stack      []string
		paragraphs []string
		cur        strings.Builder
		inPara     bool
		paraDepth  int
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			stack = append(stack, name)
			switch {
			case name == "p" && !inPara && len(stack) >= 2 && stack[len(stack)-2] == "body":
				inPara = true
				paraDepth = len(stack)
				cur.Reset()
			case inPara && name == "t":
				inText = true
			case inPara && name == "tab":
				cur.WriteByte('\t')
			case inPara && (name == "br" || name == "cr"):
				cur.WriteByte('\n')
			}
		case xml.EndElement:
			if inPara && t.Name.Local == "p" && len(stack) == paraDepth {
				paragraphs = append(paragraphs, cur.String())
				inPara = false
			}
			if t.Name.Local == "t" {
				inText = false
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if inPara && inText {
				cur.Write(t)
			}
		}
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unexpected end of document")
	}
	return paragraphs, nil
}

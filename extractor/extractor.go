// Copyright 2024 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2024 Institute of the Czech National Corpus,
//                Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extractor

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Kind specifies a type of office document we are able
// to extract text from
type Kind string

const (
	KindDocx Kind = "docx"
	KindXlsx Kind = "xlsx"
	KindPptx Kind = "pptx"
)

var kinds = map[string]Kind{
	".docx": KindDocx,
	".xlsx": KindXlsx,
	".pptx": KindPptx,
}

// KindOf returns a document kind matching provided file
// extension (including the leading dot, case insensitive).
func KindOf(ext string) (Kind, bool) {
	k, ok := kinds[strings.ToLower(ext)]
	return k, ok
}

// textElements lists local names of XML elements whose character
// data forms the document text (w:t, a:t, t in shared strings)
var textElements = map[string]bool{
	"t": true,
}

// blockElements lists elements after which a line break
// is inserted
var blockElements = map[string]bool{
	"p":  true,
	"si": true,
	"tr": true,
}

// ExtractBody reads an office document and returns its plain text body.
// In case the file does not exist, false is returned with no error.
func ExtractBody(filePath string, kind Kind) (string, bool, error) {
	zr, err := zip.OpenReader(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil

	} else if err != nil {
		return "", false, fmt.Errorf("failed to open %s document %s: %w", kind, filePath, err)
	}
	defer zr.Close()
	var parts []string
	switch kind {
	case KindDocx:
		parts = []string{"word/document.xml"}
	case KindXlsx:
		parts = append([]string{"xl/sharedStrings.xml"}, numberedParts(&zr.Reader, "xl/worksheets/sheet")...)
	case KindPptx:
		parts = numberedParts(&zr.Reader, "ppt/slides/slide")
	default:
		return "", false, fmt.Errorf("unsupported document kind %s", kind)
	}
	var body strings.Builder
	for _, p := range parts {
		if err := extractPart(&zr.Reader, p, &body); err != nil {
			return "", false, fmt.Errorf("failed to extract %s document %s: %w", kind, filePath, err)
		}
	}
	return strings.TrimSpace(body.String()), true, nil
}

// numberedParts finds archive entries like `prefix1.xml`, `prefix2.xml`
// and returns them sorted by their number
func numberedParts(zr *zip.Reader, prefix string) []string {
	type entry struct {
		name string
		num  int
	}
	found := make([]entry, 0, 10)
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, prefix) || path.Ext(f.Name) != ".xml" {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(f.Name, prefix), ".xml"))
		if err != nil {
			continue
		}
		found = append(found, entry{name: f.Name, num: num})
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].num < found[j].num
	})
	ans := make([]string, len(found))
	for i, e := range found {
		ans[i] = e.name
	}
	return ans
}

func extractPart(zr *zip.Reader, name string, out *strings.Builder) error {
	f, err := zr.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil

	} else if err != nil {
		return err
	}
	defer f.Close()
	dec := xml.NewDecoder(f)
	var inText int
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break

		} else if err != nil {
			return fmt.Errorf("failed to parse %s: %w", name, err)
		}
		switch tt := tok.(type) {
		case xml.StartElement:
			if textElements[tt.Name.Local] {
				inText++
			}
		case xml.EndElement:
			if textElements[tt.Name.Local] && inText > 0 {
				inText--

			} else if blockElements[tt.Name.Local] {
				out.WriteString("\n")
			}
		case xml.CharData:
			if inText > 0 {
				out.Write(tt)
			}
		}
	}
	return nil
}

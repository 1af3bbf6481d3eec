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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, name string, entries map[string]string) string {
	dir := t.TempDir()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for n, content := range entries {
		w, err := zw.Create(n)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

func TestKindOf(t *testing.T) {
	k, ok := KindOf(".DOCX")
	assert.True(t, ok)
	assert.Equal(t, KindDocx, k)
	_, ok = KindOf(".pdf")
	assert.False(t, ok)
}

func TestExtractDocx(t *testing.T) {
	p := writeZip(t, "a.docx", map[string]string{
		"word/document.xml": `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
			`<w:body><w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> world</w:t></w:r></w:p>` +
			`<w:p><w:r><w:t>second</w:t></w:r></w:p></w:body></w:document>`,
	})
	body, ok, err := ExtractBody(p, KindDocx)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Hello world\nsecond", body)
}

func TestExtractXlsx(t *testing.T) {
	p := writeZip(t, "a.xlsx", map[string]string{
		"xl/sharedStrings.xml": `<sst><si><t>alpha</t></si><si><t>beta</t></si></sst>`,
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData><row><c t="inlineStr"><is><t>gamma</t></is></c>` +
			`<c><v>12</v></c></row></sheetData></worksheet>`,
	})
	body, ok, err := ExtractBody(p, KindXlsx)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, body, "alpha")
	assert.Contains(t, body, "beta")
	assert.Contains(t, body, "gamma")
	assert.NotContains(t, body, "12")
}

func TestExtractPptxSlideOrder(t *testing.T) {
	p := writeZip(t, "a.pptx", map[string]string{
		"ppt/slides/slide10.xml": `<p:sld><a:p><a:t>ten</a:t></a:p></p:sld>`,
		"ppt/slides/slide2.xml":  `<p:sld><a:p><a:t>two</a:t></a:p></p:sld>`,
	})
	body, ok, err := ExtractBody(p, KindPptx)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two\nten", body)
}

func TestExtractMissingFile(t *testing.T) {
	body, ok, err := ExtractBody(filepath.Join(t.TempDir(), "nope.docx"), KindDocx)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "", body)
}

func TestExtractCorruptFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.docx")
	require.NoError(t, os.WriteFile(p, []byte("not a zip"), 0644))
	_, _, err := ExtractBody(p, KindDocx)
	assert.Error(t, err)
}

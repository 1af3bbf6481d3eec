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

package indexer

import (
	"fmt"
	"recsearch/record"
	"regexp"
	"strings"
)

const (
	FieldClass = "class"
	FieldPK    = "pk"
	FieldURL   = "url"
	FieldLang  = "lang"
)

var (
	commentsRegexp = regexp.MustCompile(`(?s)<!--.*?-->`)
	tagsRegexp     = regexp.MustCompile(`<[^>]*>`)
)

func isReservedField(name string) bool {
	switch name {
	case FieldClass, FieldPK, FieldURL, FieldLang:
		return true
	}
	return false
}

// StripTags removes markup tags and comments from a value
func StripTags(v string) string {
	if !strings.Contains(v, "<") {
		return v
	}
	return tagsRegexp.ReplaceAllString(commentsRegexp.ReplaceAllString(v, ""), "")
}

// DocKey identifies a logical record in the index. With multi-language
// indexing, a record is represented by one document per language.
type DocKey struct {
	Class string
	PK    string
	Lang  string
}

func (k DocKey) String() string {
	if k.Lang != "" {
		return fmt.Sprintf("%s:%s:%s", k.Class, k.PK, k.Lang)
	}
	return fmt.Sprintf("%s:%s", k.Class, k.PK)
}

// matches tells whether k is covered by a key query `query` where
// an empty PK or Lang means "any"
func (k DocKey) matches(query DocKey) bool {
	return k.Class == query.Class &&
		(query.PK == "" || k.PK == query.PK) &&
		(query.Lang == "" || k.Lang == query.Lang)
}

type Field struct {
	Name  string
	Value string
	Type  FieldType
}

// Document is an ordered list of fields representing a record
// (or a record in a specific language)
type Document struct {
	Fields []Field
}

func (doc *Document) Get(name string) (string, bool) {
	for _, f := range doc.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func (doc *Document) Key() DocKey {
	var key DocKey
	key.Class, _ = doc.Get(FieldClass)
	key.PK, _ = doc.Get(FieldPK)
	key.Lang, _ = doc.Get(FieldLang)
	return key
}

// AsIndexable converts the document into a structure
// Bleve maps using the record type's document mapping.
func (doc *Document) AsIndexable() map[string]any {
	ans := make(map[string]any, len(doc.Fields))
	for _, f := range doc.Fields {
		ans[f.Name] = f.Value
	}
	return ans
}

// ------------------------------

// Builder creates index documents out of records
type Builder struct {
	resolver *Resolver
}

// Build creates a document for a record. The record must be locatable,
// otherwise ErrRecordContract is returned. If lang is not empty,
// attributes are read from the record's language view (if it
// provides one) and the `lang` field is added.
func (b *Builder) Build(rec record.Record, specs []AttributeSpec, lang string) (*Document, error) {
	loc, ok := rec.(record.Locatable)
	if !ok {
		return nil, fmt.Errorf(
			"cannot build document for %s:%s: %w (missing locator)", rec.Type(), rec.PK(), ErrRecordContract)
	}
	src := rec
	if tr, ok := rec.(record.Translatable); ok && lang != "" {
		src = tr.InLanguage(lang)
	}
	doc := &Document{Fields: make([]Field, 0, len(specs)+4)}
	for _, spec := range specs {
		value, ok, err := b.resolver.Resolve(src, spec.SourcePath, spec.BasePath)
		if err != nil {
			return nil, fmt.Errorf("cannot build document for %s:%s: %w", rec.Type(), rec.PK(), err)
		}
		if !ok {
			continue
		}
		doc.Fields = append(doc.Fields, Field{Name: spec.FieldName, Value: StripTags(value), Type: spec.Type()})
	}
	doc.Fields = append(
		doc.Fields,
		Field{Name: FieldClass, Value: rec.Type(), Type: FieldKeyword},
		Field{Name: FieldPK, Value: rec.PK(), Type: FieldKeyword},
		Field{Name: FieldURL, Value: loc.URL(), Type: FieldText},
	)
	if lang != "" {
		doc.Fields = append(doc.Fields, Field{Name: FieldLang, Value: lang, Type: FieldKeyword})
	}
	return doc, nil
}

func NewBuilder(resolver *Resolver) *Builder {
	return &Builder{resolver: resolver}
}

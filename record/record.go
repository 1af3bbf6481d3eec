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

package record

import "errors"

// ErrNotFound is returned by record sources when
// a requested record does not exist
var ErrNotFound = errors.New("record not found")

// Record is a single persisted entity (a row, an object) we want
// to make searchable.
type Record interface {

	// Type returns the record type discriminant (e.g. "Article")
	Type() string

	// PK returns a string form of the record's primary key
	PK() string

	// Get returns a named attribute. Unknown attributes
	// are reported as null.
	Get(name string) Value
}

// Locatable is a record able to produce a stable locator (typically
// an URL of the page presenting the record). Only locatable records
// can be indexed.
type Locatable interface {
	Record
	URL() string
}

// Translatable is a record providing per-language views of its
// attributes.
type Translatable interface {
	InLanguage(lang string) Record
}

// ---------------------------------

type locatableRecord struct {
	Record
	url string
}

func (rec *locatableRecord) URL() string {
	return rec.url
}

func (rec *locatableRecord) InLanguage(lang string) Record {
	tr, ok := rec.Record.(Translatable)
	if !ok {
		return rec
	}
	return &locatableRecord{Record: tr.InLanguage(lang), url: rec.url}
}

// WithURL attaches a locator to a record.
func WithURL(rec Record, url string) Locatable {
	return &locatableRecord{Record: rec, url: url}
}

// ---------------------------------

// MapRecord is a simple map-backed Record. Values are converted
// using ValueOf.
type MapRecord struct {
	recType      string
	pk           string
	attrs        map[string]any
	translations map[string]map[string]any
}

func (rec *MapRecord) Type() string {
	return rec.recType
}

func (rec *MapRecord) PK() string {
	return rec.pk
}

func (rec *MapRecord) Get(name string) Value {
	v, ok := rec.attrs[name]
	if !ok {
		return Null()
	}
	return ValueOf(v)
}

// SetTranslation defines attribute values specific for a language.
// Attributes not present in the translation are taken from the
// record itself.
func (rec *MapRecord) SetTranslation(lang string, attrs map[string]any) *MapRecord {
	if rec.translations == nil {
		rec.translations = make(map[string]map[string]any)
	}
	rec.translations[lang] = attrs
	return rec
}

func (rec *MapRecord) InLanguage(lang string) Record {
	tr, ok := rec.translations[lang]
	if !ok {
		return rec
	}
	merged := make(map[string]any, len(rec.attrs)+len(tr))
	for k, v := range rec.attrs {
		merged[k] = v
	}
	for k, v := range tr {
		merged[k] = v
	}
	return &MapRecord{recType: rec.recType, pk: rec.pk, attrs: merged}
}

func NewMapRecord(recType, pk string, attrs map[string]any) *MapRecord {
	if attrs == nil {
		attrs = make(map[string]any)
	}
	return &MapRecord{recType: recType, pk: pk, attrs: attrs}
}

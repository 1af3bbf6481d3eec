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

package search

import (
	"errors"
	"fmt"
	"recsearch/indexer"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

var ErrWildcardPrefixTooShort = errors.New("wildcard term prefix too short")

// FieldFilters maps field names to required values. All the
// values must be present (i.e. multiple values narrow the result).
type FieldFilters map[string][]string

func (ff FieldFilters) sortedKeys() []string {
	keys := make([]string, 0, len(ff))
	for k := range ff {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns a canonical representation of the filters
func (ff FieldFilters) String() string {
	var buff strings.Builder
	for _, k := range ff.sortedKeys() {
		for _, v := range ff[k] {
			buff.WriteString(fmt.Sprintf("%s=%q;", k, v))
		}
	}
	return buff.String()
}

func (ff FieldFilters) IsEmpty() bool {
	for _, vals := range ff {
		if len(vals) > 0 {
			return false
		}
	}
	return true
}

type Options struct {
	CaseSensitive           bool
	MinWildcardPrefixLength int
	ResultLimit             int
}

func OptionsFromConf(conf *indexer.Conf) Options {
	return Options{
		CaseSensitive:           conf.CaseSensitive,
		MinWildcardPrefixLength: conf.WildcardPrefixLength(),
		ResultLimit:             conf.ResultLimit,
	}
}

func (opts Options) normalize(v string) string {
	if opts.CaseSensitive {
		return v
	}
	return strings.ToLower(v)
}

func isKeyField(field string) bool {
	switch field {
	case indexer.FieldClass, indexer.FieldPK, indexer.FieldLang:
		return true
	}
	return false
}

func (opts Options) termQuery(field, value string) (query.Query, error) {
	// key fields are stored as is
	if !isKeyField(field) {
		value = opts.normalize(value)
	}
	wcPos := strings.IndexAny(value, "*?")
	if field != "" || wcPos < 0 {
		q := bleve.NewTermQuery(value)
		if field != "" {
			q.SetField(field)
		}
		return q, nil
	}
	if prefixLen := utf8.RuneCountInString(value[:wcPos]); prefixLen < opts.MinWildcardPrefixLength {
		return nil, fmt.Errorf(
			"%w: term `%s` needs at least %d characters before the first wildcard",
			ErrWildcardPrefixTooShort, value, opts.MinWildcardPrefixLength)
	}
	return bleve.NewWildcardQuery(value), nil
}

// BuildQuery creates a conjunctive query where each field filter value
// and each whitespace separated part of the term is required.
// Field filter values match whole field values (keyword fields)
// or single tokens (text fields). In case there is nothing to search for,
// nil query is returned.
func BuildQuery(term string, filters FieldFilters, opts Options) (query.Query, error) {
	subTerms := strings.Fields(term)
	if len(subTerms) == 0 && filters.IsEmpty() {
		return nil, nil
	}
	parts := make([]query.Query, 0, len(subTerms)+len(filters))
	for _, field := range filters.sortedKeys() {
		for _, v := range filters[field] {
			q, err := opts.termQuery(field, v)
			if err != nil {
				return nil, err
			}
			parts = append(parts, q)
		}
	}
	for _, st := range subTerms {
		q, err := opts.termQuery("", st)
		if err != nil {
			return nil, err
		}
		parts = append(parts, q)
	}
	return bleve.NewConjunctionQuery(parts...), nil
}

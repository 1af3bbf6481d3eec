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
	"recsearch/indexer"
	"testing"

	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dfltOpts() Options {
	return Options{MinWildcardPrefixLength: 3}
}

func TestBuildQueryEmpty(t *testing.T) {
	q, err := BuildQuery("   ", FieldFilters{}, dfltOpts())
	assert.NoError(t, err)
	assert.Nil(t, q)

	q, err = BuildQuery("", FieldFilters{"tags": {}}, dfltOpts())
	assert.NoError(t, err)
	assert.Nil(t, q)
}

func TestBuildQuerySubTerms(t *testing.T) {
	q, err := BuildQuery("Hello  World", nil, dfltOpts())
	require.NoError(t, err)
	conj, ok := q.(*query.ConjunctionQuery)
	require.True(t, ok)
	require.Len(t, conj.Conjuncts, 2)
	t1 := conj.Conjuncts[0].(*query.TermQuery)
	t2 := conj.Conjuncts[1].(*query.TermQuery)
	assert.Equal(t, "hello", t1.Term)
	assert.Equal(t, "", t1.Field())
	assert.Equal(t, "world", t2.Term)
}

func TestBuildQueryCaseSensitive(t *testing.T) {
	opts := dfltOpts()
	opts.CaseSensitive = true
	q, err := BuildQuery("Hello", nil, opts)
	require.NoError(t, err)
	conj := q.(*query.ConjunctionQuery)
	assert.Equal(t, "Hello", conj.Conjuncts[0].(*query.TermQuery).Term)
}

func TestBuildQueryFiltersFirstInFieldOrder(t *testing.T) {
	q, err := BuildQuery(
		"x",
		FieldFilters{"tags": {"A", "b"}, "status": {"published"}},
		dfltOpts(),
	)
	require.NoError(t, err)
	conj := q.(*query.ConjunctionQuery)
	require.Len(t, conj.Conjuncts, 4)
	fields := make([]string, 0, 4)
	terms := make([]string, 0, 4)
	for _, c := range conj.Conjuncts {
		tq := c.(*query.TermQuery)
		fields = append(fields, tq.Field())
		terms = append(terms, tq.Term)
	}
	assert.Equal(t, []string{"status", "tags", "tags", ""}, fields)
	assert.Equal(t, []string{"published", "a", "b", "x"}, terms)
}

func TestBuildQueryWildcard(t *testing.T) {
	q, err := BuildQuery("hel*", nil, dfltOpts())
	require.NoError(t, err)
	conj := q.(*query.ConjunctionQuery)
	wq, ok := conj.Conjuncts[0].(*query.WildcardQuery)
	require.True(t, ok)
	assert.Equal(t, "hel*", wq.Wildcard)
}

func TestBuildQueryWildcardPrefixTooShort(t *testing.T) {
	_, err := BuildQuery("ok he?lo", nil, dfltOpts())
	assert.ErrorIs(t, err, ErrWildcardPrefixTooShort)

	_, err = BuildQuery("*", nil, dfltOpts())
	assert.ErrorIs(t, err, ErrWildcardPrefixTooShort)
}

func TestBuildQueryWildcardInFilterIsLiteral(t *testing.T) {
	q, err := BuildQuery("", FieldFilters{"code": {"a*"}}, dfltOpts())
	require.NoError(t, err)
	conj := q.(*query.ConjunctionQuery)
	tq, ok := conj.Conjuncts[0].(*query.TermQuery)
	require.True(t, ok)
	assert.Equal(t, "a*", tq.Term)
}

func TestBuildQueryKeyFiltersAreExact(t *testing.T) {
	q, err := BuildQuery(
		"Title", FieldFilters{indexer.FieldPK: {"AbC"}, "tags": {"AbC"}}, dfltOpts())
	require.NoError(t, err)
	conj := q.(*query.ConjunctionQuery)
	require.Len(t, conj.Conjuncts, 3)
	terms := make(map[string]string)
	for _, c := range conj.Conjuncts {
		tq := c.(*query.TermQuery)
		terms[tq.Field()] = tq.Term
	}
	assert.Equal(t, map[string]string{indexer.FieldPK: "AbC", "tags": "abc", "": "title"}, terms)
}

func TestFieldFiltersCanonicalString(t *testing.T) {
	a := FieldFilters{"b": {"2"}, "a": {"1"}}
	b := FieldFilters{"a": {"1"}, "b": {"2"}}
	assert.Equal(t, a.String(), b.String())
	assert.NotEqual(t, a.String(), FieldFilters{"a": {"1", "2"}}.String())
}

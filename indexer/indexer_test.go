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
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"recsearch/metrics"
	"recsearch/record"
	"recsearch/recsrc"
	"recsearch/reporting"
	"sort"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func articleModel() *IndexConfig {
	return &IndexConfig{
		RecordType: "Article",
		Attributes: []AttributeSpec{
			{FieldName: "title", SourcePath: "title"},
			{FieldName: "body", SourcePath: "content"},
			{FieldName: "status", SourcePath: "status", FieldType: FieldKeyword},
		},
	}
}

func article(pk, title, content string) record.Locatable {
	return record.WithURL(
		record.NewMapRecord("Article", pk, map[string]any{
			"title":   title,
			"content": content,
			"status":  "published",
		}),
		"/a/"+pk,
	)
}

func prepareConf(t *testing.T) *Conf {
	conf := &Conf{IndexDirPath: filepath.Join(t.TempDir(), "index")}
	require.NoError(t, conf.ValidateAndDefaults())
	return conf
}

func prepareIndexerWithSource(t *testing.T, src RecordSource, models ...*IndexConfig) *Indexer {
	conf := prepareConf(t)
	for _, m := range models {
		require.NoError(t, m.ValidateAndDefaults())
	}
	session, err := OpenSession(conf, models)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return NewIndexer(conf, models, session, src, &reporting.DummyWriter{}, metrics.New(nil))
}

func prepareIndexer(t *testing.T, models []*IndexConfig, recs ...record.Record) (*Indexer, *recsrc.MemorySource) {
	src := recsrc.NewMemorySource(recs...)
	return prepareIndexerWithSource(t, src, models...), src
}

func termQuery(field, value string) query.Query {
	q := bleve.NewTermQuery(value)
	if field != "" {
		q.SetField(field)
	}
	return q
}

func findKey(t *testing.T, idx *Indexer, class, pk string) []Hit {
	hits, err := idx.Session().Find(
		context.Background(),
		idx.Session().keyQuery(DocKey{Class: class, PK: pk}),
		0,
	)
	require.NoError(t, err)
	return hits
}

func liveKeys(t *testing.T, idx *Indexer) []string {
	hits, err := idx.Session().Find(context.Background(), bleve.NewMatchAllQuery(), 0)
	require.NoError(t, err)
	ans := make([]string, len(hits))
	for i, hit := range hits {
		ans[i] = hit.Field(FieldClass) + ":" + hit.Field(FieldPK)
	}
	sort.Strings(ans)
	return ans
}

func TestReindexAllArticleScenario(t *testing.T) {
	model := &IndexConfig{
		RecordType: "Article",
		Attributes: []AttributeSpec{{FieldName: "body", SourcePath: "content"}},
	}
	rec := record.WithURL(
		record.NewMapRecord("Article", "1", map[string]any{"content": "Hello world"}), "/a/1")
	idx, _ := prepareIndexer(t, []*IndexConfig{model}, rec)

	stats, err := idx.ReindexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NumIndexed)

	hits, err := idx.Session().Find(context.Background(), termQuery("", "hello"), 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "1", hits[0].Field(FieldPK))
	assert.Equal(t, "Article", hits[0].Field(FieldClass))
	assert.Equal(t, "/a/1", hits[0].Field(FieldURL))
	assert.Equal(t, "Hello world", hits[0].Field("body"))
}

func TestIndexedRecordFoundByKey(t *testing.T) {
	idx, _ := prepareIndexer(
		t, []*IndexConfig{articleModel()},
		article("1", "First", "one"), article("2", "Second", "two"))
	_, err := idx.ReindexAll(context.Background())
	require.NoError(t, err)
	for _, pk := range []string{"1", "2"} {
		hits := findKey(t, idx, "Article", pk)
		require.Len(t, hits, 1)
		assert.Equal(t, pk, hits[0].Field(FieldPK))
		assert.Equal(t, "Article", hits[0].Field(FieldClass))
	}
}

func TestReindexAllIsExhaustiveAndExclusive(t *testing.T) {
	idx, src := prepareIndexer(
		t, []*IndexConfig{articleModel()},
		article("1", "a", "a"), article("2", "b", "b"), article("3", "c", "c"))
	_, err := idx.ReindexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Article:1", "Article:2", "Article:3"}, liveKeys(t, idx))

	src.Remove("Article", "2")
	src.Put(article("4", "d", "d"))
	_, err = idx.ReindexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Article:1", "Article:3", "Article:4"}, liveKeys(t, idx))
}

func TestUpsertIdempotence(t *testing.T) {
	idx, _ := prepareIndexer(t, []*IndexConfig{articleModel()})
	ctx := context.Background()
	require.NoError(t, idx.OnRecordCreated(ctx, article("1", "Old title", "old")))
	require.NoError(t, idx.OnRecordUpdated(ctx, article("1", "New title", "new")))

	hits := findKey(t, idx, "Article", "1")
	require.Len(t, hits, 1)
	assert.Equal(t, "New title", hits[0].Field("title"))
	assert.Equal(t, "new", hits[0].Field("body"))

	// repeated delivery of the same event
	require.NoError(t, idx.OnRecordUpdated(ctx, article("1", "New title", "new")))
	assert.Len(t, findKey(t, idx, "Article", "1"), 1)
}

func TestDeleteCompleteness(t *testing.T) {
	idx, _ := prepareIndexer(t, []*IndexConfig{articleModel()})
	ctx := context.Background()
	require.NoError(t, idx.OnRecordCreated(ctx, article("1", "t", "c")))
	require.NoError(t, idx.OnRecordCreated(ctx, article("2", "t", "c")))
	require.NoError(t, idx.OnRecordDeleted(ctx, "Article", "1"))
	assert.Len(t, findKey(t, idx, "Article", "1"), 0)
	assert.Len(t, findKey(t, idx, "Article", "2"), 1)

	// deleting a missing record is not an error
	assert.NoError(t, idx.OnRecordDeleted(ctx, "Article", "1"))
}

func TestKeysDifferingByCaseAreDistinct(t *testing.T) {
	idx, _ := prepareIndexer(t, []*IndexConfig{articleModel()})
	ctx := context.Background()
	require.NoError(t, idx.OnRecordCreated(ctx, article("ABC", "upper", "c")))
	require.NoError(t, idx.OnRecordCreated(ctx, article("abc", "lower", "c")))
	assert.Equal(t, []string{"Article:ABC", "Article:abc"}, liveKeys(t, idx))

	require.NoError(t, idx.OnRecordDeleted(ctx, "Article", "abc"))
	assert.Equal(t, []string{"Article:ABC"}, liveKeys(t, idx))
}

func TestConditionsOnUpsert(t *testing.T) {
	model := articleModel()
	model.Conditions = map[string]any{"status": "published"}
	idx, _ := prepareIndexer(t, []*IndexConfig{model})
	ctx := context.Background()

	draft := record.WithURL(
		record.NewMapRecord("Article", "1", map[string]any{"title": "x", "status": "draft"}), "/a/1")
	indexed, err := idx.ReindexOne(ctx, draft)
	assert.NoError(t, err)
	assert.False(t, indexed)
	assert.Len(t, findKey(t, idx, "Article", "1"), 0)

	indexed, err = idx.ReindexOne(ctx, article("1", "x", "y"))
	assert.NoError(t, err)
	assert.True(t, indexed)
	assert.Len(t, findKey(t, idx, "Article", "1"), 1)

	// unpublishing removes the record from the index
	_, err = idx.ReindexOne(ctx, draft)
	assert.NoError(t, err)
	assert.Len(t, findKey(t, idx, "Article", "1"), 0)
}

func TestConditionsOnRebuild(t *testing.T) {
	model := articleModel()
	model.Conditions = map[string]any{"status": "published"}
	draft := record.WithURL(
		record.NewMapRecord("Article", "2", map[string]any{"title": "x", "status": "draft"}), "/a/2")
	idx, _ := prepareIndexer(t, []*IndexConfig{model}, article("1", "x", "y"), draft)
	stats, err := idx.ReindexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NumSkipped)
	assert.Equal(t, []string{"Article:1"}, liveKeys(t, idx))
}

func TestConditionsCompareLoosely(t *testing.T) {
	items := []struct {
		expected any
		actual   any
		matches  bool
	}{
		{true, int64(1), true},
		{true, "1", true},
		{true, int64(0), false},
		{false, int64(0), true},
		{1, true, true},
		{nil, nil, true},
		{nil, "", true},
		{nil, "draft", false},
		{"published", nil, false},
		{"published", "published", true},
		{2, "2", true},
	}
	for _, item := range items {
		model := &IndexConfig{
			RecordType: "Article",
			Conditions: map[string]any{"status": item.expected},
		}
		rec := record.NewMapRecord("Article", "1", map[string]any{"status": item.actual})
		assert.Equal(
			t, item.matches, model.MatchesConditions(rec),
			"expected: %v, actual: %v", item.expected, item.actual)
	}
}

func TestReindexWithoutModelsIsConfigurationError(t *testing.T) {
	idx, _ := prepareIndexer(t, []*IndexConfig{})
	require.NoError(t, idx.Session().Add(&Document{Fields: []Field{
		{Name: FieldClass, Value: "Article", Type: FieldKeyword},
		{Name: FieldPK, Value: "1", Type: FieldKeyword},
	}}))
	require.NoError(t, idx.Session().Commit())

	_, err := idx.ReindexAll(context.Background())
	assert.ErrorIs(t, err, ErrConfiguration)
	count, err := idx.Count()
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestContractErrorKeepsEarlierRecords(t *testing.T) {
	notLocatable := record.NewMapRecord("Article", "2", map[string]any{"title": "x"})
	idx, _ := prepareIndexer(
		t, []*IndexConfig{articleModel()},
		article("1", "a", "a"), notLocatable, article("3", "c", "c"))
	stats, err := idx.ReindexAll(context.Background())
	assert.ErrorIs(t, err, ErrRecordContract)
	assert.Equal(t, 1, stats.NumIndexed)
	assert.Equal(t, []string{"Article:1"}, liveKeys(t, idx))
}

func TestUnconfiguredTypeIsIgnored(t *testing.T) {
	idx, _ := prepareIndexer(t, []*IndexConfig{articleModel()})
	rec := record.WithURL(record.NewMapRecord("Comment", "1", nil), "/c/1")
	indexed, err := idx.ReindexOne(context.Background(), rec)
	assert.NoError(t, err)
	assert.False(t, indexed)
}

func TestMultiLanguageDocuments(t *testing.T) {
	model := articleModel()
	model.Languages = []string{"en", "cs"}
	rec := record.NewMapRecord("Article", "1", map[string]any{"title": "Hello", "content": "x"}).
		SetTranslation("cs", map[string]any{"title": "Ahoj"})
	idx, _ := prepareIndexer(t, []*IndexConfig{model}, record.WithURL(rec, "/a/1"))
	ctx := context.Background()
	_, err := idx.ReindexAll(ctx)
	require.NoError(t, err)

	hits := findKey(t, idx, "Article", "1")
	require.Len(t, hits, 2)
	titles := map[string]string{}
	for _, h := range hits {
		titles[h.Field(FieldLang)] = h.Field("title")
	}
	assert.Equal(t, map[string]string{"en": "Hello", "cs": "Ahoj"}, titles)

	// upsert keeps one document per language
	require.NoError(t, idx.OnRecordUpdated(ctx, record.WithURL(rec, "/a/1")))
	assert.Len(t, findKey(t, idx, "Article", "1"), 2)

	require.NoError(t, idx.OnRecordDeleted(ctx, "Article", "1"))
	assert.Len(t, findKey(t, idx, "Article", "1"), 0)
}

type sliceSource struct {
	records []record.Record
}

func (src *sliceSource) Stream(ctx context.Context, recordType string, fn func(rec record.Record) error) error {
	for _, rec := range src.records {
		if rec.Type() == recordType {
			if err := fn(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func (src *sliceSource) Load(ctx context.Context, recordType, pk string) (record.Record, error) {
	return nil, record.ErrNotFound
}

func TestDuplicateSourceRecordsKeepKeyUnique(t *testing.T) {
	src := &sliceSource{records: []record.Record{
		article("1", "first", "a"), article("2", "x", "b"), article("1", "second", "c"),
	}}
	idx := prepareIndexerWithSource(t, src, articleModel())
	stats, err := idx.ReindexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NumDuplicates)
	hits := findKey(t, idx, "Article", "1")
	require.Len(t, hits, 1)
	assert.Equal(t, "second", hits[0].Field("title"))
}

func writeDocx(t *testing.T, dir, name, text string) {
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<w:document><w:body><w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestFileBackedAttributes(t *testing.T) {
	baseDir := t.TempDir()
	writeDocx(t, baseDir, "manual.docx", "Quarterly report")
	model := &IndexConfig{
		RecordType: "Attachment",
		Attributes: []AttributeSpec{
			{FieldName: "content", SourcePath: "file", BasePath: baseDir},
		},
	}
	withFile := record.WithURL(
		record.NewMapRecord("Attachment", "1", map[string]any{"file": "manual.docx"}), "/f/1")
	missing := record.WithURL(
		record.NewMapRecord("Attachment", "2", map[string]any{"file": "missing.docx"}), "/f/2")
	idx, _ := prepareIndexer(t, []*IndexConfig{model}, withFile, missing)
	_, err := idx.ReindexAll(context.Background())
	require.NoError(t, err)

	hits, err := idx.Session().Find(context.Background(), termQuery("content", "quarterly"), 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "1", hits[0].Field(FieldPK))

	hits = findKey(t, idx, "Attachment", "2")
	require.Len(t, hits, 1)
	assert.Equal(t, "/f/2", hits[0].Field(FieldURL))
	_, hasContent := hits[0].Fields["content"]
	assert.False(t, hasContent)
}

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

package recsrc

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"recsearch/record"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prepareDB(t *testing.T) *sql.DB {
	db, err := sql.Open(DriverSQLite, filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	stmts := []string{
		"CREATE TABLE authors (id INTEGER PRIMARY KEY, name TEXT)",
		"CREATE TABLE articles (id INTEGER PRIMARY KEY, title TEXT, content TEXT, " +
			"status TEXT, author_id INTEGER, meta TEXT)",
		"INSERT INTO authors (id, name) VALUES (1, 'Jane Doe')",
		"INSERT INTO articles (id, title, content, status, author_id, meta) VALUES " +
			"(1, 'Hello', '<p>Hello world</p>', 'published', 1, '{\"tags\": [\"a\", \"b\"]}'), " +
			"(2, 'Draft', 'not yet', 'draft', NULL, NULL), " +
			"(3, 'Orphan', 'no author', 'published', 42, NULL)",
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

func articleSpec() *TableSpec {
	return &TableSpec{
		Table:       "articles",
		PKColumn:    "id",
		URLPattern:  "/articles/{id}/{title}",
		JSONColumns: []string{"meta"},
		Relations: map[string]*RelationSpec{
			"author": {Table: "authors", ForeignKey: "author_id", PKColumn: "id"},
		},
	}
}

func TestStreamAllRecords(t *testing.T) {
	src := NewSQLSource(prepareDB(t), DriverSQLite, map[string]*TableSpec{"Article": articleSpec()})
	pks := make([]string, 0, 3)
	err := src.Stream(context.Background(), "Article", func(rec record.Record) error {
		pks = append(pks, rec.PK())
		assert.Equal(t, "Article", rec.Type())
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, pks)
}

func TestStreamWithWhere(t *testing.T) {
	spec := articleSpec()
	spec.Where = "status = 'published'"
	src := NewSQLSource(prepareDB(t), DriverSQLite, map[string]*TableSpec{"Article": spec})
	var num int
	err := src.Stream(context.Background(), "Article", func(rec record.Record) error {
		num++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, num)
}

func TestStreamStopsOnCallbackError(t *testing.T) {
	src := NewSQLSource(prepareDB(t), DriverSQLite, map[string]*TableSpec{"Article": articleSpec()})
	stop := errors.New("stop")
	var num int
	err := src.Stream(context.Background(), "Article", func(rec record.Record) error {
		num++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, num)
}

func TestLoadResolvesRelationsAndJSON(t *testing.T) {
	src := NewSQLSource(prepareDB(t), DriverSQLite, map[string]*TableSpec{"Article": articleSpec()})
	rec, err := src.Load(context.Background(), "Article", "1")
	require.NoError(t, err)

	loc, ok := rec.(record.Locatable)
	require.True(t, ok)
	assert.Equal(t, "/articles/1/Hello", loc.URL())

	author, ok := rec.Get("author").Nested()
	require.True(t, ok)
	name, _ := author.Get("name").Scalar()
	assert.Equal(t, "Jane Doe", name)

	meta, ok := rec.Get("meta").Nested()
	require.True(t, ok)
	tags, _ := meta.Get("tags").Scalar()
	assert.Equal(t, "a b", tags)
}

func TestMissingRelationIsNull(t *testing.T) {
	src := NewSQLSource(prepareDB(t), DriverSQLite, map[string]*TableSpec{"Article": articleSpec()})
	rec, err := src.Load(context.Background(), "Article", "2")
	require.NoError(t, err)
	assert.True(t, rec.Get("author").IsNull())
	rec, err = src.Load(context.Background(), "Article", "3")
	require.NoError(t, err)
	assert.True(t, rec.Get("author").IsNull())
}

func TestLoadMissingRecord(t *testing.T) {
	src := NewSQLSource(prepareDB(t), DriverSQLite, map[string]*TableSpec{"Article": articleSpec()})
	_, err := src.Load(context.Background(), "Article", "100")
	assert.ErrorIs(t, err, record.ErrNotFound)
}

func TestRecordWithoutURLPattern(t *testing.T) {
	spec := articleSpec()
	spec.URLPattern = ""
	src := NewSQLSource(prepareDB(t), DriverSQLite, map[string]*TableSpec{"Article": spec})
	rec, err := src.Load(context.Background(), "Article", "1")
	require.NoError(t, err)
	_, ok := rec.(record.Locatable)
	assert.False(t, ok)
}

func TestPlaceholders(t *testing.T) {
	pg := NewSQLSource(nil, DriverPostgres, nil)
	assert.Equal(t,
		"SELECT id, title FROM articles WHERE id = $1 AND (status = 'published')",
		pg.loadQuery("articles", "id", []string{"id", "title"}, "status = 'published'"))
	my := NewSQLSource(nil, DriverMySQL, nil)
	assert.Equal(t, "SELECT * FROM articles WHERE id = ?", my.loadQuery("articles", "id", nil, ""))
}

func TestConfValidation(t *testing.T) {
	conf := &Conf{
		Driver: DriverSQLite,
		DSN:    "file.db",
		Tables: map[string]*TableSpec{"Article": {Table: "articles; DROP TABLE x"}},
	}
	assert.Error(t, conf.ValidateAndDefaults())

	conf.Tables["Article"] = &TableSpec{Table: "articles"}
	assert.NoError(t, conf.ValidateAndDefaults())
	assert.Equal(t, "id", conf.Tables["Article"].PKColumn)

	assert.Error(t, (&Conf{Driver: "oracle"}).ValidateAndDefaults())
}

func TestMemorySource(t *testing.T) {
	src := NewMemorySource(
		record.NewMapRecord("Article", "1", nil),
		record.NewMapRecord("Article", "2", nil),
	)
	src.Put(record.NewMapRecord("Article", "1", map[string]any{"title": "new"}))
	rec, err := src.Load(context.Background(), "Article", "1")
	require.NoError(t, err)
	title, _ := rec.Get("title").Scalar()
	assert.Equal(t, "new", title)
	assert.True(t, src.Remove("Article", "2"))
	_, err = src.Load(context.Background(), "Article", "2")
	assert.ErrorIs(t, err, record.ErrNotFound)
}

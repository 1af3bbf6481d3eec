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
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"recsearch/record"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

var urlPlaceholderRegexp = regexp.MustCompile(`\{([A-Za-z0-9_.]+)\}`)

// SQLSource reads records from relational database tables
type SQLSource struct {
	db     *sql.DB
	driver string
	tables map[string]*TableSpec
}

func (src *SQLSource) placeholder(i int) string {
	if src.driver == DriverPostgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func selectClause(table string, columns []string) string {
	cols := "*"
	if len(columns) > 0 {
		cols = strings.Join(columns, ", ")
	}
	return fmt.Sprintf("SELECT %s FROM %s", cols, table)
}

func (src *SQLSource) streamQuery(spec *TableSpec) string {
	q := selectClause(spec.Table, spec.Columns)
	if spec.Where != "" {
		q += " WHERE (" + spec.Where + ")"
	}
	return q + " ORDER BY " + spec.PKColumn
}

func (src *SQLSource) loadQuery(table, pkColumn string, columns []string, where string) string {
	q := selectClause(table, columns) + fmt.Sprintf(" WHERE %s = %s", pkColumn, src.placeholder(1))
	if where != "" {
		q += " AND (" + where + ")"
	}
	return q
}

func scanRow(rows *sql.Rows) (map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	ans := make(map[string]any, len(cols))
	for i, c := range cols {
		if b, ok := vals[i].([]byte); ok {
			ans[c] = string(b)

		} else {
			ans[c] = vals[i]
		}
	}
	return ans, nil
}

func (src *SQLSource) tableSpec(recordType string) (*TableSpec, error) {
	spec, ok := src.tables[recordType]
	if !ok {
		return nil, fmt.Errorf("no table configured for record type %s", recordType)
	}
	return spec, nil
}

func (src *SQLSource) newRecord(ctx context.Context, recordType string, spec *TableSpec, row map[string]any) record.Record {
	pk, _ := record.ValueOf(row[spec.PKColumn]).Scalar()
	rec := &sqlRecord{
		ctx:     ctx,
		src:     src,
		recType: recordType,
		spec:    spec,
		pk:      pk,
		values:  row,
		related: make(map[string]record.Value),
	}
	if spec.URLPattern == "" {
		return rec
	}
	return record.WithURL(rec, expandURL(spec.URLPattern, rec))
}

// Stream implements indexer.RecordSource
func (src *SQLSource) Stream(ctx context.Context, recordType string, fn func(rec record.Record) error) error {
	spec, err := src.tableSpec(recordType)
	if err != nil {
		return err
	}
	rows, err := src.db.QueryContext(ctx, src.streamQuery(spec))
	if err != nil {
		return fmt.Errorf("failed to stream records of %s: %w", recordType, err)
	}
	defer rows.Close()
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return fmt.Errorf("failed to stream records of %s: %w", recordType, err)
		}
		if err := fn(src.newRecord(ctx, recordType, spec, row)); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to stream records of %s: %w", recordType, err)
	}
	return nil
}

func (src *SQLSource) loadRow(ctx context.Context, query string, pk any) (map[string]any, error) {
	rows, err := src.db.QueryContext(ctx, query, pk)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, record.ErrNotFound
	}
	return scanRow(rows)
}

// Load implements indexer.RecordSource
func (src *SQLSource) Load(ctx context.Context, recordType, pk string) (record.Record, error) {
	spec, err := src.tableSpec(recordType)
	if err != nil {
		return nil, err
	}
	row, err := src.loadRow(ctx, src.loadQuery(spec.Table, spec.PKColumn, spec.Columns, spec.Where), pk)
	if err != nil {
		return nil, fmt.Errorf("failed to load record %s:%s: %w", recordType, pk, err)
	}
	return src.newRecord(ctx, recordType, spec, row), nil
}

func (src *SQLSource) loadRelated(ctx context.Context, name string, rel *RelationSpec, fk any) record.Value {
	row, err := src.loadRow(ctx, src.loadQuery(rel.Table, rel.PKColumn, rel.Columns, ""), fk)
	if errors.Is(err, record.ErrNotFound) {
		return record.Null()

	} else if err != nil {
		log.Error().Err(err).Str("relation", name).Any("key", fk).Msg("failed to load related record")
		return record.Null()
	}
	pk, _ := record.ValueOf(fk).Scalar()
	return record.Nested(record.NewMapRecord(name, pk, row))
}

func (src *SQLSource) Close() error {
	return src.db.Close()
}

func NewSQLSource(db *sql.DB, driver string, tables map[string]*TableSpec) *SQLSource {
	return &SQLSource{db: db, driver: driver, tables: tables}
}

// ------------------------------

type sqlRecord struct {
	ctx     context.Context
	src     *SQLSource
	recType string
	spec    *TableSpec
	pk      string
	values  map[string]any
	related map[string]record.Value
}

func (rec *sqlRecord) Type() string {
	return rec.recType
}

func (rec *sqlRecord) PK() string {
	return rec.pk
}

func (rec *sqlRecord) Get(name string) record.Value {
	if rel, ok := rec.spec.Relations[name]; ok {
		if v, ok := rec.related[name]; ok {
			return v
		}
		fk := rec.values[rel.ForeignKey]
		v := record.Null()
		if fk != nil {
			v = rec.src.loadRelated(rec.ctx, name, rel, fk)
		}
		rec.related[name] = v
		return v
	}
	v := rec.values[name]
	if rec.spec.isJSONColumn(name) {
		return jsonValue(v)
	}
	return record.ValueOf(v)
}

func jsonValue(v any) record.Value {
	s, ok := v.(string)
	if !ok || s == "" {
		return record.ValueOf(v)
	}
	var data any
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		log.Warn().Err(err).Msg("invalid JSON column value, using raw value")
		return record.Scalar(s)
	}
	return record.ValueOf(data)
}

func expandURL(pattern string, rec record.Record) string {
	return urlPlaceholderRegexp.ReplaceAllStringFunc(pattern, func(m string) string {
		name := m[1 : len(m)-1]
		v, _ := rec.Get(name).Scalar()
		return url.PathEscape(v)
	})
}

// NewFromConf opens a database and creates a record source for it
func NewFromConf(conf *Conf) (*SQLSource, error) {
	db, err := DBOpen(conf)
	if err != nil {
		return nil, err
	}
	return NewSQLSource(db, conf.Driver, conf.Tables), nil
}

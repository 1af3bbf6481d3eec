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
	"fmt"
	"regexp"

	"github.com/rs/zerolog/log"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	dfltPKColumn = "id"
	dfltPoolSize = 10
)

var identRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// DBConf configures a MySQL connection
type DBConf struct {
	Host     string `json:"host" yaml:"host"`
	Name     string `json:"name" yaml:"name"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	PoolSize int    `json:"poolSize" yaml:"poolSize"`
}

// RelationSpec describes a to-one relation resolved
// as a nested record
type RelationSpec struct {
	Table      string   `json:"table" yaml:"table"`
	ForeignKey string   `json:"foreignKey" yaml:"foreignKey"`
	PKColumn   string   `json:"pkColumn" yaml:"pkColumn"`
	Columns    []string `json:"columns" yaml:"columns"`
}

// TableSpec describes how records of a type are selected
type TableSpec struct {
	Table    string   `json:"table" yaml:"table"`
	PKColumn string   `json:"pkColumn" yaml:"pkColumn"`
	Columns  []string `json:"columns" yaml:"columns"`

	// Where is an optional SQL condition limiting selected rows
	Where string `json:"where" yaml:"where"`

	// URLPattern creates record locators, e.g. `/articles/{id}`.
	// Without the pattern, records of the type cannot be indexed.
	URLPattern string `json:"urlPattern" yaml:"urlPattern"`

	// JSONColumns contain JSON objects exposed as nested records
	JSONColumns []string `json:"jsonColumns" yaml:"jsonColumns"`

	Relations map[string]*RelationSpec `json:"relations" yaml:"relations"`
}

func (spec *TableSpec) isJSONColumn(name string) bool {
	for _, c := range spec.JSONColumns {
		if c == name {
			return true
		}
	}
	return false
}

func validateIdents(items ...string) error {
	for _, item := range items {
		if !identRegexp.MatchString(item) {
			return fmt.Errorf("invalid SQL identifier `%s`", item)
		}
	}
	return nil
}

func (spec *TableSpec) ValidateAndDefaults(recordType string) error {
	if spec.Table == "" {
		return fmt.Errorf("missing table for record type %s", recordType)
	}
	if spec.PKColumn == "" {
		spec.PKColumn = dfltPKColumn
		log.Warn().
			Str("recordType", recordType).
			Str("value", spec.PKColumn).
			Msg("record source value `pkColumn` not set, using default")
	}
	if err := validateIdents(append([]string{spec.Table, spec.PKColumn}, spec.Columns...)...); err != nil {
		return fmt.Errorf("record type %s: %w", recordType, err)
	}
	if spec.URLPattern == "" {
		log.Warn().
			Str("recordType", recordType).
			Msg("no `urlPattern` configured, records will not be indexable")
	}
	for name, rel := range spec.Relations {
		if rel.Table == "" || rel.ForeignKey == "" {
			return fmt.Errorf("record type %s: relation %s needs both table and foreignKey", recordType, name)
		}
		if rel.PKColumn == "" {
			rel.PKColumn = dfltPKColumn
		}
		if err := validateIdents(append([]string{rel.Table, rel.ForeignKey, rel.PKColumn}, rel.Columns...)...); err != nil {
			return fmt.Errorf("record type %s, relation %s: %w", recordType, name, err)
		}
	}
	return nil
}

// Conf configures the SQL record source
type Conf struct {

	// Driver is one of `mysql`, `postgres`, `sqlite`
	Driver string `json:"driver" yaml:"driver"`

	// DB is used with the `mysql` driver
	DB *DBConf `json:"db" yaml:"db"`

	// DSN is used with `postgres` and `sqlite` drivers
	DSN string `json:"dsn" yaml:"dsn"`

	// Tables maps record types to their tables
	Tables map[string]*TableSpec `json:"tables" yaml:"tables"`
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `recordSource` section")
	}
	switch conf.Driver {
	case DriverMySQL:
		if conf.DB == nil {
			return fmt.Errorf("missing `db` section for the mysql driver")
		}
		if conf.DB.PoolSize == 0 {
			conf.DB.PoolSize = dfltPoolSize
			log.Warn().
				Int("value", conf.DB.PoolSize).
				Msg("record source value `db.poolSize` not set, using default")
		}
	case DriverPostgres, DriverSQLite:
		if conf.DSN == "" {
			return fmt.Errorf("missing `dsn` for the %s driver", conf.Driver)
		}
	default:
		return fmt.Errorf("unsupported record source driver `%s`", conf.Driver)
	}
	if len(conf.Tables) == 0 {
		return fmt.Errorf("no tables configured in record source")
	}
	for recType, spec := range conf.Tables {
		if err := spec.ValidateAndDefaults(recType); err != nil {
			return err
		}
	}
	return nil
}

// Copyright 2024 Martin Zimandl <martin.zimandl@gmail.com>
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
	"recsearch/extractor"
	"recsearch/record"
	"recsearch/util"
	"strings"
	"time"

	"github.com/czcorpus/cnc-gokit/collections"
	"github.com/czcorpus/cnc-gokit/datetime"
	"github.com/czcorpus/cnc-gokit/fs"
	"github.com/rs/zerolog/log"
)

const (
	dfltIndexDirPath            = "./runtime/search"
	dfltMinWildcardPrefixLength = 3
	dfltSearchCacheSize         = 500
	dfltExpectedRecordsPerType  = 100000
)

var dfltDocumentExtensions = []string{".docx", ".xlsx"}

// Conf contains indexer's configuration as obtained
// from a JSON file (or chunk). Please note that the
// instance should be treated as ready only after
// ValidateAndDefaults is called. Otherwise, it may
// provide incorrect or inconsistent data.
type Conf struct {

	// IndexDirPath specifies a directory where Bleve stores
	// its fulltext index data. If the directory does not
	// contain an index, a new one is created there.
	IndexDirPath string `json:"indexDirPath" yaml:"indexDirPath"`

	// CaseSensitive selects analyzers used for text and keyword
	// fields and also whether query terms are lower-cased.
	// Changing the value requires rebuilding the index from scratch.
	CaseSensitive bool `json:"caseSensitive" yaml:"caseSensitive"`

	// MinWildcardPrefixLength specifies how many non-wildcard characters
	// must precede the first wildcard in a search term. Zero allows
	// terms starting with a wildcard.
	MinWildcardPrefixLength *int `json:"minWildcardPrefixLength" yaml:"minWildcardPrefixLength"`

	// ResultLimit is a hard cap on number of search hits (0 = unlimited)
	ResultLimit int `json:"resultLimit" yaml:"resultLimit"`

	// OptimizeOnUpsert specifies whether the index is optimized after
	// each incremental insert/update/delete. Defaults to true.
	OptimizeOnUpsert *bool `json:"optimizeOnUpsert" yaml:"optimizeOnUpsert"`

	// OptimizeInterval is a string encoded (10s, 1m, 5m30s etc.)
	// interval of background optimization. It is used only if
	// OptimizeOnUpsert is false.
	OptimizeInterval string `json:"optimizeInterval" yaml:"optimizeInterval"`

	// DocumentExtensions lists file extensions whose attribute values
	// are treated as paths to office documents the text of which
	// is indexed instead of the value itself.
	DocumentExtensions []string `json:"documentExtensions" yaml:"documentExtensions"`

	// SearchCacheSize is a number of cached search results.
	// A negative value disables the cache.
	SearchCacheSize int `json:"searchCacheSize" yaml:"searchCacheSize"`

	// ExpectedRecordsPerType is used to size duplicate detection
	// during full rebuild.
	ExpectedRecordsPerType uint `json:"expectedRecordsPerType" yaml:"expectedRecordsPerType"`
}

func (conf *Conf) WildcardPrefixLength() int {
	if conf.MinWildcardPrefixLength == nil {
		return dfltMinWildcardPrefixLength
	}
	return *conf.MinWildcardPrefixLength
}

func (conf *Conf) OptimizesOnUpsert() bool {
	return conf.OptimizeOnUpsert == nil || *conf.OptimizeOnUpsert
}

// OptimizeIntervalDur returns background optimization interval.
// Zero means no background optimization.
func (conf *Conf) OptimizeIntervalDur() time.Duration {
	if conf.OptimizeInterval == "" {
		return 0
	}
	dur, err := datetime.ParseDuration(conf.OptimizeInterval)
	if err != nil {
		panic(err) // ValidateAndDefaults() checks this in a more graceful way
	}
	return dur
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `indexer` section")
	}
	if conf.IndexDirPath == "" {
		conf.IndexDirPath = dfltIndexDirPath
		log.Warn().
			Str("value", conf.IndexDirPath).
			Msg("indexer value `indexDirPath` not set, using default")
	}
	isFile, err := fs.IsFile(conf.IndexDirPath)
	if err != nil {
		return fmt.Errorf("failed to validate indexDirPath: %w", err)
	}
	if isFile {
		return fmt.Errorf("indexDirPath %s is a file", conf.IndexDirPath)
	}
	if conf.MinWildcardPrefixLength == nil {
		v := dfltMinWildcardPrefixLength
		conf.MinWildcardPrefixLength = &v
		log.Warn().
			Int("value", v).
			Msg("indexer value `minWildcardPrefixLength` not set, using default")

	} else if *conf.MinWildcardPrefixLength < 0 {
		return fmt.Errorf("minWildcardPrefixLength must be >= 0")
	}
	if conf.ResultLimit < 0 {
		return fmt.Errorf("resultLimit must be >= 0")
	}
	if conf.OptimizeOnUpsert == nil {
		v := true
		conf.OptimizeOnUpsert = &v
		log.Warn().
			Bool("value", v).
			Msg("indexer value `optimizeOnUpsert` not set, using default")
	}
	if conf.OptimizeInterval != "" {
		dur, err := datetime.ParseDuration(conf.OptimizeInterval)
		if err != nil {
			return fmt.Errorf("failed to validate optimizeInterval: %w", err)
		}
		if dur <= 0 {
			return fmt.Errorf("optimizeInterval must be > 0")
		}
		tuned, err := util.PrimeSecondsInterval(dur)
		if err != nil {
			return fmt.Errorf("failed to tune ops timing: %w", err)
		}
		if tuned != dur {
			log.Warn().
				Dur("oldValue", dur).
				Dur("newValue", tuned).
				Msg("tuned value of optimizeInterval so it cannot be easily overlapped by other timers")
			conf.OptimizeInterval = tuned.String()
		}
		if conf.OptimizesOnUpsert() {
			log.Warn().Msg("optimizeInterval has no effect with optimizeOnUpsert enabled")
		}
	}
	if len(conf.DocumentExtensions) == 0 {
		conf.DocumentExtensions = append([]string{}, dfltDocumentExtensions...)
		log.Warn().
			Strs("value", conf.DocumentExtensions).
			Msg("indexer value `documentExtensions` not set, using default")
	}
	for i, ext := range conf.DocumentExtensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := extractor.KindOf(ext); !ok {
			return fmt.Errorf("unsupported document extension %s", ext)
		}
		conf.DocumentExtensions[i] = ext
	}
	if conf.SearchCacheSize == 0 {
		conf.SearchCacheSize = dfltSearchCacheSize
		log.Warn().
			Int("value", conf.SearchCacheSize).
			Msg("indexer value `searchCacheSize` not set, using default")
	}
	if conf.ExpectedRecordsPerType == 0 {
		conf.ExpectedRecordsPerType = dfltExpectedRecordsPerType
	}
	return nil
}

// ---------------------------

type FieldType string

const (
	FieldKeyword   FieldType = "keyword"
	FieldUnIndexed FieldType = "unindexed"
	FieldBinary    FieldType = "binary"
	FieldText      FieldType = "text"
	FieldUnStored  FieldType = "unstored"
)

func (ft FieldType) Validate() error {
	switch ft {
	case FieldKeyword, FieldUnIndexed, FieldBinary, FieldText, FieldUnStored:
		return nil
	}
	return fmt.Errorf("unknown field type `%s`", ft)
}

// IsStored tells whether the raw value is kept in the index
func (ft FieldType) IsStored() bool {
	return ft != FieldUnStored
}

// IsSearchable tells whether the value can be matched by queries
func (ft FieldType) IsSearchable() bool {
	return ft == FieldKeyword || ft == FieldText || ft == FieldUnStored
}

// AttributeSpec maps a record attribute to an index field
type AttributeSpec struct {
	FieldName string `json:"fieldName" yaml:"fieldName"`

	// SourcePath is a dot-separated attribute path (e.g. `author.name`)
	SourcePath string `json:"sourcePath" yaml:"sourcePath"`

	FieldType FieldType `json:"fieldType" yaml:"fieldType"`

	// BasePath is prepended to values recognized as paths
	// to office documents
	BasePath string `json:"basePath" yaml:"basePath"`
}

// Type returns configured field type with Text as the default
func (spec AttributeSpec) Type() FieldType {
	if spec.FieldType == "" {
		return FieldText
	}
	return spec.FieldType
}

// IndexConfig describes how records of a single type
// are converted into index documents.
type IndexConfig struct {
	RecordType string          `json:"recordType" yaml:"recordType"`
	Attributes []AttributeSpec `json:"attributes" yaml:"attributes"`

	// Languages, if not empty, makes the indexer create one
	// document per record and language
	Languages []string `json:"languages" yaml:"languages"`

	// Conditions specify attribute values a record must have
	// to be indexed (e.g. {"status": "published"})
	Conditions map[string]any `json:"conditions" yaml:"conditions"`
}

// conditionForm returns a comparable form of a condition operand.
// Booleans compare equal to their numeric forms (as stored e.g. in
// TINYINT columns) and null equals an empty string.
func conditionForm(v record.Value) (string, bool) {
	if v.IsNull() {
		return "", true
	}
	s, ok := v.Scalar()
	if !ok {
		return "", false
	}
	switch s {
	case "true":
		return "1", true
	case "false":
		return "0", true
	}
	return s, true
}

// MatchesConditions tests all the configured conditions
// against the record
func (ic *IndexConfig) MatchesConditions(rec record.Record) bool {
	for attr, expected := range ic.Conditions {
		want, ok := conditionForm(record.ValueOf(expected))
		if !ok {
			return false
		}
		got, ok := conditionForm(rec.Get(attr))
		if !ok || got != want {
			return false
		}
	}
	return true
}

func (ic *IndexConfig) ValidateAndDefaults() error {
	if ic.RecordType == "" {
		return fmt.Errorf("missing recordType")
	}
	if len(ic.Attributes) == 0 {
		log.Warn().
			Str("recordType", ic.RecordType).
			Msg("no attributes configured, only identity fields will be indexed")
	}
	used := collections.NewSet[string]()
	for i := range ic.Attributes {
		spec := &ic.Attributes[i]
		if spec.FieldName == "" {
			return fmt.Errorf("%s: missing fieldName in attribute %d", ic.RecordType, i)
		}
		if isReservedField(spec.FieldName) {
			return fmt.Errorf("%s: field name `%s` is reserved", ic.RecordType, spec.FieldName)
		}
		if used.Contains(spec.FieldName) {
			return fmt.Errorf("%s: duplicate field name `%s`", ic.RecordType, spec.FieldName)
		}
		used.Add(spec.FieldName)
		if spec.SourcePath == "" {
			spec.SourcePath = spec.FieldName
			log.Warn().
				Str("recordType", ic.RecordType).
				Str("value", spec.SourcePath).
				Msg("attribute `sourcePath` not set, using field name")
		}
		if err := spec.Type().Validate(); err != nil {
			return fmt.Errorf("%s.%s: %w", ic.RecordType, spec.FieldName, err)
		}
	}
	return nil
}

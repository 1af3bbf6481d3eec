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
	"path/filepath"
	"recsearch/extractor"
	"recsearch/record"
	"strings"

	"github.com/rs/zerolog/log"
)

// Resolver obtains scalar values of (possibly nested) record
// attributes. Values pointing to office documents are replaced
// by the documents' text.
type Resolver struct {
	extensions map[string]extractor.Kind
}

// Resolve returns the value of an attribute specified by a dot-separated
// path. The second returned value is false if the value is null which
// includes a null found anywhere along the path and a missing
// file-backed document.
func (r *Resolver) Resolve(rec record.Record, sourcePath, basePath string) (string, bool, error) {
	value, ok := walkPath(rec, sourcePath)
	if !ok {
		return "", false, nil
	}
	kind, isDoc := r.documentKind(value)
	if !isDoc {
		return value, true, nil
	}
	docPath := filepath.Join(basePath, value)
	body, found, err := extractor.ExtractBody(docPath, kind)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve %s: %w", sourcePath, err)
	}
	if !found {
		log.Warn().
			Str("recordType", rec.Type()).
			Str("pk", rec.PK()).
			Str("path", docPath).
			Msg("attribute refers to a missing file, using empty value")
		return "", false, nil
	}
	return body, true, nil
}

func (r *Resolver) documentKind(value string) (extractor.Kind, bool) {
	i := strings.LastIndex(value, ".")
	if i < 0 {
		return "", false
	}
	kind, ok := r.extensions[strings.ToLower(value[i:])]
	return kind, ok
}

// walkPath descends through nested records until it finds a scalar.
func walkPath(rec record.Record, sourcePath string) (string, bool) {
	if !strings.Contains(sourcePath, ".") {
		return rec.Get(sourcePath).Scalar()
	}
	curr := rec
	for _, seg := range strings.Split(sourcePath, ".") {
		v := curr.Get(seg)
		switch v.Kind() {
		case record.KindNested:
			curr, _ = v.Nested()
		case record.KindScalar:
			return v.Scalar()
		default:
			return "", false
		}
	}
	return "", false
}

// NewResolver creates a resolver recognizing provided extensions
// as references to office documents. Extensions without a known
// extractor are ignored.
func NewResolver(extensions []string) *Resolver {
	ans := &Resolver{extensions: make(map[string]extractor.Kind)}
	for _, ext := range extensions {
		if kind, ok := extractor.KindOf(ext); ok {
			ans.extensions[strings.ToLower(ext)] = kind
		}
	}
	return ans
}

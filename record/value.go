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

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type ValueKind int

const (
	KindNull ValueKind = iota
	KindScalar
	KindNested
)

func (k ValueKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindNested:
		return "nested"
	default:
		return "null"
	}
}

// Value is an attribute value as provided by a Record.
// It is either a plain scalar (already converted to its string
// form), a nested record or null.
type Value struct {
	kind   ValueKind
	scalar string
	nested Record
}

func (v Value) Kind() ValueKind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// Scalar returns the string form of a scalar value. For other
// kinds, the second returned value is false.
func (v Value) Scalar() (string, bool) {
	if v.kind != KindScalar {
		return "", false
	}
	return v.scalar, true
}

func (v Value) Nested() (Record, bool) {
	if v.kind != KindNested {
		return nil, false
	}
	return v.nested, true
}

func (v Value) String() string {
	switch v.kind {
	case KindScalar:
		return v.scalar
	case KindNested:
		return fmt.Sprintf("Nested(%s:%s)", v.nested.Type(), v.nested.PK())
	default:
		return "Null"
	}
}

func Null() Value {
	return Value{kind: KindNull}
}

func Scalar(v string) Value {
	return Value{kind: KindScalar, scalar: v}
}

func Nested(rec Record) Value {
	if rec == nil {
		return Null()
	}
	return Value{kind: KindNested, nested: rec}
}

// ValueOf converts a generic Go value into a Value. Maps with string
// keys become nested records, slices of scalars are joined by a space
// so they can be tokenized as a single text value.
func ValueOf(v any) Value {
	switch tv := v.(type) {
	case nil:
		return Null()
	case Value:
		return tv
	case string:
		return Scalar(tv)
	case []byte:
		if tv == nil {
			return Null()
		}
		return Scalar(string(tv))
	case Record:
		return Nested(tv)
	case map[string]any:
		if tv == nil {
			return Null()
		}
		return Nested(NewMapRecord("", "", tv))
	case int:
		return Scalar(strconv.Itoa(tv))
	case int64:
		return Scalar(strconv.FormatInt(tv, 10))
	case float64:
		return Scalar(strconv.FormatFloat(tv, 'f', -1, 64))
	case bool:
		return Scalar(strconv.FormatBool(tv))
	case time.Time:
		return Scalar(tv.Format(time.RFC3339))
	case *time.Time:
		if tv == nil {
			return Null()
		}
		return Scalar(tv.Format(time.RFC3339))
	case []string:
		return Scalar(strings.Join(tv, " "))
	case []any:
		items := make([]string, 0, len(tv))
		for _, item := range tv {
			if s, ok := ValueOf(item).Scalar(); ok {
				items = append(items, s)
			}
		}
		return Scalar(strings.Join(items, " "))
	case fmt.Stringer:
		return Scalar(tv.String())
	default:
		return Scalar(fmt.Sprint(tv))
	}
}

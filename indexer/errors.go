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
	"errors"
	"fmt"
)

var (

	// ErrConfiguration means the indexer cannot proceed due to
	// missing or invalid configuration. Nothing is written to
	// the index in such case.
	ErrConfiguration = errors.New("configuration error")

	// ErrRecordContract is reported for records we are unable
	// to index because they do not provide required capabilities
	// (e.g. a locator).
	ErrRecordContract = errors.New("record does not fulfill indexing contract")

	// ErrStore wraps errors reported by the underlying index
	ErrStore = errors.New("index store error")
)

func storeError(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, ErrStore, err)
}

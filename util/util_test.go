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

package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNearestPrime(t *testing.T) {
	for v, expected := range map[int]int{0: 2, 2: 2, 4: 5, 10: 11, 24: 29, 97: 97} {
		p, err := NearestPrime(v)
		assert.NoError(t, err)
		assert.Equal(t, expected, p, "value %d", v)
	}
}

func TestPrimeSecondsInterval(t *testing.T) {
	dur, err := PrimeSecondsInterval(10 * time.Second)
	assert.NoError(t, err)
	assert.Equal(t, 11*time.Second, dur)

	dur, err = PrimeSecondsInterval(1500 * time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 2*time.Second, dur)
}

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
	"errors"
	"math/big"
	"time"
)

const (
	primeSearchRange = 1000
)

var (
	ErrPrimeSearchExhausted = errors.New("prime search exhausted")
)

// NearestPrime returns the smallest prime >= v
func NearestPrime(v int) (int, error) {
	if v < 2 {
		return 2, nil
	}
	for i := 0; i < primeSearchRange; i++ {
		if big.NewInt(int64(v + i)).ProbablyPrime(20) {
			return v + i, nil
		}
	}
	return -1, ErrPrimeSearchExhausted
}

// PrimeSecondsInterval rounds an interval up to a prime number
// of seconds so periodic jobs configured with different intervals
// rarely run at the same time.
func PrimeSecondsInterval(dur time.Duration) (time.Duration, error) {
	secs := int((dur + time.Second - 1) / time.Second)
	p, err := NearestPrime(secs)
	if err != nil {
		return 0, err
	}
	return time.Duration(p) * time.Second, nil
}

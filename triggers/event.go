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

package triggers

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"

	SourceHTTP  = "http"
	SourceRedis = "redis"
	SourceKafka = "kafka"
)

var ErrInvalidEvent = errors.New("invalid record change event")

func (a Action) Validate() error {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return nil
	}
	return fmt.Errorf("%w: unknown action `%s`", ErrInvalidEvent, a)
}

// Event notifies about a change of a persisted record
type Event struct {
	Action     Action `json:"action"`
	RecordType string `json:"recordType"`
	PK         string `json:"pk"`

	// Source is the channel the event came from
	Source string `json:"-"`
}

func (ev Event) Validate() error {
	if err := ev.Action.Validate(); err != nil {
		return err
	}
	if ev.RecordType == "" || ev.PK == "" {
		return fmt.Errorf("%w: missing recordType or pk", ErrInvalidEvent)
	}
	return nil
}

func DecodeEvent(data []byte, source string) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	ev.Source = source
	return ev, ev.Validate()
}

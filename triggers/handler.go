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
	"errors"
	"net/http"
	"recsearch/indexer"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
)

type Actions struct {
	dispatcher *Dispatcher
}

func (a *Actions) submit(ctx *gin.Context, action Action) {
	ev := Event{
		Action:     action,
		RecordType: ctx.Param("type"),
		PK:         ctx.Param("pk"),
		Source:     SourceHTTP,
	}
	err := a.dispatcher.Submit(ctx.Request.Context(), ev)
	if errors.Is(err, ErrInvalidEvent) {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusBadRequest)
		return

	} else if errors.Is(err, ErrDispatcherClosed) {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusServiceUnavailable)
		return

	} else if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, indexer.ErrorStatus(err))
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"ok": true})
}

// RecordChanged handles notification about a created or updated
// record. The `action` URL argument can be either `created` or
// `updated` (default).
func (a *Actions) RecordChanged(ctx *gin.Context) {
	action := Action(ctx.DefaultQuery("action", string(ActionUpdated)))
	if action == ActionDeleted {
		uniresp.RespondWithErrorJSON(
			ctx, errors.New("use DELETE method to notify about a removed record"),
			http.StatusBadRequest,
		)
		return
	}
	a.submit(ctx, action)
}

func (a *Actions) RecordDeleted(ctx *gin.Context) {
	a.submit(ctx, ActionDeleted)
}

func NewActions(dispatcher *Dispatcher) *Actions {
	return &Actions{dispatcher: dispatcher}
}

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
	"context"
	"errors"
	"net/http"
	"recsearch/record"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Actions struct {
	indexer *Indexer
}

// ErrorStatus maps indexing errors to HTTP status codes
func ErrorStatus(err error) int {
	if errors.Is(err, ErrRecordContract) {
		return http.StatusUnprocessableEntity

	} else if errors.Is(err, record.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Reindex rebuilds the whole index. With `async=1`, the operation
// runs in background and the handler responds immediately.
func (a *Actions) Reindex(ctx *gin.Context) {
	if ctx.Query("async") == "1" {
		go func() {
			stats, err := a.indexer.ReindexAll(context.Background())
			if err != nil {
				log.Error().Err(err).Any("stats", stats).Msg("background reindex failed")
				return
			}
			log.Info().Any("stats", stats).Msg("background reindex finished")
		}()
		uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"ok": true, "async": true})
		return
	}
	stats, err := a.indexer.ReindexAll(ctx.Request.Context())
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, ErrorStatus(err))
		return
	}
	count, err := a.indexer.Count()
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}
	resp := map[string]any{
		"totalDocuments": count,
		"stats":          stats,
	}
	uniresp.WriteJSONResponse(ctx.Writer, resp)
}

func (a *Actions) Optimize(ctx *gin.Context) {
	if err := a.indexer.Optimize(ctx.Request.Context()); err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"ok": true})
}

func (a *Actions) Count(ctx *gin.Context) {
	count, err := a.indexer.Count()
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"totalDocuments": count})
}

// Documents shows how a record is stored in the index
func (a *Actions) Documents(ctx *gin.Context) {
	hits, err := a.indexer.Documents(ctx.Request.Context(), ctx.Param("type"), ctx.Param("pk"))
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, ErrorStatus(err))
		return
	}
	if len(hits) == 0 {
		uniresp.RespondWithErrorJSON(ctx, record.ErrNotFound, http.StatusNotFound)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"documents": hits})
}

func NewActions(indexer *Indexer) *Actions {
	return &Actions{indexer: indexer}
}

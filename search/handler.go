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

package search

import (
	"errors"
	"net/http"
	"strings"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
)

const (
	filterParamPrefix = "f."
)

type Actions struct {
	service *Service
}

// FiltersFromQuery reads field filters from URL query arguments
// in the form `f.<field>=<value>` (repeatable)
func FiltersFromQuery(ctx *gin.Context) FieldFilters {
	ans := make(FieldFilters)
	for k, vals := range ctx.Request.URL.Query() {
		if field, ok := strings.CutPrefix(k, filterParamPrefix); ok && field != "" {
			ans[field] = append(ans[field], vals...)
		}
	}
	return ans
}

func (a *Actions) Search(ctx *gin.Context) {
	hits, err := a.service.Search(ctx.Request.Context(), ctx.Query("q"), FiltersFromQuery(ctx))
	if errors.Is(err, ErrWildcardPrefixTooShort) {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusBadRequest)
		return

	} else if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}
	resp := map[string]any{
		"hits":  hits,
		"total": len(hits),
	}
	uniresp.WriteJSONResponse(ctx.Writer, resp)
}

func NewActions(service *Service) *Actions {
	return &Actions{service: service}
}

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

package main

import (
	"net/http"
	"recsearch/indexer"
	"recsearch/triggers"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
)

type Actions struct {
	indexer    *indexer.Indexer
	dispatcher *triggers.Dispatcher
	version    VersionInfo
}

func (a *Actions) Overview(ctx *gin.Context) {
	count, err := a.indexer.Count()
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}
	ans := make(map[string]any)
	ans["version"] = a.version
	ans["totalDocuments"] = count
	ans["generation"] = a.indexer.Session().Generation()
	ans["triggers"] = a.dispatcher.Stats()
	uniresp.WriteJSONResponse(ctx.Writer, ans)
}

func (a *Actions) Version(ctx *gin.Context) {
	uniresp.WriteJSONResponse(ctx.Writer, a.version)
}

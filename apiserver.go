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
	"context"
	"fmt"
	"net/http"
	"recsearch/cnf"
	"recsearch/indexer"
	"recsearch/metrics"
	"recsearch/search"
	"recsearch/triggers"
	"time"

	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type apiServer struct {
	server        *http.Server
	conf          *cnf.Conf
	idx           *indexer.Indexer
	searchService *search.Service
	dispatcher    *triggers.Dispatcher
	version       VersionInfo
}

func (api *apiServer) Start(ctx context.Context) {
	if !api.conf.LogLevel.IsDebugMode() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logging.GinMiddleware())
	engine.NoMethod(uniresp.NoMethodHandler)
	engine.NoRoute(uniresp.NotFoundHandler)

	handler := Actions{indexer: api.idx, dispatcher: api.dispatcher, version: api.version}
	engine.GET("/overview", handler.Overview)
	engine.GET("/version", handler.Version)

	searchHandler := search.NewActions(api.searchService)
	engine.GET("/search", searchHandler.Search)

	indexerHandler := indexer.NewActions(api.idx)
	engine.POST("/indexer/reindex", indexerHandler.Reindex)
	engine.POST("/indexer/optimize", indexerHandler.Optimize)
	engine.GET("/indexer/count", indexerHandler.Count)
	engine.GET("/indexer/records/:type/:pk", indexerHandler.Documents)

	triggersHandler := triggers.NewActions(api.dispatcher)
	engine.POST("/records/:type/:pk", triggersHandler.RecordChanged)
	engine.DELETE("/records/:type/:pk", triggersHandler.RecordDeleted)

	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	log.Info().Msgf("starting to listen at %s:%d", api.conf.ListenAddress, api.conf.ListenPort)
	api.server = &http.Server{
		Handler:      engine,
		Addr:         fmt.Sprintf("%s:%d", api.conf.ListenAddress, api.conf.ListenPort),
		WriteTimeout: time.Duration(api.conf.ServerWriteTimeoutSecs) * time.Second,
		ReadTimeout:  time.Duration(api.conf.ServerReadTimeoutSecs) * time.Second,
	}

	go func() {
		if err := api.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()
}

func (api *apiServer) Stop(ctx context.Context) error {
	log.Warn().Msg("shutting down http api server")
	return api.server.Shutdown(ctx)
}

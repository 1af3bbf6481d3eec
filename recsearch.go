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
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"recsearch/cnf"
	"recsearch/indexer"
	"recsearch/metrics"
	"recsearch/recsrc"
	"recsearch/reporting"
	"recsearch/search"
	"recsearch/triggers"
	"strings"
	"syscall"

	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	version   string
	buildDate string
	gitCommit string
)

type VersionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"buildDate"`
	GitCommit string `json:"gitCommit"`
}

type service interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
}

func cleanVersionInfo(v string) string {
	return strings.TrimLeft(strings.Trim(v, "'"), "v")
}

// application holds all the components sharing one open index
type application struct {
	conf      *cnf.Conf
	metrics   *metrics.Metrics
	reporting reporting.IReporting
	source    *recsrc.SQLSource
	session   *indexer.Session
	indexer   *indexer.Indexer
}

func (app *application) Close() {
	if err := app.session.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close index")
	}
	if err := app.source.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close record source")
	}
}

func loadConf(path string) *cnf.Conf {
	conf := cnf.LoadConfig(path)
	logging.SetupLogging(conf.LogFile, conf.LogLevel)
	cnf.ValidateAndDefaults(conf)
	return conf
}

func newApplication(conf *cnf.Conf, reg prometheus.Registerer) (*application, error) {
	app := &application{
		conf:    conf,
		metrics: metrics.New(reg),
	}
	if conf.Reporting != nil {
		writer, err := reporting.NewStatusWriter(*conf.Reporting, conf.TimezoneLocation())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize status reporting: %w", err)
		}
		app.reporting = writer

	} else {
		app.reporting = &reporting.DummyWriter{}
	}
	src, err := recsrc.NewFromConf(conf.RecordSource)
	if err != nil {
		return nil, fmt.Errorf("failed to open record source: %w", err)
	}
	app.source = src
	session, err := indexer.OpenSession(conf.Indexer, conf.Models)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	app.session = session
	app.indexer = indexer.NewIndexer(
		conf.Indexer, conf.Models, session, src, app.reporting, app.metrics)
	return app, nil
}

func runStart(conf *cnf.Conf, ver VersionInfo) error {
	app, err := newApplication(conf, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer app.Close()

	searchService, err := search.NewService(
		app.session,
		search.OptionsFromConf(conf.Indexer),
		conf.Indexer.SearchCacheSize,
		app.metrics,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize search service: %w", err)
	}
	dispatcher := triggers.NewDispatcher(
		conf.Triggers, app.indexer, app.source, app.reporting, app.metrics)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	services := []service{
		app.reporting,
		indexer.NewService(conf.Indexer, app.indexer),
		triggers.NewService(conf.Triggers, dispatcher),
		&apiServer{
			conf:          conf,
			idx:           app.indexer,
			searchService: searchService,
			dispatcher:    dispatcher,
			version:       ver,
		},
	}
	for _, m := range services {
		m.Start(ctx)
	}
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), conf.ShutdownTimeout())
	defer shutdownCancel()
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to stop service")
		}
	}
	return nil
}

func runReindex(conf *cnf.Conf, recreate bool) error {
	app, err := newApplication(conf, nil)
	if err != nil {
		return err
	}
	defer app.Close()
	if recreate {
		if err := app.indexer.RecreateIndex(); err != nil {
			return err
		}
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	stats, err := app.indexer.ReindexAll(ctx)
	if err != nil {
		return err
	}
	count, err := app.indexer.Count()
	if err != nil {
		return err
	}
	log.Info().
		Any("stats", stats).
		Uint64("totalDocuments", count).
		Msg("index rebuilt")
	return nil
}

func runOptimize(conf *cnf.Conf) error {
	app, err := newApplication(conf, nil)
	if err != nil {
		return err
	}
	defer app.Close()
	return app.indexer.Optimize(context.Background())
}

func parseFilters(items []string) (search.FieldFilters, error) {
	ans := make(search.FieldFilters)
	for _, item := range items {
		field, value, ok := strings.Cut(item, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid filter `%s`, expected field=value", item)
		}
		ans[field] = append(ans[field], value)
	}
	return ans, nil
}

func runSearch(cmd *cobra.Command, conf *cnf.Conf, term string, filterItems []string) error {
	filters, err := parseFilters(filterItems)
	if err != nil {
		return err
	}
	app, err := newApplication(conf, nil)
	if err != nil {
		return err
	}
	defer app.Close()
	service, err := search.NewService(app.session, search.OptionsFromConf(conf.Indexer), 0, app.metrics)
	if err != nil {
		return err
	}
	hits, err := service.Search(context.Background(), term, filters)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	data, err := json.MarshalIndent(hits, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func main() {
	ver := VersionInfo{
		Version:   cleanVersionInfo(version),
		BuildDate: cleanVersionInfo(buildDate),
		GitCommit: cleanVersionInfo(gitCommit),
	}

	rootCmd := &cobra.Command{
		Use:           "recsearch",
		Short:         "Recsearch - fulltext index of application records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "start [config]",
		Short: "Run the HTTP API along with index maintenance services",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := loadConf(args[0])
			log.Info().Msg("Starting Recsearch")
			return runStart(conf, ver)
		},
	})

	var recreate bool
	reindexCmd := &cobra.Command{
		Use:   "reindex [config]",
		Short: "Rebuild the whole index from the record source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(loadConf(args[0]), recreate)
		},
	}
	reindexCmd.Flags().BoolVar(
		&recreate, "recreate", false, "remove the index first (needed after changes in models)")
	rootCmd.AddCommand(reindexCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "optimize [config]",
		Short: "Merge index segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimize(loadConf(args[0]))
		},
	})

	var filters []string
	searchCmd := &cobra.Command{
		Use:   "search [config] [query]",
		Short: "Search the index",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var term string
			if len(args) > 1 {
				term = args[1]
			}
			return runSearch(cmd, loadConf(args[0]), term, filters)
		},
	}
	searchCmd.Flags().StringArrayVarP(
		&filters, "filter", "f", []string{}, "field filter in the form field=value (repeatable)")
	rootCmd.AddCommand(searchCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("recsearch %s\nbuild date: %s\nlast commit: %s\n", ver.Version, ver.BuildDate, ver.GitCommit)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

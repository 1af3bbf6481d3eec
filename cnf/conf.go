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

package cnf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"recsearch/indexer"
	"recsearch/recsrc"
	"recsearch/triggers"
	"strings"
	"time"

	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/czcorpus/hltscl"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	dfltServerWriteTimeoutSecs = 30
	dfltServerReadTimeoutSecs  = 10
	dfltListenAddress          = "127.0.0.1"
	dfltListenPort             = 8080
	dfltTimeZone               = "Europe/Prague"
	dfltShutdownTimeoutSecs    = 10
)

type Conf struct {
	srcPath                string
	ListenAddress          string                 `json:"listenAddress" yaml:"listenAddress"`
	ListenPort             int                    `json:"listenPort" yaml:"listenPort"`
	ServerReadTimeoutSecs  int                    `json:"serverReadTimeoutSecs" yaml:"serverReadTimeoutSecs"`
	ServerWriteTimeoutSecs int                    `json:"serverWriteTimeoutSecs" yaml:"serverWriteTimeoutSecs"`
	ShutdownTimeoutSecs    int                    `json:"shutdownTimeoutSecs" yaml:"shutdownTimeoutSecs"`
	TimeZone               string                 `json:"timeZone" yaml:"timeZone"`
	LogFile                string                 `json:"logFile" yaml:"logFile"`
	LogLevel               logging.LogLevel       `json:"logLevel" yaml:"logLevel"`
	Indexer                *indexer.Conf          `json:"indexer" yaml:"indexer"`
	Models                 []*indexer.IndexConfig `json:"models" yaml:"models"`
	RecordSource           *recsrc.Conf           `json:"recordSource" yaml:"recordSource"`
	Triggers               *triggers.Conf         `json:"triggers" yaml:"triggers"`

	// Reporting is optional. Without it, stats are only logged.
	Reporting *hltscl.PgConf `json:"reporting" yaml:"reporting"`
}

func (conf *Conf) SrcPath() string {
	return conf.srcPath
}

func (conf *Conf) TimezoneLocation() *time.Location {
	// we can ignore the error here as we always call c.Validate()
	// first (which also tries to load the location and report possible
	// error)
	loc, _ := time.LoadLocation(conf.TimeZone)
	return loc
}

func (conf *Conf) ShutdownTimeout() time.Duration {
	return time.Duration(conf.ShutdownTimeoutSecs) * time.Second
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf.ListenAddress == "" {
		conf.ListenAddress = dfltListenAddress
		log.Warn().
			Str("value", conf.ListenAddress).
			Msg("listenAddress not specified, using default")
	}
	if conf.ListenPort == 0 {
		conf.ListenPort = dfltListenPort
		log.Warn().
			Int("value", conf.ListenPort).
			Msg("listenPort not specified, using default")
	}
	if conf.ServerWriteTimeoutSecs == 0 {
		conf.ServerWriteTimeoutSecs = dfltServerWriteTimeoutSecs
		log.Warn().
			Int("value", dfltServerWriteTimeoutSecs).
			Msg("serverWriteTimeoutSecs not specified, using default")
	}
	if conf.ServerReadTimeoutSecs == 0 {
		conf.ServerReadTimeoutSecs = dfltServerReadTimeoutSecs
		log.Warn().
			Int("value", dfltServerReadTimeoutSecs).
			Msg("serverReadTimeoutSecs not specified, using default")
	}
	if conf.ShutdownTimeoutSecs == 0 {
		conf.ShutdownTimeoutSecs = dfltShutdownTimeoutSecs
	}
	if conf.TimeZone == "" {
		conf.TimeZone = dfltTimeZone
		log.Warn().
			Str("timeZone", dfltTimeZone).
			Msg("time zone not specified, using default")
	}
	if _, err := time.LoadLocation(conf.TimeZone); err != nil {
		return fmt.Errorf("invalid time zone %s: %w", conf.TimeZone, err)
	}
	if err := conf.Indexer.ValidateAndDefaults(); err != nil {
		return err
	}
	if len(conf.Models) == 0 {
		return fmt.Errorf("no index models configured (section `models`)")
	}
	types := make(map[string]bool)
	for i, model := range conf.Models {
		if model == nil {
			return fmt.Errorf("empty model definition at position %d", i)
		}
		if err := model.ValidateAndDefaults(); err != nil {
			return fmt.Errorf("invalid model at position %d: %w", i, err)
		}
		if types[model.RecordType] {
			return fmt.Errorf("duplicate model for record type %s", model.RecordType)
		}
		types[model.RecordType] = true
	}
	if conf.RecordSource == nil {
		return fmt.Errorf("missing `recordSource` section")
	}
	if err := conf.RecordSource.ValidateAndDefaults(); err != nil {
		return fmt.Errorf("invalid `recordSource` section: %w", err)
	}
	for _, model := range conf.Models {
		if _, ok := conf.RecordSource.Tables[model.RecordType]; !ok {
			return fmt.Errorf("no record source table defined for record type %s", model.RecordType)
		}
	}
	if conf.Triggers == nil {
		conf.Triggers = &triggers.Conf{}
	}
	if err := conf.Triggers.ValidateAndDefaults(); err != nil {
		return err
	}
	return nil
}

func decodeConfig(path string, rawData []byte, conf *Conf) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(rawData, conf)
	default:
		return json.Unmarshal(rawData, conf)
	}
}

// LoadConfigFile reads a JSON or YAML (based on file extension)
// configuration file.
func LoadConfigFile(path string) (*Conf, error) {
	if path == "" {
		return nil, fmt.Errorf("config path not specified")
	}
	rawData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	var conf Conf
	if err := decodeConfig(path, rawData, &conf); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	conf.srcPath = path
	return &conf, nil
}

func LoadConfig(path string) *Conf {
	conf, err := LoadConfigFile(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load config")
	}
	return conf
}

func ValidateAndDefaults(conf *Conf) {
	if err := conf.ValidateAndDefaults(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if conf.LogLevel.IsDebugMode() {
		log.Debug().Str("srcPath", conf.srcPath).Msg("configuration loaded and validated")
	}
}

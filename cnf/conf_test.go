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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlConf = `
listenPort: 8090
logLevel: info
indexer:
  caseSensitive: false
  resultLimit: 20
models:
  - recordType: Article
    languages: [en, cs]
    conditions:
      status: published
    attributes:
      - fieldName: title
      - fieldName: body
        sourcePath: content
      - fieldName: status
        fieldType: keyword
recordSource:
  driver: sqlite
  dsn: ./articles.db
  tables:
    Article:
      table: articles
      urlPattern: /articles/{id}
triggers:
  redis:
    host: localhost
    channel: recsearch_changes
`

const jsonConf = `{
  "indexer": {},
  "models": [{"recordType": "Note", "attributes": [{"fieldName": "text"}]}],
  "recordSource": {
    "driver": "postgres",
    "dsn": "postgres://localhost/notes",
    "tables": {"Note": {"table": "notes", "urlPattern": "/n/{id}"}}
  }
}`

func writeConf(t *testing.T, name, data string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

func TestLoadYAMLConfig(t *testing.T) {
	conf, err := LoadConfigFile(writeConf(t, "conf.yaml", yamlConf))
	require.NoError(t, err)
	require.NoError(t, conf.ValidateAndDefaults())
	assert.Equal(t, 8090, conf.ListenPort)
	assert.Equal(t, dfltListenAddress, conf.ListenAddress)
	assert.Equal(t, 20, conf.Indexer.ResultLimit)
	require.Len(t, conf.Models, 1)
	model := conf.Models[0]
	assert.Equal(t, "Article", model.RecordType)
	assert.Equal(t, []string{"en", "cs"}, model.Languages)
	assert.Equal(t, "content", model.Attributes[1].SourcePath)
	assert.Equal(t, "title", model.Attributes[0].SourcePath)
	assert.Equal(t, "published", model.Conditions["status"])
	assert.Equal(t, "articles", conf.RecordSource.Tables["Article"].Table)
	assert.Equal(t, "recsearch_changes", conf.Triggers.Redis.Channel)
	assert.NotNil(t, conf.TimezoneLocation())
}

func TestLoadJSONConfig(t *testing.T) {
	conf, err := LoadConfigFile(writeConf(t, "conf.json", jsonConf))
	require.NoError(t, err)
	require.NoError(t, conf.ValidateAndDefaults())
	assert.Equal(t, "Note", conf.Models[0].RecordType)
	assert.NotNil(t, conf.Triggers)
	assert.Nil(t, conf.Triggers.Redis)
	assert.Equal(t, dfltShutdownTimeoutSecs, conf.ShutdownTimeoutSecs)
}

func TestConfigWithoutModels(t *testing.T) {
	conf, err := LoadConfigFile(writeConf(t, "conf.json", `{"indexer": {}}`))
	require.NoError(t, err)
	assert.Error(t, conf.ValidateAndDefaults())
}

func TestConfigModelWithoutSourceTable(t *testing.T) {
	conf, err := LoadConfigFile(writeConf(t, "conf.json", jsonConf))
	require.NoError(t, err)
	conf.RecordSource.Tables["Other"] = conf.RecordSource.Tables["Note"]
	delete(conf.RecordSource.Tables, "Note")
	assert.Error(t, conf.ValidateAndDefaults())
}

func TestConfigInvalidTimeZone(t *testing.T) {
	conf, err := LoadConfigFile(writeConf(t, "conf.json", jsonConf))
	require.NoError(t, err)
	conf.TimeZone = "Nowhere/Atlantis"
	assert.Error(t, conf.ValidateAndDefaults())
}

func TestLoadMissingConfig(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

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

package recsrc

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func mysqlOpen(conf *DBConf) (*sql.DB, error) {
	mconf := mysql.NewConfig()
	mconf.Net = "tcp"
	mconf.Addr = conf.Host
	mconf.User = conf.User
	mconf.Passwd = conf.Password
	mconf.DBName = conf.Name
	mconf.ParseTime = true
	mconf.Loc = time.Local
	mconf.Params = map[string]string{"autocommit": "true"}
	db, err := sql.Open(DriverMySQL, mconf.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open sql database: %w", err)
	}
	db.SetMaxOpenConns(conf.PoolSize)
	return db, nil
}

// DBOpen opens a database connection pool according
// to the configured driver
func DBOpen(conf *Conf) (*sql.DB, error) {
	switch conf.Driver {
	case DriverMySQL:
		return mysqlOpen(conf.DB)
	case DriverPostgres, DriverSQLite:
		db, err := sql.Open(conf.Driver, conf.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sql database: %w", err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("unsupported record source driver `%s`", conf.Driver)
}

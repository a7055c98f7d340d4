package configlibsql

import (
	"database/sql"
	"fmt"
	"lotwatch/dev/env"
	"lotwatch/pkg/migrations"
	"net/url"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// Struct selects either a remote libsql database (`url`) or a local sqlite file.
type Struct struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (config Struct) OpenDB() (*sql.DB, error) {
	if config.Url == "" {
		if config.File == "" {
			return nil, fmt.Errorf("neither a database file nor url was specified")
		}
		dbpath, err := devenv.ResolvePath(config.File)
		if err != nil {
			return nil, err
		}
		return migrations.OpenDB(dbpath)
	}

	values := url.Values{}
	if config.AuthToken != "" {
		values.Add("authToken", config.AuthToken)
	}
	target := config.Url
	if len(values) > 0 {
		target += "?" + values.Encode()
	}
	return sql.Open("libsql", target)
}

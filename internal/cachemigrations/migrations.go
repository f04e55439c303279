// Package cachemigrations embeds the goose SQL migrations for the
// device-local SQLite offline cache.
package cachemigrations

import "embed"

//go:embed *.sql
var Migrations embed.FS

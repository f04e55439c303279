// Package migrations embeds the goose SQL migrations for the PostgreSQL
// sync stores (queue, sessions, conflicts).
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS

// Package migrations embeds the goose SQL migrations for the Record Store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS

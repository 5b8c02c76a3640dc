// Package migrations embeds the goose SQL migrations for the SSO schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS

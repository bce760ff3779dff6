// Package migrations embeds the schema and seed SQL applied at startup.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS

// Package migrations embeds the archive mirror schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

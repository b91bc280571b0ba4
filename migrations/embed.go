// Package migrations embeds the Postgres schema migrations applied by
// `truecare-server migrate up`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

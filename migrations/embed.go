// Package migrations embeds the SQL migrations for accounts, conversation
// surfaces, turns and quota counters.
package migrations

import "embed"

// FS holds the embedded SQL migration files.
//
//go:embed *.sql
var FS embed.FS

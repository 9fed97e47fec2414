// Package migrations embeds the SQL schema migrations of the foodwaste data
// store. Files are applied in lexical order by pkg/db.
package migrations

import "embed"

// Files holds every *.sql migration at the package root.
//
//go:embed *.sql
var Files embed.FS

// Package migrations embeds the store schema so the migrate command works
// from a bare binary.
package migrations

import "embed"

//go:embed postgres/*.sql
var FS embed.FS

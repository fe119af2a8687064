// Package migrations bundles the SQL schema of the knowledge service.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

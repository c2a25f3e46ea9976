// Package migrate carries the PostgreSQL schema. The same directory is read
// by pgtestdb in repository tests.
package migrate

import "embed"

//go:embed *.sql
var FS embed.FS

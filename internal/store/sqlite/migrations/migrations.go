/*
Package migrations
File: migrations.go
Description:
    Embeds the SQLite schema files.
*/

package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

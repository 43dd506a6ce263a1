// Package appfs embeds the files shipped within the binaries.
package appfs

import "embed"

//go:embed migrations/*.sql
var FS embed.FS

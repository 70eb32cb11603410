// Package web embeds the HTML templates and static frontend assets.
package web

import "embed"

// FS holds the embedded templates/ and static/ directories.
//
//go:embed templates static
var FS embed.FS

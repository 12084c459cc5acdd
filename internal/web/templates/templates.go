// Package templates embeds the overlay page.
package templates

import "embed"

//go:embed *.html
var FS embed.FS

// Package assets embeds the files the binaries ship with:
// SQL migrations, email templates and WhatsApp message templates.
package assets

import "embed"

//go:embed migrations/*.sql all:templates
var FS embed.FS

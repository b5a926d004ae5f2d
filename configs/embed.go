// Package configs embeds the configuration template written by
// `fieldrag config init`. Editing config.example.yaml changes the template
// on the next build.
package configs

import _ "embed"

// ConfigTemplate is the commented example configuration. `fieldrag config
// init` writes it to .fieldrag.yaml, or to ~/.config/fieldrag/config.yaml
// with --user.
//
//go:embed config.example.yaml
var ConfigTemplate string

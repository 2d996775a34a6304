// Package configs provides the embedded configuration template for
// chromadex.
//
// The template is embedded at build time so `chromadex init` can write
// it without any files shipped next to the binary. The generated
// .chromadex.yaml sits in the project root and is merged over the
// built-in defaults by internal/config.Load; environment variables
// override both.
package configs

import _ "embed"

// ProjectConfigTemplate is the annotated starting point written to
// .chromadex.yaml by `chromadex init`.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

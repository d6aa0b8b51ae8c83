// Package podmpd provides embedded assets for the podmpd controller.
//
// The root package exists solely to embed [podmpd.default.toml] via
// [DefaultConfigTOML]. The CLI writes it to the module directory on first
// run so users start from a documented file.
package podmpd

import _ "embed"

// DefaultConfigTOML holds the raw bytes of podmpd.default.toml, embedded at
// build time. Regenerate it with `go generate ./internal/config`.
//
//go:embed podmpd.default.toml
var DefaultConfigTOML []byte

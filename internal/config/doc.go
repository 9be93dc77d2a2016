// Package config defines the validated, format-agnostic workflow
// configuration tree. A format-specific Loader (see internal/hclconfig)
// produces this model; the graph builder and controller consume it and never
// touch raw configuration text.
package config

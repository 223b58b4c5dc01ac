// Package output renders run reports as text, JSON, or YAML and draws the
// live progress line on stderr.
package output

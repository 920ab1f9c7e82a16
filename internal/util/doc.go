// Package util holds helpers shared by the tool and agent packages: JSON
// schema derivation and argument validation for tools, and instruction
// template rendering. It is internal to avoid committing to a public API.
package util

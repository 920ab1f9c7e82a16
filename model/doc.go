// Package model defines the provider‑agnostic abstractions and concrete
// helpers for interacting with language models inside pipemesh.
//
// Core goals:
//   - Unify streaming + non‑streaming generation behind a single interface
//   - Normalize tool call representation on core.Message / core.ToolCall
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight scripting for tests (ScriptedModel, Func)
//
// Providers (OpenAI, Anthropic, OpenRouter) implement the Model interface in
// sub-packages so agents remain decoupled from vendor SDKs.
package model

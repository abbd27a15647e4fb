// Package state provides the file-backed stores: the chat transcript
// (JSONL, append-only), agent tasks, the workspace tree, preview state, and
// settings (JSON files with atomic writes). All stores are safe for
// concurrent use.
package state

// Package llm contains adapters for invoking large language models with
// tool-calling support. It abstracts away provider-specific wire formats and
// normalizes messages, tool schemas and tool calls for the agent runtime.
package llm

// Package agent runs news agents.
//
// It resolves the model and provider configuration of each agent, streams
// completions with the agent's toolsets attached, executes the tool calls the
// model asks for, and passes session state from one sub-agent to the next.
package agent

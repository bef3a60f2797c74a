// Package terminal implements the interactive command-line mode of the agent.
//
// Users type requests at a prompt and the agent answers in the terminal while
// it edits the pattern on the live surface. In prompt mode every tool call is
// confirmed first.
//
//	term := terminal.New(a)
//	err := term.Run(ctx, initialPrompt)
//
// Commands:
//
//   - /code prints the pattern last accepted in this session
//   - /quit and /exit end the session
//
// Verbosity controls tool output: none prints nothing, info prints tool names,
// all prints arguments and results as well.
package terminal

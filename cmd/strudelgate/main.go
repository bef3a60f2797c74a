// Command strudelgate runs the Strudel live coding gateway.
//
// Usage:
//
//	strudelgate [flags] <command> [args]
//
// Commands:
//
//	serve  - HTTP and websocket server for the live surface and widgets
//	mcp    - expose the gateway tools over MCP on stdio
//	chat   - interactive agent session in the terminal
//	check  - validate a pattern without committing it
//	acp    - serve the agent to an editor over the Agent Client Protocol
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

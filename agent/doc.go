// Package agent drives a conversation between a user, a language model and
// the live coding surface.
//
// The model changes the music only through tools. Each user turn runs
// ProcessUserInput: the model is called, requested tools are executed through
// the registry, and their results, including rejected patterns with their
// diagnostics, are sent back to the model until it replies without tool calls
// or the configured round limit is hit. The gateway never retries on its own;
// self-correction is the model's job.
//
// # Usage
//
//	a, err := agent.New(cfg, sess, registry, "default", agent.ModeAuto, client, agent.ToolVerbosityInfo)
//	if err != nil {
//	    // handle error
//	}
//	err = a.ProcessUserInput(ctx, "make it swing", agent.ProcessCallbacks{
//	    OnAssistantMessage: func(message string) { fmt.Println(message) },
//	})
//
// # Modes
//
//   - ModeAuto: tools are executed without confirmation
//   - ModePrompt: ShouldExecuteTool is asked before each call
//
// # Callbacks
//
// ProcessCallbacks lets each interaction mode render events its own way. The
// terminal subpackage prints them; the HTTP server streams the surface state
// instead and ignores them.
package agent

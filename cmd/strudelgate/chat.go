package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/m4xw311/strudelgate/agent"
	"github.com/m4xw311/strudelgate/agent/terminal"
	"github.com/m4xw311/strudelgate/errors"
	"github.com/m4xw311/strudelgate/llm"
	"github.com/m4xw311/strudelgate/session"
	"github.com/m4xw311/strudelgate/surface"
	"github.com/m4xw311/strudelgate/tools"
)

type chatFlags struct {
	mode          string
	session       string
	resume        string
	toolset       string
	toolVerbosity string
}

func newChatCmd(a *app) *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Start an interactive agent session",
		Long: `Start an agent session in the terminal. The agent writes patterns through
the updateRepl tool; rejected patterns are returned to it with the diagnostic.

Type /code to print the committed pattern and /quit to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd, f, strings.TrimSpace(strings.Join(args, " ")))
		},
	}
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "", "execution mode: 'auto' or 'prompt'")
	cmd.Flags().StringVarP(&f.session, "session", "s", "", "session name to create")
	cmd.Flags().StringVarP(&f.resume, "resume", "r", "", "resume a session by name")
	cmd.Flags().StringVarP(&f.toolset, "toolset", "t", "", "toolset to use (defaults to 'default')")
	cmd.Flags().StringVar(&f.toolVerbosity, "tool-verbosity", "", "tool verbosity: 'none', 'info' or 'all'")
	return cmd
}

func (a *app) runChat(cmd *cobra.Command, f chatFlags, prompt string) error {
	out := cmd.OutOrStdout()
	ag, svc, err := a.newAgent(cmd.Context(), &f)
	if err != nil {
		return err
	}
	defer svc.Close()

	fmt.Fprintf(out, "Session: %s\n", ag.Session.Name)
	fmt.Fprintln(out, "strudelgate is ready. Type your prompt.")
	return terminal.NewWithIO(ag, cmd.InOrStdin(), out).Run(cmd.Context(), prompt)
}

// newAgent opens the session, restores its committed pattern on a fresh
// surface and wires the agent to it. The caller closes the surface.
func (a *app) newAgent(ctx context.Context, f *chatFlags) (*agent.Agent, *surface.Service, error) {
	sess, err := openSession(f)
	if err != nil {
		return nil, nil, err
	}
	mode, err := parseMode(f.mode)
	if err != nil {
		return nil, nil, err
	}
	verbosity, err := parseVerbosity(f.toolVerbosity)
	if err != nil {
		return nil, nil, err
	}
	sess.Mode = f.mode
	sess.Toolset = f.toolset
	sess.ToolVerbosity = f.toolVerbosity
	if err := sess.Save(); err != nil {
		return nil, nil, errors.Wrapf(err, "error saving session '%s'", sess.Name)
	}

	client, err := llm.New(ctx, a.cfg.LLMClient, a.cfg.Model)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "error initializing %s client", a.cfg.LLMClient)
	}

	svc, err := a.newSurface()
	if err != nil {
		return nil, nil, err
	}
	svc.SetThreadID(sess.ThreadID)
	if sess.Code != "" {
		if err := svc.Init(ctx); err != nil {
			svc.Close()
			return nil, nil, err
		}
		if err := svc.SetCode(ctx, sess.Code, true); err != nil {
			a.logger.Warn("saved pattern no longer validates", "session", sess.Name, "error", err)
		}
	}

	registry := tools.NewToolRegistry(a.cfg, svc, tools.WithGatewayLogger(a.logger))
	ag, err := agent.New(a.cfg, sess, registry, f.toolset, mode, client, verbosity)
	if err != nil {
		svc.Close()
		return nil, nil, errors.Wrapf(err, "error initializing agent")
	}
	ag.Logger = a.logger
	return ag, svc, nil
}

// openSession resumes or creates the session and fills unset flags from it.
func openSession(f *chatFlags) (*session.Session, error) {
	var (
		sess *session.Session
		err  error
	)
	if f.resume != "" {
		sess, err = session.Load(f.resume)
		if err != nil {
			return nil, errors.Wrapf(err, "error resuming session '%s'", f.resume)
		}
		if f.mode == "" {
			f.mode = sess.Mode
		}
		if f.toolset == "" {
			f.toolset = sess.Toolset
		}
		if f.toolVerbosity == "" {
			f.toolVerbosity = sess.ToolVerbosity
		}
	} else {
		name := f.session
		if name == "" {
			name = defaultSessionName()
		}
		sess, err = session.New(name)
		if err != nil {
			return nil, errors.Wrapf(err, "error creating session '%s'", name)
		}
	}

	if f.mode == "" {
		f.mode = string(agent.ModePrompt)
	}
	if f.toolset == "" {
		f.toolset = "default"
	}
	if f.toolVerbosity == "" {
		f.toolVerbosity = string(agent.ToolVerbosityNone)
	}
	return sess, nil
}

func parseMode(s string) (agent.Mode, error) {
	switch agent.Mode(s) {
	case agent.ModeAuto, agent.ModePrompt:
		return agent.Mode(s), nil
	}
	return "", errors.New("invalid mode '%s', must be 'auto' or 'prompt'", s)
}

func parseVerbosity(s string) (agent.ToolVerbosity, error) {
	switch agent.ToolVerbosity(s) {
	case agent.ToolVerbosityNone, agent.ToolVerbosityInfo, agent.ToolVerbosityAll:
		return agent.ToolVerbosity(s), nil
	}
	return "", errors.New("invalid tool verbosity '%s', must be 'none', 'info' or 'all'", s)
}

func defaultSessionName() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "strudelgate"
	}
	return fmt.Sprintf("%s_%s", filepath.Base(wd), time.Now().Format("2006-01-02_15-04-05"))
}

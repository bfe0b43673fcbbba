// Command oj is the CLI client for the Odd Jobs daemon: every
// subcommand encodes one IPC request, sends it over the daemon's unix
// socket, and renders the response.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/opus-domini/sentinel/internal/config"
)

func main() {
	os.Exit(runCLI(os.Args[1:], os.Stdout, os.Stderr))
}

type commandContext struct {
	stdout io.Writer
	stderr io.Writer
	cfg    config.Config
}

func writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func writeln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}

const (
	cmdHelp       = "help"
	flagHelpShort = "-h"
	flagHelpLong  = "--help"
)

func runCLI(args []string, stdout, stderr io.Writer) int {
	ctx := commandContext{stdout: stdout, stderr: stderr, cfg: config.Load()}

	if len(args) == 0 {
		printRootHelp(stdout)
		return 0
	}

	switch args[0] {
	case "run":
		return runRunCommand(ctx, args[1:])
	case "agent-run":
		return runAgentRunCommand(ctx, args[1:])
	case "worker":
		return runWorkerCommand(ctx, args[1:])
	case "cron":
		return runCronCommand(ctx, args[1:])
	case "jobs":
		return runListJobsCommand(ctx, args[1:])
	case "job":
		return runGetJobCommand(ctx, args[1:])
	case "status":
		return runStatusCommand(ctx, args[1:])
	case "decisions":
		return runListDecisionsCommand(ctx, args[1:])
	case "decide":
		return runResolveDecisionCommand(ctx, args[1:])
	case "session":
		return runSessionCommand(ctx, args[1:])
	case "orphans":
		return runListOrphansCommand(ctx, args[1:])
	case "dismiss-orphan":
		return runDismissOrphanCommand(ctx, args[1:])
	case "shutdown":
		return runShutdownCommand(ctx, args[1:])
	case "job-logs":
		return runJobLogsCommand(ctx, args[1:])
	case "agent-logs":
		return runAgentLogsCommand(ctx, args[1:])
	case "agent-hook":
		return runAgentHookCommand(ctx, args[1:])
	case cmdHelp, flagHelpShort, flagHelpLong:
		printRootHelp(stdout)
		return 0
	default:
		writef(stderr, "unknown command: %s\n\n", args[0])
		printRootHelp(stderr)
		return 2
	}
}

func printRootHelp(w io.Writer) {
	writeln(w, "oj - client for the Odd Jobs daemon")
	writeln(w, "")
	writeln(w, "commands:")
	writeln(w, "  run <job> [key=value ...]          start a pipeline job")
	writeln(w, "  agent-run <agent> [key=value ...]   start a standalone agent")
	writeln(w, "  worker start|stop <name>            control a worker")
	writeln(w, "  cron start|stop <name>              control a cron")
	writeln(w, "  jobs                                list jobs")
	writeln(w, "  job <id>                            show one job")
	writeln(w, "  status                              daemon status overview")
	writeln(w, "  decisions                           list pending decisions")
	writeln(w, "  decide <id> <option>                resolve a decision")
	writeln(w, "  session send|kill|peek <agentId>     control a running agent")
	writeln(w, "  orphans                             list recovered orphan jobs")
	writeln(w, "  dismiss-orphan <jobId>              clear an orphan")
	writeln(w, "  job-logs <jobId> [lines]            tail a job's activity log")
	writeln(w, "  agent-logs <agentId> [lines]        tail an agent's activity log")
	writeln(w, "  agent-hook <kind> --agent <id>       report agent liveness (called from hooks)")
	writeln(w, "  shutdown                            stop the daemon")
}

// commonFlags are accepted by the RunCommand-based subcommands (run,
// agent-run, worker, cron) and by jobs, per spec.md §4.10's RunCommand
// envelope; the other subcommands take no flags.
type commonFlags struct {
	project string
}

func bindCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVar(&f.project, "project", "", "namespace to scope this command to")
}

func (c commandContext) dial() (*client, error) {
	return dial(c.cfg.SockPath, c.cfg.RunWait)
}

// parseNamedArgs splits "key=value" positional tokens from bare
// positional args, so both `oj run deploy env=prod` and `oj run deploy`
// work.
func parseNamedArgs(tokens []string) (args []string, named map[string]string) {
	named = map[string]string{}
	for _, t := range tokens {
		if k, v, ok := strings.Cut(t, "="); ok {
			named[k] = v
			continue
		}
		args = append(args, t)
	}
	return args, named
}

func runRunCommand(ctx commandContext, rawArgs []string) int {
	var cf commonFlags
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(ctx.stderr)
	bindCommonFlags(fs, &cf)
	if err := fs.Parse(rawArgs); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		writeln(ctx.stderr, "run requires a job name")
		return 2
	}
	args, named := parseNamedArgs(fs.Args())
	cwd, _ := os.Getwd()
	resp := ctx.sendRunCommand("run", cf.project, cwd, args, named)
	return ctx.render(resp)
}

func runAgentRunCommand(ctx commandContext, rawArgs []string) int {
	var cf commonFlags
	fs := flag.NewFlagSet("agent-run", flag.ContinueOnError)
	fs.SetOutput(ctx.stderr)
	bindCommonFlags(fs, &cf)
	if err := fs.Parse(rawArgs); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		writeln(ctx.stderr, "agent-run requires an agent name")
		return 2
	}
	args, named := parseNamedArgs(fs.Args())
	cwd, _ := os.Getwd()
	resp := ctx.sendRunCommand("agent-run", cf.project, cwd, args, named)
	return ctx.render(resp)
}

func runWorkerCommand(ctx commandContext, rawArgs []string) int {
	if len(rawArgs) < 2 {
		writeln(ctx.stderr, "usage: oj worker start|stop <name> [--project ns]")
		return 2
	}
	var cf commonFlags
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.SetOutput(ctx.stderr)
	bindCommonFlags(fs, &cf)
	verb := rawArgs[0]
	if err := fs.Parse(rawArgs[2:]); err != nil {
		return 2
	}
	name := rawArgs[1]
	var command string
	switch verb {
	case "start":
		command = "worker-start"
	case "stop":
		command = "worker-stop"
	default:
		writef(ctx.stderr, "unknown worker verb: %s\n", verb)
		return 2
	}
	cwd, _ := os.Getwd()
	resp := ctx.sendRunCommand(command, cf.project, cwd, []string{name}, nil)
	return ctx.render(resp)
}

func runCronCommand(ctx commandContext, rawArgs []string) int {
	if len(rawArgs) < 2 {
		writeln(ctx.stderr, "usage: oj cron start|stop <name> [--project ns]")
		return 2
	}
	var cf commonFlags
	fs := flag.NewFlagSet("cron", flag.ContinueOnError)
	fs.SetOutput(ctx.stderr)
	bindCommonFlags(fs, &cf)
	verb := rawArgs[0]
	if err := fs.Parse(rawArgs[2:]); err != nil {
		return 2
	}
	name := rawArgs[1]
	var command string
	switch verb {
	case "start":
		command = "cron-start"
	case "stop":
		command = "cron-stop"
	default:
		writef(ctx.stderr, "unknown cron verb: %s\n", verb)
		return 2
	}
	cwd, _ := os.Getwd()
	resp := ctx.sendRunCommand(command, cf.project, cwd, []string{name}, nil)
	return ctx.render(resp)
}

func (ctx commandContext) sendRunCommand(command, project, cwd string, args []string, named map[string]string) callResult {
	return ctx.call(wireRequest{
		Type:        "RunCommand",
		Command:     command,
		Namespace:   project,
		ProjectRoot: cwd,
		Args:        args,
		NamedArgs:   named,
	})
}

func runListJobsCommand(ctx commandContext, rawArgs []string) int {
	var cf commonFlags
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	fs.SetOutput(ctx.stderr)
	bindCommonFlags(fs, &cf)
	if err := fs.Parse(rawArgs); err != nil {
		return 2
	}
	resp := ctx.call(wireRequest{Type: "ListJobs", Namespace: cf.project})
	if !resp.ok {
		return ctx.render(resp)
	}
	var jobs []jobView
	if err := json.Unmarshal(resp.data, &jobs); err != nil {
		writef(ctx.stderr, "decode jobs: %v\n", err)
		return 1
	}
	printHeading(ctx.stdout, "jobs")
	for _, j := range jobs {
		printRows(ctx.stdout, []outputRow{
			{Key: "id", Value: j.ID},
			{Key: "name", Value: j.Name},
			{Key: "step", Value: j.CurrentStep},
			{Key: "status", Value: j.StepStatus},
			{Key: "updated", Value: relativeTime(j.UpdatedAtMS)},
		})
		writeln(ctx.stdout, "")
	}
	return 0
}

func runGetJobCommand(ctx commandContext, rawArgs []string) int {
	if len(rawArgs) == 0 {
		writeln(ctx.stderr, "usage: oj job <id>")
		return 2
	}
	resp := ctx.call(wireRequest{Type: "GetJob", JobID: rawArgs[0]})
	return ctx.render(resp)
}

func runStatusCommand(ctx commandContext, rawArgs []string) int {
	resp := ctx.call(wireRequest{Type: "StatusOverview"})
	return ctx.render(resp)
}

func runListDecisionsCommand(ctx commandContext, rawArgs []string) int {
	resp := ctx.call(wireRequest{Type: "ListDecisions"})
	return ctx.render(resp)
}

func runResolveDecisionCommand(ctx commandContext, rawArgs []string) int {
	if len(rawArgs) < 2 {
		writeln(ctx.stderr, "usage: oj decide <decisionId> <option>")
		return 2
	}
	n, err := parseOption(rawArgs[1])
	if err != nil {
		writef(ctx.stderr, "invalid option %q: %v\n", rawArgs[1], err)
		return 2
	}
	resp := ctx.call(wireRequest{Type: "ResolveDecision", DecisionID: rawArgs[0], Chosen: &n})
	return ctx.render(resp)
}

func parseOption(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func runSessionCommand(ctx commandContext, rawArgs []string) int {
	if len(rawArgs) < 2 {
		writeln(ctx.stderr, "usage: oj session send|kill|peek <agentId> [message]")
		return 2
	}
	verb, agentID := rawArgs[0], rawArgs[1]
	switch verb {
	case "send":
		input := strings.Join(rawArgs[2:], " ")
		resp := ctx.call(wireRequest{Type: "SessionSend", AgentID: agentID, Input: input})
		return ctx.render(resp)
	case "kill":
		resp := ctx.call(wireRequest{Type: "SessionKill", AgentID: agentID})
		return ctx.render(resp)
	case "peek":
		resp := ctx.call(wireRequest{Type: "SessionPeek", AgentID: agentID})
		return ctx.render(resp)
	default:
		writef(ctx.stderr, "unknown session verb: %s\n", verb)
		return 2
	}
}

func runListOrphansCommand(ctx commandContext, rawArgs []string) int {
	resp := ctx.call(wireRequest{Type: "ListOrphans"})
	return ctx.render(resp)
}

func runDismissOrphanCommand(ctx commandContext, rawArgs []string) int {
	if len(rawArgs) == 0 {
		writeln(ctx.stderr, "usage: oj dismiss-orphan <jobId>")
		return 2
	}
	resp := ctx.call(wireRequest{Type: "DismissOrphan", JobID: rawArgs[0]})
	return ctx.render(resp)
}

func runShutdownCommand(ctx commandContext, rawArgs []string) int {
	resp := ctx.call(wireRequest{Type: "Shutdown"})
	return ctx.render(resp)
}

func runJobLogsCommand(ctx commandContext, rawArgs []string) int {
	if len(rawArgs) == 0 {
		writeln(ctx.stderr, "usage: oj job-logs <jobId> [lines]")
		return 2
	}
	lines := parseLines(rawArgs, 1)
	resp := ctx.call(wireRequest{Type: "GetJobLogs", JobID: rawArgs[0], Lines: lines})
	return ctx.renderTimeline(resp)
}

func runAgentLogsCommand(ctx commandContext, rawArgs []string) int {
	if len(rawArgs) == 0 {
		writeln(ctx.stderr, "usage: oj agent-logs <agentId> [lines]")
		return 2
	}
	lines := parseLines(rawArgs, 1)
	resp := ctx.call(wireRequest{Type: "GetAgentLogs", AgentID: rawArgs[0], Lines: lines})
	return ctx.renderTimeline(resp)
}

// agentStateObservedPayload mirrors eventlog.AgentStateObserved's wire
// shape, built locally so the CLI stays free of a dependency on the
// daemon's internal packages (same convention as jobView/timelineEvent).
type agentStateObservedPayload struct {
	AgentID string `json:"agentId"`
	State   string `json:"state"`
}

const (
	agentHookStateRunning = "running"
	agentHookStateIdle    = "idle"
)

// runAgentHookCommand is what the generated .claude/settings.json hooks
// shell out to (internal/adapter's Workspace.Prepare): each invocation
// reports the supervised agent's liveness back to the daemon as an
// AgentStateObserved event over the generic Emit request, closing the
// loop a liveness timer's
// poll can't see on its own (spec.md §4.7).
func runAgentHookCommand(ctx commandContext, rawArgs []string) int {
	fs := flag.NewFlagSet("agent-hook", flag.ContinueOnError)
	fs.SetOutput(ctx.stderr)
	agentID := fs.String("agent", "", "agent id the hook fired for")
	if err := fs.Parse(rawArgs); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		writeln(ctx.stderr, "usage: oj agent-hook stop|notification|pre-tool-use|session-start --agent <id>")
		return 2
	}
	if *agentID == "" {
		writeln(ctx.stderr, "agent-hook requires --agent")
		return 2
	}

	// The hook's own JSON payload on stdin isn't needed to classify the
	// state transition; drain it so the calling process never blocks on
	// an unread pipe.
	_, _ = io.Copy(io.Discard, os.Stdin)

	state, ok := agentHookState(fs.Arg(0))
	if !ok {
		writef(ctx.stderr, "unknown hook kind: %s\n", fs.Arg(0))
		return 2
	}

	data, err := json.Marshal(agentStateObservedPayload{AgentID: *agentID, State: state})
	if err != nil {
		writef(ctx.stderr, "encode hook payload: %v\n", err)
		return 1
	}
	resp := ctx.call(wireRequest{
		Type:      "Emit",
		AgentID:   *agentID,
		EventKind: "AgentStateObserved",
		EventData: data,
	})
	return ctx.render(resp)
}

// agentHookState maps a hook's name to the liveness state it reports.
// Stop/Notification/PreToolUse all fire when the agent has paused
// waiting on its next input (a finished turn, a permission/idle
// notification, or a plan/question tool); SessionStart fires when a
// session comes up and is about to start working.
func agentHookState(kind string) (state string, ok bool) {
	switch kind {
	case "stop", "notification", "pre-tool-use":
		return agentHookStateIdle, true
	case "session-start":
		return agentHookStateRunning, true
	default:
		return "", false
	}
}

func parseLines(args []string, index int) int {
	if len(args) <= index {
		return 0
	}
	n, err := parseOption(args[index])
	if err != nil {
		return 0
	}
	return n
}

// timelineEvent mirrors internal/timeline.Event's wire shape.
type timelineEvent struct {
	ID        int64  `json:"id"`
	Source    string `json:"source"`
	EventType string `json:"eventType"`
	Severity  string `json:"severity"`
	Resource  string `json:"resource"`
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt"`
}

type timelineResult struct {
	Events  []timelineEvent `json:"events"`
	HasMore bool            `json:"hasMore"`
}

func (ctx commandContext) renderTimeline(res callResult) int {
	if !res.ok {
		printError(ctx.stderr, res.errMsg, res.suggestions)
		return 1
	}
	var result timelineResult
	if err := json.Unmarshal(res.data, &result); err != nil {
		writef(ctx.stderr, "decode logs: %v\n", err)
		return 1
	}
	for _, e := range result.Events {
		writef(ctx.stdout, "%s  %s%s\n", e.CreatedAt, colorizeValue(e.Severity)+"  ", e.Message)
	}
	if result.HasMore {
		printNotice(ctx.stdout, "(more events not shown)")
	}
	return 0
}

// callResult is the CLI-facing flattening of wireResponse, keeping the
// raw data payload around for commands that want to decode it further
// (ListJobs) while still supporting the generic render path.
type callResult struct {
	ok          bool
	errMsg      string
	suggestions []string
	data        json.RawMessage
}

func (ctx commandContext) call(req wireRequest) callResult {
	c, err := ctx.dial()
	if err != nil {
		return callResult{errMsg: err.Error()}
	}
	defer c.Close()

	resp, err := c.call(req)
	if err != nil {
		return callResult{errMsg: err.Error()}
	}
	return callResult{ok: resp.OK, errMsg: resp.Error, suggestions: resp.Suggestions, data: resp.Data}
}

// render prints a callResult generically: pretty-print the JSON data on
// success, or the error plus suggestions on failure. Individual
// subcommands that want richer formatting (ListJobs) decode data
// themselves and never call render with it.
func (ctx commandContext) render(res callResult) int {
	if !res.ok {
		printError(ctx.stderr, res.errMsg, res.suggestions)
		return 1
	}
	if len(res.data) == 0 || string(res.data) == "null" {
		printNotice(ctx.stdout, "ok")
		return 0
	}
	pretty, err := indentJSON(res.data)
	if err != nil {
		writef(ctx.stdout, "%s\n", res.data)
		return 0
	}
	writef(ctx.stdout, "%s\n", pretty)
	return 0
}

func indentJSON(data json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// jobView mirrors the wire shape internal/listener returns for
// ListJobs/GetJob, decoded locally so the CLI has no dependency on the
// daemon's internal packages.
type jobView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CurrentStep string `json:"currentStep"`
	StepStatus  string `json:"stepStatus"`
	UpdatedAtMS int64  `json:"updatedAtMs"`
}

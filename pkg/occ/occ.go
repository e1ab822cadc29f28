package occ

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Param is a --name value pair. When FromEnv is set, the value is passed
// through the environment and referenced as "$VAR" on the command line, so
// the secret never appears in the process table. Commands with FromEnv
// params run through a shell to expand the reference.
type Param struct {
	Name    string
	Value   string
	FromEnv string
}

// Command describes one occ sub-command invocation.
type Command struct {
	Name        string
	Args        []string
	Params      []Param
	Flags       []string
	JSON        bool // append --output json and parse stdout
	ExpectError bool // a non-zero exit is an expected answer, not a failure
	Stdin       string
	Quiet       bool // do not log stdout (it may carry sensitive values)
}

// Output is a finished occ invocation, with Parsed set for JSON commands.
type Output struct {
	Stdout string
	Stderr string
	Code   int
	Parsed any
}

// CommandError reports a control-script invocation that returned non-success.
type CommandError struct {
	Command string
	Stdout  string
	Stderr  string
	Code    int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("occ %s exited %d\nstderr: %s\nstdout: %s", e.Command, e.Code, e.Stderr, e.Stdout)
}

// Client invokes occ and php against one installation root.
type Client struct {
	runner    Runner
	webroot   string
	webuser   string
	ensureAPC bool
	log       *slog.Logger
}

// New creates a client for the installation at webroot, running commands
// as webuser.
func New(runner Runner, webroot, webuser string, ensureAPC bool, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{runner: runner, webroot: webroot, webuser: webuser, ensureAPC: ensureAPC, log: log}
}

// Webroot returns the installation root this client operates on.
func (c *Client) Webroot() string { return c.webroot }

// ScriptPath returns the expected location of the control script.
func (c *Client) ScriptPath() string { return filepath.Join(c.webroot, "occ") }

// ScriptPresent reports whether the control script exists at the
// installation root as an executable regular file. Pure filesystem read;
// never touches the application.
func (c *Client) ScriptPresent() (bool, error) {
	info, err := os.Stat(c.ScriptPath())
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", c.ScriptPath(), err)
	}
	return info.Mode().IsRegular() && info.Mode()&0o111 != 0, nil
}

// Occ runs one occ sub-command. A missing control script is an invocation
// error naming the webroot, since it usually means the package was never
// extracted there.
func (c *Client) Occ(ctx context.Context, cmd Command) (Output, error) {
	present, err := c.ScriptPresent()
	if err != nil {
		return Output{}, err
	}
	if !present {
		return Output{}, fmt.Errorf("'%s' does not exist. Is Nextcloud installed in '%s'?", c.ScriptPath(), c.webroot)
	}

	argv := []string{"php"}
	if c.ensureAPC {
		argv = append(argv, "--define", "apc.enable_cli=1")
	}
	argv = append(argv, "./occ", cmd.Name)

	flags := cmd.Flags
	if cmd.JSON {
		argv = append(argv, "--output", "json")
	}
	flags = append(flags, "no-interaction")
	for _, f := range flags {
		if f == "" {
			continue
		}
		if f[0] != '-' {
			f = "--" + f
		}
		argv = append(argv, f)
	}

	env := make(map[string]string)
	shell := false
	for _, p := range cmd.Params {
		if p.FromEnv != "" {
			// Shell-expanded so the value stays out of argv.
			argv = append(argv, "--"+p.Name, `"$`+p.FromEnv+`"`)
			env[p.FromEnv] = p.Value
			shell = true
			continue
		}
		argv = append(argv, "--"+p.Name, p.Value)
	}

	if len(cmd.Args) > 0 {
		argv = append(argv, "--")
		argv = append(argv, cmd.Args...)
	}

	res, err := c.runner.Run(ctx, Invocation{
		Dir:   c.webroot,
		User:  c.webuser,
		Env:   env,
		Stdin: cmd.Stdin,
		Argv:  argv,
		Shell: shell,
	})
	if err != nil {
		return Output{}, fmt.Errorf("occ %s: %w", cmd.Name, err)
	}

	if !cmd.Quiet {
		c.log.Debug("occ finished", "command", cmd.Name, "code", res.Code)
	}

	out := Output{Stdout: res.Stdout, Stderr: res.Stderr, Code: res.Code}

	if res.Code != 0 {
		if cmd.ExpectError {
			return out, nil
		}
		return out, &CommandError{Command: cmd.Name, Stdout: res.Stdout, Stderr: res.Stderr, Code: res.Code}
	}

	if cmd.JSON {
		if err := json.Unmarshal([]byte(res.Stdout), &out.Parsed); err != nil {
			return out, fmt.Errorf("occ %s: parse json output: %w\noutput was:\n%s", cmd.Name, err, res.Stdout)
		}
	}
	return out, nil
}

// Package occ drives the application's command line control script
// (php ./occ) and small php -r snippets as subprocesses, running them as
// the web user that owns the installation.
package occ

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"os/user"
	"sort"
	"strings"
)

// Invocation is a fully resolved subprocess call.
type Invocation struct {
	Dir   string
	User  string            // run as this account; empty means current user
	Env   map[string]string // extra environment, used for secrets
	Stdin string
	Argv  []string // argv[0] is the program
	Shell bool     // run through "sh -c" so $VAR references expand
}

// Result captures a finished subprocess.
type Result struct {
	Stdout string
	Stderr string
	Code   int
}

// Runner executes invocations. Production code uses ExecRunner; tests
// substitute a fake that scripts stdout/stderr/exit codes.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// ExecRunner runs invocations with os/exec. When the target user differs
// from the current one it goes through sudo, preserving only the secret
// environment keys so their values never appear in argv.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	argv := inv.Argv
	if inv.Shell {
		argv = []string{"sh", "-c", shellJoin(inv.Argv)}
	}

	if inv.User != "" && !isCurrentUser(inv.User) {
		prefix := []string{"sudo", "-n", "-u", inv.User}
		if len(inv.Env) > 0 {
			prefix = append(prefix, "--preserve-env="+strings.Join(envKeys(inv.Env), ","))
		}
		argv = append(append(prefix, "--"), argv...)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = inv.Dir
	if len(inv.Env) > 0 {
		cmd.Env = cmd.Environ()
		for k, v := range inv.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	if inv.Stdin != "" {
		cmd.Stdin = strings.NewReader(inv.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case asExitError(err, &exitErr):
		res.Code = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("exec %s: %w", argv[0], err)
	}
	return res, nil
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

func isCurrentUser(name string) bool {
	cur, err := user.Current()
	if err != nil {
		return false
	}
	return cur.Username == name
}

func envKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// shellJoin quotes argv for "sh -c", leaving $VAR references intact so the
// shell expands secrets from the environment instead of the command line.
func shellJoin(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = shellQuote(a)
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if strings.HasPrefix(s, "\"$") && strings.HasSuffix(s, "\"") {
		return s // pre-quoted environment reference
	}
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'\\$`!*?[](){}<>|&;~#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

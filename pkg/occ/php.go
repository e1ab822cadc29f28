package occ

import (
	"context"
	"encoding/json"
	"fmt"
)

// PHP runs a php -r snippet in the webroot as the web user and decodes its
// JSON output. Used where the control script itself cannot be trusted to
// work, e.g. reading version.php or repairing a broken configuration.
func (c *Client) PHP(ctx context.Context, script string) (any, error) {
	out, err := c.PHPRaw(ctx, script)
	if err != nil {
		return nil, err
	}
	var parsed any
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return nil, fmt.Errorf("php: decode output: %w\noutput was:\n%s", err, out)
	}
	return parsed, nil
}

// PHPFile runs a php script relative to the webroot as the web user.
// Non-zero exits surface as CommandError with the script's output attached.
func (c *Client) PHPFile(ctx context.Context, script string, args ...string) (string, error) {
	argv := []string{"php"}
	if c.ensureAPC {
		argv = append(argv, "--define", "apc.enable_cli=1")
	}
	argv = append(argv, script)
	argv = append(argv, args...)

	res, err := c.runner.Run(ctx, Invocation{Dir: c.webroot, User: c.webuser, Argv: argv})
	if err != nil {
		return "", fmt.Errorf("php %s: %w", script, err)
	}
	if res.Code != 0 {
		return "", &CommandError{Command: "php " + script, Stdout: res.Stdout, Stderr: res.Stderr, Code: res.Code}
	}
	return res.Stdout, nil
}

// PHPRaw runs a php -r snippet and returns its stdout verbatim.
func (c *Client) PHPRaw(ctx context.Context, script string) (string, error) {
	argv := []string{"php"}
	if c.ensureAPC {
		argv = append(argv, "--define", "apc.enable_cli=1")
	}
	argv = append(argv, "-r", script)

	res, err := c.runner.Run(ctx, Invocation{Dir: c.webroot, User: c.webuser, Argv: argv})
	if err != nil {
		return "", fmt.Errorf("php: %w", err)
	}
	if res.Code != 0 {
		return "", &CommandError{Command: "php -r", Stdout: res.Stdout, Stderr: res.Stderr, Code: res.Code}
	}
	return res.Stdout, nil
}

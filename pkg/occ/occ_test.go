package occ

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	invocations []Invocation
	result      Result
	err         error
}

func (f *fakeRunner) Run(_ context.Context, inv Invocation) (Result, error) {
	f.invocations = append(f.invocations, inv)
	return f.result, f.err
}

func (f *fakeRunner) last(t *testing.T) Invocation {
	t.Helper()
	require.NotEmpty(t, f.invocations)
	return f.invocations[len(f.invocations)-1]
}

// webrootWithScript creates a temp webroot containing the control script.
func webrootWithScript(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "occ"), []byte("#!/usr/bin/env php\n"), 0o755))
	return dir
}

func TestOccMissingScript(t *testing.T) {
	fake := &fakeRunner{}
	cli := New(fake, t.TempDir(), "www-data", true, nil)

	_, err := cli.Occ(context.Background(), Command{Name: "status"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
	assert.Contains(t, err.Error(), "Is Nextcloud installed")
	assert.Empty(t, fake.invocations, "nothing must be executed without the control script")
}

func TestScriptPresentRequiresExecutable(t *testing.T) {
	dir := t.TempDir()
	cli := New(&fakeRunner{}, dir, "www-data", false, nil)

	present, err := cli.ScriptPresent()
	require.NoError(t, err)
	assert.False(t, present)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "occ"), []byte("#!/usr/bin/env php\n"), 0o644))
	present, err = cli.ScriptPresent()
	require.NoError(t, err)
	assert.False(t, present, "a non-executable script is not a usable install marker")

	require.NoError(t, os.Chmod(filepath.Join(dir, "occ"), 0o755))
	present, err = cli.ScriptPresent()
	require.NoError(t, err)
	assert.True(t, present)
}

func TestOccSkipsEmptyFlags(t *testing.T) {
	fake := &fakeRunner{}
	cli := New(fake, webrootWithScript(t), "www-data", false, nil)

	_, err := cli.Occ(context.Background(), Command{
		Name:  "config:list",
		Flags: []string{"", "private"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"php", "./occ", "config:list", "--private", "--no-interaction",
	}, fake.last(t).Argv)
}

func TestOccArgvConstruction(t *testing.T) {
	fake := &fakeRunner{result: Result{Stdout: `{"installed":true}`}}
	webroot := webrootWithScript(t)
	cli := New(fake, webroot, "www-data", true, nil)

	out, err := cli.Occ(context.Background(), Command{Name: "status", JSON: true})
	require.NoError(t, err)

	inv := fake.last(t)
	assert.Equal(t, []string{
		"php", "--define", "apc.enable_cli=1",
		"./occ", "status", "--output", "json", "--no-interaction",
	}, inv.Argv)
	assert.Equal(t, webroot, inv.Dir)
	assert.Equal(t, "www-data", inv.User)
	assert.False(t, inv.Shell)

	parsed, ok := out.Parsed.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, parsed["installed"])
}

func TestOccWithoutAPC(t *testing.T) {
	fake := &fakeRunner{}
	cli := New(fake, webrootWithScript(t), "www-data", false, nil)

	_, err := cli.Occ(context.Background(), Command{Name: "check"})
	require.NoError(t, err)
	assert.Equal(t, []string{"php", "./occ", "check", "--no-interaction"}, fake.last(t).Argv)
}

func TestOccSecretParamStaysOffArgv(t *testing.T) {
	fake := &fakeRunner{}
	cli := New(fake, webrootWithScript(t), "www-data", false, nil)

	_, err := cli.Occ(context.Background(), Command{
		Name: "maintenance:install",
		Params: []Param{
			{Name: "admin-user", Value: "admin"},
			{Name: "admin-pass", Value: "s3cret", FromEnv: "NC_ADMIN_PASS"},
		},
		Quiet: true,
	})
	require.NoError(t, err)

	inv := fake.last(t)
	assert.True(t, inv.Shell, "environment references need a shell to expand")
	assert.Equal(t, "s3cret", inv.Env["NC_ADMIN_PASS"])
	assert.Contains(t, inv.Argv, `"$NC_ADMIN_PASS"`)
	assert.NotContains(t, inv.Argv, "s3cret")
	assert.Contains(t, inv.Argv, "--admin-user")
	assert.Contains(t, inv.Argv, "admin")
}

func TestOccPositionalArgsAfterSeparator(t *testing.T) {
	fake := &fakeRunner{}
	cli := New(fake, webrootWithScript(t), "www-data", false, nil)

	_, err := cli.Occ(context.Background(), Command{
		Name: "config:system:get",
		Args: []string{"redis", "host"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"php", "./occ", "config:system:get", "--no-interaction", "--", "redis", "host",
	}, fake.last(t).Argv)
}

func TestOccExpectedErrorPassesThrough(t *testing.T) {
	fake := &fakeRunner{result: Result{Stdout: "some problems found", Code: 2}}
	cli := New(fake, webrootWithScript(t), "www-data", false, nil)

	out, err := cli.Occ(context.Background(), Command{Name: "check", ExpectError: true})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Code)
	assert.Equal(t, "some problems found", out.Stdout)
}

func TestOccUnexpectedErrorIsCommandError(t *testing.T) {
	fake := &fakeRunner{result: Result{Stderr: "boom", Code: 1}}
	cli := New(fake, webrootWithScript(t), "www-data", false, nil)

	_, err := cli.Occ(context.Background(), Command{Name: "upgrade"})
	require.Error(t, err)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.Code)
	assert.Contains(t, cmdErr.Error(), "boom")
}

func TestPHPRawArgv(t *testing.T) {
	fake := &fakeRunner{result: Result{Stdout: `"27.1.2.3"`}}
	cli := New(fake, webrootWithScript(t), "www-data", true, nil)

	out, err := cli.PHPRaw(context.Background(), `echo json_encode("x");`)
	require.NoError(t, err)
	assert.Equal(t, `"27.1.2.3"`, out)
	assert.Equal(t, []string{
		"php", "--define", "apc.enable_cli=1", "-r", `echo json_encode("x");`,
	}, fake.last(t).Argv)
}

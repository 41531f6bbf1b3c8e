package inputresolve

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLiteral(t *testing.T) {
	r := &Resolver{}
	data, err := r.Resolve("my-secret")
	require.NoError(t, err)
	assert.Equal(t, []byte("my-secret"), data)
}

func TestResolveStdin(t *testing.T) {
	r := &Resolver{Stdin: strings.NewReader("from-stdin\n")}
	data, err := r.Resolve("-")
	require.NoError(t, err)
	assert.Equal(t, []byte("from-stdin"), data)
}

func TestResolveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(path, []byte("file-secret\n"), 0o600))

	r := &Resolver{}
	data, err := r.Resolve("@" + path)
	require.NoError(t, err)
	assert.Equal(t, []byte("file-secret"), data)
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("WORKBENCH_TEST_SECRET", "env-secret")
	r := &Resolver{}
	data, err := r.Resolve("env:WORKBENCH_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, []byte("env-secret"), data)
}

func TestResolveEnvMissing(t *testing.T) {
	r := &Resolver{}
	_, err := r.Resolve("env:WORKBENCH_DOES_NOT_EXIST")
	assert.Error(t, err)
}

func TestResolveBase64(t *testing.T) {
	r := &Resolver{}
	data, err := r.Resolve("b64:aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestResolvePromptUsesInjectedFunc(t *testing.T) {
	// Prompt is only reachable through Resolve when isInteractive() is
	// true, which is environment-dependent; exercise the trimming and
	// dispatch logic directly against the injected function instead.
	r := &Resolver{Prompt: func(label string) ([]byte, error) {
		assert.Equal(t, "passphrase", label)
		return []byte("typed-secret\n"), nil
	}}
	data, err := r.Prompt("passphrase")
	require.NoError(t, err)
	assert.Equal(t, []byte("typed-secret\n"), data)
	assert.Equal(t, []byte("typed-secret"), trimTrailingNewline(data))
}

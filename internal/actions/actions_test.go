package actions

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pluginSource = `package main

import (
	"errors"
	"strings"
)

func Actions() map[string]func(map[string]any) (any, error) {
	return map[string]func(map[string]any) (any, error){
		"shout": func(with map[string]any) (any, error) {
			msg, _ := with["message"].(string)
			return strings.ToUpper(msg), nil
		},
		"refuse": func(with map[string]any) (any, error) {
			return nil, errors.New("refused")
		},
	}
}
`

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("Greet", func(context.Context, Request) (any, error) { return "hi", nil }))
	assert.Error(t, r.Register("greet", func(context.Context, Request) (any, error) { return nil, nil }))
	assert.Error(t, r.Register("", func(context.Context, Request) (any, error) { return nil, nil }))
	assert.Error(t, r.Register("nil-handler", nil))

	h, err := r.Resolve(" GREET ")
	require.NoError(t, err)
	out, err := h(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	_, err = r.Resolve("missing")
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Equal(t, []string{"greet"}, r.Names())
}

func TestBuiltins(t *testing.T) {
	r := Builtins()
	assert.Equal(t, []string{"echo", "fail", "noop", "sleep"}, r.Names())
	ctx := context.Background()

	echo, err := r.Resolve("echo")
	require.NoError(t, err)
	out, err := echo(ctx, Request{StepID: "s1", With: map[string]any{"message": "hello"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	out, err = echo(ctx, Request{StepID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "s1", out)

	fail, err := r.Resolve("fail")
	require.NoError(t, err)
	_, err = fail(ctx, Request{StepID: "s2", With: map[string]any{"message": "nope"}})
	assert.EqualError(t, err, "nope")

	sleep, err := r.Resolve("sleep")
	require.NoError(t, err)
	out, err = sleep(ctx, Request{With: map[string]any{"duration": "5ms"}})
	require.NoError(t, err)
	assert.Equal(t, "5ms", out)
	_, err = sleep(ctx, Request{With: map[string]any{"duration": true}})
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = sleep(cancelled, Request{With: map[string]any{"duration": int(time.Minute / time.Millisecond)}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadPluginDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shout.go"), []byte(pluginSource), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	plugins, err := LoadPluginDir(dir)
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, "refuse", plugins[0].Name)
	assert.Equal(t, "shout", plugins[1].Name)

	r := Builtins()
	require.NoError(t, r.Install(plugins))
	shout, err := r.Resolve("shout")
	require.NoError(t, err)
	out, err := shout(context.Background(), Request{Action: "shout", With: map[string]any{"message": "persona ready"}})
	require.NoError(t, err)
	assert.Equal(t, "PERSONA READY", out)

	refuse, err := r.Resolve("refuse")
	require.NoError(t, err)
	_, err = refuse(context.Background(), Request{Action: "refuse"})
	assert.EqualError(t, err, "refused")

	assert.Error(t, r.Install(plugins), "installing twice collides")
}

func TestLoadPluginDirMissingFunc(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.go"), []byte("package main\n"), 0o644))
	_, err := LoadPluginDir(dir)
	assert.Error(t, err)
}

func TestLoadPluginDirMissingDir(t *testing.T) {
	plugins, err := LoadPluginDir(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, plugins)
}

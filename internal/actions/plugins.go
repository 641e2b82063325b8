package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

const pluginFuncName = "Actions"

// PluginFunc is the shape every plugin action must have.
type PluginFunc = func(map[string]any) (any, error)

// Plugin is one action loaded from a Go source file.
type Plugin struct {
	Name    string
	Path    string
	Handler Handler
}

// LoadPluginDir interprets every .go file in dir and collects the actions
// returned by its Actions() function. A missing directory yields no plugins.
func LoadPluginDir(dir string) ([]Plugin, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("actions: read %s: %w", trimmed, err)
	}
	var plugins []Plugin
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".go" {
			continue
		}
		loaded, err := loadPluginFile(filepath.Join(trimmed, entry.Name()))
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, loaded...)
	}
	sort.Slice(plugins, func(i, j int) bool {
		if plugins[i].Path != plugins[j].Path {
			return plugins[i].Path < plugins[j].Path
		}
		return plugins[i].Name < plugins[j].Name
	})
	return plugins, nil
}

// Install registers every plugin action.
func (r *Registry) Install(plugins []Plugin) error {
	for _, p := range plugins {
		if err := r.Register(p.Name, p.Handler); err != nil {
			return fmt.Errorf("actions: plugin %s: %w", p.Path, err)
		}
	}
	return nil
}

func loadPluginFile(path string) ([]Plugin, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("actions: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("actions: %s is empty", path)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("actions: load stdlib symbols: %w", err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("actions: interpret %s: %w", path, err)
	}
	fnValue, err := i.Eval(pluginFuncName)
	if err != nil {
		return nil, fmt.Errorf("actions: %s must define %s() map[string]func(map[string]any) (any, error): %w", path, pluginFuncName, err)
	}
	funcs, err := invokePluginFunc(fnValue)
	if err != nil {
		return nil, fmt.Errorf("actions: %s: %w", path, err)
	}
	plugins := make([]Plugin, 0, len(funcs))
	for name, fn := range funcs {
		plugins = append(plugins, Plugin{Name: name, Path: path, Handler: pluginHandler(fn)})
	}
	return plugins, nil
}

func invokePluginFunc(value reflect.Value) (map[string]reflect.Value, error) {
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", pluginFuncName)
	}
	results := value.Call(nil)
	if len(results) != 1 || results[0].Kind() != reflect.Map {
		return nil, fmt.Errorf("%s must return map[string]func(map[string]any) (any, error)", pluginFuncName)
	}
	out := map[string]reflect.Value{}
	iter := results[0].MapRange()
	for iter.Next() {
		key, ok := iter.Key().Interface().(string)
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%s keys must be non-empty strings", pluginFuncName)
		}
		fn := iter.Value()
		if fn.Kind() == reflect.Interface {
			fn = fn.Elem()
		}
		if fn.Kind() != reflect.Func || fn.IsNil() {
			return nil, fmt.Errorf("%s[%q] is not a function", pluginFuncName, key)
		}
		out[key] = fn
	}
	return out, nil
}

func pluginHandler(fn reflect.Value) Handler {
	if typed, ok := fn.Interface().(PluginFunc); ok {
		return func(_ context.Context, req Request) (any, error) {
			return typed(req.With)
		}
	}
	return func(_ context.Context, req Request) (any, error) {
		results := fn.Call([]reflect.Value{reflect.ValueOf(req.With)})
		if len(results) != 2 {
			return nil, fmt.Errorf("actions: plugin %s must return (any, error)", req.Action)
		}
		var value any
		if results[0].IsValid() && results[0].CanInterface() {
			value = results[0].Interface()
		}
		if errVal := results[1]; errVal.IsValid() && !errVal.IsNil() {
			if e, ok := errVal.Interface().(error); ok {
				return value, e
			}
			return value, fmt.Errorf("actions: plugin %s returned non-error second value", req.Action)
		}
		return value, nil
	}
}

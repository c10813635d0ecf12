// Package prompt loads named templates, substitutes variables, conditionals
// and loops, and caches compiled templates. Only a fixed whitelist of
// template names may be requested; an unlisted name is rejected outright.
package prompt

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrUnknownTemplate is returned when a name outside the whitelist is
// requested. This indicates a programming error in the caller, never a
// condition to fall back from at runtime.
var ErrUnknownTemplate = errors.New("template name not whitelisted")

// Options configure an Engine.
type Options struct {
	// AllowedNames overrides the default whitelist.
	AllowedNames []string
	// CacheSize bounds the compiled-template LRU cache. Defaults to 64.
	CacheSize int
}

// Engine renders whitelisted named templates resolved through a Store.
// Compiled templates are cached in an LRU so repeated renders skip parsing.
type Engine struct {
	store    Store
	allowed  map[string]struct{}
	compiled *lru.Cache[string, *Template]
}

// NewEngine constructs an Engine over the given store. A nil store falls
// back to the built-in defaults.
func NewEngine(store Store, optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		AllowedNames: AllowedNames(),
		CacheSize:    64,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if store == nil {
		store = DefaultStore()
	}

	compiled, err := lru.New[string, *Template](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating template cache: %w", err)
	}

	allowed := make(map[string]struct{}, len(opts.AllowedNames))
	for _, name := range opts.AllowedNames {
		allowed[name] = struct{}{}
	}

	return &Engine{store: store, allowed: allowed, compiled: compiled}, nil
}

// Render loads (or reuses) the named template and substitutes vars.
func (e *Engine) Render(name string, vars map[string]any) (string, error) {
	tmpl, err := e.template(name)
	if err != nil {
		return "", err
	}
	return tmpl.Render(vars), nil
}

func (e *Engine) template(name string) (*Template, error) {
	if _, ok := e.allowed[name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}

	if tmpl, ok := e.compiled.Get(name); ok {
		return tmpl, nil
	}

	src, err := e.store.Load(name)
	if err != nil {
		return nil, fmt.Errorf("loading template %q: %w", name, err)
	}
	tmpl, err := Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compiling template %q: %w", name, err)
	}

	e.compiled.Add(name, tmpl)

	return tmpl, nil
}

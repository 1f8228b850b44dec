// Package rules runs user classification rules written in Starlark.
//
// Every *.star file in the rules directory is executed once at load time.
// A file may define classify(column); it is called for every column of every
// collected asset and may return:
//
//	None                              no opinion
//	"confidential"                    a classification
//	["finance", "kpi"]                tags
//	{"classification": "restricted",  any subset of these keys
//	 "pii": True,
//	 "tags": ["gdpr"],
//	 "terms": ["Customer"]}
//
// The column argument is a struct with fields name, type, asset, asset_type,
// pii and samples. The builtin matches(pattern, s) reports whether the Go
// regular expression pattern matches s.
package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.starlark.net/starlark"
)

// Rule is one loaded rules file.
type Rule struct {
	// Name is derived from the filename (e.g. "pii" from "pii.star")
	Name string
	// Path is the path to the .star file
	Path string

	classify starlark.Callable
}

// LoadError represents an error loading or running a rules file.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("rules/%s: %s", filepath.Base(e.File), e.Message)
}

// Load executes every *.star file in dir, in filename order.
// A missing directory yields an empty engine.
func Load(dir string) (*Engine, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &Engine{}, nil
		}
		return nil, fmt.Errorf("failed to access rules directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("rules path is not a directory: %s", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.star"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan rules directory: %w", err)
	}
	sort.Strings(files)

	engine := &Engine{}
	for _, file := range files {
		src, err := os.ReadFile(file) //nolint:gosec // G304: path comes from a glob within the rules directory
		if err != nil {
			return nil, &LoadError{File: file, Message: fmt.Sprintf("failed to read file: %v", err)}
		}
		rule, err := compile(file, src)
		if err != nil {
			return nil, err
		}
		if rule != nil {
			engine.rules = append(engine.rules, rule)
		}
	}
	return engine, nil
}

// Compile builds an engine from in-memory sources keyed by filename.
func Compile(sources map[string]string) (*Engine, error) {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	engine := &Engine{}
	for _, name := range names {
		rule, err := compile(name, []byte(sources[name]))
		if err != nil {
			return nil, err
		}
		if rule != nil {
			engine.rules = append(engine.rules, rule)
		}
	}
	return engine, nil
}

// compile executes a rules file and returns nil when it defines no classify.
func compile(path string, src []byte) (*Rule, error) {
	name := strings.TrimSuffix(filepath.Base(path), ".star")
	thread := &starlark.Thread{
		Name:  "load:" + name,
		Print: func(_ *starlark.Thread, _ string) {},
	}

	globals, err := starlark.ExecFile(thread, path, src, predeclared) //nolint:staticcheck // SA1019: ExecFileOptions migration pending
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("Starlark execution error: %v", err)}
	}

	fn, ok := globals["classify"]
	if !ok {
		return nil, nil
	}
	callable, ok := fn.(starlark.Callable)
	if !ok {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("classify must be a function, got %s", fn.Type())}
	}
	return &Rule{Name: name, Path: path, classify: callable}, nil
}

var (
	patternCache sync.Map // pattern -> *regexp.Regexp

	predeclared = starlark.StringDict{
		"matches": starlark.NewBuiltin("matches", matches),
	}
)

// matches(pattern, s) reports whether the regular expression matches s.
func matches(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pattern, s string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &pattern, &s); err != nil {
		return nil, err
	}

	re, ok := patternCache.Load(pattern)
	if !ok {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		re, _ = patternCache.LoadOrStore(pattern, compiled)
	}
	return starlark.Bool(re.(*regexp.Regexp).MatchString(s)), nil
}

// Package interceptor builds the page-side script that wraps fetch and
// XMLHttpRequest and reports every outbound call through a CDP binding.
package interceptor

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/tidwall/sjson"
)

//go:embed interceptor.js
var source string

// Marker is the property set on every wrapped primitive. A primitive that
// already carries it is left alone on re-injection.
const Marker = "__netrelayWrapped"

// Primitive install states reported by the script.
const (
	StateWrapped = "wrapped"
	StatePresent = "present"
	StateAbsent  = "absent"
)

var ErrEmptyBinding = errors.New("interceptor: binding name is empty")

// Options configures the generated script.
type Options struct {
	// Binding is the page function the script calls with each serialized event.
	Binding string
	// Skip lists URL substrings that are never reported.
	Skip []string
}

// Script is a ready to evaluate interceptor.
type Script struct {
	Source  string
	Binding string
}

// Status is the value the script evaluates to.
type Status struct {
	Fetch string `json:"fetch"`
	XHR   string `json:"xhr"`
}

// Build renders the interceptor for opts and compile-checks the result.
func Build(opts Options) (*Script, error) {
	if opts.Binding == "" {
		return nil, ErrEmptyBinding
	}
	cfg, err := sjson.Set("{}", "binding", opts.Binding)
	if err != nil {
		return nil, fmt.Errorf("interceptor config: %w", err)
	}
	skip := opts.Skip
	if skip == nil {
		skip = []string{}
	}
	cfg, err = sjson.Set(cfg, "skip", skip)
	if err != nil {
		return nil, fmt.Errorf("interceptor config: %w", err)
	}

	src := source + "(" + cfg + ");\n"
	if _, err := goja.Compile("netrelay-interceptor.js", src, false); err != nil {
		return nil, fmt.Errorf("interceptor compile: %w", err)
	}
	return &Script{Source: src, Binding: opts.Binding}, nil
}

// ParseStatus decodes the evaluation result of the script.
func ParseStatus(raw []byte) (Status, error) {
	var st Status
	if len(raw) == 0 {
		return st, errors.New("interceptor: empty evaluation result")
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, fmt.Errorf("interceptor status: %w", err)
	}
	return st, nil
}

// Installed reports whether at least one primitive is wrapped after evaluation.
func (s Status) Installed() bool {
	return s.Fetch == StateWrapped || s.Fetch == StatePresent ||
		s.XHR == StateWrapped || s.XHR == StatePresent
}

package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Knetic/govaluate"
	"gopkg.in/yaml.v3"
)

// manifestMethod is the on-disk shape of one method entry in a tool
// manifest YAML file.
type manifestMethod struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Handler     string                 `yaml:"handler"`
	Parameters  map[string]interface{} `yaml:"parameters"`
	Tag         string                 `yaml:"tag"`
	TagParams   map[string]struct {
		Kind string `yaml:"kind"`
		Path string `yaml:"path"`
	} `yaml:"tagParams"`
	Example string `yaml:"example"`
	// When is an optional govaluate boolean expression guarding whether
	// this method is registered at all, evaluated against Env.
	When string `yaml:"when"`
}

// manifest is the on-disk shape of one tool manifest YAML file.
type manifest struct {
	ToolID  string           `yaml:"toolId"`
	Methods []manifestMethod `yaml:"methods"`
}

// manifestTool adapts a parsed manifest plus resolved handlers into the
// Tool interface.
type manifestTool struct {
	id      string
	methods []Method
}

func (t *manifestTool) ToolID() string    { return t.id }
func (t *manifestTool) Methods() []Method { return t.methods }

// HandlerLookup resolves a manifest's "handler" key to a concrete Handler
// implementation. Manifests describe externally-hosted tools bound at load
// time to a Go handler the process already knows about; the manifest
// itself carries no executable code.
type HandlerLookup func(name string) (Handler, bool)

// LoadToolsFromDirectory discovers *.yaml tool manifests under dir and
// registers one Tool per manifest. "when" guards are per method: a method
// whose guard evaluates false is left out, and a manifest left with no
// methods is skipped; a manifest that fails to parse, references an
// unknown handler, fails to evaluate a guard, or fails RegisterTool is
// logged and skipped — a single bad plugin never aborts the load. env supplies
// the variables "when" expressions are evaluated against (e.g. feature
// flags); it may be nil.
func (r *Registry) LoadToolsFromDirectory(dir string, lookup HandlerLookup, env map[string]interface{}) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("tools: read tool directory %q: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") && !strings.HasSuffix(entry.Name(), ".yml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := r.loadManifestFile(path, lookup, env); err != nil {
			logWarn(getContext(), "skipping tool manifest", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		}
	}
	return nil
}

func (r *Registry) loadManifestFile(path string, lookup HandlerLookup, env map[string]interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if m.ToolID == "" {
		return fmt.Errorf("manifest missing toolId")
	}

	tool := &manifestTool{id: m.ToolID}
	for _, mm := range m.Methods {
		if mm.When != "" {
			ok, err := evaluateGuard(mm.When, env)
			if err != nil {
				return fmt.Errorf("method %q: evaluate when-guard: %w", mm.Name, err)
			}
			if !ok {
				continue
			}
		}

		handler, ok := lookup(mm.Handler)
		if !ok {
			return fmt.Errorf("method %q: unknown handler %q", mm.Name, mm.Handler)
		}

		method := Method{
			Name:        mm.Name,
			Description: mm.Description,
			Parameters:  mm.Parameters,
			Handler:     handler,
		}
		if mm.Tag != "" {
			params := make(map[string]ParamSource, len(mm.TagParams))
			for name, tp := range mm.TagParams {
				params[name] = ParamSource{Kind: ParamSourceKind(tp.Kind), Path: tp.Path}
			}
			method.InlineMarkup = &InlineMarkupSchema{
				Tag:     mm.Tag,
				Params:  params,
				Example: mm.Example,
			}
		}
		tool.methods = append(tool.methods, method)
	}

	if len(tool.methods) == 0 {
		return fmt.Errorf("manifest %q yields no enabled methods", m.ToolID)
	}

	return r.RegisterTool(tool)
}

// evaluateGuard evaluates a govaluate boolean expression against env,
// defaulting unparseable or non-boolean results to false (a manifest
// method never silently activates on a guard it could not resolve).
func evaluateGuard(expr string, env map[string]interface{}) (bool, error) {
	evaluable, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return false, err
	}
	if env == nil {
		env = map[string]interface{}{}
	}
	result, err := evaluable.Evaluate(env)
	if err != nil {
		return false, err
	}
	ok, _ := result.(bool)
	return ok, nil
}

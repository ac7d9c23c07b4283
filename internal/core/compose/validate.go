package compose

import (
	"context"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Validation
// =============================================================================

// Summary describes a document that passed validation.
type Summary struct {
	Services []string
	Networks []string
	Volumes  []string
}

// Validate loads serialized document content with compose-go and reports
// whether the orchestration tool would accept it. Content is expected in
// its escaped form, as produced by Marshal.
func Validate(ctx context.Context, content []byte) (*Summary, error) {
	if strings.TrimSpace(string(content)) == "" {
		return nil, ErrEmptyInput
	}

	var dict map[string]interface{}
	if err := yaml.Unmarshal(content, &dict); err != nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(ctx, types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: content,
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("iotedgehubdev", false)
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "dependency cycle detected") {
			return nil, NewParseError("", "circular dependency detected", ErrCircularDependency)
		}
		return nil, NewParseError("", errStr, ErrInvalidDocument)
	}

	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}

	deps := make(map[string][]string, len(project.Services))
	for name, svc := range project.Services {
		for dep := range svc.DependsOn {
			deps[name] = append(deps[name], dep)
		}
	}
	if hasDependencyCycle(deps) {
		return nil, NewParseError("", "circular dependency detected", ErrCircularDependency)
	}

	summary := &Summary{}
	for name := range project.Services {
		summary.Services = append(summary.Services, name)
	}
	for name := range project.Networks {
		summary.Networks = append(summary.Networks, name)
	}
	for name := range project.Volumes {
		summary.Volumes = append(summary.Volumes, name)
	}
	sort.Strings(summary.Services)
	sort.Strings(summary.Networks)
	sort.Strings(summary.Volumes)
	return summary, nil
}

// hasDependencyCycle runs a DFS over service dependencies.
func hasDependencyCycle(deps map[string][]string) bool {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var visit func(node string) bool
	visit = func(node string) bool {
		visited[node] = true
		recStack[node] = true

		for _, dep := range deps[node] {
			if dep == node {
				return true
			}
			if !visited[dep] {
				if visit(dep) {
					return true
				}
			} else if recStack[dep] {
				return true
			}
		}

		recStack[node] = false
		return false
	}

	for node := range deps {
		if !visited[node] && visit(node) {
			return true
		}
	}
	return false
}

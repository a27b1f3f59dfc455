package detect

import (
	"github.com/bmatcuk/doublestar/v4"
)

// Result is the outcome of detection: at most one framework and the set of
// host agents found in the project.
type Result struct {
	Framework  string   `json:"framework"`
	HostAgents []string `json:"hostAgents"`
}

// frameworkRule matches a framework from manifest dependencies or path
// globs. A rule fires if any dependency or any glob matches.
type frameworkRule struct {
	framework string
	deps      []string
	files     []string
}

// frameworkRules is ordered: the first matching rule wins, so frameworks
// that imply others (NestJS pulls in Express, Next.js pulls in React) sit
// above what they imply.
var frameworkRules = []frameworkRule{
	{framework: "nestjs", deps: []string{"@nestjs/core"}, files: []string{"nest-cli.json"}},
	{framework: "nextjs", deps: []string{"next"}, files: []string{"next.config.*"}},
	{framework: "angular", deps: []string{"@angular/core"}, files: []string{"angular.json"}},
	{framework: "vue", deps: []string{"vue", "nuxt"}},
	{framework: "react", deps: []string{"react"}},
	{framework: "express", deps: []string{"express"}},
	{framework: "django", files: []string{"manage.py"}},
	{framework: "rails", files: []string{"config/application.rb"}},
	{framework: "spring-boot", files: []string{"**/src/main/resources/application.yml", "**/src/main/resources/application.properties", "src/main/resources/application.yml", "src/main/resources/application.properties"}},
	{framework: "laravel", files: []string{"artisan"}},
}

// agentProbe matches a host agent from the presence of any of its paths.
type agentProbe struct {
	agent string
	paths []string
}

// agentProbes are evaluated independently: several agents can share one
// project.
var agentProbes = []agentProbe{
	{agent: "claude", paths: []string{".claude", "CLAUDE.md"}},
	{agent: "cursor", paths: []string{".cursor", ".cursorrules"}},
	{agent: "windsurf", paths: []string{".windsurf", ".windsurfrules"}},
	{agent: "copilot", paths: []string{".github/copilot-instructions.md"}},
}

// Detect maps scan signatures through the rule tables. It is a pure
// function: identical signatures always produce identical results.
func Detect(sig Signatures) Result {
	result := Result{}

	for _, rule := range frameworkRules {
		if rule.matches(sig) {
			result.Framework = rule.framework
			break
		}
	}

	for _, probe := range agentProbes {
		for _, path := range probe.paths {
			if sig.HasPath(path) {
				result.HostAgents = append(result.HostAgents, probe.agent)
				break
			}
		}
	}

	return result
}

// KnownFrameworks returns the frameworks the rule table can detect, in
// precedence order.
func KnownFrameworks() []string {
	out := make([]string, 0, len(frameworkRules))
	for _, rule := range frameworkRules {
		out = append(out, rule.framework)
	}
	return out
}

// KnownAgents returns the host agents the probe table can detect.
func KnownAgents() []string {
	out := make([]string, 0, len(agentProbes))
	for _, probe := range agentProbes {
		out = append(out, probe.agent)
	}
	return out
}

func (r frameworkRule) matches(sig Signatures) bool {
	for _, dep := range r.deps {
		if _, ok := sig.Deps[dep]; ok {
			return true
		}
	}
	for _, pattern := range r.files {
		for _, path := range sig.Paths {
			if ok, err := doublestar.Match(pattern, path); err == nil && ok {
				return true
			}
		}
	}
	return false
}

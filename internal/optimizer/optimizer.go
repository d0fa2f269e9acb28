// Package optimizer suggests security, performance and reliability
// improvements for a planned site stack.
package optimizer

import (
	wetwire "github.com/lex00/wetwire-site-go"
	"github.com/lex00/wetwire-site-go/internal/plan"
	"github.com/lex00/wetwire-site-go/resource"
)

// Categories accepted by Options.Category besides "all".
const (
	CategorySecurity    = "security"
	CategoryPerformance = "performance"
	CategoryReliability = "reliability"
)

// Options configures the optimizer.
type Options struct {
	// Category filters suggestions: "all" (or empty), "security",
	// "performance" or "reliability".
	Category string
}

// Rule is a check applied to every planned resource of one kind.
type Rule struct {
	ID       string
	Kind     resource.Kind
	Category string
	Check    func(d resource.Descriptor) *wetwire.OptimizeSuggestion
}

// Optimize runs the rules over p in creation order.
func Optimize(p *plan.Plan, opts Options) wetwire.OptimizeResult {
	result := wetwire.OptimizeResult{Suggestions: []wetwire.OptimizeSuggestion{}}

	for _, d := range p.Order() {
		for _, rule := range rules {
			if rule.Kind != d.Kind() || !matches(opts.Category, rule.Category) {
				continue
			}
			if s := rule.Check(d); s != nil {
				s.Rule = rule.ID
				s.Resource = d.Name()
				s.Category = rule.Category
				result.Suggestions = append(result.Suggestions, *s)
			}
		}
	}

	result.Summary = summarize(result.Suggestions)
	return result
}

// Rules returns the registered rules.
func Rules() []Rule {
	return append([]Rule(nil), rules...)
}

func matches(filter, category string) bool {
	return filter == "" || filter == "all" || filter == category
}

func summarize(suggestions []wetwire.OptimizeSuggestion) wetwire.OptimizeSummary {
	summary := wetwire.OptimizeSummary{}
	for _, s := range suggestions {
		switch s.Category {
		case CategorySecurity:
			summary.Security++
		case CategoryPerformance:
			summary.Performance++
		case CategoryReliability:
			summary.Reliability++
		}
		summary.Total++
	}
	return summary
}

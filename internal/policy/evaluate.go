package policy

import "strings"

// Request is a single access attempt against a bucket policy.
type Request struct {
	Principal string
	Action    string
	Resource  string
}

// Decision is the outcome of evaluating a Request.
type Decision int

const (
	DecisionNotApplicable Decision = iota
	DecisionAllow
	DecisionDeny
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "Allow"
	case DecisionDeny:
		return "Deny"
	default:
		return "NotApplicable"
	}
}

// Evaluate applies doc to req. An explicit deny always wins; without a
// matching allow the result is DecisionNotApplicable, which callers treat as
// a denial.
func Evaluate(doc Document, req Request) Decision {
	var allowed bool
	for _, s := range doc.Statements {
		if !s.matches(req) {
			continue
		}
		if s.Effect == EffectDeny {
			return DecisionDeny
		}
		allowed = true
	}
	if allowed {
		return DecisionAllow
	}
	return DecisionNotApplicable
}

func (s Statement) matches(req Request) bool {
	return matchAny(s.Principal.AWS, req.Principal) &&
		matchAny(s.Actions, req.Action) &&
		matchAny(s.Resources, req.Resource)
}

func matchAny(patterns []string, value string) bool {
	for _, p := range patterns {
		if matchWildcard(p, value) {
			return true
		}
	}
	return false
}

func matchWildcard(pattern, value string) bool {
	if pattern == value || pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") && !strings.Contains(pattern[:len(pattern)-1], "*") {
		return strings.HasPrefix(value, pattern[:len(pattern)-1])
	}
	return wildcardMatch(pattern, value)
}

func wildcardMatch(pattern, value string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for i := 0; i <= len(value); i++ {
				if wildcardMatch(pattern[1:], value[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(value) == 0 {
				return false
			}
			pattern, value = pattern[1:], value[1:]
		default:
			if len(value) == 0 || pattern[0] != value[0] {
				return false
			}
			pattern, value = pattern[1:], value[1:]
		}
	}
	return len(value) == 0
}

package domain

import "context"

// Severity captures advisory rule outcomes. The entity store never blocks on
// rule results; violations surface through observability hooks only.
type Severity string

// Advisory severities.
const (
	// SeverityWarn flags a consistency problem worth surfacing to operators.
	SeverityWarn Severity = "warn"
	// SeverityLog records an observation without implying a defect.
	SeverityLog Severity = "log"
)

// Violation reports a single advisory rule finding.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from a rule evaluation pass.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasWarnings reports whether any violation carries warn severity.
func (r Result) HasWarnings() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityWarn {
			return true
		}
	}
	return false
}

// ReadView provides read-only access to entity state for rule evaluation and
// remote-store snapshots. Lookups returning false tolerate missing records;
// nothing in the view path raises.
type ReadView interface {
	ListUsers() []User
	ListAvatars() []Avatar
	ListPosts() []Post
	ListComments() []Comment
	FindUser(id string) (User, bool)
	FindAvatar(id string) (Avatar, bool)
	FindPost(id string) (Post, bool)
	FindComment(id string) (Comment, bool)
}

// Rule defines an advisory evaluation executed at batch commit.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view ReadView, changes []Change) (Result, error)
}

// RulesEngine orchestrates advisory rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view ReadView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}

package flow

import (
	"fmt"

	"github.com/flowforge/mediaflow/internal/domain"
)

// Validate enforces the Flow Plan Model's invariants (§4.8): DAG-ness,
// closure of dependsOn within the plan, and no duplicate step kinds.
// Adapted from the teacher's Kahn's-algorithm DAG validator, generalized
// from job-run parent/child rows to FlowPlan nodes.
func Validate(plan domain.FlowPlan) error {
	byName := make(map[string]domain.StepNode, len(plan.Children))
	for _, c := range plan.Children {
		if _, dup := byName[c.Name]; dup {
			return fmt.Errorf("%w: duplicate step kind %q", domain.ErrMalformedPlan, c.Name)
		}
		byName[c.Name] = c
	}

	indegree := make(map[string]int, len(plan.Children))
	adj := make(map[string][]string, len(plan.Children))
	for _, c := range plan.Children {
		if _, ok := indegree[c.Name]; !ok {
			indegree[c.Name] = 0
		}
		for _, dep := range c.DependsOn {
			if _, ok := byName[dep]; !ok {
				return fmt.Errorf("%w: %q depends on unknown step %q", domain.ErrMalformedPlan, c.Name, dep)
			}
			indegree[c.Name]++
			adj[dep] = append(adj[dep], c.Name)
		}
	}

	queue := make([]string, 0, len(plan.Children))
	for name, deg := range indegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}
	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range adj[n] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited != len(plan.Children) {
		return fmt.Errorf("%w: dependency graph contains a cycle", domain.ErrMalformedPlan)
	}
	return nil
}

package orchestrator

import "github.com/noetl/noetl/internal/dsl"

// graph indexes a playbook's steps by name and tracks each step's
// static predecessors (the steps that name it in their own `next`),
// used for the fan-in rule (§4.7): a successor is only dispatched once
// every predecessor has reached a terminal status.
type graph struct {
	steps        map[string]dsl.Step
	predecessors map[string][]string
}

func buildGraph(pb *dsl.Playbook) *graph {
	g := &graph{steps: make(map[string]dsl.Step, len(pb.Workflow)), predecessors: make(map[string][]string)}
	for _, s := range pb.Workflow {
		g.steps[s.Step] = s
	}
	for _, s := range pb.Workflow {
		for _, succ := range staticSuccessors(s) {
			g.predecessors[succ] = append(g.predecessors[succ], s.Step)
		}
	}
	return g
}

// staticSuccessors returns the step names a declared `next` can reach,
// ignoring `when` guards on individual targets — the fan-in graph is
// built from the document's static shape, not runtime conditions.
func staticSuccessors(s dsl.Step) []string {
	if s.Next == nil {
		return nil
	}
	switch s.Next.Kind() {
	case "single":
		return []string{s.Next.SingleName}
	case "list":
		return append([]string(nil), s.Next.Names...)
	case "targets":
		out := make([]string, 0, len(s.Next.Targets))
		for _, t := range s.Next.Targets {
			out = append(out, t.Step)
		}
		return out
	default:
		return nil
	}
}

func (g *graph) step(name string) (dsl.Step, bool) {
	s, ok := g.steps[name]
	return s, ok
}

func (g *graph) isLeaf(s dsl.Step) bool {
	return s.Next == nil || s.Next.Kind() == "empty"
}

package graph

import (
	"context"
	"strings"
	"testing"
)

type counterState struct {
	steps []string
	n     int
}

func appendStep(name string) NodeFunc[*counterState] {
	return func(ctx context.Context, s *counterState) (*counterState, error) {
		s.steps = append(s.steps, name)
		return s, nil
	}
}

func TestAddNodeEmptyName(t *testing.T) {
	g := New[*counterState]()

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic for empty node name")
		}
	}()
	g.AddNode(&Node[*counterState]{Name: "", Type: NodeTypeCustom})
}

func TestAddNodeDuplicate(t *testing.T) {
	g := New[*counterState]()
	g.AddNode(&Node[*counterState]{Name: "a", Type: NodeTypeCustom, Execute: appendStep("a")})

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic for duplicate node")
		}
	}()
	g.AddNode(&Node[*counterState]{Name: "a", Type: NodeTypeCustom, Execute: appendStep("a")})
}

func TestLinearExecution(t *testing.T) {
	g := NewBuilder[*counterState]().
		AddNode("first", NodeTypeStart, appendStep("first")).
		AddNode("second", NodeTypeCustom, appendStep("second")).
		AddNode("last", NodeTypeEnd, appendStep("last")).
		AddEdge("first", "second").
		AddEdge("second", "last").
		Build()

	state, err := g.Execute(context.Background(), &counterState{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	got := strings.Join(state.steps, ",")
	if got != "first,second,last" {
		t.Errorf("unexpected order: %s", got)
	}
}

func TestConditionRouting(t *testing.T) {
	const (
		routeLow  Route = "low"
		routeHigh Route = "high"
	)

	build := func(threshold int) *Graph[*counterState] {
		return NewBuilder[*counterState]().
			AddNode("start", NodeTypeStart, appendStep("start")).
			AddConditionNode("branch", func(ctx context.Context, s *counterState) (Route, error) {
				if s.n < threshold {
					return routeLow, nil
				}
				return routeHigh, nil
			}, map[Route]string{routeLow: "low", routeHigh: "high"}).
			AddNode("low", NodeTypeEnd, appendStep("low")).
			AddNode("high", NodeTypeEnd, appendStep("high")).
			AddEdge("start", "branch").
			Build()
	}

	state, err := build(5).Execute(context.Background(), &counterState{n: 3})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if state.steps[len(state.steps)-1] != "low" {
		t.Errorf("expected low branch, got %v", state.steps)
	}

	state, err = build(5).Execute(context.Background(), &counterState{n: 9})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if state.steps[len(state.steps)-1] != "high" {
		t.Errorf("expected high branch, got %v", state.steps)
	}
}

func TestConditionMissingRoute(t *testing.T) {
	g := NewBuilder[*counterState]().
		AddNode("start", NodeTypeStart, appendStep("start")).
		AddConditionNode("branch", func(ctx context.Context, s *counterState) (Route, error) {
			return Route("unknown"), nil
		}, map[Route]string{"known": "start"}).
		AddEdge("start", "branch").
		Build()

	_, err := g.Execute(context.Background(), &counterState{})
	if err == nil || !strings.Contains(err.Error(), "no edge for route") {
		t.Errorf("expected missing-route error, got %v", err)
	}
}

func TestMaxVisitsBoundsLoops(t *testing.T) {
	// loop: start -> again -> start ... never terminates on its own
	g := NewBuilder[*counterState]().
		AddNode("start", NodeTypeStart, appendStep("start")).
		AddNode("again", NodeTypeCustom, appendStep("again")).
		AddEdge("start", "again").
		AddEdge("again", "start").
		SetMaxVisits(4).
		Build()

	_, err := g.Execute(context.Background(), &counterState{})
	if err == nil || !strings.Contains(err.Error(), "step budget exceeded") {
		t.Errorf("expected step budget error, got %v", err)
	}
}

func TestObserverSeesCommittedStates(t *testing.T) {
	g := NewBuilder[*counterState]().
		AddNode("a", NodeTypeStart, appendStep("a")).
		AddNode("b", NodeTypeEnd, appendStep("b")).
		AddEdge("a", "b").
		Build()

	var observed []string
	_, err := g.ExecuteWithObserver(context.Background(), &counterState{}, func(ctx context.Context, node string, s *counterState) {
		observed = append(observed, node)
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if strings.Join(observed, ",") != "a,b" {
		t.Errorf("unexpected observations: %v", observed)
	}
}

func TestExecuteCancelledContext(t *testing.T) {
	g := NewBuilder[*counterState]().
		AddNode("a", NodeTypeStart, appendStep("a")).
		AddNode("b", NodeTypeEnd, appendStep("b")).
		AddEdge("a", "b").
		Build()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Execute(ctx, &counterState{})
	if err == nil {
		t.Errorf("expected context error")
	}
}

package graph

import (
	"context"
	"fmt"
)

// NodeType represents the type of a node in the graph
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeEnd       NodeType = "end"
	NodeTypeLLM       NodeType = "llm"
	NodeTypeCondition NodeType = "condition"
	NodeTypeCustom    NodeType = "custom"
)

// Route is a typed routing directive returned by condition nodes. Declaring
// routes as named constants keeps dispatch tables free of raw string literals.
type Route string

// NodeFunc is the function executed by a node. It receives the current state
// and returns the (possibly replaced) state for the next node.
type NodeFunc[S any] func(context.Context, S) (S, error)

// ConditionFunc evaluates the state and returns the route to follow.
type ConditionFunc[S any] func(context.Context, S) (Route, error)

// Node represents a node in the execution graph
type Node[S any] struct {
	Name      string
	Type      NodeType
	Execute   NodeFunc[S]
	Condition ConditionFunc[S]  // Only for condition nodes
	Next      string            // Unconditional outgoing edge
	Routes    map[Route]string  // For condition nodes: route -> next node
}

// Graph represents a sequential execution flow graph. Exactly one node is
// active at a time; branching happens only through condition nodes. MaxVisits
// bounds how often any single node may run, which is what terminates retry
// cycles that have no counter of their own.
type Graph[S any] struct {
	nodes     map[string]*Node[S]
	startNode string
	maxVisits int
}

// New creates a new graph
func New[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:     make(map[string]*Node[S]),
		maxVisits: 10,
	}
}

func (g *Graph[S]) validateNode(node *Node[S]) {
	if node.Name == "" {
		panic("node name cannot be empty")
	}

	switch node.Type {
	case NodeTypeCondition:
		if node.Condition == nil {
			panic(fmt.Sprintf("condition node %s must have non-nil Condition function", node.Name))
		}
	case NodeTypeEnd:
		// End nodes may omit Execute.
	default:
		if node.Execute == nil {
			panic(fmt.Sprintf("node %s of type %s must have non-nil Execute function", node.Name, node.Type))
		}
	}
}

// AddNode adds a node to the graph
func (g *Graph[S]) AddNode(node *Node[S]) {
	if _, exists := g.nodes[node.Name]; exists {
		panic(fmt.Sprintf("node %s already exists", node.Name))
	}

	g.validateNode(node)
	g.nodes[node.Name] = node

	if node.Type == NodeTypeStart {
		g.startNode = node.Name
	}
}

// SetStartNode sets the start node
func (g *Graph[S]) SetStartNode(name string) {
	if _, exists := g.nodes[name]; !exists {
		panic(fmt.Sprintf("node %s not found", name))
	}
	g.startNode = name
}

// SetMaxVisits sets the maximum number of visits to a node
func (g *Graph[S]) SetMaxVisits(maxVisits int) {
	if maxVisits > 0 {
		g.maxVisits = maxVisits
	}
}

// GetNode returns a node by name
func (g *Graph[S]) GetNode(name string) (*Node[S], error) {
	node, exists := g.nodes[name]
	if !exists {
		return nil, fmt.Errorf("node %s not found", name)
	}
	return node, nil
}

// Execute runs the graph from the configured start node until an end node is
// reached. Each node runs to completion and commits its state before the next
// node is resolved. Observers registered via the executor see every committed
// state, which is how callers checkpoint progress.
func (g *Graph[S]) Execute(ctx context.Context, initial S) (S, error) {
	return g.ExecuteWithObserver(ctx, initial, nil)
}

// Observer is called after each non-condition node commits its state.
type Observer[S any] func(ctx context.Context, node string, state S)

// ExecuteWithObserver runs the graph, invoking observe after every committed
// node execution.
func (g *Graph[S]) ExecuteWithObserver(ctx context.Context, initial S, observe Observer[S]) (S, error) {
	state := initial
	if g.startNode == "" {
		return state, fmt.Errorf("start node not set")
	}

	visited := make(map[string]int)
	current := g.startNode

	for {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		node, exists := g.nodes[current]
		if !exists {
			return state, fmt.Errorf("node %s not found", current)
		}

		visited[current]++
		if visited[current] > g.maxVisits {
			return state, fmt.Errorf("step budget exceeded at node %s (%d visits)", current, visited[current])
		}

		if node.Type == NodeTypeCondition {
			route, err := node.Condition(ctx, state)
			if err != nil {
				return state, fmt.Errorf("error evaluating condition at node %s: %w", node.Name, err)
			}
			next, ok := node.Routes[route]
			if !ok {
				return state, fmt.Errorf("node %s has no edge for route %q", node.Name, route)
			}
			current = next
			continue
		}

		if node.Execute != nil {
			var err error
			state, err = node.Execute(ctx, state)
			if err != nil {
				return state, fmt.Errorf("error executing node %s: %w", node.Name, err)
			}
			if observe != nil {
				observe(ctx, node.Name, state)
			}
		}

		if node.Type == NodeTypeEnd {
			return state, nil
		}
		if node.Next == "" {
			return state, fmt.Errorf("no next node specified for node %s", node.Name)
		}
		current = node.Next
	}
}

// Builder helps build graphs fluently
type Builder[S any] struct {
	graph *Graph[S]
}

// NewBuilder creates a new graph builder
func NewBuilder[S any]() *Builder[S] {
	return &Builder[S]{
		graph: New[S](),
	}
}

// AddNode adds a node to the graph
func (b *Builder[S]) AddNode(name string, nodeType NodeType, execute NodeFunc[S]) *Builder[S] {
	b.graph.AddNode(&Node[S]{
		Name:    name,
		Type:    nodeType,
		Execute: execute,
	})
	return b
}

// AddConditionNode adds a condition node with its dispatch table
func (b *Builder[S]) AddConditionNode(name string, condition ConditionFunc[S], routes map[Route]string) *Builder[S] {
	b.graph.AddNode(&Node[S]{
		Name:      name,
		Type:      NodeTypeCondition,
		Condition: condition,
		Routes:    routes,
	})
	return b
}

// AddEdge connects two nodes
func (b *Builder[S]) AddEdge(from, to string) *Builder[S] {
	node, exists := b.graph.nodes[from]
	if !exists {
		panic(fmt.Sprintf("node %s not found", from))
	}
	node.Next = to
	return b
}

// SetStart sets the start node
func (b *Builder[S]) SetStart(name string) *Builder[S] {
	b.graph.SetStartNode(name)
	return b
}

// SetMaxVisits sets the maximum number of visits to a node
func (b *Builder[S]) SetMaxVisits(maxVisits int) *Builder[S] {
	b.graph.SetMaxVisits(maxVisits)
	return b
}

// Build returns the constructed graph
func (b *Builder[S]) Build() *Graph[S] {
	return b.graph
}

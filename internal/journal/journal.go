// Package journal records the states discovered while exploring an
// application and the actions linking them.
package journal

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mrmurphy/internal/model"
)

// ErrPathNotFound is returned when a node cannot be reached from another.
var ErrPathNotFound = errors.New("path not found")

// Comparator decides whether two states are the same node.
type Comparator interface {
	Equivalent(a, b *model.State) bool
}

// EdgePolicy controls what happens when an action already recorded on a node
// leads somewhere else than it did before.
type EdgePolicy string

const (
	// EdgeKeep adds a new edge and keeps the old one.
	EdgeKeep EdgePolicy = "keep"
	// EdgeReplace moves the most recent edge to the new destination.
	EdgeReplace EdgePolicy = "replace"
)

// EdgeChange describes what Record did to the graph.
type EdgeChange int

const (
	EdgeUnchanged EdgeChange = iota
	EdgeAdded
	// EdgeDiverged means an existing action led to a new destination and a
	// further edge was added.
	EdgeDiverged
	// EdgeRetargeted means an existing edge was pointed at a new destination.
	EdgeRetargeted
)

// Metadata annotates nodes and edges for human readers.
type Metadata struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
}

// Node is a vertex of the journal.
type Node struct {
	Index    int
	State    *model.State
	Edges    []*Edge
	Metadata []Metadata

	dir    string
	dumped bool
}

func (n *Node) String() string {
	return fmt.Sprintf("%s : %d", n.State.Window.Title, n.Index)
}

// FindEdge returns the first edge triggered by an action equal to a.
func (n *Node) FindEdge(a model.Action) *Edge {
	for _, e := range n.Edges {
		if e.Action.Equal(a) {
			return e
		}
	}
	return nil
}

// AddMetadata annotates the node. Annotations with the same title and text
// are stored once.
func (n *Node) AddMetadata(m Metadata) {
	n.Metadata = addMetadata(n.Metadata, m)
}

// Edge is a directed transition between two nodes, referenced by index.
type Edge struct {
	Head     int
	Tail     int
	Action   model.Action
	Metadata []Metadata

	dir    string
	dumped bool
	dirty  bool
}

// AddMetadata annotates the edge.
func (e *Edge) AddMetadata(m Metadata) {
	e.Metadata = addMetadata(e.Metadata, m)
}

func addMetadata(set []Metadata, m Metadata) []Metadata {
	for _, existing := range set {
		if existing.Title == m.Title && existing.Text == m.Text {
			return set
		}
	}
	return append(set, m)
}

// Journal is the graph of discovered states. It owns every node; edges refer
// to nodes by their index. A Journal is not safe for concurrent mutation.
type Journal struct {
	dir       string
	nodes     []*Node
	current   int
	cmp       Comparator
	policy    EdgePolicy
	exporters map[string]Exporter
	logger    *zap.Logger
	// owned is set once stale dumps of other sessions were cleared.
	owned bool
}

// Option customizes a Journal.
type Option func(*Journal)

// WithEdgePolicy sets how diverging edges are recorded.
func WithEdgePolicy(p EdgePolicy) Option {
	return func(j *Journal) { j.policy = p }
}

// WithExporter registers an exporter for a render format.
func WithExporter(format string, e Exporter) Option {
	return func(j *Journal) { j.exporters[format] = e }
}

// New creates an empty journal persisted under dir.
func New(dir string, cmp Comparator, logger *zap.Logger, opts ...Option) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &Journal{
		dir:     dir,
		current: -1,
		cmp:     cmp,
		policy:  EdgeKeep,
		exporters: map[string]Exporter{
			FormatDOT:     DOTExporter{},
			FormatMermaid: MermaidExporter{},
		},
		logger: logger.Named("journal"),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Dir is the directory the journal is dumped to.
func (j *Journal) Dir() string { return j.dir }

// Nodes returns the nodes in discovery order.
func (j *Journal) Nodes() []*Node { return j.nodes }

// Len is the number of nodes.
func (j *Journal) Len() int { return len(j.nodes) }

// Node returns the node with the given index or nil.
func (j *Journal) Node(index int) *Node {
	if index < 0 || index >= len(j.nodes) {
		return nil
	}
	return j.nodes[index]
}

// EdgeCount is the number of edges across all nodes.
func (j *Journal) EdgeCount() int {
	n := 0
	for _, node := range j.nodes {
		n += len(node.Edges)
	}
	return n
}

// Initial returns the first node ever added, or nil for an empty journal.
func (j *Journal) Initial() *Node { return j.Node(0) }

// Current returns the node the exploration currently stands on.
func (j *Journal) Current() *Node { return j.Node(j.current) }

// SetCurrent moves the cursor to n, which must belong to the journal.
func (j *Journal) SetCurrent(n *Node) {
	if j.Node(n.Index) != n {
		panic(fmt.Sprintf("journal: node %d does not belong to this journal", n.Index))
	}
	j.current = n.Index
}

// FindNode returns the first node whose state is equivalent to s.
func (j *Journal) FindNode(s *model.State) *Node {
	for _, n := range j.nodes {
		if j.cmp.Equivalent(n.State, s) {
			return n
		}
	}
	return nil
}

// NewNode appends a node for s. The caller must have checked that no
// equivalent node exists.
func (j *Journal) NewNode(s *model.State) *Node {
	n := &Node{Index: len(j.nodes), State: s}
	j.nodes = append(j.nodes, n)
	j.logger.Debug("Node added", zap.Int("index", n.Index), zap.String("title", s.Window.Title))
	return n
}

// Record commits the transition head -> tail caused by a. Recording an action
// that already leads to tail is a no-op. When a already leads elsewhere the
// configured EdgePolicy decides between adding and retargeting.
func (j *Journal) Record(head, tail *Node, a model.Action) (*Edge, EdgeChange) {
	var last *Edge
	for _, e := range head.Edges {
		if !e.Action.Equal(a) {
			continue
		}
		if e.Tail == tail.Index {
			return e, EdgeUnchanged
		}
		last = e
	}

	if last == nil {
		return j.addEdge(head, tail, a), EdgeAdded
	}

	j.logger.Debug("Edge leads to a different node",
		zap.Int("head", head.Index),
		zap.String("action", a.Text()),
		zap.Int("expected", last.Tail),
		zap.Int("got", tail.Index))

	if j.policy == EdgeReplace {
		last.Tail = tail.Index
		last.dirty = true
		return last, EdgeRetargeted
	}
	return j.addEdge(head, tail, a), EdgeDiverged
}

func (j *Journal) addEdge(head, tail *Node, a model.Action) *Edge {
	e := &Edge{Head: head.Index, Tail: tail.Index, Action: a}
	head.Edges = append(head.Edges, e)
	return e
}

// FindPath returns the shortest sequence of edges leading from one node to
// another, breaking ties by edge discovery order. The path from a node to
// itself is empty.
func (j *Journal) FindPath(from, to *Node) ([]*Edge, error) {
	if from.Index == to.Index {
		return []*Edge{}, nil
	}

	via := make([]*Edge, len(j.nodes))
	visited := make([]bool, len(j.nodes))
	visited[from.Index] = true
	queue := append([]*Edge(nil), from.Edges...)

	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		if visited[e.Tail] {
			continue
		}
		visited[e.Tail] = true
		via[e.Tail] = e
		if e.Tail == to.Index {
			return unwind(via, from.Index, to.Index), nil
		}
		queue = append(queue, j.nodes[e.Tail].Edges...)
	}

	return nil, fmt.Errorf("from node %d to node %d: %w", from.Index, to.Index, ErrPathNotFound)
}

func unwind(via []*Edge, from, to int) []*Edge {
	var path []*Edge
	for n := to; n != from; n = via[n].Head {
		path = append(path, via[n])
	}
	for i, k := 0, len(path)-1; i < k; i, k = i+1, k-1 {
		path[i], path[k] = path[k], path[i]
	}
	return path
}

// Distance is the length of the shortest path between two nodes.
func (j *Journal) Distance(from, to *Node) (int, error) {
	path, err := j.FindPath(from, to)
	if err != nil {
		return 0, err
	}
	return len(path), nil
}

package journal

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
	"github.com/xkilldash9x/mrmurphy/internal/model"
)

const (
	stateFile     = "state.json"
	windowFile    = "window.png"
	edgeFile      = "edge.json"
	edgeImageFile = "edge.png"
)

var (
	nodeDirPattern = regexp.MustCompile(`^node(\d+)$`)
	edgeDirPattern = regexp.MustCompile(`^edge(\d+)$`)
)

// stateRecord is the content of nodeN/state.json.
type stateRecord struct {
	Window   string                `json:"window"`
	State    schemas.SnapshotToken `json:"state"`
	Load     schemas.Load          `json:"load"`
	Busy     bool                  `json:"busy"`
	Scraped  schemas.ScrapedWindow `json:"scraped"`
	Metadata []Metadata            `json:"metadata,omitempty"`
}

// edgeRecord is the content of nodeN/edgeM/edge.json. Head and tail are node
// directories relative to the journal root.
type edgeRecord struct {
	Head     string       `json:"head"`
	Tail     string       `json:"tail"`
	Action   actionRecord `json:"action"`
	Metadata []Metadata   `json:"metadata,omitempty"`
}

type actionRecord struct {
	Kind        string       `json:"kind"`
	Text        string       `json:"text"`
	Coordinates schemas.Rect `json:"coordinates"`
	Image       string       `json:"image,omitempty"`
}

func nodeDirName(index int) string { return "node" + strconv.Itoa(index) }
func edgeDirName(index int) string { return "edge" + strconv.Itoa(index) }

// Dump writes the journal under its directory. Unless full is set, nodes and
// edges this journal already wrote are skipped, except edges that were
// retargeted since. The first dump of a new journal removes the node
// directories left in its directory by an earlier session.
func (j *Journal) Dump(full bool) error {
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}
	if !j.owned {
		if err := j.clearStale(); err != nil {
			return err
		}
		j.owned = true
	}

	for _, n := range j.nodes {
		n.dir = filepath.Join(j.dir, nodeDirName(n.Index))
		if !full && n.dumped {
			continue
		}
		if err := writeState(n.dir, n.State, n.Metadata); err != nil {
			return fmt.Errorf("failed to dump node %d: %w", n.Index, err)
		}
		n.dumped = true
		j.logger.Debug("Node dumped", zap.Int("index", n.Index), zap.String("path", n.dir))
	}

	for _, n := range j.nodes {
		for i, e := range n.Edges {
			e.dir = filepath.Join(n.dir, edgeDirName(i))
			if !full && e.dumped && !e.dirty {
				continue
			}
			if err := j.writeEdge(n, e); err != nil {
				return fmt.Errorf("failed to dump edge %d of node %d: %w", i, n.Index, err)
			}
			e.dumped, e.dirty = true, false
		}
	}
	return nil
}

// clearStale removes the nodeN directories found under the journal directory.
// Other files, such as rendered graphs, are left in place.
func (j *Journal) clearStale() error {
	indices, err := listDirs(j.dir, nodeDirPattern)
	if err != nil {
		return fmt.Errorf("failed to list journal directory: %w", err)
	}
	for _, idx := range indices {
		if err := os.RemoveAll(filepath.Join(j.dir, nodeDirName(idx))); err != nil {
			return fmt.Errorf("failed to remove stale node %d: %w", idx, err)
		}
	}
	if len(indices) > 0 {
		j.logger.Info("Replaced previous journal", zap.String("path", j.dir), zap.Int("nodes", len(indices)))
	}
	return nil
}

// DumpState writes a single state in the node directory layout.
func DumpState(dir string, s *model.State) error {
	return writeState(dir, s, nil)
}

func writeState(dir string, s *model.State, metadata []Metadata) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	rec := stateRecord{
		State:    s.Snapshot(),
		Load:     s.Load,
		Busy:     s.Busy,
		Scraped:  s.Scraped,
		Metadata: metadata,
	}
	if s.Window.Image != nil {
		if err := writePNG(filepath.Join(dir, windowFile), s.Window.Image); err != nil {
			return err
		}
		rec.Window = windowFile
	}
	return writeJSON(filepath.Join(dir, stateFile), rec)
}

func (j *Journal) writeEdge(head *Node, e *Edge) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return err
	}
	rec := edgeRecord{
		Head: nodeDirName(e.Head),
		Tail: nodeDirName(e.Tail),
		Action: actionRecord{
			Kind:        e.Action.Kind().String(),
			Text:        e.Action.Text(),
			Coordinates: e.Action.Rect(),
		},
		Metadata: e.Metadata,
	}
	if img := head.State.ActionImage(e.Action); img != nil && !img.Bounds().Empty() {
		if err := writePNG(filepath.Join(e.dir, edgeImageFile), img); err != nil {
			return err
		}
		rec.Action.Image = edgeImageFile
	}
	return writeJSON(filepath.Join(e.dir, edgeFile), rec)
}

// LoadState rebuilds the state dumped in a node directory.
func LoadState(dir string) (*model.State, error) {
	s, _, err := readState(dir)
	return s, err
}

func readState(dir string) (*model.State, stateRecord, error) {
	var rec stateRecord
	if err := readJSON(filepath.Join(dir, stateFile), &rec); err != nil {
		return nil, rec, err
	}

	var img image.Image
	if rec.Window != "" {
		path := rec.Window
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, rec, fmt.Errorf("failed to open window image: %w", err)
		}
		defer f.Close()
		if img, err = png.Decode(f); err != nil {
			return nil, rec, fmt.Errorf("failed to decode window image: %w", err)
		}
	}

	s := model.NewState(rec.Scraped, img, rec.Load, rec.Busy)
	s.SetSnapshot(rec.State)
	return s, rec, nil
}

// Load reads a journal previously written by Dump. Node states are decoded
// in parallel.
func Load(dir string, cmp Comparator, logger *zap.Logger, opts ...Option) (*Journal, error) {
	indices, err := listDirs(dir, nodeDirPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal nodes: %w", err)
	}
	for i, idx := range indices {
		if idx != i {
			return nil, fmt.Errorf("journal %s: missing node %d", dir, i)
		}
	}

	j := New(dir, cmp, logger, opts...)
	j.owned = true
	j.nodes = make([]*Node, len(indices))

	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())
	for i := range indices {
		i := i // per-iteration copy; go.mod targets go 1.21 loop semantics
		g.Go(func() error {
			nodeDir := filepath.Join(dir, nodeDirName(i))
			s, rec, err := readState(nodeDir)
			if err != nil {
				return fmt.Errorf("node %d: %w", i, err)
			}
			j.nodes[i] = &Node{Index: i, State: s, Metadata: rec.Metadata, dir: nodeDir, dumped: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, n := range j.nodes {
		if err := j.loadEdges(n); err != nil {
			return nil, fmt.Errorf("node %d: %w", n.Index, err)
		}
	}

	j.logger.Info("Journal loaded", zap.String("path", dir), zap.Int("nodes", j.Len()), zap.Int("edges", j.EdgeCount()))
	return j, nil
}

func (j *Journal) loadEdges(n *Node) error {
	indices, err := listDirs(n.dir, edgeDirPattern)
	if err != nil {
		return err
	}
	for _, idx := range indices {
		edgeDir := filepath.Join(n.dir, edgeDirName(idx))
		var rec edgeRecord
		if err := readJSON(filepath.Join(edgeDir, edgeFile), &rec); err != nil {
			return err
		}
		tail, err := nodeIndex(rec.Tail)
		if err != nil || j.Node(tail) == nil {
			return fmt.Errorf("edge %d: invalid tail %q", idx, rec.Tail)
		}
		action := matchAction(n.State.Actions, rec.Action)
		if action == nil {
			return fmt.Errorf("edge %d: action %q not found on node", idx, rec.Action.Text)
		}
		n.Edges = append(n.Edges, &Edge{
			Head:     n.Index,
			Tail:     tail,
			Action:   action,
			Metadata: rec.Metadata,
			dir:      edgeDir,
			dumped:   true,
		})
	}
	return nil
}

// matchAction finds the action described by rec, preferring an exact
// position match.
func matchAction(actions []model.Action, rec actionRecord) model.Action {
	var fallback model.Action
	for _, a := range actions {
		if a.Kind().String() != rec.Kind || a.Text() != rec.Text {
			continue
		}
		if a.Rect() == rec.Coordinates {
			return a
		}
		if fallback == nil {
			fallback = a
		}
	}
	return fallback
}

func nodeIndex(path string) (int, error) {
	m := nodeDirPattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, fmt.Errorf("not a node directory: %s", path)
	}
	return strconv.Atoi(m[1])
}

// listDirs returns the sorted numeric suffixes of the subdirectories of dir
// matching pattern.
func listDirs(dir string, pattern *regexp.Regexp) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var indices []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

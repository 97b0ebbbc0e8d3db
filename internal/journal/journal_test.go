package journal

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
	"github.com/xkilldash9x/mrmurphy/internal/equivalence"
	"github.com/xkilldash9x/mrmurphy/internal/model"
)

// -- Test Fixture Setup --

type journalTestFixture struct {
	Logger *zap.Logger
	Engine *equivalence.Engine
}

var globalFixture *journalTestFixture

func TestMain(m *testing.M) {
	logger := zap.NewNop()
	globalFixture = &journalTestFixture{
		Logger: logger,
		Engine: equivalence.New(equivalence.DefaultTolerance(), logger),
	}

	exitCode := m.Run()

	_ = globalFixture.Logger.Sync()
	os.Exit(exitCode)
}

// -- Test Helper Functions --

func newState(title string, level uint8, buttons ...string) *model.State {
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	objects := make([]schemas.ScrapedObject, len(buttons))
	for i, text := range buttons {
		objects[i] = schemas.ScrapedObject{
			Type: schemas.ObjectButton,
			Text: text,
			Rect: schemas.NewRect(4+i*12, 30, 14+i*12, 40),
		}
	}
	return model.NewState(schemas.ScrapedWindow{
		Title:   title,
		Rect:    schemas.NewRect(100, 100, 164, 148),
		Objects: objects,
	}, img, schemas.Load{CPU: 0.01}, false)
}

func getTestJournal(t *testing.T, opts ...Option) *Journal {
	t.Helper()
	return New(t.TempDir(), globalFixture.Engine, globalFixture.Logger, opts...)
}

// chain adds n nodes and links node i to node i+1 with button "Next".
func chain(t *testing.T, j *Journal, n int) []*Node {
	t.Helper()
	nodes := make([]*Node, n)
	for i := range nodes {
		nodes[i] = j.NewNode(newState("Step", uint8(i*20), "Next"))
	}
	for i := 0; i+1 < n; i++ {
		j.Record(nodes[i], nodes[i+1], nodes[i].State.Actions[0])
	}
	return nodes
}

func edgeIndices(path []*Edge) [][2]int {
	out := make([][2]int, len(path))
	for i, e := range path {
		out[i] = [2]int{e.Head, e.Tail}
	}
	return out
}

// -- Tests --

func TestFindNode(t *testing.T) {
	t.Parallel()

	t.Run("should return the node of an equivalent state", func(t *testing.T) {
		j := getTestJournal(t)
		first := j.NewNode(newState("Setup", 200, "Next", "Cancel"))
		j.NewNode(newState("License", 200, "Accept"))

		found := j.FindNode(newState("Setup", 200, "Cancel", "Next"))
		require.NotNil(t, found)
		assert.Same(t, first, found)
	})

	t.Run("should return nil for unknown states", func(t *testing.T) {
		j := getTestJournal(t)
		j.NewNode(newState("Setup", 200, "Next"))

		assert.Nil(t, j.FindNode(newState("Setup", 10, "Next")))
		assert.Nil(t, j.FindNode(newState("Finish", 200, "Next")))
	})

	t.Run("should assign indices in discovery order", func(t *testing.T) {
		j := getTestJournal(t)
		assert.Nil(t, j.Initial())
		assert.Nil(t, j.Current())

		a := j.NewNode(newState("A", 0))
		b := j.NewNode(newState("B", 0))
		assert.Equal(t, 0, a.Index)
		assert.Equal(t, 1, b.Index)
		assert.Same(t, a, j.Initial())
		assert.Equal(t, 2, j.Len())

		j.SetCurrent(b)
		assert.Same(t, b, j.Current())
	})

	t.Run("should refuse foreign nodes as cursor", func(t *testing.T) {
		j := getTestJournal(t)
		other := getTestJournal(t)
		j.NewNode(newState("A", 0))
		foreign := other.NewNode(newState("B", 0))
		foreign.Index = 5
		assert.Panics(t, func() { j.SetCurrent(foreign) })
	})
}

func TestFindPath(t *testing.T) {
	t.Parallel()

	t.Run("should find the shortest path among longer alternatives", func(t *testing.T) {
		j := getTestJournal(t)
		n := make([]*Node, 6)
		for i := range n {
			n[i] = j.NewNode(newState("N", uint8(i*30), "a", "b", "c"))
		}
		act := func(node *Node, i int) model.Action { return node.State.Actions[i] }
		// long: 0 -> 1 -> 2 -> 3 -> 5, short: 0 -> 4 -> 5, plus a cycle 2 -> 0.
		j.Record(n[0], n[1], act(n[0], 0))
		j.Record(n[1], n[2], act(n[1], 0))
		j.Record(n[2], n[3], act(n[2], 0))
		j.Record(n[3], n[5], act(n[3], 0))
		j.Record(n[2], n[0], act(n[2], 1))
		j.Record(n[0], n[4], act(n[0], 1))
		j.Record(n[4], n[5], act(n[4], 0))

		distance, err := j.Distance(n[0], n[5])
		require.NoError(t, err)
		assert.Equal(t, 2, distance)

		path, err := j.FindPath(n[0], n[5])
		require.NoError(t, err)
		if diff := cmp.Diff([][2]int{{0, 4}, {4, 5}}, edgeIndices(path)); diff != "" {
			t.Errorf("unexpected path (-want +got):\n%s", diff)
		}
		for i := 1; i < len(path); i++ {
			assert.Equal(t, path[i-1].Tail, path[i].Head, "path must be connected")
		}
	})

	t.Run("should break ties by edge discovery order", func(t *testing.T) {
		j := getTestJournal(t)
		n := make([]*Node, 4)
		for i := range n {
			n[i] = j.NewNode(newState("N", uint8(i*40), "a", "b"))
		}
		j.Record(n[0], n[2], n[0].State.Actions[0])
		j.Record(n[0], n[1], n[0].State.Actions[1])
		j.Record(n[1], n[3], n[1].State.Actions[0])
		j.Record(n[2], n[3], n[2].State.Actions[0])

		path, err := j.FindPath(n[0], n[3])
		require.NoError(t, err)
		assert.Equal(t, [][2]int{{0, 2}, {2, 3}}, edgeIndices(path))
	})

	t.Run("should return an empty path to itself", func(t *testing.T) {
		j := getTestJournal(t)
		nodes := chain(t, j, 2)
		path, err := j.FindPath(nodes[1], nodes[1])
		require.NoError(t, err)
		assert.NotNil(t, path)
		assert.Empty(t, path)
	})

	t.Run("should report unreachable nodes", func(t *testing.T) {
		j := getTestJournal(t)
		nodes := chain(t, j, 3)

		_, err := j.FindPath(nodes[2], nodes[0])
		assert.ErrorIs(t, err, ErrPathNotFound)
		_, err = j.Distance(nodes[2], nodes[0])
		assert.ErrorIs(t, err, ErrPathNotFound)
	})

	t.Run("should measure a linear chain", func(t *testing.T) {
		j := getTestJournal(t)
		nodes := chain(t, j, 9)
		for i, n := range nodes {
			d, err := j.Distance(nodes[0], n)
			require.NoError(t, err)
			assert.Equal(t, i, d)
		}
	})
}

func TestRecord(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T, opts ...Option) (*Journal, []*Node) {
		j := getTestJournal(t, opts...)
		return j, []*Node{
			j.NewNode(newState("Home", 0, "Go")),
			j.NewNode(newState("Left", 50)),
			j.NewNode(newState("Right", 100)),
		}
	}

	t.Run("should add new edges once", func(t *testing.T) {
		j, n := setup(t)
		go1 := n[0].State.Actions[0]

		e, change := j.Record(n[0], n[1], go1)
		assert.Equal(t, EdgeAdded, change)
		again, change := j.Record(n[0], n[1], go1)
		assert.Equal(t, EdgeUnchanged, change)
		assert.Same(t, e, again)
		assert.Same(t, e, n[0].FindEdge(go1))
		assert.Equal(t, 1, j.EdgeCount())
	})

	t.Run("should keep the old edge on divergence by default", func(t *testing.T) {
		j, n := setup(t)
		action := n[0].State.Actions[0]
		j.Record(n[0], n[1], action)

		_, change := j.Record(n[0], n[2], action)
		assert.Equal(t, EdgeDiverged, change)
		assert.Equal(t, [][2]int{{0, 1}, {0, 2}}, edgeIndices(n[0].Edges))

		// Seeing either destination again changes nothing.
		_, change = j.Record(n[0], n[2], action)
		assert.Equal(t, EdgeUnchanged, change)
		_, change = j.Record(n[0], n[1], action)
		assert.Equal(t, EdgeUnchanged, change)
		assert.Equal(t, 2, j.EdgeCount())
	})

	t.Run("should retarget the edge with the replace policy", func(t *testing.T) {
		j, n := setup(t, WithEdgePolicy(EdgeReplace))
		action := n[0].State.Actions[0]
		first, _ := j.Record(n[0], n[1], action)

		e, change := j.Record(n[0], n[2], action)
		assert.Equal(t, EdgeRetargeted, change)
		assert.Same(t, first, e)
		assert.Equal(t, [][2]int{{0, 2}}, edgeIndices(n[0].Edges))
	})
}

func TestMetadata(t *testing.T) {
	t.Parallel()
	n := &Node{}
	n.AddMetadata(Metadata{Title: "note", Text: "x"})
	n.AddMetadata(Metadata{Title: "note", Text: "x", Image: "other.png"})
	n.AddMetadata(Metadata{Title: "note", Text: "y"})
	assert.Len(t, n.Metadata, 2)
}

func TestDumpAndLoad(t *testing.T) {
	t.Parallel()

	j := getTestJournal(t)
	nodes := chain(t, j, 3)
	nodes[0].State.SetSnapshot("snap-0")
	nodes[1].AddMetadata(Metadata{Title: "Info", Text: "slow screen"})
	j.Record(nodes[2], nodes[0], nodes[2].State.Actions[0])
	require.NoError(t, j.Dump(false))

	for _, p := range []string{
		"node0/window.png", "node0/state.json",
		"node0/edge0/edge.json", "node0/edge0/edge.png",
		"node2/edge0/edge.json",
	} {
		assert.FileExists(t, filepath.Join(j.Dir(), p))
	}

	t.Run("should reload an equivalent state", func(t *testing.T) {
		s, err := LoadState(filepath.Join(j.Dir(), "node0"))
		require.NoError(t, err)
		assert.True(t, globalFixture.Engine.Equivalent(nodes[0].State, s))
		assert.Equal(t, schemas.SnapshotToken("snap-0"), s.Snapshot())
		assert.Equal(t, nodes[0].State.Load, s.Load)
	})

	t.Run("should reload the whole graph", func(t *testing.T) {
		loaded, err := Load(j.Dir(), globalFixture.Engine, globalFixture.Logger)
		require.NoError(t, err)
		require.Equal(t, 3, loaded.Len())
		assert.Equal(t, 3, loaded.EdgeCount())
		assert.Equal(t, edgeIndices(nodes[2].Edges), edgeIndices(loaded.Node(2).Edges))
		assert.Equal(t, nodes[1].Metadata, loaded.Node(1).Metadata)
		assert.Equal(t, "Next", loaded.Node(0).Edges[0].Action.Text())

		d, err := loaded.Distance(loaded.Initial(), loaded.Node(2))
		require.NoError(t, err)
		assert.Equal(t, 2, d)
	})

	t.Run("should fail on a missing directory", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing"), globalFixture.Engine, nil)
		assert.Error(t, err)
	})
}

func TestIncrementalDump(t *testing.T) {
	t.Parallel()
	j := getTestJournal(t, WithEdgePolicy(EdgeReplace))
	nodes := chain(t, j, 2)
	require.NoError(t, j.Dump(false))

	// A stale file is left alone unless the dump is forced.
	marker := filepath.Join(j.Dir(), "node0", stateFile)
	require.NoError(t, os.WriteFile(marker, []byte("{}"), 0o644))
	require.NoError(t, j.Dump(false))
	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	require.NoError(t, j.Dump(true))
	data, err = os.ReadFile(marker)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title": "Step"`)

	// Retargeted edges are rewritten on the next incremental dump.
	third := j.NewNode(newState("Other", 255))
	j.Record(nodes[0], third, nodes[0].State.Actions[0])
	require.NoError(t, j.Dump(false))
	data, err = os.ReadFile(filepath.Join(j.Dir(), "node0", "edge0", edgeFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tail": "node2"`)
}

func TestDumpReplacesPreviousSession(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	previous := New(dir, globalFixture.Engine, globalFixture.Logger)
	old := []*Node{
		previous.NewNode(newState("Old session", 10, "Open")),
		previous.NewNode(newState("Old dialog", 60, "Apply")),
		previous.NewNode(newState("Old settings", 120)),
	}
	previous.Record(old[0], old[1], old[0].State.Actions[0])
	previous.Record(old[1], old[2], old[1].State.Actions[0])
	require.NoError(t, previous.Dump(false))
	require.DirExists(t, filepath.Join(dir, "node2"))

	current := New(dir, globalFixture.Engine, globalFixture.Logger)
	first := current.NewNode(newState("New session", 200, "Next"))
	second := current.NewNode(newState("New wizard", 240))
	current.Record(first, second, first.State.Actions[0])
	require.NoError(t, current.Dump(false))

	loaded, err := Load(dir, globalFixture.Engine, globalFixture.Logger)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len(), "nodes of the previous session must be gone")
	assert.Equal(t, "New session", loaded.Node(0).State.Window.Title)
	assert.Equal(t, "New wizard", loaded.Node(1).State.Window.Title)
	require.Len(t, loaded.Node(0).Edges, 1)
	assert.Equal(t, "Next", loaded.Node(0).Edges[0].Action.Text())
	assert.Empty(t, loaded.Node(1).Edges)

	// A reloaded journal keeps its own dump on the next incremental pass.
	require.NoError(t, loaded.Dump(false))
	again, err := Load(dir, globalFixture.Engine, globalFixture.Logger)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Len())
}

func TestRender(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	j := getTestJournal(t)
	nodes := chain(t, j, 2)
	j.SetCurrent(nodes[1])

	t.Run("should render dot", func(t *testing.T) {
		path, err := j.Render(ctx, FormatDOT)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(j.Dir(), "journal.dot"), path)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "digraph journal {")
		assert.Contains(t, string(data), `node0 -> node1 [label="Next"];`)
		assert.Contains(t, string(data), `image="node0/window.png"`)
		assert.FileExists(t, filepath.Join(j.Dir(), "node1", stateFile), "render must dump first")
	})

	t.Run("should render mermaid", func(t *testing.T) {
		path, err := j.Render(ctx, FormatMermaid)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "graph TD\n")
		assert.Contains(t, string(data), `node0(("Step : 0"))`)
		assert.Contains(t, string(data), `node0 -- "Next" --> node1`)
		assert.Contains(t, string(data), "class node1 current;")
	})

	t.Run("should reject unknown formats", func(t *testing.T) {
		_, err := j.Render(ctx, "svg")
		assert.Error(t, err)
	})
}

func TestCropMatchesActionImage(t *testing.T) {
	t.Parallel()
	s := newState("Crop", 0, "OK")
	s.Window.Image.(*image.Gray).SetGray(5, 31, color.Gray{Y: 255})
	crop := s.ActionImage(s.Actions[0])
	assert.Equal(t, image.Rect(0, 0, 10, 10), crop.Bounds())
	r, _, _, _ := crop.At(1, 1).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

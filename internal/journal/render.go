package journal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	FormatDOT     = "dot"
	FormatMermaid = "mermaid"
)

// Exporter writes a journal in a format meant for people.
type Exporter interface {
	// Extension is the file extension of the rendered file, without the dot.
	Extension() string
	Export(w io.Writer, j *Journal) error
}

// Render dumps the journal, then writes it through the exporter registered for
// format. It returns the path of the rendered file.
func (j *Journal) Render(ctx context.Context, format string) (string, error) {
	exporter, ok := j.exporters[format]
	if !ok {
		return "", fmt.Errorf("unsupported render format %q", format)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := j.Dump(false); err != nil {
		return "", err
	}

	path := filepath.Join(j.dir, "journal."+exporter.Extension())
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := exporter.Export(w, j); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to render journal as %s: %w", format, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	j.logger.Debug("Journal rendered", zap.String("format", format), zap.String("path", path))
	return path, nil
}

// DOTExporter writes a Graphviz digraph. Node and edge images are referenced
// by their path in the dumped journal.
type DOTExporter struct{}

func (DOTExporter) Extension() string { return "dot" }

func (DOTExporter) Export(w io.Writer, j *Journal) error {
	var sb strings.Builder
	sb.WriteString("// MrMurphy's Travel Journal\n")
	sb.WriteString("digraph journal {\n")
	sb.WriteString("\tgraph [dpi=72 rankdir=TB bgcolor=white];\n")
	sb.WriteString("\tnode [shape=rectangle];\n")

	for _, n := range j.Nodes() {
		fmt.Fprintf(&sb, "\t%s [label=%s", nodeDirName(n.Index), strconv.Quote(n.String()))
		if n.State.Window.Image != nil && n.dir != "" {
			fmt.Fprintf(&sb, " image=%s", strconv.Quote(filepath.Join(nodeDirName(n.Index), windowFile)))
		}
		sb.WriteString("];\n")
	}
	for _, n := range j.Nodes() {
		for _, e := range n.Edges {
			fmt.Fprintf(&sb, "\t%s -> %s [label=%s];\n",
				nodeDirName(e.Head), nodeDirName(e.Tail), strconv.Quote(e.Action.Text()))
		}
	}
	sb.WriteString("}\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// MermaidExporter writes a Mermaid flowchart. The initial node is drawn as a
// circle and the current node is highlighted.
type MermaidExporter struct{}

func (MermaidExporter) Extension() string { return "mmd" }

func (MermaidExporter) Export(w io.Writer, j *Journal) error {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, n := range j.Nodes() {
		opener, closer := "[", "]"
		if n.Index == 0 {
			opener, closer = "((", "))"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", nodeDirName(n.Index), opener, mermaidText(n.String()), closer)
	}
	for _, n := range j.Nodes() {
		for _, e := range n.Edges {
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n",
				nodeDirName(e.Head), mermaidText(e.Action.Text()), nodeDirName(e.Tail))
		}
	}

	if current := j.Current(); current != nil {
		sb.WriteString("\n    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		fmt.Fprintf(&sb, "    class %s current;\n", nodeDirName(current.Index))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func mermaidText(s string) string {
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.ReplaceAll(s, "\n", " ")
}

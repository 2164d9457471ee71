// Package drawer renders a pipe's brick chain as a Graphviz DOT graph.
package drawer

import (
	"fmt"
	"io"
	"os"
	"text/template"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1" //nolint

	"github.com/brickflow/brickflow/brick"
	"github.com/brickflow/brickflow/pipe"
)

const maxRGB = 240

// Drawer builds a directed graph of a pipe's bricks and renders it as DOT.
type Drawer struct {
	graph graph.Graph[string, string]
}

// New creates an empty drawer
func New() *Drawer {
	return &Drawer{
		graph: graph.New(graph.StringHash, graph.Directed()),
	}
}

// AddPipe adds all bricks of a pipe as a vertex chain. Vertices carry the
// brick's position so the same brick name can appear more than once.
func (d *Drawer) AddPipe(p *pipe.Pipe) error {
	bricks := p.Bricks()

	previous := ""
	for i, b := range bricks {
		name := vertexName(i, b)

		fill, err := chainColor(i, len(bricks))
		if err != nil {
			return errors.Wrap(err, "unable to get colour")
		}

		err = d.graph.AddVertex(name,
			graph.VertexAttribute("shape", "box"),
			graph.VertexAttribute("style", "filled"),
			graph.VertexAttribute("fontcolor", "white"),
			graph.VertexAttribute("fillcolor", fill),
			graph.VertexAttribute("xlabel", string(b.Kind())),
		)
		if err != nil {
			return errors.Wrapf(err, "unable to add vertex %s", name)
		}

		if previous != "" {
			if err := d.graph.AddEdge(previous, name); err != nil {
				return errors.Wrapf(err, "unable to add edge from %s to %s", previous, name)
			}
		}
		previous = name
	}

	return nil
}

// Render writes the graph as DOT to the given writer
func (d *Drawer) Render(w io.Writer) error {
	return dot(d.graph, w)
}

// RenderFile writes the graph as DOT to a file
func (d *Drawer) RenderFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create file %s", path)
	}
	defer file.Close()

	if err := d.Render(file); err != nil {
		return errors.Wrapf(err, "unable to render dot file %s", path)
	}
	return nil
}

func vertexName(index int, b brick.Brick) string {
	return fmt.Sprintf("%d: %s", index, b.Name())
}

// chainColor shades vertices from blue at the head of the chain to red at
// the tail
func chainColor(index, total int) (string, error) {
	fraction := 0.0
	if total > 1 {
		fraction = float64(index) / float64(total-1)
	}

	red := maxRGB * fraction
	blue := -maxRGB*fraction + maxRGB

	c, err := colors.RGB(uint8(red), 0, uint8(blue)) //nolint
	if err != nil {
		return "", errors.Wrap(err, "unable to get colour")
	}
	return c.ToHEX().String(), nil
}

//nolint:lll //this is a template
const dotTemplate = `strict {{.GraphType}} {
	{{range $k, $v := .Attributes}}
		{{$k}}="{{$v}}";
	{{end}}
	{{range $s := .Statements}}
		"{{.Source}}" {{if .Target}}{{$.EdgeOperator}} "{{.Target}}" [ {{range $k, $v := .EdgeAttributes}}{{$k}}="{{$v}}", {{end}} weight={{.EdgeWeight}} ]{{else}}[ {{range $k, $v := .HTMLAttributes}}{{$k}}={{$v}}, {{end}} {{range $k, $v := .SourceAttributes}}{{$k}}="{{$v}}", {{end}} weight={{.SourceWeight}} ]{{end}};
	{{end}}
	}
	`

type description struct {
	GraphType    string
	Attributes   map[string]string
	EdgeOperator string
	Statements   []statement
}

type statement struct {
	Source           interface{}
	Target           interface{}
	SourceAttributes map[string]string
	HTMLAttributes   map[string]string
	EdgeAttributes   map[string]string
	SourceWeight     int
	EdgeWeight       int
}

func dot[K comparable, T any](g graph.Graph[K, T], w io.Writer, options ...func(*description)) error {
	desc, err := generateDOT(g, options...)
	if err != nil {
		return fmt.Errorf("failed to generate DOT description: %w", err)
	}

	return renderDOT(w, desc)
}

// GraphAttribute is a functional option for the DOT rendering.
func GraphAttribute(key, value string) func(*description) {
	return func(d *description) {
		d.Attributes[key] = value
	}
}

func generateDOT[K comparable, T any](g graph.Graph[K, T], options ...func(*description)) (description, error) {
	desc := description{
		GraphType:    "graph",
		Attributes:   make(map[string]string),
		EdgeOperator: "--",
		Statements:   make([]statement, 0),
	}

	for _, option := range options {
		option(&desc)
	}

	if g.Traits().IsDirected {
		desc.GraphType = "digraph"
		desc.EdgeOperator = "->"
	}

	adjacencyMap, err := g.AdjacencyMap()
	if err != nil {
		return desc, errors.Wrap(err, "unable to get adjacency map")
	}

	for vertex, adjacencies := range adjacencyMap {
		_, sourceProperties, err := g.VertexWithProperties(vertex)
		if err != nil {
			return desc, errors.Wrap(err, "unable to get vertex properties")
		}

		htmlAttributes := make(map[string]string)
		if xlabel, ok := sourceProperties.Attributes["xlabel"]; ok {
			htmlAttributes["label"] = fmt.Sprintf(`<%+v <BR /> <FONT POINT-SIZE="12">%s</FONT>>`, vertex, xlabel)
			delete(sourceProperties.Attributes, "xlabel")
		}

		stmt := statement{
			Source:           vertex,
			SourceWeight:     sourceProperties.Weight,
			SourceAttributes: sourceProperties.Attributes,
			HTMLAttributes:   htmlAttributes,
		}
		desc.Statements = append(desc.Statements, stmt)

		for adjacency, edge := range adjacencies {
			stmt := statement{
				Source:         vertex,
				Target:         adjacency,
				EdgeWeight:     edge.Properties.Weight,
				EdgeAttributes: edge.Properties.Attributes,
			}
			desc.Statements = append(desc.Statements, stmt)
		}
	}

	return desc, nil
}

func renderDOT(w io.Writer, desc description) error {
	tpl, err := template.New("dotTemplate").Parse(dotTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tpl.Execute(w, desc); err != nil {
		return errors.Wrap(err, "unable to execute template")
	}
	return nil
}

package orchestrator

import (
	"context"

	"github.com/sirupsen/logrus"

	"healthmate/internal/models"
)

// Terminal is the route a stage returns when the run is complete.
const Terminal = "__terminal__"

// StageFunc is one unit of graph work. It reads and rewrites the
// request-scoped context and returns the route to follow next. An error
// means the stage could not complete and the run falls back and terminates.
type StageFunc func(ctx context.Context, rc *models.RequestContext) (string, error)

type stage struct {
	name  string
	run   StageFunc
	edges map[string]string
}

// Graph is a fixed acyclic arrangement of named stages with data-driven
// routing. Graphs are built once at startup and shared read-only across
// requests; the runtime unit is the RequestContext threaded through Run.
type Graph struct {
	name         string
	entry        string
	defaultStage string
	stages       map[string]*stage
	order        []string
	fieldSchema  []string
	fallback     map[string]any
	log          *logrus.Entry
}

// NewGraph starts a graph definition. The field schema and fallback record
// define the shape every run of this graph resolves to.
func NewGraph(name string, fieldSchema []string, fallback map[string]any) *Graph {
	return &Graph{
		name:        name,
		stages:      make(map[string]*stage),
		fieldSchema: fieldSchema,
		fallback:    fallback,
		log:         logrus.WithField("graph", name),
	}
}

// Stage registers a named stage. The first registered stage is the entry
// unless Entry overrides it.
func (g *Graph) Stage(name string, fn StageFunc) *Graph {
	g.stages[name] = &stage{name: name, run: fn, edges: make(map[string]string)}
	g.order = append(g.order, name)
	if g.entry == "" {
		g.entry = name
	}
	return g
}

// Edge maps a route value written by one stage to the next stage to run.
func (g *Graph) Edge(from, route, to string) *Graph {
	if s, ok := g.stages[from]; ok {
		s.edges[route] = to
	}
	return g
}

// Entry sets the entry stage.
func (g *Graph) Entry(name string) *Graph {
	g.entry = name
	return g
}

// Default sets the stage an unrecognized route value falls through to. One
// bad classification must not abort the request.
func (g *Graph) Default(name string) *Graph {
	g.defaultStage = name
	return g
}

// Fallback returns a fresh copy of this graph's fallback response.
func (g *Graph) Fallback() *models.NormalizedResponse {
	return &models.NormalizedResponse{Fields: cloneRecord(g.fallback), IsFallback: true}
}

// FieldSchema returns the field names every run of this graph resolves to.
func (g *Graph) FieldSchema() []string {
	return g.fieldSchema
}

// Run executes the graph until a stage reports Terminal. It always leaves
// rc.Response set: a stage failure or an exhausted hop budget resolves to
// the fallback record instead of an error. Runs take at most one hop per
// registered stage.
func (g *Graph) Run(ctx context.Context, rc *models.RequestContext) *models.NormalizedResponse {
	current := g.entry
	for hop := 0; hop < len(g.stages); hop++ {
		st, ok := g.stages[current]
		if !ok {
			g.log.WithField("stage", current).Error("route to unregistered stage")
			break
		}

		route, err := st.run(ctx, rc)
		if err != nil {
			g.log.WithError(err).WithField("stage", current).Warn("stage failed, falling back")
			break
		}
		if route == Terminal {
			if rc.Response == nil {
				rc.Response = g.Fallback()
			}
			return rc.Response
		}

		next, ok := st.edges[route]
		if !ok {
			next = g.defaultStage
			g.log.WithFields(logrus.Fields{
				"stage": current,
				"route": route,
			}).Debug("unknown route, using default stage")
		}
		if next == "" {
			g.log.WithField("stage", current).Warn("no default stage for unknown route")
			break
		}
		current = next
	}

	rc.Response = g.Fallback()
	return rc.Response
}

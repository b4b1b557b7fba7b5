package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Workflow is the compiled video graph:
//
//	START -> ingest_video -> summarize_video [-> classify_video] -> persist_summary -> END
//	START -> answer_question -> END
type Workflow struct {
	graph *CompiledGraph[*VideoState]
}

// New builds the graph. classify_video is only wired when a Classifier is set.
func New(deps Deps) (*Workflow, error) {
	if deps.Generator == nil || deps.Vectors == nil || deps.Splitter == nil {
		return nil, errors.New("workflow needs a generator, a vector store and a splitter")
	}
	n := &nodes{Deps: deps}

	g := NewGraph[*VideoState]().
		AddNode(NodeIngestVideo, n.ingestVideo).
		AddNode(NodeSummarizeVideo, n.summarizeVideo).
		AddNode(NodePersistSummary, n.persistSummary).
		AddNode(NodeAnswerQuestion, n.answerQuestion).
		AddConditionalEdges(GraphStart, Route, map[string]string{
			NodeIngestVideo:    NodeIngestVideo,
			NodeAnswerQuestion: NodeAnswerQuestion,
		}).
		AddEdge(NodeIngestVideo, NodeSummarizeVideo).
		AddEdge(NodePersistSummary, GraphEnd).
		AddEdge(NodeAnswerQuestion, GraphEnd)

	if deps.Classifier != nil {
		g.AddNode(NodeClassifyVideo, n.classifyVideo).
			AddEdge(NodeSummarizeVideo, NodeClassifyVideo).
			AddEdge(NodeClassifyVideo, NodePersistSummary)
	} else {
		g.AddEdge(NodeSummarizeVideo, NodePersistSummary)
	}

	cg, err := g.Compile()
	if err != nil {
		return nil, err
	}
	return &Workflow{graph: cg}, nil
}

// Run executes one pass over state and returns the nodes visited.
func (w *Workflow) Run(ctx context.Context, state *VideoState) ([]string, error) {
	start := time.Now()
	path, err := w.graph.Run(ctx, state)
	evt := log.Debug()
	if err != nil {
		evt = log.Warn().Err(err)
	}
	evt.Str("video", state.VideoName).
		Strs("path", path).
		Dur("duration", time.Since(start)).
		Msg("Workflow finished")
	return path, err
}

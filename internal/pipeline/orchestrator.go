// Package pipeline runs a chat turn end to end: classification, map
// building, reasoning, reply composition and the single atomic persist.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clearity-app/clearity/internal/apperrors"
	"github.com/clearity-app/clearity/internal/llm"
	"github.com/clearity-app/clearity/internal/mapbuilder"
	"github.com/clearity-app/clearity/internal/memory"
	"github.com/clearity-app/clearity/internal/metrics"
	"github.com/clearity-app/clearity/internal/mindmap"
	"github.com/clearity-app/clearity/internal/prompts"
	"github.com/clearity-app/clearity/internal/reasoning"
	"github.com/clearity-app/clearity/internal/requestid"
	"github.com/clearity-app/clearity/internal/store"
)

// Config tunes the orchestrator.
type Config struct {
	HistoryWindow int
}

// TurnRequest is one user message addressed to a session. An empty SessionID
// starts a new session.
type TurnRequest struct {
	UserID    string
	SessionID string
	Message   string
}

// TurnResult is everything a turn produced.
type TurnResult struct {
	SessionID  string              `json:"session_id"`
	Reply      string              `json:"reply"`
	Graph      *mindmap.Graph      `json:"mindmap,omitempty"`
	Analysis   *reasoning.Analysis `json:"analysis,omitempty"`
	Emotion    string              `json:"emotion"`
	Intensity  string              `json:"emotion_intensity"`
	Degraded   bool                `json:"degraded"`
	NewSession bool                `json:"new_session"`
}

// Orchestrator coordinates the turn pipeline. Turns on the same session are
// serialized; different sessions run concurrently.
type Orchestrator struct {
	store    *store.Store
	provider llm.Provider
	builder  *mapbuilder.Builder
	engine   *reasoning.Engine
	memories *memory.Manager
	prompts  *prompts.Prompts
	metrics  *metrics.Metrics
	cfg      Config
	locks    *sessionLocks
	logger   zerolog.Logger
}

// New wires the orchestrator. provider may be nil; every provider-backed
// stage then runs its fallback.
func New(st *store.Store, provider llm.Provider, builder *mapbuilder.Builder,
	engine *reasoning.Engine, memories *memory.Manager, p *prompts.Prompts,
	m *metrics.Metrics, cfg Config, logger zerolog.Logger) *Orchestrator {

	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 15
	}
	if p == nil {
		p = prompts.Default()
	}
	return &Orchestrator{
		store:    st,
		provider: provider,
		builder:  builder,
		engine:   engine,
		memories: memories,
		prompts:  p,
		metrics:  m,
		cfg:      cfg,
		locks:    newSessionLocks(),
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}
}

// HandleTurn runs one full turn. Provider failures degrade the turn but
// never fail it; persistence failures fail it and nothing is written.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, apperrors.ErrEmptyMessage
	}
	if req.UserID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	sessionID := req.SessionID
	isNew := sessionID == ""
	if isNew {
		sessionID = uuid.New().String()
	}

	unlock := o.locks.acquire(sessionID)
	defer unlock()

	logger := o.logger.With().Str("session_id", sessionID).Logger()
	if rid := requestid.FromContext(ctx); rid != "" {
		logger = logger.With().Str("request_id", rid).Logger()
	}
	degraded := false

	var history []store.Message
	var prior *mindmap.Graph
	if !isNew {
		sess, err := o.store.GetSession(ctx, sessionID)
		if err != nil {
			o.recordTurn("failed")
			return nil, err
		}
		if sess.UserID != req.UserID {
			o.recordTurn("failed")
			return nil, apperrors.ErrNotFound
		}
		if history, err = o.store.RecentMessages(ctx, sessionID, o.cfg.HistoryWindow); err != nil {
			o.recordTurn("failed")
			return nil, err
		}
		prior, err = o.store.GetGraphBySession(ctx, sessionID)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			o.recordTurn("failed")
			return nil, err
		}
	}

	// Snapshot memory is only pulled in when a session starts, so returning
	// users get continuity without every turn paying for it.
	var memoryBlock string
	if len(history) == 0 && o.memories != nil {
		snaps, err := o.memories.RetrieveRecent(ctx, req.UserID)
		if err != nil {
			logger.Warn().Err(err).Msg("snapshot retrieval failed, continuing without memory")
		} else {
			memoryBlock = memory.FormatForPrompt(snaps)
		}
	}

	cls, clsDegraded := o.stage1(ctx, message, history)
	degraded = degraded || clsDegraded

	graph, buildDegraded, err := o.stage2(ctx, prior, message, cls, memoryBlock, logger)
	if err != nil {
		o.recordTurn("failed")
		return nil, err
	}
	degraded = degraded || buildDegraded

	analysis, err := o.stage3(ctx, graph, message, cls, memoryBlock)
	if err != nil {
		o.recordTurn("failed")
		return nil, err
	}

	reply, replyDegraded := o.composeReply(ctx, message, cls, graph, analysis, memoryBlock, history)
	degraded = degraded || replyDegraded

	emotion := graphEmotion(graph, prior)

	err = o.persistTurn(ctx, req, sessionID, isNew, message, reply, graph, analysis, emotion, cls)
	if err != nil {
		o.recordTurn("failed")
		return nil, err
	}
	if o.memories != nil {
		o.memories.Invalidate(req.UserID)
	}
	if o.metrics != nil {
		o.metrics.AddTasks(len(analysis.Tasks))
		o.metrics.SnapshotsWritten.Inc()
	}

	outcome := "ok"
	if degraded {
		outcome = "degraded"
	}
	o.recordTurn(outcome)
	logger.Info().
		Bool("degraded", degraded).
		Int("tasks", len(analysis.Tasks)).
		Str("emotion", emotion).
		Msg("turn complete")

	return &TurnResult{
		SessionID:  sessionID,
		Reply:      reply,
		Graph:      graph,
		Analysis:   analysis,
		Emotion:    emotion,
		Intensity:  cls.EmotionIntensity,
		Degraded:   degraded,
		NewSession: isNew,
	}, nil
}

func (o *Orchestrator) stage1(ctx context.Context, message string, history []store.Message) (Classification, bool) {
	defer o.observeStage("classify")()
	return o.classify(ctx, message, history)
}

// stage2 builds or updates the graph. A failed build keeps the prior graph;
// the turn continues degraded.
func (o *Orchestrator) stage2(ctx context.Context, prior *mindmap.Graph, message string,
	cls Classification, memoryBlock string, logger zerolog.Logger) (*mindmap.Graph, bool, error) {

	defer o.observeStage("map_build")()

	if o.builder == nil || o.provider == nil {
		return prior, true, nil
	}
	graph, err := o.builder.BuildOrUpdate(ctx, prior, mapbuilder.Input{
		UserMessage: message,
		Emotion:     cls.Emotion,
		Intensity:   cls.EmotionIntensity,
		Summary:     cls.Summary,
		Memories:    memoryBlock,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		if !apperrors.IsRecoverable(err) {
			return nil, false, err
		}
		o.recordProviderError("map_build", err)
		logger.Warn().Err(err).Msg("map build failed, keeping prior graph")
		return prior, true, nil
	}
	return graph, false, nil
}

func (o *Orchestrator) stage3(ctx context.Context, g *mindmap.Graph, message string,
	cls Classification, memoryBlock string) (*reasoning.Analysis, error) {

	defer o.observeStage("reasoning")()

	if o.engine == nil {
		return reasoning.Empty(), nil
	}
	return o.engine.Analyze(ctx, g, reasoning.Signal{
		UserMessage: message,
		Emotion:     cls.Emotion,
		Intensity:   cls.EmotionIntensity,
		Summary:     memoryBlock + cls.Summary,
	})
}

// persistTurn writes everything the turn produced in one transaction.
func (o *Orchestrator) persistTurn(ctx context.Context, req TurnRequest, sessionID string,
	isNew bool, message, reply string, g *mindmap.Graph, a *reasoning.Analysis,
	emotion string, cls Classification) error {

	defer o.observeStage("persist")()

	title := sessionTitle(g, message)
	return o.store.WithinTx(ctx, func(tx *store.Store) error {
		if isNew {
			if err := tx.CreateSession(ctx, &store.Session{
				ID:     sessionID,
				UserID: req.UserID,
				Title:  title,
			}); err != nil {
				return err
			}
		} else if err := tx.TouchSession(ctx, sessionID, title); err != nil {
			return err
		}

		if err := tx.AddMessage(ctx, &store.Message{
			SessionID: sessionID,
			Role:      llm.RoleUser,
			Content:   message,
		}); err != nil {
			return err
		}
		if g != nil {
			if err := tx.SaveGraph(ctx, sessionID, g); err != nil {
				return err
			}
		}
		if err := tx.SaveAnalysis(ctx, sessionID, a); err != nil {
			return err
		}
		if err := tx.AddMessage(ctx, &store.Message{
			SessionID: sessionID,
			Role:      llm.RoleAssistant,
			Content:   reply,
		}); err != nil {
			return err
		}
		return tx.SaveSnapshot(ctx, &memory.Snapshot{
			UserID:    req.UserID,
			SessionID: sessionID,
			Payload:   memory.BuildPayload(g, a, emotion, cls.Summary),
		})
	})
}

// graphEmotion is the turn's emotion metadata: the most common emotion among
// the visible nodes this turn created or changed, higher-severity emotion
// winning ties. A turn that left the map untouched falls back to the whole
// map; grey when the map is empty or says nothing.
func graphEmotion(g, prior *mindmap.Graph) string {
	if g == nil || len(g.Nodes) == 0 {
		return string(mindmap.EmotionGrey)
	}
	nodes := touchedNodes(g, prior)
	if len(nodes) == 0 {
		nodes = make([]*mindmap.Node, 0, len(g.Nodes))
		for i := range g.Nodes {
			nodes = append(nodes, &g.Nodes[i])
		}
	}

	counts := map[mindmap.Emotion]int{}
	topSeverity := map[mindmap.Emotion]int{}
	for _, n := range nodes {
		if !n.Visible || n.Emotion == "" || n.Emotion == mindmap.EmotionGrey {
			continue
		}
		counts[n.Emotion]++
		if r := mindmap.SeverityRank(n.IssueSeverity); r > topSeverity[n.Emotion] {
			topSeverity[n.Emotion] = r
		}
	}

	best := mindmap.EmotionGrey
	bestCount := 0
	for e, c := range counts {
		switch {
		case c > bestCount:
			best, bestCount = e, c
		case c == bestCount && topSeverity[e] > topSeverity[best]:
			best = e
		}
	}
	return string(best)
}

// touchedNodes returns the nodes that differ from the pre-turn graph. Nil on
// a first turn or when the turn kept the prior graph unchanged.
func touchedNodes(g, prior *mindmap.Graph) []*mindmap.Node {
	if prior == nil || g == prior {
		return nil
	}
	var out []*mindmap.Node
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if p := prior.NodeByID(n.ID); p == nil || nodeChanged(p, n) {
			out = append(out, n)
		}
	}
	return out
}

func nodeChanged(before, after *mindmap.Node) bool {
	return before.Label != after.Label ||
		before.Emotion != after.Emotion ||
		before.Clarity != after.Clarity ||
		before.IssueSeverity != after.IssueSeverity ||
		before.ImportanceScore != after.ImportanceScore ||
		before.IsCoreIssue != after.IsCoreIssue ||
		before.Visible != after.Visible
}

func sessionTitle(g *mindmap.Graph, message string) string {
	if g != nil && g.MapName != "" {
		return g.MapName
	}
	if len(message) > 60 {
		return message[:57] + "..."
	}
	return message
}

func (o *Orchestrator) observeStage(stage string) func() {
	start := time.Now()
	return func() {
		if o.metrics != nil {
			o.metrics.ObserveStage(stage, time.Since(start).Seconds())
		}
	}
}

func (o *Orchestrator) recordTurn(outcome string) {
	if o.metrics != nil {
		o.metrics.RecordTurn(outcome)
	}
}

func (o *Orchestrator) recordProviderError(stage string, err error) {
	var pe *apperrors.ProviderError
	kind := "unknown"
	if errors.As(err, &pe) {
		kind = string(pe.Kind)
	}
	if o.metrics != nil {
		o.metrics.RecordProviderError(kind)
	}
	o.logger.Warn().Str("stage", stage).Err(err).Msg("provider error")
}

// Package orchestrator is the facade (§4.1) that assembles the request
// limiter, event emitter/stream pump, context manager, LLM invoker, tool
// executor, and round loop into the three operations a caller sees: run,
// stream, and build_system_prompt. Grounded on the teacher's
// internal/service/llm/streaming/service.go's Service.CreateTurn — request
// preparation before a transaction, provider/tool-registry assembly,
// constructing and registering the executor before any background work
// starts so a client can always connect — generalized from its turn/chat
// persistence model to this spec's stateless-between-calls request shape.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"orchestrion/internal/apperr"
	"orchestrion/internal/config"
	"orchestrion/internal/ctxmgr"
	"orchestrion/internal/domain/models"
	"orchestrion/internal/domain/repositories"
	"orchestrion/internal/llm"
	"orchestrion/internal/modelconfig"
	"orchestrion/internal/monitor"
	"orchestrion/internal/round"
	"orchestrion/internal/stream"
	"orchestrion/internal/tools"
	"orchestrion/internal/tools/builtin"
	"orchestrion/internal/tools/mcp"
)

const defaultLanguage = "en"

// Orchestrator wires every subsystem the spec names into the three facade
// operations.
type Orchestrator struct {
	storage  repositories.Storage
	monitor  monitor.Sink
	ctxmgr   *ctxmgr.Manager
	invoker  *llm.Invoker
	executor *tools.Executor
	limiter  sessionLimiter
	round    *round.Loop

	modelRegistry *modelconfig.Registry
	builtins      *builtin.Registry
	mcpClient     *mcp.Client
	tunables      config.Tunables
	streamCfg     stream.Config
	defaultCfg    DefaultLLMConfig
	toolCatalog   []builtinDescriptor
	logger        *slog.Logger
}

// sessionLimiter is the slice of limiter.Limiter the facade needs directly
// (Acquire/Release); Touch is consumed by round.Loop itself.
type sessionLimiter interface {
	Acquire(ctx context.Context, sessionID, userID, agentID string, allowQueue bool) (bool, error)
	Touch(ctx context.Context, sessionID string)
	Release(ctx context.Context, sessionID string)
}

// Deps bundles every collaborator New needs. Each field mirrors one of the
// component-design sections wired behind it.
type Deps struct {
	Storage       repositories.Storage
	Monitor       monitor.Sink
	CtxMgr        *ctxmgr.Manager
	Invoker       *llm.Invoker
	Executor      *tools.Executor
	Limiter       sessionLimiter
	ModelRegistry *modelconfig.Registry
	Builtins      *builtin.Registry
	MCPClient     *mcp.Client
	Tunables      config.Tunables
	StreamConfig  stream.Config
	DefaultConfig DefaultLLMConfig
	ToolCatalog   []builtinDescriptor
	Logger        *slog.Logger
}

func New(d Deps) *Orchestrator {
	loop := round.New(d.CtxMgr, d.Invoker, d.Executor, d.Limiter, d.Monitor, d.Tunables, d.Logger)
	return &Orchestrator{
		storage:       d.Storage,
		monitor:       d.Monitor,
		ctxmgr:        d.CtxMgr,
		invoker:       d.Invoker,
		executor:      d.Executor,
		limiter:       d.Limiter,
		round:         loop,
		modelRegistry: d.ModelRegistry,
		builtins:      d.Builtins,
		mcpClient:     d.MCPClient,
		tunables:      d.Tunables,
		streamCfg:     d.StreamConfig,
		defaultCfg:    d.DefaultConfig,
		toolCatalog:   d.ToolCatalog,
		logger:        d.Logger,
	}
}

// prepareRequest implements §4.1 "Request preparation": validates, assigns
// a session id, and defaults stream/language. Workspace-id resolution via a
// user-agent store is a Non-goal here — that store is one of this core's
// external collaborators (§1) and isn't modeled; AgentID passes through
// unresolved.
func prepareRequest(req models.Request) (models.Request, error) {
	if err := validateRequest(req); err != nil {
		return req, err
	}
	if strings.TrimSpace(req.SessionID) == "" {
		req.SessionID = uuid.NewString()
	}
	if strings.TrimSpace(req.Language) == "" {
		req.Language = defaultLanguage
	}
	if req.Stream == nil {
		defaultStream := true
		req.Stream = &defaultStream
	}
	return req, nil
}

// isDefaultMode reports whether a2ui has NOT been explicitly requested.
// §4.7 step 3 distinguishes "default mode" (drops a2ui) from a mode where
// a2ui is allowed; since Request carries no separate mode field, the
// signal this core uses is whether the caller's tool_names explicitly asked
// for a2ui — an empty or a2ui-less tool_names list is the default mode.
func isDefaultMode(toolNames []string) bool {
	for _, n := range toolNames {
		if n == "a2ui" {
			return false
		}
	}
	return true
}

// Run implements `run(request) → response`, the non-streaming operation.
func (o *Orchestrator) Run(ctx context.Context, req models.Request) (models.Response, error) {
	prepared, err := prepareRequest(req)
	if err != nil {
		return models.Response{}, err
	}

	acquired, err := o.limiter.Acquire(ctx, prepared.SessionID, prepared.UserID, prepared.AgentID, prepared.AllowQueue)
	if err != nil {
		return models.Response{}, apperr.Wrap(apperr.InternalError, "acquire session lock", err)
	}
	if !acquired {
		return models.Response{}, apperr.New(apperr.UserBusy, "a request for this session is already in flight")
	}
	defer o.limiter.Release(context.Background(), prepared.SessionID)

	emitter, finish := o.newEmitter(ctx, prepared)
	defer finish()

	resp, err := o.runLoop(context.Background(), prepared, emitAdapter(emitter))
	if err != nil {
		o.emitTerminalError(ctx, emitter, err)
		return models.Response{}, err
	}
	o.emitFinal(ctx, emitter, resp)
	return resp, nil
}

// Stream implements `stream(request) → sequence<StreamEvent>`. It returns a
// channel of wire events; the terminal event is always `final` or `error`.
// The round loop and its stream pump run detached from ctx (background
// work survives the caller disconnecting, per §5's scheduling model) —
// ctx only gates request preparation and lock acquisition.
func (o *Orchestrator) Stream(ctx context.Context, req models.Request) (<-chan models.WireEvent, error) {
	prepared, err := prepareRequest(req)
	if err != nil {
		return nil, err
	}

	acquired, err := o.limiter.Acquire(ctx, prepared.SessionID, prepared.UserID, prepared.AgentID, prepared.AllowQueue)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "acquire session lock", err)
	}
	if !acquired {
		return nil, apperr.New(apperr.UserBusy, "a request for this session is already in flight")
	}

	emitter, finish := o.newEmitter(ctx, prepared)
	pump := stream.NewPump(prepared.SessionID, emitter.Queue(), o.storage, o.logger, o.streamCfg, o.startOffset(ctx, prepared.SessionID))

	out := make(chan models.WireEvent, o.streamCfg.QueueSize)
	go func() {
		defer o.limiter.Release(context.Background(), prepared.SessionID)
		pump.Run(context.Background(), out)
	}()

	go func() {
		defer finish()
		bg := context.Background()
		resp, err := o.runLoop(bg, prepared, emitAdapter(emitter))
		if err != nil {
			o.emitTerminalError(bg, emitter, err)
			return
		}
		o.emitFinal(bg, emitter, resp)
	}()

	return out, nil
}

// BuildSystemPrompt implements `build_system_prompt(request-like) → string`:
// a side-effect-free preview of the prompt the round loop would actually
// send, including the textual tool catalog a prompt-based round appends.
func (o *Orchestrator) BuildSystemPrompt(req models.Request) string {
	catalog := availableTools(o.toolCatalog, o.mcpClient)
	allowed := filterAllowedForPreview(catalog, req.ToolNames, isDefaultMode(req.ToolNames))

	var b strings.Builder
	b.WriteString(req.AgentPrompt)
	if len(allowed) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Available tools:\n")
		for _, t := range allowed {
			b.WriteString(fmt.Sprintf("- %s: %s\n", t.Name, t.Description))
		}
	}
	return b.String()
}

// emitAdapter discards stream.Emitter.Emit's return value so it satisfies
// round.EmitFunc's signature.
func emitAdapter(emitter *stream.Emitter) round.EmitFunc {
	return func(ctx context.Context, eventType string, data interface{}, r models.RoundInfo) {
		emitter.Emit(ctx, eventType, data, r)
	}
}

func (o *Orchestrator) runLoop(ctx context.Context, prepared models.Request, emit round.EmitFunc) (models.Response, error) {
	cfg := resolveLLMConfig(o.defaultCfg, prepared.ModelName, prepared.ConfigOverrides)
	caps, _ := o.modelRegistry.GetModelCapabilities(cfg.Provider, cfg.Model)

	req := round.Request{
		SessionID: prepared.SessionID,
		UserID:    prepared.UserID,
		Config:    cfg,
		CallOpts: llm.CallOptions{
			Stream:             *prepared.Stream,
			EmitEvents:         true,
			EmitQuotaEvents:    true,
			LogPayload:         prepared.DebugPayload,
			MockIfUnconfigured: true,
			RetryAttempts:      o.tunables.LLMMaxRetryAttempts,
			TimeoutSeconds:     o.tunables.DefaultLLMTimeoutS,
		},
		Messages:           []models.Message{{Role: models.RoleUser, Content: prepared.Question}},
		AvailableTools:     availableTools(o.toolCatalog, o.mcpClient),
		RequestedToolNames: prepared.ToolNames,
		DefaultMode:        isDefaultMode(prepared.ToolNames),
		SystemPromptBase:   prepared.AgentPrompt,
		UserRound:          1,
		Caps:               caps,
	}
	if prepared.SkipToolCalls {
		req.RequestedToolNames = []string{}
		req.AvailableTools = nil
	}
	return o.round.Run(ctx, req, emit)
}

func (o *Orchestrator) newEmitter(ctx context.Context, prepared models.Request) (*stream.Emitter, func()) {
	startOffset := o.startOffset(ctx, prepared.SessionID)
	emitter := stream.New(prepared.SessionID, prepared.UserID, o.storage, o.monitor, o.logger, o.streamCfg, startOffset)
	return emitter, func() { emitter.Finish(context.Background()) }
}

func (o *Orchestrator) startOffset(ctx context.Context, sessionID string) int64 {
	maxID, err := o.storage.GetMaxStreamEventID(ctx, sessionID)
	if err != nil {
		o.logger.Warn("failed to resolve stream start offset, starting from 0", "session_id", sessionID, "error", err)
		return 0
	}
	return maxID
}

func (o *Orchestrator) emitFinal(ctx context.Context, emitter *stream.Emitter, resp models.Response) {
	emitter.Emit(ctx, models.EventFinal, map[string]interface{}{
		"answer": resp.Answer, "usage": resp.Usage, "stop_reason": resp.StopReason,
	}, models.UserOnly(1))
}

func (o *Orchestrator) emitTerminalError(ctx context.Context, emitter *stream.Emitter, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Wrap(apperr.InternalError, "round loop failed", err)
	}
	emitter.Emit(ctx, models.EventError, appErr.Payload(), models.UserOnly(1))
}

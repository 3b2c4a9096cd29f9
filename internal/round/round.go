// Package round is the Round loop (§4.7): the assistant↔tool state machine
// that normalizes history, resolves the allowed tool set, calls the LLM
// invoker, dispatches any tool calls through the tool executor, and repeats
// until a terminal answer or max_rounds. Grounded on haowjy-meridian's
// internal/service/llm/streaming/mstream_adapter.go's StreamExecutor (an
// iteration counter plus a limit-enforcement branch taken once per
// completed provider turn), generalized from that file's Anthropic-block
// accumulation to the provider-agnostic llm.Invoker/tools.Executor
// boundary this module uses instead.
package round

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"orchestrion/internal/apperr"
	"orchestrion/internal/config"
	"orchestrion/internal/ctxmgr"
	"orchestrion/internal/domain/models"
	"orchestrion/internal/llm"
	"orchestrion/internal/modelconfig"
	"orchestrion/internal/monitor"
	"orchestrion/internal/tools"
	"orchestrion/internal/tracing"
)

// EmitFunc is a type alias (not a new defined type, so it stays assignable
// to internal/llm's own unexported emitFunc) for the event-emission
// callback threaded through the invoker and the round loop.
type EmitFunc = func(ctx context.Context, eventType string, data interface{}, round models.RoundInfo)

// sessionLimiter is the touch-only slice of internal/limiter.Limiter the
// round loop needs, kept as an interface to avoid an import cycle with the
// orchestrator facade that owns the full limiter.
type sessionLimiter interface {
	Touch(ctx context.Context, sessionID string)
}

// ToolDescriptor is one tool available to a round: its provider-agnostic
// function schema plus the JSON schema the tool executor validates
// arguments against before dispatch.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Request is everything one Run call needs to drive the loop to
// completion for a single user turn.
type Request struct {
	SessionID string
	UserID    string

	// Config/CallOpts are passed through to the LLM invoker each round;
	// CallOpts.System/Tools are overwritten per round by the loop itself,
	// so callers should leave them unset.
	Config   llm.Config
	CallOpts llm.CallOptions

	// Messages is the history so far, including the new user turn. The
	// loop normalizes it (§4.4) at the top of every round.
	Messages []models.Message

	// AvailableTools is every tool the session's configuration makes
	// possible; RequestedToolNames (if non-empty) further restricts that
	// to the caller's explicit allow-list (§4.7 step 3's config ∩
	// request.tool_names). Leaving RequestedToolNames empty means "every
	// available tool is allowed".
	AvailableTools      []ToolDescriptor
	RequestedToolNames  []string
	DefaultMode         bool
	ToolCallModeOverride string

	SystemPromptBase string
	UserRound        int64

	Caps *modelconfig.ModelCapabilities
}

// Loop wires the context manager, LLM invoker, and tool executor into the
// §4.7 state machine.
type Loop struct {
	ctxmgr   *ctxmgr.Manager
	invoker  *llm.Invoker
	executor *tools.Executor
	limiter  sessionLimiter
	monitor  monitor.Sink
	tunables config.Tunables
	logger   *slog.Logger
}

func New(ctxmgr *ctxmgr.Manager, invoker *llm.Invoker, executor *tools.Executor, limiter sessionLimiter, sink monitor.Sink, tunables config.Tunables, logger *slog.Logger) *Loop {
	return &Loop{ctxmgr: ctxmgr, invoker: invoker, executor: executor, limiter: limiter, monitor: sink, tunables: tunables, logger: logger}
}

// Run drives the round loop to completion: a Final state, a terminal
// tool's answer, or max_rounds exhaustion.
func (l *Loop) Run(ctx context.Context, req Request, emit EmitFunc) (models.Response, error) {
	catalog := buildCatalog(req.AvailableTools, req.RequestedToolNames, req.DefaultMode)
	mode := resolveToolCallMode(req.Caps, req.ToolCallModeOverride)
	messages := req.Messages

	maxRounds := l.tunables.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 1
	}

	var lastContent string
	var modelRound int64

	for modelRound = 1; modelRound <= int64(maxRounds); modelRound++ {
		var resp models.Response
		var done bool
		err := func() (err error) {
			roundCtx, roundSpan := tracing.StartRound(ctx, req.SessionID, req.UserRound, modelRound)
			defer tracing.End(roundSpan, &err)

			if err = l.ensureNotCancelled(req.SessionID); err != nil {
				return err
			}
			l.limiter.Touch(roundCtx, req.SessionID)

			messages = l.ctxmgr.Normalize(messages)
			roundInfo := models.NewRoundInfo(req.UserRound, modelRound)

			system := buildSystemPrompt(req.SystemPromptBase, catalog, mode)
			opts := req.CallOpts
			opts.System = system
			if mode == toolCallModeFunction {
				opts.Tools = catalog.schemas()
			}

			result, callErr := l.invoker.Call(roundCtx, req.Config, messages, req.UserID, req.SessionID, opts, roundInfo, emit)
			if callErr != nil {
				err = callErr
				return err
			}
			lastContent = result.Content

			calls, strippedContent := resolveToolCalls(result.ToolCalls, result.Content)
			if len(calls) == 0 {
				resp = models.Response{
					SessionID:  req.SessionID,
					Answer:     stripResidualToolMarkup(strippedContent),
					Usage:      &result.Usage,
					StopReason: "final",
				}
				done = true
				return nil
			}

			assistantMsg := models.Message{Role: models.RoleAssistant, Content: result.Content, ToolCalls: calls}
			messages = append(messages, assistantMsg)

			if answer, isFinal, a2ui, terminalErr := l.resolveTerminalCall(roundCtx, calls, catalog, req.SessionID, req.UserID, roundInfo, emit); terminalErr != nil {
				err = terminalErr
				return err
			} else if isFinal {
				_ = a2ui
				resp = models.Response{SessionID: req.SessionID, Answer: answer, Usage: &result.Usage, StopReason: "final"}
				done = true
				return nil
			}

			if err = l.ensureNotCancelled(req.SessionID); err != nil {
				return err
			}

			for _, call := range calls {
				if isTerminalTool(catalog.originalName(call.Name)) {
					continue
				}
				messages = l.dispatchOne(roundCtx, req.SessionID, req.UserID, call, catalog, roundInfo, emit, messages)
			}
			return nil
		}()
		if err != nil {
			return models.Response{}, err
		}
		if done {
			return resp, nil
		}
	}

	return models.Response{
		SessionID:  req.SessionID,
		Answer:     stripResidualToolMarkup(lastContent),
		StopReason: "max_rounds",
	}, nil
}

// resolveTerminalCall scans this round's parsed calls for a terminal tool
// (final_response/最终回复/a2ui) and, if present, produces the final
// answer per §4.6/§4.7 step 6. a2ui additionally emits the normalized
// a2ui event before returning.
func (l *Loop) resolveTerminalCall(ctx context.Context, calls []models.ToolCall, catalog *toolCatalog, sessionID, userID string, roundInfo models.RoundInfo, emit EmitFunc) (string, bool, []map[string]interface{}, error) {
	for _, call := range calls {
		original := catalog.originalName(call.Name)
		switch original {
		case finalResponseTool, finalResponseAlias:
			return finalAnswerFromTool(call.Args), true, nil, nil
		case a2uiTool:
			uid, messages, content := normalizeA2UI(call.Args, sessionID, userID)
			if emit != nil {
				emit(ctx, models.EventA2UI, map[string]interface{}{
					"uid": uid, "messages": messages,
				}, roundInfo)
			}
			return content, true, messages, nil
		}
	}
	return "", false, nil, nil
}

// dispatchOne executes a single non-terminal tool call (§4.7 step 7) and
// appends its observation to history.
func (l *Loop) dispatchOne(ctx context.Context, sessionID, userID string, call models.ToolCall, catalog *toolCatalog, roundInfo models.RoundInfo, emit EmitFunc, messages []models.Message) []models.Message {
	original := catalog.originalName(call.Name)
	resolvedCall := models.ToolCall{ID: call.ID, Name: original, Args: call.Args}

	if emit != nil {
		emit(ctx, models.EventToolCall, map[string]interface{}{"tool": original, "args": call.Args}, roundInfo)
	}

	toolCtx, toolSpan := tracing.StartToolExecution(ctx, sessionID, original)
	schema := catalog.validationSchema(original)
	result := l.executor.Execute(toolCtx, sessionID, resolvedCall, schema)
	var execErr error
	if result.Error != "" {
		execErr = fmt.Errorf("%s", result.Error)
	}
	tracing.End(toolSpan, &execErr)

	observation := tools.ToObservationPayload(original, result)
	if emit != nil {
		emit(ctx, models.EventToolResult, observation, roundInfo)
	}

	serialized := serializeObservation(observation)
	toolMsg := models.Message{Role: models.RoleTool, Content: serialized, ToolCallID: call.ID}
	if call.ID == nil {
		toolMsg = models.Message{Role: models.RoleUser, Content: models.ObservationPrefix + serialized}
	}
	return append(messages, toolMsg)
}

func (l *Loop) ensureNotCancelled(sessionID string) error {
	if l.monitor != nil && l.monitor.IsCancelled(sessionID) {
		return apperr.New(apperr.Cancelled, "session cancelled during round loop")
	}
	return nil
}

func serializeObservation(payload map[string]interface{}) string {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"tool":%q,"ok":false,"error":"failed to serialize observation"}`, payload["tool"])
	}
	return string(b)
}

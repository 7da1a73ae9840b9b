// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package orchestrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wingedpig/fyp/internal/config"
	"github.com/wingedpig/fyp/internal/directive"
	"github.com/wingedpig/fyp/internal/events"
	"github.com/wingedpig/fyp/internal/session"
	"github.com/wingedpig/fyp/internal/store"
	"github.com/wingedpig/fyp/internal/worktree"
)

const (
	defaultWorktreesDir = ".worktrees"

	// interruptSettle is how long a dispatch waits after sending an
	// interrupt before writing the new text.
	defaultInterruptSettle = 80 * time.Millisecond
	// stopSettle is how long cleanup waits after an interrupt before
	// escalating to SIGKILL.
	defaultStopSettle = 1500 * time.Millisecond

	// directiveQueueSize bounds the per-orchestration queue between the
	// orchestrator output watcher and the dispatch goroutine. Overflow
	// drops directives rather than blocking the PTY read pump.
	directiveQueueSize = 64

	// inputEventCap bounds the text recorded on input events.
	inputEventCap = 4000

	defaultQuestionTimeout = 2 * time.Minute
	defaultMinDeliveryGap  = 30 * time.Second
)

// Dispatch failure reasons.
const (
	FailNotRunning      = "not_running"
	FailInterruptFailed = "interrupt_failed"
	FailWriteFailed     = "write_failed"
)

// CreateInput describes a new orchestration.
type CreateInput struct {
	Name         string           `json:"name"`
	ProjectPath  string           `json:"projectPath"`
	Orchestrator OrchestratorSpec `json:"orchestrator"`
	Workers      []WorkerSpec     `json:"workers"`

	AutoWorktrees              *bool  `json:"autoWorktrees,omitempty"`
	DispatchMode               string `json:"dispatchMode,omitempty"`
	AutoDispatchInitialPrompts *bool  `json:"autoDispatchInitialPrompts,omitempty"`
}

// OrchestratorSpec configures the orchestrator session.
type OrchestratorSpec struct {
	Tool      string `json:"tool,omitempty"`
	ProfileID string `json:"profileId,omitempty"`
	Prompt    string `json:"prompt"`
}

// WorkerSpec configures one worker session. Tool defaults to the
// orchestrator's tool when neither tool nor profile names one.
type WorkerSpec struct {
	Name       string `json:"name"`
	Tool       string `json:"tool,omitempty"`
	ProfileID  string `json:"profileId,omitempty"`
	TaskPrompt string `json:"taskPrompt"`
}

// DispatchInput is a request to write text to one or more workers.
type DispatchInput struct {
	Target                    string `json:"target"`
	Text                      string `json:"text"`
	Interrupt                 bool   `json:"interrupt,omitempty"`
	ForceInterrupt            bool   `json:"forceInterrupt,omitempty"`
	IncludeBootstrapIfPresent bool   `json:"includeBootstrapIfPresent,omitempty"`
	Source                    string `json:"source,omitempty"`
}

// DispatchFailure names one session a dispatch could not reach.
type DispatchFailure struct {
	Sid    string `json:"sid"`
	Reason string `json:"reason"`
}

// DispatchCount summarizes a dispatch outcome.
type DispatchCount struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// DispatchResult reports per-session outcomes of one dispatch.
type DispatchResult struct {
	OK                 bool              `json:"ok"`
	Reason             string            `json:"reason,omitempty"`
	AvailableTargets   []string          `json:"availableTargets,omitempty"`
	Sent               []string          `json:"sent"`
	Failed             []DispatchFailure `json:"failed"`
	Count              DispatchCount     `json:"count"`
	InjectedBootstrap  bool              `json:"injectedBootstrap"`
	InterruptRequested bool              `json:"interruptRequested"`
}

// CleanupInput selects which cleanup stages to run.
type CleanupInput struct {
	StopSessions    bool `json:"stopSessions"`
	DeleteSessions  bool `json:"deleteSessions,omitempty"`
	RemoveWorktrees bool `json:"removeWorktrees,omitempty"`
}

// EngineConfig wires an Engine's dependencies.
type EngineConfig struct {
	Store  *store.Store
	Sup    session.Supervisor
	Git    worktree.Executor
	Bus    events.EventBus
	Parser *directive.Parser
	Config *config.Config
	Linker *session.Linker // optional codex tool-session linking
	Debug  bool
}

// Engine owns the orchestration lifecycle: create, dispatch, cleanup, and
// the orchestrator directive watcher.
type Engine struct {
	st     *store.Store
	sup    session.Supervisor
	git    worktree.Executor
	bus    events.EventBus
	parser *directive.Parser
	cfg    *config.Config
	linker *session.Linker
	reg    *Registry
	debug  bool

	worktreesDir string

	// Timing seams, swapped in tests.
	interruptSettle time.Duration
	stopSettle      time.Duration
	now             func() time.Time
	sleep           func(time.Duration)

	hookMu    sync.RWMutex
	onCreated func(orchestrationID string)
	onCleaned func(orchestrationID string)
	answerFn  func(orchestrationID string, qa directive.QuestionAnswer)
}

// NewEngine creates an engine. Restore must be called before serving
// requests so persisted orchestrations are addressable.
func NewEngine(ec EngineConfig) *Engine {
	dir := ec.Config.Orchestration.WorktreesDir
	if dir == "" {
		dir = defaultWorktreesDir
	}
	return &Engine{
		st:              ec.Store,
		sup:             ec.Sup,
		git:             ec.Git,
		bus:             ec.Bus,
		parser:          ec.Parser,
		cfg:             ec.Config,
		linker:          ec.Linker,
		reg:             NewRegistry(),
		debug:           ec.Debug,
		worktreesDir:    dir,
		interruptSettle: defaultInterruptSettle,
		stopSettle:      defaultStopSettle,
		now:             time.Now,
		sleep:           time.Sleep,
	}
}

// SetLifecycleHooks registers callbacks fired after create and after
// cleanup, outside the orchestration lock.
func (e *Engine) SetLifecycleHooks(onCreated, onCleaned func(orchestrationID string)) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.onCreated, e.onCleaned = onCreated, onCleaned
}

// SetQuestionAnswerHandler registers the sink for question answers parsed
// from orchestrator output.
func (e *Engine) SetQuestionAnswerHandler(fn func(orchestrationID string, qa directive.QuestionAnswer)) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.answerFn = fn
}

func (e *Engine) createdHook() func(string) {
	e.hookMu.RLock()
	defer e.hookMu.RUnlock()
	return e.onCreated
}

func (e *Engine) cleanedHook() func(string) {
	e.hookMu.RLock()
	defer e.hookMu.RUnlock()
	return e.onCleaned
}

func (e *Engine) answerHook() func(string, directive.QuestionAnswer) {
	e.hookMu.RLock()
	defer e.hookMu.RUnlock()
	return e.answerFn
}

// Restore loads persisted orchestrations into the registry. Sessions do
// not survive a restart, so restored orchestrations get no output watcher;
// dispatches against them report not_running and cleanup still works.
func (e *Engine) Restore() error {
	rows, err := e.st.ListOrchestrations("")
	if err != nil {
		return fmt.Errorf("restore orchestrations: %w", err)
	}
	for _, row := range rows {
		var doc Orchestration
		if err := json.Unmarshal(row.Doc, &doc); err != nil {
			log.Printf("orchestrate: %s: bad stored doc, skipping: %v", row.ID, err)
			continue
		}
		if doc.ID == "" {
			doc.ID = row.ID
		}
		e.reg.Add(newHandle(&doc))
	}
	return nil
}

// Create spawns the orchestrator and worker sessions, prepares worktrees,
// injects bootstrap context, and runs the startup state machine.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*Orchestration, error) {
	if strings.TrimSpace(in.ProjectPath) == "" {
		return nil, &InputError{Code: "missing_projectPath", Message: "projectPath is required"}
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, badInput("name is required")
	}
	if len(in.Workers) == 0 {
		return nil, badInput("at least one worker is required")
	}
	mode := in.DispatchMode
	if mode == "" {
		mode = ModeAuto
	}
	if mode != ModeAuto && mode != ModeOrchestratorFirst {
		return nil, badInput(fmt.Sprintf("dispatchMode must be %q or %q", ModeAuto, ModeOrchestratorFirst))
	}
	if strings.TrimSpace(in.Orchestrator.Prompt) == "" {
		return nil, badInput("orchestrator prompt is required")
	}
	orchTool, orchProfile, err := e.resolveTool(in.Orchestrator.Tool, in.Orchestrator.ProfileID, "")
	if err != nil {
		return nil, err
	}

	objective := NormalizeObjective(in.Orchestrator.Prompt)

	workers := make([]*Worker, 0, len(in.Workers))
	slugs := make(map[string]bool, len(in.Workers))
	for i, spec := range in.Workers {
		wname := strings.TrimSpace(spec.Name)
		if wname == "" {
			return nil, badInput(fmt.Sprintf("workers[%d]: name is required", i))
		}
		if strings.TrimSpace(spec.TaskPrompt) == "" {
			return nil, badInput(fmt.Sprintf("worker %q: taskPrompt is required", wname))
		}
		wtool, wprof, err := e.resolveTool(spec.Tool, spec.ProfileID, orchTool)
		if err != nil {
			var ie *InputError
			if errors.As(err, &ie) {
				return nil, badInput(fmt.Sprintf("worker %q: %s", wname, ie.Message))
			}
			return nil, err
		}
		slug := worktree.Slug(wname)
		if slugs[slug] {
			return nil, badInput(fmt.Sprintf("worker %q: slug %q collides with another worker", wname, slug))
		}
		slugs[slug] = true
		workers = append(workers, &Worker{
			Name:       wname,
			Slug:       slug,
			Tool:       wtool,
			ProfileID:  spec.ProfileID,
			TaskPrompt: AugmentTaskPrompt(spec.TaskPrompt, objective),
			Bootstrap:  wprof.Bootstrap,
		})
	}

	ws, err := e.git.Resolve(ctx, in.ProjectPath)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()[:8]
	doc := &Orchestration{
		ID:            id,
		Name:          name,
		ProjectPath:   in.ProjectPath,
		WorkspaceKey:  ws.Key,
		WorkspaceRoot: ws.Root,
		CreatedAt:     e.now(),
		Status:        StatusActive,
		DispatchMode:  mode,
		Workers:       workers,
	}
	e.applyDefaultPolicies(doc)

	// Worktree failures are recorded on the worker, not fatal. The worker
	// falls back to running in the project directory.
	var createdTrees []string
	if in.AutoWorktrees == nil || *in.AutoWorktrees {
		for _, w := range doc.Workers {
			branch := "orch/" + id + "/" + w.Slug
			path := filepath.Join(ws.Root, e.worktreesDir, w.Slug)
			if err := e.git.Add(ctx, ws.Root, path, branch, true); err != nil {
				code := worktree.CodeOf(err)
				if code == "" {
					code = worktree.CodeCreateFailed
				}
				w.WorktreeError = code
				log.Printf("orchestrate: %s: worktree for %q failed (%s): %v", id, w.Name, code, err)
				continue
			}
			w.Branch = branch
			w.WorktreePath = path
			createdTrees = append(createdTrees, path)
		}
	}

	var spawned []string
	rollback := func() {
		for _, sid := range spawned {
			if err := e.sup.Kill(sid); err != nil && !errors.Is(err, session.ErrUnknownSession) {
				log.Printf("orchestrate: %s: rollback kill %s: %v", id, sid, err)
			}
			_ = e.sup.Forget(sid)
			if err := e.st.DeleteSession(sid); err != nil {
				log.Printf("orchestrate: %s: rollback session row %s: %v", id, sid, err)
			}
		}
		for _, p := range createdTrees {
			_ = e.git.Unlock(ctx, ws.Root, p)
			if err := e.git.Remove(ctx, ws.Root, p, true); err != nil {
				log.Printf("orchestrate: %s: rollback worktree %s: %v", id, p, err)
			}
		}
	}

	for _, w := range doc.Workers {
		cwd := w.WorktreePath
		if cwd == "" {
			cwd = in.ProjectPath
		}
		sid := uuid.NewString()
		if _, err := e.spawn(sid, w.Tool, w.ProfileID, cwd); err != nil {
			rollback()
			return nil, fmt.Errorf("spawn worker %q: %w", w.Name, err)
		}
		w.SessionID = sid
		spawned = append(spawned, sid)
		e.recordSpawn(doc, sid, w.Tool, w.ProfileID, cwd, w.WorktreePath, "orch:"+name+"/"+w.Name)
	}

	orchSid := uuid.NewString()
	if _, err := e.spawn(orchSid, orchTool, in.Orchestrator.ProfileID, in.ProjectPath); err != nil {
		rollback()
		return nil, fmt.Errorf("spawn orchestrator: %w", err)
	}
	doc.OrchestratorSessionID = orchSid
	spawned = append(spawned, orchSid)
	e.recordSpawn(doc, orchSid, orchTool, in.Orchestrator.ProfileID, in.ProjectPath, "", "orch:"+name+"/orchestrator")

	if orchProfile.Bootstrap != "" {
		e.writeInput(doc, orchSid, orchProfile.Bootstrap, true)
	}
	e.writeInput(doc, orchSid, orchestratorSystemPrompt(doc, objective), true)
	e.writeInput(doc, orchSid, in.Orchestrator.Prompt, false)

	if mode == ModeAuto && (in.AutoDispatchInitialPrompts == nil || *in.AutoDispatchInitialPrompts) {
		sent := make([]string, 0, len(doc.Workers))
		for _, w := range doc.Workers {
			if w.Bootstrap != "" {
				e.writeInput(doc, w.SessionID, w.Bootstrap, true)
				w.Bootstrap = ""
			}
			e.writeInput(doc, w.SessionID, w.TaskPrompt, false)
			w.InitialDispatched = true
			doc.Startup.DispatchedSessionIDs = append(doc.Startup.DispatchedSessionIDs, w.SessionID)
			sent = append(sent, w.SessionID)
		}
		doc.Startup.State = StateRunning
		e.emit(orchSid, id, events.KindDispatch, map[string]interface{}{
			"trigger": "startup",
			"sent":    sent,
			"failed":  []map[string]interface{}{},
		}, true)
	} else {
		doc.Startup.State = StateWaitingFirstDispatch
		for _, w := range doc.Workers {
			e.writeInput(doc, w.SessionID, waitModeBootstrap(doc, w), true)
			doc.Startup.PendingSessionIDs = append(doc.Startup.PendingSessionIDs, w.SessionID)
		}
		e.writeInput(doc, orchSid, orchestratorQuickstart(doc), true)
	}

	h := newHandle(doc)
	e.reg.Add(h)
	raw, merr := json.Marshal(doc)
	if merr != nil {
		log.Printf("orchestrate: %s: marshal doc: %v", id, merr)
		raw = []byte("{}")
	}
	if err := e.st.SaveOrchestration(&store.OrchestrationRow{
		ID:          id,
		Name:        name,
		ProjectPath: in.ProjectPath,
		Status:      store.OrchestrationActive,
		Doc:         raw,
	}); err != nil {
		log.Printf("orchestrate: %s: persist: %v", id, err)
	}

	e.watch(h)
	if fn := e.createdHook(); fn != nil {
		fn(id)
	}
	return doc.Clone(), nil
}

func (e *Engine) applyDefaultPolicies(doc *Orchestration) {
	oc := e.cfg.Orchestration
	policy := SyncPolicy{
		Mode:                  SyncManual,
		DeliverToOrchestrator: true,
		MinDeliveryGapMs:      int(config.Duration(oc.MinDeliveryGap, defaultMinDeliveryGap).Milliseconds()),
	}
	if interval := config.Duration(oc.SyncInterval, 0); interval > 0 {
		policy.Mode = SyncInterval
		policy.IntervalMs = int(interval.Milliseconds())
	}
	doc.Sync.Policy = policy
	doc.Automation.Policy = AutomationPolicy{
		QuestionMode:      QuestionInline,
		SteeringMode:      SteeringOff,
		QuestionTimeoutMs: int(config.Duration(oc.QuestionTimeout, defaultQuestionTimeout).Milliseconds()),
	}
}

// resolveTool picks the tool for a session from an explicit tool name, a
// profile, or the fallback, in that order of preference.
func (e *Engine) resolveTool(tool, profileID, fallback string) (string, config.ProfileConfig, error) {
	var prof config.ProfileConfig
	if profileID != "" {
		p, ok := e.cfg.ProfileFor(profileID)
		if !ok {
			return "", prof, badInput(fmt.Sprintf("unknown profile %q", profileID))
		}
		prof = p
		if tool == "" {
			tool = p.Tool
		}
	}
	if tool == "" {
		tool = fallback
	}
	if tool == "" {
		return "", prof, badInput("tool or profileId is required")
	}
	switch tool {
	case session.ToolCodex, session.ToolClaude, session.ToolOpencode:
	default:
		return "", prof, badInput(fmt.Sprintf("unsupported tool %q", tool))
	}
	return tool, prof, nil
}

func (e *Engine) spawn(sid, tool, profileID, cwd string) (*session.Session, error) {
	return e.spawnSized(sid, tool, profileID, cwd, 0, 0)
}

func (e *Engine) recordSpawn(doc *Orchestration, sid, tool, profileID, cwd, treePath, label string) {
	row := &store.Session{
		ID:            sid,
		Tool:          tool,
		ProfileID:     profileID,
		Cwd:           cwd,
		WorkspaceKey:  doc.WorkspaceKey,
		WorkspaceRoot: doc.WorkspaceRoot,
		TreePath:      treePath,
		Label:         label,
	}
	if err := e.st.CreateSession(row); err != nil {
		log.Printf("orchestrate: %s: persist session %s: %v", doc.ID, sid, err)
	}
	e.attachSession(doc.ID, sid)
	e.emit(sid, doc.ID, events.KindSessionCreated, map[string]interface{}{
		"tool": tool,
		"cwd":  cwd,
	}, true)
	if tool == session.ToolCodex && e.linker != nil {
		go e.linkCodexSession(doc.ID, sid, cwd, e.now())
	}
}

func (e *Engine) linkCodexSession(orchID, sid, cwd string, spawnedAt time.Time) {
	toolSid, err := e.linker.WaitForLink(context.Background(), cwd, spawnedAt)
	if err != nil {
		log.Printf("orchestrate: session %s: codex link: %v", sid, err)
		return
	}
	if err := e.st.SetToolSessionID(sid, toolSid); err != nil {
		log.Printf("orchestrate: session %s: save tool session id: %v", sid, err)
	}
	e.emit(sid, orchID, events.KindSessionLink, map[string]interface{}{
		"toolSessionId": toolSid,
	}, true)
}

// watch subscribes to orchestrator output and routes parsed directives to
// a per-orchestration dispatch goroutine. The output callback must not
// block, so directives cross a bounded queue.
func (e *Engine) watch(h *Handle) {
	h.mu.Lock()
	orchID := h.doc.ID
	orchSid := h.doc.OrchestratorSessionID
	stop := make(chan struct{})
	h.stop = stop
	h.mu.Unlock()

	work := make(chan directive.Result, directiveQueueSize)
	go e.directiveLoop(orchID, work, stop)

	unsub, err := e.sup.OnOutput(orchSid, func(chunk []byte) {
		res := e.parser.Feed(orchSid, string(chunk))
		if res.Empty() {
			return
		}
		select {
		case work <- res:
		default:
			log.Printf("orchestrate: %s: directive queue full, dropping %d directives",
				orchID, len(res.Dispatches)+len(res.QuestionAnswers))
		}
	})
	if err != nil {
		log.Printf("orchestrate: %s: watch orchestrator: %v", orchID, err)
		return
	}
	h.mu.Lock()
	h.unsub = unsub
	h.mu.Unlock()
}

func (e *Engine) directiveLoop(orchID string, work <-chan directive.Result, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case res := <-work:
			for _, d := range res.Dispatches {
				out, err := e.Dispatch(orchID, DispatchInput{
					Target:                    d.Target,
					Text:                      d.Text,
					Interrupt:                 d.Interrupt,
					ForceInterrupt:            d.ForceInterrupt,
					IncludeBootstrapIfPresent: d.IncludeBootstrapIfPresent,
					Source:                    d.Source,
				})
				if err != nil {
					log.Printf("orchestrate: %s: directive dispatch: %v", orchID, err)
					continue
				}
				if !out.OK && e.debug {
					log.Printf("orchestrate: %s: directive dispatch target %q: %s", orchID, d.Target, out.Reason)
				}
			}
			for _, qa := range res.QuestionAnswers {
				if fn := e.answerHook(); fn != nil {
					fn(orchID, qa)
				}
			}
		}
	}
}

// Dispatch writes text to the resolved targets. The orchestration lock is
// held for the whole call, so dispatches against one orchestration are
// serialized.
func (e *Engine) Dispatch(orchID string, in DispatchInput) (*DispatchResult, error) {
	h, ok := e.reg.Get(orchID)
	if !ok {
		return nil, ErrNotFound
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	doc := h.doc
	if doc.Status == StatusCleaned {
		return nil, ErrCleaned
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, badInput("text is required")
	}

	targets := resolveTargets(doc, in.Target)
	if len(targets) == 0 {
		return &DispatchResult{
			OK:               false,
			Reason:           "no_targets",
			AvailableTargets: availableTargets(doc),
			Sent:             []string{},
			Failed:           []DispatchFailure{},
		}, nil
	}

	res := &DispatchResult{OK: true, Sent: []string{}, Failed: []DispatchFailure{}}
	for _, w := range targets {
		sid := w.SessionID
		status, err := e.sup.Status(sid)
		if err != nil || !status.Running {
			res.Failed = append(res.Failed, DispatchFailure{Sid: sid, Reason: FailNotRunning})
			continue
		}
		if in.Interrupt || in.ForceInterrupt {
			if err := e.sup.Interrupt(sid); err != nil {
				res.Failed = append(res.Failed, DispatchFailure{Sid: sid, Reason: FailInterruptFailed})
				continue
			}
			res.InterruptRequested = true
			e.sleep(e.interruptSettle)
			if in.ForceInterrupt {
				if err := e.sup.Interrupt(sid); err == nil {
					e.sleep(e.interruptSettle)
				}
			}
		}
		if in.IncludeBootstrapIfPresent && w.Bootstrap != "" {
			if err := e.writeInput(doc, sid, w.Bootstrap, true); err == nil {
				w.Bootstrap = ""
				res.InjectedBootstrap = true
			}
		}
		if err := e.writeInput(doc, sid, text, false); err != nil {
			res.Failed = append(res.Failed, DispatchFailure{Sid: sid, Reason: FailWriteFailed})
			continue
		}
		res.Sent = append(res.Sent, sid)
		markDispatched(doc, w)
	}
	if len(res.Sent) > 0 && doc.Startup.State == StateWaitingFirstDispatch {
		doc.Startup.State = StateRunning
	}
	res.Count = DispatchCount{Sent: len(res.Sent), Failed: len(res.Failed)}

	// The dispatch event lands after the writes so consumers observing it
	// can already read the input events it summarizes.
	failed := make([]map[string]interface{}, 0, len(res.Failed))
	for _, f := range res.Failed {
		failed = append(failed, map[string]interface{}{"sid": f.Sid, "reason": f.Reason})
	}
	data := map[string]interface{}{
		"target": in.Target,
		"sent":   res.Sent,
		"failed": failed,
	}
	if in.Source != "" {
		data["source"] = in.Source
	}
	e.emit(doc.OrchestratorSessionID, doc.ID, events.KindDispatch, data, true)

	e.persistLocked(doc)
	return res, nil
}

// Cleanup stops sessions, deletes their rows, and removes worktrees per
// the input flags. The orchestration lock is taken with TryLock so a
// concurrent cleanup fails fast instead of queueing.
func (e *Engine) Cleanup(ctx context.Context, orchID string, in CleanupInput) (*CleanupSummary, error) {
	h, ok := e.reg.Get(orchID)
	if !ok {
		return nil, ErrNotFound
	}
	if !h.mu.TryLock() {
		return nil, ErrLocked
	}
	summary, err := e.cleanupLocked(ctx, h, in)
	h.mu.Unlock()
	if err == nil {
		if fn := e.cleanedHook(); fn != nil {
			fn(orchID)
		}
	}
	return summary, err
}

func (e *Engine) cleanupLocked(ctx context.Context, h *Handle, in CleanupInput) (*CleanupSummary, error) {
	doc := h.doc
	h.stopRuntimeLocked()
	e.parser.Forget(doc.OrchestratorSessionID)

	summary := &CleanupSummary{}
	sids := doc.SessionIDs()

	if in.StopSessions {
		for _, sid := range sids {
			status, err := e.sup.Status(sid)
			if err != nil || !status.Running {
				continue
			}
			if err := e.sup.Interrupt(sid); err != nil {
				log.Printf("orchestrate: %s: interrupt %s: %v", doc.ID, sid, err)
			}
			e.sleep(e.stopSettle)
			if status, err := e.sup.Status(sid); err == nil && status.Running {
				if err := e.sup.Kill(sid); err != nil {
					log.Printf("orchestrate: %s: kill %s: %v", doc.ID, sid, err)
				}
			}
			summary.Sessions.Closed++
			e.emit(sid, doc.ID, events.KindStop, map[string]interface{}{"reason": "cleanup"}, !in.DeleteSessions)
		}
	}

	if in.DeleteSessions {
		for _, sid := range sids {
			if err := e.sup.Forget(sid); err != nil && !errors.Is(err, session.ErrUnknownSession) {
				log.Printf("orchestrate: %s: forget %s: %v", doc.ID, sid, err)
			}
			if _, err := e.st.GetSession(sid); err != nil {
				continue
			}
			if err := e.st.DeleteSession(sid); err != nil {
				log.Printf("orchestrate: %s: delete session %s: %v", doc.ID, sid, err)
				continue
			}
			summary.Sessions.Deleted++
		}
	}

	if in.RemoveWorktrees {
		for _, w := range doc.Workers {
			if w.WorktreePath == "" {
				continue
			}
			if err := e.git.Unlock(ctx, doc.WorkspaceRoot, w.WorktreePath); err != nil {
				log.Printf("orchestrate: %s: unlock worktree %s: %v", doc.ID, w.WorktreePath, err)
			}
			if err := e.git.Remove(ctx, doc.WorkspaceRoot, w.WorktreePath, true); err != nil {
				log.Printf("orchestrate: %s: remove worktree %s: %v", doc.ID, w.WorktreePath, err)
				continue
			}
			summary.Worktrees.Removed++
		}
	}

	doc.Status = StatusCleaned
	doc.CleanupSummary = summary
	e.persistLocked(doc)
	e.emit(doc.OrchestratorSessionID, doc.ID, events.KindCleanup, map[string]interface{}{
		"sessions":  map[string]interface{}{"closed": summary.Sessions.Closed, "deleted": summary.Sessions.Deleted},
		"worktrees": map[string]interface{}{"removed": summary.Worktrees.Removed},
	}, false)
	return summary, nil
}

// Get returns a deep copy of one orchestration.
func (e *Engine) Get(orchID string) (*Orchestration, error) {
	h, ok := e.reg.Get(orchID)
	if !ok {
		return nil, ErrNotFound
	}
	return h.Snapshot(), nil
}

// List returns deep copies of all orchestrations, newest first.
func (e *Engine) List() []*Orchestration {
	hs := e.reg.Handles()
	out := make([]*Orchestration, 0, len(hs))
	for _, h := range hs {
		out = append(out, h.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// ForSession returns the orchestration owning a session id.
func (e *Engine) ForSession(sessionID string) (*Orchestration, bool) {
	h, ok := e.reg.BySession(sessionID)
	if !ok {
		return nil, false
	}
	return h.Snapshot(), true
}

// UpdateAutomation applies fn to the automation state under the
// orchestration lock and persists the result.
func (e *Engine) UpdateAutomation(orchID string, fn func(*AutomationState)) (*Orchestration, error) {
	return e.mutate(orchID, func(doc *Orchestration) { fn(&doc.Automation) })
}

// UpdateSync applies fn to the sync state under the orchestration lock and
// persists the result.
func (e *Engine) UpdateSync(orchID string, fn func(*SyncState)) (*Orchestration, error) {
	return e.mutate(orchID, func(doc *Orchestration) { fn(&doc.Sync) })
}

func (e *Engine) mutate(orchID string, fn func(*Orchestration)) (*Orchestration, error) {
	h, ok := e.reg.Get(orchID)
	if !ok {
		return nil, ErrNotFound
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.doc)
	e.persistLocked(h.doc)
	return h.doc.Clone(), nil
}

// WriteOrchestrator injects text into the orchestrator session as an
// internal input. Digest delivery and question batches use this.
func (e *Engine) WriteOrchestrator(orchID, text string) error {
	h, ok := e.reg.Get(orchID)
	if !ok {
		return ErrNotFound
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.doc.Status == StatusCleaned {
		return ErrCleaned
	}
	return e.writeInput(h.doc, h.doc.OrchestratorSessionID, text, true)
}

// Dispose stops all orchestrator watchers. Sessions are torn down by the
// supervisor's own Dispose.
func (e *Engine) Dispose() {
	for _, h := range e.reg.Handles() {
		h.mu.Lock()
		h.stopRuntimeLocked()
		h.mu.Unlock()
	}
}

// writeInput writes text plus carriage return to a session and records an
// input event. Internal inputs are injected context rather than text a
// human typed.
func (e *Engine) writeInput(doc *Orchestration, sid, text string, internal bool) error {
	if err := e.sup.Write(sid, text+"\r"); err != nil {
		return err
	}
	data := map[string]interface{}{"text": capRunes(text, inputEventCap)}
	if internal {
		data["internal"] = true
	}
	e.emit(sid, doc.ID, events.KindInput, data, true)
	return nil
}

func (e *Engine) emit(sessionID, orchID, kind string, data map[string]interface{}, persist bool) {
	ev := events.Event{
		Kind:            kind,
		SessionID:       sessionID,
		OrchestrationID: orchID,
		Timestamp:       e.now(),
		Data:            data,
	}
	if persist {
		if storeID, err := e.st.AppendEvent(sessionID, kind, data); err != nil {
			log.Printf("orchestrate: append %s event for %s: %v", kind, sessionID, err)
		} else {
			ev.StoreID = storeID
		}
	}
	if err := e.bus.Publish(context.Background(), ev); err != nil {
		log.Printf("orchestrate: publish %s: %v", kind, err)
	}
}

func (e *Engine) persistLocked(doc *Orchestration) {
	raw, err := json.Marshal(doc)
	if err != nil {
		log.Printf("orchestrate: %s: marshal doc: %v", doc.ID, err)
		return
	}
	if err := e.st.UpdateOrchestration(doc.ID, doc.Status, raw); err != nil {
		log.Printf("orchestrate: %s: persist: %v", doc.ID, err)
	}
}

// resolveTargets maps a dispatch target to workers. Targets are matched in
// order: all, worker: prefix, session: prefix, 1-based index, then bare
// name or slug.
func resolveTargets(doc *Orchestration, target string) []*Worker {
	t := strings.TrimSpace(target)
	if t == "" || strings.EqualFold(t, "all") {
		return append([]*Worker(nil), doc.Workers...)
	}
	if rest, ok := cutPrefixFold(t, "worker:"); ok {
		if w := workerByName(doc, rest); w != nil {
			return []*Worker{w}
		}
		return nil
	}
	if rest, ok := cutPrefixFold(t, "session:"); ok {
		if w, ok := doc.WorkerBySession(strings.TrimSpace(rest)); ok {
			return []*Worker{w}
		}
		return nil
	}
	if n, err := strconv.Atoi(t); err == nil {
		if n >= 1 && n <= len(doc.Workers) {
			return []*Worker{doc.Workers[n-1]}
		}
		return nil
	}
	if w := workerByName(doc, t); w != nil {
		return []*Worker{w}
	}
	return nil
}

func workerByName(doc *Orchestration, name string) *Worker {
	name = strings.TrimSpace(name)
	for _, w := range doc.Workers {
		if strings.EqualFold(w.Name, name) || strings.EqualFold(w.Slug, name) {
			return w
		}
	}
	return nil
}

func availableTargets(doc *Orchestration) []string {
	out := []string{"all"}
	for _, w := range doc.Workers {
		out = append(out, w.Name, "worker:"+w.Slug, "session:"+w.SessionID)
	}
	return out
}

func markDispatched(doc *Orchestration, w *Worker) {
	w.InitialDispatched = true
	pending := make([]string, 0, len(doc.Startup.PendingSessionIDs))
	for _, sid := range doc.Startup.PendingSessionIDs {
		if sid != w.SessionID {
			pending = append(pending, sid)
		}
	}
	doc.Startup.PendingSessionIDs = pending
	for _, sid := range doc.Startup.DispatchedSessionIDs {
		if sid == w.SessionID {
			return
		}
	}
	doc.Startup.DispatchedSessionIDs = append(doc.Startup.DispatchedSessionIDs, w.SessionID)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return "", false
}

// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/wingedpig/fyp/internal/digest"
	"github.com/wingedpig/fyp/internal/orchestrate"
	"github.com/wingedpig/fyp/internal/store"
)

// Orchestrations is the engine surface the gate needs. Satisfied by
// *orchestrate.Engine.
type Orchestrations interface {
	Dispatch(orchID string, in orchestrate.DispatchInput) (*orchestrate.DispatchResult, error)
	WriteOrchestrator(orchID, text string) error
}

// Syncer runs digest syncs. Satisfied by *digest.Scheduler.
type Syncer interface {
	Sync(orchID string, force, deliver bool, trigger string) (*digest.SyncResult, error)
}

// Gate validates, risk-checks, and executes catalog commands.
type Gate struct {
	catalog *Catalog
	st      *store.Store
	eng     Orchestrations
	sync    Syncer
	debug   bool
}

// NewGate builds a gate over the embedded catalog.
func NewGate(st *store.Store, eng Orchestrations, sync Syncer, debug bool) (*Gate, error) {
	catalog, err := LoadCatalog()
	if err != nil {
		return nil, err
	}
	return &Gate{catalog: catalog, st: st, eng: eng, sync: sync, debug: debug}, nil
}

// Catalog exposes the loaded command set for listing.
func (g *Gate) Catalog() *Catalog { return g.catalog }

// Execute runs one command through validation, policy, idempotency, and the
// mode-specific action. The returned bytes are the marshaled
// ExecuteResponse; replays return the stored body with replayed flipped to
// true, so every replay of a key is byte-identical.
func (g *Gate) Execute(req *ExecuteRequest) (json.RawMessage, error) {
	cmd, ok := g.catalog.Lookup(req.Command)
	if !ok {
		return nil, &GateError{
			Code:    CodeUnknownCommand,
			Message: fmt.Sprintf("unknown command %q", req.Command),
		}
	}
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}

	if v := validatePayload(cmd, req.Payload); !v.OK {
		return nil, &GateError{
			Code:    CodeInvalidPayload,
			Message: fmt.Sprintf("payload rejected by %s envelope", cmd.ID),
			Details: map[string]any{"errors": v.Errors},
		}
	}

	policy := evaluatePolicy(cmd, req)
	if !policy.OK {
		return nil, &GateError{
			Code:    CodePolicyBlocked,
			Message: fmt.Sprintf("%s is %s tier", cmd.ID, cmd.Tier),
			Details: map[string]any{"tier": cmd.Tier, "errors": policy.Errors},
		}
	}

	if req.IdempotencyKey != "" {
		if body, ok := g.replay(req); ok {
			return body, nil
		}
	}

	resp, err := g.run(cmd, req, policy)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal command response: %w", err)
	}

	if req.IdempotencyKey != "" {
		rec := &store.IdempotencyRecord{
			OrchestrationID: req.OrchestrationID,
			Key:             req.IdempotencyKey,
			CommandID:       cmd.ID,
			PayloadHash:     payloadHash(req.Payload),
			Response:        body,
		}
		if err := g.st.PutIdempotent(rec); err != nil {
			log.Printf("command: %s: store idempotency %q: %v", cmd.ID, req.IdempotencyKey, err)
		}
	}
	return body, nil
}

// replay returns the stored response with replayed set, if the key was seen
// before. Responses are stored with replayed:false, so every replay
// re-marshals through the same struct and stays byte-identical across
// process restarts.
func (g *Gate) replay(req *ExecuteRequest) (json.RawMessage, bool) {
	rec, err := g.st.GetIdempotent(req.OrchestrationID, req.IdempotencyKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("command: idempotency lookup %q: %v", req.IdempotencyKey, err)
		}
		return nil, false
	}

	var resp ExecuteResponse
	if err := json.Unmarshal(rec.Response, &resp); err != nil {
		log.Printf("command: stored response for %q unreadable: %v", req.IdempotencyKey, err)
		return nil, false
	}
	resp.Replayed = true
	body, err := json.Marshal(&resp)
	if err != nil {
		return nil, false
	}
	return body, true
}

func (g *Gate) run(cmd *Command, req *ExecuteRequest, policy PolicyResult) (*ExecuteResponse, error) {
	resp := &ExecuteResponse{
		OK:      true,
		Command: cmd.ID,
		Mode:    cmd.Mode,
		Policy:  policy.Info,
	}

	switch cmd.Mode {
	case ModeWorkerDispatch, ModeWorkerSendTask:
		packet := buildPacket(cmd, req.Payload)
		in := orchestrate.DispatchInput{
			Target:         stringField(req.Payload, "target"),
			Text:           packet,
			Interrupt:      boolField(req.Payload, "interrupt"),
			ForceInterrupt: boolField(req.Payload, "forceInterrupt"),
			Source:         "command:" + cmd.ID,
		}
		if cmd.Mode == ModeWorkerSendTask {
			in.IncludeBootstrapIfPresent = boolOr(req.Payload, "initialize", true)
		}
		out, err := g.eng.Dispatch(req.OrchestrationID, in)
		if err != nil {
			return nil, err
		}
		if !out.OK {
			return nil, &GateError{
				Code:    out.Reason,
				Message: fmt.Sprintf("dispatch for %s failed", cmd.ID),
				Details: map[string]any{"availableTargets": out.AvailableTargets},
			}
		}
		resp.Dispatch = mustMarshal(out)
		resp.Packet = packet

	case ModeOrchestratorInput:
		packet := buildPacket(cmd, req.Payload)
		if err := g.eng.WriteOrchestrator(req.OrchestrationID, packet); err != nil {
			return nil, err
		}
		resp.Packet = packet

	case ModeSystemSync:
		deliver := boolOr(req.Payload, "deliver", true)
		out, err := g.sync.Sync(req.OrchestrationID, true, deliver, digest.TriggerCommand)
		if err != nil {
			return nil, err
		}
		resp.Sync = mustMarshal(out)

	case ModeSystemReview:
		packet := buildReviewPacket(cmd, req.Payload)
		if err := g.eng.WriteOrchestrator(req.OrchestrationID, packet); err != nil {
			return nil, err
		}
		resp.Packet = packet
	}

	return resp, nil
}

func payloadHash(payload map[string]any) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16]
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

func boolField(payload map[string]any, key string) bool {
	b, _ := payload[key].(bool)
	return b
}

func boolOr(payload map[string]any, key string, def bool) bool {
	if v, ok := payload[key].(bool); ok {
		return v
	}
	return def
}

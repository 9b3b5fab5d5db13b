// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zenahq/zena-actions/services/dispatch/alias"
	"github.com/zenahq/zena-actions/services/dispatch/audit"
	"github.com/zenahq/zena-actions/services/dispatch/catalog"
	"github.com/zenahq/zena-actions/services/dispatch/idempotency"
	"github.com/zenahq/zena-actions/services/dispatch/registry"
	"github.com/zenahq/zena-actions/services/dispatch/session"
	"github.com/zenahq/zena-actions/services/realty"
)

// capturingTrail records emitted audit entries for assertions.
type capturingTrail struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (c *capturingTrail) Append(_ context.Context, e audit.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

func (c *capturingTrail) Find(_ context.Context, q audit.Query) ([]audit.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []audit.Entry
	for _, e := range c.entries {
		if q.UserID != "" && e.UserID != q.UserID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *capturingTrail) all() []audit.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]audit.Entry{}, c.entries...)
}

type testEnv struct {
	orch     *Orchestrator
	reg      *registry.Registry
	store    *realty.MemoryStore
	notifier *realty.LogNotifier
	trail    *capturingTrail
	sessions *session.Store
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithPendingAge(t, time.Minute)
}

func newTestEnvWithPendingAge(t *testing.T, pendingAge time.Duration) *testEnv {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	resolver, err := alias.NewResolver(logger)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	reg := registry.New(logger)
	store := realty.NewMemoryStore()
	notifier := realty.NewLogNotifier(logger)
	catalog.Register(reg, catalog.Deps{Store: store, Notifier: notifier})

	sessions := session.NewStore(session.StoreConfig{
		TTL:           time.Hour,
		MaxPendingAge: pendingAge,
		Logger:        logger,
	})
	guard := idempotency.NewGuard(idempotency.NewMemoryStore(), 5*time.Minute, logger)
	trail := &capturingTrail{}
	auditor := audit.NewEmitter(logger, trail)

	return &testEnv{
		orch:     New(reg, resolver, sessions, guard, auditor, logger, Config{}),
		reg:      reg,
		store:    store,
		notifier: notifier,
		trail:    trail,
		sessions: sessions,
	}
}

// turn dispatches one request, failing the test on unexpected errors.
func (env *testEnv) turn(t *testing.T, req TurnRequest) *Result {
	t.Helper()
	res, err := env.orch.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res == nil {
		t.Fatal("Dispatch returned nil result")
	}
	return res
}

func baseReq(action string, params registry.Params) TurnRequest {
	return TurnRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Action:         action,
		Params:         params,
	}
}

func replyReq(input string) TurnRequest {
	return TurnRequest{UserID: "u1", ConversationID: "c1", Input: input}
}

func TestDispatch_ReadActionExecutesImmediately(t *testing.T) {
	env := newTestEnv(t)

	res := env.turn(t, baseReq("property.find", nil))
	if res.State != StateExecuted || !res.Success {
		t.Fatalf("state = %v success = %v", res.State, res.Success)
	}
	if res.Data["count"] != 0 {
		t.Errorf("count = %v, want 0", res.Data["count"])
	}
}

func TestDispatch_UnknownActionEscalates(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.orch.Dispatch(context.Background(), baseReq("warp.drive", nil))
	if !errors.Is(err, ErrActionNotFound) {
		t.Fatalf("err = %v, want ErrActionNotFound", err)
	}
	if res.State != StateNotFound {
		t.Errorf("state = %v", res.State)
	}
	if res.Error == "" {
		t.Error("not_found result carries no caller-safe message")
	}
}

func TestDispatch_AliasResolvesToCanonicalAction(t *testing.T) {
	env := newTestEnv(t)

	res := env.turn(t, TurnRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Action:         "add_contact",
		Params:         registry.Params{"name": "Dana Reyes"},
		Hints:          Hints{ExplicitCreate: true},
	})
	if res.State != StateExecuted {
		t.Fatalf("state = %v, prompt = %q", res.State, res.FollowUpPrompt)
	}

	recs, _ := env.store.Find(context.Background(), "u1", "contact", nil, 0)
	if len(recs) != 1 || recs[0].Fields["name"] != "Dana Reyes" {
		t.Errorf("contact not created through alias: %v", recs)
	}
}

func TestDispatch_MissingRequiredFieldLifecycle(t *testing.T) {
	env := newTestEnv(t)

	// Turn 1: required listingPrice missing — nothing executes.
	res := env.turn(t, baseReq("property.create", registry.Params{"address": "12 Harbor Lane"}))
	if res.State != StateNeedsInput || !res.RequiresFollowUp {
		t.Fatalf("state = %v", res.State)
	}
	if !strings.Contains(res.FollowUpPrompt, "listing price") {
		t.Errorf("prompt %q does not name the missing field in plain words", res.FollowUpPrompt)
	}
	if res.MissingFields[0] != "listingPrice" {
		t.Errorf("missing fields = %v", res.MissingFields)
	}
	if recs, _ := env.store.Find(context.Background(), "u1", "property", nil, 0); len(recs) != 0 {
		t.Fatalf("needs_input must not execute; found %d records", len(recs))
	}

	// Turn 2: the answer merges with the remembered address instead of
	// restarting, then hits the standard approval gate (recommended fields
	// are still missing).
	res = env.turn(t, baseReq("property.create", registry.Params{"listingPrice": 450000}))
	if res.State != StateNeedsApproval {
		t.Fatalf("state = %v, prompt = %q", res.State, res.FollowUpPrompt)
	}
	if !strings.Contains(res.FollowUpPrompt, "12 Harbor Lane") {
		t.Errorf("confirmation prompt lost the accumulated address: %q", res.FollowUpPrompt)
	}

	// Turn 3: explicit affirmative executes.
	res = env.turn(t, replyReq("yes"))
	if res.State != StateExecuted || !res.Success {
		t.Fatalf("state = %v", res.State)
	}

	recs, _ := env.store.Find(context.Background(), "u1", "property", nil, 0)
	if len(recs) != 1 {
		t.Fatalf("found %d properties, want 1", len(recs))
	}
	if recs[0].Fields["address"] != "12 Harbor Lane" || recs[0].Fields["listingPrice"] != 450000 {
		t.Errorf("merged params lost: %v", recs[0].Fields)
	}

	entries := env.trail.all()
	if len(entries) != 1 || entries[0].Action != "property.create" {
		t.Errorf("audit entries = %v", entries)
	}
	if entries[0].UserID != "u1" {
		t.Errorf("audit user = %q", entries[0].UserID)
	}
}

func TestDispatch_StandardAutoExecutesWhenComplete(t *testing.T) {
	env := newTestEnv(t)

	res := env.turn(t, baseReq("property.create", registry.Params{
		"address":      "12 Harbor Lane",
		"listingPrice": 450000,
		"bedrooms":     3,
		"bathrooms":    2,
		"squareFeet":   1800,
	}))
	if res.State != StateExecuted {
		t.Fatalf("complete standard action must auto-execute, got %v", res.State)
	}
}

func TestDispatch_PlannerHintsBypassStandardGate(t *testing.T) {
	env := newTestEnv(t)

	res := env.turn(t, TurnRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Action:         "property.create",
		Params:         registry.Params{"address": "12 Harbor Lane", "listingPrice": 450000},
		Hints:          Hints{ExplicitCreate: true},
	})
	if res.State != StateExecuted {
		t.Fatalf("explicit-create hint must bypass the standard gate, got %v", res.State)
	}
}

func TestDispatch_DestructiveRequiresExactToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	deal, _ := env.store.Create(ctx, "u1", "deal", map[string]any{"propertyAddress": "12 Harbor Lane"})

	res := env.turn(t, baseReq("deal.delete", registry.Params{"dealId": deal.ID}))
	if res.State != StateNeedsApproval {
		t.Fatalf("state = %v", res.State)
	}
	if !strings.Contains(res.FollowUpPrompt, "Reply YES to confirm.") {
		t.Errorf("destructive prompt missing token instruction: %q", res.FollowUpPrompt)
	}

	// Affirmative but not the token: stays pending, re-prompts, no side effect.
	res = env.turn(t, replyReq("sure"))
	if res.State != StateNeedsApproval {
		t.Fatalf("insufficient reply: state = %v", res.State)
	}
	if !strings.Contains(res.FollowUpPrompt, "exact confirmation") {
		t.Errorf("re-prompt = %q", res.FollowUpPrompt)
	}
	if _, err := env.store.Get(ctx, "u1", "deal", deal.ID); err != nil {
		t.Fatal("deal deleted before the token was supplied")
	}

	// The exact token, any case, executes.
	res = env.turn(t, replyReq("yes!"))
	if res.State != StateNeedsApproval {
		// "yes!" normalizes to the token only after punctuation stripping;
		// destructive matching is exact, so this must stay pending.
		t.Fatalf("state = %v", res.State)
	}
	res = env.turn(t, replyReq("yes"))
	if res.State != StateExecuted {
		t.Fatalf("token reply: state = %v", res.State)
	}
	if _, err := env.store.Get(ctx, "u1", "deal", deal.ID); !errors.Is(err, realty.ErrNotFound) {
		t.Error("deal still present after confirmed delete")
	}

	entries := env.trail.all()
	if len(entries) != 1 || entries[0].Summary != "Deleted deal" {
		t.Errorf("audit entries = %v", entries)
	}
}

func TestDispatch_DeniedConfirmationHasNoSideEffect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	deal, _ := env.store.Create(ctx, "u1", "deal", nil)

	env.turn(t, baseReq("deal.delete", registry.Params{"dealId": deal.ID}))
	res := env.turn(t, replyReq("no, leave it"))
	if res.State != StateDenied {
		t.Fatalf("state = %v", res.State)
	}
	if res.Data["message"] != "Cancelled — nothing was changed." {
		t.Errorf("denial message = %v", res.Data["message"])
	}
	if _, err := env.store.Get(ctx, "u1", "deal", deal.ID); err != nil {
		t.Error("denied delete still removed the deal")
	}
	if len(env.trail.all()) != 0 {
		t.Error("denied confirmation produced an audit entry")
	}
}

func TestDispatch_HintsNeverBypassDestructive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	deal, _ := env.store.Create(ctx, "u1", "deal", nil)

	res := env.turn(t, TurnRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Action:         "deal.delete",
		Params:         registry.Params{"dealId": deal.ID},
		Hints:          Hints{IsUpdate: true, ExplicitCreate: true},
	})
	if res.State != StateNeedsApproval {
		t.Fatalf("hints bypassed a destructive gate: state = %v", res.State)
	}
	if _, err := env.store.Get(ctx, "u1", "deal", deal.ID); err != nil {
		t.Error("deal deleted without confirmation")
	}
}

func TestDispatch_NewIntentSupersedesPendingConfirmation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	deal, _ := env.store.Create(ctx, "u1", "deal", nil)
	env.turn(t, baseReq("deal.delete", registry.Params{"dealId": deal.ID}))

	// An unrelated action while awaiting confirmation discards the stale
	// confirmation and runs the new intent.
	res := env.turn(t, baseReq("property.find", nil))
	if res.State != StateExecuted {
		t.Fatalf("superseding intent: state = %v", res.State)
	}

	// The old confirmation is gone; the deal survives.
	if _, err := env.store.Get(ctx, "u1", "deal", deal.ID); err != nil {
		t.Error("superseded confirmation still executed")
	}
}

func TestDispatch_ConfirmationExpiryReportedOnce(t *testing.T) {
	env := newTestEnvWithPendingAge(t, 30*time.Millisecond)
	ctx := context.Background()

	deal, _ := env.store.Create(ctx, "u1", "deal", nil)
	env.turn(t, baseReq("deal.delete", registry.Params{"dealId": deal.ID}))

	time.Sleep(60 * time.Millisecond)

	// The answer arrives too late: report the expiry, execute nothing.
	res := env.turn(t, replyReq("YES"))
	if res.State != StateConfirmationExpired {
		t.Fatalf("state = %v", res.State)
	}
	if !strings.Contains(res.FollowUpPrompt, "expired") {
		t.Errorf("prompt = %q", res.FollowUpPrompt)
	}
	if _, err := env.store.Get(ctx, "u1", "deal", deal.ID); err != nil {
		t.Error("expired confirmation executed the delete")
	}
}

func TestDispatch_DuplicateSendReplaysWithoutSecondDelivery(t *testing.T) {
	env := newTestEnv(t)

	params := registry.Params{
		"threadId": "t-1",
		"date":     "2026-09-01",
		"message":  "call Dana about the inspection",
	}
	first := env.turn(t, baseReq("reminder.send", params))
	if first.State != StateExecuted || first.Replayed {
		t.Fatalf("first send: state = %v replayed = %v", first.State, first.Replayed)
	}

	second := env.turn(t, baseReq("reminder.send", params))
	if !second.Replayed {
		t.Fatal("identical send within the window must replay")
	}
	if second.Data["deliveryId"] != first.Data["deliveryId"] {
		t.Error("replay returned a different delivery ID")
	}

	if got := env.notifier.SentCount("u1", "reminder"); got != 1 {
		t.Errorf("deliveries = %d, want exactly 1", got)
	}
	if got := len(env.trail.all()); got != 1 {
		t.Errorf("audit entries = %d, want 1 (replays are not re-audited)", got)
	}
}

func TestDispatch_ConcurrentDuplicateSendsAuditOnce(t *testing.T) {
	env := newTestEnv(t)

	// A deduplicated action whose execution step can be held open, so two
	// turns verifiably overlap inside the guard.
	var executions atomic.Int32
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	env.reg.Register(&registry.Definition{
		Name:        "message.broadcast",
		Domain:      "message",
		Description: "Broadcast a message",
		Schema: registry.Schema{
			Required: []registry.Field{{Name: "body", Type: registry.FieldString}},
		},
		IdempotencyParts: func(params registry.Params) []string {
			body, _ := params["body"].(string)
			return []string{body}
		},
		Execute: func(_ context.Context, _ registry.Params, _ registry.ExecContext) (*registry.Outcome, error) {
			executions.Add(1)
			entered <- struct{}{}
			<-release
			return &registry.Outcome{EntityType: "message", EntityID: "delivery-1"}, nil
		},
		AuditRecord: func(_ registry.Params, out *registry.Outcome) audit.Entry {
			return audit.Entry{
				Action:     "message.broadcast",
				Summary:    "Broadcast message",
				EntityType: "message",
				EntityID:   out.EntityID,
			}
		},
	})

	params := registry.Params{"body": "open house moved to 2pm"}
	dispatch := func(conversation string, results chan<- *Result) {
		res, err := env.orch.Dispatch(context.Background(), TurnRequest{
			UserID:         "u1",
			ConversationID: conversation,
			Action:         "message.broadcast",
			Params:         params,
		})
		if err != nil {
			t.Errorf("Dispatch(%s): %v", conversation, err)
		}
		results <- res
	}

	results := make(chan *Result, 2)
	go dispatch("c1", results)
	<-entered // first turn is inside the execution step
	go dispatch("c2", results)
	// Let the second turn join the in-flight execution, then let it finish.
	time.Sleep(20 * time.Millisecond)
	close(release)

	res1, res2 := <-results, <-results
	if executions.Load() != 1 {
		t.Fatalf("executions = %d, want exactly 1", executions.Load())
	}

	fresh := 0
	for _, res := range []*Result{res1, res2} {
		if res == nil || res.State != StateExecuted || !res.Success {
			t.Fatalf("result = %+v, want executed", res)
		}
		if res.EntityID != "delivery-1" {
			t.Errorf("entity = %q, want the shared delivery", res.EntityID)
		}
		if !res.Replayed {
			fresh++
		}
	}
	// Exactly one turn owns the side effect; the joiner is the replay.
	if fresh != 1 {
		t.Errorf("turns reporting a fresh execution = %d, want exactly 1", fresh)
	}
	if got := len(env.trail.all()); got != 1 {
		t.Errorf("audit entries = %d, want 1 (the delivery happened once and must be recorded once)", got)
	}
}

func TestDispatch_DistinctSendsBothDeliver(t *testing.T) {
	env := newTestEnv(t)

	env.turn(t, baseReq("reminder.send", registry.Params{
		"threadId": "t-1", "date": "2026-09-01", "message": "first",
	}))
	env.turn(t, baseReq("reminder.send", registry.Params{
		"threadId": "t-1", "date": "2026-09-02", "message": "second",
	}))

	if got := env.notifier.SentCount("u1", "reminder"); got != 2 {
		t.Errorf("deliveries = %d, want 2", got)
	}
}

func TestDispatch_ActionsWithoutFingerprintNeverDedup(t *testing.T) {
	env := newTestEnv(t)
	params := registry.Params{"content": "met the inspector on site"}

	env.turn(t, baseReq("note.create", params))
	env.turn(t, baseReq("note.create", params))

	recs, _ := env.store.Find(context.Background(), "u1", "note", nil, 0)
	if len(recs) != 2 {
		t.Errorf("notes = %d, want 2 (no idempotency fingerprint declared)", len(recs))
	}
}

func TestDispatch_BackgroundActionAcknowledgedWithJobID(t *testing.T) {
	env := newTestEnv(t)

	res := env.turn(t, baseReq("property.export", nil))
	if res.State != StateAccepted || !res.Success {
		t.Fatalf("state = %v", res.State)
	}
	if res.JobID == "" {
		t.Error("background acknowledgment carries no job handle")
	}
}

func TestDispatch_ChainThreadsStepOutputs(t *testing.T) {
	env := newTestEnv(t)

	res := env.turn(t, TurnRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Chain: []ChainStep{
			{Action: "property.create", Params: registry.Params{
				"address": "12 Harbor Lane", "listingPrice": 450000,
				"bedrooms": 3, "bathrooms": 2, "squareFeet": 1800,
			}},
			{Action: "deal.create", Params: registry.Params{
				"propertyAddress": "$step.0.data.address",
				"amount":          440000,
				"stage":           "offer",
				"clientName":      "Dana Reyes",
			}},
		},
	})
	if res.State != StateExecuted || len(res.Steps) != 2 {
		t.Fatalf("state = %v steps = %d", res.State, len(res.Steps))
	}

	deals, _ := env.store.Find(context.Background(), "u1", "deal", nil, 0)
	if len(deals) != 1 {
		t.Fatalf("deals = %d", len(deals))
	}
	if deals[0].Fields["propertyAddress"] != "12 Harbor Lane" {
		t.Errorf("step reference unresolved: %v", deals[0].Fields["propertyAddress"])
	}
}

func TestDispatch_ChainHaltsAtConfirmationAndResumes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.turn(t, TurnRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Chain: []ChainStep{
			{Action: "message.send", Params: registry.Params{
				"to": "dana@example.com", "body": "offer accepted",
			}},
			{Action: "note.create", Params: registry.Params{
				"content": "told Dana the offer was accepted",
			}},
		},
	})
	if res.State != StateNeedsApproval {
		t.Fatalf("state = %v", res.State)
	}

	// Nothing past the halt point ran.
	if got := env.notifier.SentCount("u1", "message"); got != 0 {
		t.Fatalf("message sent before confirmation: %d", got)
	}
	if recs, _ := env.store.Find(ctx, "u1", "note", nil, 0); len(recs) != 0 {
		t.Fatal("later chain step ran before the halt was confirmed")
	}

	// Confirming resumes the remainder in order.
	res = env.turn(t, replyReq("YES"))
	if res.State != StateExecuted || len(res.Steps) != 2 {
		t.Fatalf("resume: state = %v steps = %d", res.State, len(res.Steps))
	}
	if got := env.notifier.SentCount("u1", "message"); got != 1 {
		t.Errorf("deliveries = %d, want 1", got)
	}
	if recs, _ := env.store.Find(ctx, "u1", "note", nil, 0); len(recs) != 1 {
		t.Errorf("notes = %d, want 1", len(recs))
	}
}

func TestDispatch_ChainFailureRollsBackCompletedSteps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	prop, _ := env.store.Create(ctx, "u1", "property", map[string]any{"address": "12 Harbor Lane"})

	res, err := env.orch.Dispatch(ctx, TurnRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Chain: []ChainStep{
			{Action: "property.archive", Params: registry.Params{"propertyId": prop.ID}},
			{Action: "deal.update", Params: registry.Params{"dealId": "missing", "stage": "closed"}},
		},
	})
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("err = %v, want ErrExecutionFailed", err)
	}
	if res.State != StateFailed {
		t.Fatalf("state = %v", res.State)
	}

	// The archive that completed before the failure was undone.
	got, _ := env.store.Get(ctx, "u1", "property", prop.ID)
	if got.Status != realty.StatusActive {
		t.Errorf("status after rollback = %q, want %q", got.Status, realty.StatusActive)
	}
}

func TestDispatch_SessionsIsolatedPerConversation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	deal, _ := env.store.Create(ctx, "u1", "deal", nil)
	env.turn(t, baseReq("deal.delete", registry.Params{"dealId": deal.ID}))

	// A confirmation reply in a different conversation answers nothing.
	res, err := env.orch.Dispatch(ctx, TurnRequest{
		UserID:         "u1",
		ConversationID: "c2",
		Input:          "YES",
	})
	if err == nil || res.State != StateNotFound {
		t.Fatalf("cross-conversation reply: state = %v err = %v", res.State, err)
	}
	if _, err := env.store.Get(ctx, "u1", "deal", deal.ID); err != nil {
		t.Error("confirmation leaked across conversations")
	}
}

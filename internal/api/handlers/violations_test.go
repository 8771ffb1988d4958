package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/MacJediWizard/slawatch/internal/db"
	"github.com/MacJediWizard/slawatch/internal/escalation"
	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockRetrier struct {
	action *models.EscalationAction
	err    error
	calls  int
}

func (m *mockRetrier) RetryAction(_ context.Context, _, _ uuid.UUID) (*models.EscalationAction, error) {
	m.calls++
	return m.action, m.err
}

func seedViolation(store *mockStore, orgID, policyID uuid.UUID, violatedAt time.Time) *models.SLAViolation {
	v := models.NewSLAViolation(orgID, policyID, uuid.New(), models.ViolationTypeResponse, violatedAt.Add(-time.Hour), violatedAt)
	store.violations[v.ID] = v
	return v
}

func seedAction(store *mockStore, v *models.SLAViolation, status models.ActionStatus) *models.EscalationAction {
	rule := models.NewEscalationRule(v.OrgID, v.PolicyID, 1, 0, models.ActionTypeAutoTransition, map[string]any{"status": "escalated"})
	a := models.NewEscalationAction(v, rule)
	a.Status = status
	store.actions[a.ID] = a
	return a
}

func TestListViolations(t *testing.T) {
	orgID := uuid.New()
	policyID := uuid.New()
	store := newMockStore()
	now := time.Now().UTC()
	seedViolation(store, orgID, policyID, now.Add(-2*time.Hour))
	resolved := seedViolation(store, orgID, policyID, now.Add(-time.Hour))
	resolved.Resolve(models.ViolationStatusResolved, "done")
	seedViolation(store, orgID, uuid.New(), now)
	seedViolation(store, uuid.New(), policyID, now)
	r := setupTenantRouter(NewViolationsHandler(store, &mockRetrier{}, zerolog.Nop()))

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"all", "", 3},
		{"open only", "?status=open", 2},
		{"resolved only", "?status=resolved", 1},
		{"by policy", "?policy_id=" + policyID.String(), 2},
		{"open by policy", "?status=open&policy_id=" + policyID.String(), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, r, "GET", "/api/v1/sla/violations"+tt.query, orgID, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
			}
			resp := decodeJSON[ListResponse[*models.SLAViolation]](t, w)
			if resp.Total != tt.want {
				t.Fatalf("expected %d violations, got %d", tt.want, resp.Total)
			}
		})
	}

	t.Run("newest first", func(t *testing.T) {
		w := doRequest(t, r, "GET", "/api/v1/sla/violations?page_size=2", orgID, nil)
		resp := decodeJSON[ListResponse[*models.SLAViolation]](t, w)
		if len(resp.Items) != 2 || resp.Total != 3 {
			t.Fatalf("expected a page of 2 out of 3, got %d of %d", len(resp.Items), resp.Total)
		}
		if resp.Items[0].ViolatedAt.Before(resp.Items[1].ViolatedAt) {
			t.Fatal("expected newest violation first")
		}
	})

	t.Run("invalid status", func(t *testing.T) {
		w := doRequest(t, r, "GET", "/api/v1/sla/violations?status=pending", orgID, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})
}

func TestGetViolation(t *testing.T) {
	orgID := uuid.New()
	store := newMockStore()
	v := seedViolation(store, orgID, uuid.New(), time.Now())
	seedAction(store, v, models.ActionStatusExecuted)
	seedAction(store, v, models.ActionStatusFailed)
	bare := seedViolation(store, orgID, uuid.New(), time.Now())
	r := setupTenantRouter(NewViolationsHandler(store, &mockRetrier{}, zerolog.Nop()))

	w := doRequest(t, r, "GET", "/api/v1/sla/violations/"+v.ID.String(), orgID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	detail := decodeJSON[ViolationDetail](t, w)
	if detail.SLAViolation == nil || detail.ID != v.ID || len(detail.Actions) != 2 {
		t.Fatalf("unexpected detail: %s", w.Body.String())
	}

	w = doRequest(t, r, "GET", "/api/v1/sla/violations/"+bare.ID.String(), orgID, nil)
	if got := decodeJSON[map[string]any](t, w)["actions"]; got == nil {
		t.Fatal("expected an empty actions list rather than null")
	}

	w = doRequest(t, r, "GET", "/api/v1/sla/violations/"+v.ID.String(), uuid.New(), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for another organization, got %d", w.Code)
	}
}

func TestResolveViolation(t *testing.T) {
	orgID := uuid.New()

	t.Run("defaults to resolved", func(t *testing.T) {
		store := newMockStore()
		v := seedViolation(store, orgID, uuid.New(), time.Now())
		pending := seedAction(store, v, models.ActionStatusPending)
		r := setupTenantRouter(NewViolationsHandler(store, &mockRetrier{}, zerolog.Nop()))

		w := doRequest(t, r, "POST", "/api/v1/sla/violations/"+v.ID.String()+"/resolve", orgID, map[string]any{"resolution": "customer called back"})
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		got := store.violations[v.ID]
		if got.Status != models.ViolationStatusResolved || got.Resolution != "customer called back" || got.ResolvedAt == nil {
			t.Fatalf("unexpected violation: %+v", got)
		}
		if store.actions[pending.ID].Status != models.ActionStatusPending {
			t.Fatal("expected pending actions to be left untouched")
		}
	})

	t.Run("closed", func(t *testing.T) {
		store := newMockStore()
		v := seedViolation(store, orgID, uuid.New(), time.Now())
		r := setupTenantRouter(NewViolationsHandler(store, &mockRetrier{}, zerolog.Nop()))

		w := doRequest(t, r, "POST", "/api/v1/sla/violations/"+v.ID.String()+"/resolve", orgID, map[string]any{"status": "closed"})
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		if store.violations[v.ID].Status != models.ViolationStatusClosed {
			t.Fatalf("expected closed, got %s", store.violations[v.ID].Status)
		}
	})

	t.Run("already resolved", func(t *testing.T) {
		store := newMockStore()
		v := seedViolation(store, orgID, uuid.New(), time.Now())
		v.Resolve(models.ViolationStatusResolved, "")
		r := setupTenantRouter(NewViolationsHandler(store, &mockRetrier{}, zerolog.Nop()))

		w := doRequest(t, r, "POST", "/api/v1/sla/violations/"+v.ID.String()+"/resolve", orgID, map[string]any{})
		if w.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", w.Code)
		}
	})

	t.Run("invalid target status", func(t *testing.T) {
		store := newMockStore()
		v := seedViolation(store, orgID, uuid.New(), time.Now())
		r := setupTenantRouter(NewViolationsHandler(store, &mockRetrier{}, zerolog.Nop()))

		w := doRequest(t, r, "POST", "/api/v1/sla/violations/"+v.ID.String()+"/resolve", orgID, map[string]any{"status": "open"})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
		if !store.violations[v.ID].IsOpen() {
			t.Fatal("expected violation to stay open")
		}
	})
}

func TestListActions(t *testing.T) {
	orgID := uuid.New()
	store := newMockStore()
	v := seedViolation(store, orgID, uuid.New(), time.Now())
	other := seedViolation(store, orgID, uuid.New(), time.Now())
	seedAction(store, v, models.ActionStatusExecuted)
	seedAction(store, v, models.ActionStatusFailed)
	seedAction(store, other, models.ActionStatusFailed)
	r := setupTenantRouter(NewViolationsHandler(store, &mockRetrier{}, zerolog.Nop()))

	w := doRequest(t, r, "GET", "/api/v1/sla/actions?status=failed", orgID, nil)
	if resp := decodeJSON[ListResponse[*models.EscalationAction]](t, w); resp.Total != 2 {
		t.Fatalf("expected 2 failed actions, got %d", resp.Total)
	}

	w = doRequest(t, r, "GET", "/api/v1/sla/actions?violation_id="+v.ID.String(), orgID, nil)
	if resp := decodeJSON[ListResponse[*models.EscalationAction]](t, w); resp.Total != 2 {
		t.Fatalf("expected 2 actions for the violation, got %d", resp.Total)
	}

	w = doRequest(t, r, "GET", "/api/v1/sla/actions?status=done", orgID, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for unknown status, got %d", w.Code)
	}
}

func TestRetryAction(t *testing.T) {
	orgID := uuid.New()
	actionID := uuid.New()

	tests := []struct {
		name     string
		retrier  *mockRetrier
		wantCode int
	}{
		{"executed", &mockRetrier{action: &models.EscalationAction{ID: actionID, Status: models.ActionStatusExecuted}}, http.StatusOK},
		{"not found", &mockRetrier{err: fmt.Errorf("load action: %w", db.ErrNotFound)}, http.StatusNotFound},
		{"not retryable", &mockRetrier{err: fmt.Errorf("%w: status is executed", escalation.ErrNotRetryable)}, http.StatusConflict},
		{"store failure", &mockRetrier{err: fmt.Errorf("claim action: connection reset")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupTenantRouter(NewViolationsHandler(newMockStore(), tt.retrier, zerolog.Nop()))
			w := doRequest(t, r, "POST", "/api/v1/sla/actions/"+actionID.String()+"/retry", orgID, nil)
			if w.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if tt.retrier.calls != 1 {
				t.Fatalf("expected one retry call, got %d", tt.retrier.calls)
			}
		})
	}

	t.Run("invalid id", func(t *testing.T) {
		retrier := &mockRetrier{}
		r := setupTenantRouter(NewViolationsHandler(newMockStore(), retrier, zerolog.Nop()))
		w := doRequest(t, r, "POST", "/api/v1/sla/actions/xyz/retry", orgID, nil)
		if w.Code != http.StatusBadRequest || retrier.calls != 0 {
			t.Fatalf("expected status 400 without a retry, got %d (calls %d)", w.Code, retrier.calls)
		}
	})
}

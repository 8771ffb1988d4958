package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/MacJediWizard/slawatch/internal/api/middleware"
	"github.com/MacJediWizard/slawatch/internal/db"
	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// mockStore is an in-memory store shared by the handler tests. Lookups are
// scoped by organization the way the database store scopes them.
type mockStore struct {
	policies   map[uuid.UUID]*models.SLAPolicy
	calendars  map[uuid.UUID]*models.BusinessCalendar
	rules      map[uuid.UUID]*models.EscalationRule
	violations map[uuid.UUID]*models.SLAViolation
	actions    map[uuid.UUID]*models.EscalationAction

	listErr   error
	createErr error

	lastPage            models.Page
	lastSearch          string
	lastViolationFilter models.ViolationFilter
	lastActionFilter    models.ActionFilter
}

func newMockStore() *mockStore {
	return &mockStore{
		policies:   make(map[uuid.UUID]*models.SLAPolicy),
		calendars:  make(map[uuid.UUID]*models.BusinessCalendar),
		rules:      make(map[uuid.UUID]*models.EscalationRule),
		violations: make(map[uuid.UUID]*models.SLAViolation),
		actions:    make(map[uuid.UUID]*models.EscalationAction),
	}
}

func paginate[T any](items []T, page models.Page) []T {
	start := page.Offset()
	if start >= len(items) {
		return nil
	}
	end := min(start+page.Size, len(items))
	return items[start:end]
}

// Policies

func (m *mockStore) ListSLAPoliciesByOrg(_ context.Context, orgID uuid.UUID, search string, page models.Page) ([]*models.SLAPolicy, int, error) {
	m.lastPage = page
	m.lastSearch = search
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var out []*models.SLAPolicy
	for _, p := range m.policies {
		if p.OrgID != orgID || p.IsDeleted() {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(search)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return paginate(out, page), len(out), nil
}

func (m *mockStore) GetSLAPolicy(_ context.Context, orgID, id uuid.UUID) (*models.SLAPolicy, error) {
	p, ok := m.policies[id]
	if !ok || p.OrgID != orgID || p.IsDeleted() {
		return nil, db.ErrNotFound
	}
	return p, nil
}

func (m *mockStore) CreateSLAPolicy(_ context.Context, p *models.SLAPolicy) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.policies[p.ID] = p
	return nil
}

func (m *mockStore) UpdateSLAPolicy(_ context.Context, p *models.SLAPolicy) error {
	if _, ok := m.policies[p.ID]; !ok {
		return db.ErrNotFound
	}
	m.policies[p.ID] = p
	return nil
}

func (m *mockStore) DeleteSLAPolicy(_ context.Context, orgID, id uuid.UUID) error {
	p, ok := m.policies[id]
	if !ok || p.OrgID != orgID {
		return db.ErrNotFound
	}
	delete(m.policies, id)
	return nil
}

// Calendars

func (m *mockStore) ListBusinessCalendarsByOrg(_ context.Context, orgID uuid.UUID) ([]*models.BusinessCalendar, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.BusinessCalendar
	for _, c := range m.calendars {
		if c.OrgID == orgID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockStore) GetBusinessCalendar(_ context.Context, orgID, id uuid.UUID) (*models.BusinessCalendar, error) {
	c, ok := m.calendars[id]
	if !ok || c.OrgID != orgID {
		return nil, db.ErrNotFound
	}
	return c, nil
}

func (m *mockStore) CreateBusinessCalendar(_ context.Context, c *models.BusinessCalendar) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.calendars[c.ID] = c
	return nil
}

func (m *mockStore) UpdateBusinessCalendar(_ context.Context, c *models.BusinessCalendar) error {
	if _, ok := m.calendars[c.ID]; !ok {
		return db.ErrNotFound
	}
	m.calendars[c.ID] = c
	return nil
}

func (m *mockStore) DeleteBusinessCalendar(_ context.Context, orgID, id uuid.UUID) error {
	c, ok := m.calendars[id]
	if !ok || c.OrgID != orgID {
		return db.ErrNotFound
	}
	for _, p := range m.policies {
		if p.CalendarID != nil && *p.CalendarID == id && !p.IsDeleted() {
			return db.ErrConflict
		}
	}
	delete(m.calendars, id)
	return nil
}

// Escalation rules

func (m *mockStore) ListEscalationRules(_ context.Context, orgID uuid.UUID, policyID *uuid.UUID, page models.Page) ([]*models.EscalationRule, int, error) {
	m.lastPage = page
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var out []*models.EscalationRule
	for _, r := range m.rules {
		if r.OrgID != orgID || r.IsDeleted() {
			continue
		}
		if policyID != nil && r.PolicyID != *policyID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return paginate(out, page), len(out), nil
}

func (m *mockStore) GetEscalationRule(_ context.Context, orgID, id uuid.UUID) (*models.EscalationRule, error) {
	r, ok := m.rules[id]
	if !ok || r.OrgID != orgID || r.IsDeleted() {
		return nil, db.ErrNotFound
	}
	return r, nil
}

func (m *mockStore) CreateEscalationRule(_ context.Context, r *models.EscalationRule) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.rules[r.ID] = r
	return nil
}

func (m *mockStore) UpdateEscalationRule(_ context.Context, r *models.EscalationRule) error {
	if _, ok := m.rules[r.ID]; !ok {
		return db.ErrNotFound
	}
	m.rules[r.ID] = r
	return nil
}

func (m *mockStore) DeleteEscalationRule(_ context.Context, orgID, id uuid.UUID) error {
	r, ok := m.rules[id]
	if !ok || r.OrgID != orgID {
		return db.ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

// Violations and actions

func (m *mockStore) ListSLAViolations(_ context.Context, orgID uuid.UUID, filter models.ViolationFilter) ([]*models.SLAViolation, int, error) {
	m.lastViolationFilter = filter
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var out []*models.SLAViolation
	for _, v := range m.violations {
		if v.OrgID != orgID {
			continue
		}
		if filter.Status != "" && v.Status != filter.Status {
			continue
		}
		if filter.PolicyID != nil && v.PolicyID != *filter.PolicyID {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ViolatedAt.After(out[j].ViolatedAt) })
	return paginate(out, filter.Page), len(out), nil
}

func (m *mockStore) GetSLAViolation(_ context.Context, orgID, id uuid.UUID) (*models.SLAViolation, error) {
	v, ok := m.violations[id]
	if !ok || v.OrgID != orgID {
		return nil, db.ErrNotFound
	}
	return v, nil
}

func (m *mockStore) ResolveSLAViolation(_ context.Context, v *models.SLAViolation) error {
	if _, ok := m.violations[v.ID]; !ok {
		return db.ErrNotFound
	}
	m.violations[v.ID] = v
	return nil
}

func (m *mockStore) ListEscalationActionsByViolation(_ context.Context, orgID, violationID uuid.UUID) ([]*models.EscalationAction, error) {
	var out []*models.EscalationAction
	for _, a := range m.actions {
		if a.OrgID == orgID && a.ViolationID == violationID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockStore) ListEscalationActions(_ context.Context, orgID uuid.UUID, filter models.ActionFilter) ([]*models.EscalationAction, int, error) {
	m.lastActionFilter = filter
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var out []*models.EscalationAction
	for _, a := range m.actions {
		if a.OrgID != orgID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.ViolationID != nil && a.ViolationID != *filter.ViolationID {
			continue
		}
		out = append(out, a)
	}
	return paginate(out, filter.Page), len(out), nil
}

// Request helpers

type routeRegistrar interface {
	RegisterRoutes(r *gin.RouterGroup)
}

func setupTenantRouter(h routeRegistrar) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1/sla")
	api.Use(middleware.TenantMiddleware(zerolog.Nop()))
	h.RegisterRoutes(api)
	return r
}

func doRequest(t *testing.T, r http.Handler, method, path string, orgID uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, path, &buf)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if orgID != uuid.Nil {
		req.Header.Set(middleware.OrgIDHeader, orgID.String())
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

package handlers

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func seedPolicy(store *mockStore, orgID uuid.UUID, name string) *models.SLAPolicy {
	p := models.NewSLAPolicy(orgID, name, 4, 24)
	store.policies[p.ID] = p
	return p
}

func TestListSLAPolicies(t *testing.T) {
	orgID := uuid.New()

	t.Run("scoped to organization", func(t *testing.T) {
		store := newMockStore()
		seedPolicy(store, orgID, "Gold")
		seedPolicy(store, orgID, "Silver")
		seedPolicy(store, uuid.New(), "Foreign")
		r := setupTenantRouter(NewSLAHandler(store, zerolog.Nop()))

		w := doRequest(t, r, "GET", "/api/v1/sla/policies", orgID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		resp := decodeJSON[ListResponse[*models.SLAPolicy]](t, w)
		if resp.Total != 2 || len(resp.Items) != 2 {
			t.Fatalf("expected 2 policies, got total=%d items=%d", resp.Total, len(resp.Items))
		}
		if resp.Page != 1 || resp.PageSize != models.DefaultPageSize {
			t.Fatalf("unexpected paging: page=%d size=%d", resp.Page, resp.PageSize)
		}
	})

	t.Run("search and paging", func(t *testing.T) {
		store := newMockStore()
		seedPolicy(store, orgID, "Gold")
		r := setupTenantRouter(NewSLAHandler(store, zerolog.Nop()))

		w := doRequest(t, r, "GET", "/api/v1/sla/policies?search=+gold+&page=2&page_size=500", orgID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		if store.lastSearch != "gold" {
			t.Fatalf("expected trimmed search, got %q", store.lastSearch)
		}
		if store.lastPage.Number != 2 || store.lastPage.Size != models.MaxPageSize {
			t.Fatalf("expected clamped page, got %+v", store.lastPage)
		}
		resp := decodeJSON[ListResponse[*models.SLAPolicy]](t, w)
		if resp.Items == nil || len(resp.Items) != 0 {
			t.Fatalf("expected empty item list, got %v", resp.Items)
		}
	})

	t.Run("missing organization", func(t *testing.T) {
		r := setupTenantRouter(NewSLAHandler(newMockStore(), zerolog.Nop()))
		w := doRequest(t, r, "GET", "/api/v1/sla/policies", uuid.Nil, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("store error", func(t *testing.T) {
		store := newMockStore()
		store.listErr = errors.New("db down")
		r := setupTenantRouter(NewSLAHandler(store, zerolog.Nop()))
		w := doRequest(t, r, "GET", "/api/v1/sla/policies", orgID, nil)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status 500, got %d", w.Code)
		}
	})
}

func TestCreateSLAPolicy(t *testing.T) {
	orgID := uuid.New()

	t.Run("success", func(t *testing.T) {
		store := newMockStore()
		r := setupTenantRouter(NewSLAHandler(store, zerolog.Nop()))

		w := doRequest(t, r, "POST", "/api/v1/sla/policies", orgID, map[string]any{
			"name":                  "Gold",
			"task_type":             "incident",
			"priority":              "high",
			"response_time_hours":   4,
			"resolution_time_hours": 24,
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
		}
		p := decodeJSON[models.SLAPolicy](t, w)
		if p.OrgID != orgID || !p.IsActive || p.TaskType != "incident" || p.Priority != "high" {
			t.Fatalf("unexpected policy: %+v", p)
		}
		if len(store.policies) != 1 {
			t.Fatalf("expected policy to be stored")
		}
	})

	t.Run("with calendar", func(t *testing.T) {
		store := newMockStore()
		cal := models.NewBusinessCalendar(orgID, "Office")
		store.calendars[cal.ID] = cal
		r := setupTenantRouter(NewSLAHandler(store, zerolog.Nop()))

		w := doRequest(t, r, "POST", "/api/v1/sla/policies", orgID, map[string]any{
			"name":                "Gold",
			"response_time_hours": 4,
			"calendar_id":         cal.ID,
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
		}
		p := decodeJSON[models.SLAPolicy](t, w)
		if p.CalendarID == nil || *p.CalendarID != cal.ID {
			t.Fatalf("expected calendar to be attached, got %v", p.CalendarID)
		}
	})

	t.Run("calendar of another organization", func(t *testing.T) {
		store := newMockStore()
		cal := models.NewBusinessCalendar(uuid.New(), "Office")
		store.calendars[cal.ID] = cal
		r := setupTenantRouter(NewSLAHandler(store, zerolog.Nop()))

		w := doRequest(t, r, "POST", "/api/v1/sla/policies", orgID, map[string]any{
			"name":                "Gold",
			"response_time_hours": 4,
			"calendar_id":         cal.ID,
		})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
		if len(store.policies) != 0 {
			t.Fatal("expected no policy to be stored")
		}
	})

	t.Run("invalid budget", func(t *testing.T) {
		r := setupTenantRouter(NewSLAHandler(newMockStore(), zerolog.Nop()))
		w := doRequest(t, r, "POST", "/api/v1/sla/policies", orgID, map[string]any{
			"name":                "Gold",
			"response_time_hours": 0,
		})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		r := setupTenantRouter(NewSLAHandler(newMockStore(), zerolog.Nop()))
		w := doRequest(t, r, "POST", "/api/v1/sla/policies", orgID, "{not json")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("store error", func(t *testing.T) {
		store := newMockStore()
		store.createErr = errors.New("db down")
		r := setupTenantRouter(NewSLAHandler(store, zerolog.Nop()))
		w := doRequest(t, r, "POST", "/api/v1/sla/policies", orgID, map[string]any{
			"name":                "Gold",
			"response_time_hours": 4,
		})
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status 500, got %d", w.Code)
		}
	})
}

func TestGetSLAPolicy(t *testing.T) {
	orgID := uuid.New()
	store := newMockStore()
	p := seedPolicy(store, orgID, "Gold")
	r := setupTenantRouter(NewSLAHandler(store, zerolog.Nop()))

	t.Run("found", func(t *testing.T) {
		w := doRequest(t, r, "GET", "/api/v1/sla/policies/"+p.ID.String(), orgID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
	})

	t.Run("other organization", func(t *testing.T) {
		w := doRequest(t, r, "GET", "/api/v1/sla/policies/"+p.ID.String(), uuid.New(), nil)
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", w.Code)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		w := doRequest(t, r, "GET", "/api/v1/sla/policies/not-a-uuid", orgID, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})
}

func TestUpdateSLAPolicy(t *testing.T) {
	orgID := uuid.New()

	t.Run("partial update", func(t *testing.T) {
		store := newMockStore()
		p := seedPolicy(store, orgID, "Gold")
		r := setupTenantRouter(NewSLAHandler(store, zerolog.Nop()))

		w := doRequest(t, r, "PUT", "/api/v1/sla/policies/"+p.ID.String(), orgID, map[string]any{
			"response_time_hours": 2,
			"is_active":           false,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		updated := store.policies[p.ID]
		if updated.ResponseTimeHours != 2 || updated.IsActive || updated.Name != "Gold" {
			t.Fatalf("unexpected policy after update: %+v", updated)
		}
	})

	t.Run("clear calendar", func(t *testing.T) {
		store := newMockStore()
		p := seedPolicy(store, orgID, "Gold")
		cal := models.NewBusinessCalendar(orgID, "Office")
		p.CalendarID = &cal.ID
		p.Calendar = cal
		r := setupTenantRouter(NewSLAHandler(store, zerolog.Nop()))

		w := doRequest(t, r, "PUT", "/api/v1/sla/policies/"+p.ID.String(), orgID, map[string]any{"clear_calendar": true})
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		if store.policies[p.ID].CalendarID != nil {
			t.Fatal("expected calendar to be cleared")
		}
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		store := newMockStore()
		p := seedPolicy(store, orgID, "Gold")
		r := setupTenantRouter(NewSLAHandler(store, zerolog.Nop()))

		for _, body := range []map[string]any{
			{"name": "  "},
			{"response_time_hours": -1},
			{"resolution_time_hours": -1},
		} {
			w := doRequest(t, r, "PUT", "/api/v1/sla/policies/"+p.ID.String(), orgID, body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400 for %v, got %d", body, w.Code)
			}
		}
	})

	t.Run("not found", func(t *testing.T) {
		r := setupTenantRouter(NewSLAHandler(newMockStore(), zerolog.Nop()))
		w := doRequest(t, r, "PUT", "/api/v1/sla/policies/"+uuid.NewString(), orgID, map[string]any{"name": "x"})
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", w.Code)
		}
	})
}

func TestDeleteSLAPolicy(t *testing.T) {
	orgID := uuid.New()
	store := newMockStore()
	p := seedPolicy(store, orgID, "Gold")
	r := setupTenantRouter(NewSLAHandler(store, zerolog.Nop()))

	w := doRequest(t, r, "DELETE", "/api/v1/sla/policies/"+p.ID.String(), uuid.New(), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for another organization, got %d", w.Code)
	}

	w = doRequest(t, r, "DELETE", "/api/v1/sla/policies/"+p.ID.String(), orgID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if _, ok := store.policies[p.ID]; ok {
		t.Fatal("expected policy to be removed")
	}
}

func TestSLAPolicyDueDate(t *testing.T) {
	orgID := uuid.New()

	t.Run("wall clock", func(t *testing.T) {
		store := newMockStore()
		p := seedPolicy(store, orgID, "Gold")
		r := setupTenantRouter(NewSLAHandler(store, zerolog.Nop()))

		w := doRequest(t, r, "GET", "/api/v1/sla/policies/"+p.ID.String()+"/due-date?start=2024-01-05T15:00:00Z", orgID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		resp := decodeJSON[DueDateResponse](t, w)
		if !resp.ResponseDue.Equal(time.Date(2024, 1, 5, 19, 0, 0, 0, time.UTC)) {
			t.Fatalf("unexpected response due %v", resp.ResponseDue)
		}
		if resp.ResolutionDue == nil || !resp.ResolutionDue.Equal(time.Date(2024, 1, 6, 15, 0, 0, 0, time.UTC)) {
			t.Fatalf("unexpected resolution due %v", resp.ResolutionDue)
		}
	})

	t.Run("business hours skip the weekend", func(t *testing.T) {
		store := newMockStore()
		p := seedPolicy(store, orgID, "Gold")
		cal := models.NewBusinessCalendar(orgID, "Office")
		p.CalendarID = &cal.ID
		p.Calendar = cal
		p.ResolutionTimeHours = 0
		r := setupTenantRouter(NewSLAHandler(store, zerolog.Nop()))

		// Friday 15:00 plus 4 working hours is Monday 11:00.
		w := doRequest(t, r, "GET", "/api/v1/sla/policies/"+p.ID.String()+"/due-date?start=2024-01-05T15:00:00Z", orgID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		resp := decodeJSON[DueDateResponse](t, w)
		if !resp.ResponseDue.Equal(time.Date(2024, 1, 8, 11, 0, 0, 0, time.UTC)) {
			t.Fatalf("unexpected response due %v", resp.ResponseDue)
		}
		if resp.ResolutionDue != nil {
			t.Fatalf("expected no resolution deadline, got %v", resp.ResolutionDue)
		}
	})

	t.Run("unusable calendar", func(t *testing.T) {
		store := newMockStore()
		p := seedPolicy(store, orgID, "Gold")
		cal := models.NewBusinessCalendar(orgID, "Broken")
		cal.WorkDays = nil
		p.CalendarID = &cal.ID
		p.Calendar = cal
		r := setupTenantRouter(NewSLAHandler(store, zerolog.Nop()))

		w := doRequest(t, r, "GET", "/api/v1/sla/policies/"+p.ID.String()+"/due-date", orgID, nil)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d", w.Code)
		}
	})

	t.Run("invalid start", func(t *testing.T) {
		store := newMockStore()
		p := seedPolicy(store, orgID, "Gold")
		r := setupTenantRouter(NewSLAHandler(store, zerolog.Nop()))

		w := doRequest(t, r, "GET", "/api/v1/sla/policies/"+p.ID.String()+"/due-date?start=yesterday", orgID, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})
}

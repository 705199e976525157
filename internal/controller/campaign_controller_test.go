package controller_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hearthside/crm-backend/internal/auth"
	"github.com/hearthside/crm-backend/internal/controller"
	"github.com/hearthside/crm-backend/internal/delivery"
	"github.com/hearthside/crm-backend/internal/lifecycle"
	"github.com/hearthside/crm-backend/internal/model"
	"github.com/hearthside/crm-backend/internal/repository"
	"github.com/hearthside/crm-backend/internal/scheduler"
	"github.com/hearthside/crm-backend/internal/segment"
	"github.com/hearthside/crm-backend/internal/service"
)

var frozenNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type countingEnqueuer struct {
	mu   sync.Mutex
	jobs []delivery.Job
}

func (e *countingEnqueuer) Enqueue(job delivery.Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, job)
	return nil
}

func (e *countingEnqueuer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.jobs)
}

type apiEnv struct {
	router    chi.Router
	campaigns *repository.MemoryCampaignRepository
	segments  *repository.MemorySegmentRepository
	contacts  *repository.MemoryContactRepository
	enqueuer  *countingEnqueuer
}

func newAPI(t *testing.T) *apiEnv {
	t.Helper()

	campaigns := repository.NewMemoryCampaignRepository()
	segments := repository.NewMemorySegmentRepository()
	contacts := repository.NewMemoryContactRepository()
	sendLog := repository.NewMemorySendLog()

	machine := &lifecycle.Machine{
		CampaignRepo: campaigns,
		Now:          func() time.Time { return frozenNow },
	}
	resolver := &segment.Resolver{
		SegmentRepo:   segments,
		ContactRepo:   contacts,
		PublicBaseURL: "https://crm.test",
	}
	enq := &countingEnqueuer{}
	dispatcher := &scheduler.Dispatcher{
		Resolver: resolver,
		Machine:  machine,
		Enqueuer: enq,
	}
	svc := &service.CampaignService{
		CampaignRepo: campaigns,
		SegmentRepo:  segments,
		SendLog:      sendLog,
		Machine:      machine,
		Dispatcher:   dispatcher,
	}
	ctrl := &controller.CampaignController{CampaignService: svc}

	sessions := auth.StaticSessionStore{"tok-a": "org-a", "tok-b": "org-b"}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(sessions))
		r.Post("/campaigns", ctrl.CreateCampaign)
		r.Get("/campaigns", ctrl.ListCampaigns)
		r.Get("/campaigns/{id}", ctrl.GetCampaign)
		r.Patch("/campaigns/{id}", ctrl.UpdateCampaign)
		r.Delete("/campaigns/{id}", ctrl.DeleteCampaign)
		r.Post("/campaigns/{id}/send", ctrl.SendCampaign)
	})

	return &apiEnv{
		router:    r,
		campaigns: campaigns,
		segments:  segments,
		contacts:  contacts,
		enqueuer:  enq,
	}
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

// seedSegment creates n contacts in org and a segment containing them.
func (e *apiEnv) seedSegment(t *testing.T, org string, n int) string {
	t.Helper()
	members := []string{}
	for i := 0; i < n; i++ {
		c := &model.Contact{
			OrgID:     org,
			Email:     fmt.Sprintf("contact-%d@example.org", i),
			FirstName: fmt.Sprintf("First%d", i),
		}
		if err := e.contacts.Create(c); err != nil {
			t.Fatalf("seed contact: %v", err)
		}
		members = append(members, c.ID)
	}
	s := &model.Segment{OrgID: org, Name: "supporters", Members: members}
	if err := e.segments.Create(s); err != nil {
		t.Fatalf("seed segment: %v", err)
	}
	return s.ID
}

func (e *apiEnv) createCampaign(t *testing.T, token, segmentID string) string {
	t.Helper()
	body := map[string]any{
		"name":         "Spring appeal",
		"content_json": json.RawMessage(`[{"id":"b1","type":"heading","content":"Hello {{first_name}}"}]`),
	}
	if segmentID != "" {
		body["segment_id"] = segmentID
	}
	w := e.do(t, "POST", "/campaigns", token, body)
	if w.Code != http.StatusOK {
		t.Fatalf("create campaign: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		Campaign model.Campaign `json:"campaign"`
	}
	decodeJSON(t, w, &res)
	if res.Campaign.Status != model.StatusDraft {
		t.Fatalf("new campaign status = %q, want draft", res.Campaign.Status)
	}
	return res.Campaign.ID
}

func TestSendCampaignNow(t *testing.T) {
	env := newAPI(t)
	segID := env.seedSegment(t, "org-a", 2)
	id := env.createCampaign(t, "tok-a", segID)

	w := env.do(t, "POST", "/campaigns/"+id+"/send", "tok-a", map[string]any{})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res struct {
		Status string `json:"status"`
	}
	decodeJSON(t, w, &res)
	if res.Status != model.StatusSent {
		t.Errorf("status = %q, want sent", res.Status)
	}
	if got := env.enqueuer.count(); got != 2 {
		t.Errorf("enqueued %d jobs, want 2", got)
	}
	for _, job := range env.enqueuer.jobs {
		if job.Expected != 2 {
			t.Errorf("job expected count = %d, want 2", job.Expected)
		}
		if job.Recipient.Variables["unsubscribe_url"] == "" {
			t.Errorf("job for %s missing unsubscribe_url", job.Recipient.Email)
		}
	}
}

func TestSendCampaignScheduled(t *testing.T) {
	env := newAPI(t)
	segID := env.seedSegment(t, "org-a", 2)
	id := env.createCampaign(t, "tok-a", segID)

	sendAt := frozenNow.Add(time.Hour)
	w := env.do(t, "POST", "/campaigns/"+id+"/send", "tok-a", map[string]any{"sendAt": sendAt})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res struct {
		Status string `json:"status"`
	}
	decodeJSON(t, w, &res)
	if res.Status != model.StatusScheduled {
		t.Errorf("status = %q, want scheduled", res.Status)
	}
	if got := env.enqueuer.count(); got != 0 {
		t.Errorf("enqueued %d jobs before due time, want 0", got)
	}
}

func TestSendCampaignTwiceRejected(t *testing.T) {
	env := newAPI(t)
	segID := env.seedSegment(t, "org-a", 1)
	id := env.createCampaign(t, "tok-a", segID)

	if w := env.do(t, "POST", "/campaigns/"+id+"/send", "tok-a", map[string]any{}); w.Code != http.StatusOK {
		t.Fatalf("first send: expected 200, got %d", w.Code)
	}
	if w := env.do(t, "POST", "/campaigns/"+id+"/send", "tok-a", map[string]any{}); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("second send: expected 422, got %d", w.Code)
	}
}

func TestCampaignOrgScoping(t *testing.T) {
	env := newAPI(t)
	id := env.createCampaign(t, "tok-a", "")

	if w := env.do(t, "GET", "/campaigns/"+id, "tok-b", nil); w.Code != http.StatusForbidden {
		t.Errorf("cross-org get: expected 403, got %d", w.Code)
	}
	if w := env.do(t, "GET", "/campaigns/no-such-id", "tok-a", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown id: expected 404, got %d", w.Code)
	}
	if w := env.do(t, "GET", "/campaigns/"+id, "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no session: expected 401, got %d", w.Code)
	}
}

func TestUpdateLockedAfterSchedule(t *testing.T) {
	env := newAPI(t)
	segID := env.seedSegment(t, "org-a", 1)
	id := env.createCampaign(t, "tok-a", segID)

	patch := map[string]any{"name": "Renamed"}
	if w := env.do(t, "PATCH", "/campaigns/"+id, "tok-a", patch); w.Code != http.StatusOK {
		t.Fatalf("patch draft: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	sendAt := frozenNow.Add(time.Hour)
	if w := env.do(t, "POST", "/campaigns/"+id+"/send", "tok-a", map[string]any{"sendAt": sendAt}); w.Code != http.StatusOK {
		t.Fatalf("schedule: expected 200, got %d", w.Code)
	}

	if w := env.do(t, "PATCH", "/campaigns/"+id, "tok-a", patch); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("patch scheduled campaign: expected 422, got %d", w.Code)
	}
}

func TestMalformedBodyRejectedAsValidationError(t *testing.T) {
	env := newAPI(t)
	id := env.createCampaign(t, "tok-a", "")

	paths := []struct {
		method, path string
	}{
		{"POST", "/campaigns"},
		{"PATCH", "/campaigns/" + id},
		{"POST", "/campaigns/" + id + "/send"},
	}
	for _, p := range paths {
		req := httptest.NewRequest(p.method, p.path, strings.NewReader(`{"name": truncated`))
		req.Header.Set("Authorization", "Bearer tok-a")
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s %s with malformed body: expected 422, got %d", p.method, p.path, w.Code)
		}
	}
}

func TestCreateCampaignBadSegmentRef(t *testing.T) {
	env := newAPI(t)

	body := map[string]any{"name": "Bad ref", "segment_id": "no-such-segment"}
	if w := env.do(t, "POST", "/campaigns", "tok-a", body); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown segment: expected 422, got %d", w.Code)
	}

	otherOrg := env.seedSegment(t, "org-b", 1)
	body["segment_id"] = otherOrg
	if w := env.do(t, "POST", "/campaigns", "tok-a", body); w.Code != http.StatusForbidden {
		t.Errorf("cross-org segment: expected 403, got %d", w.Code)
	}
}

func TestListCampaignsPagination(t *testing.T) {
	env := newAPI(t)
	for i := 0; i < 25; i++ {
		c := &model.Campaign{OrgID: "org-a", Name: fmt.Sprintf("Campaign %d", i), Status: model.StatusDraft}
		if err := env.campaigns.Create(c); err != nil {
			t.Fatalf("seed campaign: %v", err)
		}
	}

	w := env.do(t, "GET", "/campaigns?page=2&page_size=10", "tok-a", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var res struct {
		Campaigns  []model.Campaign `json:"campaigns"`
		Pagination map[string]int   `json:"pagination"`
	}
	decodeJSON(t, w, &res)
	if len(res.Campaigns) != 10 {
		t.Errorf("page 2 has %d campaigns, want 10", len(res.Campaigns))
	}
	if res.Pagination["total_count"] != 25 {
		t.Errorf("total_count = %d, want 25", res.Pagination["total_count"])
	}
	if res.Pagination["total_pages"] != 3 {
		t.Errorf("total_pages = %d, want 3", res.Pagination["total_pages"])
	}
}

func TestDeleteCampaign(t *testing.T) {
	env := newAPI(t)
	id := env.createCampaign(t, "tok-a", "")

	if w := env.do(t, "DELETE", "/campaigns/"+id, "tok-a", nil); w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}
	if w := env.do(t, "GET", "/campaigns/"+id, "tok-a", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: expected 404, got %d", w.Code)
	}
}

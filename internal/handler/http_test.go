package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hearthside/crm-backend/internal/auth"
	"github.com/hearthside/crm-backend/internal/delivery"
	"github.com/hearthside/crm-backend/internal/draft"
	"github.com/hearthside/crm-backend/internal/handler"
	"github.com/hearthside/crm-backend/internal/lifecycle"
	"github.com/hearthside/crm-backend/internal/model"
	"github.com/hearthside/crm-backend/internal/repository"
	"github.com/hearthside/crm-backend/internal/scheduler"
	"github.com/hearthside/crm-backend/internal/segment"
	"github.com/hearthside/crm-backend/internal/service"
)

var frozenNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type sinkEnqueuer struct {
	mu   sync.Mutex
	jobs []delivery.Job
}

func (e *sinkEnqueuer) Enqueue(job delivery.Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, job)
	return nil
}

type httpEnv struct {
	router    chi.Router
	campaigns *repository.MemoryCampaignRepository
	segments  *repository.MemorySegmentRepository
	contacts  *repository.MemoryContactRepository
	sequences *repository.MemorySequenceRepository
	enqueuer  *sinkEnqueuer
}

func newEnv(t *testing.T) *httpEnv {
	t.Helper()

	campaigns := repository.NewMemoryCampaignRepository()
	segments := repository.NewMemorySegmentRepository()
	contacts := repository.NewMemoryContactRepository()
	sequences := repository.NewMemorySequenceRepository()
	sendLog := repository.NewMemorySendLog()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	machine := &lifecycle.Machine{
		CampaignRepo: campaigns,
		Now:          func() time.Time { return frozenNow },
	}
	enq := &sinkEnqueuer{}
	dispatcher := &scheduler.Dispatcher{
		Resolver: &segment.Resolver{
			SegmentRepo:   segments,
			ContactRepo:   contacts,
			PublicBaseURL: "https://crm.test",
		},
		Machine:  machine,
		Enqueuer: enq,
		Log:      logger,
	}
	campaignService := &service.CampaignService{
		CampaignRepo: campaigns,
		SegmentRepo:  segments,
		SendLog:      sendLog,
		Machine:      machine,
		Dispatcher:   dispatcher,
		Log:          logger,
	}
	sequenceService := &service.SequenceService{
		SequenceRepo: sequences,
		Campaigns:    campaignService,
		Log:          logger,
		Now:          func() time.Time { return frozenNow },
	}
	sched := &scheduler.Scheduler{
		CampaignRepo: campaigns,
		Machine:      machine,
		Dispatcher:   dispatcher,
		Log:          logger,
		Now:          func() time.Time { return frozenNow },
	}

	store := draft.NewMemoryStore()
	sessions := auth.StaticSessionStore{"tok-a": "org-a", "tok-b": "org-b"}

	segmentHandler := &handler.SegmentHandler{Repo: segments, Log: logger}
	sequenceHandler := &handler.SequenceHandler{Service: sequenceService}

	r := chi.NewRouter()
	r.Post("/scheduler/run", handler.RunScheduler(logger, sched))
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(sessions))
		r.Get("/autosave", handler.LoadDraft(logger, store))
		r.Post("/autosave", handler.SaveDraft(logger, store))
		r.Post("/email/render", handler.RenderPreview())
		r.Post("/segments", segmentHandler.Create)
		r.Get("/segments/{id}", segmentHandler.Get)
		r.Post("/segments/{id}/members", segmentHandler.AddMembers)
		r.Delete("/segments/{id}/members", segmentHandler.RemoveMembers)
		r.Post("/sequences", sequenceHandler.Create)
		r.Post("/sequences/{id}/start", sequenceHandler.Start)
	})

	return &httpEnv{
		router:    r,
		campaigns: campaigns,
		segments:  segments,
		contacts:  contacts,
		sequences: sequences,
		enqueuer:  enq,
	}
}

func (e *httpEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
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

func TestAutosaveRequiresSession(t *testing.T) {
	env := newEnv(t)
	if w := env.do(t, "GET", "/autosave?key=campaign-1", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", w.Code)
	}
	if w := env.do(t, "GET", "/autosave?key=campaign-1", "bogus", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unknown token: expected 401, got %d", w.Code)
	}
}

func TestAutosaveMissingKey(t *testing.T) {
	env := newEnv(t)
	if w := env.do(t, "GET", "/autosave", "tok-a", nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}
}

func TestAutosaveUnknownKey(t *testing.T) {
	env := newEnv(t)
	if w := env.do(t, "GET", "/autosave?key=never-saved", "tok-a", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestAutosaveLastWriteWins(t *testing.T) {
	env := newEnv(t)

	save := func(data string) {
		body := map[string]any{"key": "campaign-1", "data": json.RawMessage(data)}
		if w := env.do(t, "POST", "/autosave", "tok-a", body); w.Code != http.StatusOK {
			t.Fatalf("save: expected 200, got %d: %s", w.Code, w.Body.String())
		}
	}
	save(`{"title":"first"}`)
	save(`{"title":"second"}`)

	w := env.do(t, "GET", "/autosave?key=campaign-1", "tok-a", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("load: expected 200, got %d", w.Code)
	}
	var entry struct {
		Key  string          `json:"key"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(string(entry.Data), "second") {
		t.Errorf("loaded data = %s, want the later write", entry.Data)
	}

	// Drafts are scoped per org, not shared.
	if w := env.do(t, "GET", "/autosave?key=campaign-1", "tok-b", nil); w.Code != http.StatusNotFound {
		t.Errorf("other org load: expected 404, got %d", w.Code)
	}
}

func TestRenderPreview(t *testing.T) {
	env := newEnv(t)

	body := map[string]any{
		"content_json": json.RawMessage(`[
			{"id":"b1","type":"heading","content":"Hello {{first_name}}"},
			{"id":"b2","type":"paragraph","content":"<script>alert(1)</script>"}
		]`),
		"variables": map[string]string{"first_name": "Amara"},
	}
	w := env.do(t, "POST", "/email/render", "tok-a", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res map[string]string
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	html := res["html"]
	if !strings.Contains(html, "<h1>Hello Amara</h1>") {
		t.Errorf("heading missing or unsubstituted: %q", html)
	}
	if strings.Contains(html, "<script>") {
		t.Errorf("markup not escaped: %q", html)
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Errorf("expected escaped script tag in %q", html)
	}
}

func TestRenderPreviewBadContent(t *testing.T) {
	env := newEnv(t)
	body := map[string]any{"content_json": json.RawMessage(`"not blocks at all {"`)}
	if w := env.do(t, "POST", "/email/render", "tok-a", body); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSegmentMemberSetOps(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, "POST", "/segments", "tok-a", map[string]any{"name": "majors"})
	if w.Code != http.StatusOK {
		t.Fatalf("create segment: expected 200, got %d", w.Code)
	}
	var created struct {
		Segment model.Segment `json:"segment"`
	}
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id := created.Segment.ID

	addMembers := func(ids []string) []string {
		t.Helper()
		w := env.do(t, "POST", "/segments/"+id+"/members", "tok-a", map[string]any{"contactIds": ids})
		if w.Code != http.StatusOK {
			t.Fatalf("add members: expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var res struct {
			Members []string `json:"members"`
		}
		if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return res.Members
	}

	addMembers([]string{"c-a", "c-b"})
	// Overlapping add stays a set.
	got := addMembers([]string{"c-b", "c-c"})
	if want := []string{"c-a", "c-b", "c-c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("members after adds = %v, want %v", got, want)
	}

	w = env.do(t, "DELETE", "/segments/"+id+"/members", "tok-a", map[string]any{"contactIds": []string{"c-a", "c-missing"}})
	if w.Code != http.StatusOK {
		t.Fatalf("remove members: expected 200, got %d", w.Code)
	}
	var res struct {
		Members []string `json:"members"`
	}
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if want := []string{"c-b", "c-c"}; !reflect.DeepEqual(res.Members, want) {
		t.Errorf("members after removal = %v, want %v", res.Members, want)
	}
}

func TestSegmentCrossOrg(t *testing.T) {
	env := newEnv(t)
	s := &model.Segment{OrgID: "org-b", Name: "theirs"}
	if err := env.segments.Create(s); err != nil {
		t.Fatal(err)
	}

	if w := env.do(t, "GET", "/segments/"+s.ID, "tok-a", nil); w.Code != http.StatusForbidden {
		t.Errorf("cross-org get: expected 403, got %d", w.Code)
	}
	if w := env.do(t, "GET", "/segments/no-such", "tok-a", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown segment: expected 404, got %d", w.Code)
	}
}

func TestSchedulerRunEndpoint(t *testing.T) {
	env := newEnv(t)

	contact := &model.Contact{OrgID: "org-a", Email: "amara@example.org", FirstName: "Amara"}
	if err := env.contacts.Create(contact); err != nil {
		t.Fatal(err)
	}
	seg := &model.Segment{OrgID: "org-a", Name: "all", Members: []string{contact.ID}}
	if err := env.segments.Create(seg); err != nil {
		t.Fatal(err)
	}
	c := &model.Campaign{
		OrgID:       "org-a",
		Name:        "Due campaign",
		ContentJSON: json.RawMessage(`[{"id":"b1","type":"paragraph","content":"hi"}]`),
		SegmentID:   &seg.ID,
		Status:      model.StatusDraft,
	}
	if err := env.campaigns.Create(c); err != nil {
		t.Fatal(err)
	}
	if err := env.campaigns.SetSchedule(c.ID, frozenNow.Add(-time.Minute), model.StatusScheduled); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, "POST", "/scheduler/run", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res map[string]int
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res["updated"] != 1 {
		t.Errorf("first run updated = %d, want 1", res["updated"])
	}
	if len(env.enqueuer.jobs) != 1 {
		t.Errorf("enqueued %d jobs, want 1", len(env.enqueuer.jobs))
	}

	// A second pass finds nothing left to activate.
	w = env.do(t, "POST", "/scheduler/run", "", nil)
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res["updated"] != 0 {
		t.Errorf("second run updated = %d, want 0", res["updated"])
	}
}

func TestSequenceStart(t *testing.T) {
	env := newEnv(t)

	contact := &model.Contact{OrgID: "org-a", Email: "ben@example.org"}
	if err := env.contacts.Create(contact); err != nil {
		t.Fatal(err)
	}
	seg := &model.Segment{OrgID: "org-a", Name: "all", Members: []string{contact.ID}}
	if err := env.segments.Create(seg); err != nil {
		t.Fatal(err)
	}

	body := map[string]any{
		"name":       "Welcome series",
		"segment_id": seg.ID,
		"steps": []map[string]any{
			{"order": 1, "delay_hours": 0, "content_json": json.RawMessage(`[{"id":"s1","type":"paragraph","content":"welcome"}]`)},
			{"order": 2, "delay_hours": 24, "content_json": json.RawMessage(`[{"id":"s2","type":"paragraph","content":"followup"}]`)},
		},
	}
	w := env.do(t, "POST", "/sequences", "tok-a", body)
	if w.Code != http.StatusOK {
		t.Fatalf("create sequence: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Sequence model.Sequence `json:"sequence"`
	}
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = env.do(t, "POST", "/sequences/"+created.Sequence.ID+"/start", "tok-a", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		Campaigns []model.Campaign `json:"campaigns"`
	}
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Campaigns) != 2 {
		t.Fatalf("started %d campaigns, want 2", len(res.Campaigns))
	}
	if res.Campaigns[0].Status != model.StatusSent {
		t.Errorf("step 1 status = %q, want sent", res.Campaigns[0].Status)
	}
	if res.Campaigns[1].Status != model.StatusScheduled {
		t.Errorf("step 2 status = %q, want scheduled", res.Campaigns[1].Status)
	}
	if got := res.Campaigns[1].SendAt; got == nil || !got.Equal(frozenNow.Add(24*time.Hour)) {
		t.Errorf("step 2 send_at = %v, want %v", got, frozenNow.Add(24*time.Hour))
	}
}

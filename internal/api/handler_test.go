package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/uwrit/leafgo/internal/domain/cohort"
	"github.com/uwrit/leafgo/internal/domain/compiler"
	"github.com/uwrit/leafgo/internal/domain/concept"
	"github.com/uwrit/leafgo/internal/domain/dataset"
	"github.com/uwrit/leafgo/internal/domain/demographic"
	"github.com/uwrit/leafgo/internal/domain/panel"
	"github.com/uwrit/leafgo/internal/domain/preflight"
	"github.com/uwrit/leafgo/internal/platform/auth"
	"github.com/uwrit/leafgo/internal/platform/db"
)

type stubPreflightRepo struct {
	concepts map[string]*concept.Concept
	denied   map[string]bool
}

func (s *stubPreflightRepo) CheckConcepts(_ context.Context, _ *auth.UserContext, refs []concept.Ref) ([]preflight.ConceptCheckResult, error) {
	out := make([]preflight.ConceptCheckResult, 0, len(refs))
	for _, r := range refs {
		res := preflight.ConceptCheckResult{Ref: r}
		if c, ok := s.concepts[r.String()]; ok {
			res.IsPresent = true
			res.IsAuthorized = !s.denied[r.String()]
			if res.IsAuthorized {
				res.Concept = c
			}
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *stubPreflightRepo) CheckQueries(_ context.Context, _ *auth.UserContext, refs []preflight.QueryRef) ([]preflight.QueryCheckResult, error) {
	out := make([]preflight.QueryCheckResult, 0, len(refs))
	for _, r := range refs {
		out = append(out, preflight.QueryCheckResult{Ref: r})
	}
	return out, nil
}

type fakeRows struct {
	ids []string
	pos int
}

func (f *fakeRows) Next() bool        { f.pos++; return f.pos <= len(f.ids) }
func (f *fakeRows) Err() error        { return nil }
func (f *fakeRows) Close()            {}
func (f *fakeRows) Columns() []string { return []string{"person_id"} }
func (f *fakeRows) Values() []any     { return []any{f.ids[f.pos-1]} }

func (f *fakeRows) String(int) (string, error)          { return f.ids[f.pos-1], nil }
func (f *fakeRows) Int64(int) (int64, error)            { return 0, nil }
func (f *fakeRows) Float64(int) (float64, error)        { return 0, nil }
func (f *fakeRows) Time(int) (time.Time, error)         { return time.Time{}, nil }
func (f *fakeRows) BoolCoercible(int) (bool, error)     { return false, nil }
func (f *fakeRows) StringCoercible(int) (string, error) { return f.ids[f.pos-1], nil }

type fakeExecutor struct {
	results map[string][]string
}

func (f *fakeExecutor) Execute(_ context.Context, sql string, _ time.Duration, _ ...any) (db.RowReader, error) {
	for marker, ids := range f.results {
		if strings.Contains(sql, marker) {
			return &fakeRows{ids: ids}, nil
		}
	}
	return &fakeRows{}, nil
}

type fakeDemoRepo struct{}

func (fakeDemoRepo) DemographicsSQL(context.Context) (string, error) {
	return "", demographic.ErrNotConfigured
}

type fakeDatasetRepo struct{}

func (fakeDatasetRepo) ByID(context.Context, uuid.UUID) (*dataset.Query, error) {
	return nil, dataset.ErrNotFound
}

func (fakeDatasetRepo) ByUniversalID(context.Context, string) (*dataset.Query, error) {
	return nil, dataset.ErrNotFound
}

type fixture struct {
	e       *echo.Echo
	user    *auth.UserContext
	concept *concept.Concept
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	con := &concept.Concept{ID: uuid.New(), SqlSetFrom: "dbo.diabetes"}
	repo := &stubPreflightRepo{concepts: map[string]*concept.Concept{con.ID.String(): con}}
	exec := &fakeExecutor{results: map[string][]string{"dbo.diabetes": {"1", "2", "3"}}}
	cache := cohort.NewCacheMem(1000, 10)

	dialect, err := compiler.NewDialect("postgres")
	if err != nil {
		t.Fatalf("NewDialect: %v", err)
	}
	synth := preflight.SyntheticOpts{FieldPersonID: "person_id", AppDB: "leaf_app"}
	opts := compiler.DefaultOptions()

	counts := cohort.NewCountService(
		panel.NewResolver(preflight.NewChecker(repo, zerolog.Nop()), synth, zerolog.Nop()),
		panel.NewValidator(zerolog.Nop()),
		compiler.New(opts, dialect, zerolog.Nop()),
		cohort.NewRunner(exec, 2, time.Second, zerolog.Nop()),
		cache,
		cohort.Obfuscator{},
		false,
		zerolog.Nop(),
	)
	datasets := dataset.NewService(fakeDatasetRepo{}, cache, exec, opts, time.Second, zerolog.Nop())
	demographics := demographic.NewService(fakeDemoRepo{}, cache, exec, opts, time.Second, zerolog.Nop())

	f := &fixture{
		user:    &auth.UserContext{Subject: "alice", Issuer: "leaf.test", SessionNonce: uuid.New()},
		concept: con,
	}

	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(auth.WithUser(c.Request().Context(), f.user)))
			return next(c)
		}
	})
	NewHandler(counts, datasets, demographics).RegisterRoutes(e.Group("/api"))

	f.e = e
	return f
}

func (f *fixture) countBody(conceptID string) string {
	return `{"panels":[{"include_panel":true,"sub_panels":[{"include_sub_panel":true,"panel_items":[{"resource":{"id":"` + conceptID + `"}}]}]}]}`
}

func TestCountEndpoint(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/cohort/count", strings.NewReader(f.countBody(f.concept.ID.String())))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp countResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count == nil || resp.Count.Value != 3 {
		t.Errorf("count = %+v, want 3", resp.Count)
	}
	if resp.QueryID == "" {
		t.Error("expected a query id")
	}
}

func TestCountEndpointIgnoresClientQueryID(t *testing.T) {
	f := newFixture(t)
	supplied := "11111111-2222-3333-4444-555555555555"
	body := `{"query_id":"` + supplied + `","panels":[{"include_panel":true,"sub_panels":[{"include_sub_panel":true,"panel_items":[{"resource":{"id":"` + f.concept.ID.String() + `"}}]}]}]}`

	ids := make(map[string]bool)
	for _, subject := range []string{"alice", "mallory"} {
		f.user = &auth.UserContext{Subject: subject, Issuer: "leaf.test", SessionNonce: uuid.New()}
		req := httptest.NewRequest(http.MethodPost, "/api/cohort/count", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		f.e.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		var resp countResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if resp.QueryID == supplied {
			t.Fatal("client-chosen query id must never be adopted")
		}
		ids[resp.QueryID] = true
	}
	if len(ids) != 2 {
		t.Errorf("replayed definitions share a query id: %v", ids)
	}
}

func TestCountEndpointPreflightFailure(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/cohort/count", strings.NewReader(f.countBody(uuid.NewString())))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp countResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].IsPresent {
		t.Errorf("errors = %+v, want one missing ref", resp.Errors)
	}
	if resp.Count != nil {
		t.Error("failed preflight must not leak a count")
	}
}

func TestCountEndpointCompilerError(t *testing.T) {
	f := newFixture(t)
	body := `{"panels":[{"include_panel":false,"sub_panels":[{"include_sub_panel":true,"panel_items":[{"resource":{"id":"` + f.concept.ID.String() + `"}}]}]}]}`

	req := httptest.NewRequest(http.MethodPost, "/api/cohort/count", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for exclusion-only query", rec.Code)
	}
}

func TestDatasetEndpointNotFound(t *testing.T) {
	f := newFixture(t)

	// Execute a count first so a cohort exists.
	req := httptest.NewRequest(http.MethodPost, "/api/cohort/count", strings.NewReader(f.countBody(f.concept.ID.String())))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	var resp countResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/cohort/"+resp.QueryID+"/dataset?datasetid="+uuid.NewString(), nil)
	rec = httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown dataset", rec.Code)
	}

	// Unknown cohort reads as not found as well.
	req = httptest.NewRequest(http.MethodGet, "/api/cohort/"+uuid.NewString()+"/dataset?datasetid="+uuid.NewString(), nil)
	rec = httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown cohort", rec.Code)
	}
}

func TestDemographicsEndpointNotConfigured(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/cohort/count", strings.NewReader(f.countBody(f.concept.ID.String())))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	var resp countResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/cohort/"+resp.QueryID+"/demographics", nil)
	rec = httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when demographics are not configured", rec.Code)
	}
}

func TestLogoutEndpoint(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/user/logout", nil)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

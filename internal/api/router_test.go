package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/perfdesk/perfdesk/internal/api/middleware"
	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/jobs"
	"github.com/perfdesk/perfdesk/internal/logger"
	"github.com/perfdesk/perfdesk/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type apiFixture struct {
	router     *gin.Engine
	jobRepo    *repository.JobRepository
	heartbeats *repository.HeartbeatRepository
	dispatcher *jobs.Dispatcher
}

func newAPIFixture(t *testing.T, pollSecret string, staleAfter time.Duration) *apiFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "perfdesk.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	log := logger.New(&logger.Config{Level: "error", Output: io.Discard})
	jobRepo := repository.NewJobRepository(db)
	heartbeats := repository.NewHeartbeatRepository(db)
	dispatcher := jobs.NewDispatcher(jobRepo, log)
	poller := jobs.NewPoller(jobRepo, heartbeats, dispatcher, 1, log)
	jobSvc := jobs.NewService(jobRepo, dispatcher, false, log)

	router := SetupRouter(
		RouterConfig{
			Mode:       "test",
			CORS:       middleware.CORSConfig{AllowAllOrigins: true},
			PollSecret: pollSecret,
			StaleAfter: staleAfter,
		},
		jobSvc, poller, jobRepo, heartbeats, log,
	)
	return &apiFixture{router: router, jobRepo: jobRepo, heartbeats: heartbeats, dispatcher: dispatcher}
}

func (f *apiFixture) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, w.Body.String())
	}
	return out
}

func TestPollRequiresSecret(t *testing.T) {
	f := newAPIFixture(t, "hunter2", time.Minute)

	if w := f.do(http.MethodPost, "/internal/jobs/poll", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no secret: status = %d, want 401", w.Code)
	}
	if w := f.do(http.MethodPost, "/internal/jobs/poll", "", map[string]string{"X-Poll-Secret": "wrong"}); w.Code != http.StatusUnauthorized {
		t.Errorf("bad secret: status = %d, want 401", w.Code)
	}

	// A rejected poll must not touch the heartbeat; no dispatch happened.
	if _, err := f.heartbeats.Get(context.Background(), domain.HeartbeatKeyPoller); err == nil {
		t.Error("rejected poll wrote a heartbeat")
	}

	w := f.do(http.MethodPost, "/internal/jobs/poll", "", map[string]string{"X-Poll-Secret": "hunter2"})
	if w.Code != http.StatusOK {
		t.Fatalf("good secret: status = %d, want 200", w.Code)
	}
	stats := decode(t, w)
	if stats["processed"] != float64(0) {
		t.Errorf("processed = %v, want 0", stats["processed"])
	}

	if w := f.do(http.MethodPost, "/internal/jobs/poll?secret=hunter2", "", nil); w.Code != http.StatusOK {
		t.Errorf("query secret: status = %d, want 200", w.Code)
	}
}

func TestPollDisabledWithoutConfiguredSecret(t *testing.T) {
	f := newAPIFixture(t, "", time.Minute)
	if w := f.do(http.MethodPost, "/internal/jobs/poll", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when poll secret unset", w.Code)
	}
}

func TestHealthReflectsHeartbeat(t *testing.T) {
	t.Run("no heartbeat yet", func(t *testing.T) {
		f := newAPIFixture(t, "s", time.Minute)
		w := f.do(http.MethodGet, "/health", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if body := decode(t, w); body["healthy"] != false {
			t.Errorf("healthy = %v, want false before first poll", body["healthy"])
		}
	})

	t.Run("fresh heartbeat", func(t *testing.T) {
		f := newAPIFixture(t, "s", time.Minute)
		if err := f.heartbeats.Touch(context.Background(), domain.HeartbeatKeyPoller); err != nil {
			t.Fatalf("Touch failed: %v", err)
		}
		body := decode(t, f.do(http.MethodGet, "/health", "", nil))
		if body["healthy"] != true {
			t.Errorf("healthy = %v, want true", body["healthy"])
		}
		if _, ok := body["seconds_since_heartbeat"]; !ok {
			t.Error("response missing seconds_since_heartbeat")
		}
	})

	t.Run("stale heartbeat", func(t *testing.T) {
		f := newAPIFixture(t, "s", -time.Second)
		if err := f.heartbeats.Touch(context.Background(), domain.HeartbeatKeyPoller); err != nil {
			t.Fatalf("Touch failed: %v", err)
		}
		body := decode(t, f.do(http.MethodGet, "/health", "", nil))
		if body["healthy"] != false {
			t.Errorf("healthy = %v, want false past threshold", body["healthy"])
		}
	})
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t, "s", time.Minute)
	f.dispatcher.Register(domain.JobTypeGoalRecompute, jobs.HandlerFunc(
		func(ctx context.Context, job *domain.Job, rec *jobs.Recorder) (any, error) {
			return map[string]any{"goals_updated": 0}, nil
		}))

	// Create.
	w := f.do(http.MethodPost, "/api/v1/jobs", `{"type":"goal_recompute"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", w.Code, w.Body.String())
	}
	created := decode(t, w)
	jobID := created["job"].(map[string]any)["id"].(string)

	// Unknown type is a 400 at the boundary, not a queued failure.
	if w := f.do(http.MethodPost, "/api/v1/jobs", `{"type":"mystery"}`, nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown type status = %d, want 400", w.Code)
	}

	// Manual dispatch drives it to completion.
	w = f.do(http.MethodPost, "/api/v1/jobs/"+jobID+"/dispatch", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("dispatch status = %d: %s", w.Code, w.Body.String())
	}
	if out := decode(t, w); out["outcome"] != "completed" {
		t.Errorf("outcome = %v, want completed", out["outcome"])
	}

	// Get shows the terminal record with parsed result.
	w = f.do(http.MethodGet, "/api/v1/jobs/"+jobID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	job := decode(t, w)["job"].(map[string]any)
	if job["status"] != "completed" {
		t.Errorf("status = %v, want completed", job["status"])
	}

	// Completed jobs refuse deletion.
	if w := f.do(http.MethodDelete, "/api/v1/jobs/"+jobID, "", nil); w.Code != http.StatusConflict {
		t.Errorf("delete completed status = %d, want 409", w.Code)
	}

	// Missing job is a 404.
	if w := f.do(http.MethodGet, "/api/v1/jobs/nope", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d, want 404", w.Code)
	}
}

func TestCreateDedupOverHTTP(t *testing.T) {
	f := newAPIFixture(t, "s", time.Minute)

	body := `{"type":"github_sync","config":{"scope":["acme/api"]}}`
	first := f.do(http.MethodPost, "/api/v1/jobs", body, nil)
	if first.Code != http.StatusCreated {
		t.Fatalf("first create status = %d", first.Code)
	}
	firstID := decode(t, first)["job"].(map[string]any)["id"]

	second := f.do(http.MethodPost, "/api/v1/jobs", body, nil)
	if second.Code != http.StatusOK {
		t.Fatalf("duplicate create status = %d, want 200", second.Code)
	}
	out := decode(t, second)
	if out["created"] != false {
		t.Errorf("created = %v, want false", out["created"])
	}
	if out["job"].(map[string]any)["id"] != firstID {
		t.Error("duplicate create returned a different job")
	}
}

func TestCancelAndClearOverHTTP(t *testing.T) {
	f := newAPIFixture(t, "s", time.Minute)
	ctx := context.Background()

	pending, _ := f.jobRepo.Create(ctx, domain.JobTypeJiraSync, nil)
	if w := f.do(http.MethodPost, "/api/v1/jobs/"+pending.ID+"/cancel", "", nil); w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", w.Code)
	}
	got, _ := f.jobRepo.GetByID(ctx, pending.ID)
	if got.Status != domain.JobStatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}

	failed, _ := f.jobRepo.Create(ctx, domain.JobTypeGitHubSync, nil)
	_ = f.jobRepo.TransitionToRunning(ctx, failed.ID)
	_ = f.jobRepo.Fail(ctx, failed.ID, "boom")

	w := f.do(http.MethodDelete, "/api/v1/jobs/failed", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("clear status = %d", w.Code)
	}
	if out := decode(t, w); out["deleted"] != float64(2) {
		t.Errorf("deleted = %v, want 2 (failed + cancelled)", out["deleted"])
	}
}

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mealwatch/plan-scraper/internal/config"
	"github.com/mealwatch/plan-scraper/internal/db"
	"github.com/mealwatch/plan-scraper/internal/queue"
	"github.com/mealwatch/plan-scraper/internal/store"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	settings, err := config.LoadSettings(store.NewMemory())
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	q, err := queue.New(settings, store.NewMemory(), quietLogger())
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	return q
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestEnqueueHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	q := newTestQueue(t)

	router := gin.New()
	router.POST("/queue", EnqueueHandler(q, quietLogger()))
	router.GET("/queue", ListQueueHandler(q))

	w := doJSON(t, router, http.MethodPost, "/queue", gin.H{
		"url":      "https://example.com/plan",
		"priority": "high",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /queue = %d; want 201 (%s)", w.Code, w.Body.String())
	}

	var item db.QueueItem
	if err := json.Unmarshal(w.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if item.Priority != db.PriorityHigh || item.Status != db.QueueQueued {
		t.Errorf("item = %+v; want high/queued", item)
	}

	// Invalid URL is rejected before touching the queue.
	w = doJSON(t, router, http.MethodPost, "/queue", gin.H{"url": "not-a-url"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST /queue invalid url = %d; want 400", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/queue", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /queue = %d; want 200", w.Code)
	}
	var listing struct {
		Items []db.QueueItem `json:"items"`
		Stats queue.Stats    `json:"stats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Items) != 1 || listing.Stats.Queued != 1 {
		t.Errorf("listing = %+v; want one queued item", listing)
	}
}

func TestRetrySettingsHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	settings, err := config.LoadSettings(store.NewMemory())
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}

	router := gin.New()
	router.GET("/settings/retry", GetRetrySettingsHandler(settings))
	router.PUT("/settings/retry", PutRetrySettingsHandler(settings, quietLogger()))

	w := doJSON(t, router, http.MethodGet, "/settings/retry", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET = %d; want 200", w.Code)
	}
	var got config.RetrySettings
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != config.DefaultRetrySettings() {
		t.Errorf("initial settings = %+v; want defaults", got)
	}

	w = doJSON(t, router, http.MethodPut, "/settings/retry", config.RetrySettings{
		MaxRetries:            5,
		BaseDelayMs:           2000,
		UseExponentialBackoff: true,
		MaxDelayMs:            60000,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("PUT = %d; want 200 (%s)", w.Code, w.Body.String())
	}
	if settings.Retry().MaxRetries != 5 {
		t.Errorf("settings not applied: %+v", settings.Retry())
	}

	// Invalid policy is rejected and the old one stays.
	w = doJSON(t, router, http.MethodPut, "/settings/retry", config.RetrySettings{
		MaxRetries:  3,
		BaseDelayMs: 5000,
		MaxDelayMs:  1000,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("PUT invalid = %d; want 400", w.Code)
	}
	if settings.Retry().MaxRetries != 5 {
		t.Errorf("invalid update overwrote settings: %+v", settings.Retry())
	}
}

func TestFindDuplicatesHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mem := store.NewMemory()
	mem.CreatePlan(&db.Plan{ID: "a", Title: "欣葉年菜六人套餐", SourceURL: "https://example.com/x"})
	mem.CreatePlan(&db.Plan{ID: "b", Title: "完全不同的標題啊", SourceURL: "https://example.com/x"})
	mem.CreatePlan(&db.Plan{ID: "c", Title: "又是另外一個東西", SourceURL: "https://example.com/y"})

	router := gin.New()
	router.GET("/duplicates", FindDuplicatesHandler(mem, quietLogger()))

	w := doJSON(t, router, http.MethodGet, "/duplicates", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /duplicates = %d; want 200", w.Code)
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("duplicate groups = %d; want 1", resp.Count)
	}
}

package render

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/feedforge/app/pipeline"
)

type MockBrowser struct {
	page  *pipeline.RenderedPage
	err   error
	delay time.Duration
	calls int
}

func (m *MockBrowser) Render(ctx context.Context, url string) (*pipeline.RenderedPage, error) {
	m.calls++
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.page, nil
}

func newPageServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("Expected user agent 'test-agent', got '%s'", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title> Static  Page </title></head><body><p>Hello</p></body></html>`))
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestRenderPrefersBrowser(t *testing.T) {
	server := newPageServer(t)
	browser := &MockBrowser{page: &pipeline.RenderedPage{FinalURL: server.URL + "/page", Title: "Rendered", HTML: "<html><body>js</body></html>"}}
	renderer := NewRenderer(browser, server.Client(), "test-agent", time.Second)

	page, err := renderer.Render(context.Background(), server.URL+"/page")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if page.Title != "Rendered" {
		t.Errorf("Expected browser title 'Rendered', got '%s'", page.Title)
	}
	if len(page.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", page.Warnings)
	}
}

func TestRenderFallsBackToStaticFetch(t *testing.T) {
	server := newPageServer(t)
	browser := &MockBrowser{err: errors.New("chrome not found")}
	renderer := NewRenderer(browser, server.Client(), "test-agent", time.Second)

	page, err := renderer.Render(context.Background(), server.URL+"/old")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if browser.calls != 1 {
		t.Errorf("Expected 1 browser attempt, got %d", browser.calls)
	}
	if page.FinalURL != server.URL+"/page" {
		t.Errorf("Expected final URL after redirect, got '%s'", page.FinalURL)
	}
	if page.Title != "Static Page" {
		t.Errorf("Expected title 'Static Page', got '%s'", page.Title)
	}
	if len(page.Warnings) != 1 || !strings.HasPrefix(page.Warnings[0], "browser_failed: ") {
		t.Errorf("Expected browser_failed warning, got %v", page.Warnings)
	}
}

func TestRenderTreatsEmptyBrowserDocumentAsFailure(t *testing.T) {
	server := newPageServer(t)
	browser := &MockBrowser{page: &pipeline.RenderedPage{HTML: "   "}}
	renderer := NewRenderer(browser, server.Client(), "test-agent", time.Second)

	page, err := renderer.Render(context.Background(), server.URL+"/page")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(page.HTML, "Hello") {
		t.Errorf("Expected static body, got '%s'", page.HTML)
	}
}

func TestRenderFailsWhenBothPathsFail(t *testing.T) {
	server := newPageServer(t)
	renderer := NewRenderer(&MockBrowser{err: errors.New("boom")}, server.Client(), "test-agent", time.Second)

	_, err := renderer.Render(context.Background(), server.URL+"/missing")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if pipeline.CodeOf(err) != pipeline.CodeRenderFailed {
		t.Errorf("Expected code %s, got %s", pipeline.CodeRenderFailed, pipeline.CodeOf(err))
	}
}

func TestRenderWithoutBrowser(t *testing.T) {
	server := newPageServer(t)
	renderer := NewRenderer(nil, server.Client(), "test-agent", time.Second)

	page, err := renderer.Render(context.Background(), server.URL+"/page")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(page.Warnings) != 0 {
		t.Errorf("Expected no warnings without a browser, got %v", page.Warnings)
	}
}

func TestRenderNetworkFailureIsClassified(t *testing.T) {
	server := newPageServer(t)
	url := server.URL + "/page"
	server.Close()

	renderer := NewRenderer(nil, http.DefaultClient, "test-agent", time.Second)
	_, err := renderer.Render(context.Background(), url)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !pipeline.IsNetworkFailure(err) {
		t.Errorf("Expected network failure, got: %v", err)
	}
}

func TestRenderFallbackSharesTimeoutBudget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(300 * time.Millisecond):
		}
		w.Write([]byte(`<html><head><title>Slow</title></head><body>late</body></html>`))
	}))
	defer server.Close()

	browser := &MockBrowser{err: errors.New("navigation failed"), delay: 200 * time.Millisecond}
	renderer := NewRenderer(browser, server.Client(), "test-agent", 300*time.Millisecond)

	start := time.Now()
	_, err := renderer.Render(context.Background(), server.URL)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Expected the static fetch to run out of the shared budget")
	}
	if pipeline.CodeOf(err) != pipeline.CodeRenderFailed {
		t.Errorf("Expected code %s, got %s", pipeline.CodeRenderFailed, pipeline.CodeOf(err))
	}
	if elapsed >= 450*time.Millisecond {
		t.Errorf("Expected render to stop near the 300ms budget, took %v", elapsed)
	}
}

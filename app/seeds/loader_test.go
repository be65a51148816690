package seeds

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lysyi3m/feedforge/app/database"
	"github.com/lysyi3m/feedforge/app/intake"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.yaml")
	writeFile(t, path, `
owner: "team"
subscriptions:
  - url: "https://example.com/feed.xml"
    title: "Example"
  - url: "https://example.org/news"
    owner: "alice"
`)

	subs, err := NewLoader(path).LoadAll()
	if err != nil {
		t.Fatal(err)
	}

	if len(subs) != 2 {
		t.Fatalf("Expected 2 subscriptions, got %d", len(subs))
	}
	if subs[0].Title != "Example" {
		t.Errorf("Expected title 'Example', got '%s'", subs[0].Title)
	}
	if subs[0].Owner != "team" {
		t.Errorf("Expected file owner 'team', got '%s'", subs[0].Owner)
	}
	if subs[1].Owner != "alice" {
		t.Errorf("Expected owner override 'alice', got '%s'", subs[1].Owner)
	}
}

func TestLoadSeedDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), `
subscriptions:
  - url: "https://example.com/feed.xml"
`)
	writeFile(t, filepath.Join(dir, "b.yml"), `
subscriptions:
  - url: "https://example.com/feed.xml"
  - url: "https://example.net/blog"
`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	subs, err := NewLoader(dir).LoadAll()
	if err != nil {
		t.Fatal(err)
	}

	if len(subs) != 2 {
		t.Fatalf("Expected 2 unique subscriptions, got %d", len(subs))
	}
	if subs[0].Owner != DefaultOwner {
		t.Errorf("Expected default owner '%s', got '%s'", DefaultOwner, subs[0].Owner)
	}
}

func TestLoadMissingPath(t *testing.T) {
	subs, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).LoadAll()
	if err != nil {
		t.Errorf("Expected no error for missing path, got: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("Expected no subscriptions, got %d", len(subs))
	}
}

func TestLoadRejectsInvalidURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.yaml")
	writeFile(t, path, `
subscriptions:
  - url: "not a url"
`)

	if _, err := NewLoader(path).LoadAll(); err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.yaml")
	writeFile(t, path, "subscriptions: [")

	if _, err := NewLoader(path).LoadAll(); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

type MockSources struct {
	existing map[string]bool
}

func (m *MockSources) GetSourceByURL(ctx context.Context, url string) (*database.Source, error) {
	if m.existing[url] {
		return &database.Source{ID: "existing", URL: url}, nil
	}
	return nil, nil
}

type MockSubmitter struct {
	submitted []Subscription
	failURL   string
}

func (m *MockSubmitter) Submit(ctx context.Context, owner, rawURL, titleHint string) (*intake.Submission, error) {
	if rawURL == m.failURL {
		return nil, errors.New("task queue is full")
	}
	m.submitted = append(m.submitted, Subscription{URL: rawURL, Title: titleHint, Owner: owner})
	return &intake.Submission{JobID: "job-" + rawURL, Status: database.JobStatusPending}, nil
}

func TestImportSkipsExistingSources(t *testing.T) {
	subs := []Subscription{
		{URL: "https://example.com/feed.xml", Owner: "seed"},
		{URL: "https://example.org/news", Title: "News", Owner: "seed"},
		{URL: "https://example.net/blog", Owner: "seed"},
	}
	sources := &MockSources{existing: map[string]bool{"https://example.com/feed.xml": true}}
	submitter := &MockSubmitter{failURL: "https://example.net/blog"}

	count, err := Import(context.Background(), subs, sources, submitter)
	if err != nil {
		t.Fatal(err)
	}

	if count != 1 {
		t.Errorf("Expected 1 submission, got %d", count)
	}
	if len(submitter.submitted) != 1 || submitter.submitted[0].Title != "News" {
		t.Errorf("Expected only the news page to be submitted, got %+v", submitter.submitted)
	}
}

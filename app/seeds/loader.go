package seeds

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/feedforge/app/database"
	"github.com/lysyi3m/feedforge/app/feed"
	"github.com/lysyi3m/feedforge/app/intake"
)

const DefaultOwner = "seed"

// Loader reads subscription seeds from a YAML file or from every *.yaml and
// *.yml file in a directory.
type Loader struct {
	path string
}

func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// LoadAll returns the subscriptions in file name order. A missing path is
// not an error.
func (l *Loader) LoadAll() ([]Subscription, error) {
	if l.path == "" {
		return nil, nil
	}

	info, err := os.Stat(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat seeds path: %w", err)
	}

	files := []string{l.path}
	if info.IsDir() {
		files, err = l.listFiles()
		if err != nil {
			return nil, err
		}
	}

	var subs []Subscription
	seen := make(map[string]bool)

	for _, file := range files {
		seedFile, err := l.loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}

		if err := l.validate(seedFile); err != nil {
			return nil, fmt.Errorf("invalid seeds %s: %w", file, err)
		}

		for _, sub := range seedFile.Subscriptions {
			if seen[sub.URL] {
				continue
			}
			seen[sub.URL] = true
			subs = append(subs, sub)
		}
		slog.Debug("Loaded seeds", "file", file, "count", len(seedFile.Subscriptions))
	}

	return subs, nil
}

func (l *Loader) listFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.path, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YAML files: %w", err)
	}

	ymlFiles, err := filepath.Glob(filepath.Join(l.path, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}
	files = append(files, ymlFiles...)
	sort.Strings(files)

	return files, nil
}

func (l *Loader) loadFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var seedFile SeedFile
	if err := yaml.Unmarshal(data, &seedFile); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	l.setDefaults(&seedFile)

	return &seedFile, nil
}

func (l *Loader) setDefaults(seedFile *SeedFile) {
	if seedFile.Owner == "" {
		seedFile.Owner = DefaultOwner
	}
	for i := range seedFile.Subscriptions {
		if seedFile.Subscriptions[i].Owner == "" {
			seedFile.Subscriptions[i].Owner = seedFile.Owner
		}
	}
}

func (l *Loader) validate(seedFile *SeedFile) error {
	for i, sub := range seedFile.Subscriptions {
		normalized, err := feed.ValidateURL(sub.URL)
		if err != nil {
			return fmt.Errorf("subscription at index %d: %w", i, err)
		}
		seedFile.Subscriptions[i].URL = normalized
	}
	return nil
}

// Submitter is satisfied by intake.Runner.
type Submitter interface {
	Submit(ctx context.Context, owner, rawURL, titleHint string) (*intake.Submission, error)
}

type SourceLookup interface {
	GetSourceByURL(ctx context.Context, url string) (*database.Source, error)
}

// Import submits an intake job for each subscription whose URL is not yet
// a source. It returns the number of jobs submitted.
func Import(ctx context.Context, subs []Subscription, sources SourceLookup, submitter Submitter) (int, error) {
	submitted := 0

	for _, sub := range subs {
		existing, err := sources.GetSourceByURL(ctx, sub.URL)
		if err != nil {
			return submitted, err
		}
		if existing != nil {
			slog.Debug("Seed already subscribed, skipping", "url", sub.URL, "source", existing.ID)
			continue
		}

		submission, err := submitter.Submit(ctx, sub.Owner, sub.URL, sub.Title)
		if err != nil {
			slog.Warn("Failed to submit seed", "url", sub.URL, "error", err)
			continue
		}

		slog.Info("Seed submitted", "url", sub.URL, "job", submission.JobID)
		submitted++
	}

	return submitted, nil
}

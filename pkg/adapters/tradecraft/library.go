// Package tradecraft loads tradecraft documents from YAML or JSON files and
// serves them as a ports.KnowledgeBase.
package tradecraft

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/quotecraft/drew/pkg/adapters/memory"
	"github.com/quotecraft/drew/pkg/domain"
)

//go:embed library/*.yaml
var builtin embed.FS

// Library is a knowledge base backed by one document per file.
type Library struct {
	*memory.KnowledgeBase
	sources map[string]string // job type -> file
}

// Default returns the library shipped with the binary.
func Default() (*Library, error) {
	sub, err := fs.Sub(builtin, "library")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// LoadDir loads every document under dir.
func LoadDir(dir string) (*Library, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open tradecraft dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tradecraft path %q is not a directory", dir)
	}
	return Load(os.DirFS(dir))
}

// Load walks fsys for .yaml, .yml and .json files and parses each as one
// document. Invalid or duplicate documents fail the whole load.
func Load(fsys fs.FS) (*Library, error) {
	var (
		docs    []*domain.TradecraftDoc
		sources = make(map[string]string)
		errs    []error
	)

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(path.Ext(p))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		doc, err := parse(data, ext)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			return nil
		}
		if prev, dup := sources[doc.JobType]; dup {
			errs = append(errs, fmt.Errorf("%s: job type %q already defined in %s", p, doc.JobType, prev))
			return nil
		}
		sources[doc.JobType] = p
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &Library{
		KnowledgeBase: memory.NewKnowledgeBase(docs...),
		sources:       sources,
	}, nil
}

// Source returns the file a job type was loaded from.
func (l *Library) Source(jobType string) (string, bool) {
	s, ok := l.sources[jobType]
	return s, ok
}

// Len returns the number of documents.
func (l *Library) Len() int {
	return len(l.sources)
}

func parse(data []byte, ext string) (*domain.TradecraftDoc, error) {
	var doc domain.TradecraftDoc
	if ext == ".json" {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid yaml: %w", err)
		}
	}
	if err := Validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks that a document can drive a conversation: it needs a job
// type and title, unique question ids with prompts, and unique checklist
// categories.
func Validate(doc *domain.TradecraftDoc) error {
	var problems []string
	if doc.JobType == "" {
		problems = append(problems, "missing job_type")
	}
	if doc.Title == "" {
		problems = append(problems, "missing title")
	}

	seen := make(map[string]bool)
	for i, q := range doc.Questions {
		switch {
		case q.ID == "":
			problems = append(problems, fmt.Sprintf("question %d has no id", i))
		case seen[q.ID]:
			problems = append(problems, fmt.Sprintf("duplicate question id %q", q.ID))
		}
		seen[q.ID] = true
		if q.Prompt == "" {
			problems = append(problems, fmt.Sprintf("question %q has no prompt", q.ID))
		}
	}

	cats := make(map[string]bool)
	for i, item := range doc.Checklist {
		switch {
		case item.Category == "":
			problems = append(problems, fmt.Sprintf("checklist item %d has no category", i))
		case cats[item.Category]:
			problems = append(problems, fmt.Sprintf("duplicate checklist category %q", item.Category))
		}
		cats[item.Category] = true
		if item.DefaultQuantity < 0 {
			problems = append(problems, fmt.Sprintf("checklist item %q has a negative quantity", item.Category))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("invalid tradecraft document: %s", strings.Join(problems, "; "))
}

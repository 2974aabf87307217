// Package automation is the page-automation backend behind the weather tools.
//
// A Recipe names a target page and how to pull structured fields out of it. The
// HTTPBrowser backend fetches the page inside a scoped Session, turns it into a
// Page (title, readable article text, full text, raw HTML) and runs the recipe's
// extraction: a JavaScript extract(page) function for HTML pages, or JMESPath
// expressions for JSON endpoints. Capture saves the fetched document and returns
// its path as the run's snapshot reference.
package automation

import (
	"context"
	"errors"
	"time"
)

// Mode selects how a recipe extracts fields.
type Mode string

// Recipe modes.
const (
	ModePage Mode = "page"
	ModeJSON Mode = "json"
)

// Recipe describes one extraction against a target page.
type Recipe struct {
	// Name identifies the recipe in logs, metrics and snapshot file names.
	Name string `json:"name" yaml:"name"`

	// URL is the default target; Run may override it.
	URL string `json:"url" yaml:"url"`

	Mode Mode `json:"mode" yaml:"mode"`

	// Script defines extract(page) for ModePage. It must return an object.
	Script string `json:"script,omitempty" yaml:"script,omitempty"`

	// Fields maps output field names to JMESPath expressions for ModeJSON.
	Fields map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`

	// Timeout bounds the whole run. Zero uses the backend default.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// RunOptions controls a single run.
type RunOptions struct {
	// Capture saves the fetched document and reports its path.
	Capture bool
}

// Extraction is the result of a successful run.
type Extraction struct {
	Fields    map[string]any
	Snapshot  string
	URL       string
	FetchedAt time.Time
}

// Backend runs recipes against target pages.
type Backend interface {
	Run(ctx context.Context, recipe Recipe, targetURL string, opts RunOptions) (*Extraction, error)
}

// Run failures. Errors returned by a Backend wrap one of these unless the
// caller cancelled the run.
var (
	// ErrTimeout means the run exceeded its deadline.
	ErrTimeout = errors.New("automation run timed out")

	// ErrNavigation means the page could not be loaded.
	ErrNavigation = errors.New("navigation failed")

	// ErrExtraction means the page loaded but the recipe found nothing usable,
	// usually because the page layout changed.
	ErrExtraction = errors.New("extraction failed")
)

// Package catalog holds the read-only promotional catalog: items, the tag
// vocabulary the matcher may select from, and keywords that must never be selected.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ItemsFile     = "ad_demo_format"
	TagsFile      = "all_tags"
	ForbiddenFile = "forbidden_keywords"
)

type Item struct {
	AdID        string   `json:"ad_id" yaml:"ad_id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description,omitempty" yaml:"description"`
	ImageURL    string   `json:"image_url,omitempty" yaml:"image_url"`
	LinkURL     string   `json:"link_url,omitempty" yaml:"link_url"`
	Keywords    []string `json:"keywords,omitempty" yaml:"keywords"`
	Topics      []string `json:"topics,omitempty" yaml:"topics"`
	Tags        []string `json:"tags" yaml:"tags"`
	Priority    int      `json:"priority,omitempty" yaml:"priority"`
}

type itemsDoc struct {
	Advertisements []Item `json:"advertisements" yaml:"advertisements"`
}

type tagsDoc struct {
	Tags []string `json:"tags" yaml:"tags"`
}

type forbiddenDoc struct {
	ForbiddenWords    []string `json:"forbidden_words" yaml:"forbidden_words"`
	ForbiddenKeywords []string `json:"forbidden_keywords" yaml:"forbidden_keywords"`
}

// Catalog is immutable after Load and safe for concurrent readers.
type Catalog struct {
	items     []Item
	tags      []string
	tagSet    map[string]struct{}
	forbidden []string
}

func New(items []Item, tags []string, forbidden []string) *Catalog {
	c := &Catalog{
		items:     append([]Item(nil), items...),
		tags:      make([]string, 0, len(tags)),
		tagSet:    make(map[string]struct{}, len(tags)),
		forbidden: make([]string, 0, len(forbidden)),
	}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := c.tagSet[t]; dup {
			continue
		}
		c.tagSet[t] = struct{}{}
		c.tags = append(c.tags, t)
	}
	for _, f := range forbidden {
		if f = strings.TrimSpace(f); f != "" {
			c.forbidden = append(c.forbidden, strings.ToLower(f))
		}
	}
	return c
}

// Load reads the three catalog documents from dir. Each may be .json, .yaml or .yml.
// The forbidden keyword list is optional.
func Load(dir string) (*Catalog, error) {
	var items itemsDoc
	if err := readDoc(dir, ItemsFile, &items); err != nil {
		return nil, fmt.Errorf("load catalog items: %w", err)
	}

	var tags tagsDoc
	if err := readDoc(dir, TagsFile, &tags); err != nil {
		return nil, fmt.Errorf("load tag vocabulary: %w", err)
	}

	var forbidden forbiddenDoc
	if err := readDoc(dir, ForbiddenFile, &forbidden); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load forbidden keywords: %w", err)
	}
	words := forbidden.ForbiddenWords
	if len(words) == 0 {
		words = forbidden.ForbiddenKeywords
	}

	return New(items.Advertisements, tags.Tags, words), nil
}

func readDoc(dir, base string, out interface{}) error {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(dir, base+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		if ext == ".json" {
			err = json.Unmarshal(data, out)
		} else {
			err = yaml.Unmarshal(data, out)
		}
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}
	return fmt.Errorf("%s.{json,yaml,yml} in %s: %w", base, dir, os.ErrNotExist)
}

// Vocabulary returns the tag vocabulary in file order.
func (c *Catalog) Vocabulary() []string {
	return append([]string(nil), c.tags...)
}

func (c *Catalog) InVocabulary(tag string) bool {
	_, ok := c.tagSet[tag]
	return ok
}

// Forbidden reports whether tag contains one of the forbidden keywords.
func (c *Catalog) Forbidden(tag string) bool {
	lower := strings.ToLower(tag)
	for _, f := range c.forbidden {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

func (c *Catalog) Items() []Item {
	return append([]Item(nil), c.items...)
}

// Match returns every item sharing at least one tag with selected, in catalog
// order, each item at most once.
func (c *Catalog) Match(selected []string) []Item {
	if len(selected) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(selected))
	for _, t := range selected {
		want[t] = struct{}{}
	}

	var out []Item
	for _, item := range c.items {
		for _, t := range item.Tags {
			if _, ok := want[t]; ok {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

// UnknownTags lists, per item id, tags that are not part of the vocabulary.
func (c *Catalog) UnknownTags() map[string][]string {
	out := make(map[string][]string)
	for _, item := range c.items {
		for _, t := range item.Tags {
			if !c.InVocabulary(t) {
				out[item.AdID] = append(out[item.AdID], t)
			}
		}
	}
	return out
}

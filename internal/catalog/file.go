package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/crmwriter/internal/core"
)

// FileCatalog serves collection definitions from a YAML document:
//
//	listing_url: https://org.example.com/api/data/v9.1/EntityDefinitions
//	collections:
//	  accounts:
//	    fields: [name, revenue]
//	  contacts:
//	    fields: [firstname, lastname]
type FileCatalog struct {
	listingURL  string
	collections map[string]string // lowercase -> canonical
	fields      map[string]map[string]struct{}
}

type fileDocument struct {
	ListingURL  string                    `yaml:"listing_url"`
	Collections map[string]fileCollection `yaml:"collections"`
}

type fileCollection struct {
	Fields []string `yaml:"fields"`
}

var _ core.Catalog = (*FileCatalog)(nil)

// LoadFile reads a FileCatalog from path.
func LoadFile(path string) (*FileCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fetching collection metadata: read catalog file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile decodes a FileCatalog from YAML.
func ParseFile(data []byte) (*FileCatalog, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("fetching collection metadata: parse catalog file: %w", err)
	}
	if len(doc.Collections) == 0 {
		return nil, fmt.Errorf("fetching collection metadata: catalog file defines no collections")
	}

	c := &FileCatalog{
		listingURL:  doc.ListingURL,
		collections: make(map[string]string, len(doc.Collections)),
		fields:      make(map[string]map[string]struct{}, len(doc.Collections)),
	}
	for name, col := range doc.Collections {
		c.collections[strings.ToLower(name)] = name
		fields := make(map[string]struct{}, len(col.Fields))
		for _, f := range col.Fields {
			fields[strings.ToLower(f)] = struct{}{}
		}
		c.fields[name] = fields
	}
	return c, nil
}

// Resolve maps a collection name onto its canonical spelling, ignoring case.
func (c *FileCatalog) Resolve(_ context.Context, name string) (string, bool, error) {
	canonical, ok := c.collections[strings.ToLower(name)]
	return canonical, ok, nil
}

// Fields returns the declared fields of a collection.
func (c *FileCatalog) Fields(_ context.Context, collection string) (map[string]struct{}, error) {
	canonical, ok := c.collections[strings.ToLower(collection)]
	if !ok {
		return nil, fmt.Errorf("unknown collection %s", collection)
	}
	return c.fields[canonical], nil
}

// ListingURL returns the configured listing_url, or a note that the list
// comes from the catalog file.
func (c *FileCatalog) ListingURL() string {
	if c.listingURL == "" {
		return "the catalog file"
	}
	return c.listingURL
}

// Package catalog answers which collections and fields the record API
// exposes, either from the API's entity metadata or from a YAML file.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/JonMunkholm/crmwriter/internal/api"
	"github.com/JonMunkholm/crmwriter/internal/core"
	"github.com/JonMunkholm/crmwriter/internal/logging"
)

const entityDefinitions = "EntityDefinitions"

type entity struct {
	EntitySetName *string `json:"EntitySetName"`
	LogicalName   string  `json:"LogicalName"`
}

type attribute struct {
	LogicalName string `json:"LogicalName"`
}

type listResponse[T any] struct {
	Value []T `json:"value"`
}

// HTTPCatalog reads entity metadata from the API once per run.
type HTTPCatalog struct {
	session *api.Session
	baseURL string

	mu          sync.Mutex
	loaded      bool
	collections map[string]entityRef // lowercase set name -> entity
	fields      map[string]map[string]struct{}
}

type entityRef struct {
	setName     string
	logicalName string
}

var _ core.Catalog = (*HTTPCatalog)(nil)

// NewHTTPCatalog creates a catalog over the versioned API root baseURL.
func NewHTTPCatalog(session *api.Session, baseURL string) *HTTPCatalog {
	return &HTTPCatalog{
		session: session,
		baseURL: baseURL,
		fields:  make(map[string]map[string]struct{}),
	}
}

// ListingURL points at the metadata listing of available collections.
func (c *HTTPCatalog) ListingURL() string {
	return strings.TrimSuffix(c.baseURL, "/") + "/" + entityDefinitions + "?%24select=EntitySetName"
}

// Resolve maps a collection name onto the canonical entity set name,
// ignoring case.
func (c *HTTPCatalog) Resolve(ctx context.Context, name string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadLocked(ctx); err != nil {
		return "", false, err
	}
	ref, ok := c.collections[strings.ToLower(name)]
	return ref.setName, ok, nil
}

// Fields returns the lowercase logical attribute names of a collection.
func (c *HTTPCatalog) Fields(ctx context.Context, collection string) (map[string]struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadLocked(ctx); err != nil {
		return nil, err
	}
	ref, ok := c.collections[strings.ToLower(collection)]
	if !ok {
		return nil, fmt.Errorf("unknown collection %s", collection)
	}
	if fields, ok := c.fields[ref.setName]; ok {
		return fields, nil
	}

	path := fmt.Sprintf("%s(LogicalName='%s')/Attributes", entityDefinitions, ref.logicalName)
	var list listResponse[attribute]
	if err := c.get(ctx, path, "LogicalName", &list); err != nil {
		return nil, fmt.Errorf("fetching collection metadata for %s: %w", ref.setName, err)
	}

	fields := make(map[string]struct{}, len(list.Value))
	for _, a := range list.Value {
		fields[strings.ToLower(a.LogicalName)] = struct{}{}
	}
	c.fields[ref.setName] = fields
	return fields, nil
}

func (c *HTTPCatalog) loadLocked(ctx context.Context) error {
	if c.loaded {
		return nil
	}

	var list listResponse[entity]
	if err := c.get(ctx, entityDefinitions, "EntitySetName,LogicalName", &list); err != nil {
		return fmt.Errorf("fetching collection metadata: %w", err)
	}

	c.collections = make(map[string]entityRef, len(list.Value))
	for _, e := range list.Value {
		if e.EntitySetName == nil || *e.EntitySetName == "" {
			continue
		}
		c.collections[strings.ToLower(*e.EntitySetName)] = entityRef{
			setName:     *e.EntitySetName,
			logicalName: e.LogicalName,
		}
	}
	c.loaded = true

	logging.FromContext(ctx).Debug("obtained entity definitions", "collections", len(c.collections))
	return nil
}

func (c *HTTPCatalog) get(ctx context.Context, path, selectFields string, target any) error {
	resp, err := c.session.Do(ctx, &api.Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  url.Values{"$select": {selectFields}},
	})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received %d - %s", resp.StatusCode, strings.TrimSpace(string(resp.Body)))
	}
	if err := json.Unmarshal(resp.Body, target); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	return nil
}

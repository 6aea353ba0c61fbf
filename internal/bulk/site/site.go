// Package site implements the SiteModel capability interface (spec §4.4)
// and two concrete policies grounded on the original prototype's
// sites/bff_car.py and sites/bff_mobile.py: CarModel (the reference policy
// spec §4.4 describes) and ArticleModel (SPEC_FULL §12, supplement S1).
//
// Policies are plain values injected at composition time, not an
// inheritance hierarchy, per spec §9 "Polymorphism over capabilities."
package site

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/bulkfeed/internal/bulk/walk"
	"github.com/ternarybob/bulkfeed/internal/common"
)

// Model supplies the crawl policy for one site.
type Model interface {
	Name() string
	Endpoint() string
	RootPath() string
	Headers() map[string]string
	CachePeriod() time.Duration

	// ContinueCrawl and ExtractCrawlPaths MUST be pure functions of their
	// arguments — no I/O, per spec §4.4.
	ContinueCrawl(path string, depth int, payload any) bool
	ExtractCrawlPaths(path string, payload any) []string
}

// base holds the capabilities shared by every Model implementation.
type base struct {
	name        string
	endpoint    string
	rootPath    string
	headers     map[string]string
	cachePeriod time.Duration
}

func (b *base) Name() string                 { return b.name }
func (b *base) Endpoint() string              { return b.endpoint }
func (b *base) RootPath() string              { return b.rootPath }
func (b *base) Headers() map[string]string    { return b.headers }
func (b *base) CachePeriod() time.Duration    { return b.cachePeriod }

func newBase(cfg common.SiteConfig, defaultCachePeriod time.Duration) base {
	return base{
		name:        cfg.Name,
		endpoint:    cfg.Endpoint,
		rootPath:    cfg.RootPath,
		headers:     cfg.Headers,
		cachePeriod: cfg.EffectiveCachePeriod(defaultCachePeriod),
	}
}

// CarModel is the reference policy from spec §4.4, grounded on the
// original's BffCarSiteModel (sites/bff_car.py).
type CarModel struct {
	base
}

// NewCarModel builds a CarModel from a SiteConfig.
func NewCarModel(cfg common.SiteConfig, defaultCachePeriod time.Duration) *CarModel {
	return &CarModel{base: newBase(cfg, defaultCachePeriod)}
}

// ContinueCrawl stops fanout at playable_list paths and under
// /catchup/brand_group/, per spec §4.4.
func (m *CarModel) ContinueCrawl(path string, _ int, _ any) bool {
	if strings.Contains(path, "playable_list") {
		return false
	}
	if strings.HasPrefix(path, "/catchup/brand_group/") {
		return false
	}
	return true
}

// ExtractCrawlPaths implements the features/slug and path-list fan-out
// patterns, falling back to harvesting primary_action.payload.link.href
// anywhere in the payload.
func (m *CarModel) ExtractCrawlPaths(path string, payload any) []string {
	if list, ok := payload.([]any); ok && len(list) > 0 {
		if first, ok := list[0].(map[string]any); ok {
			if _, hasSlug := first["slug"]; hasSlug {
				return slugChildren(path, list)
			}
			if _, hasPath := first["path"]; hasPath {
				return pathChildren(list)
			}
		}
	}

	var children []string
	for _, action := range walk.CrawlForKey(payload, "primary_action") {
		href := walk.GetPath(action, "payload.link.href")
		if s, ok := href.(string); ok && s != "" {
			children = append(children, s)
		}
	}
	return children
}

func slugChildren(path string, list []any) []string {
	var children []string
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		slug, ok := obj["slug"].(string)
		if !ok || slug == "" {
			continue
		}
		children = append(children, fmt.Sprintf("%s/%s", path, slug))
	}
	return children
}

func pathChildren(list []any) []string {
	var children []string
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		p, ok := obj["path"].(string)
		if !ok || p == "" {
			continue
		}
		children = append(children, p)
	}
	return children
}

// ArticleModel is SPEC_FULL §12 supplement S1, grounded on the original's
// BffMobileArticleModel (sites/bff_mobile.py).
type ArticleModel struct {
	base
}

// NewArticleModel builds an ArticleModel from a SiteConfig.
func NewArticleModel(cfg common.SiteConfig, defaultCachePeriod time.Duration) *ArticleModel {
	return &ArticleModel{base: newBase(cfg, defaultCachePeriod)}
}

// ContinueCrawl always expands — the original article feed has no depth
// bound.
func (m *ArticleModel) ContinueCrawl(_ string, _ int, _ any) bool {
	return true
}

// ExtractCrawlPaths harvests every "link" object of type "article" anywhere
// in the payload.
func (m *ArticleModel) ExtractCrawlPaths(_ string, payload any) []string {
	var children []string
	for _, linkVal := range walk.CrawlForKey(payload, "link") {
		link, ok := linkVal.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := link["type"].(string); t != "article" {
			continue
		}
		if href, ok := link["href"].(string); ok && href != "" {
			children = append(children, href)
		}
	}
	return children
}

// Registry maps a site's configured name to its Model, enabling the
// name -> model dynamic-loading future work noted in spec §9.
type Registry map[string]Model

// NewRegistry builds a Registry from the configured sites, resolving each
// entry's "model" field to a concrete implementation.
func NewRegistry(cfgs []common.SiteConfig, defaultCachePeriod time.Duration) (Registry, error) {
	reg := make(Registry, len(cfgs))
	for _, cfg := range cfgs {
		var m Model
		switch cfg.Model {
		case "car":
			m = NewCarModel(cfg, defaultCachePeriod)
		case "article":
			m = NewArticleModel(cfg, defaultCachePeriod)
		default:
			return nil, fmt.Errorf("site %q: unknown model %q", cfg.Name, cfg.Model)
		}
		reg[cfg.Name] = m
	}
	return reg, nil
}

package mcpservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ggoodman/mcp-sse-server-go/content"
	"github.com/ggoodman/mcp-sse-server-go/mcp"
)

// WidgetURIPrefix is the URI scheme under which content assets are exposed.
const WidgetURIPrefix = "ui://widget/"

// WidgetURI returns the resource URI for a content asset.
func WidgetURI(name string) string { return WidgetURIPrefix + name }

// ContentResources exposes the assets of a content.Provider as resources.
type ContentResources struct {
	provider content.Provider
	pageSize int
}

var _ ResourcesCapability = (*ContentResources)(nil)

func NewContentResources(p content.Provider) *ContentResources {
	return &ContentResources{provider: p, pageSize: 50}
}

func (r *ContentResources) ListResources(ctx context.Context, session Session, cursor *string) (Page[mcp.Resource], error) {
	names, err := r.provider.List(ctx)
	if err != nil {
		return Page[mcp.Resource]{}, fmt.Errorf("list content: %w", err)
	}
	all := make([]mcp.Resource, 0, len(names))
	for _, name := range names {
		a, err := r.provider.Asset(ctx, name)
		if err != nil {
			continue
		}
		all = append(all, mcp.Resource{URI: WidgetURI(name), Name: name, MimeType: a.MimeType})
	}
	return paginate(all, cursor, r.pageSize), nil
}

func (r *ContentResources) ReadResource(ctx context.Context, session Session, uri string) ([]mcp.ResourceContents, error) {
	name, ok := strings.CutPrefix(uri, WidgetURIPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uri)
	}
	a, err := r.provider.Asset(ctx, name)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uri)
		}
		return nil, err
	}
	return []mcp.ResourceContents{{URI: uri, MimeType: a.MimeType, Text: a.Text()}}, nil
}

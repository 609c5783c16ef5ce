package media

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/solcials-sync/internal/cache"
	"github.com/d60-Lab/solcials-sync/pkg/logger"
)

// Resolver 依次 HEAD 各网关，命中的 URL 缓存 ttl
type Resolver struct {
	gateways []string
	store    cache.Store
	ttl      time.Duration
	client   *http.Client
}

func NewResolver(gateways []string, store cache.Store, ttl time.Duration, client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	gw := make([]string, 0, len(gateways))
	for _, g := range gateways {
		if !strings.HasSuffix(g, "/") {
			g += "/"
		}
		gw = append(gw, g)
	}
	return &Resolver{gateways: gw, store: store, ttl: ttl, client: client}
}

func cacheKey(cid string) string { return "media:gateway:" + cid }

// Resolve returns a gateway URL that currently serves cid.
func (r *Resolver) Resolve(ctx context.Context, cid string) (string, error) {
	cid = strings.TrimPrefix(cid, Scheme)
	if cid == "" {
		return "", fmt.Errorf("%w: empty content id", ErrUnavailable)
	}
	if r.store != nil {
		if url, ok, err := cache.GetJSON[string](ctx, r.store, cacheKey(cid)); err == nil && ok {
			return url, nil
		}
	}

	for _, g := range r.gateways {
		url := g + cid
		if r.available(ctx, url) {
			if r.store != nil {
				if err := cache.SetJSON(ctx, r.store, cacheKey(cid), url, r.ttl); err != nil {
					logger.Warn("cache gateway url failed", zap.String("cid", cid), zap.Error(err))
				}
			}
			return url, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnavailable, cid)
}

func (r *Resolver) available(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		logger.Debug("gateway unreachable", zap.String("url", url), zap.Error(err))
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

package rpc

import (
	"time"

	"github.com/d60-Lab/solcials-sync/config"
)

// Kind 决定缓存 TTL 与失效粒度
type Kind string

const (
	KindPosts         Kind = "posts"
	KindProfiles      Kind = "profiles"
	KindRelationships Kind = "relationships"
	KindTransactions  Kind = "transactions"
)

type TTL struct {
	Fresh time.Duration
	Stale time.Duration
}

type Policy struct {
	Budget         int
	Window         time.Duration
	Spacing        time.Duration
	RequestTimeout time.Duration
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	QueueCapacity  int
	TTL            map[Kind]TTL
}

func DefaultPolicy() Policy {
	return Policy{
		Budget:         5,
		Window:         time.Minute,
		Spacing:        3 * time.Second,
		RequestTimeout: 15 * time.Second,
		MaxRetries:     2,
		BaseDelay:      2 * time.Second,
		MaxDelay:       10 * time.Second,
		QueueCapacity:  64,
		TTL: map[Kind]TTL{
			KindPosts:         {Fresh: time.Minute, Stale: 10 * time.Minute},
			KindProfiles:      {Fresh: 5 * time.Minute, Stale: 30 * time.Minute},
			KindRelationships: {Fresh: 10 * time.Minute, Stale: time.Hour},
			KindTransactions:  {Fresh: time.Hour, Stale: 24 * time.Hour},
		},
	}
}

func PolicyFromConfig(cfg *config.Config) Policy {
	p := DefaultPolicy()
	p.Budget = cfg.RateLimit.Budget
	p.Window = cfg.RateLimit.Window
	p.Spacing = cfg.RateLimit.Spacing
	p.RequestTimeout = cfg.RateLimit.RequestTimeout
	p.MaxRetries = cfg.Retry.MaxRetries
	p.BaseDelay = cfg.Retry.BaseDelay
	p.MaxDelay = cfg.Retry.MaxDelay
	p.TTL[KindPosts] = TTL{Fresh: cfg.Cache.PostsFresh, Stale: cfg.Cache.PostsStale}
	p.TTL[KindProfiles] = TTL{Fresh: cfg.Cache.ProfilesFresh, Stale: cfg.Cache.ProfilesStale}
	p.TTL[KindRelationships] = TTL{Fresh: cfg.Cache.RelationsFresh, Stale: cfg.Cache.RelationsStale}
	return p
}

func (p Policy) ttl(k Kind) TTL {
	if t, ok := p.TTL[k]; ok {
		return t
	}
	return TTL{Fresh: time.Minute, Stale: 10 * time.Minute}
}

package publishers

import (
	"context"
	"fmt"
)

// Builder creates a Publisher from a validated config entry.
type Builder func(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error)

// builders maps each supported type to its constructor.
var builders = map[string]Builder{
	TypeHTTP:   newHTTPPublisher,
	TypeSQS:    newSQSPublisher,
	TypeSNS:    newSNSPublisher,
	TypePubSub: newPubSubPublisher,
}

// Build instantiates the publisher declared by cfg.
func Build(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	build, ok := builders[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("no publisher registered for type %q", cfg.Type)
	}
	pub, err := build(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("build %s publisher %q: %w", cfg.Type, cfg.ID, err)
	}
	return pub, nil
}

// BuildAll instantiates every config, closing the ones already built if any fails.
func BuildAll(ctx context.Context, cfgs []PublisherConfig, log Logger) ([]Publisher, error) {
	pubs := make([]Publisher, 0, len(cfgs))
	for _, cfg := range cfgs {
		pub, err := Build(ctx, cfg, log)
		if err != nil {
			_ = NewFanout(pubs).Close()
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, nil
}

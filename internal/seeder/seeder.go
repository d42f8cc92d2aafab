package seeder

import (
	"context"
	"log"
	"sort"
)

// KeyWriter stores a provider key. *keys.PostgresStore satisfies it.
type KeyWriter interface {
	Put(ctx context.Context, provider, key string) error
}

// SeedProviderKeys copies the non-empty env keys into store. Key values are
// never logged. It returns the providers that were stored.
func SeedProviderKeys(ctx context.Context, store KeyWriter, keys map[string]string) []string {
	providers := make([]string, 0, len(keys))
	for p := range keys {
		providers = append(providers, p)
	}
	sort.Strings(providers)

	var seeded []string
	for _, p := range providers {
		if keys[p] == "" {
			continue
		}
		if err := store.Put(ctx, p, keys[p]); err != nil {
			log.Printf("[Seeder] failed to store %s key, skipping: %v", p, err)
			continue
		}
		seeded = append(seeded, p)
	}
	log.Printf("[Seeder] provider keys stored: %v", seeded)
	return seeded
}

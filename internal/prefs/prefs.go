// Package prefs provides preference snapshots for matchmaking. A snapshot is
// the category -> values interest data declared by a user, captured once per
// join attempt. Anonymous connections always get an empty snapshot.
package prefs

import "context"

// Snapshot maps a preference category to the set of values declared for it.
// A snapshot is immutable for the duration of one waiting/matching cycle;
// the engine re-captures it on every join.
type Snapshot map[string][]string

// Provider resolves the declared preference set for an identity. An empty or
// unknown identity must yield an empty snapshot, never an error the caller
// has to distinguish from "no preferences".
type Provider interface {
	GetPreferences(ctx context.Context, userID string) (Snapshot, error)
}

// Empty is a Provider that returns an empty snapshot for every identity. It
// backs anonymous-only deployments and tests.
type Empty struct{}

// GetPreferences implements Provider.
func (Empty) GetPreferences(ctx context.Context, userID string) (Snapshot, error) {
	return Snapshot{}, nil
}

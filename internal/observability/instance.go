package observability

import (
	"context"

	"github.com/google/uuid"
)

const instanceIDKey = "instance_id"

// SettingsStore is the interface this package needs from the config store.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// ResolveInstanceID loads or generates a persistent instance id. The id
// labels build_info so scrapes from different hosts can be told apart.
func ResolveInstanceID(ctx context.Context, store SettingsStore) string {
	if store != nil {
		id, err := store.GetSetting(ctx, instanceIDKey)
		if err == nil && id != "" {
			return id
		}
	}

	id := uuid.New().String()

	if store != nil {
		_ = store.SetSetting(ctx, instanceIDKey, id)
	}
	return id
}

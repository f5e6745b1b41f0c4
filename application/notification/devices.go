package notification

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"workshop_booking/infrastructure/kv"
)

// Device is a push token registered by a user.
type Device struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// DeviceRegistry keeps push tokens in the TTL store; a token not refreshed
// within ttl is forgotten.
type DeviceRegistry struct {
	store kv.Store
	ttl   time.Duration
}

func NewDeviceRegistry(store kv.Store, ttl time.Duration) *DeviceRegistry {
	return &DeviceRegistry{store: store, ttl: ttl}
}

func deviceKey(userID, token string) string {
	return "device:" + userID + ":" + token
}

func (r *DeviceRegistry) Register(ctx context.Context, userID string, d Device) error {
	if userID == "" || strings.TrimSpace(d.Token) == "" {
		return errors.New("user and token are required")
	}
	return r.store.Put(ctx, deviceKey(userID, d.Token), []byte(d.Platform), r.ttl)
}

func (r *DeviceRegistry) Unregister(ctx context.Context, userID, token string) error {
	return r.store.Delete(ctx, deviceKey(userID, token))
}

func (r *DeviceRegistry) Devices(ctx context.Context, userID string) ([]Device, error) {
	prefix := deviceKey(userID, "")
	entries, err := r.store.Scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(entries))
	for k, v := range entries {
		out = append(out, Device{Token: strings.TrimPrefix(k, prefix), Platform: string(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

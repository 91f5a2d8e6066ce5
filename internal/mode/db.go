package mode

import (
	"context"
)

const configKey = "shop_mode"

// ConfigStore is the key/value slice of the database the mode needs
type ConfigStore interface {
	SaveConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)
}

// DBBackend keeps the record in the app_config table
type DBBackend struct {
	store ConfigStore
}

func NewDBBackend(store ConfigStore) *DBBackend {
	return &DBBackend{store: store}
}

func (d *DBBackend) Load(ctx context.Context) (*Record, error) {
	value, err := d.store.GetConfig(ctx, configKey)
	if err != nil {
		return nil, err
	}
	if value == "" {
		return nil, nil
	}
	return decodeRecord([]byte(value))
}

func (d *DBBackend) Save(ctx context.Context, rec Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return d.store.SaveConfig(ctx, configKey, string(data))
}

package dota

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gargamel/gargamel-league/internal/supervisor"
)

// Factory spawns one supervisor per acquired bot slot, each on its own
// Steam connection.
type Factory struct {
	cfg supervisor.Config
	log *logrus.Logger
}

// NewFactory creates a factory using the given supervisor timeouts.
func NewFactory(cfg supervisor.Config, log *logrus.Logger) *Factory {
	return &Factory{cfg: cfg, log: log}
}

// Spawn logs the slot's account into Steam and starts a supervisor on it.
func (f *Factory) Spawn(ctx context.Context, slot int, cred supervisor.Credential) (supervisor.Handle, error) {
	client := NewClient(cred.Username, cred.Password, f.log)
	sup := supervisor.New(client, f.cfg, f.log)
	if err := sup.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting supervisor on slot %d: %w", slot, err)
	}
	return sup, nil
}

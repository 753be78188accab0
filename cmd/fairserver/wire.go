//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/cory-johannsen/fairplay/internal/config"
)

func initializeApp(ctx context.Context, cfg config.Config) (*app, func(), error) {
	wire.Build(providerSet)
	return nil, nil, nil
}

package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/fba-recon/internal/config"
)

func TestNewLogger(t *testing.T) {
	for _, cfg := range []*config.Config{nil, {Env: "dev"}, {Env: "prod"}} {
		l, err := NewLogger(cfg)
		require.NoError(t, err)
		require.NotNil(t, l)
		_ = l.Sync()
	}
}

func TestBuild_RejectsIncompleteConfig(t *testing.T) {
	log := zaptest.NewLogger(t)
	base := config.Config{SecretKey: "k", Region: "eu", LWAClientID: "id", LWAClientSecret: "secret", DatabaseURL: "postgres://x"}

	noLWA := base
	noLWA.LWAClientSecret = ""
	_, err := Build(context.Background(), &noLWA, log)
	require.ErrorContains(t, err, "LWA_CLIENT_ID")

	noDB := base
	noDB.DatabaseURL = ""
	_, err = Build(context.Background(), &noDB, log)
	require.ErrorContains(t, err, "DATABASE_URL")

	badRegion := base
	badRegion.Region = "mars"
	_, err = Build(context.Background(), &badRegion, log)
	require.ErrorContains(t, err, "unknown region")
}

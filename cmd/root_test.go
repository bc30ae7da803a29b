package main

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-feed/internal/config"
	"github.com/Shivanand-hulikatti/event-feed/internal/docstore"
	"github.com/Shivanand-hulikatti/event-feed/internal/docstore/memory"
	"github.com/Shivanand-hulikatti/event-feed/internal/identity"
	"github.com/Shivanand-hulikatti/event-feed/internal/repository"
)

func run(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.Execute()
}

func TestMigrate_RejectsUnknownDirection(t *testing.T) {
	t.Setenv("EVENTS_AUTH_TOKEN_SECRET", "0123456789abcdef")
	require.Error(t, run(t, "migrate", "sideways"))
	require.Error(t, run(t, "migrate", "up", "down"))
}

func TestRoot_InvalidConfigFails(t *testing.T) {
	t.Setenv("EVENTS_AUTH_TOKEN_SECRET", "short")
	err := run(t, "serve")
	require.Error(t, err)
	require.Contains(t, err.Error(), "token_secret")
}

func TestRoot_MissingConfigFile(t *testing.T) {
	t.Setenv("EVENTS_AUTH_TOKEN_SECRET", "0123456789abcdef")
	require.Error(t, run(t, "--config", t.TempDir()+"/nope.yaml", "serve"))
}

func TestOpenStore(t *testing.T) {
	cfg := config.Defaults()
	s, err := openStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &memory.Store{}, s)
	require.NoError(t, s.Close())

	cfg.Store.Driver = "etcd"
	_, err = openStore(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestBootstrapIdentity(t *testing.T) {
	accounts := repository.NewAccountRepository(memory.New(), repository.Collections{Namespace: "test"})
	p := identity.NewProvider(accounts, identity.Options{Secret: []byte("0123456789abcdef"), TTL: time.Hour}, zap.NewNop())
	require.NoError(t, bootstrapIdentity(context.Background(), p, "", zap.NewNop()))
	require.NoError(t, bootstrapIdentity(context.Background(), p, "not-a-token", zap.NewNop()))
}

type stuckStore struct {
	docstore.Store
	release chan struct{}
}

func (s stuckStore) Close() error {
	<-s.release
	return nil
}

func TestCloseStore_GivesUpAfterTimeout(t *testing.T) {
	s := stuckStore{Store: memory.New(), release: make(chan struct{})}
	defer close(s.release)

	done := make(chan struct{})
	go func() {
		closeStore(s, 20*time.Millisecond, zap.NewNop())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("closeStore blocked on a stuck store")
	}
}

package janitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/trainyard-cloud/trainyard/internal/artifact"
	"github.com/trainyard-cloud/trainyard/internal/models"
	"github.com/trainyard-cloud/trainyard/internal/testutil"
)

func TestNewRejectsBadExpression(t *testing.T) {
	_, err := New(nil, "not a schedule", 30)
	require.Error(t, err)
}

func TestFireCollectsExpiredOrphans(t *testing.T) {
	conn := testutil.OpenTestDB(t)
	defer testutil.CloseDB(conn)

	store := artifact.NewStore(conn, t.TempDir(), nil)
	ctx := context.Background()

	digest, err := store.Store(ctx, []byte("stale weights"), models.ArtifactTypeModel, "old.pt", nil)
	require.NoError(t, err)

	// zero retention makes every orphan expired
	j, err := New(store, "0 3 * * *", 0)
	require.NoError(t, err)
	require.NoError(t, j.Fire(ctx))

	_, err = store.Get(ctx, digest)
	require.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestListenStopsOnCancel(t *testing.T) {
	conn := testutil.OpenTestDB(t)
	defer testutil.CloseDB(conn)

	store := artifact.NewStore(conn, t.TempDir(), nil)

	j, err := New(store, "0 3 * * *", 30)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Listen(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop on context cancel")
	}
}

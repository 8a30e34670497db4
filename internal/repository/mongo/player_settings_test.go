package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo/readpref"

	"mediaplayer/internal/session"
)

// TestPlayerSettingsRoundTrip is an integration test; it runs only when
// MONGO_TEST_URI points at a reachable server.
func TestPlayerSettingsRoundTrip(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set, skipping mongo integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := Connect(ctx, uri)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	dbName := "mediaplayer_test"
	t.Cleanup(func() {
		_ = client.Database(dbName).Drop(context.Background())
	})

	repo := NewPlayerSettingsRepository(client, dbName)

	if _, found, err := repo.Get(ctx); err != nil || found {
		t.Fatalf("expected empty settings, found=%v err=%v", found, err)
	}

	want := session.Settings{
		RepeatMode:     2,
		ShuffleEnabled: true,
		Speed:          1.25,
		LastPositionMs: 123456,
		LastWindow:     1,
	}
	if err := repo.Set(ctx, want); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, found, err := repo.Get(ctx)
	if err != nil || !found {
		t.Fatalf("get after set: found=%v err=%v", found, err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}

	// Upsert overwrites in place.
	want.Speed = 2
	if err := repo.Set(ctx, want); err != nil {
		t.Fatalf("second set: %v", err)
	}
	got, _, err = repo.Get(ctx)
	if err != nil || got.Speed != 2 {
		t.Fatalf("upsert: got %+v err=%v", got, err)
	}
}

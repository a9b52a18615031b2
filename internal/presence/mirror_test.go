package presence

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/undercity-games/presence-server/internal/store"
)

// testClient connects to a local Redis on DB 9 and flushes it, or skips
// the test when no server is reachable.
func testClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 9})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skip("redis not available, skipping")
	}
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush test db: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestMirrorOnlineOffline(t *testing.T) {
	rdb := testClient(t)
	m := NewMirror(rdb, nil)
	ctx := context.Background()

	m.PlayerOnline(&store.Player{
		ID: "u1", Username: "vex", Level: 12,
		DistrictID: "harbor", CrewID: "crew-1", CrewTag: "VXN",
	})

	online, err := rdb.SMembers(ctx, "presence:online").Result()
	if err != nil || !slices.Contains(online, "u1") {
		t.Fatalf("online set = %v (err %v), want u1 present", online, err)
	}
	fields, err := rdb.HGetAll(ctx, "presence:user:u1").Result()
	if err != nil {
		t.Fatalf("read user hash: %v", err)
	}
	if fields["username"] != "vex" || fields["district"] != "harbor" || fields["crew"] != "crew-1" {
		t.Fatalf("user hash = %v", fields)
	}
	if n, _ := rdb.SIsMember(ctx, "presence:district:harbor", "u1").Result(); !n {
		t.Fatal("district roster missing u1")
	}
	if n, _ := rdb.SIsMember(ctx, "presence:crew:crew-1", "u1").Result(); !n {
		t.Fatal("crew roster missing u1")
	}

	m.PlayerOffline("u1")

	if n, _ := rdb.SCard(ctx, "presence:online").Result(); n != 0 {
		t.Fatalf("online set size = %d after offline, want 0", n)
	}
	if n, _ := rdb.Exists(ctx, "presence:user:u1").Result(); n != 0 {
		t.Fatal("user hash survived offline")
	}
	if n, _ := rdb.SCard(ctx, "presence:district:harbor").Result(); n != 0 {
		t.Fatal("district roster survived offline")
	}
	if n, _ := rdb.SCard(ctx, "presence:crew:crew-1").Result(); n != 0 {
		t.Fatal("crew roster survived offline")
	}
}

func TestMirrorMovesRosters(t *testing.T) {
	rdb := testClient(t)
	m := NewMirror(rdb, nil)
	ctx := context.Background()

	m.PlayerOnline(&store.Player{ID: "u1", Username: "vex", DistrictID: "harbor", CrewID: "crew-1"})

	m.DistrictChanged("u1", "docks")
	if n, _ := rdb.SCard(ctx, "presence:district:harbor").Result(); n != 0 {
		t.Fatal("old district roster still holds u1")
	}
	if ok, _ := rdb.SIsMember(ctx, "presence:district:docks", "u1").Result(); !ok {
		t.Fatal("new district roster missing u1")
	}
	if district, _ := rdb.HGet(ctx, "presence:user:u1", "district").Result(); district != "docks" {
		t.Fatalf("hash district = %q, want docks", district)
	}

	m.CrewChanged("u1", "")
	if n, _ := rdb.SCard(ctx, "presence:crew:crew-1").Result(); n != 0 {
		t.Fatal("crew roster still holds u1 after leaving")
	}
	if crew, _ := rdb.HGet(ctx, "presence:user:u1", "crew").Result(); crew != "" {
		t.Fatalf("hash crew = %q, want empty", crew)
	}
}

func TestMirrorReplacementRelocates(t *testing.T) {
	rdb := testClient(t)
	m := NewMirror(rdb, nil)
	ctx := context.Background()

	// A superseding session can arrive with a different identity; the
	// mirror diffs against what it last wrote.
	m.PlayerOnline(&store.Player{ID: "u1", Username: "vex", DistrictID: "harbor", CrewID: "crew-1"})
	m.PlayerOnline(&store.Player{ID: "u1", Username: "vex", DistrictID: "docks"})

	if n, _ := rdb.SCard(ctx, "presence:district:harbor").Result(); n != 0 {
		t.Fatal("old district entry survived replacement")
	}
	if ok, _ := rdb.SIsMember(ctx, "presence:district:docks", "u1").Result(); !ok {
		t.Fatal("new district entry missing")
	}
	if n, _ := rdb.SCard(ctx, "presence:crew:crew-1").Result(); n != 0 {
		t.Fatal("old crew entry survived replacement")
	}
	if n, _ := rdb.SCard(ctx, "presence:online").Result(); n != 1 {
		t.Fatalf("online set size = %d, want 1", n)
	}
}

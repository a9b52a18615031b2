package dircache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/undercity-games/presence-server/internal/store"
)

type countingDirectory struct {
	calls   int
	players map[string]*store.Player
}

func (d *countingDirectory) GetPlayerInfo(_ context.Context, userID string) (*store.Player, error) {
	d.calls++
	p, ok := d.players[userID]
	if !ok {
		return nil, store.ErrPlayerNotFound
	}
	return p, nil
}

func TestGetPlayerInfo_CachesHits(t *testing.T) {
	inner := &countingDirectory{players: map[string]*store.Player{
		"p1": {ID: "p1", Username: "mara"},
	}}
	d := New(inner, 8, time.Minute)
	ctx := context.Background()

	for range 3 {
		p, err := d.GetPlayerInfo(ctx, "p1")
		if err != nil {
			t.Fatalf("GetPlayerInfo failed: %v", err)
		}
		if p.Username != "mara" {
			t.Fatalf("unexpected player: %+v", p)
		}
	}

	if inner.calls != 1 {
		t.Fatalf("expected 1 inner lookup, got %d", inner.calls)
	}
}

func TestGetPlayerInfo_DoesNotCacheErrors(t *testing.T) {
	inner := &countingDirectory{players: map[string]*store.Player{}}
	d := New(inner, 8, time.Minute)
	ctx := context.Background()

	for range 2 {
		if _, err := d.GetPlayerInfo(ctx, "ghost"); !errors.Is(err, store.ErrPlayerNotFound) {
			t.Fatalf("expected ErrPlayerNotFound, got %v", err)
		}
	}

	if inner.calls != 2 {
		t.Fatalf("expected misses to reach the directory, got %d calls", inner.calls)
	}
}

func TestInvalidate_ForcesReload(t *testing.T) {
	inner := &countingDirectory{players: map[string]*store.Player{
		"p1": {ID: "p1", Username: "mara", DistrictID: "harbor"},
	}}
	d := New(inner, 8, time.Minute)
	ctx := context.Background()

	if _, err := d.GetPlayerInfo(ctx, "p1"); err != nil {
		t.Fatalf("GetPlayerInfo failed: %v", err)
	}

	inner.players["p1"] = &store.Player{ID: "p1", Username: "mara", DistrictID: "docks"}
	d.Invalidate("p1")

	p, err := d.GetPlayerInfo(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPlayerInfo failed: %v", err)
	}
	if p.DistrictID != "docks" {
		t.Fatalf("expected reloaded record, got %+v", p)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 inner lookups, got %d", inner.calls)
	}
}

func TestGetPlayerInfo_EntriesExpire(t *testing.T) {
	inner := &countingDirectory{players: map[string]*store.Player{
		"p1": {ID: "p1", Username: "mara"},
	}}
	d := New(inner, 8, 10*time.Millisecond)
	ctx := context.Background()

	if _, err := d.GetPlayerInfo(ctx, "p1"); err != nil {
		t.Fatalf("GetPlayerInfo failed: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	if _, err := d.GetPlayerInfo(ctx, "p1"); err != nil {
		t.Fatalf("GetPlayerInfo failed: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected expired entry to reload, got %d calls", inner.calls)
	}
}

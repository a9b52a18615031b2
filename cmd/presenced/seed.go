package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/undercity-games/presence-server/internal/config"
	"github.com/undercity-games/presence-server/internal/store"
	"github.com/undercity-games/presence-server/internal/store/sqlite"
)

func seedCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the directory with sample players",
		Long: `Insert sample players and friendships into the directory database for
local development. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(nil, configPath)
			if err != nil {
				return err
			}
			return runSeed(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")

	return cmd
}

func runSeed(ctx context.Context, cfg config.Config) error {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	players := []*store.Player{
		{ID: "p-mara", Username: "MaraVex", Level: 23, DistrictID: "downtown", CrewID: "crew-ravens", CrewTag: "RVN"},
		{ID: "p-juno", Username: "JunoSable", Level: 31, DistrictID: "downtown", CrewID: "crew-ravens", CrewTag: "RVN"},
		{ID: "p-silas", Username: "SilasCreed", Level: 17, DistrictID: "harbor"},
		{ID: "p-vex", Username: "VexHollow", Level: 45, DistrictID: "old-town"},
	}
	for _, p := range players {
		if err := st.UpsertPlayer(ctx, p); err != nil {
			return fmt.Errorf("seed player %s: %w", p.ID, err)
		}
	}

	friendships := [][2]string{
		{"p-mara", "p-juno"},
		{"p-mara", "p-silas"},
		{"p-juno", "p-vex"},
	}
	for _, f := range friendships {
		if err := st.AddFriendship(ctx, f[0], f[1]); err != nil {
			return fmt.Errorf("seed friendship %s-%s: %w", f[0], f[1], err)
		}
	}

	fmt.Printf("seeded %d players and %d friendships into %s\n", len(players), len(friendships), cfg.DatabasePath)
	return nil
}

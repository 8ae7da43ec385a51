package gamemigrations

import (
	"context"
	"fmt"

	gamedb "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/repositories"
	"github.com/uptrace/bun"
)

type gameIndex struct {
	model   interface{}
	name    string
	unique  bool
	columns []string
}

var gameIndexes = []gameIndex{
	{model: (*gamedb.RoundLocation)(nil), name: "idx_game_location_game_round", unique: true, columns: []string{"game_id", "round"}},
	{model: (*gamedb.Game)(nil), name: "idx_games_lobby", columns: []string{"is_multiplayer", "started_at", "created_at"}},
	{model: (*gamedb.Location)(nil), name: "idx_locations_level_region", columns: []string{"level", "region"}},
	{model: (*gamedb.Membership)(nil), name: "idx_user_game_joined_at", columns: []string{"game_id", "joined_at"}},
}

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating game session indexes...")

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			for _, idx := range gameIndexes {
				q := tx.NewCreateIndex().
					Model(idx.model).
					Index(idx.name).
					Column(idx.columns...).
					IfNotExists()
				if idx.unique {
					q = q.Unique()
				}
				if _, err := q.Exec(ctx); err != nil {
					return fmt.Errorf("failed to create index %s: %w", idx.name, err)
				}
			}
			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping game session indexes...")

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			for _, idx := range gameIndexes {
				if _, err := tx.NewDropIndex().Index(idx.name).IfExists().Exec(ctx); err != nil {
					return fmt.Errorf("failed to drop index %s: %w", idx.name, err)
				}
			}
			return nil
		})
	})
}

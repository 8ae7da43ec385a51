package gamemigrations

import (
	"context"
	"fmt"

	gamedb "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/repositories"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating game session tables...")

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.NewCreateTable().
				Model((*gamedb.Game)(nil)).
				IfNotExists().
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to create games table: %w", err)
			}

			if _, err := tx.NewCreateTable().
				Model((*gamedb.Location)(nil)).
				IfNotExists().
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to create locations table: %w", err)
			}

			if _, err := tx.NewCreateTable().
				Model((*gamedb.Player)(nil)).
				IfNotExists().
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to create players table: %w", err)
			}

			if _, err := tx.NewCreateTable().
				Model((*gamedb.Membership)(nil)).
				IfNotExists().
				ForeignKey(`("game_id") REFERENCES "games" ("id") ON DELETE CASCADE`).
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to create user_game table: %w", err)
			}

			if _, err := tx.NewCreateTable().
				Model((*gamedb.RoundLocation)(nil)).
				IfNotExists().
				ForeignKey(`("game_id") REFERENCES "games" ("id") ON DELETE CASCADE`).
				ForeignKey(`("location_id") REFERENCES "locations" ("id")`).
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to create game_location table: %w", err)
			}

			if _, err := tx.NewCreateTable().
				Model((*gamedb.Guess)(nil)).
				IfNotExists().
				ForeignKey(`("game_id") REFERENCES "games" ("id") ON DELETE CASCADE`).
				ForeignKey(`("location_id") REFERENCES "locations" ("id")`).
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to create guesses table: %w", err)
			}

			fmt.Println("Game session tables created successfully!")
			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping game session tables...")

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			models := []interface{}{
				(*gamedb.Guess)(nil),
				(*gamedb.RoundLocation)(nil),
				(*gamedb.Membership)(nil),
				(*gamedb.Player)(nil),
				(*gamedb.Location)(nil),
				(*gamedb.Game)(nil),
			}
			for _, model := range models {
				if _, err := tx.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
					return fmt.Errorf("failed to drop table: %w", err)
				}
			}
			return nil
		})
	})
}

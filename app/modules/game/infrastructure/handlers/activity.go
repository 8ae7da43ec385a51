// Package gamehandlers consumes the change feed on the server side.
package gamehandlers

import (
	"context"
	"fmt"
	"log/slog"

	gamefeed "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/feed"
	gamemetrics "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/metrics"
	gamedb "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/repositories"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Handlers records game activity observed on the change feed.
type Handlers interface {
	HandleFeedEvent(ctx context.Context, ev gamefeed.Event) error
}

// ActivityHandlers counts feed events and logs the session milestones.
type ActivityHandlers struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics gamemetrics.GameMetrics
}

// NewActivityHandlers creates the feed activity handlers.
func NewActivityHandlers(logger *slog.Logger, tracer trace.Tracer, metrics gamemetrics.GameMetrics) *ActivityHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityHandlers{logger: logger, tracer: tracer, metrics: metrics}
}

func (h *ActivityHandlers) HandleFeedEvent(ctx context.Context, ev gamefeed.Event) error {
	ctx, span := h.tracer.Start(ctx, "game.activity."+string(ev.Table), trace.WithAttributes(
		attribute.String("feed.table", string(ev.Table)),
		attribute.String("feed.type", string(ev.Type)),
	))
	defer span.End()

	h.metrics.RecordFeedEvent(ctx, string(ev.Table), string(ev.Type))

	switch ev.Table {
	case gamefeed.TableGames:
		return h.gameChanged(ctx, ev)
	case gamefeed.TableGameLocation:
		if ev.Type != gamefeed.Insert {
			return nil
		}
		var round gamedb.RoundLocation
		if err := ev.DecodeNew(&round); err != nil {
			return fmt.Errorf("failed to decode round: %w", err)
		}
		h.logger.InfoContext(ctx, "Round started",
			slog.String("game_id", round.GameID.String()),
			slog.Int("round", round.Round),
		)
	case gamefeed.TableGuesses:
		var guess gamedb.Guess
		if err := ev.DecodeNew(&guess); err != nil {
			return fmt.Errorf("failed to decode guess: %w", err)
		}
		h.logger.DebugContext(ctx, "Guess recorded",
			slog.String("game_id", guess.GameID.String()),
			slog.String("user_id", guess.UserID.String()),
			slog.Int("points", guess.Points),
		)
	case gamefeed.TableUserGame:
		var member gamedb.Membership
		if err := ev.DecodeNew(&member); err != nil {
			return fmt.Errorf("failed to decode membership: %w", err)
		}
		h.logger.DebugContext(ctx, "Player joined game",
			slog.String("game_id", member.GameID.String()),
			slog.String("user_id", member.UserID.String()),
		)
	}
	return nil
}

func (h *ActivityHandlers) gameChanged(ctx context.Context, ev gamefeed.Event) error {
	var game gamedb.Game
	if err := ev.DecodeNew(&game); err != nil {
		return fmt.Errorf("failed to decode game: %w", err)
	}

	if ev.Type == gamefeed.Insert {
		h.logger.InfoContext(ctx, "Game created",
			slog.String("game_id", game.ID.String()),
			slog.Bool("multiplayer", game.IsMultiplayer),
			slog.String("region", game.Region),
			slog.String("level", game.Level),
		)
		return nil
	}

	var before gamedb.Game
	if err := ev.DecodeOld(&before); err != nil {
		return fmt.Errorf("failed to decode previous game: %w", err)
	}
	switch {
	case !before.Started() && game.Started():
		h.logger.InfoContext(ctx, "Game started", slog.String("game_id", game.ID.String()))
	case !before.Ended() && game.Ended():
		h.logger.InfoContext(ctx, "Game ended", slog.String("game_id", game.ID.String()))
	}
	return nil
}

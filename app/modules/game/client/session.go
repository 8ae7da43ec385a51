// Package gameclient runs one player's view of a game session.
//
// A Session folds change feed and presence events into a local snapshot on
// a single goroutine. Commands enter through the same inbox, so the state
// needs no locking. The elected leader drives the session: it selects the
// first round once the game starts, advances rounds and ends the game.
package gameclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gameservice "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/application"
	"github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/election"
	"github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/scoring"
	gametypes "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/domain/types"
	gamefeed "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/feed"
	gamepresence "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/presence"
	gamedb "github.com/Black-And-White-Club/frolf-guesser/app/modules/game/infrastructure/repositories"
	"github.com/google/uuid"
)

var watchedTables = []gamefeed.Table{
	gamefeed.TableGames,
	gamefeed.TableGameLocation,
	gamefeed.TableGuesses,
	gamefeed.TableUserGame,
}

// Presence opens a presence channel.
type Presence interface {
	Join(ctx context.Context, channelKey string, identity gamepresence.Identity) (*gamepresence.Channel, error)
}

// PresenceKey is the presence channel of a game.
func PresenceKey(gameID uuid.UUID) string {
	return "game." + gameID.String()
}

type msg interface{ isSessionMsg() }

type feedEvent struct{ ev gamefeed.Event }

func (feedEvent) isSessionMsg() {}

type presenceEvent struct{ ev gamepresence.Event }

func (presenceEvent) isSessionMsg() {}

type guessCmd struct {
	point gametypes.Point
	reply chan guessReply
}

func (guessCmd) isSessionMsg() {}

type guessReply struct {
	result *gameservice.GuessResult
	err    error
}

type advanceCmd struct{ reply chan error }

func (advanceCmd) isSessionMsg() {}

type startCmd struct{ reply chan error }

func (startCmd) isSessionMsg() {}

type resyncCmd struct{ reply chan error }

func (resyncCmd) isSessionMsg() {}

type viewCmd struct{ reply chan Snapshot }

func (viewCmd) isSessionMsg() {}

// Session is one client's connection to a game.
type Session struct {
	svc      gameservice.Service
	feed     gamefeed.Subscriber
	presence Presence
	logger   *slog.Logger

	gameID uuid.UUID
	self   gamepresence.Identity
	rules  gameservice.Rules

	inbox   chan msg
	updates chan Snapshot
	started chan struct{}
	done    chan struct{}

	// Owned by the loop goroutine.
	state Snapshot
	// selectHeld is set after the first round could not be selected. It is
	// cleared by a game or round change and by Resync.
	selectHeld bool
}

// New creates a session. Nothing happens until Run is called.
func New(
	svc gameservice.Service,
	feed gamefeed.Subscriber,
	presence Presence,
	gameID uuid.UUID,
	self gamepresence.Identity,
	logger *slog.Logger,
) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		svc:      svc,
		feed:     feed,
		presence: presence,
		logger:   logger.With(slog.String("game_id", gameID.String()), slog.String("player_id", self.PlayerID.String())),
		gameID:   gameID,
		self:     self,
		rules:    svc.Rules(),
		inbox:    make(chan msg, 64),
		updates:  make(chan Snapshot, 1),
		started:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Updates delivers the latest snapshot after every change. Only the most
// recent snapshot is kept for a slow reader.
func (s *Session) Updates() <-chan Snapshot { return s.updates }

// Ready is closed once the session synced with the store.
func (s *Session) Ready() <-chan struct{} { return s.started }

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run joins presence, syncs from the store and processes events until ctx
// is cancelled. It leaves presence before returning.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, table := range watchedTables {
		events, err := s.feed.Subscribe(loopCtx, table, gamefeed.ForGame(table, s.gameID))
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", table, err)
		}
		go s.forward(loopCtx, events)
	}

	channel, err := s.presence.Join(loopCtx, PresenceKey(s.gameID), s.self)
	if err != nil {
		return fmt.Errorf("failed to join presence: %w", err)
	}
	for _, kind := range []gamepresence.Kind{gamepresence.KindSync, gamepresence.KindJoin, gamepresence.KindLeave} {
		channel.On(kind, func(ev gamepresence.Event) {
			s.enqueue(loopCtx, presenceEvent{ev: ev})
		})
	}
	s.state.Present = gamepresence.PlayerIDs(channel.Members())

	if err := s.resync(loopCtx); err != nil {
		cancel()
		_ = channel.Leave(context.Background())
		return err
	}
	s.drive(loopCtx)
	s.broadcast()
	close(s.started)

	s.logger.InfoContext(ctx, "Game session running")
	for {
		select {
		case <-loopCtx.Done():
			cancel()
			leaveCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			err := channel.Leave(leaveCtx)
			stop()
			s.logger.InfoContext(ctx, "Game session stopped")
			return err
		case m := <-s.inbox:
			s.handle(loopCtx, m)
		}
	}
}

func (s *Session) forward(ctx context.Context, events <-chan gamefeed.Event) {
	for ev := range events {
		s.enqueue(ctx, feedEvent{ev: ev})
	}
}

func (s *Session) enqueue(ctx context.Context, m msg) {
	select {
	case s.inbox <- m:
	case <-ctx.Done():
	}
}

// --- Commands ---

// Guess submits a guess for the current round. A repeated guess returns the
// stored one.
func (s *Session) Guess(ctx context.Context, lat, lng float64) (*gameservice.GuessResult, error) {
	reply := make(chan guessReply, 1)
	if err := s.send(ctx, guessCmd{point: gametypes.Point{Lat: lat, Lng: lng}, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrSessionClosed
	}
}

// Advance moves to the next round, or ends the game after the last one.
// Only the leader may advance and only once every present member guessed.
func (s *Session) Advance(ctx context.Context) error {
	return s.call(ctx, func(reply chan error) msg { return advanceCmd{reply: reply} })
}

// Start starts the game with the players currently present.
func (s *Session) Start(ctx context.Context) error {
	return s.call(ctx, func(reply chan error) msg { return startCmd{reply: reply} })
}

// Resync reloads the session from the store.
func (s *Session) Resync(ctx context.Context) error {
	return s.call(ctx, func(reply chan error) msg { return resyncCmd{reply: reply} })
}

// View returns the current snapshot.
func (s *Session) View(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := s.send(ctx, viewCmd{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-s.done:
		return Snapshot{}, ErrSessionClosed
	}
}

func (s *Session) call(ctx context.Context, build func(chan error) msg) error {
	reply := make(chan error, 1)
	if err := s.send(ctx, build(reply)); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) send(ctx context.Context, m msg) error {
	select {
	case s.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

// --- Loop ---

func (s *Session) handle(ctx context.Context, m msg) {
	switch m := m.(type) {
	case viewCmd:
		m.reply <- s.snapshot()
		return
	case feedEvent:
		if m.ev.Table == gamefeed.TableGames || m.ev.Table == gamefeed.TableGameLocation {
			s.selectHeld = false
		}
		s.applyFeed(ctx, m.ev)
	case presenceEvent:
		s.state.Present = gamepresence.PlayerIDs(m.ev.Members)
	case guessCmd:
		res, err := s.guess(ctx, m.point)
		m.reply <- guessReply{result: res, err: err}
	case advanceCmd:
		m.reply <- s.advance(ctx)
	case startCmd:
		m.reply <- s.start(ctx)
	case resyncCmd:
		s.selectHeld = false
		m.reply <- s.resync(ctx)
	}
	s.drive(ctx)
	s.broadcast()
}

func (s *Session) applyFeed(ctx context.Context, ev gamefeed.Event) {
	switch ev.Table {
	case gamefeed.TableGames:
		var g gameservice.GameInfo
		if err := ev.DecodeNew(&g); err != nil {
			s.logger.WarnContext(ctx, "Failed to decode game event", slog.Any("error", err))
			return
		}
		g.PasswordRequired = s.state.Game.PasswordRequired
		s.state.Game = g

	case gamefeed.TableUserGame:
		if err := s.refreshMembers(ctx); err != nil {
			s.logger.WarnContext(ctx, "Failed to refresh members", slog.Any("error", err))
		}

	case gamefeed.TableGameLocation:
		var r gamedb.RoundLocation
		if err := ev.DecodeNew(&r); err != nil {
			s.logger.WarnContext(ctx, "Failed to decode round event", slog.Any("error", err))
			return
		}
		switch {
		case ev.Type == gamefeed.Insert && r.Round > s.state.Round:
			s.enterRound(ctx, gameservice.RoundInfo{
				GameID:     r.GameID,
				Round:      r.Round,
				LocationID: r.LocationID,
				CreatedAt:  r.CreatedAt,
				EndedAt:    r.EndedAt,
			})
		case ev.Type == gamefeed.Update && s.state.Current != nil && r.Round == s.state.Current.Round:
			s.state.Current.EndedAt = r.EndedAt
		}

	case gamefeed.TableGuesses:
		var g gamedb.Guess
		if err := ev.DecodeNew(&g); err != nil {
			s.logger.WarnContext(ctx, "Failed to decode guess event", slog.Any("error", err))
			return
		}
		// Guesses for a round we have not seen yet are fetched on entering it.
		if s.state.Current == nil || g.LocationID != s.state.Current.LocationID {
			return
		}
		s.addGuess(gametypes.PlayerGuess{
			GameID:     g.GameID,
			LocationID: g.LocationID,
			PlayerID:   g.UserID,
			Username:   s.username(g.UserID),
			Round:      s.state.Current.Round,
			Guess:      gametypes.Point{Lat: g.Lat, Lng: g.Lng},
			Points:     g.Points,
			CreatedAt:  g.CreatedAt,
		})
	}
}

// enterRound moves the round pointer and catches up on guesses that were
// delivered before the round itself.
func (s *Session) enterRound(ctx context.Context, info gameservice.RoundInfo) {
	if info.ImagePath == "" {
		if cur, err := s.svc.GetCurrentLocation(ctx, s.gameID); err == nil && cur != nil && cur.Round == info.Round {
			info = *cur
		}
	}
	s.state.Round = info.Round
	s.state.Current = &info
	s.state.HasGuessed = false
	s.state.Guesses = nil

	guesses, err := s.svc.GetAllPlayerGuesses(ctx, s.gameID, &info.LocationID)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to load round guesses", slog.Any("error", err))
		return
	}
	for _, g := range guesses {
		s.addGuess(g)
	}
}

func (s *Session) addGuess(g gametypes.PlayerGuess) {
	for i, existing := range s.state.Guesses {
		if existing.PlayerID == g.PlayerID {
			s.state.Guesses[i] = g
			s.markOwn(g)
			return
		}
	}
	s.state.Guesses = append(s.state.Guesses, g)
	s.markOwn(g)
}

func (s *Session) markOwn(g gametypes.PlayerGuess) {
	if g.PlayerID == s.self.PlayerID {
		s.state.HasGuessed = true
		s.state.Points = g.Points
	}
}

// drive performs the leader's duties.
func (s *Session) drive(ctx context.Context) {
	if !s.isLeader() || !s.state.Game.Started() || s.state.Game.Ended() {
		return
	}

	if s.state.Round == 0 {
		if s.selectHeld {
			return
		}
		if err := s.selectNext(ctx); err != nil {
			s.selectHeld = true
			s.logger.WarnContext(ctx, "Failed to select the first round", slog.Any("error", err))
		}
		return
	}

	for _, g := range s.state.Guesses {
		if g.Points == 0 {
			s.logger.InfoContext(ctx, "Player eliminated, ending game", slog.String("eliminated", g.PlayerID.String()))
			if err := s.end(ctx); err != nil {
				s.logger.WarnContext(ctx, "Failed to end game", slog.Any("error", err))
			}
			return
		}
	}
}

func (s *Session) guess(ctx context.Context, point gametypes.Point) (*gameservice.GuessResult, error) {
	if s.state.Current == nil || s.state.Current.EndedAt != nil {
		return nil, ErrNoActiveRound
	}

	res, err := s.svc.RecordGuess(ctx, gameservice.RecordGuessRequest{
		GameID:     s.gameID,
		LocationID: s.state.Current.LocationID,
		PlayerID:   s.self.PlayerID,
		Lat:        point.Lat,
		Lng:        point.Lng,
	})
	if errors.Is(err, gameservice.ErrDuplicateGuess) {
		existing, getErr := s.svc.GetCurrentGuess(ctx, s.gameID, s.self.PlayerID)
		if getErr != nil || existing == nil {
			return nil, err
		}
		s.addGuess(*existing)
		return &gameservice.GuessResult{
			Guess:      *existing,
			Distance:   scoring.Distance(existing.Guess, existing.Location),
			Eliminated: existing.Points == 0,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	s.addGuess(res.Guess)
	return res, nil
}

func (s *Session) advance(ctx context.Context) error {
	switch {
	case !s.state.Game.Started():
		return gameservice.ErrGameNotStarted
	case s.state.Game.Ended():
		return gameservice.ErrGameEnded
	case !s.isLeader():
		return gameservice.ErrPermissionDenied
	case s.state.Current != nil && !s.state.AllGuessed():
		return ErrRoundInProgress
	}

	if s.state.Round >= s.rules.MaxRounds {
		return s.end(ctx)
	}
	return s.selectNext(ctx)
}

func (s *Session) start(ctx context.Context) error {
	if err := s.svc.StartGame(ctx, s.gameID, s.self.PlayerID, s.state.Present); err != nil {
		return err
	}
	return s.refreshGame(ctx)
}

func (s *Session) selectNext(ctx context.Context) error {
	info, err := s.svc.SelectNextLocation(ctx, s.gameID, s.self.PlayerID, s.state.Round, s.state.Present)
	if errors.Is(err, gameservice.ErrStaleRound) {
		s.logger.InfoContext(ctx, "Round already advanced, resyncing")
		if syncErr := s.resync(ctx); syncErr != nil {
			return syncErr
		}
		return err
	}
	if err != nil {
		return err
	}
	s.enterRound(ctx, *info)
	return nil
}

func (s *Session) end(ctx context.Context) error {
	if err := s.svc.EndGame(ctx, s.gameID, s.self.PlayerID, s.state.Present); err != nil {
		return err
	}
	return s.refreshGame(ctx)
}

// --- Store reads ---

func (s *Session) resync(ctx context.Context) error {
	if err := s.refreshGame(ctx); err != nil {
		return err
	}
	if err := s.refreshMembers(ctx); err != nil {
		return err
	}

	history, err := s.svc.GetRoundHistory(ctx, s.gameID)
	if err != nil {
		return fmt.Errorf("failed to load round history: %w", err)
	}
	s.state.Round = len(history)
	s.state.Current = nil
	s.state.HasGuessed = false
	s.state.Guesses = nil
	if len(history) > 0 {
		current := history[len(history)-1]
		s.state.Current = &current

		guesses, err := s.svc.GetAllPlayerGuesses(ctx, s.gameID, &current.LocationID)
		if err != nil {
			return fmt.Errorf("failed to load round guesses: %w", err)
		}
		for _, g := range guesses {
			s.addGuess(g)
		}
	}

	mine, err := s.svc.GetCurrentGuess(ctx, s.gameID, s.self.PlayerID)
	if err != nil {
		return fmt.Errorf("failed to load own guess: %w", err)
	}
	if mine != nil {
		s.addGuess(*mine)
	}

	points, err := s.svc.GetPlayerPoints(ctx, s.gameID, s.self.PlayerID)
	if err != nil {
		return fmt.Errorf("failed to load points: %w", err)
	}
	s.state.Points = points
	return nil
}

func (s *Session) refreshGame(ctx context.Context) error {
	game, err := s.svc.GetGame(ctx, s.gameID)
	if err != nil {
		return fmt.Errorf("failed to load game: %w", err)
	}
	s.state.Game = *game
	return nil
}

func (s *Session) refreshMembers(ctx context.Context) error {
	members, err := s.svc.ListMembers(ctx, s.gameID)
	if err != nil {
		return fmt.Errorf("failed to load members: %w", err)
	}
	s.state.Members = members
	return nil
}

// --- Derived state ---

func (s *Session) leader() (uuid.UUID, bool) {
	members := make([]election.Member, 0, len(s.state.Members))
	for _, m := range s.state.Members {
		members = append(members, election.Member{PlayerID: m.PlayerID, JoinedAt: m.JoinedAt})
	}
	return election.LeaderAmong(members, s.state.Present)
}

func (s *Session) isLeader() bool {
	leader, ok := s.leader()
	return ok && leader == s.self.PlayerID
}

func (s *Session) username(playerID uuid.UUID) string {
	for _, m := range s.state.Members {
		if m.PlayerID == playerID {
			return m.Username
		}
	}
	return ""
}

func (s *Session) snapshot() Snapshot {
	snap := s.state
	snap.Members = append([]gameservice.Member(nil), s.state.Members...)
	snap.Present = append([]uuid.UUID(nil), s.state.Present...)
	snap.Guesses = append([]gametypes.PlayerGuess(nil), s.state.Guesses...)
	if s.state.Current != nil {
		current := *s.state.Current
		snap.Current = &current
	}
	snap.Leader, _ = s.leader()
	snap.IsLeader = snap.Leader == s.self.PlayerID && snap.Leader != uuid.Nil
	snap.View = deriveView(snap)
	return snap
}

func (s *Session) broadcast() {
	s.state.Version++
	snap := s.snapshot()
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- snap:
	default:
	}
}

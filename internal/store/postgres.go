package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lox/blackjacktable/internal/gameid"
)

//go:embed schema.sql
var schema embed.FS

const (
	gameChannel   = "blackjack_game_changed"
	playerChannel = "blackjack_player_changed"
)

// Postgres is a Store over a pgx pool. Row changes are fanned out with
// pg_notify so every connected client observes every write, including its
// own.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// OpenPostgres connects to the database.
func OpenPostgres(ctx context.Context, dsn string, logger *log.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

// Migrate applies the embedded schema. Idempotent.
func (s *Postgres) Migrate(ctx context.Context) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, string(sqlBytes))
	return err
}

func (s *Postgres) Close() {
	s.pool.Close()
}

func (s *Postgres) GetOrCreateActiveGame(ctx context.Context, shoe string) (GameRow, error) {
	var g GameRow
	err := s.pool.QueryRow(ctx, `
		SELECT id, shoe::text, cards_played, game_over
		  FROM games
		 WHERE NOT game_over
		 ORDER BY created_at DESC
		 LIMIT 1
	`).Scan(&g.ID, &g.Shoe, &g.CardsPlayed, &g.GameOver)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return GameRow{}, fmt.Errorf("loading active game: %w", err)
	}

	g = GameRow{ID: gameid.Generate(), Shoe: shoe}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO games (id, shoe) VALUES ($1, $2::jsonb)
	`, g.ID, g.Shoe)
	if err != nil {
		return GameRow{}, fmt.Errorf("creating game: %w", err)
	}
	return g, nil
}

func (s *Postgres) UpdateGame(ctx context.Context, id string, patch GamePatch) error {
	var g GameRow
	err := s.pool.QueryRow(ctx, `
		UPDATE games
		   SET shoe         = COALESCE($2::jsonb, shoe),
		       cards_played = COALESCE($3, cards_played),
		       game_over    = COALESCE($4, game_over),
		       updated_at   = now()
		 WHERE id = $1
		 RETURNING id, shoe::text, cards_played, game_over
	`, id, patch.Shoe, patch.CardsPlayed, patch.GameOver).
		Scan(&g.ID, &g.Shoe, &g.CardsPlayed, &g.GameOver)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("updating game: %w", err)
	}
	s.notify(ctx, gameChannel, g)
	return nil
}

func (s *Postgres) InsertPlayer(ctx context.Context, row PlayerRow) (PlayerRow, error) {
	if row.ID == "" {
		row.ID = gameid.Generate()
	}
	if row.Hands == "" {
		row.Hands = "[]"
	}
	row.Active = true
	if row.LastActive.IsZero() {
		row.LastActive = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO players (id, game_id, name, seat, bank, hands, active, last_active)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, true, $7)
	`, row.ID, row.GameID, row.Name, row.Seat, row.Bank, row.Hands, row.LastActive)
	if err != nil {
		if isUniqueViolation(err) {
			return PlayerRow{}, ErrUniqueViolation
		}
		return PlayerRow{}, fmt.Errorf("inserting player: %w", err)
	}
	s.notify(ctx, playerChannel, row)
	return row, nil
}

func (s *Postgres) UpdatePlayer(ctx context.Context, id string, patch PlayerPatch) error {
	var row PlayerRow
	err := s.pool.QueryRow(ctx, `
		UPDATE players
		   SET name        = COALESCE($2, name),
		       seat        = COALESCE($3, seat),
		       bank        = COALESCE($4, bank),
		       hands       = COALESCE($5::jsonb, hands),
		       active      = COALESCE($6, active),
		       last_active = COALESCE($7, last_active)
		 WHERE id = $1
		 RETURNING id, game_id, name, seat, bank, hands::text, active, last_active
	`, id, patch.Name, patch.Seat, patch.Bank, patch.Hands, patch.Active, patch.LastActive).
		Scan(&row.ID, &row.GameID, &row.Name, &row.Seat, &row.Bank, &row.Hands, &row.Active, &row.LastActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return ErrUniqueViolation
		}
		return fmt.Errorf("updating player: %w", err)
	}
	s.notify(ctx, playerChannel, row)
	return nil
}

func (s *Postgres) ListActivePlayers(ctx context.Context, gameID string) ([]PlayerRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, game_id, name, seat, bank, hands::text, active, last_active
		  FROM players
		 WHERE game_id = $1 AND active
		 ORDER BY seat
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	defer rows.Close()

	var out []PlayerRow
	for rows.Next() {
		var p PlayerRow
		if err := rows.Scan(&p.ID, &p.GameID, &p.Name, &p.Seat, &p.Bank, &p.Hands, &p.Active, &p.LastActive); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) FindPlayer(ctx context.Context, gameID, name string, seat int) (PlayerRow, error) {
	var p PlayerRow
	err := s.pool.QueryRow(ctx, `
		SELECT id, game_id, name, seat, bank, hands::text, active, last_active
		  FROM players
		 WHERE game_id = $1 AND (name = $2 OR seat = $3)
		 ORDER BY (name = $2 AND seat = $3) DESC, last_active DESC
		 LIMIT 1
	`, gameID, name, seat).
		Scan(&p.ID, &p.GameID, &p.Name, &p.Seat, &p.Bank, &p.Hands, &p.Active, &p.LastActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return PlayerRow{}, ErrNotFound
	}
	if err != nil {
		return PlayerRow{}, fmt.Errorf("finding player: %w", err)
	}
	return p, nil
}

func (s *Postgres) SubscribeGame(ctx context.Context, gameID string, fn func(GameRow)) (func(), error) {
	return listen(ctx, s, gameChannel, func(row GameRow) {
		if gameID == "" || row.ID == gameID {
			fn(row)
		}
	})
}

func (s *Postgres) SubscribePlayers(ctx context.Context, gameID string, fn func(PlayerRow)) (func(), error) {
	return listen(ctx, s, playerChannel, func(row PlayerRow) {
		if gameID == "" || row.GameID == gameID {
			fn(row)
		}
	})
}

// listen holds a dedicated connection on channel and decodes each
// notification payload into a row for fn. The returned func stops the
// listener and releases the connection.
func listen[T any](ctx context.Context, s *Postgres, channel string, fn func(T)) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring listener connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listening on %s: %w", channel, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer conn.Release()
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("notification listener stopped", "channel", channel, "error", err)
				}
				return
			}
			var row T
			if err := json.Unmarshal([]byte(n.Payload), &row); err != nil {
				s.logger.Warn("discarding malformed notification", "channel", channel, "error", err)
				continue
			}
			fn(row)
		}
	}()
	return cancel, nil
}

func (s *Postgres) notify(ctx context.Context, channel string, row any) {
	payload, err := json.Marshal(row)
	if err != nil {
		s.logger.Warn("failed to encode notification", "channel", channel, "error", err)
		return
	}
	if _, err := s.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, string(payload)); err != nil {
		s.logger.Warn("failed to notify", "channel", channel, "error", err)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

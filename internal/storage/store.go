package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
)

var (
	// ErrNotFound means no row matched the lookup.
	ErrNotFound = errors.New("storage: not found")
	// ErrNotLinked means the Discord user has no linked game account.
	ErrNotLinked = errors.New("storage: account not linked")
)

// LinkingCode is a single-use token generated in the game lobby. Codes are
// read-only here: they are created by the game server and intentionally not
// consumed on success, so re-submitting one within its validity window
// re-triggers an idempotent re-link.
type LinkingCode struct {
	PlayerID   uuid.UUID
	PlayerName string
	CreatedAt  time.Time
}

// Link is the link state of a Discord account. PlayerID is nil when the
// account row exists without a link row.
type Link struct {
	AccountExists bool
	PlayerID      *uuid.UUID
}

// PatronTier maps a Discord role to a benefit level. Lower Priority wins.
type PatronTier struct {
	ID       int32
	Role     int64
	Name     string
	Priority int32
}

// LinkedAccount is one link row joined with the player name and the stored
// patron tier, if any.
type LinkedAccount struct {
	DiscordID  int64
	PlayerID   uuid.UUID
	PlayerName string
	TierID     *int32
}

// Store bundles the linking data-access operations against one guild's pool.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

// LookupCode resolves a linking code to its player, joining the player table
// for the display name. Returns ErrNotFound for unknown codes.
func (s *Store) LookupCode(ctx context.Context, code uuid.UUID) (*LinkingCode, error) {
	lc := &LinkingCode{}
	err := s.db.QueryRow(ctx,
		`select lc.player_id, p.last_seen_user_name, lc.creation_time from rmc_linking_codes lc join player p on lc.player_id = p.user_id where lc.code = $1;`,
		code,
	).Scan(&lc.PlayerID, &lc.PlayerName, &lc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup linking code: %w", err)
	}
	return lc, nil
}

// LookupLink returns the link state for a Discord user.
func (s *Store) LookupLink(ctx context.Context, discordID int64) (*Link, error) {
	var id int64
	var playerID pgtype.UUID
	err := s.db.QueryRow(ctx,
		`select da.id, la.player_id from rmc_discord_accounts da left join rmc_linked_accounts la on da.id = la.discord_id where da.id = $1;`,
		discordID,
	).Scan(&id, &playerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return &Link{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup existing link: %w", err)
	}

	l := &Link{AccountExists: true}
	if playerID.Status == pgtype.Present {
		u := uuid.UUID(playerID.Bytes)
		l.PlayerID = &u
	}
	return l, nil
}

// CreateLink atomically records a new link: the Discord account row is
// upserted, the link row inserted, the patron assignment upserted when a tier
// was computed, and one audit row appended. Any failure rolls the whole
// transaction back.
func (s *Store) CreateLink(ctx context.Context, discordID int64, playerID uuid.UUID, tierID *int32) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`insert into rmc_discord_accounts (id) values ($1) on conflict (id) do nothing;`,
			discordID,
		); err != nil {
			return fmt.Errorf("upsert discord account: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`insert into rmc_linked_accounts (discord_id, player_id) values ($1, $2);`,
			discordID, playerID,
		); err != nil {
			return fmt.Errorf("insert link: %w", err)
		}
		if tierID != nil {
			if _, err := tx.Exec(ctx,
				`insert into rmc_patrons (player_id, tier_id) values ($1, $2) on conflict (player_id) do update set tier_id = $2;`,
				playerID, *tierID,
			); err != nil {
				return fmt.Errorf("upsert patron assignment: %w", err)
			}
		}
		if _, err := tx.Exec(ctx,
			`insert into rmc_linked_accounts_logs (discord_id, player_id, at) values ($1, $2, $3);`,
			discordID, playerID, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("append link log: %w", err)
		}
		return nil
	})
}

// RemoveLinkByPlayer atomically removes the patron assignment and link row
// for a player. Used when replacing a user's previous link.
func (s *Store) RemoveLinkByPlayer(ctx context.Context, playerID uuid.UUID) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `delete from rmc_patrons where player_id = $1;`, playerID); err != nil {
			return fmt.Errorf("delete patron assignment: %w", err)
		}
		if _, err := tx.Exec(ctx, `delete from rmc_linked_accounts where player_id = $1;`, playerID); err != nil {
			return fmt.Errorf("delete link: %w", err)
		}
		return nil
	})
}

// Unlink atomically removes a Discord user's link and any patron assignment.
// Returns ErrNotLinked when no link exists; no writes happen in that case.
func (s *Store) Unlink(ctx context.Context, discordID int64) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var playerID uuid.UUID
		err := tx.QueryRow(ctx, `select player_id from rmc_linked_accounts where discord_id = $1;`, discordID).Scan(&playerID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotLinked
		}
		if err != nil {
			return fmt.Errorf("lookup link: %w", err)
		}

		if _, err := tx.Exec(ctx, `delete from rmc_patrons where player_id = $1;`, playerID); err != nil {
			return fmt.Errorf("delete patron assignment: %w", err)
		}
		if _, err := tx.Exec(ctx, `delete from rmc_linked_accounts where discord_id = $1;`, discordID); err != nil {
			return fmt.Errorf("delete link: %w", err)
		}
		return nil
	})
}

// PatronTiers returns all tier definitions in ascending priority order.
func (s *Store) PatronTiers(ctx context.Context) ([]PatronTier, error) {
	rows, err := s.db.Query(ctx, `select id, discord_role, name, priority from rmc_patron_tiers order by priority asc;`)
	if err != nil {
		return nil, fmt.Errorf("list patron tiers: %w", err)
	}
	defer rows.Close()

	var tiers []PatronTier
	for rows.Next() {
		var t PatronTier
		if err := rows.Scan(&t.ID, &t.Role, &t.Name, &t.Priority); err != nil {
			return nil, fmt.Errorf("scan patron tier: %w", err)
		}
		tiers = append(tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list patron tiers: %w", err)
	}
	return tiers, nil
}

// LinkedAccounts returns every link joined with the player name and current
// patron assignment. The assignment may be absent.
func (s *Store) LinkedAccounts(ctx context.Context) ([]LinkedAccount, error) {
	rows, err := s.db.Query(ctx,
		`select la.discord_id, la.player_id, p.last_seen_user_name, pat.tier_id from rmc_linked_accounts la join player p on la.player_id = p.user_id left join rmc_patrons pat on la.player_id = pat.player_id;`,
	)
	if err != nil {
		return nil, fmt.Errorf("list linked accounts: %w", err)
	}
	defer rows.Close()

	var accounts []LinkedAccount
	for rows.Next() {
		var a LinkedAccount
		if err := rows.Scan(&a.DiscordID, &a.PlayerID, &a.PlayerName, &a.TierID); err != nil {
			return nil, fmt.Errorf("scan linked account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list linked accounts: %w", err)
	}
	return accounts, nil
}

// SetPatronTier applies one corrective step for a player: the old assignment
// is deleted when present and the new one inserted when computed, in a single
// transaction.
func (s *Store) SetPatronTier(ctx context.Context, playerID uuid.UUID, current, next *int32) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if current != nil {
			if _, err := tx.Exec(ctx, `delete from rmc_patrons where player_id = $1;`, playerID); err != nil {
				return fmt.Errorf("delete patron assignment: %w", err)
			}
		}
		if next != nil {
			if _, err := tx.Exec(ctx, `insert into rmc_patrons (player_id, tier_id) values ($1, $2);`, playerID, *next); err != nil {
				return fmt.Errorf("insert patron assignment: %w", err)
			}
		}
		return nil
	})
}

// LinkedPlayerName returns the display name of the player linked to a
// Discord user. Returns ErrNotLinked when there is no link.
func (s *Store) LinkedPlayerName(ctx context.Context, discordID int64) (string, error) {
	var name string
	err := s.db.QueryRow(ctx,
		`select p.last_seen_user_name from rmc_linked_accounts la join player p on la.player_id = p.user_id where la.discord_id = $1;`,
		discordID,
	).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotLinked
	}
	if err != nil {
		return "", fmt.Errorf("lookup linked player: %w", err)
	}
	return name, nil
}

func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

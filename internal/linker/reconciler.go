package linker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/durkcogs/linkbot/internal/storage"
)

// RoleSource resolves a guild member's current role set. member is false
// when the user is no longer in the guild, which the reconciler treats as an
// empty role set.
type RoleSource interface {
	MemberRoles(guildID, userID int64) (roles []string, member bool, err error)
}

// GuildSource lists the guilds that have a database configured.
// Implemented by config.GuildStore.
type GuildSource interface {
	Configured() []int64
}

// ReconcileStore is the subset of the linking store the reconciler needs.
type ReconcileStore interface {
	PatronTiers(ctx context.Context) ([]storage.PatronTier, error)
	LinkedAccounts(ctx context.Context) ([]storage.LinkedAccount, error)
	SetPatronTier(ctx context.Context, playerID uuid.UUID, current, next *int32) error
}

// StoreSource resolves the store for a guild, typically by going through the
// connection registry.
type StoreSource func(ctx context.Context, guildID int64) (ReconcileStore, error)

// Reconciler periodically diffs each linked member's Discord roles against
// the stored patron assignment and repairs drift, one transaction per
// account. Guild passes are isolated: an error in one guild only skips that
// guild until the next tick.
type Reconciler struct {
	logger   *zap.SugaredLogger
	interval time.Duration
	guilds   GuildSource
	stores   StoreSource
	roles    RoleSource
}

func NewReconciler(logger *zap.SugaredLogger, interval time.Duration, guilds GuildSource, stores StoreSource, roles RoleSource) *Reconciler {
	return &Reconciler{logger: logger, interval: interval, guilds: guilds, stores: stores, roles: roles}
}

// Run executes one pass immediately, then on every tick until the context is
// cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Infof("Patron reconciliation loop started with a %s interval.", r.interval)
	r.runOnce(ctx)

	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Patron reconciliation loop stopped.")
			return
		case <-t.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) {
	for _, guildID := range r.guilds.Configured() {
		added, removed, err := r.reconcileGuild(ctx, guildID)
		if err != nil {
			if errors.Is(err, storage.ErrNotConfigured) || errors.Is(err, storage.ErrConnectivity) {
				r.logger.Warnf("Skipping patron reconciliation for guild %d: %s.", guildID, err)
			} else {
				r.logger.Errorf("Patron reconciliation failed for guild %d: %s.", guildID, err)
			}
			continue
		}
		if added > 0 || removed > 0 {
			r.logger.Infof("Patron reconciliation for guild %d applied %d additions and %d removals.", guildID, added, removed)
		}
	}
}

// reconcileGuild runs one pass over a single guild. A panic inside the pass
// is converted to an error so the loop survives it.
func (r *Reconciler) reconcileGuild(ctx context.Context, guildID int64) (added, removed int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reconciliation panicked: %v", p)
		}
	}()

	st, err := r.stores(ctx, guildID)
	if err != nil {
		return 0, 0, err
	}

	tiers, err := st.PatronTiers(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list patron tiers: %w", err)
	}
	if len(tiers) == 0 {
		r.logger.Debugf("No patron tiers defined for guild %d, skipping.", guildID)
		return 0, 0, nil
	}

	accounts, err := st.LinkedAccounts(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list linked accounts: %w", err)
	}

	for _, acc := range accounts {
		roles, member, err := r.roles.MemberRoles(guildID, acc.DiscordID)
		if err != nil {
			return added, removed, fmt.Errorf("resolve member %d: %w", acc.DiscordID, err)
		}

		// A departed member has an empty role set, which forces removal
		// of any stored assignment.
		var want *storage.PatronTier
		if member {
			want = tierFor(tiers, newRoleSet(roles))
		}
		var wantID *int32
		if want != nil {
			wantID = &want.ID
		}

		if equalTier(wantID, acc.TierID) {
			continue
		}

		if err := st.SetPatronTier(ctx, acc.PlayerID, acc.TierID, wantID); err != nil {
			r.logger.Errorf("Failed to correct patron tier for player %s (%s) in guild %d: %s.", acc.PlayerName, acc.PlayerID, guildID, err)
			continue
		}
		if acc.TierID != nil {
			removed++
			r.logger.Infof("Removed patron assignment for %s (%s) in guild %d.", acc.PlayerName, acc.PlayerID, guildID)
		}
		if want != nil {
			added++
			r.logger.Infof("Assigned patron tier %s to %s (%s) in guild %d.", want.Name, acc.PlayerName, acc.PlayerID, guildID)
		}
	}
	return added, removed, nil
}

func equalTier(a, b *int32) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

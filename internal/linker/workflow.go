package linker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/durkcogs/linkbot/internal/storage"
)

// codeTTL is how long a linking code stays valid after creation.
const codeTTL = 24 * time.Hour

var (
	// ErrInvalidCode means the submitted code is not a UUID.
	ErrInvalidCode = errors.New("linker: malformed linking code")
	// ErrCodeNotFound means no player carries the submitted code.
	ErrCodeNotFound = errors.New("linker: unknown linking code")
	// ErrCodeExpired means the code was generated too long ago.
	ErrCodeExpired = errors.New("linker: linking code expired")
	// ErrPriorUnlink means the user's previous link could not be removed.
	ErrPriorUnlink = errors.New("linker: failed to remove previous link")
	// ErrCommit means the linking transaction failed.
	ErrCommit = errors.New("linker: linking transaction failed")
)

// Store is the subset of the linking store the workflow needs.
type Store interface {
	LookupCode(ctx context.Context, code uuid.UUID) (*storage.LinkingCode, error)
	LookupLink(ctx context.Context, discordID int64) (*storage.Link, error)
	RemoveLinkByPlayer(ctx context.Context, playerID uuid.UUID) error
	CreateLink(ctx context.Context, discordID int64, playerID uuid.UUID, tierID *int32) error
	PatronTiers(ctx context.Context) ([]storage.PatronTier, error)
}

// Request is one user-initiated linking attempt. RoleIDs is only meaningful
// when IsMember is set; a bare user reference never earns a patron tier.
type Request struct {
	DiscordID int64
	Code      string
	IsMember  bool
	RoleIDs   []string
}

// Result confirms a successful link. TierName is empty when no tier was
// granted.
type Result struct {
	PlayerName string
	TierName   string
}

// Workflow validates linking codes and commits links. Every failure maps to
// one of the sentinel errors above; there are no retries, the user simply
// submits again.
type Workflow struct {
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewWorkflow(logger *zap.SugaredLogger) *Workflow {
	return &Workflow{logger: logger, now: time.Now}
}

// Link runs one linking attempt against the given guild's store.
func (w *Workflow) Link(ctx context.Context, st Store, req Request) (*Result, error) {
	code, err := uuid.Parse(strings.TrimSpace(req.Code))
	if err != nil {
		return nil, ErrInvalidCode
	}

	lc, err := st.LookupCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup code: %w", err)
	}
	if w.now().UTC().Sub(lc.CreatedAt) > codeTTL {
		return nil, ErrCodeExpired
	}

	link, err := st.LookupLink(ctx, req.DiscordID)
	if err != nil {
		return nil, fmt.Errorf("lookup existing link: %w", err)
	}
	if link.PlayerID != nil {
		w.logger.Infof("User %d already linked to player %s, removing previous link.", req.DiscordID, *link.PlayerID)
		if err := st.RemoveLinkByPlayer(ctx, *link.PlayerID); err != nil {
			w.logger.Errorf("Failed to remove previous link for user %d: %s.", req.DiscordID, err)
			return nil, ErrPriorUnlink
		}
	}

	var tierID *int32
	var tierName string
	if req.IsMember {
		tiers, err := st.PatronTiers(ctx)
		if err != nil {
			return nil, fmt.Errorf("list patron tiers: %w", err)
		}
		if t := tierFor(tiers, newRoleSet(req.RoleIDs)); t != nil {
			tierID = &t.ID
			tierName = t.Name
			w.logger.Infof("User %d holds the patron role for tier %s (ID %d).", req.DiscordID, t.Name, t.ID)
		}
	}

	if err := st.CreateLink(ctx, req.DiscordID, lc.PlayerID, tierID); err != nil {
		w.logger.Errorf("Linking transaction failed for user %d: %s.", req.DiscordID, err)
		return nil, ErrCommit
	}

	w.logger.Infof("Linked user %d to player %s (%s).", req.DiscordID, lc.PlayerID, lc.PlayerName)
	return &Result{PlayerName: lc.PlayerName, TierName: tierName}, nil
}

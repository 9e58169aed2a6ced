package linker

import (
	"strconv"

	"github.com/durkcogs/linkbot/internal/storage"
)

// roleSet is a set of Discord role IDs.
type roleSet map[int64]struct{}

// newRoleSet builds a roleSet from the string role IDs the gateway hands out.
// Unparseable IDs are skipped.
func newRoleSet(ids []string) roleSet {
	set := make(roleSet, len(ids))
	for _, id := range ids {
		v, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}

func (s roleSet) contains(id int64) bool {
	_, ok := s[id]
	return ok
}

// tierFor returns the first tier, in the given priority-ascending order,
// whose role the member holds. The scan stops at the first match; later
// tiers are never considered even when their roles are also held.
func tierFor(tiers []storage.PatronTier, roles roleSet) *storage.PatronTier {
	for i := range tiers {
		if roles.contains(tiers[i].Role) {
			return &tiers[i]
		}
	}
	return nil
}

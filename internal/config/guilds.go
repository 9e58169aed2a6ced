package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"sync"

	"github.com/spf13/viper"
)

// GuildSettings is the per-guild configuration persisted outside the main
// config file. Each guild brings its own database, so the only setting for
// now is the connection string.
type GuildSettings struct {
	ConnString string `mapstructure:"conn_string"`
}

// GuildStore loads and saves GuildSettings keyed by guild ID. All access
// goes through typed accessors; mutations are written back to disk
// immediately.
type GuildStore struct {
	mu     sync.RWMutex
	v      *viper.Viper
	guilds map[int64]GuildSettings
}

// LoadGuilds reads the per-guild settings file at path. A missing file is
// not an error: the store starts empty and the file is created on first save.
func LoadGuilds(path string) (*GuildStore, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	s := &GuildStore{v: v, guilds: make(map[int64]GuildSettings)}
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}

	raw := make(map[string]GuildSettings)
	if err := v.Unmarshal(&raw); err != nil {
		return nil, err
	}
	for key, gs := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid guild ID key %q: %w", key, err)
		}
		s.guilds[id] = gs
	}
	return s, nil
}

// ConnString returns the stored connection string for the guild, if any.
func (s *GuildStore) ConnString(guildID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gs, ok := s.guilds[guildID]
	if !ok || gs.ConnString == "" {
		return "", false
	}
	return gs.ConnString, true
}

// SetConnString stores the connection string for the guild and writes the
// settings file back to disk.
func (s *GuildStore) SetConnString(guildID int64, dsn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guilds[guildID] = GuildSettings{ConnString: dsn}
	return s.save()
}

// Configured returns the IDs of all guilds that have a connection string set,
// in ascending order.
func (s *GuildStore) Configured() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.guilds))
	for id, gs := range s.guilds {
		if gs.ConnString != "" {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *GuildStore) save() error {
	for id, gs := range s.guilds {
		s.v.Set(strconv.FormatInt(id, 10), map[string]interface{}{"conn_string": gs.ConnString})
	}
	return s.v.WriteConfig()
}

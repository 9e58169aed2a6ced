package discord

import (
	"errors"

	"github.com/bwmarrin/discordgo"

	"github.com/durkcogs/linkbot/internal/util"
)

// MemberRoles implements linker.RoleSource against the gateway state with a
// REST fallback. An Unknown Member response means the user left the guild.
func (d *Discord) MemberRoles(guildID, userID int64) ([]string, bool, error) {
	gs := util.FormatSnowflakeInt64(guildID)
	us := util.FormatSnowflakeInt64(userID)

	if m, err := d.session.State.Member(gs, us); err == nil {
		return m.Roles, true, nil
	}

	m, err := d.session.GuildMember(gs, us)
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMember {
			return nil, false, nil
		}
		return nil, false, err
	}
	return m.Roles, true, nil
}

package discord

import "github.com/bwmarrin/discordgo"

// Component and modal custom IDs. The link button is persistent, so its ID
// must stay stable across restarts.
const (
	linkButtonID = "link_account_button"
	linkModalID  = "link_account_modal"
	dbModalID    = "db_config_modal"
)

var (
	manageGuildPermission int64 = discordgo.PermissionManageServer
	dmPermission                = false
)

var commands = []*discordgo.ApplicationCommand{
	{
		Name:                     "linkersetdb",
		Description:              "Configure the database connection for this server (admins only).",
		DefaultMemberPermissions: &manageGuildPermission,
		DMPermission:             &dmPermission,
	},
	{
		Name:                     "linksetup",
		Description:              "Post the account linking button message (admins only).",
		DefaultMemberPermissions: &manageGuildPermission,
		DMPermission:             &dmPermission,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "message",
				Description: "Text posted above the button",
				Required:    false,
			},
		},
	},
	{
		Name:         "checklink",
		Description:  "Check the linked game account for yourself or another member.",
		DMPermission: &dmPermission,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "member",
				Description: "Member to check (defaults to you)",
				Required:    false,
			},
		},
	},
	{
		Name:         "unlinkaccount",
		Description:  "Unlink your Discord account from any associated game account.",
		DMPermission: &dmPermission,
	},
}

package discord

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/durkcogs/linkbot/internal/linker"
	"github.com/durkcogs/linkbot/internal/storage"
	"github.com/durkcogs/linkbot/internal/util"
)

func (d *Discord) onInteractionCreate(_ *discordgo.Session, e *discordgo.InteractionCreate) {
	switch e.Type {
	case discordgo.InteractionApplicationCommand:
		switch e.ApplicationCommandData().Name {
		case "linkersetdb":
			d.handleSetDB(e)
		case "linksetup":
			d.handleLinkSetup(e)
		case "checklink":
			d.handleCheckLink(e)
		case "unlinkaccount":
			d.handleUnlink(e)
		}
	case discordgo.InteractionMessageComponent:
		if e.MessageComponentData().CustomID == linkButtonID {
			d.openLinkModal(e)
		}
	case discordgo.InteractionModalSubmit:
		switch e.ModalSubmitData().CustomID {
		case linkModalID:
			d.handleLinkSubmit(e)
		case dbModalID:
			d.handleDBSubmit(e)
		}
	}
}

// handleSetDB opens the database configuration modal.
func (d *Discord) handleSetDB(e *discordgo.InteractionCreate) {
	if e.GuildID == "" {
		d.respond(e, "This command can only be used in a server.")
		return
	}
	err := d.session.InteractionRespond(e.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: dbModalID,
			Title:    "Database Configuration",
			Components: []discordgo.MessageComponent{
				textInputRow("db_user", "Database Username", "", true),
				textInputRow("db_pass", "Database Password", "", true),
				textInputRow("db_host", "Database Host (IP or Domain)", "", true),
				textInputRow("db_port", "Database Port", "5432", true),
				textInputRow("db_name", "Database Name", "", true),
			},
		},
	})
	if err != nil {
		d.logger.Errorf("Failed to open database configuration modal: %s.", err)
	}
}

// handleDBSubmit saves a guild's connection string and validates it by
// creating the pool.
func (d *Discord) handleDBSubmit(e *discordgo.InteractionCreate) {
	guildID := util.MustParseSnowflakeInt64(e.GuildID)
	vals := modalValues(e.ModalSubmitData())

	user := strings.TrimSpace(vals["db_user"])
	pass := vals["db_pass"]
	host := strings.TrimSpace(vals["db_host"])
	port := strings.TrimSpace(vals["db_port"])
	name := strings.TrimSpace(vals["db_name"])

	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		d.respond(e, "Port must be a number.")
		return
	}

	if err := d.deferEphemeral(e); err != nil {
		d.logger.Errorf("Failed to defer database configuration response: %s.", err)
		return
	}

	dsn := fmt.Sprintf("postgresql://%s:%s@%s:%s/%s", user, url.QueryEscape(pass), host, port, name)
	d.logger.Infof("Setting database connection string for guild %d.", guildID)

	d.registry.ClosePool(guildID)
	if err := d.guilds.SetConnString(guildID, dsn); err != nil {
		d.logger.Errorf("Failed to save connection string for guild %d: %s.", guildID, err)
		d.followup(e, "An error occurred while saving the configuration.")
		return
	}

	if _, err := d.registry.Pool(d.ctx, guildID); err != nil {
		masked := fmt.Sprintf("postgresql://%s:********@%s:%s/%s", user, host, port, name)
		d.followup(e, fmt.Sprintf("Failed to connect using the provided details. Please check them and try again.\n(Attempted connection: `%s`)", masked))
		return
	}
	d.followup(e, "Database connection string saved and successfully tested for this server!")
}

// handleLinkSetup posts the persistent linking button message.
func (d *Discord) handleLinkSetup(e *discordgo.InteractionCreate) {
	guildID := util.MustParseSnowflakeInt64(e.GuildID)
	if _, err := d.registry.Pool(d.ctx, guildID); err != nil {
		d.respond(e, "The database connection is not configured for this server. Use `/linkersetdb` first.")
		return
	}

	message := "Click the button below to link your game account!"
	if opts := e.ApplicationCommandData().Options; len(opts) > 0 {
		message = opts[0].StringValue()
	}

	_, err := d.session.ChannelMessageSendComplex(e.ChannelID, &discordgo.MessageSend{
		Content: message,
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Link your game account here!",
					Style:    discordgo.SuccessButton,
					CustomID: linkButtonID,
				},
			}},
		},
	})
	if err != nil {
		d.logger.Errorf("Failed to post linking button in guild %d: %s.", guildID, err)
		d.respond(e, "Failed to post the linking message.")
		return
	}
	d.respond(e, "Linking message posted.")
}

// openLinkModal shows the code entry modal when the linking button is pressed.
func (d *Discord) openLinkModal(e *discordgo.InteractionCreate) {
	if e.GuildID == "" {
		d.respond(e, "This button must be used within a server.")
		return
	}
	err := d.session.InteractionRespond(e.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: linkModalID,
			Title:    "Link Game Account",
			Components: []discordgo.MessageComponent{
				textInputRow("account_code", "Linking Code (top left in the lobby)", "", true),
			},
		},
	})
	if err != nil {
		d.logger.Errorf("Failed to open linking modal: %s.", err)
	}
}

// handleLinkSubmit runs the linking workflow for a submitted code.
func (d *Discord) handleLinkSubmit(e *discordgo.InteractionCreate) {
	guildID := util.MustParseSnowflakeInt64(e.GuildID)
	code := strings.TrimSpace(modalValues(e.ModalSubmitData())["account_code"])

	pool, err := d.registry.Pool(d.ctx, guildID)
	if err != nil {
		d.respond(e, "Database connection is not configured for this server. Please contact an admin.")
		return
	}

	if err := d.deferEphemeral(e); err != nil {
		d.logger.Errorf("Failed to defer linking response: %s.", err)
		return
	}

	req := linker.Request{
		DiscordID: util.MustParseSnowflakeInt64(interactionUser(e).ID),
		Code:      code,
	}
	if e.Member != nil {
		req.IsMember = true
		req.RoleIDs = e.Member.Roles
	}

	res, err := d.workflow.Link(d.ctx, storage.NewStore(pool), req)
	if err != nil {
		d.followup(e, linkFailureMessage(err, code))
		return
	}

	msg := fmt.Sprintf("Successfully linked your Discord account to game account: **%s**", res.PlayerName)
	if res.TierName != "" {
		msg += fmt.Sprintf(" with Patron Tier: **%s**.", res.TierName)
	} else {
		msg += "."
	}
	d.followup(e, msg)
}

// linkFailureMessage maps each workflow failure category to its user-facing
// message.
func linkFailureMessage(err error, code string) string {
	switch {
	case errors.Is(err, linker.ErrInvalidCode):
		return fmt.Sprintf("'%s' is not a valid code format. Please get a new one from the game lobby.", code)
	case errors.Is(err, linker.ErrCodeNotFound):
		return fmt.Sprintf("No player found with code `%s`. Please ensure it's correct and hasn't expired.", code)
	case errors.Is(err, linker.ErrCodeExpired):
		return fmt.Sprintf("Code `%s` was generated too long ago. Please get a new one.", code)
	case errors.Is(err, linker.ErrPriorUnlink):
		return "Failed to remove your previous account link. Please try again or contact support."
	case errors.Is(err, linker.ErrCommit):
		return "An error occurred while linking your account. Please try again later."
	default:
		return "A database error occurred. Please try again later or contact support."
	}
}

// handleCheckLink shows the linked player for the requester or another member.
func (d *Discord) handleCheckLink(e *discordgo.InteractionCreate) {
	guildID := util.MustParseSnowflakeInt64(e.GuildID)
	pool, err := d.registry.Pool(d.ctx, guildID)
	if err != nil {
		d.respond(e, "Database connection is not configured for this server.")
		return
	}

	target := interactionUser(e)
	if opts := e.ApplicationCommandData().Options; len(opts) > 0 {
		target = opts[0].UserValue(d.session)
	}

	name, err := storage.NewStore(pool).LinkedPlayerName(d.ctx, util.MustParseSnowflakeInt64(target.ID))
	switch {
	case errors.Is(err, storage.ErrNotLinked):
		d.respond(e, fmt.Sprintf("%s does not have a game account linked.", target.Mention()))
	case err != nil:
		d.logger.Errorf("Failed to check link for user %s in guild %d: %s.", target.ID, guildID, err)
		d.respond(e, "A database error occurred while checking the link.")
	default:
		d.respond(e, fmt.Sprintf("%s is linked to game account: **%s**", target.Mention(), name))
	}
}

// handleUnlink removes the requester's link and patron assignment.
func (d *Discord) handleUnlink(e *discordgo.InteractionCreate) {
	guildID := util.MustParseSnowflakeInt64(e.GuildID)
	pool, err := d.registry.Pool(d.ctx, guildID)
	if err != nil {
		d.respond(e, "Database connection is not configured for this server.")
		return
	}

	userID := util.MustParseSnowflakeInt64(interactionUser(e).ID)
	err = storage.NewStore(pool).Unlink(d.ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotLinked):
		d.respond(e, "You do not have a game account linked.")
	case err != nil:
		d.logger.Errorf("Failed to unlink user %d in guild %d: %s.", userID, guildID, err)
		d.respond(e, "An error occurred while trying to unlink your account. Please try again later.")
	default:
		d.logger.Infof("User %d unlinked their account in guild %d.", userID, guildID)
		d.respond(e, "Your game account has been unlinked successfully.")
	}
}

func (d *Discord) respond(e *discordgo.InteractionCreate, msg string) {
	err := d.session.InteractionRespond(e.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: msg, Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		d.logger.Errorf("Failed to respond to interaction: %s.", err)
	}
}

func (d *Discord) deferEphemeral(e *discordgo.InteractionCreate) error {
	return d.session.InteractionRespond(e.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

func (d *Discord) followup(e *discordgo.InteractionCreate, msg string) {
	_, err := d.session.FollowupMessageCreate(e.Interaction, true, &discordgo.WebhookParams{
		Content: msg,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		d.logger.Errorf("Failed to send interaction followup: %s.", err)
	}
}

// interactionUser returns the invoking user for guild and DM interactions.
func interactionUser(e *discordgo.InteractionCreate) *discordgo.User {
	if e.Member != nil {
		return e.Member.User
	}
	return e.User
}

func textInputRow(id, label, value string, required bool) discordgo.ActionsRow {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.TextInput{
			CustomID: id,
			Label:    label,
			Style:    discordgo.TextInputShort,
			Value:    value,
			Required: required,
		},
	}}
}

// modalValues flattens a modal submission into a CustomID → value map.
func modalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	vals := make(map[string]string, len(data.Components))
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, rc := range row.Components {
			if in, ok := rc.(*discordgo.TextInput); ok {
				vals[in.CustomID] = in.Value
			}
		}
	}
	return vals
}

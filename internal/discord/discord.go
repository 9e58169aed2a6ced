package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/durkcogs/linkbot/internal/config"
	"github.com/durkcogs/linkbot/internal/linker"
	"github.com/durkcogs/linkbot/internal/storage"
)

type Discord struct {
	ctx      context.Context
	logger   *zap.SugaredLogger
	session  *discordgo.Session
	guilds   *config.GuildStore
	registry *storage.Registry
	workflow *linker.Workflow
}

func NewDiscord(ctx context.Context, log *zap.SugaredLogger, auth string, guilds *config.GuildStore, registry *storage.Registry, workflow *linker.Workflow) (*Discord, error) {
	s, err := discordgo.New(auth)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMembers
	return &Discord{ctx: ctx, logger: log, session: s, guilds: guilds, registry: registry, workflow: workflow}, nil
}

func (d *Discord) addHandlers() {
	d.session.AddHandlerOnce(d.onReady)
	d.session.AddHandler(d.onInteractionCreate)
}

func (d *Discord) Connect() error {
	d.addHandlers()
	return d.session.Open()
}

func (d *Discord) Close() error {
	return d.session.Close()
}

func (d *Discord) onReady(s *discordgo.Session, e *discordgo.Ready) {
	d.logger.Infof("Logged in Discord API as %s.", e.User)
	if _, err := s.ApplicationCommandBulkOverwrite(e.User.ID, "", commands); err != nil {
		d.logger.Errorf("Failed to register application commands: %s.", err)
	}
}

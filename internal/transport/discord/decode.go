package discord

import (
	kit "bizbot/internal/transport"

	"github.com/bwmarrin/discordgo"
)

// decodeInteraction turns a slash-command interaction into a kit.Command.
// Other interaction kinds (autocomplete, components) are ignored.
func decodeInteraction(it *discordgo.Interaction) (*kit.Command, bool) {
	if it == nil || it.Type != discordgo.InteractionApplicationCommand {
		return nil, false
	}
	data, ok := it.Data.(discordgo.ApplicationCommandInteractionData)
	if !ok {
		return nil, false
	}

	cmd := &kit.Command{
		InteractionID: it.ID,
		GuildID:       it.GuildID,
		ChannelID:     it.ChannelID,
		Name:          data.Name,
		Options:       map[string]any{},
		Raw:           it,
	}
	switch {
	case it.Member != nil:
		cmd.Permissions = it.Member.Permissions
		cmd.RoleIDs = append([]string(nil), it.Member.Roles...)
		if it.Member.User != nil {
			cmd.UserID = it.Member.User.ID
			cmd.Username = it.Member.User.Username
		}
	case it.User != nil:
		cmd.UserID = it.User.ID
		cmd.Username = it.User.Username
	}

	opts := data.Options
	if len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		cmd.Sub = opts[0].Name
		opts = opts[0].Options
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if v, ok := optionValue(o); ok {
			cmd.Options[o.Name] = v
		}
	}
	return cmd, true
}

func optionValue(o *discordgo.ApplicationCommandInteractionDataOption) (any, bool) {
	switch o.Type {
	case discordgo.ApplicationCommandOptionInteger:
		switch v := o.Value.(type) {
		case float64:
			return int64(v), true
		case int64:
			return v, true
		case int:
			return int64(v), true
		}
	case discordgo.ApplicationCommandOptionBoolean:
		v, ok := o.Value.(bool)
		return v, ok
	case discordgo.ApplicationCommandOptionString,
		discordgo.ApplicationCommandOptionChannel,
		discordgo.ApplicationCommandOptionRole,
		discordgo.ApplicationCommandOptionUser:
		v, ok := o.Value.(string)
		return v, ok
	}
	return nil, false
}

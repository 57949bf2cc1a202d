package discord

import (
	kit "bizbot/internal/transport"

	"github.com/bwmarrin/discordgo"
)

// permManageGuild is Discord's MANAGE_GUILD bit; the command is hidden from
// members without it by default (server admins can override per role).
const permManageGuild int64 = 1 << 5

var textChannelTypes = []discordgo.ChannelType{
	discordgo.ChannelTypeGuildText,
	discordgo.ChannelTypeGuildNews,
}

// Commands returns the application commands registered on ready.
func Commands() []*discordgo.ApplicationCommand {
	perm := permManageGuild
	dm := false
	minOne := 1.0
	minZero := 0.0

	channel := func(required bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type: discordgo.ApplicationCommandOptionChannel, Name: kit.OptChannel,
			Description: "Channel to post in", Required: required, ChannelTypes: textChannelTypes,
		}
	}
	every := func(required bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type: discordgo.ApplicationCommandOptionInteger, Name: kit.OptEvery,
			Description: "Repeat interval in minutes (minimum 1)", Required: required,
			MinValue: &minOne, MaxValue: 60 * 24 * 365,
		}
	}
	startIn := &discordgo.ApplicationCommandOption{
		Type: discordgo.ApplicationCommandOptionInteger, Name: kit.OptStartIn,
		Description: "Minutes until the first post (default: now)", MinValue: &minZero, MaxValue: 60 * 24 * 365,
	}
	ping := &discordgo.ApplicationCommandOption{
		Type: discordgo.ApplicationCommandOptionString, Name: kit.OptPing,
		Description: "Mention line above the message, e.g. @here or a role mention",
	}
	str := func(name, desc string, required bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type: discordgo.ApplicationCommandOptionString, Name: name, Description: desc, Required: required,
		}
	}
	id := &discordgo.ApplicationCommandOption{
		Type: discordgo.ApplicationCommandOptionInteger, Name: kit.OptID,
		Description: "Schedule id (see /schedule list)", Required: true, MinValue: &minOne,
	}
	byID := func(name, desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type: discordgo.ApplicationCommandOptionSubCommand, Name: name, Description: desc,
			Options: []*discordgo.ApplicationCommandOption{id},
		}
	}

	return []*discordgo.ApplicationCommand{{
		Name:                     kit.CommandSchedule,
		Description:              "Recurring channel messages",
		DefaultMemberPermissions: &perm,
		DMPermission:             &dm,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type: discordgo.ApplicationCommandOptionSubCommand, Name: "text",
				Description: "Schedule a recurring text message",
				Options: []*discordgo.ApplicationCommandOption{
					channel(true),
					str(kit.OptMessage, "Message text (use \\n for line breaks)", true),
					every(true),
					startIn,
					ping,
				},
			},
			{
				Type: discordgo.ApplicationCommandOptionSubCommand, Name: "embed",
				Description: "Schedule a recurring embed",
				Options: []*discordgo.ApplicationCommandOption{
					channel(true),
					every(true),
					str(kit.OptTitle, "Embed title", false),
					str(kit.OptDesc, "Embed text (use \\n for line breaks)", false),
					str(kit.OptColor, "Hex color, e.g. #5865F2", false),
					str(kit.OptAuthor, "Author line", false),
					str(kit.OptFooter, "Footer text", false),
					str(kit.OptImage, "Image URL", false),
					str(kit.OptThumbnail, "Thumbnail URL", false),
					str(kit.OptFields, "Fields as name=value pairs separated by ;", false),
					{Type: discordgo.ApplicationCommandOptionBoolean, Name: kit.OptTimestamp, Description: "Stamp each post with the send time"},
					startIn,
					ping,
				},
			},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "list", Description: "List this server's schedules"},
			byID("info", "Show one schedule"),
			byID("pause", "Pause a schedule"),
			byID("resume", "Resume a paused schedule"),
			byID("stop", "Delete a schedule"),
			byID("runnow", "Post on the next tick"),
			byID("test", "Send one copy now without touching the schedule"),
			{
				Type: discordgo.ApplicationCommandOptionSubCommand, Name: "edit",
				Description: "Change channel, interval or ping",
				Options: []*discordgo.ApplicationCommandOption{
					id,
					channel(false),
					every(false),
					str(kit.OptPing, "New mention line (\"none\" clears it)", false),
				},
			},
		},
	}}
}

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tjcrane/roomwarden/blacklist"
	"github.com/tjcrane/roomwarden/config"
	"github.com/tjcrane/roomwarden/globals"
	"github.com/tjcrane/roomwarden/store"
	"github.com/tjcrane/roomwarden/types"
)

// A very simple CLI tool for offline administration of the bot's persisted
// settings and mailbox. It goes through the same flock-guarded store as the
// bot, so it is safe to use while the bot runs.

var configPath = pflag.StringP("config", "c", "", "path to config file or directory")

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	cfg, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if cfg.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	}

	st := store.NewStore(cfg.SettingsFile, cfg.MailFile)
	settings := &types.Settings{}
	mailbox := make(types.Mailbox)
	st.Load(store.KindSettings, settings)
	st.Load(store.KindMailbox, &mailbox)

	persistSettings := func() {
		st.Request(store.KindSettings, settings)
		st.Flush()
	}
	persistMail := func() {
		st.Request(store.KindMailbox, mailbox)
		st.Flush()
	}
	bans := blacklist.NewIndex(settings, persistSettings)

	var cmdBlacklist = &cobra.Command{
		Use:   "blacklist",
		Short: "inspect or edit the per-room blacklists",
	}
	cmdBlacklist.AddCommand(&cobra.Command{
		Use:   "show [room]",
		Short: "list blacklist entries",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			for roomId, entries := range settings.Blacklist {
				if len(args) == 1 && args[0] != roomId {
					continue
				}
				for entry := range entries {
					fmt.Printf("%s\t%s\n", roomId, entry)
				}
			}
		},
	})
	cmdBlacklist.AddCommand(&cobra.Command{
		Use:   "add <room> <entry>",
		Short: "add a user id or /pattern/i entry",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			entry := args[1]
			if !strings.HasPrefix(entry, "/") {
				entry = types.ToId(entry)
			}
			if !bans.Add(args[0], entry) {
				fmt.Println("already blacklisted")
			}
		},
	})
	cmdBlacklist.AddCommand(&cobra.Command{
		Use:   "remove <room> <entry>",
		Short: "remove an entry",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			entry := args[1]
			if !strings.HasPrefix(entry, "/") {
				entry = types.ToId(entry)
			}
			if !bans.Remove(args[0], entry) {
				fmt.Println("not blacklisted")
			}
		},
	})

	var cmdPhrases = &cobra.Command{
		Use:   "phrases",
		Short: "inspect or edit the banned phrase lists",
	}
	cmdPhrases.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "list banned phrases",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for roomId, phrases := range settings.BannedPhrases {
				for phrase := range phrases {
					fmt.Printf("%s\t%s\n", roomId, phrase)
				}
			}
		},
	})
	cmdPhrases.AddCommand(&cobra.Command{
		Use:   "add <room|global> <phrase...>",
		Short: "add a banned phrase",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			phrase := strings.ToLower(strings.Join(args[1:], " "))
			if settings.BannedPhrases == nil {
				settings.BannedPhrases = make(map[string]map[string]int)
			}
			if settings.BannedPhrases[args[0]] == nil {
				settings.BannedPhrases[args[0]] = make(map[string]int)
			}
			settings.BannedPhrases[args[0]][phrase] = 1
			persistSettings()
		},
	})
	cmdPhrases.AddCommand(&cobra.Command{
		Use:   "remove <room|global> <phrase...>",
		Short: "remove a banned phrase",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			phrase := strings.ToLower(strings.Join(args[1:], " "))
			if phrases, ok := settings.BannedPhrases[args[0]]; ok {
				delete(phrases, phrase)
				if len(phrases) == 0 {
					delete(settings.BannedPhrases, args[0])
				}
				persistSettings()
			}
		},
	})

	var cmdRule = &cobra.Command{
		Use:   "rule set <room> <rule> <on|off>",
		Short: "toggle a moderation rule for a room",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			settings.SetRule(args[0], args[1], args[2] == "on")
			persistSettings()
		},
	}

	var cmdLadder = &cobra.Command{
		Use:   "ladder set <rung> <action>",
		Short: "bind a punishment rung to an action",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			if _, err := strconv.Atoi(args[0]); err != nil {
				fmt.Println("rung must be a number")
				os.Exit(1)
			}
			if settings.PunishmentLadder == nil {
				settings.PunishmentLadder = make(map[string]string)
			}
			settings.PunishmentLadder[args[0]] = args[1]
			persistSettings()
		},
	}

	var cmdMail = &cobra.Command{
		Use:   "mail",
		Short: "inspect or edit the mailbox",
	}
	cmdMail.AddCommand(&cobra.Command{
		Use:   "show [user]",
		Short: "list pending mail",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			for userId, entries := range mailbox {
				if len(args) == 1 && types.ToId(args[0]) != userId {
					continue
				}
				for _, m := range entries {
					at := time.Unix(0, m.Time*int64(time.Millisecond))
					fmt.Printf("%s\t%s\t%s\t%s\n", userId, at.Format(time.RFC3339), m.From, m.Text)
				}
			}
		},
	})
	cmdMail.AddCommand(&cobra.Command{
		Use:   "add <user> <from> <text...>",
		Short: "leave a message for a user",
		Args:  cobra.MinimumNArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			userId := types.ToId(args[0])
			mailbox[userId] = append(mailbox[userId], types.MailEntry{
				From: args[1],
				Time: time.Now().UnixNano() / int64(time.Millisecond),
				Text: strings.Join(args[2:], " "),
			})
			persistMail()
		},
	})
	cmdMail.AddCommand(&cobra.Command{
		Use:   "clear <user>",
		Short: "drop a user's pending mail",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			delete(mailbox, types.ToId(args[0]))
			persistMail()
		},
	})

	var rootCmd = &cobra.Command{Use: "roomwarden-admin"}
	rootCmd.AddCommand(cmdBlacklist, cmdPhrases, cmdRule, cmdLadder, cmdMail)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

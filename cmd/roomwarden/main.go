package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"github.com/tjcrane/roomwarden/auth"
	"github.com/tjcrane/roomwarden/blacklist"
	"github.com/tjcrane/roomwarden/client"
	"github.com/tjcrane/roomwarden/commands"
	"github.com/tjcrane/roomwarden/config"
	"github.com/tjcrane/roomwarden/directory"
	"github.com/tjcrane/roomwarden/globals"
	"github.com/tjcrane/roomwarden/history"
	"github.com/tjcrane/roomwarden/moderation"
	"github.com/tjcrane/roomwarden/protocol"
	"github.com/tjcrane/roomwarden/store"
	"github.com/tjcrane/roomwarden/types"
)

var configPath = pflag.StringP("config", "c", "", "path to config file or directory")

// sayFunc adapts a closure to the Sender interfaces.
type sayFunc func(target, text string)

func (f sayFunc) Say(target, text string) { f(target, text) }

func main() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

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
	if cfg.Nick == "" {
		panic("nick must be configured")
	}
	if cfg.WebsocketUrl == "" {
		panic("websocket_url must be configured")
	}

	settings := &types.Settings{}
	mailbox := make(types.Mailbox)
	st := store.NewStore(cfg.SettingsFile, cfg.MailFile)
	st.Load(store.KindSettings, settings)
	st.Load(store.KindMailbox, &mailbox)

	archive, err := history.NewArchive(cfg)
	if err != nil {
		panic(err)
	}
	defer archive.Close()

	users := directory.NewUsers(cfg.Nick)
	rooms := directory.NewRooms(users)
	bans := blacklist.NewIndex(settings, func() {
		st.Request(store.KindSettings, settings)
	})

	// the engine and the command table talk back through the router; the
	// closure resolves the cycle
	var router *protocol.Router
	say := sayFunc(func(target, text string) { router.Say(target, text) })
	engine := moderation.NewEngine(cfg, settings, users, say)
	table := commands.NewRegistry()
	commands.RegisterBuiltins(table, engine, say, nil)

	conn, err := client.Dial(cfg.WebsocketUrl)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	go func() {
		<-c
		st.Flush()
		globals.AppLogger.Info("interrupted, shutting down")
		conn.Close()
		os.Exit(0)
	}()

	sweeper := cron.New()
	var armSweeper sync.Once
	router = protocol.NewRouter(cfg, protocol.Deps{
		Settings:  settings,
		Mailbox:   mailbox,
		Store:     st,
		Rooms:     rooms,
		Users:     users,
		Blacklist: bans,
		Engine:    engine,
		Table:     table,
		Archive:   archive,
		Send:      conn,
		Login:     auth.NewClient(cfg),
		Fatal: func(msg string) {
			globals.AppLogger.Error(msg)
			st.Flush()
			os.Exit(1)
		},
		OnReady: func() {
			armSweeper.Do(func() {
				spec := fmt.Sprintf("@every %s", moderation.SweepPeriod)
				if _, err := sweeper.AddFunc(spec, func() { engine.DecaySweep(time.Now()) }); err != nil {
					panic(err)
				}
				sweeper.Start()
			})
		},
	})

	err = conn.ReadLoop(func(frame []byte) {
		if err := router.Ingest(frame); err != nil {
			globals.AppLogger.Warn("dropping frame", "error", err)
		}
	})
	sweeper.Stop()
	st.Flush()
	globals.AppLogger.Error("feed connection lost", "error", err)
	os.Exit(1)
}

package config

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tjcrane/roomwarden/globals"
)

const (
	defaultCommandPrefix = "."
	defaultSettingsFile  = "settings.json"
	defaultMailFile      = "messages.json"
)

// Config is the bot configuration, filled from the configuration file,
// environment and command-line flags. Rule toggles, ladders and phrase lists
// live in the persisted Settings blob instead; this object only carries what
// is fixed for the lifetime of the process.
type Config struct {
	Nick         string `mapstructure:"nick"`
	Pass         string `mapstructure:"pass"`
	ServerId     string `mapstructure:"server_id"`
	WebsocketUrl string `mapstructure:"websocket_url"`
	ActionUrl    string `mapstructure:"action_url"`
	AvatarNumber int    `mapstructure:"avatar_number"`

	Rooms        []string `mapstructure:"rooms"`
	PrivateRooms []string `mapstructure:"private_rooms"`

	// Whitelist lists user ids exempt from moderation scoring.
	Whitelist []string `mapstructure:"whitelist"`
	// AllowMute enables the auto-moderation engine.
	AllowMute bool `mapstructure:"allow_mute"`
	// ExemptFilter is an optional expr expression evaluated against each chat
	// event; a true result exempts the message from scoring.
	ExemptFilter string `mapstructure:"exempt_filter"`

	CommandPrefix string `mapstructure:"command_prefix"`
	// Replies maps a normalized trigger message to an automatic response.
	Replies map[string]string `mapstructure:"replies"`
	// Greetings maps a user id to a line said when that user joins.
	Greetings map[string]string `mapstructure:"greetings"`

	SettingsFile string `mapstructure:"settings_file"`
	MailFile     string `mapstructure:"mail_file"`

	HistoryConfig HistoryConfig `mapstructure:"history"`

	LogLevel string `mapstructure:"log_level"`
	// LogChat additionally logs every dispatched chat line at info level.
	LogChat bool `mapstructure:"log_chat"`
}

// HistoryConfig configures the optional buntdb event archive. An empty name
// disables the archive entirely.
type HistoryConfig struct {
	Name string `mapstructure:"name"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.StringP("nick", "n", "", "bot nick")
	flagSet.String("server-id", "showdown", "server id used for the login exchange")
	flagSet.String("log-level", "INFO", "log level")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.Replace(name, "-", "_", -1))
}

// ReadConfiguration reads and parses the configuration located at configPath,
// which can either point to a single TOML file or to a directory, in which
// case all *.toml files in this directory are concatenated. It returns a
// Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("command_prefix", defaultCommandPrefix)
	viper.SetDefault("settings_file", defaultSettingsFile)
	viper.SetDefault("mail_file", defaultMailFile)
	viper.SetDefault("allow_mute", true)
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("ROOMWARDEN")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := ioutil.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}
	if cfg.ActionUrl == "" && cfg.ServerId != "" {
		cfg.ActionUrl = fmt.Sprintf("https://play.pokemonshowdown.com/~~%s/action.php", cfg.ServerId)
	}
	return &cfg, nil
}

// IsPrivateRoom reports whether the room is configured private. Private rooms
// are excluded from seen tracking and cannot use the warn action.
func (c *Config) IsPrivateRoom(roomId string) bool {
	for _, r := range c.PrivateRooms {
		if r == roomId {
			return true
		}
	}
	return false
}

// IsConfiguredRoom reports whether the bot is configured to sit in the room.
func (c *Config) IsConfiguredRoom(roomId string) bool {
	for _, r := range c.Rooms {
		if r == roomId {
			return true
		}
	}
	return false
}

// IsWhitelisted reports whether the user id is exempt from moderation.
func (c *Config) IsWhitelisted(userId string) bool {
	for _, u := range c.Whitelist {
		if u == userId {
			return true
		}
	}
	return false
}

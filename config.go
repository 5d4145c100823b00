package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bannedWords      string
	bind             string
	db               string
	dictionaryPolicy string
	dictionaryURL    string
	leaderboardSize  int
	minPlayers       int
	port             int
	prefix           string
	profile          bool
	sessionTimeout   time.Duration
	tlsCert          string
	tlsKey           string
	turnTimeout      time.Duration
	verbose          bool
	version          bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.minPlayers < 2 {
		return fmt.Errorf("invalid minimum player count (must be at least 2): %d", c.minPlayers)
	}
	if c.turnTimeout < time.Second {
		return fmt.Errorf("invalid turn timeout (must be at least 1s): %s", c.turnTimeout)
	}
	if c.leaderboardSize < 1 {
		return fmt.Errorf("invalid leaderboard size (must be at least 1): %d", c.leaderboardSize)
	}
	switch c.dictionaryPolicy {
	case dictionaryLenient, dictionaryStrict:
	default:
		return fmt.Errorf("invalid dictionary policy (must be %q or %q): %q", dictionaryLenient, dictionaryStrict, c.dictionaryPolicy)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("WORDCHAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "wordchain",
		Short:         "A turn-based Vietnamese word-chaining elimination game, packed in a single webapp.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.bannedWords, "banned-words", "", "path to newline-delimited banned word list, replacing the built-in set (env: WORDCHAIN_BANNED_WORDS)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: WORDCHAIN_BIND)")
	fs.StringVar(&cfg.db, "db", "wordchain.db", "path to the win leaderboard database (env: WORDCHAIN_DB)")
	fs.StringVar(&cfg.dictionaryPolicy, "dictionary-policy", dictionaryLenient, "treat phrases as valid (lenient) or invalid (strict) when dictionary lookups fail (env: WORDCHAIN_DICTIONARY_POLICY)")
	fs.StringVar(&cfg.dictionaryURL, "dictionary-url", "", "base URL of an optional phrase-existence lookup service (env: WORDCHAIN_DICTIONARY_URL)")
	fs.IntVar(&cfg.leaderboardSize, "leaderboard-size", 10, "number of entries returned by leaderboard queries (env: WORDCHAIN_LEADERBOARD_SIZE)")
	fs.IntVar(&cfg.minPlayers, "min-players", 2, "minimum players required to begin a game (env: WORDCHAIN_MIN_PLAYERS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: WORDCHAIN_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: WORDCHAIN_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: WORDCHAIN_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: WORDCHAIN_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: WORDCHAIN_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: WORDCHAIN_TLS_KEY)")
	fs.DurationVar(&cfg.turnTimeout, "turn-timeout", 59*time.Second, "time each player has to submit a phrase (env: WORDCHAIN_TURN_TIMEOUT)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: WORDCHAIN_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: WORDCHAIN_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("wordchain v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

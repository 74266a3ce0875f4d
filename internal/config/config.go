// Package config is the CLI/env wiring layer, adapted from the teacher's
// cobra+pflag+viper command in the same shape: flags bind to a Config
// struct, viper supplies env-var fallbacks under a SPELLCAST_ prefix.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix viper binds flags under
// (e.g. --db-driver becomes SPELLCAST_DB_DRIVER).
const EnvPrefix = "SPELLCAST"

// Config holds every runtime setting the server needs.
type Config struct {
	Bind    string
	Port    int
	Prefix  string
	Profile bool
	Verbose bool
	Version bool
	TLSCert string
	TLSKey  string

	DictionaryPath string
	EncryptionKey  string // 32-byte base64 key; validated, not used by the core itself

	DBDriver string
	DBDSN    string

	PlayerGrace    time.Duration
	LobbyGrace     time.Duration
	SweepInterval  time.Duration

	// DevTokens seeds a development-only identity.StaticResolver with
	// entries of the form "token=user_id:username". Production deployments
	// should supply their own identity.Resolver instead.
	DevTokens []string
}

// Validate checks flag combinations and mandatory settings fail startup
// per spec §6 ("Unset mandatory env vars fail startup").
func (c *Config) Validate() error {
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.DictionaryPath == "" {
		return errors.New("--dictionary-path is required")
	}
	if c.DBDriver == "" {
		return errors.New("--db-driver is required")
	}
	if c.DBDSN == "" {
		return errors.New("--db-dsn is required")
	}
	if c.EncryptionKey == "" {
		return errors.New("--encryption-key is required")
	}
	return nil
}

// Scheme returns "https" when a TLS cert/key pair is configured.
func (c *Config) Scheme() string {
	if c.TLSCert != "" && c.TLSKey != "" {
		return "https"
	}
	return "http"
}

// NewCommand builds the root cobra command. run is invoked with a
// validated Config once flags have parsed.
func NewCommand(cfg *Config, version string, run func(cmd *cobra.Command, cfg *Config) error) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "spellcast",
		Short:         "Real-time multiplayer word-grid game server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: SPELLCAST_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: SPELLCAST_PORT)")
	fs.StringVar(&cfg.Prefix, "prefix", "", "path to prepend to all URLs, for use behind a reverse proxy (env: SPELLCAST_PREFIX)")
	fs.BoolVar(&cfg.Profile, "profile", false, "register net/http/pprof handlers (env: SPELLCAST_PROFILE)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "display additional output (env: SPELLCAST_VERBOSE)")
	fs.BoolVarP(&cfg.Version, "version", "V", false, "display version and exit (env: SPELLCAST_VERSION)")
	fs.StringVar(&cfg.TLSCert, "tls-cert", "", "path to tls certificate (env: SPELLCAST_TLS_CERT)")
	fs.StringVar(&cfg.TLSKey, "tls-key", "", "path to tls keyfile (env: SPELLCAST_TLS_KEY)")

	fs.StringVar(&cfg.DictionaryPath, "dictionary-path", "", "newline-delimited dictionary file (env: SPELLCAST_DICTIONARY_PATH)")
	fs.StringVar(&cfg.EncryptionKey, "encryption-key", "", "32-byte base64 key used by the out-of-scope encryption sidecar (env: SPELLCAST_ENCRYPTION_KEY)")

	fs.StringVar(&cfg.DBDriver, "db-driver", "sqlite3", "persistence driver: sqlite3 or postgres (env: SPELLCAST_DB_DRIVER)")
	fs.StringVar(&cfg.DBDSN, "db-dsn", "", "database connection string (env: SPELLCAST_DB_DSN)")

	fs.DurationVar(&cfg.PlayerGrace, "player-grace", 60*time.Second, "grace period before a disconnected player is dropped (env: SPELLCAST_PLAYER_GRACE)")
	fs.DurationVar(&cfg.LobbyGrace, "lobby-grace", 120*time.Second, "grace period before an empty lobby is reaped (env: SPELLCAST_LOBBY_GRACE)")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", 15*time.Second, "how often the cleanup sweep runs (env: SPELLCAST_SWEEP_INTERVAL)")

	fs.StringSliceVar(&cfg.DevTokens, "dev-token", nil, "development-only bearer token seed, format token=user_id:username, repeatable (env: SPELLCAST_DEV_TOKEN)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("spellcast v{{.Version}}\n")
	cmd.SilenceUsage = true

	return cmd
}

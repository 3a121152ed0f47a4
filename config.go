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
	apodKey        string
	apodTimeout    time.Duration
	apodURL        string
	bind           string
	countdownFrom  int
	maxPlayers     int
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.countdownFrom < 1 {
		return fmt.Errorf("invalid countdown start (must be at least 1): %d", c.countdownFrom)
	}
	if c.maxPlayers < 0 {
		return fmt.Errorf("invalid max players (must be 0 or greater): %d", c.maxPlayers)
	}
	if c.apodTimeout < time.Second {
		return fmt.Errorf("invalid image fetch timeout (must be at least 1s): %s", c.apodTimeout)
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
	v.SetEnvPrefix("STARSLIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "starslide",
		Short:         "A multiplayer sliding-puzzle race built on the NASA Astronomy Picture of the Day.",
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

	fs.StringVar(&cfg.apodKey, "apod-key", "DEMO_KEY", "api key for the picture-of-the-day endpoint (env: STARSLIDE_APOD_KEY)")
	fs.DurationVar(&cfg.apodTimeout, "apod-timeout", 10*time.Second, "timeout for picture-of-the-day fetches (env: STARSLIDE_APOD_TIMEOUT)")
	fs.StringVar(&cfg.apodURL, "apod-url", "https://api.nasa.gov/planetary/apod", "picture-of-the-day endpoint (env: STARSLIDE_APOD_URL)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: STARSLIDE_BIND)")
	fs.IntVar(&cfg.countdownFrom, "countdown-from", 3, "value the pre-game countdown starts from (env: STARSLIDE_COUNTDOWN_FROM)")
	fs.IntVar(&cfg.maxPlayers, "max-players", 0, "maximum players per room, 0 for unlimited (env: STARSLIDE_MAX_PLAYERS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: STARSLIDE_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: STARSLIDE_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: STARSLIDE_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are ended, 0 to disable (env: STARSLIDE_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: STARSLIDE_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: STARSLIDE_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: STARSLIDE_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: STARSLIDE_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("starslide v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

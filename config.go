/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/impostor/games/impostor"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind            string
	discussion      bool
	evictionGrace   time.Duration
	heartbeatPolicy string
	maxPlayers      int
	messageBurst    int
	messageRate     float64
	metrics         bool
	port            int
	prefix          string
	profile         bool
	sessionTimeout  time.Duration
	tlsCert         string
	tlsKey          string
	topics          []string
	verbose         bool
	version         bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.maxPlayers < 3 {
		return fmt.Errorf("invalid max players (must be at least 3): %d", c.maxPlayers)
	}
	if c.evictionGrace <= 0 {
		return fmt.Errorf("invalid eviction grace period (must be positive): %s", c.evictionGrace)
	}
	if c.sessionTimeout < 0 {
		return fmt.Errorf("invalid session timeout (must not be negative): %s", c.sessionTimeout)
	}
	if _, ok := impostor.ParseHeartbeatPolicy(c.heartbeatPolicy); !ok {
		return fmt.Errorf("invalid heartbeat policy (must be touch, extend, or revive): %q", c.heartbeatPolicy)
	}
	if c.messageRate <= 0 || c.messageBurst < 1 {
		return fmt.Errorf("invalid message limit (rate must be positive, burst at least 1): %g/%d", c.messageRate, c.messageBurst)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// gameOptions maps flags onto the room registry.
func (c *Config) gameOptions() impostor.Options {
	policy, _ := impostor.ParseHeartbeatPolicy(c.heartbeatPolicy)

	topics := make([]string, 0, len(c.topics))
	for _, t := range c.topics {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}

	return impostor.Options{
		MaxPlayers:    c.maxPlayers,
		Discussion:    c.discussion,
		EvictionGrace: c.evictionGrace,
		Heartbeat:     policy,
		IdleTimeout:   c.sessionTimeout,
		Topics:        topics,
		Logf: func(format string, args ...any) {
			logf(c, format, args...)
		},
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("IMPOSTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "impostor",
		Short:         "A real-time party game where the group votes to unmask the impostor.",
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

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: IMPOSTOR_BIND)")
	fs.BoolVar(&cfg.discussion, "discussion", false, "hold a discussion phase before voting opens (env: IMPOSTOR_DISCUSSION)")
	fs.DurationVar(&cfg.evictionGrace, "eviction-grace", impostor.DefaultEvictionGrace, "time before disconnected players are removed (env: IMPOSTOR_EVICTION_GRACE)")
	fs.StringVar(&cfg.heartbeatPolicy, "heartbeat-policy", string(impostor.HeartbeatTouch), "effect of a heartbeat naming a disconnected player: touch, extend, or revive (env: IMPOSTOR_HEARTBEAT_POLICY)")
	fs.IntVar(&cfg.maxPlayers, "max-players", impostor.DefaultMaxPlayers, "maximum players per room (env: IMPOSTOR_MAX_PLAYERS)")
	fs.IntVar(&cfg.messageBurst, "message-burst", 10, "messages a client may send in a burst (env: IMPOSTOR_MESSAGE_BURST)")
	fs.Float64Var(&cfg.messageRate, "message-rate", 5, "sustained messages per second allowed per client (env: IMPOSTOR_MESSAGE_RATE)")
	fs.BoolVar(&cfg.metrics, "metrics", false, "expose prometheus metrics at /metrics (env: IMPOSTOR_METRICS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: IMPOSTOR_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: IMPOSTOR_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: IMPOSTOR_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are removed, 0 to keep them (env: IMPOSTOR_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: IMPOSTOR_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: IMPOSTOR_TLS_KEY)")
	fs.StringSliceVar(&cfg.topics, "topics", nil, "comma-separated secret topics, replacing the built-in list (env: IMPOSTOR_TOPICS)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: IMPOSTOR_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: IMPOSTOR_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("impostor v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cyberinferno/netprint/addrcache"
	"github.com/cyberinferno/netprint/logger"
	"github.com/cyberinferno/netprint/netconn"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix is the prefix of the environment variables, e.g. NETPRINT_ENDPOINT.
const envPrefix = "netprint"

// Settings is the resolved configuration of a client command.
type Settings struct {
	Endpoint       string
	Family         netconn.Family
	SelectTimeout  time.Duration
	ConnectTimeout time.Duration
	ReadBuffer     int
	ResolveTTL     time.Duration
	RedisAddr      string
}

// newViper returns a viper instance reading NETPRINT_* variables, after
// loading .env and .env.local from the working directory.
func newViper() *viper.Viper {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// bindFlags binds the command's flags to v and reads the config file named
// by --config, if any. Flags win over env, env over the file.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
	}

	return nil
}

// addClientFlags registers the flags shared by commands talking to a device.
func addClientFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("endpoint", "e", "", "device address as host:port, e.g. 192.168.0.205:9100")
	flags.String("family", "ipv4", "address family: ipv4, ipv6 or any")
	flags.Duration("select-timeout", netconn.DefaultSelectTimeout, "how long to wait for the socket to become ready")
	flags.Duration("connect-timeout", 10*time.Second, "dial timeout, 0 for none")
	flags.Int("read-buffer", netconn.DefaultReadBufferSize, "maximum bytes per read")
	flags.Duration("resolve-ttl", addrcache.DefaultTTL, "how long resolved host addresses are cached")
	flags.String("redis-addr", "", "share the address cache through this Redis server")
	flags.Bool("metrics", false, "print connection metrics to stderr when done")
}

// loadSettings reads client settings from v.
func loadSettings(v *viper.Viper) (Settings, error) {
	family, err := netconn.ParseFamily(v.GetString("family"))
	if err != nil {
		return Settings{}, err
	}

	s := Settings{
		Endpoint:       v.GetString("endpoint"),
		Family:         family,
		SelectTimeout:  v.GetDuration("select-timeout"),
		ConnectTimeout: v.GetDuration("connect-timeout"),
		ReadBuffer:     v.GetInt("read-buffer"),
		ResolveTTL:     v.GetDuration("resolve-ttl"),
		RedisAddr:      v.GetString("redis-addr"),
	}

	if s.Endpoint == "" {
		return Settings{}, fmt.Errorf("no endpoint given: use --endpoint or %s_ENDPOINT", strings.ToUpper(envPrefix))
	}

	return s, nil
}

// newLogger builds the logger selected by --log-level and --log-file.
func newLogger(v *viper.Viper) (logger.Logger, error) {
	level, err := logger.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return nil, err
	}

	if file := v.GetString("log-file"); file != "" {
		return logger.NewFileLogger(file, "netprint", level)
	}

	return logger.NewConsoleLogger("netprint", level), nil
}

// resolver returns the address cache selected by the settings and a cleanup
// function releasing it.
func (s Settings) resolver() (addrcache.Resolver, func()) {
	if s.RedisAddr == "" {
		return addrcache.NewMemoryResolver(s.ResolveTTL), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
	cache := addrcache.NewRedisCacher[[]string](client, envPrefix+":")
	return addrcache.NewCachingResolver(cache, s.ResolveTTL, nil), func() { _ = client.Close() }
}

// open creates the Connection described by the settings.
func (s Settings) open(log logger.Logger) (*netconn.Connection, func(), error) {
	resolver, cleanup := s.resolver()

	config := netconn.DefaultConfig()
	config.Family = s.Family
	config.SelectTimeout = s.SelectTimeout
	config.ConnectTimeout = s.ConnectTimeout
	config.ReadBufferSize = s.ReadBuffer
	config.Logger = log
	config.Resolver = resolver

	conn, err := netconn.CreateWithConfig(s.Endpoint, config)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return conn, func() {
		_ = conn.Close()
		cleanup()
	}, nil
}

// unescape interprets Go escape sequences such as \n, \x1b or \t in s.
func unescape(s string) ([]byte, error) {
	out, err := strconv.Unquote(`"` + strings.ReplaceAll(s, `"`, `\"`) + `"`)
	if err != nil {
		return nil, fmt.Errorf("invalid escape sequence in %q: %w", s, err)
	}

	return []byte(out), nil
}

// Package config holds the application configuration. Values are read from an
// optional config file and from environment variables prefixed with the upper-case
// application name.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the application configuration.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Debug    bool   `mapstructure:"debug"`
	Verbose  bool   `mapstructure:"verbose"`
	LogLevel string `mapstructure:"log_level"`
	TempDir  string `mapstructure:"temp_dir"`
	// MinWidth is the smallest number of channels a pruned dimension may keep.
	MinWidth int `mapstructure:"min_width"`
}

// App is the active configuration. It holds defaults until Init runs.
var App = defaults("go-prune")

var (
	mu          sync.Mutex
	initialized bool
	afterInit   []func()
)

func defaults(name string) *Config {
	return &Config{
		AppName:  name,
		LogLevel: "info",
		TempDir:  filepath.Join(os.TempDir(), name),
		MinWidth: 1,
	}
}

type options struct {
	appName    string
	debug      bool
	verbose    bool
	configFile string
}

// Option configures Init.
type Option func(*options)

// AppName sets the application name, which also selects the environment prefix.
func AppName(s string) Option {
	return func(o *options) {
		o.appName = s
	}
}

// DebugMode enables debug logging.
func DebugMode(b bool) Option {
	return func(o *options) {
		o.debug = b
	}
}

// VerboseMode enables verbose output.
func VerboseMode(b bool) Option {
	return func(o *options) {
		o.verbose = b
	}
}

// ConfigFileName reads the configuration from path. A leading ~ is expanded.
func ConfigFileName(path string) Option {
	return func(o *options) {
		o.configFile = path
	}
}

// Init loads the configuration and runs the AfterInit hooks.
func Init(opts ...Option) error {
	o := &options{appName: App.AppName}
	for _, opt := range opts {
		opt(o)
	}

	v := viper.New()
	d := defaults(o.appName)
	v.SetDefault("app_name", d.AppName)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("temp_dir", d.TempDir)
	v.SetDefault("min_width", d.MinWidth)
	v.SetDefault("debug", o.debug)
	v.SetDefault("verbose", o.verbose)
	v.SetEnvPrefix(strings.ToUpper(strings.Replace(o.appName, "-", "_", -1)))
	v.AutomaticEnv()

	if o.configFile != "" {
		path, err := homedir.Expand(o.configFile)
		if err != nil {
			return errors.Wrapf(err, "failed to expand %s", o.configFile)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "failed to read config %s", path)
		}
	}

	c := new(Config)
	if err := v.Unmarshal(c); err != nil {
		return errors.Wrap(err, "failed to decode config")
	}
	if c.MinWidth < 1 {
		return errors.Errorf("min_width must be at least 1, got %d", c.MinWidth)
	}

	mu.Lock()
	App = c
	initialized = true
	hooks := afterInit
	mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return nil
}

// AfterInit registers fn to run after every Init. If Init already ran, fn also
// runs immediately.
func AfterInit(fn func()) {
	mu.Lock()
	afterInit = append(afterInit, fn)
	done := initialized
	mu.Unlock()
	if done {
		fn()
	}
}

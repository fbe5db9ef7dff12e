package command

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/peak/s5nav/cache"
	"github.com/peak/s5nav/config"
	"github.com/peak/s5nav/log"
	"github.com/peak/s5nav/log/stat"
	"github.com/peak/s5nav/storage"
)

const (
	defaultRetryCount = 10

	megabytes = 1024 * 1024

	appName = "s5nav"

	sessionKey = "session"
)

func appFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "enable JSON formatted output",
		},
		&cli.IntFlag{
			Name:    "retry-count",
			Aliases: []string{"r"},
			Value:   defaultRetryCount,
			Usage:   "number of times that a request will be retried for failures",
		},
		&cli.StringFlag{
			Name:    "endpoint-url",
			Usage:   "override default S3 host for custom services",
			EnvVars: []string{"S3_ENDPOINT_URL"},
		},
		&cli.StringFlag{
			Name:  "region",
			Usage: "region of the object store",
		},
		&cli.StringFlag{
			Name:  "profile",
			Usage: "use the specified profile from the credentials file",
		},
		&cli.BoolFlag{
			Name:  "no-verify-ssl",
			Usage: "disable SSL certificate verification",
		},
		&cli.StringFlag{
			Name:  "log",
			Value: "info",
			Usage: "log level: (debug, info, warning, error)",
		},
		&cli.BoolFlag{
			Name:  "stat",
			Usage: "collect statistics of program execution and display it at the end",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "path of the configuration file",
		},
	}
}

// newApp returns the application. Conflict prompts are read from in.
func newApp(in io.Reader, out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:      appName,
		Usage:     "Two-panel S3 and local filesystem navigator",
		Reader:    in,
		Writer:    out,
		ErrWriter: errOut,
		Flags:     appFlags(),
		Commands:  Commands(),
		Metadata:  map[string]interface{}{},
		Before:    before,
		Action: func(c *cli.Context) error {
			return cli.ShowAppHelp(c)
		},
		After: after,
	}
}

func before(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		log.InitWithOutput(c.String("log"), c.Bool("json"), c.App.Writer, c.App.ErrWriter)
		printError(appName, "config", err)
		return err
	}

	logLevel := config.StringOr(cfg.Log.Level, "info")
	log.InitWithOutput(logLevel, config.BoolOr(cfg.Log.JSON, false), c.App.Writer, c.App.ErrWriter)

	// validation
	switch logLevel {
	case "debug", "info", "warning", "error":
	default:
		err := fmt.Errorf("invalid log level %q", logLevel)
		printError(appName, "config", err)
		return err
	}
	if config.IntOr(cfg.Storage.RetryCount, defaultRetryCount) < 1 {
		err := fmt.Errorf("retry count must be a positive value")
		printError(appName, "config", err)
		return err
	}

	if c.Bool("stat") {
		stat.InitStat()
	}

	sess, err := newSession(cfg)
	if err != nil {
		printError(appName, "init", err)
		return err
	}
	c.App.Metadata[sessionKey] = sess
	return nil
}

func after(c *cli.Context) error {
	if c.Bool("stat") {
		for _, s := range stat.Statistics() {
			log.Stat(s)
		}
	}
	log.Close()
	return nil
}

// Commands returns the subcommands of the application.
func Commands() []*cli.Command {
	return []*cli.Command{
		NewListCommand(),
		NewCopyCommand(),
		NewMoveCommand(),
		NewDeleteCommand(),
		NewVersionsCommand(),
		NewVersionCommand(),
	}
}

// Main is the entrypoint function to run given commands.
func Main(ctx context.Context, args []string) error {
	return newApp(os.Stdin, os.Stdout, os.Stderr).RunContext(ctx, args)
}

// loadConfig reads the config file and applies the global flags that were
// given explicitly.
func loadConfig(c *cli.Context) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}

	var o config.Overrides
	if c.IsSet("endpoint-url") {
		v := c.String("endpoint-url")
		o.EndpointURL = &v
	}
	if c.IsSet("region") {
		v := c.String("region")
		o.Region = &v
	}
	if c.IsSet("profile") {
		v := c.String("profile")
		o.Profile = &v
	}
	if c.IsSet("retry-count") {
		v := c.Int("retry-count")
		o.RetryCount = &v
	}
	if c.IsSet("no-verify-ssl") {
		v := c.Bool("no-verify-ssl")
		o.NoVerifySSL = &v
	}
	if c.IsSet("log") || cfg.Log.Level == nil {
		v := c.String("log")
		o.LogLevel = &v
	}
	if c.IsSet("json") {
		v := c.Bool("json")
		o.JSON = &v
	}
	return cfg.Merge(o), nil
}

// session holds the backends of one invocation. Both backends share the same
// caches so that a change made through one is seen by the other.
type session struct {
	cfg    config.Config
	caches *cache.Session
	fs     *storage.Filesystem

	s3opts storage.S3Options
	s3     *storage.S3
}

func newSession(cfg config.Config) (*session, error) {
	caches, err := cache.NewSession(cfg.ListingSize(), cfg.MetadataSize())
	if err != nil {
		return nil, err
	}

	opts := storage.S3Options{
		MaxRetries:  config.IntOr(cfg.Storage.RetryCount, defaultRetryCount),
		Endpoint:    config.StringOr(cfg.Storage.EndpointURL, ""),
		Region:      config.StringOr(cfg.Storage.Region, ""),
		Profile:     config.StringOr(cfg.Storage.Profile, ""),
		NoVerifySSL: config.BoolOr(cfg.Storage.NoVerifySSL, false),
		Concurrency: config.IntOr(cfg.Storage.Concurrency, 0),
	}
	if cfg.Storage.PartSize != nil {
		opts.PartSize = *cfg.Storage.PartSize * megabytes
	}

	return &session{
		cfg:    cfg,
		caches: caches,
		fs:     storage.NewFilesystem(caches),
		s3opts: opts,
	}, nil
}

func sessionFrom(c *cli.Context) *session {
	return c.App.Metadata[sessionKey].(*session)
}

// remote returns the object store backend, connecting on first use.
func (s *session) remote() (*storage.S3, error) {
	if s.s3 != nil {
		return s.s3, nil
	}
	s3, err := storage.NewS3Storage(s.s3opts, s.caches)
	if err != nil {
		return nil, err
	}
	s.s3 = s3
	return s3, nil
}

// backend returns the backend ref points into.
func (s *session) backend(ref storage.Ref) (storage.Backend, error) {
	if !ref.IsRemote() {
		return s.fs, nil
	}
	return s.remote()
}

package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/peak/s5nav/log"
	"github.com/peak/s5nav/log/stat"
	"github.com/peak/s5nav/storage"
	"github.com/peak/s5nav/strutil"
)

var listHelpTemplate = `Name:
	{{.HelpName}} - {{.Usage}}

Usage:
	{{.HelpName}} [options] [argument]

Options:
	{{range .VisibleFlags}}{{.}}
	{{end}}
Examples:
	1. List all buckets
		 > s5nav {{.HelpName}}

	2. List objects and prefixes in a bucket
		 > s5nav {{.HelpName}} s3://bucket/

	3. List a local directory with human-readable sizes
		 > s5nav {{.HelpName}} -H /var/log
`

func NewListCommand() *cli.Command {
	return &cli.Command{
		Name:               "ls",
		HelpName:           "ls",
		Usage:              "list buckets, objects, prefixes and directories",
		CustomHelpTemplate: listHelpTemplate,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "humanize",
				Aliases: []string{"H"},
				Usage:   "human-readable output for object sizes",
			},
		},
		Before: func(c *cli.Context) error {
			err := validateLSCommand(c)
			if err != nil {
				printError(commandFromContext(c), c.Command.Name, err)
			}
			return err
		},
		Action: func(c *cli.Context) (err error) {
			defer stat.Collect(c.Command.FullName(), time.Now(), &err)()

			return List{
				src:         c.Args().First(),
				op:          c.Command.Name,
				fullCommand: commandFromContext(c),
				humanize:    c.Bool("humanize"),
				session:     sessionFrom(c),
			}.Run(c.Context)
		},
	}
}

// List holds list operation flags and states.
type List struct {
	src         string
	op          string
	fullCommand string

	// flags
	humanize bool

	session *session
}

// Run prints one level of the given location. Without an argument it prints
// the buckets.
func (l List) Run(ctx context.Context) error {
	ref := storage.RemoteRef("", "", "")
	if l.src != "" {
		var err error
		ref, err = storage.ParseRef(l.src)
		if err != nil {
			printError(l.fullCommand, l.op, err)
			return err
		}
	}

	backend, err := l.session.backend(ref)
	if err != nil {
		printError(l.fullCommand, l.op, err)
		return err
	}

	container, prefix := listRoot(ref)
	dirs, files := backend.List(ctx, container, prefix)
	if err := backend.LastError(); err != nil {
		printError(l.fullCommand, l.op, err)
		return err
	}

	for _, e := range dirs {
		log.Info(ListMessage{Entry: e, showHumanized: l.humanize})
	}
	for _, e := range files {
		log.Info(ListMessage{Entry: e, showHumanized: l.humanize})
	}
	return nil
}

// listRoot returns the container and prefix whose children are listed.
func listRoot(ref storage.Ref) (string, string) {
	if !ref.IsRemote() {
		return ref.Path, ""
	}
	prefix := ref.Key
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return ref.Bucket, prefix
}

// ListMessage is a structure for logging ls results.
type ListMessage struct {
	Entry storage.Entry `json:"entry"`

	showHumanized bool
}

// humanize is a helper function to humanize bytes.
func (l ListMessage) humanize() string {
	if l.showHumanized {
		return strutil.HumanizeBytes(l.Entry.Size)
	}
	return fmt.Sprintf("%d", l.Entry.Size)
}

// String returns the string representation of ListMessage.
func (l ListMessage) String() string {
	var date string
	if l.Entry.ModTime != nil {
		date = l.Entry.ModTime.Format(dateFormat)
	}

	if l.Entry.IsDir {
		return fmt.Sprintf("%19s %12s  %s/", date, "DIR", l.Entry.Name)
	}
	return fmt.Sprintf("%19s %12s  %s", date, l.humanize(), l.Entry.Name)
}

// JSON returns the JSON representation of ListMessage.
func (l ListMessage) JSON() string {
	return strutil.JSON(l.Entry)
}

func validateLSCommand(c *cli.Context) error {
	if c.Args().Len() > 1 {
		return fmt.Errorf("expected at most 1 argument")
	}
	return nil
}

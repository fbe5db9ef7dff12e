package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/peak/s5nav/log"
	"github.com/peak/s5nav/log/stat"
	"github.com/peak/s5nav/storage"
	"github.com/peak/s5nav/strutil"
)

var versionsHelpTemplate = `Name:
	{{.HelpName}} - {{.Usage}}

Usage:
	{{.HelpName}} [options] s3://bucket/key

Options:
	{{range .VisibleFlags}}{{.}}
	{{end}}
Examples:
	1. List every version of an object, newest first
		 > s5nav {{.HelpName}} s3://bucket/report.csv

	2. Download one of them
		 > s5nav cp --version-id VERSION s3://bucket/report.csv report.csv
`

func NewVersionsCommand() *cli.Command {
	return &cli.Command{
		Name:               "versions",
		HelpName:           "versions",
		Usage:              "list versions of an object",
		CustomHelpTemplate: versionsHelpTemplate,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "humanize",
				Aliases: []string{"H"},
				Usage:   "human-readable output for object sizes",
			},
		},
		Before: func(c *cli.Context) error {
			err := validateVersionsCommand(c)
			if err != nil {
				printError(commandFromContext(c), c.Command.Name, err)
			}
			return err
		},
		Action: func(c *cli.Context) (err error) {
			defer stat.Collect(c.Command.FullName(), time.Now(), &err)()

			ref, _ := storage.ParseRef(c.Args().First())
			return Versions{
				src:         ref,
				op:          c.Command.Name,
				fullCommand: commandFromContext(c),
				humanize:    c.Bool("humanize"),
				session:     sessionFrom(c),
			}.Run(c.Context)
		},
	}
}

// Versions holds versions operation flags and states.
type Versions struct {
	src         storage.Ref
	op          string
	fullCommand string

	// flags
	humanize bool

	session *session
}

// Run prints the versions of the object.
func (v Versions) Run(ctx context.Context) error {
	client, err := v.session.remote()
	if err != nil {
		printError(v.fullCommand, v.op, err)
		return err
	}

	versions, err := client.ListVersions(ctx, v.src.Bucket, v.src.Key)
	if err != nil {
		printError(v.fullCommand, v.op, err)
		return err
	}

	for _, version := range versions {
		log.Info(VersionMessage{Version: version, showHumanized: v.humanize})
	}
	return nil
}

func validateVersionsCommand(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected an object argument")
	}

	ref, err := storage.ParseRef(c.Args().First())
	if err != nil {
		return err
	}
	if !ref.IsRemote() || ref.IsBucket() || ref.IsPrefix() {
		return fmt.Errorf("%q is not an object", c.Args().First())
	}
	return nil
}

// VersionMessage is a structure for logging one version of an object.
type VersionMessage struct {
	Version storage.Version `json:"version"`

	showHumanized bool
}

// String returns the string representation of VersionMessage.
func (v VersionMessage) String() string {
	size := fmt.Sprintf("%d", v.Version.Size)
	if v.showHumanized {
		size = strutil.HumanizeBytes(v.Version.Size)
	}

	var marks string
	if v.Version.IsLatest {
		marks += " (latest)"
	}
	if v.Version.IsDeleteMarker {
		marks += " (delete marker)"
	}
	return fmt.Sprintf("%19s %12s  %s%s",
		v.Version.ModTime.Format(dateFormat), size, v.Version.VersionID, marks)
}

// JSON returns the JSON representation of VersionMessage.
func (v VersionMessage) JSON() string {
	return strutil.JSON(v.Version)
}

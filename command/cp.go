package command

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"

	"github.com/peak/s5nav/log"
	"github.com/peak/s5nav/log/stat"
	"github.com/peak/s5nav/progressbar"
	"github.com/peak/s5nav/storage"
	"github.com/peak/s5nav/strutil"
	"github.com/peak/s5nav/transfer"
)

var copyHelpTemplate = `Name:
	{{.HelpName}} - {{.Usage}}

Usage:
	{{.HelpName}} [options] source [source...] destination

Options:
	{{range .VisibleFlags}}{{.}}
	{{end}}
Examples:
	1. Upload a file to a bucket
		 > s5nav {{.HelpName}} report.csv s3://bucket/

	2. Download a prefix into an existing directory
		 > s5nav {{.HelpName}} s3://bucket/logs/ /tmp/

	3. Copy a file under a new name, overwriting silently
		 > s5nav {{.HelpName}} --overwrite-all s3://bucket/a.txt s3://bucket/b.txt

	4. Download an older version of an object
		 > s5nav {{.HelpName}} --version-id VERSION s3://bucket/a.txt a.txt
`

func transferFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "overwrite-all",
			Usage: "overwrite every existing destination without asking",
		},
		&cli.BoolFlag{
			Name:  "skip-all",
			Usage: "keep every existing destination without asking",
		},
		&cli.StringFlag{
			Name:  "version-id",
			Usage: "use the specified version of the source object",
		},
		&cli.BoolFlag{
			Name:  "show-progress",
			Usage: "show a progress bar",
		},
	}
}

func NewCopyCommand() *cli.Command {
	return &cli.Command{
		Name:               "cp",
		HelpName:           "cp",
		Usage:              "copy files, objects, directories and prefixes",
		CustomHelpTemplate: copyHelpTemplate,
		Flags:              transferFlags(),
		Before: func(c *cli.Context) error {
			err := validateTransferCommand(c)
			if err != nil {
				printError(commandFromContext(c), c.Command.Name, err)
			}
			return err
		},
		Action: func(c *cli.Context) (err error) {
			defer stat.Collect(c.Command.FullName(), time.Now(), &err)()
			return NewTransfer(c, false).Run(c.Context)
		},
	}
}

// Transfer holds copy and move operation flags and states.
type Transfer struct {
	op          string
	fullCommand string
	sources     []string
	dst         string
	move        bool

	// flags
	overwriteAll bool
	skipAll      bool
	versionID    string
	showProgress bool

	in      io.Reader
	out     io.Writer
	session *session
}

// NewTransfer creates a Transfer from the cli context.
func NewTransfer(c *cli.Context, move bool) Transfer {
	args := c.Args().Slice()
	return Transfer{
		op:          c.Command.Name,
		fullCommand: commandFromContext(c),
		sources:     args[:len(args)-1],
		dst:         args[len(args)-1],
		move:        move,

		overwriteAll: c.Bool("overwrite-all"),
		skipAll:      c.Bool("skip-all"),
		versionID:    c.String("version-id"),
		showProgress: c.Bool("show-progress"),

		in:      c.App.Reader,
		out:     c.App.ErrWriter,
		session: sessionFrom(c),
	}
}

// Run plans the sources and transfers them to the destination.
func (t Transfer) Run(ctx context.Context) error {
	srcPanel, selection, err := selectionOf(ctx, t.session, t.sources, t.versionID)
	if err != nil {
		printError(t.fullCommand, t.op, err)
		return err
	}

	dstRef, err := storage.ParseRef(t.dst)
	if err != nil {
		printError(t.fullCommand, t.op, err)
		return err
	}
	dstPanel, target, err := destinationOf(t.session, dstRef, len(selection))
	if err != nil {
		printError(t.fullCommand, t.op, err)
		return err
	}

	job := transfer.Plan(ctx, srcPanel, selection)
	if job.PlanErr != nil {
		printError(t.fullCommand, t.op, job.PlanErr)
	}
	log.Info(PlanMessage{
		Operation: t.op,
		Files:     job.TotalFiles(),
		Bytes:     job.TotalBytes,
	})

	h := newTerminalHandler(t.in, t.out, t.progressBar())
	switch {
	case t.overwriteAll:
		d := transfer.OverwriteAll
		h.preset = &d
	case t.skipAll:
		d := transfer.SkipAll
		h.preset = &d
	}

	opts := transfer.Options{Move: t.move, Target: target}
	summary := runJob(ctx, t.session, h, func(e *transfer.Engine) *transfer.Handle {
		return e.Start(ctx, job, dstPanel, opts)
	})
	return report(summary)
}

func (t Transfer) progressBar() progressbar.ProgressBar {
	if t.showProgress {
		return progressbar.NewCommandProgressBar(t.out)
	}
	return &progressbar.NoOpProgressBar{}
}

// report logs the summary line and returns the errors of the job. Leaf
// failures were logged by the engine as they happened.
func report(summary transfer.Summary) error {
	log.Info(summary.Message())

	var merr *multierror.Error
	if summary.PlanErr != nil {
		merr = multierror.Append(merr, summary.PlanErr)
	}
	if summary.Err != nil {
		merr = multierror.Append(merr, summary.Err)
	}
	if err := merr.ErrorOrNil(); err != nil {
		return err
	}
	if summary.Cancelled {
		return context.Canceled
	}
	return nil
}

func validateTransferCommand(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return fmt.Errorf("expected at least a source and a destination argument")
	}
	if c.Bool("overwrite-all") && c.Bool("skip-all") {
		return fmt.Errorf("--overwrite-all and --skip-all cannot be used together")
	}

	if c.IsSet("version-id") {
		if c.Args().Len() != 2 {
			return fmt.Errorf("--version-id requires a single source")
		}
		src, err := storage.ParseRef(c.Args().First())
		if err != nil {
			return err
		}
		if !src.IsRemote() || src.IsBucket() || src.IsPrefix() {
			return fmt.Errorf("--version-id requires a remote object as source")
		}
	}
	return nil
}

// PlanMessage reports the totals of a planned job.
type PlanMessage struct {
	Operation string `json:"operation"`
	Files     int64  `json:"files"`
	Bytes     int64  `json:"bytes"`
}

func (p PlanMessage) String() string {
	return fmt.Sprintf("%v %d files, %v", p.Operation, p.Files, strutil.HumanizeBytes(p.Bytes))
}

func (p PlanMessage) JSON() string {
	return strutil.JSON(p)
}

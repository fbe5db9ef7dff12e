package command

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/peak/s5nav/log"
	"github.com/peak/s5nav/log/stat"
	"github.com/peak/s5nav/progressbar"
	"github.com/peak/s5nav/transfer"
)

var deleteHelpTemplate = `Name:
	{{.HelpName}} - {{.Usage}}

Usage:
	{{.HelpName}} [options] argument [argument...]

Options:
	{{range .VisibleFlags}}{{.}}
	{{end}}
Examples:
	1. Delete an object
		 > s5nav {{.HelpName}} s3://bucket/prefix/object.gz

	2. Delete a prefix and everything below it
		 > s5nav {{.HelpName}} s3://bucket/prefix/

	3. Delete a local directory and a local file
		 > s5nav {{.HelpName}} dir file.txt
`

func NewDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:               "rm",
		HelpName:           "rm",
		Usage:              "remove files, objects, directories, prefixes and buckets",
		CustomHelpTemplate: deleteHelpTemplate,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "show-progress",
				Usage: "show a progress bar",
			},
		},
		Before: func(c *cli.Context) error {
			err := validateRMCommand(c)
			if err != nil {
				printError(commandFromContext(c), c.Command.Name, err)
			}
			return err
		},
		Action: func(c *cli.Context) (err error) {
			defer stat.Collect(c.Command.FullName(), time.Now(), &err)()

			return Delete{
				src:          c.Args().Slice(),
				op:           c.Command.Name,
				fullCommand:  commandFromContext(c),
				showProgress: c.Bool("show-progress"),
				out:          c.App.ErrWriter,
				session:      sessionFrom(c),
			}.Run(c.Context)
		},
	}
}

// Delete holds delete operation flags and states.
type Delete struct {
	src         []string
	op          string
	fullCommand string

	// flags
	showProgress bool

	out     io.Writer
	session *session
}

// Run removes every given entry with everything below it.
func (d Delete) Run(ctx context.Context) error {
	panel, selection, err := selectionOf(ctx, d.session, d.src, "")
	if err != nil {
		printError(d.fullCommand, d.op, err)
		return err
	}

	job := transfer.Plan(ctx, panel, selection)
	if job.PlanErr != nil {
		printError(d.fullCommand, d.op, job.PlanErr)
	}
	log.Info(PlanMessage{
		Operation: d.op,
		Files:     job.TotalFiles(),
		Bytes:     job.TotalBytes,
	})

	var bar progressbar.ProgressBar = &progressbar.NoOpProgressBar{}
	if d.showProgress {
		bar = progressbar.NewCommandProgressBar(d.out)
	}

	// removal never conflicts; nothing is read from the terminal
	h := newTerminalHandler(eofReader{}, d.out, bar)
	summary := runJob(ctx, d.session, h, func(e *transfer.Engine) *transfer.Handle {
		return e.StartRemove(ctx, job)
	})
	return report(summary)
}

func validateRMCommand(c *cli.Context) error {
	if !c.Args().Present() {
		return fmt.Errorf("expected at least 1 object to remove")
	}
	return nil
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

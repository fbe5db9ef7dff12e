package command

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/peak/s5nav/log/stat"
)

var moveHelpTemplate = `Name:
	{{.HelpName}} - {{.Usage}}

Usage:
	{{.HelpName}} [options] source [source...] destination

Options:
	{{range .VisibleFlags}}{{.}}
	{{end}}
Examples:
	1. Move a directory into a bucket
		 > s5nav {{.HelpName}} photos s3://bucket/

	2. Move an object to another bucket, keeping existing objects
		 > s5nav {{.HelpName}} --skip-all s3://bucket/a.txt s3://archive/
`

func NewMoveCommand() *cli.Command {
	return &cli.Command{
		Name:               "mv",
		HelpName:           "mv",
		Usage:              "move files, objects, directories and prefixes",
		CustomHelpTemplate: moveHelpTemplate,
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

			// delete source files after every successful transfer
			return NewTransfer(c, true).Run(c.Context)
		},
	}
}

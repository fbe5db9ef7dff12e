package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/peak/s5nav/version"
)

func NewVersionCommand() *cli.Command {
	return &cli.Command{
		Name:     "version",
		HelpName: "version",
		Usage:    "print version",
		Action: func(c *cli.Context) error {
			fmt.Fprintln(c.App.Writer, version.GetHumanVersion())
			return nil
		},
	}
}

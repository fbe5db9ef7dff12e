package command

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

// commandFromContext returns the command as it was typed, with the flags of
// the command in their canonical form.
func commandFromContext(c *cli.Context) string {
	cmd := c.Command.FullName()

	for _, f := range c.Command.Flags {
		flagname := f.Names()[0]
		if !c.IsSet(flagname) {
			continue
		}
		cmd = fmt.Sprintf("%s --%s=%v", cmd, flagname, c.Value(flagname))
	}

	if c.Args().Len() > 0 {
		cmd = fmt.Sprintf("%v %v", cmd, strings.Join(c.Args().Slice(), " "))
	}

	return cmd
}

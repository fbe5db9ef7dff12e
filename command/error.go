package command

import (
	"strings"

	"github.com/hashicorp/go-multierror"

	errorpkg "github.com/peak/s5nav/error"
	"github.com/peak/s5nav/log"
)

// printError is the helper function to log error messages.
func printError(command, op string, err error) {
	// dont print cancelation errors
	if errorpkg.IsCancelation(err) {
		return
	}

	// check if we have our own error type
	{
		cerr, ok := err.(*errorpkg.Error)
		if ok {
			log.Error(errorMessage(cerr))
			return
		}
	}

	// check if errors are aggregated
	{
		merr, ok := err.(*multierror.Error)
		if ok {
			for _, err := range merr.Errors {
				if customErr, ok := err.(*errorpkg.Error); ok {
					log.Error(errorMessage(customErr))
					continue
				}

				log.Error(log.ErrorMessage{
					Err:       cleanupError(err),
					Command:   command,
					Operation: op,
				})
			}
			return
		}
	}

	// we don't know the exact error type. log the error as is.
	log.Error(log.ErrorMessage{
		Err:       cleanupError(err),
		Command:   command,
		Operation: op,
	})
}

func errorMessage(err *errorpkg.Error) log.ErrorMessage {
	return log.ErrorMessage{
		Err:       cleanupError(err.Err),
		Command:   err.FullCommand(),
		Operation: err.Op,
	}
}

// cleanupError converts multiline messages into
// a single line.
func cleanupError(err error) string {
	s := strings.Replace(err.Error(), "\n", " ", -1)
	s = strings.Replace(s, "\t", " ", -1)
	s = strings.Replace(s, "  ", " ", -1)
	s = strings.TrimSpace(s)
	return s
}

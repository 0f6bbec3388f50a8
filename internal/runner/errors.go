package runner

import (
	"errors"
	"os/exec"
)

var errEmptyArgv = errors.New("empty argument vector")

func asExitError(err error, target **exec.ExitError) bool {
	return errors.As(err, target)
}

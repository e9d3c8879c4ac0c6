package module

import (
	"fmt"
	"regexp"

	"github.com/artpar/apcore/apcerrors"
)

var idPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)*$`)

func errInvalid(format string, args ...any) error {
	return apcerrors.InvalidInput(fmt.Sprintf(format, args...))
}

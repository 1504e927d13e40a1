package command

import (
	"errors"
	"fmt"
)

var errUsage = errors.New("invalid arguments")

func errUnknown(name string) error {
	return fmt.Errorf("unknown command: /%s", name)
}

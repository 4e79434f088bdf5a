package util

import (
	"fmt"

	"github.com/pkg/errors"
)

// CatchErrs runs fn and converts any panic raised inside it (go-ble panics on some hci failures) into an error
func CatchErrs(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = errors.Wrap(e, "recovered panic")
				return
			}
			err = errors.New(fmt.Sprintf("recovered panic: %v", r))
		}
	}()
	return fn()
}

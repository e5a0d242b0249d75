//go:build !linux

package blockdev

import (
	"errors"
)

var errUnsupportedPlatform = errors.New("block device size is only available on linux")

func deviceSize(_ string) (int64, error) {
	return 0, errUnsupportedPlatform
}

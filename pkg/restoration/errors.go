package restoration

import (
	"errors"
	"fmt"

	"imrestore/internal/models"
)

var (
	ErrInvalidArgument          = errors.New("restoration: invalid argument")
	ErrUnsupportedConfiguration = errors.New("restoration: unsupported configuration")
	ErrNotImplemented           = errors.New("restoration: not implemented")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func checkImage(img *models.Image) error {
	if img == nil || img.Size() == 0 || img.NDim() == 0 {
		return invalidf("empty image")
	}
	return nil
}

//go:build !windows

package proc

import "github.com/textgrab/textgrab/internal/model"

func targetBits(pid uint32) (model.Bits, error) {
	return model.BitsUnknown, ErrUnsupported
}

// List is unavailable off Windows; capture only targets Windows processes.
func List() ([]model.Process, error) {
	return nil, ErrUnsupported
}

// FindByName is unavailable off Windows.
func FindByName(name string) ([]model.Process, error) {
	return nil, ErrUnsupported
}

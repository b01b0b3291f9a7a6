//go:build !linux

package device

// GPIOCDev is not available on non-Linux platforms.
type GPIOCDev struct{}

func NewGPIOCDev(string) (*GPIOCDev, error) {
	return nil, ErrUnsupported
}

func (*GPIOCDev) Set(int, bool) error { return ErrUnsupported }

func (*GPIOCDev) Close(bool) error { return nil }

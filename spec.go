package serial

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultBaudRate is used when a device specification carries no speed.
const DefaultBaudRate = 115200

// Spec is a parsed device specification of the form "path[,baud]".
type Spec struct {
	Path     string
	BaudRate int
}

// ParseSpec parses "path" or "path,baud". A missing or empty baud yields
// DefaultBaudRate. The speed is not checked against the supported set here;
// see SupportedBaudRate.
func ParseSpec(s string) (Spec, error) {
	path, baud, found := strings.Cut(s, ",")
	if path == "" {
		return Spec{}, fmt.Errorf("%q: %w", s, ErrEmptyPath)
	}

	spec := Spec{
		Path:     strings.Clone(path),
		BaudRate: DefaultBaudRate,
	}
	if !found || baud == "" {
		return spec, nil
	}

	rate, err := strconv.Atoi(baud)
	if err != nil || rate <= 0 {
		return Spec{}, fmt.Errorf("%q: %w", s, ErrInvalidBaud)
	}
	spec.BaudRate = rate
	return spec, nil
}

func (s Spec) String() string {
	return s.Path + "," + strconv.Itoa(s.BaudRate)
}

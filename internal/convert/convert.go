// Package convert translates between the remote storage markup and the local
// markdown files. Converters are pure and safe for concurrent use.
package convert

import "fmt"

// Converter translates document bodies in both directions.
type Converter interface {
	ToLocal(remote string) string
	ToRemote(local string) string
}

const (
	NamePassthrough = "passthrough"
	NameStorage     = "storage"
)

// Passthrough stores bodies unchanged on both sides.
type Passthrough struct{}

func (Passthrough) ToLocal(remote string) string { return remote }
func (Passthrough) ToRemote(local string) string { return local }

// ByName returns the converter registered under name.
func ByName(name string) (Converter, error) {
	switch name {
	case NamePassthrough:
		return Passthrough{}, nil
	case NameStorage, "":
		return StorageMarkdown{}, nil
	}
	return nil, fmt.Errorf("unknown converter %q", name)
}

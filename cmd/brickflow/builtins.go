package main

import (
	"github.com/brickflow/brickflow/brick"
	"github.com/brickflow/brickflow/setting"
)

// registerBuiltins installs the brick registrations the service ships
// with. Embedding applications register their own transform bricks; the
// service itself only needs content carriers so stored pipes can be
// rebuilt and validated.
func registerBuiltins(registry *brick.Registry) error {
	builtins := []*brick.Registration{
		{
			Name:        "text",
			Kind:        brick.KindViewer,
			Description: "Plain text content",
			Version:     Version,
			Settings: map[string]setting.Spec{
				"content": {Type: "string", Default: ""},
			},
		},
		{
			Name:        "bytes",
			Kind:        brick.KindViewer,
			Description: "Hex-encoded byte content",
			Version:     Version,
			Settings: map[string]setting.Spec{
				"content": {Type: "string", Default: ""},
			},
		},
	}

	for _, registration := range builtins {
		if err := registry.RegisterFactory(registration); err != nil {
			return err
		}
	}
	return nil
}

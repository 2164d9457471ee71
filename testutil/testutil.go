// Package testutil provides shared fixtures for Brickflow tests: a stock
// brick registry, ready-made pipes, and recording doubles for the delegate
// contracts.
package testutil

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/brickflow/brickflow/brick"
	"github.com/brickflow/brickflow/pipe"
	"github.com/brickflow/brickflow/setting"
)

func intPtr(v int) *int { return &v }

// TestRegistry returns a registry holding the two stock test bricks: a
// "text" viewer with a content setting and a "caesar" encoder with shift
// and preserveCase settings.
func TestRegistry() (*brick.Registry, error) {
	r := brick.NewRegistry()

	if err := r.RegisterFactory(&brick.Registration{
		Name:        "text",
		Kind:        brick.KindViewer,
		Description: "Plain text viewer fixture",
		Settings: map[string]setting.Spec{
			"content": {Type: "string", Default: ""},
		},
	}); err != nil {
		return nil, fmt.Errorf("register text viewer: %w", err)
	}

	if err := r.RegisterFactory(&brick.Registration{
		Name:        "caesar",
		Kind:        brick.KindEncoder,
		Description: "Shift cipher encoder fixture",
		Settings: map[string]setting.Spec{
			"shift":        {Type: "int", Default: 3, Minimum: intPtr(0), Maximum: intPtr(25)},
			"preserveCase": {Type: "bool", Default: true},
		},
	}); err != nil {
		return nil, fmt.Errorf("register caesar encoder: %w", err)
	}

	return r, nil
}

// TestPipe builds a two-brick viewer/encoder pipe from the stock registry
func TestPipe(title string) (*pipe.Pipe, *brick.Registry, error) {
	registry, err := TestRegistry()
	if err != nil {
		return nil, nil, err
	}

	viewer, err := registry.New("text")
	if err != nil {
		return nil, nil, err
	}
	encoder, err := registry.New("caesar")
	if err != nil {
		return nil, nil, err
	}

	p := pipe.New(pipe.WithTitle(title))
	p.AddBricks(viewer, encoder)
	return p, registry, nil
}

// TestPipeJSON returns a serialized test pipe as JSON bytes
func TestPipeJSON(title string) ([]byte, error) {
	p, _, err := TestPipe(title)
	if err != nil {
		return nil, err
	}
	rec, err := p.Serialize()
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

// SeededRand returns a deterministic random source for randomize tests
func SeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// RecordingPropagator captures propagation requests issued by a pipe
type RecordingPropagator struct {
	Contents []any
	Reruns   []brick.Brick
}

// PropagateContent implements pipe.Propagator
func (r *RecordingPropagator) PropagateContent(_ *pipe.Pipe, _ brick.Brick, content any) {
	r.Contents = append(r.Contents, content)
}

// RerunAfterSettingChange implements pipe.Propagator
func (r *RecordingPropagator) RerunAfterSettingChange(_ *pipe.Pipe, source brick.Brick) {
	r.Reruns = append(r.Reruns, source)
}

// RecordingDelegate captures setting change notifications
type RecordingDelegate struct {
	Calls  int
	Last   any
	LastBy *setting.Setting
}

// SettingValueDidChange implements setting.Delegate
func (d *RecordingDelegate) SettingValueDidChange(s *setting.Setting, value any) {
	d.Calls++
	d.Last = value
	d.LastBy = s
}

package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// Motion effects applied as a continuous transform over a scene's duration.
const (
	MotionZoomIn   = "zoom-in"
	MotionZoomOut  = "zoom-out"
	MotionPanLeft  = "pan-left"
	MotionPanRight = "pan-right"
	MotionPanUp    = "pan-up"
	MotionPanDown  = "pan-down"
)

// MotionCycle is the order in which default motion effects are assigned to
// scenes so consecutive scenes never repeat the same movement.
var MotionCycle = []string{
	MotionZoomIn, MotionPanLeft, MotionZoomOut, MotionPanRight, MotionPanUp, MotionPanDown,
}

// Transition effects applied at a scene's trailing edge.
const (
	TransitionNone     = "none"
	TransitionFade     = "fade"
	TransitionDissolve = "dissolve"
	TransitionWipeL    = "wipe-left"
	TransitionWipeR    = "wipe-right"
	TransitionWipeU    = "wipe-up"
	TransitionWipeD    = "wipe-down"
)

// Manifest describes a renderable video. Once a project has been rendered the
// manifest is treated as immutable; re-rendering the same manifest with the
// same export quality yields the same duration and chapter boundaries.
type Manifest struct {
	FPS           int     `json:"fps"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	TransitionSec float64 `json:"transitionSec"`
	Scenes        []Scene `json:"scenes"`
}

// Scene is one segment of the video. Asset references are opaque paths; their
// storage lifecycle belongs to an external collaborator.
type Scene struct {
	ID          string  `json:"id"`
	Text        string  `json:"text"`
	AudioPath   string  `json:"audioPath,omitempty"`
	ImagePath   string  `json:"imagePath,omitempty"`
	DurationSec float64 `json:"durationSec"`
	Motion      string  `json:"motion,omitempty"`
	Transition  string  `json:"transition,omitempty"`
}

// Renderable reports whether the scene carries at least one asset. A scene
// with neither audio nor image fails the render stage's completeness check.
func (s Scene) Renderable() bool {
	return s.AudioPath != "" || s.ImagePath != ""
}

// SceneByID returns the index of the scene with the given id, or -1.
func (m *Manifest) SceneByID(sceneID string) int {
	for i := range m.Scenes {
		if m.Scenes[i].ID == sceneID {
			return i
		}
	}
	return -1
}

type Chapter struct {
	Title    string   `json:"title"`
	StartSec float64  `json:"startSec"`
	EndSec   *float64 `json:"endSec,omitempty"`
}

type ChapterList []Chapter

// JSON column plumbing, same shape for Manifest and ChapterList.

func (m *Manifest) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Manifest) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New(fmt.Sprint("failed to unmarshal manifest column:", value))
	}
	return json.Unmarshal(bytes, m)
}

func (c ChapterList) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

func (c *ChapterList) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New(fmt.Sprint("failed to unmarshal chapters column:", value))
	}
	return json.Unmarshal(bytes, c)
}

// Clone returns a deep copy. Manifests are owned by exactly one project and
// must never be shared across projects.
func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}
	out := *m
	out.Scenes = make([]Scene, len(m.Scenes))
	copy(out.Scenes, m.Scenes)
	return &out
}

package render

import (
	"fmt"
	"strings"

	"StoryReel-server/models"
)

// Timeline derives chapter boundaries and the total output duration from a
// manifest. Transitions blend the trailing K seconds of a scene into the
// next one, so each join removes its overlap from the running total. The
// computation is pure: the same manifest always yields the same numbers,
// which is the determinism contract of the render stage.
func Timeline(m *models.Manifest) (models.ChapterList, float64) {
	if len(m.Scenes) == 0 {
		return nil, 0
	}

	starts := make([]float64, len(m.Scenes))
	starts[0] = 0
	for i := 1; i < len(m.Scenes); i++ {
		prev := m.Scenes[i-1]
		starts[i] = starts[i-1] + prev.DurationSec - transitionOverlap(m, i-1)
	}
	total := starts[len(starts)-1] + m.Scenes[len(m.Scenes)-1].DurationSec

	chapters := make(models.ChapterList, len(m.Scenes))
	for i, scene := range m.Scenes {
		end := total
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		endCopy := end
		chapters[i] = models.Chapter{
			Title:    chapterTitle(i, scene.Text),
			StartSec: starts[i],
			EndSec:   &endCopy,
		}
	}
	return chapters, total
}

// transitionOverlap returns the blend duration of the join after scene i,
// capped so it never exceeds either adjacent scene's duration.
func transitionOverlap(m *models.Manifest, i int) float64 {
	if i+1 >= len(m.Scenes) {
		return 0
	}
	scene := m.Scenes[i]
	if scene.Transition == models.TransitionNone || scene.Transition == "" {
		return 0
	}
	k := m.TransitionSec
	if scene.DurationSec < k {
		k = scene.DurationSec
	}
	if m.Scenes[i+1].DurationSec < k {
		k = m.Scenes[i+1].DurationSec
	}
	return k
}

func chapterTitle(i int, text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return fmt.Sprintf("Scene %d", i+1)
	}
	if len(words) > 6 {
		words = words[:6]
	}
	return strings.Join(words, " ")
}

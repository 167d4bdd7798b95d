package pipeline

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Segment is one scene-to-be: narration text plus its estimated duration.
type Segment struct {
	Text        string
	DurationSec float64
}

// SegmentScript splits a script into ordered scene texts on sentence
// boundaries and distributes the target duration proportionally to text
// length, subject to a per-scene floor. The function is pure: the same
// script and target always produce the same segments, which is what makes
// re-renders reproducible.
func SegmentScript(script string, targetSeconds, minSceneSeconds float64) []Segment {
	sentences := splitSentences(script)
	if len(sentences) == 0 {
		return nil
	}

	totalLen := 0
	for _, s := range sentences {
		totalLen += utf8.RuneCountInString(s)
	}

	segments := make([]Segment, 0, len(sentences))
	for _, s := range sentences {
		share := float64(utf8.RuneCountInString(s)) / float64(totalLen)
		dur := targetSeconds * share
		if dur < minSceneSeconds {
			dur = minSceneSeconds
		}
		// round to 10ms so repeated runs agree bit for bit
		dur = math.Round(dur*100) / 100
		segments = append(segments, Segment{Text: s, DurationSec: dur})
	}
	return segments
}

// splitSentences cuts on sentence terminators and paragraph breaks, keeping
// the terminator attached to its sentence.
func splitSentences(script string) []string {
	var out []string
	var b strings.Builder

	flush := func() {
		s := strings.TrimSpace(b.String())
		b.Reset()
		if s != "" {
			out = append(out, s)
		}
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			// blank line = paragraph boundary
			if i+1 < len(runes) && runes[i+1] == '\n' {
				flush()
				i++
				continue
			}
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '。' || r == '！' || r == '？' {
			// swallow runs of terminators ("?!", "...")
			for i+1 < len(runes) && isTerminator(runes[i+1]) {
				i++
				b.WriteRune(runes[i])
			}
			flush()
		}
	}
	flush()
	return out
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

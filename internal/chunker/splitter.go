package chunker

import (
	"fmt"
	"strings"
)

// boundaryScanWindow bounds how far Split looks backward from a cut point for
// a sentence-terminal character before giving up and cutting mid-sentence.
const boundaryScanWindow = 100

// Splitter cuts cleaned text into overlapping passages of roughly ChunkSize
// characters. It only splits; minimum-length filtering is the caller's policy.
type Splitter struct {
	chunkSize int
	overlap   int
}

func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("overlap must be in [0, chunk size), got %d", overlap)
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}, nil
}

// Split walks the text left to right taking up to chunkSize characters per
// step. When a cut would land mid-sentence it snaps back to the nearest
// sentence end within boundaryScanWindow characters. The cursor advances by
// chunkSize-overlap so adjacent chunks share their trailing/leading overlap.
// Splitting stops once the remaining tail is shorter than the overlap, which
// would otherwise produce an endless run of near-duplicate fragments.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 || strings.TrimSpace(text) == "" {
		return nil
	}
	if len(runes) <= s.chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0

	for start < len(runes) {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			// Accept a snap only if it still moves the cursor forward,
			// otherwise a sparse stretch of terminals would stall the walk.
			if snap := s.findBoundary(runes, start, end); snap > start+s.overlap {
				end = snap
			}
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		start = end - s.overlap
		if start >= len(runes)-s.overlap {
			break
		}
	}

	return chunks
}

// findBoundary scans backward from end for a sentence-terminal character
// followed by whitespace or end-of-text and returns the position just past
// it, or -1 when no boundary falls inside the window.
func (s *Splitter) findBoundary(runes []rune, start, end int) int {
	searchStart := end - boundaryScanWindow
	if searchStart < start {
		searchStart = start
	}

	for i := end - 1; i >= searchStart; i-- {
		if !isSentenceEnd(runes[i]) {
			continue
		}
		if i+1 == len(runes) || isBoundarySpace(runes[i+1]) {
			return i + 1
		}
	}
	return -1
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '\n'
}

func isBoundarySpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t'
}

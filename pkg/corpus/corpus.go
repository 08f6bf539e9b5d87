// Package corpus turns a directory of dialogue text files into the ordered
// sequence of units that the ingestion pipeline embeds and indexes.
//
// Two line conventions are supported, selected by Mode and never guessed:
// flat files hold one statement per line (optionally prefixed by a speaker
// and a colon), paired files hold labeled question and answer lines.
package corpus

import (
	"errors"
	"fmt"
)

// Mode selects the line convention used to parse the corpus.
type Mode string

const (
	// ModeFlat emits one unit per non-empty line.
	ModeFlat Mode = "flat"

	// ModePaired emits one unit per question/answer label pair.
	ModePaired Mode = "paired"
)

var (
	// ErrCorpus is returned when the corpus directory or one of its files
	// cannot be read.
	ErrCorpus = errors.New("corpus unreadable")

	// ErrNotText is returned when a corpus file is not valid UTF-8 text.
	ErrNotText = errors.New("corpus file is not UTF-8 text")

	// ErrUnknownMode is returned for a Mode other than flat or paired.
	ErrUnknownMode = errors.New("unknown corpus mode")
)

// Unit is one retrievable piece of text. Flat units carry Text, paired
// units carry Question and Answer.
type Unit struct {
	// ID is the emission index within one pass over the corpus, starting at 0.
	ID int

	Text     string
	Question string
	Answer   string
}

// IsPair reports whether u came from a question/answer pair.
func (u Unit) IsPair() bool {
	return u.Question != ""
}

// EmbedText is the text whose embedding represents u in the index:
// the statement itself, or the question of a pair.
func (u Unit) EmbedText() string {
	if u.IsPair() {
		return u.Question
	}
	return u.Text
}

// Content is the document text returned to callers when u is retrieved:
// the statement itself, or the answer of a pair.
func (u Unit) Content() string {
	if u.IsPair() {
		return u.Answer
	}
	return u.Text
}

// Stats counts what a pass over the corpus did.
type Stats struct {
	Files            int `json:"files"`
	Lines            int `json:"lines"`
	Units            int `json:"units"`
	SkippedLines     int `json:"skipped_lines"`
	DroppedQuestions int `json:"dropped_questions"`
}

func (s Stats) String() string {
	return fmt.Sprintf("files=%d lines=%d units=%d skipped=%d dropped_questions=%d",
		s.Files, s.Lines, s.Units, s.SkippedLines, s.DroppedQuestions)
}

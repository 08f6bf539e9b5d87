package corpus

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"strings"
	"unicode/utf8"
)

const (
	// speakerDelimiter separates a speaker from the line content in flat
	// mode. A fullwidth colon does not split the line.
	speakerDelimiter = ":"

	// labelDelimiters may follow a question or answer label in paired mode.
	labelDelimiters = ":："
)

var (
	questionLabels = []string{"問題", "問", "Question", "Q"}
	answerLabels   = []string{"回答", "答", "Answer", "A"}
)

// Parser splits one corpus file into units. Units yielded by a Parser carry
// no ID; the Reader numbers them across the whole corpus.
type Parser interface {
	Mode() Mode

	// Parse yields the units found in r. Per-file state starts empty on each
	// call. A non-nil error is yielded at most once and ends the sequence.
	Parse(r io.Reader, stats *Stats) iter.Seq2[Unit, error]
}

// NewParser returns the Parser for mode.
func NewParser(mode Mode) (Parser, error) {
	switch mode {
	case ModeFlat:
		return FlatParser{}, nil
	case ModePaired:
		return PairedParser{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// FlatParser emits the content of every non-empty line.
type FlatParser struct{}

func (FlatParser) Mode() Mode { return ModeFlat }

func (FlatParser) Parse(r io.Reader, stats *Stats) iter.Seq2[Unit, error] {
	return func(yield func(Unit, error) bool) {
		for line, err := range lines(r, stats) {
			if err != nil {
				yield(Unit{}, err)
				return
			}

			text := line
			if _, content, ok := splitDelimiter(line); ok && content != "" {
				text = content
			}

			if !yield(Unit{Text: text}, nil) {
				return
			}
		}
	}
}

// PairedParser emits a unit each time an answer label follows a question
// label. Unlabeled lines and answers with no pending question are skipped,
// and a question still waiting for its answer at end of file is dropped.
type PairedParser struct{}

func (PairedParser) Mode() Mode { return ModePaired }

func (PairedParser) Parse(r io.Reader, stats *Stats) iter.Seq2[Unit, error] {
	return func(yield func(Unit, error) bool) {
		var question, answer string

		for line, err := range lines(r, stats) {
			if err != nil {
				yield(Unit{}, err)
				return
			}

			if rest, ok := cutLabel(line, questionLabels); ok {
				question = rest
			} else if rest, ok := cutLabel(line, answerLabels); ok && question != "" {
				answer = rest
			} else {
				// unlabeled, or an answer with no question waiting for it
				stats.SkippedLines++
				continue
			}

			if question != "" && answer != "" {
				u := Unit{Question: question, Answer: answer}
				question, answer = "", ""
				if !yield(u, nil) {
					return
				}
			}
		}

		if question != "" {
			stats.DroppedQuestions++
		}
	}
}

// lines yields the trimmed, non-empty lines of r.
func lines(r io.Reader, stats *Stats) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			raw := scanner.Bytes()
			if !utf8.Valid(raw) {
				yield("", ErrNotText)
				return
			}

			stats.Lines++
			line := strings.TrimSpace(string(raw))
			if line == "" {
				continue
			}
			if !yield(line, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("%w: %w", ErrCorpus, err))
		}
	}
}

// splitDelimiter splits line at its first speaker delimiter.
func splitDelimiter(line string) (prefix, content string, ok bool) {
	prefix, content, ok = strings.Cut(line, speakerDelimiter)
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(prefix), strings.TrimSpace(content), true
}

// cutLabel reports whether line starts with one of labels immediately
// followed by a delimiter, and returns the trimmed remainder.
func cutLabel(line string, labels []string) (string, bool) {
	for _, label := range labels {
		rest, ok := strings.CutPrefix(line, label)
		if !ok {
			continue
		}
		r, size := utf8.DecodeRuneInString(rest)
		if size == 0 || !strings.ContainsRune(labelDelimiters, r) {
			continue
		}
		return strings.TrimSpace(rest[size:]), true
	}
	return "", false
}

package corpus

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultExtensions are the file extensions read when none are configured.
var DefaultExtensions = []string{".txt"}

// Reader walks a corpus directory and parses every recognized file.
type Reader struct {
	dir        string
	extensions []string
	parser     Parser
	logger     *slog.Logger
}

// NewReader creates a Reader over dir. Files are matched case-insensitively
// against extensions; DefaultExtensions is used when extensions is empty.
func NewReader(dir string, parser Parser, extensions []string, logger *slog.Logger) *Reader {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}

	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}

	return &Reader{
		dir:        dir,
		extensions: normalized,
		parser:     parser,
		logger:     logger,
	}
}

// Dir returns the corpus directory.
func (r *Reader) Dir() string {
	return r.dir
}

// Mode returns the line convention of the underlying parser.
func (r *Reader) Mode() Mode {
	return r.parser.Mode()
}

// Units returns a lazy sequence over every unit in the corpus, in directory
// listing order (lexical by file name) and then line order. Each call starts
// a fresh pass with IDs numbered from 0. Counters for the pass accumulate in
// stats when it is non-nil.
func (r *Reader) Units(ctx context.Context, stats *Stats) iter.Seq2[Unit, error] {
	if stats == nil {
		stats = &Stats{}
	}

	return func(yield func(Unit, error) bool) {
		files, err := r.files()
		if err != nil {
			yield(Unit{}, err)
			return
		}

		id := 0
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				yield(Unit{}, err)
				return
			}

			if !r.parseFile(path, stats, &id, yield) {
				return
			}
		}
	}
}

// Collect drains one pass over the corpus.
func (r *Reader) Collect(ctx context.Context) ([]Unit, Stats, error) {
	var (
		stats Stats
		units []Unit
	)

	for u, err := range r.Units(ctx, &stats) {
		if err != nil {
			return nil, stats, err
		}
		units = append(units, u)
	}

	return units, stats, nil
}

func (r *Reader) files() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrCorpus, r.dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !slices.Contains(r.extensions, strings.ToLower(filepath.Ext(entry.Name()))) {
			continue
		}
		files = append(files, filepath.Join(r.dir, entry.Name()))
	}

	return files, nil
}

// parseFile yields the units of one file and reports whether the caller
// should keep going.
func (r *Reader) parseFile(path string, stats *Stats, id *int, yield func(Unit, error) bool) bool {
	f, err := os.Open(path)
	if err != nil {
		yield(Unit{}, fmt.Errorf("%w: opening %s: %w", ErrCorpus, path, err))
		return false
	}
	defer f.Close()

	stats.Files++
	dropped := stats.DroppedQuestions

	r.logger.Debug("reading corpus file", "path", path, "mode", r.parser.Mode())

	for u, err := range r.parser.Parse(f, stats) {
		if err != nil {
			yield(Unit{}, fmt.Errorf("%s: %w", path, err))
			return false
		}

		u.ID = *id
		*id++
		stats.Units++

		if !yield(u, nil) {
			return false
		}
	}

	if stats.DroppedQuestions > dropped {
		r.logger.Debug("dropped question without answer at end of file", "path", path)
	}

	return true
}

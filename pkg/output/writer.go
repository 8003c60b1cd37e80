package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/filmlog-scraper/pkg/models"
	"github.com/Sriram-PR/filmlog-scraper/pkg/utils"
)

const (
	MoviesFileName = "movies.csv"
	StatsFileName  = "stats.json"

	GenreSeparator = ", "
	CastSeparator  = " | "
)

// Columns is the movies.csv header; order is part of the file contract
var Columns = []string{"title", "year", "director", "genre", "rating", "watch_date", "runtime", "country", "cast"}

// Writer persists a finished (records, summary) pair
type Writer interface {
	Write(records []models.MovieRecord, summary models.StatsSummary) error
}

// FileWriter writes movies.csv and stats.json into a directory.
// Each file is written to a temp file first and renamed into place.
type FileWriter struct {
	dir string
	log *logrus.Entry
}

// NewFileWriter creates a FileWriter for dir; the directory is created on first Write
func NewFileWriter(dir string, log *logrus.Entry) *FileWriter {
	return &FileWriter{dir: dir, log: log}
}

// Dir returns the output directory
func (w *FileWriter) Dir() string { return w.dir }

// Write implements the Writer interface
func (w *FileWriter) Write(records []models.MovieRecord, summary models.StatsSummary) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("%w: creating output directory %s: %w", utils.ErrFilesystem, w.dir, err)
	}

	csvBytes, err := EncodeCSV(records)
	if err != nil {
		return err
	}
	moviesPath := filepath.Join(w.dir, MoviesFileName)
	if err := writeFileAtomic(moviesPath, csvBytes); err != nil {
		return err
	}
	w.log.WithField("path", moviesPath).Infof("Saved %d movies", len(records))

	jsonBytes, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding JSON stats: %w", utils.ErrParsing, err)
	}
	statsPath := filepath.Join(w.dir, StatsFileName)
	if err := writeFileAtomic(statsPath, append(jsonBytes, '\n')); err != nil {
		return err
	}
	w.log.WithField("path", statsPath).Info("Saved statistics")
	return nil
}

// EncodeCSV renders records as movies.csv content, header included.
// Every column is present for every row, empty when unknown.
func EncodeCSV(records []models.MovieRecord) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(Columns); err != nil {
		return nil, fmt.Errorf("%w: writing CSV header: %w", utils.ErrFilesystem, err)
	}
	for _, rec := range records {
		if err := cw.Write(row(rec)); err != nil {
			return nil, fmt.Errorf("%w: writing CSV row for %q: %w", utils.ErrFilesystem, rec.Title, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("%w: flushing CSV: %w", utils.ErrFilesystem, err)
	}
	return buf.Bytes(), nil
}

func row(rec models.MovieRecord) []string {
	runtime := ""
	if rec.RuntimeMinutes > 0 {
		runtime = strconv.Itoa(rec.RuntimeMinutes)
	}
	return []string{
		rec.Title,
		rec.ReleaseYear,
		rec.Director,
		strings.Join(rec.Genres, GenreSeparator),
		rec.Rating.String(),
		rec.WatchDate,
		runtime,
		rec.Country,
		strings.Join(rec.Cast, CastSeparator),
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file for %s: %w", utils.ErrFilesystem, path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // No-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing %s: %w", utils.ErrFilesystem, path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: syncing %s: %w", utils.ErrFilesystem, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", utils.ErrFilesystem, path, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", utils.ErrFilesystem, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: renaming into %s: %w", utils.ErrFilesystem, path, err)
	}
	return nil
}

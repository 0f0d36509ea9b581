package export

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/vk-bilingual-corpus/pkg/corpus"
)

// ErrMalformedArtifact is returned for a repair file without a valid date line.
var ErrMalformedArtifact = errors.New("malformed repair artifact")

var artifactName = regexp.MustCompile(`^post(\d+)\.txt$`)

// ArtifactName returns the file name of the repair artifact for index.
func ArtifactName(index int) string {
	return fmt.Sprintf("post%d.txt", index)
}

// Artifact is a quarantined post as a hand-editable text file: a date line
// followed by the raw post text.
type Artifact struct {
	Index int
	Date  corpus.Date
	Text  string
}

// CreatedAt returns midnight of the artifact date in loc.
func (a Artifact) CreatedAt(loc *time.Location) time.Time {
	return a.Date.Time(loc)
}

func writeArtifact(path string, a Artifact, layout string) error {
	return writeFileAtomic(path, func(w *bufio.Writer) error {
		if _, err := w.WriteString(a.Date.Format(layout) + "\n"); err != nil {
			return err
		}
		_, err := w.WriteString(a.Text)
		return err
	})
}

// ParseArtifact parses the contents of one artifact file.
func ParseArtifact(data, layout string) (corpus.Date, string, error) {
	dateLine, text, _ := strings.Cut(data, "\n")
	dateLine = strings.TrimSpace(strings.TrimPrefix(dateLine, "\ufeff"))
	if dateLine == "" {
		return corpus.Date{}, "", fmt.Errorf("%w: missing date line", ErrMalformedArtifact)
	}

	date, err := corpus.ParseDate(layout, dateLine)
	if err != nil {
		return corpus.Date{}, "", fmt.Errorf("%w: %v", ErrMalformedArtifact, err)
	}
	return date, text, nil
}

// ReadArtifacts reads every post<N>.txt in dir, ordered by index. Other files
// are ignored. A missing dir yields no artifacts.
func ReadArtifacts(dir, layout string) ([]Artifact, error) {
	if layout == "" {
		layout = corpus.DefaultDateLayout
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read artifact dir: %w", err)
	}

	var artifacts []Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := artifactName.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		index, err := strconv.Atoi(m[1])
		if err != nil || index <= 0 {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		date, text, err := ParseArtifact(string(data), layout)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		artifacts = append(artifacts, Artifact{Index: index, Date: date, Text: text})
	}

	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Index < artifacts[j].Index })
	return artifacts, nil
}

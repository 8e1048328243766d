package local

import (
	"os"
	"time"

	"snpflow/internal/pipeline"
)

// Probe answers the pipeline's filesystem questions with os.Stat.
type Probe struct{}

var _ pipeline.FSProbe = Probe{}

func (Probe) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (Probe) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (Probe) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

// Clock is the wall clock.
type Clock struct{}

var _ pipeline.Clock = Clock{}

func (Clock) Now() time.Time { return time.Now() }

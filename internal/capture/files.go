package capture

import (
	"fmt"
	"os"

	"github.com/vbonduro/screensolve/internal/domain"
)

// LoadFiles reads and prepares screenshots from disk, keeping their order.
func LoadFiles(paths []string, opts NormalizeOptions) (domain.CaptureBatch, error) {
	batch := make(domain.CaptureBatch, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		img, err := Prepare(data, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		batch = append(batch, img)
	}
	return batch, nil
}

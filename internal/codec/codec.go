// Package codec reads onboarding batches and renders onboarding results.
package codec

import (
	"fmt"
	"io"

	"netonboard/internal/domain"
)

// Importer interface for reading onboarding requests from various formats
type Importer interface {
	Parse(r io.Reader) ([]domain.OnboardingRequest, error)
	Format() string
}

// Exporter interface for rendering onboarding results to various formats
type Exporter interface {
	Export(results []*domain.OnboardingResult, w io.Writer) error
	Format() string
}

// Importers returns every importer keyed by format.
func Importers() map[string]Importer {
	out := map[string]Importer{}
	for _, i := range []Importer{NewJSONCodec(), NewYAMLCodec(), NewAnsibleCodec()} {
		out[i.Format()] = i
	}
	return out
}

// Exporters returns every exporter keyed by format.
func Exporters(color bool) map[string]Exporter {
	out := map[string]Exporter{}
	for _, e := range []Exporter{NewJSONCodec(), NewYAMLCodec(), NewAnsibleCodec(), NewTextCodec(color)} {
		out[e.Format()] = e
	}
	return out
}

// ImporterFor returns the importer for format.
func ImporterFor(format string) (Importer, error) {
	if i, ok := Importers()[format]; ok {
		return i, nil
	}
	return nil, fmt.Errorf("unknown import format %q (want one of %v)", format, sortedKeys(Importers()))
}

// ExporterFor returns the exporter for format.
func ExporterFor(format string, color bool) (Exporter, error) {
	if e, ok := Exporters(color)[format]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("unknown output format %q (want one of %v)", format, sortedKeys(Exporters(false)))
}

// validate checks every parsed request and reports the first bad entry.
func validate(reqs []domain.OnboardingRequest) ([]domain.OnboardingRequest, error) {
	for i := range reqs {
		if err := reqs[i].Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
	}
	return reqs, nil
}

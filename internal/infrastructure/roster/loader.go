package roster

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
	"github.com/sppzpp/reportcard-hub/pkg/logger"
)

//go:embed data/roster.csv
var embeddedRoster string

// Embedded returns the roster export bundled with the binary.
func Embedded() string {
	return embeddedRoster
}

// LoadOptions configures Load.
type LoadOptions struct {
	// Path overrides the embedded roster with a file on disk.
	Path string

	// Layout overrides DefaultLayout.
	Layout *Layout

	// CheckConsistency logs exams whose result column disagrees with the grade.
	CheckConsistency bool
}

// LoadReport summarizes what Load saw, for health checks and startup logs.
type LoadReport struct {
	Source          string
	Students        int
	SkippedRows     int
	InvalidGrades   int
	InvalidNumerics int
	InvalidSections int
	Conflicts       int
}

// Load validates the layout, parses the roster and builds the immutable
// student.Roster. Skipped rows are logged and do not fail the load; an
// empty result or a drifted layout does.
func Load(ctx context.Context, opts LoadOptions, log *logger.Logger) (*student.Roster, LoadReport, error) {
	log = log.With(logger.Component("roster"))

	layout := opts.Layout
	if layout == nil {
		layout = DefaultLayout()
	}
	p, err := NewParser(layout)
	if err != nil {
		return nil, LoadReport{}, err
	}

	blob, source := embeddedRoster, "embedded"
	if opts.Path != "" {
		data, err := os.ReadFile(opts.Path)
		if err != nil {
			return nil, LoadReport{}, shared.WrapError("roster", "Load", shared.ErrNotFound,
				fmt.Sprintf("read roster file %s", opts.Path), err)
		}
		blob, source = string(data), opts.Path
	}

	if err := ctx.Err(); err != nil {
		return nil, LoadReport{}, err
	}

	res := p.Parse(blob)
	report := LoadReport{
		Source:          source,
		Students:        len(res.Students),
		SkippedRows:     len(res.Errors),
		InvalidGrades:   res.Warnings.InvalidGrades,
		InvalidNumerics: res.Warnings.InvalidNumerics,
		InvalidSections: res.Warnings.InvalidSections,
	}

	for _, rowErr := range res.Errors {
		log.Warn("skipping malformed roster row",
			logger.Row(rowErr.Row),
			logger.Int("fields", rowErr.Fields),
			logger.Int("want", rowErr.Want),
		)
	}

	if opts.CheckConsistency {
		for _, s := range res.Students {
			for _, c := range s.ResultConflicts() {
				report.Conflicts++
				log.Warn("grade and result disagree",
					logger.StudentID(s.ID),
					logger.String("exam", c.Slot.Label()),
					logger.String("grade", string(c.Grade)),
					logger.String("result", string(c.Explicit)),
				)
			}
		}
	}

	r, err := student.NewRoster(res.Students)
	if err != nil {
		return nil, report, err
	}

	log.Info("roster loaded",
		logger.String("source", source),
		logger.Int("students", report.Students),
		logger.Int("skipped_rows", report.SkippedRows),
		logger.Int("invalid_grades", report.InvalidGrades),
		logger.Int("invalid_numerics", report.InvalidNumerics),
		logger.Int("invalid_sections", report.InvalidSections),
		logger.Int("conflicts", report.Conflicts),
	)
	return r, report, nil
}

// Package main печатает табель одного ученика в терминал.
//
//	reportcard -id std-3
//	reportcard -section B -name ramu -analyze
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sppzpp/reportcard-hub/config"
	"github.com/sppzpp/reportcard-hub/internal/application/command"
	"github.com/sppzpp/reportcard-hub/internal/application/query"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/external/gemini"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/persistence/memory"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/roster"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/service"
	"github.com/sppzpp/reportcard-hub/internal/interface/terminal"
	"github.com/sppzpp/reportcard-hub/pkg/logger"
)

type options struct {
	id      string
	section string
	name    string
	analyze bool
	verbose bool
}

func main() {
	var opts options
	flag.StringVar(&opts.id, "id", "", "student id, e.g. std-3")
	flag.StringVar(&opts.section, "section", "", "section A or B")
	flag.StringVar(&opts.name, "name", "", "part of the student's name (case-insensitive)")
	flag.BoolVar(&opts.analyze, "analyze", false, "include the AI analysis (needs GEMINI_API_KEY)")
	flag.BoolVar(&opts.verbose, "v", false, "log to stderr")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "reportcard: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.Nop()
	if opts.verbose {
		lo := logger.DefaultOptions()
		lo.Output = os.Stderr
		lo.Format = logger.FormatConsole
		log = logger.New(lo)
	}

	students, _, err := roster.Load(ctx, roster.LoadOptions{Path: cfg.Roster.Path}, log)
	if err != nil {
		return err
	}

	st, err := pick(ctx, students, opts)
	if err != nil {
		return err
	}

	cards := query.NewGetReportCardHandler(students, cfg.School, cfg.Features, log)
	card, err := cards.Handle(ctx, query.GetReportCardQuery{StudentID: st.ID})
	if err != nil {
		return err
	}

	presenter := terminal.NewReportCardPresenter(out)
	if _, err := io.WriteString(out, presenter.Render(card)); err != nil {
		return err
	}

	if !opts.analyze {
		return nil
	}

	// Анализ без Redis/Postgres: один запрос, хранить нечего.
	geminiCfg := gemini.DefaultClientConfig(cfg.Gemini.BaseURL, cfg.Gemini.APIKey)
	geminiCfg.Timeout = cfg.Gemini.RequestTimeout
	geminiCfg.MaxRetries = cfg.Gemini.MaxRetries
	geminiCfg.Logger = log
	client := gemini.NewClient(geminiCfg)

	prompts := service.DefaultPrompts()
	prompts.School = cfg.School.Name
	prompts.Grade = cfg.School.Grade
	prompts.Exam = cfg.School.ExamEvent()

	store := memory.NewAnalysisStore()
	analyzer := service.NewAnalysisService(service.AnalysisServiceConfig{
		Gateway: service.NewGeminiAnalysisGateway(client, cfg.Gemini.AnalysisModel, prompts),
		Repo:    store,
		Cache:   store,
		Model:   cfg.Gemini.AnalysisModel,
		Logger:  log,
	})

	res, err := command.NewAnalyzeStudentHandler(students, analyzer, cfg.Features, log).
		Handle(ctx, command.AnalyzeStudentCommand{StudentID: st.ID})
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, "\n"+presenter.RenderAnalysis(res))
	return err
}

// pick выбирает ученика по флагам: -id, затем -section/-name, иначе
// первый ученик реестра.
func pick(ctx context.Context, students *student.Roster, opts options) (*student.Student, error) {
	lookup := query.NewGetStudentHandler(students)

	switch {
	case opts.id != "":
		return lookup.ByID(ctx, opts.id)

	case opts.name != "":
		res, err := query.NewListStudentsHandler(students).Handle(ctx, query.ListStudentsQuery{
			Section: opts.section,
			Search:  opts.name,
			Limit:   2,
		})
		if err != nil {
			return nil, err
		}
		switch res.Total {
		case 0:
			return nil, fmt.Errorf("no student matches %q", opts.name)
		case 1:
		default:
			fmt.Fprintf(os.Stderr, "%d students match %q, showing the first\n", res.Total, opts.name)
		}
		return lookup.ByID(ctx, res.Students[0].ID)

	case opts.section != "":
		return lookup.FirstInSection(ctx, opts.section)
	}

	if st := lookup.Default(ctx); st != nil {
		return st, nil
	}
	return nil, errors.New("roster is empty")
}

package command

import (
	"context"
	"strings"
	"time"

	"github.com/sppzpp/reportcard-hub/config"
	"github.com/sppzpp/reportcard-hub/internal/domain/analysis"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
	"github.com/sppzpp/reportcard-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANALYZE STUDENT COMMAND
// Запрашивает AI-анализ успеваемости. Ошибка провайдера не является ошибкой
// команды: родитель получает фиксированный текст с флагом fallback.
// ══════════════════════════════════════════════════════════════════════════════

// Analyzer resolves analyses through cache, store and provider.
type Analyzer interface {
	Analyze(ctx context.Context, s *student.Student) analysis.Result
}

// AnalyzeStudentCommand содержит данные для анализа.
type AnalyzeStudentCommand struct {
	// StudentID - ID ученика в ростере.
	StudentID string
}

// AnalyzeStudentResult содержит результат анализа.
type AnalyzeStudentResult struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	analysis.Result

	// Took - время обработки команды.
	Took time.Duration `json:"-"`
}

// AnalyzeStudentHandler обрабатывает AnalyzeStudentCommand.
type AnalyzeStudentHandler struct {
	roster   student.Reader
	analyzer Analyzer
	features Features
	log      *logger.Logger
}

// NewAnalyzeStudentHandler создаёт обработчик.
func NewAnalyzeStudentHandler(roster student.Reader, analyzer Analyzer, features Features, log *logger.Logger) *AnalyzeStudentHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AnalyzeStudentHandler{
		roster:   roster,
		analyzer: analyzer,
		features: features,
		log:      log.With(logger.Component("analyze_student")),
	}
}

// Handle выполняет команду.
func (h *AnalyzeStudentHandler) Handle(ctx context.Context, cmd AnalyzeStudentCommand) (*AnalyzeStudentResult, error) {
	start := time.Now()

	s, err := resolveStudent(ctx, h.roster, h.features, config.FeatureAIAnalysis, "AnalyzeStudent",
		strings.TrimSpace(cmd.StudentID))
	if err != nil {
		return nil, err
	}

	res := h.analyzer.Analyze(ctx, s)
	out := &AnalyzeStudentResult{
		StudentID:   s.ID,
		StudentName: s.Name,
		Result:      res,
		Took:        time.Since(start),
	}

	h.log.Info("analysis served",
		logger.StudentID(s.ID),
		logger.String("source", string(res.Source)),
		logger.Latency(out.Took))

	return out, nil
}

package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sppzpp/reportcard-hub/config"
	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
	"github.com/sppzpp/reportcard-hub/pkg/logger"
	"github.com/sppzpp/reportcard-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET REPORT CARD QUERY
// Табель ученика целиком: таблицы FA/SA, посещаемость, обратный отсчёт до
// публичных экзаменов, контакты. Чистая функция от данных ростера и профиля
// школы; AI-анализ запрашивается отдельно.
// ══════════════════════════════════════════════════════════════════════════════

// GetReportCardQuery содержит параметры запроса.
type GetReportCardQuery struct {
	StudentID string

	// Now - момент, на который считается обратный отсчёт (пусто = сейчас).
	Now time.Time
}

// Features decides per-student feature toggles.
type Features interface {
	EnabledFor(feature, studentID, section string) bool
}

// ReportCardDTO - табель для отображения.
type ReportCardDTO struct {
	School     SchoolDTO     `json:"school"`
	Student    ProfileDTO    `json:"student"`
	Formative  ExamTableDTO  `json:"formative"`
	Summative  ExamTableDTO  `json:"summative"`
	Attendance AttendanceDTO `json:"attendance"`

	// Countdown отсутствует, если report.countdown выключен.
	Countdown *CountdownDTO `json:"countdown,omitempty"`

	ActionPlan ActionPlanDTO `json:"action_plan"`
	Contacts   ContactsDTO   `json:"contacts"`

	// ConsistencyWarnings - экзамены, где колонка result спорит с оценкой.
	ConsistencyWarnings []string `json:"consistency_warnings,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
	GeneratedOn string    `json:"generated_on"` // DD.MM.YYYY HH:MM, IST
}

// SchoolDTO - шапка табеля.
type SchoolDTO struct {
	Name         string `json:"name"`
	Location     string `json:"location"`
	UDISE        string `json:"udise"`
	AcademicYear string `json:"academic_year"`
}

// ProfileDTO - карточка ученика.
type ProfileDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Section    string `json:"section"`
	Gender     string `json:"gender"`
	FatherName string `json:"father_name"`
	MotherName string `json:"mother_name"`

	// Parents - "отец & мать", как на печатном табеле.
	Parents string `json:"parents"`

	// ClassLabel - "10వ తరగతి - సెక్షన్ B".
	ClassLabel string `json:"class_label"`
}

// ExamTableDTO - таблица одного типа экзаменов.
type ExamTableDTO struct {
	Title   string          `json:"title"`
	Kind    string          `json:"kind"`
	Columns []ExamColumnDTO `json:"columns"`
	Rows    []ExamRowDTO    `json:"rows"`
}

// ExamColumnDTO - один экзамен в таблице.
type ExamColumnDTO struct {
	Slot         string `json:"slot"`
	Label        string `json:"label"`
	Administered bool   `json:"administered"`
	Total        string `json:"total"`
	Grade        string `json:"grade"`
	Rank         string `json:"rank"`

	// Result выводится из оценки. ExplicitResult - сырое значение колонки
	// result из реестра; оно может спорить с оценкой (см. ConsistencyWarnings).
	Result         string `json:"result"`
	ExplicitResult string `json:"explicit_result,omitempty"`

	// TotalText и RankText - подписи итоговой строки ("Total: 240", "Rank: 5").
	TotalText string `json:"total_text"`
	RankText  string `json:"rank_text"`
}

// ExamRowDTO - строка предмета.
type ExamRowDTO struct {
	Subject   string        `json:"subject"`
	Name      string        `json:"name"`
	LocalName string        `json:"local_name"`
	Cells     []ExamCellDTO `json:"cells"`
}

// ExamCellDTO - оценка по предмету на одном экзамене.
type ExamCellDTO struct {
	Marks string `json:"marks"`
	Max   int    `json:"max"`

	// Text - "marks/max" или пусто, если отметок нет.
	Text   string `json:"text"`
	Grade  string `json:"grade"`
	Result string `json:"result"`
}

// AttendanceDTO - таблица посещаемости.
type AttendanceDTO struct {
	Months      []AttendanceMonthDTO `json:"months"`
	WorkingDays int                  `json:"working_days"`
	Attended    string               `json:"attended"`
	Percent     int                  `json:"percent"`

	// Tier - "good" от 75% и выше, иначе "low".
	Tier    string `json:"tier"`
	Message string `json:"message"`
}

// AttendanceMonthDTO - один месяц.
type AttendanceMonthDTO struct {
	Month    string `json:"month"`
	Short    string `json:"short"`
	Attended string `json:"attended"`
}

// CountdownDTO - обратный отсчёт до публичных экзаменов.
type CountdownDTO struct {
	ExamName string    `json:"exam_name"`
	Target   time.Time `json:"target"`
	Date     string    `json:"date"` // DD.MM.YYYY
	DaysLeft int       `json:"days_left"`
	Heading  string    `json:"heading"`
	Note     string    `json:"note"`
}

// ActionPlanDTO - блок «100 дней».
type ActionPlanDTO struct {
	Date string `json:"date"`
	Text string `json:"text"`
}

// ContactDTO - контакт для родителей.
type ContactDTO struct {
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
	Phone string `json:"phone"`
}

// ContactsDTO - учитель секции и директор.
type ContactsDTO struct {
	Teacher    ContactDTO `json:"teacher"`
	Headmaster ContactDTO `json:"headmaster"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetReportCardHandler обрабатывает GetReportCardQuery.
type GetReportCardHandler struct {
	roster   *student.Roster
	school   *config.SchoolProfile
	features Features
	log      *logger.Logger
	now      func() time.Time
}

// NewGetReportCardHandler создаёт обработчик. features может быть nil:
// тогда всё включено.
func NewGetReportCardHandler(roster *student.Roster, school *config.SchoolProfile, features Features, log *logger.Logger) *GetReportCardHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetReportCardHandler{
		roster:   roster,
		school:   school,
		features: features,
		log:      log.With(logger.Component("report_card")),
		now:      timeutil.Now,
	}
}

// Handle выполняет запрос.
func (h *GetReportCardHandler) Handle(ctx context.Context, q GetReportCardQuery) (*ReportCardDTO, error) {
	if strings.TrimSpace(q.StudentID) == "" {
		return nil, shared.NewDomainError("query", "GetReportCard", shared.ErrValidation, "student_id is required")
	}
	s, err := h.roster.GetByID(ctx, q.StudentID)
	if err != nil {
		return nil, err
	}
	now := q.Now
	if now.IsZero() {
		now = h.now()
	}
	return h.Build(s, now), nil
}

// Build assembles the report card of a student.
func (h *GetReportCardHandler) Build(s *student.Student, now time.Time) *ReportCardDTO {
	card := &ReportCardDTO{
		School: SchoolDTO{
			Name:         h.school.Name,
			Location:     h.school.Location,
			UDISE:        h.school.UDISE,
			AcademicYear: h.school.AcademicYear,
		},
		Student: Profile(s, h.school.Grade),
		Formative: ExamTable("నైపుణ్య పరీక్షలు (FA1, FA2, FA3)", student.ExamFormative, s,
			student.SlotFA1, student.SlotFA2, student.SlotFA3),
		Summative: ExamTable("సామర్థ్య పరీక్షలు (SA1, SA2)", student.ExamSummative, s,
			student.SlotSA1, student.SlotSA2),
		Attendance:  Attendance(s.Attendance),
		ActionPlan:  ActionPlan(now),
		Contacts:    h.contacts(s.Section),
		GeneratedAt: now.UTC(),
		GeneratedOn: timeutil.FormatDateTimeStr(now),
	}

	if h.enabled(config.FeatureReportCountdown, s) {
		c := Countdown(h.school.PublicExam.Name, h.school.ExamEvent(), now)
		card.Countdown = &c
	}

	if h.enabled(config.FeatureConsistencyCheck, s) {
		for _, c := range s.ResultConflicts() {
			card.ConsistencyWarnings = append(card.ConsistencyWarnings, c.String())
		}
		if len(card.ConsistencyWarnings) > 0 {
			h.log.Debug("report card has result conflicts",
				logger.StudentID(s.ID),
				logger.Int("conflicts", len(card.ConsistencyWarnings)))
		}
	}

	return card
}

func (h *GetReportCardHandler) enabled(feature string, s *student.Student) bool {
	if h.features == nil {
		return true
	}
	return h.features.EnabledFor(feature, s.ID, string(s.Section))
}

func (h *GetReportCardHandler) contacts(section student.Section) ContactsDTO {
	var out ContactsDTO
	if c, ok := h.school.SectionContact(string(section)); ok {
		out.Teacher = ContactDTO{Name: c.Name, Role: c.Role, Phone: c.Phone}
	}
	out.Headmaster = ContactDTO{Name: h.school.Headmaster.Name, Phone: h.school.Headmaster.Phone}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// VIEW BUILDERS
// ══════════════════════════════════════════════════════════════════════════════

// Profile builds the student card.
func Profile(s *student.Student, grade int) ProfileDTO {
	return ProfileDTO{
		ID:         s.ID,
		Name:       s.Name,
		Section:    string(s.Section),
		Gender:     s.Gender,
		FatherName: s.FatherName,
		MotherName: s.MotherName,
		Parents:    s.FatherName + " & " + s.MotherName,
		ClassLabel: fmt.Sprintf("%dవ తరగతి - సెక్షన్ %s", grade, s.Section),
	}
}

// ExamTable builds one exam table over the given slots. Subject maximums
// come from the kind: 50 for formative, 100 for summative.
func ExamTable(title string, kind student.ExamKind, s *student.Student, slots ...student.ExamSlot) ExamTableDTO {
	t := ExamTableDTO{
		Title:   title,
		Kind:    string(kind),
		Columns: make([]ExamColumnDTO, 0, len(slots)),
		Rows:    make([]ExamRowDTO, 0, len(student.Subjects)),
	}

	for _, slot := range slots {
		exam := s.Exam(slot)
		col := ExamColumnDTO{
			Slot:         string(slot),
			Label:        slot.Label(),
			Administered: !exam.IsEmpty(),
			Total:        exam.Total,
			Grade:          exam.Grade.String(),
			Rank:           exam.Rank,
			Result:         string(student.DeriveResult(exam.Grade)),
			ExplicitResult: string(exam.Result),
		}
		if exam.Total != "" {
			col.TotalText = "Total: " + exam.Total
		}
		if exam.Rank != "" {
			col.RankText = "Rank: " + exam.Rank
		}
		t.Columns = append(t.Columns, col)
	}

	for _, subj := range student.Subjects {
		info := subj.Info()
		row := ExamRowDTO{
			Subject:   string(subj),
			Name:      info.Name,
			LocalName: info.LocalName,
			Cells:     make([]ExamCellDTO, 0, len(slots)),
		}
		maxMarks := subj.MaxMarks(kind)
		for _, slot := range slots {
			row.Cells = append(row.Cells, Cell(s.Exam(slot).Mark(subj), maxMarks))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Cell renders one subject mark. The result is derived from the grade, never
// read from the data.
func Cell(m student.SubjectMark, maxMarks int) ExamCellDTO {
	c := ExamCellDTO{
		Marks:  m.Marks,
		Max:    maxMarks,
		Grade:  m.Grade.String(),
		Result: string(student.DeriveResult(m.Grade)),
	}
	if m.Marks != "" {
		c.Text = fmt.Sprintf("%s/%d", m.Marks, maxMarks)
	}
	return c
}

// Attendance tiers.
const (
	AttendanceGood = "good"
	AttendanceLow  = "low"
)

// Attendance builds the attendance table and the tiered message.
func Attendance(a student.AttendanceRecord) AttendanceDTO {
	pct := a.Percentage()
	out := AttendanceDTO{
		Months:      make([]AttendanceMonthDTO, 0, len(student.AcademicMonths)),
		WorkingDays: a.TotalWorkingDaysUntilNov,
		Attended:    a.TotalAttendedDaysUntilNov,
		Percent:     pct,
		Tier:        AttendanceLow,
		Message:     AttendanceMessage(pct),
	}
	if pct >= student.GoodAttendancePercent {
		out.Tier = AttendanceGood
	}
	for _, m := range student.AcademicMonths {
		name := string(m)
		out.Months = append(out.Months, AttendanceMonthDTO{
			Month:    name,
			Short:    strings.ToUpper(name[:1]) + name[1:3],
			Attended: a.Months.Get(m),
		})
	}
	return out
}

// AttendanceMessage returns the Telugu note shown under the attendance table.
func AttendanceMessage(pct int) string {
	if pct >= student.GoodAttendancePercent {
		return fmt.Sprintf("అద్భుతమైన హాజరు (%d%%)! పాఠశాలకు క్రమం తప్పకుండా రావడం మీ భవిష్యత్తు పట్ల మీకున్న నిబద్ధతను తెలియజేస్తుంది. ఇలాగే కొనసాగించండి!", pct)
	}
	return fmt.Sprintf("తక్కువ హాజరు శాతం (%d%%). తరగతులకు హాజరు కాకపోవడం వల్ల పాఠ్యాంశాలను అర్థం చేసుకోవడం కష్టమవుతుంది. క్రమం తప్పకుండా పాఠశాలకు రావాలని మేము గట్టిగా సూచిస్తున్నాము.", pct)
}

// Countdown builds the public exam countdown.
func Countdown(examName string, exam timeutil.AnnualEvent, now time.Time) CountdownDTO {
	target := exam.Next(now)
	return CountdownDTO{
		ExamName: examName,
		Target:   target,
		Date:     timeutil.FormatDateStr(target),
		DaysLeft: exam.DaysUntil(now),
		Heading:  "పబ్లిక్ పరీక్షలకు సమయం",
		Note: fmt.Sprintf("పరీక్షలు %s %dన ప్రారంభం కానున్నాయి. ప్రతి రోజును ప్రణాళికాబద్ధంగా ఉపయోగించుకోండి.",
			timeutil.MonthNameTe(exam.Month), exam.Day),
	}
}

// ActionPlan builds the "100 days" note, dated the 6th of the current month.
func ActionPlan(now time.Time) ActionPlanDTO {
	date := timeutil.ActionPlanDate(now)
	return ActionPlanDTO{
		Date: date,
		Text: fmt.Sprintf("రాష్ట్ర విద్యాశాఖ %s నుండి \"100 రోజుల ప్రణాళిక\"ను అమలు చేస్తోంది.", date),
	}
}

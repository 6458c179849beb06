// Package terminal formats report cards for a terminal.
// Presenters turn application DTOs into styled text; they never look at
// the roster or the AI gateway themselves.
package terminal

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sppzpp/reportcard-hub/internal/application/command"
	"github.com/sppzpp/reportcard-hub/internal/application/query"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT CARD PRESENTER
// Печатный табель в терминале: шапка школы, карточка ученика, таблицы
// FA и SA, посещаемость, обратный отсчёт и контакты.
// ══════════════════════════════════════════════════════════════════════════════

const (
	subjectWidth = 22
	cellWidth    = 10
)

// Palette matches the web card: navy headings, green for good news, red for
// warnings.
const (
	colorNavy  = lipgloss.Color("#1E3A8A")
	colorGreen = lipgloss.Color("#15803D")
	colorRed   = lipgloss.Color("#B91C1C")
	colorAmber = lipgloss.Color("#B45309")
	colorMuted = lipgloss.Color("#6B7280")
)

// ReportCardPresenter renders report cards.
type ReportCardPresenter struct {
	r *lipgloss.Renderer

	title   lipgloss.Style
	heading lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	good    lipgloss.Style
	bad     lipgloss.Style
	warn    lipgloss.Style
	box     lipgloss.Style
	cell    lipgloss.Style
	subject lipgloss.Style
}

// NewReportCardPresenter создаёт презентер для вывода в w. Цвета
// определяются по w: в файл или пайп уходит чистый текст.
func NewReportCardPresenter(w io.Writer) *ReportCardPresenter {
	r := lipgloss.NewRenderer(w)
	return &ReportCardPresenter{
		r:       r,
		title:   r.NewStyle().Bold(true).Foreground(colorNavy),
		heading: r.NewStyle().Bold(true).Underline(true).Foreground(colorNavy),
		label:   r.NewStyle().Bold(true),
		muted:   r.NewStyle().Foreground(colorMuted),
		good:    r.NewStyle().Bold(true).Foreground(colorGreen),
		bad:     r.NewStyle().Bold(true).Foreground(colorRed),
		warn:    r.NewStyle().Foreground(colorAmber),
		box:     r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorNavy).Padding(0, 1),
		cell:    r.NewStyle().Width(cellWidth),
		subject: r.NewStyle().Width(subjectWidth),
	}
}

// Render форматирует полный табель.
func (p *ReportCardPresenter) Render(card *query.ReportCardDTO) string {
	sections := []string{
		p.formatHeader(card),
		p.formatProfile(card),
		p.formatExamTable(card.Formative),
		p.formatExamTable(card.Summative),
		p.formatAttendance(card.Attendance),
	}
	if card.Countdown != nil {
		sections = append(sections, p.formatCountdown(card.Countdown))
	}
	if len(card.ConsistencyWarnings) > 0 {
		sections = append(sections, p.formatWarnings(card.ConsistencyWarnings))
	}
	sections = append(sections,
		p.formatActionPlan(card.ActionPlan),
		p.formatContacts(card.Contacts),
		p.muted.Render("Generated: "+card.GeneratedOn),
	)

	out := sections[:0]
	for _, s := range sections {
		if s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n\n") + "\n"
}

// ─────────────────────────────────────────────────────────────────────────────
// HEADER & PROFILE
// ─────────────────────────────────────────────────────────────────────────────

func (p *ReportCardPresenter) formatHeader(card *query.ReportCardDTO) string {
	lines := []string{
		p.title.Render(card.School.Name),
		card.School.Location,
		p.muted.Render(fmt.Sprintf("UDISE: %s · %s", card.School.UDISE, card.School.AcademicYear)),
	}
	return p.box.Render(lipgloss.JoinVertical(lipgloss.Center, lines...))
}

func (p *ReportCardPresenter) formatProfile(card *query.ReportCardDTO) string {
	s := card.Student
	rows := [][2]string{
		{"Name", s.Name},
		{"Class", s.ClassLabel},
		{"Gender", s.Gender},
		{"Parents", s.Parents},
		{"ID", s.ID},
	}
	var sb strings.Builder
	for i, row := range rows {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(p.label.Width(10).Render(row[0]))
		sb.WriteString(row[1])
	}
	return sb.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// EXAM TABLES
// ─────────────────────────────────────────────────────────────────────────────

func (p *ReportCardPresenter) formatExamTable(t query.ExamTableDTO) string {
	var sb strings.Builder
	sb.WriteString(p.heading.Render(t.Title))
	sb.WriteString("\n")

	// Шапка: предмет + по колонке на экзамен.
	head := []string{p.subject.Inherit(p.label).Render("Subject")}
	for _, col := range t.Columns {
		head = append(head, p.cell.Inherit(p.label).Render(col.Label))
	}
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, head...))

	for _, row := range t.Rows {
		name := row.Name
		if row.LocalName != "" {
			name = fmt.Sprintf("%s (%s)", row.LocalName, row.Name)
		}
		line := []string{p.subject.Render(name)}
		for i, c := range row.Cells {
			administered := i < len(t.Columns) && t.Columns[i].Administered
			line = append(line, p.cell.Render(p.formatCell(c, administered)))
		}
		sb.WriteString("\n")
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, line...))
	}

	// Итоговые строки.
	totals := []string{p.subject.Inherit(p.label).Render("Total")}
	grades := []string{p.subject.Inherit(p.label).Render("Grade / Result")}
	ranks := []string{p.subject.Inherit(p.label).Render("Rank")}
	for _, col := range t.Columns {
		if !col.Administered {
			totals = append(totals, p.cell.Render(p.muted.Render("-")))
			grades = append(grades, p.cell.Render(p.muted.Render("-")))
			ranks = append(ranks, p.cell.Render(p.muted.Render("-")))
			continue
		}
		totals = append(totals, p.cell.Render(col.Total))
		grades = append(grades, p.cell.Render(p.formatResult(col.Grade, col.Result)))
		ranks = append(ranks, p.cell.Render(col.Rank))
	}
	for _, line := range [][]string{totals, grades, ranks} {
		sb.WriteString("\n")
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, line...))
	}
	return sb.String()
}

func (p *ReportCardPresenter) formatCell(c query.ExamCellDTO, administered bool) string {
	if !administered || c.Text == "" {
		return p.muted.Render("-")
	}
	if c.Grade == "" {
		return c.Text
	}
	return fmt.Sprintf("%s %s", c.Text, p.gradeStyle(c.Result).Render(c.Grade))
}

func (p *ReportCardPresenter) formatResult(grade, result string) string {
	if grade == "" && result == "" {
		return p.muted.Render("-")
	}
	return p.gradeStyle(result).Render(strings.TrimSpace(grade + " " + result))
}

func (p *ReportCardPresenter) gradeStyle(result string) lipgloss.Style {
	if result == "FAIL" {
		return p.bad
	}
	return p.good
}

// ─────────────────────────────────────────────────────────────────────────────
// ATTENDANCE, COUNTDOWN, FOOTER
// ─────────────────────────────────────────────────────────────────────────────

func (p *ReportCardPresenter) formatAttendance(a query.AttendanceDTO) string {
	var sb strings.Builder
	sb.WriteString(p.heading.Render("Attendance"))
	sb.WriteString("\n")

	months := make([]string, 0, len(a.Months))
	days := make([]string, 0, len(a.Months))
	narrow := p.r.NewStyle().Width(5)
	for _, m := range a.Months {
		months = append(months, narrow.Inherit(p.label).Render(m.Short))
		attended := m.Attended
		if attended == "" {
			attended = "-"
		}
		days = append(days, narrow.Render(attended))
	}
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, months...))
	sb.WriteString("\n")
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, days...))
	sb.WriteString("\n")

	attended := a.Attended
	if attended == "" {
		attended = "0"
	}
	style := p.good
	if a.Tier != "good" {
		style = p.bad
	}
	sb.WriteString(fmt.Sprintf("%s/%d days · %s\n", attended, a.WorkingDays, style.Render(fmt.Sprintf("%d%%", a.Percent))))
	sb.WriteString(style.Render(a.Message))
	return sb.String()
}

func (p *ReportCardPresenter) formatCountdown(c *query.CountdownDTO) string {
	lines := []string{
		p.label.Render(c.Heading),
		p.title.Render(fmt.Sprintf("%d days", c.DaysLeft)) + p.muted.Render(" · "+c.Date),
		p.muted.Render(c.Note),
	}
	return p.box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (p *ReportCardPresenter) formatWarnings(warnings []string) string {
	var sb strings.Builder
	sb.WriteString(p.warn.Bold(true).Render("Data warnings"))
	for _, w := range warnings {
		sb.WriteString("\n")
		sb.WriteString(p.warn.Render("! " + w))
	}
	return sb.String()
}

func (p *ReportCardPresenter) formatActionPlan(a query.ActionPlanDTO) string {
	if a.Text == "" {
		return ""
	}
	return p.label.Render(a.Date) + "\n" + a.Text
}

func (p *ReportCardPresenter) formatContacts(c query.ContactsDTO) string {
	line := func(who query.ContactDTO) string {
		role := who.Role
		if role != "" {
			role = " (" + role + ")"
		}
		return fmt.Sprintf("%s%s: %s", who.Name, role, who.Phone)
	}
	return p.muted.Render(line(c.Teacher) + "\n" + line(c.Headmaster))
}

// ══════════════════════════════════════════════════════════════════════════════
// AI ANALYSIS
// ══════════════════════════════════════════════════════════════════════════════

// RenderAnalysis форматирует ответ AI-консультанта.
func (p *ReportCardPresenter) RenderAnalysis(res *command.AnalyzeStudentResult) string {
	var sb strings.Builder
	sb.WriteString(p.heading.Render("AI Analysis"))
	if res.Fallback {
		sb.WriteString(" ")
		sb.WriteString(p.warn.Render("(offline)"))
	}

	blocks := []struct {
		title string
		text  string
		style lipgloss.Style
	}{
		{"Strengths", res.Analysis.Success, p.good},
		{"Needs attention", res.Analysis.Decline, p.bad},
		{"Weak subjects", res.Analysis.WeakSubjects, p.warn},
	}
	for _, b := range blocks {
		sb.WriteString("\n\n")
		sb.WriteString(b.style.Render(b.title))
		sb.WriteString("\n")
		sb.WriteString(b.text)
	}
	return sb.String() + "\n"
}

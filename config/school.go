package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sppzpp/reportcard-hub/pkg/timeutil"
)

//go:embed school.yaml
var defaultSchoolYAML []byte

// Contact is a person parents can call.
type Contact struct {
	Name  string `yaml:"teacher" json:"name" validate:"required"`
	Role  string `yaml:"role" json:"role"`
	Phone string `yaml:"phone" json:"phone" validate:"required"`
}

// Headmaster is the school head.
type Headmaster struct {
	Name  string `yaml:"name" json:"name"`
	Phone string `yaml:"phone" json:"phone"`
}

// PublicExam is the recurring board exam the countdown targets.
type PublicExam struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	// Date is "MM-DD HH:MM" in IST.
	Date string `yaml:"date" json:"date" validate:"required"`
}

// SchoolProfile is the static school information printed on report cards.
type SchoolProfile struct {
	Name                string             `yaml:"name" json:"name" validate:"required"`
	Location            string             `yaml:"location" json:"location"`
	UDISE               string             `yaml:"udise" json:"udise" validate:"omitempty,numeric,len=11"`
	Grade               int                `yaml:"grade" json:"grade" validate:"min=1,max=12"`
	AcademicYear        string             `yaml:"academic_year" json:"academic_year"`
	WorkingDaysUntilNov int                `yaml:"working_days_until_nov" json:"working_days_until_nov" validate:"gt=0"`
	PublicExam          PublicExam         `yaml:"public_exam" json:"public_exam"`
	Sections            map[string]Contact `yaml:"sections" json:"sections" validate:"required,dive,keys,oneof=A B,endkeys"`
	Headmaster          Headmaster         `yaml:"headmaster" json:"headmaster"`

	exam timeutil.AnnualEvent
}

// LoadSchoolProfile reads the profile from path, or the embedded default
// when path is empty.
func LoadSchoolProfile(path string) (*SchoolProfile, error) {
	data := defaultSchoolYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		data = b
	}
	return ParseSchoolProfile(data)
}

// ParseSchoolProfile decodes and validates a YAML profile.
func ParseSchoolProfile(data []byte) (*SchoolProfile, error) {
	var p SchoolProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode school profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

var profileValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and parses the exam date.
func (p *SchoolProfile) Validate() error {
	if err := profileValidator.Struct(p); err != nil {
		return fmt.Errorf("school profile: %w", err)
	}
	exam, err := timeutil.ParseAnnualEvent(p.PublicExam.Date)
	if err != nil {
		return fmt.Errorf("school profile: public_exam.date: %w", err)
	}
	p.exam = exam
	return nil
}

// ExamEvent returns the parsed public exam date.
func (p *SchoolProfile) ExamEvent() timeutil.AnnualEvent {
	return p.exam
}

// SectionContact returns the contact for a section.
func (p *SchoolProfile) SectionContact(section string) (Contact, bool) {
	c, ok := p.Sections[section]
	return c, ok
}

// Package analysis defines the AI performance analysis contract: the value
// returned by the gateway, the fixed fallback shown when the gateway fails,
// and the storage interfaces for computed analyses.
package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
)

// AIAnalysis is the three-part commentary for a student. The text is opaque
// to the core and passed through as received.
type AIAnalysis struct {
	Success      string `json:"success"`
	Decline      string `json:"decline"`
	WeakSubjects string `json:"weakSubjects"`
}

// Validate checks that every section is present.
func (a AIAnalysis) Validate() error {
	switch {
	case strings.TrimSpace(a.Success) == "":
		return shared.NewDomainError("analysis", "Validate", shared.ErrEmptyValue, "success is empty")
	case strings.TrimSpace(a.Decline) == "":
		return shared.NewDomainError("analysis", "Validate", shared.ErrEmptyValue, "decline is empty")
	case strings.TrimSpace(a.WeakSubjects) == "":
		return shared.NewDomainError("analysis", "Validate", shared.ErrEmptyValue, "weakSubjects is empty")
	}
	return nil
}

// Fallback returns the fixed Telugu commentary used whenever the gateway
// cannot produce an analysis.
func Fallback() AIAnalysis {
	return AIAnalysis{
		Success: "మీ విద్యా ప్రదర్శన కొన్ని సబ్జెక్టులలో చాలా బాగుంది. ముఖ్యంగా లాంగ్వేజెస్ మరియు సోషల్ స్టడీస్ లో మీ పట్టు అభినందనీయం. " +
			"ఈ నిలకడ మీకు ఎస్ఎస్సి పబ్లిక్ పరీక్షలలో మంచి జిపిఏ సాధించడానికి దోహదపడుతుంది. మీ కృషిని ఇలాగే కొనసాగించండి, ఇది మీ ఆత్మవిశ్వాసాన్ని పెంచుతుంది.",
		Decline: "ఎఫ్ఏ పరీక్షలతో పోలిస్తే ఎస్ఏ-1 పరీక్షలలో మార్కులు కొంత తగ్గుముఖం పట్టాయి. దీనికి ప్రధాన కారణం వివరణాత్మక సమాధానాలు రాయడంలో ఏకాగ్రత లోపించడం కావచ్చు. " +
			"హాజరు శాతం తక్కువగా ఉన్నట్లయితే, అది నేరుగా మీ మార్కులపై ప్రభావం చూపిస్తోంది. పబ్లిక్ పరీక్షల సిలబస్ చాలా ఎక్కువగా ఉంటుంది కాబట్టి అప్రమత్తంగా ఉండాలి.",
		WeakSubjects: "మెరుగుదల కోసం కార్యాచరణ ప్రణాళిక: \n" +
			"1. గణితం: ప్రతిరోజూ కనీసం 10 లెక్కలను ప్రాక్టీస్ చేయండి. ఫార్ములాలను ఒక ప్రత్యేక నోట్ బుక్ లో రాసుకోండి. \n" +
			"2. సైన్స్: డయాగ్రమ్స్ ప్రాక్టీస్ చేయండి మరియు ముఖ్యమైన నిర్వచనాలను గుర్తుంచుకోండి. \n" +
			"3. ఇంగ్లీష్: గ్రామర్ మరియు రైటింగ్ స్కిల్స్ పై దృష్టి పెట్టండి. \n" +
			"చిట్కా: ప్రతిరోజూ ఉదయం 5 గంటలకు లేచి చదవడం అలవాటు చేసుకోండి. మార్చి 16 పరీక్షలకు సిద్ధమవ్వడానికి ఇదే సరైన సమయం.",
	}
}

// Gateway requests an analysis from the AI provider. Implementations may
// block on the network and must honour ctx.
type Gateway interface {
	RequestAnalysis(ctx context.Context, s *student.Student) (AIAnalysis, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, s *student.Student) (AIAnalysis, error)

// RequestAnalysis implements Gateway.
func (f GatewayFunc) RequestAnalysis(ctx context.Context, s *student.Student) (AIAnalysis, error) {
	return f(ctx, s)
}

// Source says where a served analysis came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceStore    Source = "store"
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Result is the analysis served to the report card. Fallback is set when the
// fixed text replaced a failed gateway call.
type Result struct {
	Analysis  AIAnalysis `json:"analysis"`
	Source    Source     `json:"source"`
	Fallback  bool       `json:"fallback"`
	CreatedAt time.Time  `json:"created_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// STORED ANALYSES
// ══════════════════════════════════════════════════════════════════════════════

// Record is a computed analysis tied to the student data it was computed from.
type Record struct {
	StudentID   string     `json:"student_id"`
	Fingerprint string     `json:"fingerprint"`
	Model       string     `json:"model"`
	Analysis    AIAnalysis `json:"analysis"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Key identifies a record: the same student with different data is a
// different key.
func Key(s *student.Student) string {
	return s.ID + ":" + s.Fingerprint()
}

// Repository stores analyses durably.
type Repository interface {
	// Get returns the latest record for a student fingerprint.
	// Returns an error matching shared.ErrNotFound if absent.
	Get(ctx context.Context, studentID, fingerprint string) (*Record, error)

	// Save upserts a record.
	Save(ctx context.Context, rec *Record) error

	// History returns past records for a student, newest first.
	History(ctx context.Context, studentID string, limit int) ([]*Record, error)
}

// Cache is a hot, expiring store in front of Repository.
type Cache interface {
	Get(ctx context.Context, studentID, fingerprint string) (*Record, error)
	Set(ctx context.Context, rec *Record, ttl time.Duration) error
}

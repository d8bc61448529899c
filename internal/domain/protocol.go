// File: internal/domain/protocol.go
package domain

// KeyInfo is the structured fact record extracted from free-form requirement
// text. It is a flat map so that extra keys returned by the model survive a
// round trip; the typed accessors cover the fields the pipeline relies on.
type KeyInfo map[string]any

// RequiredKeyInfoFields must be present in every extraction result. Missing
// fields are filled with an explicit placeholder, never omitted.
var RequiredKeyInfoFields = []string{
	"drug_type",
	"disease",
	"trial_phase",
	"primary_objective",
	"primary_endpoint",
	"patient_population",
	"estimated_enrollment",
	"study_design",
}

// GetString returns the value for key as a string, or fallback when the key
// is absent or not a string.
func (k KeyInfo) GetString(key, fallback string) string {
	if v, ok := k[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// GetStrings returns a string-slice valued field, tolerating both []string
// and []any (the shape encoding/json produces).
func (k KeyInfo) GetStrings(key string) []string {
	v, ok := k[key]
	if !ok {
		return nil
	}
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if vv == "" {
			return nil
		}
		return []string{vv}
	}
	return nil
}

// OutlineSection is one chapter of the protocol outline. Order within the
// outline is significant and drives generation order.
type OutlineSection struct {
	Title       string   `json:"title"`
	Content     string   `json:"content,omitempty"`
	Subsections []string `json:"subsections"`
}

// Progress statuses are surfaced verbatim in the UI.
const (
	ProgressStarted    = "开始"
	ProgressInProgress = "进行中"
	ProgressCompleted  = "完成"
	ProgressWarning    = "警告"
)

// ProgressEvent reports advancement of one generation step. Progress is a
// percentage in [0,100] and is monotonically non-decreasing per step.
type ProgressEvent struct {
	Step     string  `json:"step"`
	Progress float64 `json:"progress"`
	Status   string  `json:"status"`
	Detail   string  `json:"detail"`
}

// QualityReport is the outcome of the post-hoc quality scoring pass.
// OverallScore equals the weight-averaged rubric scores.
type QualityReport struct {
	OverallScore    float64        `json:"overall_score"`
	ModuleScores    map[string]int `json:"module_scores"`
	Recommendations []string       `json:"recommendations"`
	Issues          []string       `json:"issues"`
	CheckTime       string         `json:"check_time"`
}

// File: internal/services/protocol/extraction.go
package protocol

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/trialforge/protocol-agent/internal/domain"
)

// jsonObjectRe locates the first JSON object in a model reply. The
// extraction schema is flat, so the non-greedy match is sufficient.
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*?\}`)

var drugPatterns = []struct {
	Name    string
	Pattern *regexp.Regexp
}{
	{"TCR-T", regexp.MustCompile(`(?i)TCR-?T`)},
	{"CAR-T", regexp.MustCompile(`(?i)CAR-?T`)},
	{"单抗", regexp.MustCompile(`单.*抗|单克隆抗体|抗体`)},
	{"免疫检查点抑制剂", regexp.MustCompile(`(?i)免疫检查点|PD-?1|PD-?L1|CTLA-?4`)},
	{"化疗", regexp.MustCompile(`化疗|化学治疗`)},
}

var diseasePatterns = []struct {
	Name    string
	Pattern *regexp.Regexp
}{
	{"肺癌", regexp.MustCompile(`(?i)肺癌|肺鳞癌|肺腺癌|非小细胞肺癌|NSCLC`)},
	{"淋巴瘤", regexp.MustCompile(`淋巴瘤|B细胞淋巴瘤|T细胞淋巴瘤`)},
	{"胃癌", regexp.MustCompile(`胃癌`)},
	{"乳腺癌", regexp.MustCompile(`乳腺癌`)},
	{"肝癌", regexp.MustCompile(`肝癌|肝细胞癌`)},
}

var phasePatterns = []struct {
	Name    string
	Pattern *regexp.Regexp
}{
	{"I", regexp.MustCompile(`I期|1期|一期`)},
	{"II", regexp.MustCompile(`II期|2期|二期`)},
	{"III", regexp.MustCompile(`III期|3期|三期`)},
}

// ExtractKeyInfo pulls the structured trial facts out of a free-text
// requirement. The stage never fails outright: an unusable model reply
// degrades to pattern matching over the input, and a failed call degrades
// to keyword defaults.
func (p *Pipeline) ExtractKeyInfo(ctx context.Context, inputText string) (*ExtractionResult, error) {
	if strings.TrimSpace(inputText) == "" {
		return nil, NewValidationError("ExtractKeyInfo", "input text is empty")
	}

	prompt := buildExtractionPrompt(inputText)
	reply, err := p.llm.GetCompletion(ctx, prompt, extractionSystemPrompt, p.config.ExtractionTemperature)
	if err != nil {
		p.logger.Warn("extraction call failed, using keyword defaults", "error", err)
		info := keywordExtraction(inputText)
		ensureRequiredFields(info)
		return &ExtractionResult{
			Info:     info,
			Degraded: true,
			Source:   "keyword",
			Prompt:   prompt,
			Quality:  ValidateExtractionQuality(info),
		}, nil
	}

	info, ok := ParseExtraction(reply)
	result := &ExtractionResult{Info: info, Source: "llm", Raw: reply, Prompt: prompt}
	if !ok {
		p.logger.Warn("extraction reply not parseable, falling back to pattern matching")
		result.Info = patternExtraction(inputText)
		result.Degraded = true
		result.Source = "pattern"
	}
	ensureRequiredFields(result.Info)
	result.Quality = ValidateExtractionQuality(result.Info)
	p.logger.Info("key information extracted",
		"source", result.Source, "fields", len(result.Info), "score", result.Quality.Score)
	return result, nil
}

// StreamExtractionPrompt returns the compact prompt used on the streaming
// extraction path, so handlers can surface it to the client first.
func (p *Pipeline) StreamExtractionPrompt(inputText string) (prompt, system string) {
	return buildStreamExtractionPrompt(inputText), extractionSystemPrompt
}

// ParseExtraction finds and decodes the first JSON object in a model reply.
func ParseExtraction(reply string) (domain.KeyInfo, bool) {
	blob := jsonObjectRe.FindString(reply)
	if blob == "" {
		return domain.KeyInfo{}, false
	}
	var info domain.KeyInfo
	if err := json.Unmarshal([]byte(blob), &info); err != nil {
		return domain.KeyInfo{}, false
	}
	return info, true
}

// patternExtraction recovers facts from the requirement text itself when
// the model reply cannot be decoded.
func patternExtraction(input string) domain.KeyInfo {
	info := domain.KeyInfo{}

	info["drug_type"] = "研究药物"
	for _, d := range drugPatterns {
		if d.Pattern.MatchString(input) {
			info["drug_type"] = d.Name
			break
		}
	}

	info["disease"] = "目标疾病"
	for _, d := range diseasePatterns {
		if d.Pattern.MatchString(input) {
			info["disease"] = d.Name
			break
		}
	}

	info["trial_phase"] = "I期"
	for _, ph := range phasePatterns {
		if ph.Pattern.MatchString(input) {
			info["trial_phase"] = ph.Name + "期"
			break
		}
	}

	stage := "进展期"
	if strings.Contains(input, "晚期") {
		stage = "晚期"
	}
	info["disease_stage"] = stage
	info["primary_objective"] = "评估安全性和耐受性"
	info["secondary_objectives"] = []string{"初步评估疗效"}
	info["primary_endpoint"] = "DLT和MTD"
	info["secondary_endpoints"] = []string{"ORR", "DCR", "PFS"}
	info["study_design"] = "开放标签、剂量递增研究"
	info["patient_population"] = info.GetString("disease", "") + "患者"
	info["estimated_enrollment"] = "12-30例"
	info["safety_focus"] = "剂量限制性毒性"
	info["efficacy_endpoints"] = "客观缓解率"
	return info
}

// keywordExtraction is the last-resort default table used when the model
// call itself failed.
func keywordExtraction(input string) domain.KeyInfo {
	drug := "研究药物"
	if strings.Contains(input, "TCR-T") {
		drug = "TCR-T细胞"
	} else if strings.Contains(input, "CAR-T") {
		drug = "CAR-T细胞"
	}
	disease := "实体瘤"
	if strings.Contains(input, "肺") {
		disease = "肺癌"
	} else if strings.Contains(input, "淋巴") {
		disease = "淋巴瘤"
	}
	return domain.KeyInfo{
		"drug_type":            drug,
		"disease":              disease,
		"disease_stage":        "晚期",
		"trial_phase":          "I期",
		"primary_objective":    "评估安全性和耐受性",
		"secondary_objectives": []string{"初步评估疗效"},
		"primary_endpoint":     "DLT和MTD",
		"secondary_endpoints":  []string{"ORR", "DCR", "PFS"},
		"study_design":         "开放标签、剂量递增研究",
		"patient_population":   "晚期实体瘤患者",
		"estimated_enrollment": "12-30例",
		"safety_focus":         "剂量限制性毒性",
		"efficacy_endpoints":   "客观缓解率",
	}
}

// ensureRequiredFields fills any missing required field with a placeholder
// so downstream stages never see an absent key.
func ensureRequiredFields(info domain.KeyInfo) {
	for _, field := range domain.RequiredKeyInfoFields {
		if _, ok := info[field]; !ok {
			info[field] = "待补充"
		}
	}
}

// ValidateExtractionQuality grades an extraction: pending placeholders on
// the drug or disease cost 20 points each, a missing phase or primary
// endpoint costs 15.
func ValidateExtractionQuality(info domain.KeyInfo) QualityCheck {
	score := 100
	var issues []string

	if strings.Contains(info.GetString("drug_type", ""), "待") {
		score -= 20
		issues = append(issues, "药物类型未明确")
	}
	if strings.Contains(info.GetString("disease", ""), "待") {
		score -= 20
		issues = append(issues, "目标疾病未明确")
	}
	if info.GetString("trial_phase", "") == "" {
		score -= 15
		issues = append(issues, "试验分期缺失")
	}
	if info.GetString("primary_endpoint", "") == "" {
		score -= 15
		issues = append(issues, "主要终点缺失")
	}

	recommendation := "信息完整"
	if score < 80 {
		recommendation = "建议补充完善"
	}
	return QualityCheck{Score: score, Issues: issues, Recommendation: recommendation}
}

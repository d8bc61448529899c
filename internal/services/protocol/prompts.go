// File: internal/services/protocol/prompts.go
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/trialforge/protocol-agent/internal/domain"
)

const (
	extractionSystemPrompt = "你是一位专业的临床试验方案专家。请从用户输入中提取临床试验方案的关键信息。"
	outlineSystemPrompt    = "你是一位临床试验方案撰写专家。请生成符合ICH-GCP标准的临床试验方案目录。"
)

// buildExtractionPrompt asks for the twelve structured fields as strict JSON.
func buildExtractionPrompt(inputText string) string {
	return fmt.Sprintf(`你是一位专业的临床试验方案专家。请从以下文本中提取临床试验方案的关键信息，并以JSON格式返回。

输入文本：
%s

请提取以下关键信息：
1. drug_type（药物类型）：如TCR-T细胞、CAR-T细胞、免疫检查点抑制剂等
2. disease（目标疾病）：具体的癌症类型和分期，如晚期肺鳞癌、复发难治性淋巴瘤等
3. trial_phase（试验分期）：I期、II期、III期或I/II期等
4. primary_objective（主要目的）：安全性、耐受性、有效性、剂量探索等
5. primary_endpoint（主要终点）：如MTD、RP2D、ORR、PFS、OS等
6. secondary_endpoints（次要终点）：列表形式，如DCR、DOR、安全性等
7. patient_population（目标人群）：详细的患者特征描述
8. estimated_enrollment（预计入组）：入组人数范围
9. study_design（研究设计）：单臂/双臂、开放/盲法、剂量递增等
10. inclusion_criteria_hints（入组标准提示）：关键的入组要求
11. treatment_line（治疗线数）：一线、二线或多线治疗
12. biomarker_requirements（生物标志物要求）：如HLA分型、抗原表达等

注意事项：
- 如果某项信息未明确提及，请根据临床试验常规做法进行合理推测
- 对于I期试验，主要终点通常是安全性和耐受性
- 对于细胞治疗产品，需要特别关注HLA配型和靶抗原表达
- 返回的JSON格式必须严格符合要求

返回格式示例：
{
    "drug_type": "TCR-T细胞治疗",
    "disease": "晚期肺鳞癌",
    "trial_phase": "I期",
    "primary_objective": "评估安全性、耐受性并确定RP2D",
    "primary_endpoint": "剂量限制性毒性(DLT)和最大耐受剂量(MTD)",
    "secondary_endpoints": ["客观缓解率(ORR)", "疾病控制率(DCR)", "无进展生存期(PFS)"],
    "patient_population": "既往标准治疗失败的晚期肺鳞癌患者",
    "estimated_enrollment": "12-18例",
    "study_design": "开放标签、单臂、剂量递增I期研究",
    "inclusion_criteria_hints": "HLA-A*02:01阳性，肿瘤表达靶抗原",
    "treatment_line": "二线及以上",
    "biomarker_requirements": "HLA-A*02:01阳性，NY-ESO-1表达阳性"
}`, inputText)
}

// buildStreamExtractionPrompt is the compact form used on the streaming path.
func buildStreamExtractionPrompt(inputText string) string {
	return fmt.Sprintf(`请从以下文本中提取临床试验方案的关键信息，并以JSON格式返回。

输入文本：
%s

请提取以下关键信息：
1. drug_type（药物类型）
2. disease（目标疾病）
3. trial_phase（试验分期）
4. primary_objective（主要目的）
5. primary_endpoint（主要终点）
6. secondary_endpoints（次要终点）
7. patient_population（目标人群）
8. estimated_enrollment（预计入组）
9. study_design（研究设计）
10. treatment_line（治疗线数）

返回纯JSON格式，不要有其他文字。`, inputText)
}

// buildOutlinePrompt embeds the confirmed facts and the full ten-chapter
// ICH-GCP skeleton the model should follow.
func buildOutlinePrompt(info domain.KeyInfo, originalInput string) string {
	return fmt.Sprintf(`基于以下确认的临床试验信息，生成一个完整的临床试验方案大纲：

确认信息：
- 药物类型：%s
- 适应症：%s
- 研究阶段：%s
- 研究类型：%s
- 主要目的：%s
- 目标人群：%s
- 主要终点：%s
- 预计入组：%s

原始需求：
%s

请生成符合ICH-GCP标准的临床试验方案大纲，包含以下标准章节（返回JSON数组格式）：

[
    {
        "title": "1. 研究背景与目的",
        "content": "包括疾病背景、药物机制、研究理论基础、主要目的和次要目的",
        "subsections": ["1.1 疾病背景", "1.2 药物介绍", "1.3 研究理论基础", "1.4 研究目的"]
    },
    {
        "title": "2. 研究设计",
        "content": "试验类型、分组设计、随机化、盲法、对照选择等",
        "subsections": ["2.1 试验类型", "2.2 研究终点", "2.3 试验设计图"]
    },
    {
        "title": "3. 研究人群",
        "content": "入选标准、排除标准、退出标准、中止标准",
        "subsections": ["3.1 入选标准", "3.2 排除标准", "3.3 退出标准", "3.4 中止标准"]
    },
    {
        "title": "4. 研究药物及给药方案",
        "content": "试验药物、对照药物、给药方案、剂量调整、合并用药",
        "subsections": ["4.1 试验药物", "4.2 给药方案", "4.3 剂量调整", "4.4 合并用药"]
    },
    {
        "title": "5. 研究流程",
        "content": "筛选期、治疗期、随访期的访视安排和检查项目",
        "subsections": ["5.1 研究流程图", "5.2 筛选期", "5.3 治疗期", "5.4 随访期"]
    },
    {
        "title": "6. 安全性评估",
        "content": "不良事件定义、严重程度分级、因果关系判定、安全性监测",
        "subsections": ["6.1 安全性参数", "6.2 不良事件", "6.3 严重不良事件", "6.4 安全性监测"]
    },
    {
        "title": "7. 疗效评估",
        "content": "疗效评价标准、评估时间点、疗效指标定义",
        "subsections": ["7.1 疗效评价标准", "7.2 疗效评估时间", "7.3 疗效指标定义"]
    },
    {
        "title": "8. 统计分析",
        "content": "样本量计算、统计分析集、分析方法、亚组分析",
        "subsections": ["8.1 样本量计算", "8.2 分析数据集", "8.3 统计方法", "8.4 期中分析"]
    },
    {
        "title": "9. 数据管理与质量控制",
        "content": "数据采集、质量保证、监查计划、数据管理",
        "subsections": ["9.1 数据管理", "9.2 质量保证", "9.3 监查计划"]
    },
    {
        "title": "10. 伦理与法规",
        "content": "伦理审查、知情同意、受试者保护、法规要求",
        "subsections": ["10.1 伦理要求", "10.2 知情同意", "10.3 数据保密", "10.4 法规符合性"]
    }
]

请确保每个章节都包含适当的子章节(subsections)，并且内容描述准确反映该章节应包含的要素。`,
		info.GetString("drug_type", "未指定"),
		info.GetString("indication", "未指定"),
		info.GetString("study_phase", "未指定"),
		info.GetString("study_type", "未指定"),
		info.GetString("primary_objectives", "未指定"),
		info.GetString("patient_population", "未指定"),
		info.GetString("primary_endpoint", "未指定"),
		info.GetString("estimated_enrollment", "未指定"),
		originalInput)
}

// buildStreamOutlinePrompt asks only for the table of contents.
func buildStreamOutlinePrompt(info domain.KeyInfo) string {
	encoded, err := json.Marshal(info)
	if err != nil {
		encoded = []byte("{}")
	}
	return fmt.Sprintf(`基于以下确认的临床试验信息，生成协议目录，仅需标题：
%s

返回格式示例：
[
  {"title": "1. 研究背景与目的", "subsections": ["1.1 ...", "1.2 ..."]},
  ...
]`, string(encoded))
}

// StandardOutline is the fixed ten-chapter template used when the model
// response cannot be parsed.
func StandardOutline() []domain.OutlineSection {
	return []domain.OutlineSection{
		{Title: "1. 研究背景与目的", Subsections: []string{"1.1 疾病背景", "1.2 药物介绍", "1.3 研究理论基础", "1.4 研究目的"}},
		{Title: "2. 研究设计", Subsections: []string{"2.1 试验类型与设计", "2.2 主要终点", "2.3 次要终点", "2.4 试验流程图"}},
		{Title: "3. 研究人群", Subsections: []string{"3.1 入选标准", "3.2 排除标准", "3.3 退出标准", "3.4 中止标准"}},
		{Title: "4. 研究药物及给药方案", Subsections: []string{"4.1 试验药物", "4.2 给药方案", "4.3 剂量调整", "4.4 合并用药管理"}},
		{Title: "5. 研究流程与访视安排", Subsections: []string{"5.1 研究流程总览", "5.2 筛选期", "5.3 治疗期", "5.4 随访期", "5.5 访视窗口期"}},
		{Title: "6. 安全性评估", Subsections: []string{"6.1 安全性参数", "6.2 不良事件定义与分级", "6.3 严重不良事件", "6.4 剂量限制毒性(DLT)"}},
		{Title: "7. 疗效评估", Subsections: []string{"7.1 疗效评价标准", "7.2 疗效评估时间点", "7.3 疗效指标定义", "7.4 探索性终点"}},
		{Title: "8. 统计分析计划", Subsections: []string{"8.1 样本量计算", "8.2 分析数据集", "8.3 统计分析方法", "8.4 期中分析", "8.5 亚组分析"}},
		{Title: "9. 数据管理与质量控制", Subsections: []string{"9.1 数据采集与管理", "9.2 质量保证", "9.3 临床监查", "9.4 稽查"}},
		{Title: "10. 伦理、法规与管理", Subsections: []string{"10.1 伦理委员会审查", "10.2 知情同意", "10.3 受试者保护", "10.4 方案偏离处理", "10.5 研究终止"}},
	}
}

const qualityRequirements = `

生成要求：
1. 内容必须专业、准确、详实
2. 符合ICH-GCP和中国药监局的相关要求
3. 引用数据必须标注来源
4. 使用标准的医学术语，必要时加注英文
5. 逻辑清晰，层次分明
6. 避免使用模糊或不确定的表述
`

const citationAddendum = `

重要要求：
1. 内容必须基于循证医学证据
2. 引用的文献必须真实可查（提供PMID/DOI/临床试验注册号）
3. 数据和结论必须有明确来源
4. 专业术语使用规范，可加注英文
5. 格式符合医学论文写作规范
6. 请勿在每个章节单独列出文献，将所有文献汇总到文章末尾。
`

// buildKnowledgeContext renders retrieved snippets for prompt embedding,
// tagged with their knowledge type.
func buildKnowledgeContext(results []domain.SearchResult, limit int) string {
	if len(results) == 0 {
		return "无相关知识库内容"
	}
	if len(results) > limit {
		results = results[:limit]
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("【%s】\n%s", r.KnowledgeType, r.Content))
	}
	return strings.Join(parts, "\n\n")
}

// buildSectionPrompt returns the drafting prompt for one outline chapter.
// The three core chapters have dedicated templates, everything else uses
// the generic form. Numbered chapter titles ("1. 研究背景与目的") match
// their templates by suffix.
func buildSectionPrompt(title string, info domain.KeyInfo, knowledgeContext string) string {
	drugType := info.GetString("drug_type", "试验药物")
	indication := info.GetString("indication", info.GetString("disease", "目标适应症"))
	studyPhase := info.GetString("study_phase", "I期")

	switch {
	case strings.HasSuffix(title, "研究背景与目的"):
		return fmt.Sprintf(`作为临床试验方案撰写专家，请撰写%s治疗%s的%s临床试验方案的"研究背景与目的"章节。

必须包含以下内容：

### 1.1 疾病背景
- %s的流行病学数据（发病率、死亡率、地域分布）
- 疾病的病理生理学特征和分子机制
- 目前的标准治疗方案及其局限性
- 未满足的临床需求

### 1.2 药物介绍
- %s的作用机制和药理学特性
- 非临床研究数据总结（药效学、药代动力学、毒理学）
- 同类药物的研发现状和临床数据
- 本药物的创新点和潜在优势

### 1.3 研究理论基础
- 选择%s作为目标适应症的科学依据
- 剂量选择的理论基础
- 生物标志物（如适用）的选择依据
- 预期的临床获益

### 1.4 研究目的
- 主要目的：%s
- 次要目的：%s
- 探索性目的：生物标志物探索、作用机制验证等

内置资料（仅供参考，不在章节中列出文献）：
%s
%s`, drugType, indication, studyPhase,
			indication, drugType, indication,
			info.GetString("primary_objective", "评估安全性和耐受性"),
			joinOrDefault(info.GetStrings("secondary_objectives"), "初步疗效评估, PK/PD特征"),
			knowledgeContext, qualityRequirements)

	case strings.HasSuffix(title, "研究设计"):
		secondary := info.GetStrings("secondary_endpoints")
		if len(secondary) == 0 {
			secondary = []string{"ORR", "DCR", "DOR", "PFS", "OS", "PK参数"}
		}
		var endpoints strings.Builder
		for _, ep := range secondary {
			endpoints.WriteString("- " + ep + "\n")
		}
		return fmt.Sprintf(`请详细设计%s治疗%s的%s临床试验方案的"研究设计"章节。

### 2.1 试验总体设计
- 试验类型：%s
- 试验分期：剂量递增期 + 剂量扩展期（如适用）
- 预计试验周期：筛选期（X周）+ 治疗期（X个周期）+ 随访期（X个月）

### 2.2 剂量递增设计（如适用于I期）
- 剂量递增方案：3+3设计 / BOIN设计 / CRM设计
- 起始剂量：基于非临床数据的1/10 NOAEL或1/6 STD10
- 剂量递增幅度：首次100%%，后续根据DLT情况调整（50%%或33%%）
- DLT定义窗口期：第1个治疗周期（28天）
- 剂量限制性毒性(DLT)定义：
  * 4级血液学毒性持续≥7天
  * 3级非血液学毒性（除外可控制的恶心/呕吐）
  * 治疗相关的延迟>14天
  * 其他研究者判定的不可接受毒性

### 2.3 研究终点
主要终点：
- %s
- 安全性和耐受性评估

次要终点：
%s
探索性终点：
- 免疫监测指标
- 生物标志物与疗效相关性
- 耐药机制探索

### 2.4 样本量计算
- 剂量递增期：%s
- 剂量扩展期：%s
- 统计学假设和计算依据

内置资料（仅供参考，不在章节中列出文献）：
%s
%s`, drugType, indication, studyPhase,
			info.GetString("study_design", "开放标签、单臂、剂量递增"),
			info.GetString("primary_endpoint", "MTD和RP2D的确定"),
			endpoints.String(),
			info.GetString("dose_escalation_n", "18-24例"),
			info.GetString("dose_expansion_n", "10-20例"),
			knowledgeContext, qualityRequirements)

	case strings.HasSuffix(title, "研究人群"):
		return fmt.Sprintf(`请制定%s患者参加%s%s临床试验的"研究人群"章节。

### 3.1 入选标准
1. 年龄≥18岁，≤75岁，性别不限
2. 组织学或细胞学确诊的%s
3. 疾病分期要求：%s
4. 既往治疗：%s
5. ECOG PS评分：0-1分（或KPS≥70分）
6. 预期生存期≥3个月
7. 至少有一个可测量病灶（RECIST 1.1标准）
8. 器官功能满足：
   - 血液学：ANC≥1.5×10⁹/L，PLT≥100×10⁹/L，Hb≥90g/L
   - 肝功能：TBIL≤1.5×ULN，ALT/AST≤2.5×ULN（肝转移≤5×ULN）
   - 肾功能：Cr≤1.5×ULN或肌酐清除率≥50mL/min
   - 心功能：LVEF≥50%%
9. 生育能力者同意采取有效避孕措施
10. 签署知情同意书

特殊要求（如适用）：
- HLA分型：%s
- 生物标志物：%s

### 3.2 排除标准
1. 中枢神经系统转移（除非已治疗稳定≥4周）
2. 活动性自身免疫性疾病
3. 需要系统性免疫抑制治疗
4. 活动性感染（HBV、HCV、HIV、结核等）
5. 既往使用过%s类似药物
6. 4周内接受过其他抗肿瘤治疗
7. 严重的心血管疾病史
8. 妊娠或哺乳期妇女
9. 精神疾病或依从性差
10. 研究者认为不适合参加试验的其他情况

### 3.3 退出标准
- 受试者撤回知情同意
- 疾病进展
- 不可耐受的毒性
- 研究者判断继续治疗对受试者不利
- 严重违背方案
- 妊娠

### 3.4 中止标准
- 连续出现非预期的SAE
- DSMB建议终止
- 监管部门要求

内置资料（仅供参考，不在章节中列出文献）：
%s
%s`, indication, drugType, studyPhase,
			indication,
			info.GetString("disease_stage", "局部晚期或转移性"),
			info.GetString("prior_therapy", "标准治疗失败或不耐受"),
			info.GetString("hla_requirement", ""),
			info.GetString("biomarker_requirement", ""),
			drugType,
			knowledgeContext, qualityRequirements)

	default:
		return fmt.Sprintf("请撰写%s部分的内容。%s\n\n内置资料（仅供参考，不在章节中列出文献）：\n%s",
			title, qualityRequirements, knowledgeContext)
	}
}

// BuildSectionPrompt is the exported prompt builder used by the prompt
// preview endpoint. It includes the citation addendum exactly like the
// streaming generation path does.
func BuildSectionPrompt(title string, info domain.KeyInfo, results []domain.SearchResult, contextLimit int) string {
	return buildSectionPrompt(title, info, buildKnowledgeContext(results, contextLimit)) + citationAddendum
}

// buildModulePrompt serves the fixed seven-module legacy pipeline.
func buildModulePrompt(key, requirement string, info domain.KeyInfo, knowledgeContext string) string {
	drugType := info.GetString("drug_type", "")
	disease := info.GetString("disease", "")
	phase := info.GetString("phase", "")

	switch key {
	case "basic_framework":
		return fmt.Sprintf(`请为以下临床试验需求设计基础框架：

用户需求：%s

提取的关键信息：
- 药物类型：%s
- 目标疾病：%s
- 试验期别：%s期
- 研究设计：%s

参考知识：
%s

请撰写"基础框架设计"部分，包括：
1. 试验类型和设计概述
2. 研究期别说明
3. 试验的创新性和科学依据
4. 预期研究时长

要求：专业、简洁、符合GCP规范。`, requirement, drugType, disease, phase, info.GetString("study_design", ""), knowledgeContext)

	case "background_objectives":
		return fmt.Sprintf(`请撰写临床试验的研究背景与目标部分：

用户需求：%s

关键信息：
- 药物：%s
- 疾病：%s
- 期别：%s期
- 主要目标：%s

参考资料：
%s

请包含：
1. 疾病背景和未满足的医疗需求
2. 研究药物的作用机制和前期研究
3. 主要研究目标
4. 次要研究目标
5. 研究的科学价值和临床意义

要求：逻辑清晰，有科学依据。`, requirement, drugType, disease, phase, info.GetString("primary_objective", ""), knowledgeContext)

	case "study_design":
		return fmt.Sprintf(`请设计详细的试验方案：

基本信息：
- 药物：%s
- 疾病：%s
- 期别：%s期
- 设计类型：%s

参考资料：
%s

请详细描述：
1. 试验设计类型（如开放标签、随机对照等）
2. 试验流程和时间安排
3. 访视计划和评估时点
4. 剂量递增方案（如适用）
5. 终止和退出标准
6. 随访计划

要求：详细具体，可操作性强。`, drugType, disease, phase, info.GetString("study_design", ""), knowledgeContext)

	case "subject_criteria":
		return fmt.Sprintf(`请制定受试者选择标准：

疾病信息：
- 疾病：%s
- 疾病分期：%s
- 患者群体：%s

参考资料：
%s

请详细制定：
1. 入选标准（包括疾病诊断、分期、既往治疗等）
2. 排除标准（包括合并症、实验室指标等）
3. 受试者数量和计算依据
4. 入组流程和时间要求

要求：标准明确，符合伦理要求。`, disease, info.GetString("disease_stage", ""), info.GetString("patient_population", ""), knowledgeContext)

	case "dosing_regimen":
		return fmt.Sprintf(`请设计给药方案：

药物信息：
- 药物类型：%s
- 试验期别：%s期
- 安全性关注：%s

参考资料：
%s

请详细设计：
1. 给药途径和方法
2. 剂量水平和递增方案
3. 给药周期和持续时间
4. 剂量调整规则
5. 合并用药限制

要求：安全可行，有科学依据。`, drugType, phase, info.GetString("safety_focus", ""), knowledgeContext)

	case "safety_monitoring":
		return fmt.Sprintf(`请制定安全性监测计划：

安全关注：
- 主要安全性关注：%s
- 药物类型：%s
- 期别：%s期

参考资料：
%s

请包含：
1. 安全性评估指标
2. 不良事件监测和报告
3. 实验室检查计划
4. 剂量限制性毒性(DLT)定义
5. 安全性委员会设置
6. 紧急情况处理

要求：全面周密，保障受试者安全。`, info.GetString("safety_focus", ""), drugType, phase, knowledgeContext)

	case "statistical_plan":
		return fmt.Sprintf(`请制定统计分析计划：

研究信息：
- 期别：%s期
- 主要终点：%s
- 疗效终点：%s

参考资料：
%s

请详细制定：
1. 样本量计算和依据
2. 主要终点的统计分析方法
3. 次要终点的分析方法
4. 中期分析计划（如适用）
5. 缺失数据处理
6. 多重比较校正

要求：统计方法合理，符合法规要求。`, phase, info.GetString("primary_objective", ""), info.GetString("efficacy_endpoints", ""), knowledgeContext)

	default:
		return fmt.Sprintf("请为%s模块生成内容。", key)
	}
}

// buildQualityPrompt produces one rubric evaluation prompt over a bounded
// view of the assembled protocol.
func buildQualityPrompt(rubric, content string) string {
	points := map[string]string{
		"模块完整性": `1. 是否包含必要的所有模块
2. 各模块内容是否充实
3. 关键信息是否遗漏
4. 模块间连接是否完整`,
		"科学严谨性": `1. 科学假设是否合理
2. 研究设计是否严谨
3. 统计方法是否适当
4. 结论是否有依据`,
		"法规合规性": `1. 是否符合GCP要求
2. 伦理考量是否充分
3. 安全监测是否到位
4. 法规流程是否完整`,
		"逻辑一致性": `1. 各部分逻辑是否连贯
2. 前后描述是否一致
3. 时间安排是否合理
4. 整体结构是否清晰`,
	}
	p, ok := points[rubric]
	if !ok {
		return fmt.Sprintf("请评估%s（0-100分）", rubric)
	}
	return fmt.Sprintf(`请评估以下临床试验方案的%s（0-100分）：

%s...

评估要点：
%s

请给出评分（0-100）并简要说明理由。格式：评分：XX分`, rubric, content, p)
}

func joinOrDefault(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return strings.Join(values, ", ")
}

package stepwise

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const decomposerSystemPrompt = "You are a planning assistant that splits a complex problem into an ordered list of atomic sub-problems. Each sub-problem must be independently describable and small enough to answer in one step. For each sub-problem, state which earlier sub-problems (by zero-based position) it depends on. Output ONLY a JSON object of the form {\"subproblems\": [{\"question\": \"...\", \"depends_on\": [0, 1]}]}. Do not include prose outside the JSON."

const solverSystemPrompt = "You solve exactly one sub-problem of a larger problem. Use ONLY the sub-problem statement and the prior results provided — prior results are authoritative, do not recompute or contradict them. Answer directly and concisely in plain text."

const verifierSystemPrompt = "You check whether an assembled answer is internally consistent with the original problem statement. Look for contradictions between parts, results that do not follow from one another, and parts that ignore the problem's constraints. Output exactly one line starting with 'Verdict: Consistent' or 'Verdict: Inconsistent', followed by a line 'Explanation: <why>'."

func buildDecomposerUserPrompt(problem string) string {
	var b strings.Builder
	b.WriteString("Problem:\n")
	b.WriteString(problem)
	b.WriteString("\n\nSplit this problem into the smallest useful set of sub-problems.\n")
	b.WriteString("Rules:\n")
	b.WriteString("- \"depends_on\" lists zero-based positions of sub-problems whose answers this one needs.\n")
	b.WriteString("- A sub-problem may only depend on sub-problems listed before it.\n")
	b.WriteString("- Leave \"depends_on\" empty for sub-problems that stand alone.\n")
	b.WriteString("Respond with only the JSON object.")
	return b.String()
}

func buildSolveUserPrompt(problem string, sub Subproblem, results ResultsMap) string {
	var b strings.Builder
	b.WriteString("Overall problem:\n")
	b.WriteString(problem)
	b.WriteString("\n\nSub-problem:\n")
	b.WriteString(sub.Question)
	if len(sub.DependsOn) > 0 {
		b.WriteString("\n\nResults of prerequisite sub-problems:\n")
		for _, dep := range sub.DependsOn {
			res, ok := results[dep]
			if !ok || res.Status != StatusSolved {
				continue
			}
			fmt.Fprintf(&b, "Result %d: %s\n", dep, strings.TrimSpace(res.Answer))
		}
	}
	b.WriteString("\nAnswer the sub-problem.")
	return b.String()
}

func buildVerifierUserPrompt(problem, answer string) string {
	var b strings.Builder
	b.WriteString("Original problem:\n")
	b.WriteString(problem)
	b.WriteString("\n\nAssembled answer:\n")
	b.WriteString(answer)
	b.WriteString("\n\nIs the assembled answer internally consistent with the original problem?")
	return b.String()
}

var thinkRegex = regexp.MustCompile(`(?s)<think>.*?</think>`)        //nolint:gochecknoglobals
var fenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```") //nolint:gochecknoglobals
var planRegex = regexp.MustCompile(`(?s)<plan>\s*(.*?)\s*</plan>`)  //nolint:gochecknoglobals
var verdictRegex = regexp.MustCompile(`(?i)verdict\s*[:\-]\s*(\w+)`) //nolint:gochecknoglobals

// StripThinkBlocks removes <think>...</think> blocks from LLM responses.
// Some models (like qwen3) output reasoning in these blocks.
func StripThinkBlocks(s string) string {
	return strings.TrimSpace(thinkRegex.ReplaceAllString(s, ""))
}

// getContent extracts usable text from an LLM response. It strips <think>
// blocks from Text first. If Text is empty (e.g. thinking models that put
// everything in reasoning tokens), falls back to the Reasoning field.
func getContent(resp LLMResponse) string {
	text := StripThinkBlocks(resp.Text)
	if strings.TrimSpace(text) != "" {
		return text
	}
	return StripThinkBlocks(resp.Reasoning)
}

// extractJSONPayload pulls the JSON body out of a model response that may
// wrap it in a fenced code block or <plan> tags, or surround it with prose.
func extractJSONPayload(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if m := planRegex.FindStringSubmatch(trimmed); len(m) == 2 {
		trimmed = strings.TrimSpace(m[1])
	}
	if m := fenceRegex.FindStringSubmatch(trimmed); len(m) == 2 {
		trimmed = strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return trimmed
	}
	// Fall back to the outermost brace or bracket pair.
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(trimmed, pair[0])
		end := strings.LastIndex(trimmed, pair[1])
		if start >= 0 && end > start {
			return trimmed[start : end+1]
		}
	}
	return trimmed
}

// parseDecomposition reads the decomposer output into Subproblem records.
// It accepts either the requested {"subproblems": [...]} object or a bare
// array. Structural validation happens separately in validateSubproblems.
func parseDecomposition(raw string) ([]Subproblem, error) {
	payload := extractJSONPayload(raw)

	var wrapped struct {
		Subproblems []Subproblem `json:"subproblems"`
	}
	if err := json.Unmarshal([]byte(payload), &wrapped); err == nil {
		return wrapped.Subproblems, nil
	}

	var bare []Subproblem
	if err := json.Unmarshal([]byte(payload), &bare); err == nil {
		return bare, nil
	}

	return nil, decompositionErrorf("unable to parse decomposer output: %q", raw)
}

// parseVerdict reads the verifier output. It tolerates missing labels as
// long as a clear consistent/inconsistent judgement is present.
func parseVerdict(raw string) (VerificationReport, error) {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)

	verdictWord := ""
	if m := verdictRegex.FindStringSubmatch(trimmed); len(m) == 2 {
		verdictWord = strings.ToLower(m[1])
	} else if strings.Contains(lower, "inconsistent") {
		verdictWord = "inconsistent"
	} else if strings.Contains(lower, "consistent") {
		verdictWord = "consistent"
	}

	explanation := ""
	if idx := strings.Index(lower, "explanation:"); idx >= 0 {
		explanation = strings.TrimSpace(trimmed[idx+len("explanation:"):])
	}

	switch verdictWord {
	case "consistent":
		return VerificationReport{Verdict: VerdictConsistent, Explanation: explanation}, nil
	case "inconsistent":
		return VerificationReport{Verdict: VerdictInconsistent, Explanation: explanation}, nil
	}
	return VerificationReport{}, fmt.Errorf("%w: unable to parse verifier output: %q", ErrBackendResponse, raw)
}

// Package evalrun is a batch evaluation harness: it runs a fixed set of
// research questions through the orchestrator and scores each resulting
// RunState against expected keywords, then aggregates percentile stats
// across the batch.
package evalrun

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"deepresearch/internal/research"
)

var citationRe = regexp.MustCompile(`\[(\d+)\]`)

// CitationAccuracy reports the fraction of [N] citations in report that
// fall within [1, nSources].
type CitationAccuracy struct {
	TotalCitations int
	OutOfBounds    []int
	Accuracy       float64
}

// CheckCitationAccuracy scores citation validity for one report.
func CheckCitationAccuracy(report string, nSources int) CitationAccuracy {
	if report == "" || nSources <= 0 {
		return CitationAccuracy{Accuracy: 1.0}
	}

	seen := make(map[int]struct{})
	var all []int
	bad := 0
	for _, m := range citationRe.FindAllStringSubmatch(report, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		all = append(all, n)
		if n < 1 || n > nSources {
			seen[n] = struct{}{}
			bad++
		}
	}

	outOfBounds := make([]int, 0, len(seen))
	for n := range seen {
		outOfBounds = append(outOfBounds, n)
	}
	sort.Ints(outOfBounds)

	accuracy := 1.0
	if len(all) > 0 {
		accuracy = 1.0 - float64(bad)/float64(len(all))
	}

	return CitationAccuracy{
		TotalCitations: len(all),
		OutOfBounds:    outOfBounds,
		Accuracy:       round3(accuracy),
	}
}

// CitationDensity reports the fraction of content sentences (lines outside
// headings and the references block) that carry at least one citation.
type CitationDensity struct {
	CitedSentences int
	TotalSentences int
	Density        float64
}

// CheckCitationDensity scores how well-grounded a report's claims are.
func CheckCitationDensity(report string) CitationDensity {
	if report == "" {
		return CitationDensity{}
	}

	var content []string
	inReferences := false
	for _, line := range strings.Split(report, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## References") {
			inReferences = true
			continue
		}
		if inReferences || trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		content = append(content, trimmed)
	}

	if len(content) == 0 {
		return CitationDensity{}
	}

	cited := 0
	for _, line := range content {
		if citationRe.MatchString(line) {
			cited++
		}
	}

	return CitationDensity{
		CitedSentences: cited,
		TotalSentences: len(content),
		Density:        round3(float64(cited) / float64(len(content))),
	}
}

// KeywordCoverage reports recall of expected keywords in the report.
type KeywordCoverage struct {
	Found   []string
	Missing []string
	Recall  float64
}

// CheckKeywordCoverage scores whether the report surfaced the expected facts.
func CheckKeywordCoverage(report string, expectedKeywords []string) KeywordCoverage {
	if report == "" || len(expectedKeywords) == 0 {
		return KeywordCoverage{Missing: expectedKeywords}
	}

	lower := strings.ToLower(report)
	var found, missing []string
	for _, kw := range expectedKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			found = append(found, kw)
		} else {
			missing = append(missing, kw)
		}
	}

	return KeywordCoverage{
		Found:   found,
		Missing: missing,
		Recall:  round3(float64(len(found)) / float64(len(expectedKeywords))),
	}
}

// SourceQuality summarizes proxy signals about the collected sources.
type SourceQuality struct {
	AvgWordCount   float64
	NSources       int
	TavilyFraction float64
}

// CheckSourceQuality scores the collected PageSummary set.
func CheckSourceQuality(summaries []research.PageSummary) SourceQuality {
	if len(summaries) == 0 {
		return SourceQuality{}
	}

	total := 0
	tavilyCount := 0
	for _, s := range summaries {
		total += s.WordCount
		if s.Source == research.SourceTavily {
			tavilyCount++
		}
	}

	return SourceQuality{
		AvgWordCount:   round1(float64(total) / float64(len(summaries))),
		NSources:       len(summaries),
		TavilyFraction: round3(float64(tavilyCount) / float64(len(summaries))),
	}
}

// RunScore is the composite evaluation score for one completed run.
type RunScore struct {
	Status           research.Status
	NSources         int
	NRounds          int
	CostUSD          float64
	CitationAccuracy CitationAccuracy
	CitationDensity  CitationDensity
	KeywordCoverage  KeywordCoverage
	SourceQuality    SourceQuality
	Overall          float64
}

// Score computes the composite score: 50% keyword recall, 30% citation
// accuracy, 20% citation density.
func Score(state *research.RunState, expectedKeywords []string) RunScore {
	citAcc := CheckCitationAccuracy(state.FinalReport, len(state.Sources))
	citDen := CheckCitationDensity(state.FinalReport)
	kwCov := CheckKeywordCoverage(state.FinalReport, expectedKeywords)
	srcQ := CheckSourceQuality(state.PageSummaries)

	overall := 0.50*kwCov.Recall + 0.30*citAcc.Accuracy + 0.20*citDen.Density

	return RunScore{
		Status:           state.Status,
		NSources:         len(state.Sources),
		NRounds:          state.RoundsCompleted,
		CostUSD:          state.EstimatedCostUSD,
		CitationAccuracy: citAcc,
		CitationDensity:  citDen,
		KeywordCoverage:  kwCov,
		SourceQuality:    srcQ,
		Overall:          round3(overall),
	}
}

func round3(f float64) float64 { return math.Round(f*1000) / 1000 }
func round1(f float64) float64 { return math.Round(f*10) / 10 }

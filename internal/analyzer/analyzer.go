// Package analyzer derives routing signals from a text chunk: script family,
// technical and mathematical density, and a composite complexity grade.
// Analysis is pure and stateless; a bad classification degrades routing
// quality, never availability.
package analyzer

import (
	"regexp"
	"strings"
)

// Script is the detected writing system of a chunk.
type Script string

const (
	ScriptLatin      Script = "latin"
	ScriptDevanagari Script = "devanagari"
	ScriptArabic     Script = "arabic"
	ScriptBengali    Script = "bengali"
)

// Complexity grades how demanding a chunk is for a language model.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Priority ranks how carefully a chunk must be routed.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Analysis is the per-chunk routing profile. Recomputed on every request,
// never persisted.
type Analysis struct {
	WordCount          int        `json:"word_count"`
	CharCount          int        `json:"char_count"`
	AvgWordLength      float64    `json:"avg_word_length"`
	Script             Script     `json:"script"`
	Language           string     `json:"language"`
	LanguageConfidence float64    `json:"language_confidence"`
	HasIndicScript     bool       `json:"has_indic_script"`
	TechnicalScore     int        `json:"technical_score"`
	MathScore          int        `json:"math_score"`
	ComplexityScore    float64    `json:"complexity_score"`
	Complexity         Complexity `json:"complexity"`
	Priority           Priority   `json:"priority"`
}

const (
	maxTechnicalScore = 10
	maxMathScore      = 5
	complexThreshold  = 7
	mediumThreshold   = 4
)

// technicalKeywords are counted once each, case-insensitive.
var technicalKeywords = []string{
	"algorithm", "method", "analysis", "research", "study", "theory",
	"implementation", "framework", "model", "system", "approach",
	"technique", "process", "evaluation", "experimental", "optimization",
	"database", "network", "protocol", "architecture", "design",
	"mathematics", "equation", "formula", "calculation", "statistics",
	"machine learning", "artificial intelligence", "deep learning",
	"neural network", "data science", "programming", "software",
}

var mathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d+\s*[+\-*/=]\s*\d+`),
	regexp.MustCompile(`[a-zA-Z]\s*=\s*\d+`),
	regexp.MustCompile(`∫|∑|∏|√|∆|∇|∂`),
	regexp.MustCompile(`\b(sin|cos|tan|log|ln)\b`),
}

// Analyze computes the routing profile for a chunk. It never fails: empty or
// degenerate input yields a safe default profile.
func Analyze(chunk string) Analysis {
	words := strings.Fields(chunk)
	wordCount := len(words)
	charCount := len([]rune(chunk))

	if wordCount == 0 {
		return Analysis{
			CharCount:          charCount,
			Script:             ScriptLatin,
			Language:           "en",
			LanguageConfidence: 0.5,
			Complexity:         ComplexityMedium,
			ComplexityScore:    5.0,
			Priority:           PriorityMedium,
		}
	}

	totalLen := 0
	for _, w := range words {
		totalLen += len([]rune(w))
	}
	avgWordLength := float64(totalLen) / float64(wordCount)

	script, language, confidence, hasIndic := detectScript(chunk, wordCount)
	technical := technicalScore(chunk)
	math := mathScore(chunk)
	score := complexityScore(wordCount, technical, math, avgWordLength)

	var complexity Complexity
	switch {
	case score >= complexThreshold:
		complexity = ComplexityComplex
	case score >= mediumThreshold:
		complexity = ComplexityMedium
	default:
		complexity = ComplexitySimple
	}

	return Analysis{
		WordCount:          wordCount,
		CharCount:          charCount,
		AvgWordLength:      avgWordLength,
		Script:             script,
		Language:           language,
		LanguageConfidence: confidence,
		HasIndicScript:     hasIndic,
		TechnicalScore:     technical,
		MathScore:          math,
		ComplexityScore:    score,
		Complexity:         complexity,
		Priority:           priorityFor(hasIndic, complexity, technical),
	}
}

// detectScript counts runes in the Devanagari, Arabic, and Bengali Unicode
// blocks. The dominant block wins; anything else is treated as Latin/English.
func detectScript(chunk string, wordCount int) (Script, string, float64, bool) {
	var devanagari, arabic, bengali int
	for _, r := range chunk {
		switch {
		case r >= 0x0900 && r <= 0x097F:
			devanagari++
		case r >= 0x0600 && r <= 0x06FF:
			arabic++
		case r >= 0x0980 && r <= 0x09FF:
			bengali++
		}
	}

	script := ScriptLatin
	language := "en"
	matches := 0
	switch {
	case devanagari >= arabic && devanagari >= bengali && devanagari > 0:
		script, language, matches = ScriptDevanagari, "hi", devanagari
	case arabic >= bengali && arabic > 0:
		script, language, matches = ScriptArabic, "ur", arabic
	case bengali > 0:
		script, language, matches = ScriptBengali, "bn", bengali
	}

	if matches == 0 {
		return ScriptLatin, "en", 0.8, false
	}

	confidence := float64(matches) / float64(wordCount) * 10
	if confidence > 1.0 {
		confidence = 1.0
	}
	return script, language, confidence, true
}

func technicalScore(chunk string) int {
	lower := strings.ToLower(chunk)
	count := 0
	for _, kw := range technicalKeywords {
		if strings.Contains(lower, kw) {
			count++
		}
	}
	if count > maxTechnicalScore {
		return maxTechnicalScore
	}
	return count
}

func mathScore(chunk string) int {
	count := 0
	for _, p := range mathPatterns {
		count += len(p.FindAllString(chunk, -1))
	}
	if count > maxMathScore {
		return maxMathScore
	}
	return count
}

// complexityScore blends word count, vocabulary density, and word length
// into a 0-10 score.
func complexityScore(wordCount, technical, math int, avgWordLength float64) float64 {
	wordFactor := float64(wordCount) / 200
	if wordFactor > 3 {
		wordFactor = 3
	}

	lengthFactor := 0.0
	if avgWordLength > 4 {
		lengthFactor = (avgWordLength - 4) * 0.2
		if lengthFactor > 1 {
			lengthFactor = 1
		}
	}

	score := wordFactor + float64(technical)*0.4 + float64(math)*0.4 + lengthFactor
	if score > 10 {
		score = 10
	}
	return score
}

func priorityFor(hasIndic bool, complexity Complexity, technical int) Priority {
	switch {
	case hasIndic:
		return PriorityCritical
	case complexity == ComplexityComplex || technical >= 7:
		return PriorityHigh
	case complexity == ComplexityMedium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

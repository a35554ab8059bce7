// Package signals derives typed attributes from raw resume text using
// keyword and regular-expression heuristics. Nothing here fails: text without
// matches yields empty or zero results.
package signals

import (
	"regexp"
	"strconv"
)

// Education tags.
const (
	EducationBTech = "btech"
	EducationBSc   = "bsc"
	EducationMTech = "mtech"
	EducationMSc   = "msc"
	EducationMBA   = "mba"
)

type educationPattern struct {
	tag string
	re  *regexp.Regexp
}

// Order is significant: tags are reported in this order.
var educationPatterns = []educationPattern{
	{EducationBTech, regexp.MustCompile(`(?i)\bB\.?\s?Tech\b|Bachelor\s+of\s+Technology|BTech\b`)},
	{EducationBSc, regexp.MustCompile(`(?i)\bB\.?\s?Sc\b|Bachelor\s+of\s+Science`)},
	{EducationMTech, regexp.MustCompile(`(?i)\bM\.?\s?Tech\b|Master\s+of\s+Technology`)},
	{EducationMSc, regexp.MustCompile(`(?i)\bM\.?\s?Sc\b|Master\s+of\s+Science`)},
	{EducationMBA, regexp.MustCompile(`(?i)\bMBA\b|Master\s+of\s+Business\s+Administration`)},
}

// Gazetteer lists the recognised locations. Detection returns the first entry
// that matches, so the order here decides ties.
var Gazetteer = []string{
	"Hyderabad",
	"Bengaluru",
	"Bangalore",
	"Pune",
	"Chennai",
	"Mumbai",
	"Delhi",
}

var locationPatterns = compileGazetteer(Gazetteer)

// Durations are read with ASCII digits only; strconv.Atoi cannot parse others.
var (
	yearsRe  = regexp.MustCompile(`(?i)(\d+)\s+years?`)
	monthsRe = regexp.MustCompile(`(?i)(\d+)\s+months?`)
)

// Signals bundles everything derived from one resume text.
type Signals struct {
	Education        []string
	Location         string
	ExperienceMonths int
}

// Extract runs every detector over text.
func Extract(text string) Signals {
	return Signals{
		Education:        DetectEducation(text),
		Location:         DetectLocation(text),
		ExperienceMonths: EstimateExperienceMonths(text),
	}
}

// DetectEducation returns every education tag whose pattern matches at least once.
func DetectEducation(text string) []string {
	var found []string
	for _, p := range educationPatterns {
		if p.re.MatchString(text) {
			found = append(found, p.tag)
		}
	}
	return found
}

// DetectLocation returns the first gazetteer entry found in text as a whole
// word, or an empty string.
func DetectLocation(text string) string {
	for i, re := range locationPatterns {
		if re.MatchString(text) {
			return Gazetteer[i]
		}
	}
	return ""
}

// EstimateExperienceMonths sums every "<n> years" (times 12) and "<n> months"
// mention. Repeated mentions of the same period are all counted.
func EstimateExperienceMonths(text string) int {
	return sumMatches(yearsRe, text)*12 + sumMatches(monthsRe, text)
}

func sumMatches(re *regexp.Regexp, text string) int {
	total := 0
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			// overflowing digit runs are ignored
			continue
		}
		total += n
	}
	return total
}

func compileGazetteer(names []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(names))
	for _, name := range names {
		res = append(res, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(name)+`\b`))
	}
	return res
}

package cv

import (
	"regexp"
	"strings"
)

const (
	SectionEducation      = "education"
	SectionExperience     = "experience"
	SectionSkills         = "skills"
	SectionProjects       = "projects"
	SectionSummary        = "summary"
	SectionCertifications = "certifications"
	SectionLanguages      = "languages"
	SectionContact        = "contact"
)

type sectionPattern struct {
	label   string
	pattern *regexp.Regexp
}

var sectionPatterns = []sectionPattern{
	{SectionEducation, regexp.MustCompile(`(?i)\b(education|academic|qualification|degree)s?\b`)},
	{SectionExperience, regexp.MustCompile(`(?i)\b(experience|employment|work history|professional)\b`)},
	{SectionSkills, regexp.MustCompile(`(?i)\b(skills|technical skills|competencies|expertise)\b`)},
	{SectionProjects, regexp.MustCompile(`(?i)\b(projects|portfolio|works)\b`)},
	{SectionSummary, regexp.MustCompile(`(?i)\b(summary|profile|objective|about me)\b`)},
	{SectionCertifications, regexp.MustCompile(`(?i)\b(certifications|certificates|accreditations)\b`)},
	{SectionLanguages, regexp.MustCompile(`(?i)\b(languages|language proficiency)\b`)},
	{SectionContact, regexp.MustCompile(`(?i)\b(contact|personal details|personal information)\b`)},
}

// ExtractSections finds common CV headings. A section runs from its heading
// to the next heading of any kind. Repeated headings are joined by newlines.
func ExtractSections(text string) map[string]string {
	sections := make(map[string]string)

	for _, sp := range sectionPatterns {
		for _, loc := range sp.pattern.FindAllStringIndex(text, -1) {
			start := loc[0]
			content := strings.TrimSpace(text[start:nextHeading(text, start)])

			if existing, ok := sections[sp.label]; ok {
				sections[sp.label] = existing + "\n" + content
			} else {
				sections[sp.label] = content
			}
		}
	}

	return sections
}

// nextHeading returns the offset of the nearest heading that starts after
// start, or len(text).
func nextHeading(text string, start int) int {
	next := len(text)
	if start+1 >= len(text) {
		return next
	}

	rest := text[start+1:]
	for _, sp := range sectionPatterns {
		if loc := sp.pattern.FindStringIndex(rest); loc != nil {
			if pos := start + 1 + loc[0]; pos < next {
				next = pos
			}
		}
	}
	return next
}

package ranking

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/spigell/cv-ranker/internal/cv"
	"github.com/spigell/cv-ranker/internal/utils"
)

//go:embed prompt.md
var promptTemplate string

const (
	educationLimit  = 500
	experienceLimit = 1000
	skillsLimit     = 500
	chunkLimit      = 500
	profileChunks   = 3
	cleanedLimit    = 2000
	notAvailable    = "N/A"
)

func buildPrompt(jobDescription string, profiles []string, finalRanking int) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Job Requirements:\n{{JOB_DESCRIPTION}}\n\nCandidate Profiles:\n{{CANDIDATE_PROFILES}}\n\nRank the top {{FINAL_RANKING}} candidates (1-{{CANDIDATE_COUNT}}) as a comma-separated list:"
	}

	r := strings.NewReplacer(
		"{{JOB_DESCRIPTION}}", jobDescription,
		"{{CANDIDATE_PROFILES}}", strings.Join(profiles, "\n\n"),
		"{{FINAL_RANKING}}", strconv.Itoa(finalRanking),
		"{{CANDIDATE_COUNT}}", strconv.Itoa(len(profiles)),
	)
	return r.Replace(template)
}

// buildProfile renders candidate number n (1-based) for the ranking prompt.
// Sections are preferred, then the leading chunks, then the cleaned text.
func buildProfile(n int, rec *cv.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[Candidate %d]\nFile: %s\n", n, rec.Filename)
	if rec.Contact != nil {
		fmt.Fprintf(&b, "Contact: %s | %s\n", orNA(rec.Contact.EmailOrEmpty()), orNA(rec.Contact.PhoneOrEmpty()))
	}
	b.WriteString("\nProfile:\n")
	b.WriteString(profileBody(rec))

	return b.String()
}

func profileBody(rec *cv.Record) string {
	var b strings.Builder

	for _, s := range []struct {
		key, title string
		limit      int
	}{
		{cv.SectionEducation, "Education", educationLimit},
		{cv.SectionExperience, "Experience", experienceLimit},
		{cv.SectionSkills, "Skills", skillsLimit},
	} {
		if text, ok := rec.Sections[s.key]; ok {
			fmt.Fprintf(&b, "%s:\n%s\n\n", s.title, utils.Truncate(text, s.limit))
		}
	}

	if b.Len() == 0 {
		for j, chunk := range rec.Chunks[:min(profileChunks, len(rec.Chunks))] {
			fmt.Fprintf(&b, "Chunk %d:\n%s\n\n", j+1, utils.Truncate(chunk, chunkLimit))
		}
	}

	if b.Len() == 0 {
		return utils.Truncate(rec.CleanedText, cleanedLimit)
	}
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

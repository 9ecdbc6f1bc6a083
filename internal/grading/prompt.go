package grading

import (
	"fmt"
	"strings"
)

// systemPrompt is the fixed examiner rubric. %s is the subject name.
const systemPrompt = `You are a strict, fair university examiner grading %s exam papers.

TASK: Compare the student's answer sheet with the official answer key.

GRADING CRITERIA:
1. Read all text, diagrams, formulas and drawings in the student's answers.
2. Compare against the official answer key point by point.
3. Award marks for correctness of concepts, completeness of the answer,
   quality of diagrams and illustrations, and proper use of terminology.
4. Deduct marks for missing key points, incorrect concepts and incomplete diagrams.
5. Ignore minor spelling errors unless they change the meaning.
6. If the answer is irrelevant or empty, the score is 0.

OUTPUT FORMAT (strict JSON, nothing else):
{
  "score": <integer 0-100>,
  "feedback": "<detailed evaluation>",
  "gap_analysis": {
    "strong_points": ["..."],
    "weak_points": ["..."]
  }
}`

func buildSystemPrompt(subjectName string) string {
	return fmt.Sprintf(systemPrompt, subjectName)
}

// buildImagePrompt is the user turn sent alongside the page images.
func buildImagePrompt(keyText, subjectName string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SUBJECT: %s\n\n", subjectName)
	sb.WriteString("=== OFFICIAL ANSWER KEY ===\n")
	sb.WriteString(keyText)
	sb.WriteString("\n\n=== STUDENT'S ANSWER SHEET ===\n")
	sb.WriteString("The images attached show the student's handwritten answers, one image per page in order. ")
	sb.WriteString("Carefully analyze all text, diagrams, formulas and illustrations.\n\n")
	sb.WriteString("Grade the student's work against the answer key above. Give a score out of 100 and detailed feedback.")
	return sb.String()
}

// buildTextPrompt is the user turn for a script that has already been OCRed.
func buildTextPrompt(keyText, subjectName, scriptText string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SUBJECT: %s\n\n", subjectName)
	sb.WriteString("=== OFFICIAL ANSWER KEY ===\n")
	sb.WriteString(keyText)
	sb.WriteString("\n\n=== STUDENT ANSWER SCRIPT (OCR) ===\n")
	sb.WriteString(scriptText)
	sb.WriteString("\n\nGrade the student's work against the answer key above. Give a score out of 100 and detailed feedback.")
	return sb.String()
}

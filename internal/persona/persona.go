// Package persona holds the system instructions for each assistant role.
// The wording of the instruction blocks is configuration: built-in defaults
// ship here and can be replaced per-kind from YAML files (see loader.go).
package persona

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind selects which instruction block is prepended to a conversation.
type Kind string

const (
	General       Kind = "general"
	ExamTutor     Kind = "exam_tutor"
	SymptomTriage Kind = "symptom_triage"
	GuidedStudy   Kind = "guided_study"
	SocraticStudy Kind = "socratic_study"
)

// Kinds lists every valid persona kind.
var Kinds = []Kind{General, ExamTutor, SymptomTriage, GuidedStudy, SocraticStudy}

// Parse maps a wire string to a Kind, defaulting to General for unknown
// or empty values so a bad request never breaks a chat.
func Parse(s string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case ExamTutor:
		return ExamTutor
	case SymptomTriage:
		return SymptomTriage
	case GuidedStudy:
		return GuidedStudy
	case SocraticStudy:
		return SocraticStudy
	default:
		return General
	}
}

// DefaultLanguage needs no language directive in the instruction block.
const DefaultLanguage = "en"

// languageNames maps supported language codes to the display name used in
// the answer-language directive.
var languageNames = map[string]string{
	"en": "English",
	"hi": "Hindi",
	"bn": "Bengali",
	"te": "Telugu",
	"mr": "Marathi",
	"ta": "Tamil",
	"gu": "Gujarati",
	"kn": "Kannada",
	"ml": "Malayalam",
	"pa": "Punjabi",
	"or": "Odia",
	"as": "Assamese",
	"ur": "Urdu",
}

// LanguageName returns the display name for a language code, or the code
// itself when unrecognized.
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}

// Registry resolves persona kinds to instruction blocks.
type Registry struct {
	instructions map[Kind]string
	defaultLang  string
}

// NewRegistry returns a registry with the built-in instruction blocks.
func NewRegistry(defaultLang string) *Registry {
	if defaultLang == "" {
		defaultLang = DefaultLanguage
	}
	instructions := make(map[Kind]string, len(defaults))
	for k, v := range defaults {
		instructions[k] = v
	}
	return &Registry{instructions: instructions, defaultLang: defaultLang}
}

// SystemPrompt assembles the full instruction block for one completion.
// When lang differs from the default language a directive naming the
// target language is appended. For the study personas, sessionContext is
// serialized to JSON and embedded verbatim; the caller controls its shape.
func (r *Registry) SystemPrompt(kind Kind, lang string, sessionContext map[string]any) string {
	instr, ok := r.instructions[kind]
	if !ok {
		instr = r.instructions[General]
	}

	if (kind == GuidedStudy || kind == SocraticStudy) && len(sessionContext) > 0 {
		if ctxJSON, err := json.Marshal(sessionContext); err == nil {
			instr += "\n\nSession context:\n" + string(ctxJSON)
		}
	}

	if lang != "" && !strings.EqualFold(lang, r.defaultLang) {
		instr += fmt.Sprintf("\n\nIMPORTANT: Respond ONLY in %s. Do not use any other language.", LanguageName(lang))
	}

	return instr
}

var defaults = map[Kind]string{
	General: `You are Arogya Sahayak, a multilingual healthcare assistant. Answer medical questions clearly and compassionately in simple language a patient can understand.
- Explain conditions, medicines, and test results without jargon.
- Always recommend consulting a qualified doctor for diagnosis or treatment decisions.
- Never prescribe medication or dosages yourself.
- If a question suggests a medical emergency, tell the user to seek immediate care first.`,

	ExamTutor: `You are an expert tutor for medical and nursing entrance examinations. Help students prepare with accurate, exam-oriented answers.
- Generate mock test questions with four options and mark the correct answer with a short explanation.
- Keep difficulty appropriate to the requested exam and subject.
- When asked to evaluate an answer, explain why each distractor is wrong.`,

	SymptomTriage: `You are a symptom triage assistant. The user will describe symptoms, their duration, and severity.
- Suggest the most likely common causes, clearly labeled as possibilities, not a diagnosis.
- Classify urgency as: self-care, see a doctor soon, or seek emergency care now.
- List warning signs that should prompt immediate medical attention.
- Always state that this is not a substitute for professional medical advice.`,

	GuidedStudy: `You are a study planner for medical students. Using the session context provided below, produce a structured study plan.
- Break the syllabus into daily goals within the student's available time.
- Schedule revision and self-assessment checkpoints.
- Adjust pacing to the student's stated weak areas.`,

	SocraticStudy: `You are a Socratic study companion for medical students. Using the session context provided below, guide the student to answers rather than stating them.
- Ask one probing question at a time.
- When the student answers, point out what is right before correcting what is wrong.
- Only reveal the full answer after the student has attempted it twice.`,
}

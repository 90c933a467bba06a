package qa

import "strings"

// Citation is a quoted excerpt supporting an answer.
type Citation struct {
	PolicyName string `json:"policyName"`
	Page       *int   `json:"page,omitempty"`
	Snippet    string `json:"snippet"`
}

// Response is the answer to one question. Unknown responses carry
// confidence 0 and no citations.
type Response struct {
	Answer     string     `json:"answer"`
	Confidence int        `json:"confidence"`
	Citations  []Citation `json:"citations"`
	Unknown    bool       `json:"unknown"`
}

// Request is the wire body of a question.
type Request struct {
	Question     string   `json:"question"`
	Jurisdiction string   `json:"jurisdiction"`
	PolicyIDs    []string `json:"policy_ids"`
}

// Jurisdictions offered to users; the first one is the default.
var Jurisdictions = []string{
	"United States",
	"United Kingdom",
	"Canada",
	"Australia",
	"European Union",
	"Other",
}

// DefaultJurisdiction is used when a question names none.
func DefaultJurisdiction() string { return Jurisdictions[0] }

const (
	UnknownAnswer = "I don't know. Please consult a broker or legal professional."
	CannedAnswer  = "Based on the selected policy documents, coverage typically applies when the incident is reported within 30 days. Exclusions may apply for intentional acts."

	CannedConfidence = 85

	SelectedPolicyName = "Policy.pdf"
	SamplePolicyName   = "Sample Policy.pdf"
)

// questions containing any of these get the fallback answer
var unknownTriggers = []string{"unknown", "unsure", "legal advice"}

// Simulator answers questions with canned responses.
type Simulator struct{}

func NewSimulator() *Simulator { return &Simulator{} }

// Ask answers question. The jurisdiction is accepted but does not change the
// answer.
func (s *Simulator) Ask(question, jurisdiction string, policyIDs []string) Response {
	if IsUnknownQuestion(question) {
		return UnknownResponse()
	}
	name := SamplePolicyName
	if len(policyIDs) > 0 && policyIDs[0] != "" {
		name = SelectedPolicyName
	}
	return Response{
		Answer:     CannedAnswer,
		Confidence: CannedConfidence,
		Citations: []Citation{
			{PolicyName: name, Page: page(12), Snippet: "...reported within 30 days of discovery..."},
			{PolicyName: name, Page: page(14), Snippet: "...intentional acts are excluded..."},
		},
		Unknown: false,
	}
}

// IsUnknownQuestion reports whether question triggers the fallback answer.
func IsUnknownQuestion(question string) bool {
	q := strings.ToLower(question)
	for _, t := range unknownTriggers {
		if strings.Contains(q, t) {
			return true
		}
	}
	return false
}

// UnknownResponse is the fallback answer.
func UnknownResponse() Response {
	return Response{
		Answer:     UnknownAnswer,
		Confidence: 0,
		Citations:  []Citation{},
		Unknown:    true,
	}
}

func page(n int) *int { return &n }

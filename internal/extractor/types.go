package extractor

// TokenGloss is one segment of the analysed sentence.
type TokenGloss struct {
	Word       string `json:"word"`
	Reading    string `json:"reading"`     // phonetic transcription, e.g. romaji
	POSMeaning string `json:"pos_meaning"` // part of speech and meaning, e.g. "动词 / 决定"
	Grammar    string `json:"grammar"`
	Standard   string `json:"standard"` // dictionary or written form
}

// Record is the normalized result of one sentence analysis.
type Record struct {
	Language    string       `json:"language"`
	Translation string       `json:"translation"`
	Correction  string       `json:"correction"`
	Nuances     string       `json:"nuances"`
	Structure   []TokenGloss `json:"structure"`

	// Degraded is set when the model returned a structure that was not a
	// list of objects and it had to be dropped.
	Degraded bool `json:"degraded,omitempty"`
}

// Request is a single user submission.
type Request struct {
	Text string `json:"text" validate:"required"`
	User string `json:"user"`
}

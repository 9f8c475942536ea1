package models

// Personality is a named response profile. Loaded once at startup from the
// catalog and never mutated.
type Personality struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Tone        string `json:"tone"`
	Greeting    string `json:"greeting"`
	TemplateID  string `json:"template_id"`
}

package models

// Competence is a skill exercises are grouped under
type Competence struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Subject     string `json:"subject"`
	Level       string `json:"level"`
	Description string `json:"description,omitempty"`
}

// CompetenceFilters narrows a competence listing
type CompetenceFilters struct {
	Subject string `json:"subject,omitempty"`
	Level   string `json:"level,omitempty"`
}

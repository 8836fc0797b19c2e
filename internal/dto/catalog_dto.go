package dto

// CatalogDocument is the seed file format for the reference catalog.
type CatalogDocument struct {
	Departments []CatalogDepartment `json:"departments"`
	Knowledge   []CatalogCategory   `json:"knowledge"`
	Skills      []CatalogCategory   `json:"skills"`
	Questions   []CatalogQuestion   `json:"questions"`
	Templates   []CatalogTemplate   `json:"templates"`
	Users       []CatalogUser       `json:"users"`
}

// CatalogDepartment is a department entry of the seed file.
type CatalogDepartment struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

// CatalogCategory is a knowledge area or skill entry of the seed file.
type CatalogCategory struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	DepartmentID *uint  `json:"department_id"`
	Active       *bool  `json:"active"`
}

// CatalogQuestion is a question bank entry of the seed file.
type CatalogQuestion struct {
	ID           uint     `json:"id"`
	Text         string   `json:"text"`
	Section      string   `json:"section"`
	Weight       *float64 `json:"weight"`
	CategoryType string   `json:"category_type"`
	CategoryID   uint     `json:"category_id"`
	Active       *bool    `json:"active"`
}

// CatalogTemplate is a template entry of the seed file. Question order is preserved.
type CatalogTemplate struct {
	ID               uint   `json:"id"`
	Name             string `json:"name"`
	CategoryType     string `json:"category_type"`
	CategoryID       uint   `json:"category_id"`
	TimeLimitMinutes int    `json:"time_limit_minutes"`
	QuestionIDs      []uint `json:"question_ids"`
	Active           *bool  `json:"active"`
}

// CatalogUser is an employee entry of the seed file.
type CatalogUser struct {
	ID           uint   `json:"id"`
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	DepartmentID *uint  `json:"department_id"`
	Active       *bool  `json:"active"`
}

// CatalogSeedSummary counts what a seed run wrote.
type CatalogSeedSummary struct {
	Departments int      `json:"departments"`
	Knowledge   int      `json:"knowledge"`
	Skills      int      `json:"skills"`
	Questions   int      `json:"questions"`
	Templates   int      `json:"templates"`
	Users       int      `json:"users"`
	Warnings    []string `json:"warnings"`
}

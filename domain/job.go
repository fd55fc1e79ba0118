package domain

type Job struct {
	ID          int64   `json:"id" db:"id"`
	Title       string  `json:"title" db:"title"`
	Company     string  `json:"company" db:"company"`
	Website     *string `json:"website,omitempty" db:"website"`
	Location    string  `json:"location" db:"location"`
	Description string  `json:"description" db:"description"`
	PostedDate  string  `json:"posted_date" db:"posted_date"`
}

package domain

type Application struct {
	ID          int64   `json:"id" db:"id"`
	UserID      int64   `json:"user_id" db:"user_id"`
	JobID       int64   `json:"job_id" db:"job_id"`
	Phone       *string `json:"phone,omitempty" db:"phone"`
	Email       *string `json:"email,omitempty" db:"email"`
	AppliedDate string  `json:"applied_date" db:"applied_date"`
}

// ApplicationDetail is an application joined with display fields from its job,
// as returned by the profile view.
type ApplicationDetail struct {
	AppID       int64  `json:"appId" db:"app_id"`
	JobID       int64  `json:"job_id" db:"job_id"`
	Title       string `json:"title" db:"title"`
	Company     string `json:"company" db:"company"`
	Location    string `json:"location" db:"location"`
	AppliedDate string `json:"applied_date" db:"applied_date"`
}

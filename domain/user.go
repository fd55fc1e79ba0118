package domain

type User struct {
	ID           int64   `json:"id" db:"id"`
	Name         string  `json:"name" db:"name"`
	Email        string  `json:"email" db:"email"`
	Password     string  `json:"-" db:"password"`
	ProfileImage *string `json:"profile_image,omitempty" db:"profile_image"`
	CreatedAt    string  `json:"created_at,omitempty" db:"created_at"`
}

package users

import "time"

// User is an item in the users table. Email is the partition key.
type User struct {
	ID           string    `json:"id" dynamodbav:"user_id"`
	Name         string    `json:"name" dynamodbav:"name"`
	Email        string    `json:"email" dynamodbav:"email"`
	Phone        string    `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	PasswordHash string    `json:"-" dynamodbav:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" dynamodbav:"created_at"`
}

// Summary is the slice of a user shown next to admin order views.
type Summary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

func (u *User) Summary() Summary {
	return Summary{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}
}

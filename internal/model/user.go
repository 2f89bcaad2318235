package model

import "time"

type User struct {
	ID           int64          `json:"id"`
	Email        string         `json:"email"`
	PasswordHash string         `json:"-"`
	Metadata     SignupMetadata `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// SignupMetadata is captured at sign-up and used to create the profile on
// first sign-in.
type SignupMetadata struct {
	Name         string `json:"name"`
	Role         Role   `json:"role,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Address      string `json:"address,omitempty"`
	Ward         string `json:"ward,omitempty"`
	AssignedWard string `json:"assigned_ward,omitempty"`
}

package models

// User represents a chat identity. Account management (signup, passwords,
// social login) lives outside this service; rows here are looked up, never
// mutated by chat flows except for the push token.
type User struct {
	Model
	Fullname    string `json:"fullname" binding:"required,min=2"`
	Username    string `json:"username" gorm:"unique" binding:"required,min=2"`
	Email       string `json:"email" gorm:"unique;not null" binding:"required,email"`
	IsBlocked   bool   `json:"is_blocked" gorm:"default:false"`
	DeviceToken string `json:"-"`
	Online      bool   `json:"online"`
}

// Blacklist holds revoked access tokens checked by the authorize middleware.
type Blacklist struct {
	Model
	Token string `json:"token" gorm:"index;not null"`
}

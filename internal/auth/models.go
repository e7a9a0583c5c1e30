package auth

import "time"

type Session struct {
	SessionID string    `gorm:"primaryKey" json:"-"`
	UserID    string    `gorm:"not null;unique" json:"-"`
	ExpiresAt time.Time `gorm:"not null"`
}

type User struct {
	UserID         string     `gorm:"primaryKey" json:"user_id"`
	Username       string     `gorm:"size:150;not null;uniqueIndex" json:"username"`
	Password       string     `json:"password,omitempty" gorm:"-"`
	HashedPassword string     `json:"-"`
	Email          string     `json:"email"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Role           string     `gorm:"default:'user'" json:"role"`
	DateJoined     time.Time  `gorm:"autoCreateTime" json:"date_joined"`
	LastLogin      *time.Time `json:"last_login"`
	Session        Session    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Profile        *Profile   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"profile,omitempty"`
}

type Profile struct {
	UserID      string `gorm:"primaryKey" json:"-"`
	PhoneNumber string `gorm:"size:15" json:"phone_number"`
	Address     string `json:"address"`
}

func (Session) TableName() string { return "app_auth.sessions" }
func (User) TableName() string    { return "app_auth.users" }
func (Profile) TableName() string { return "app_auth.profiles" }

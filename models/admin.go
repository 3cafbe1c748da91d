package models

import (
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Admin is an operator of the chat console.
type Admin struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex;size:80;not null"`
	PasswordHash string `gorm:"size:255;not null"`
}

func (a *Admin) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = string(hash)
	return nil
}

func (a *Admin) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password))
	return err == nil
}

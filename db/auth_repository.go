package db

import (
	"errors"

	"gorm.io/gorm"

	"github.com/chatloop/chatloop/models"
)

// AuthRepository is the identity boundary: chat flows look users up and
// check token revocation here. Accounts are managed elsewhere.
type AuthRepository interface {
	FindUserByID(id uint) (*models.User, error)
	IsTokenInBlacklist(token string) bool
	AddToBlacklist(blacklist *models.Blacklist) error
	UpdateUserOnline(id uint, online bool) error
}

type authRepo struct {
	DB *gorm.DB
}

func NewAuthRepo(db *GormDB) AuthRepository {
	return &authRepo{db.DB}
}

func (a *authRepo) FindUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := a.DB.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	if user.IsBlocked {
		return nil, errors.New("user is blocked")
	}
	return &user, nil
}

func (a *authRepo) IsTokenInBlacklist(token string) bool {
	var count int64
	a.DB.Model(&models.Blacklist{}).Where("token = ?", token).Count(&count)
	return count > 0
}

func (a *authRepo) AddToBlacklist(blacklist *models.Blacklist) error {
	return a.DB.Create(blacklist).Error
}

func (a *authRepo) UpdateUserOnline(id uint, online bool) error {
	return a.DB.Model(&models.User{}).Where("id = ?", id).Update("online", online).Error
}

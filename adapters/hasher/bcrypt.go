package hasher

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

const DefaultCost = 10

// NewBcrypt returns a domain.PasswordHasher. A cost outside bcrypt's range uses
// DefaultCost.
func NewBcrypt(cost int) domain.PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return bcryptHasher{cost: cost}
}

type bcryptHasher struct {
	cost int
}

func (h bcryptHasher) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (h bcryptHasher) ComparePassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return domain.ErrInvalidCredentials
	}
	return nil
}

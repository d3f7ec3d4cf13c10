package domain

// Hasher is the core port for any content hashing strategy.
type Hasher interface {
	Hash(data []byte) string
}

// PasswordHasher hashes and verifies user passwords.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePassword(hash, password string) error
}

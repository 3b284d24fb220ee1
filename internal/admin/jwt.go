package admin

import (
	"fmt"
	"time"

	"student-records-backend/config"
	"student-records-backend/jwt"
)

// GenerateToken mints an admin token signed with key.
func GenerateToken(exp time.Time, key, issuer string) (string, error) {
	ss, err := jwt.NewJWT(config.JWT{Secret: key, Issuer: issuer}).NewAdminToken(exp)
	if err != nil {
		fmt.Println("Signing failure:", err)
		return "", err
	}

	return ss, nil
}

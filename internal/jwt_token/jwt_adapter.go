package jwttoken

import (
	"strings"

	dErrors "complyhub/pkg/domain-errors"
)

// ValidateActor satisfies the admin auth middleware: it accepts only module
// admin tokens and returns the subject as the actor.
func (s *JWTService) ValidateActor(tokenString string) (string, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	if claims.Role != RoleModuleAdmin {
		return "", dErrors.New(dErrors.CodeForbidden, "token does not grant module administration")
	}
	actor := strings.TrimSpace(claims.Subject)
	if actor == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}
	return actor, nil
}

package token

import "family_chat_service/pkg/config"

// Wrapper function variables so tests can swap the implementations.
var (
	GenerateJWTFunc = GenerateJWT
	ParseJWTFunc    = ParseJWT
)

// GenerateJWTWrapper issue a token with the chat service as issuer
func GenerateJWTWrapper(name, family, role string) (string, error) {
	return GenerateJWTFunc(name, family, role, config.EnvConfig.ChatService)
}

// ParseJWTWrapper parse a token through the swappable func
func ParseJWTWrapper(t string) (*Claims, error) {
	return ParseJWTFunc(t)
}

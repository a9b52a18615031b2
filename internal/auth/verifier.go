package auth

// Verifier checks session tokens presented during the WebSocket handshake.
type Verifier struct {
	cfg *JWTConfig
}

// NewVerifier creates a token verifier with the given configuration.
func NewVerifier(cfg *JWTConfig) *Verifier {
	return &Verifier{cfg: cfg}
}

// Verify validates the token and returns the player identity it carries.
func (v *Verifier) Verify(tokenString string) (userID, username string, err error) {
	claims, err := ValidateToken(v.cfg, tokenString)
	if err != nil {
		return "", "", err
	}
	return claims.Subject, claims.Username, nil
}

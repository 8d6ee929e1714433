package syncer

// RefreshTokenSource supplies a refresh token for groups whose config file
// leaves "token" empty
type RefreshTokenSource interface {
	RefreshToken(group string) (string, error)
}

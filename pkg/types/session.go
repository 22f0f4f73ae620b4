package types

// SessionLocation identifies where a recipient's live connection is held.
type SessionLocation struct {
	RecipientID string
	GatewayNode string
}

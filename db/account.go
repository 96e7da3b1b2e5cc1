package db

// Account is the routing configuration of a messaging account.
// Overrides maps a sector code to the user that receives its new conversations.
type Account struct {
	ID            string            `json:"id"`
	AppID         string            `json:"appId"`
	AllowedGroups []string          `json:"allowedGroups"`
	Overrides     map[string]string `json:"overrides"`
}

// PoolConfig is the jsonb document stored in accounts.pool
type PoolConfig struct {
	Config struct {
		Overrides map[string]string `json:"overrides"`
	} `json:"config"`
}

// Override returns the destination installed for a sector
func (a *Account) Override(sectorCode string) (string, bool) {
	dest, ok := a.Overrides[sectorCode]
	return dest, ok
}

package models

// Principal is the authenticated actor behind a request.
type Principal struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// SystemPrincipal acts for payment webhooks and background sweeps.
var SystemPrincipal = Principal{UserID: "system", Role: RoleSystem}

func (p Principal) IsZero() bool {
	return p.UserID == "" && p.Role == ""
}

package db

// DirectoryResponsible is a person responsible for a directory group
type DirectoryResponsible struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// DirectoryGroup is a group membership of a directory user
type DirectoryGroup struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Responsibles []DirectoryResponsible `json:"responsibles"`
}

// DirectorySector is a sector membership of a directory user
type DirectorySector struct {
	Branch int    `json:"branch"`
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Code   string `json:"code"`
}

// DirectoryStructs groups the organizational structures of a user
type DirectoryStructs struct {
	Sectors []DirectorySector `json:"sectors"`
}

// DirectoryProfile is an access profile of a directory user
type DirectoryProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// DirectoryUser is the full profile returned by the user directory
type DirectoryUser struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Email    string             `json:"email"`
	Active   bool               `json:"active"`
	Groups   []DirectoryGroup   `json:"groups"`
	Structs  DirectoryStructs   `json:"structs"`
	Profiles []DirectoryProfile `json:"profiles"`
}

// PrimaryGroupID returns the first group id, or "" when the user has none
func (u *DirectoryUser) PrimaryGroupID() string {
	if len(u.Groups) == 0 {
		return ""
	}
	return u.Groups[0].ID
}

// PrimarySectorCode returns the first sector code, or "" when the user has none
func (u *DirectoryUser) PrimarySectorCode() string {
	if len(u.Structs.Sectors) == 0 {
		return ""
	}
	return u.Structs.Sectors[0].Code
}

// HasSector reports whether the user belongs to the sector
func (u *DirectoryUser) HasSector(code string) bool {
	for _, s := range u.Structs.Sectors {
		if s.Code == code {
			return true
		}
	}
	return false
}

// SectorName returns the display name of a sector the user belongs to
func (u *DirectoryUser) SectorName(code string) (string, bool) {
	for _, s := range u.Structs.Sectors {
		if s.Code == code {
			return s.Name, true
		}
	}
	return "", false
}

// Sector is the {code, name} pair exposed to operators
type Sector struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// MessagingIdentity is the messaging-application identity of a directory user
type MessagingIdentity struct {
	UserID string `json:"userId"`
	AppID  string `json:"appId"`
}

// UserData is a directory user as returned by the listing endpoint
type UserData struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Active      bool    `json:"active"`
	CreatedAt   string  `json:"createdAt"`
	LastLoginAt *string `json:"lastLoginAt"`
}

// PageMeta is the cursor metadata of a directory listing
type PageMeta struct {
	HasNextPage bool    `json:"hasNextPage"`
	Next        *string `json:"next"`
	HasPrevPage bool    `json:"hasPrevPage"`
	Previous    *string `json:"previous"`
	PerPage     int     `json:"perPage"`
}

// DirectoryUserPage is one page of the directory listing
type DirectoryUserPage struct {
	Data []UserData `json:"data"`
	Meta PageMeta   `json:"meta"`
}

// DirectoryUserQuery filters a directory listing
type DirectoryUserQuery struct {
	Filter    string `form:"filter"`
	PerPage   int    `form:"perPage"`
	Direction string `form:"direction"`
	Cursor    string `form:"cursor"`
}

package domain

const RoleAdmin = "admin"

// Pagination carries paging params and totals.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total,omitempty"`
}

// Normalize clamps page/pageSize into usable values.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 50
	}
	if p.PageSize > 200 {
		p.PageSize = 200
	}
	return p
}

// Offset is the row offset for the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// RequestContext carries authenticated user info when available.
type RequestContext struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
}

func (r RequestContext) IsAdmin() bool {
	return r.Role == RoleAdmin
}

// Authenticated reports whether an identity was attached to the request.
func (r RequestContext) Authenticated() bool {
	return r.UserID > 0
}

// CanActFor reports whether the caller may act on userID's resources.
func (r RequestContext) CanActFor(userID int64) bool {
	return r.IsAdmin() || (r.Authenticated() && r.UserID == userID)
}

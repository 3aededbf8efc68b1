package models

import "time"

type Contact struct {
	ID          int64
	UserID      int64
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Birthday    time.Time
	Description *string
}

// ContactInput is a full contact as supplied on creation.
type ContactInput struct {
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Birthday    time.Time
	Description *string
}

// ContactPatch lists the fields of a partial update. Unset fields are left
// untouched by Apply.
type ContactPatch struct {
	FirstName   Optional[string]
	LastName    Optional[string]
	Email       Optional[string]
	Phone       Optional[string]
	Birthday    Optional[time.Time]
	Description Optional[*string]
}

func (p ContactPatch) Empty() bool {
	return !p.FirstName.Set && !p.LastName.Set && !p.Email.Set &&
		!p.Phone.Set && !p.Birthday.Set && !p.Description.Set
}

func (p ContactPatch) Apply(c *Contact) {
	if v, ok := p.FirstName.Get(); ok {
		c.FirstName = v
	}
	if v, ok := p.LastName.Get(); ok {
		c.LastName = v
	}
	if v, ok := p.Email.Get(); ok {
		c.Email = v
	}
	if v, ok := p.Phone.Get(); ok {
		c.Phone = v
	}
	if v, ok := p.Birthday.Get(); ok {
		c.Birthday = v
	}
	if v, ok := p.Description.Get(); ok {
		c.Description = v
	}
}

// ContactFilter selects contacts by case-insensitive substring. Empty fields
// match everything.
type ContactFilter struct {
	FirstName string
	LastName  string
	Email     string
}

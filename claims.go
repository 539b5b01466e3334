package authstate

// Claim is a single typed assertion about an identity
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ClaimsIdentity is an identity plus its claims. An identity with an
// empty authentication type is anonymous.
type ClaimsIdentity struct {
	authenticationType string
	claims             []Claim
}

// NewClaimsIdentity creates an identity. Claims keep their order.
func NewClaimsIdentity(authenticationType string, claims ...Claim) *ClaimsIdentity {
	cloned := make([]Claim, len(claims))
	copy(cloned, claims)
	return &ClaimsIdentity{
		authenticationType: authenticationType,
		claims:             cloned,
	}
}

// AuthenticationType returns how the identity was authenticated
func (i *ClaimsIdentity) AuthenticationType() string {
	if i == nil {
		return ""
	}
	return i.authenticationType
}

// IsAuthenticated reports whether the identity carries an authentication type
func (i *ClaimsIdentity) IsAuthenticated() bool {
	return i.AuthenticationType() != ""
}

// Claims returns a copy of the identity claims
func (i *ClaimsIdentity) Claims() []Claim {
	if i == nil || len(i.claims) == 0 {
		return nil
	}
	out := make([]Claim, len(i.claims))
	copy(out, i.claims)
	return out
}

// Principal wraps the identity of the current user
type Principal struct {
	identity *ClaimsIdentity
}

// NewPrincipal returns a principal for identity, a nil identity
// yields an anonymous principal
func NewPrincipal(identity *ClaimsIdentity) *Principal {
	if identity == nil {
		identity = &ClaimsIdentity{}
	}
	return &Principal{identity: identity}
}

// AnonymousPrincipal returns an unauthenticated principal with no claims
func AnonymousPrincipal() *Principal {
	return NewPrincipal(nil)
}

// Identity returns the principal identity
func (p *Principal) Identity() *ClaimsIdentity {
	if p == nil {
		return nil
	}
	return p.identity
}

// IsAuthenticated reports whether the principal identity is authenticated
func (p *Principal) IsAuthenticated() bool {
	return p.Identity().IsAuthenticated()
}

// AuthenticationType returns the identity authentication type
func (p *Principal) AuthenticationType() string {
	return p.Identity().AuthenticationType()
}

// Claims returns a copy of all claims
func (p *Principal) Claims() []Claim {
	return p.Identity().Claims()
}

// FindFirst returns the value of the first claim of the given type
func (p *Principal) FindFirst(claimType string) (string, bool) {
	id := p.Identity()
	if id == nil {
		return "", false
	}
	for _, c := range id.claims {
		if c.Type == claimType {
			return c.Value, true
		}
	}
	return "", false
}

// FindAll returns the values of every claim of the given type, in order
func (p *Principal) FindAll(claimType string) []string {
	id := p.Identity()
	if id == nil {
		return nil
	}
	var values []string
	for _, c := range id.claims {
		if c.Type == claimType {
			values = append(values, c.Value)
		}
	}
	return values
}

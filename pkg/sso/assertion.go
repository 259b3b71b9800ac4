package sso

import (
	"strings"

	"github.com/tendant/lms-auth/pkg/identity"
)

// Assertion is the validated, provider-neutral result of an SSO callback.
type Assertion struct {
	Provider     string
	NameID       string
	Email        string
	FirstName    string
	LastName     string
	Organization string
	Department   string
	JobTitle     string
	SessionIndex string
}

func (a Assertion) Profile() identity.FederatedProfile {
	return identity.FederatedProfile{
		Email:        identity.NormalizeEmail(a.Email),
		FirstName:    strings.TrimSpace(a.FirstName),
		LastName:     strings.TrimSpace(a.LastName),
		Organization: strings.TrimSpace(a.Organization),
		Department:   strings.TrimSpace(a.Department),
		JobTitle:     strings.TrimSpace(a.JobTitle),
	}
}

// AttributeMapping lists, per profile field, the attribute or claim names
// to read in order of preference.
type AttributeMapping struct {
	Email        []string
	FirstName    []string
	LastName     []string
	Organization []string
	Department   []string
	JobTitle     []string
}

// DefaultSAMLMapping covers the usual LDAP-style and ADFS claim names.
var DefaultSAMLMapping = AttributeMapping{
	Email:        []string{"email", "mail", "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"},
	FirstName:    []string{"givenName", "firstName", "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/givenname"},
	LastName:     []string{"sn", "surname", "lastName", "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/surname"},
	Organization: []string{"o", "organization", "organizationName"},
	Department:   []string{"department", "ou", "departmentNumber"},
	JobTitle:     []string{"title", "jobTitle"},
}

var DefaultOIDCMapping = AttributeMapping{
	Email:        []string{"email"},
	FirstName:    []string{"given_name"},
	LastName:     []string{"family_name"},
	Organization: []string{"organization", "org"},
	Department:   []string{"department"},
	JobTitle:     []string{"job_title", "title"},
}

// apply fills a from get, taking the first non-empty value for each field.
func (m AttributeMapping) apply(a *Assertion, get func(name string) string) {
	first := func(names []string) string {
		for _, n := range names {
			if v := strings.TrimSpace(get(n)); v != "" {
				return v
			}
		}
		return ""
	}
	a.Email = first(m.Email)
	a.FirstName = first(m.FirstName)
	a.LastName = first(m.LastName)
	a.Organization = first(m.Organization)
	a.Department = first(m.Department)
	a.JobTitle = first(m.JobTitle)
}

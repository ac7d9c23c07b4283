package certs

import (
	"crypto/x509/pkix"
	"fmt"
)

// Subject holds the distinguished name fields of a certificate.
type Subject struct {
	Country            string
	State              string
	Locality           string
	Organization       string
	OrganizationalUnit string
	CommonName         string
}

// DefaultSubject is the subject of the simulator's device CA.
func DefaultSubject() Subject {
	return Subject{
		Country:            "US",
		State:              "Washington",
		Locality:           "Redmond",
		Organization:       "Default Edge Organization",
		OrganizationalUnit: "Edge Unit",
		CommonName:         "Edge Test Device CA",
	}
}

type lengthRule struct {
	name     string
	min, max int
}

// Validate checks every field length.
func (s Subject) Validate() error {
	checks := []struct {
		value string
		rule  lengthRule
	}{
		{s.Country, lengthRule{"country", 2, 2}},
		{s.State, lengthRule{"state", 0, 128}},
		{s.Locality, lengthRule{"locality", 0, 128}},
		{s.Organization, lengthRule{"organization", 0, 64}},
		{s.OrganizationalUnit, lengthRule{"organizational unit", 0, 64}},
		{s.CommonName, lengthRule{"common name", MinCommonNameLength, MaxCommonNameLength}},
	}
	for _, c := range checks {
		if n := len(c.value); n < c.rule.min || n > c.rule.max {
			return fmt.Errorf("%w: %s length %d not in [%d, %d]", ErrInvalidSubject, c.rule.name, n, c.rule.min, c.rule.max)
		}
	}
	return nil
}

func (s Subject) name() pkix.Name {
	n := pkix.Name{CommonName: s.CommonName}
	for dst, v := range map[*[]string]string{
		&n.Country:            s.Country,
		&n.Province:           s.State,
		&n.Locality:           s.Locality,
		&n.Organization:       s.Organization,
		&n.OrganizationalUnit: s.OrganizationalUnit,
	} {
		if v != "" {
			*dst = []string{v}
		}
	}
	return n
}

// subjectFrom reads the subject fields back from a certificate name.
func subjectFrom(n pkix.Name) Subject {
	first := func(v []string) string {
		if len(v) == 0 {
			return ""
		}
		return v[0]
	}
	return Subject{
		Country:            first(n.Country),
		State:              first(n.Province),
		Locality:           first(n.Locality),
		Organization:       first(n.Organization),
		OrganizationalUnit: first(n.OrganizationalUnit),
		CommonName:         n.CommonName,
	}
}

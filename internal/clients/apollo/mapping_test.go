package apollo

import (
	"encoding/json"
	"testing"

	"github.com/leadforge/truthtable-backend/internal/types"
)

func TestMapPersonMatch(t *testing.T) {
	engaged := true
	p := &personMatch{
		FirstName:        "Jane",
		Title:            "  VP Engineering  ",
		PhoneNumbers:     []string{"+15551234567", "+15559876543"},
		Departments:      []string{"engineering", " product "},
		IsLikelyToEngage: &engaged,
		EmploymentHistory: []employment{
			{OrganizationName: "Acme", StartDate: "2021-04-01"},
			{OrganizationName: "Previous Co"},
		},
	}
	mapped := mapPersonMatch(p)
	if mapped[types.ColFirstName] != "Jane" {
		t.Fatalf("got %q", mapped[types.ColFirstName])
	}
	if mapped[types.ColJobTitle] != "VP Engineering" {
		t.Fatalf("title not trimmed: %q", mapped[types.ColJobTitle])
	}
	if mapped[types.ColPersonPhone] != "+15551234567" {
		t.Fatalf("first phone should win: %q", mapped[types.ColPersonPhone])
	}
	if mapped[types.PersonColumnPrefix+"Departments"] != "engineering, product" {
		t.Fatalf("got %q", mapped[types.PersonColumnPrefix+"Departments"])
	}
	if mapped[types.PersonColumnPrefix+"Is Likely To Engage"] != "Yes" {
		t.Fatalf("got %q", mapped[types.PersonColumnPrefix+"Is Likely To Engage"])
	}
	if mapped[types.PersonColumnPrefix+"Current Org"] != "Acme" {
		t.Fatalf("got %q", mapped[types.PersonColumnPrefix+"Current Org"])
	}
	if _, ok := mapped[types.ColLastName]; ok {
		t.Fatalf("empty fields must not be mapped")
	}
}

func TestMapCompanyMatchFallbacks(t *testing.T) {
	org := &companyMatch{
		Name:             "Acme Inc",
		Industries:       []string{"Software", "SaaS"},
		City:             "Austin",
		State:            "TX",
		Country:          "USA",
		Account:          &companyAccount{Phone: "+15550001111"},
		AnnualRevenue:    json.Number("9000000"),
		OrganizationSize: "201-500",
		DepartmentalHeadCount: map[string]json.Number{
			"engineering": "40",
			"sales":       "12",
			"finance":     "0",
		},
	}
	mapped := mapCompanyMatch(org)
	if mapped[types.ColIndustry] != "Software" {
		t.Fatalf("industries fallback: got %q", mapped[types.ColIndustry])
	}
	if mapped[types.ColCompanyAddress] != "Austin, TX, USA" {
		t.Fatalf("address fallback: got %q", mapped[types.ColCompanyAddress])
	}
	if mapped[types.ColCompanyPhone] != "+15550001111" {
		t.Fatalf("account phone fallback: got %q", mapped[types.ColCompanyPhone])
	}
	if mapped[types.ColRevenue] != "9000000" {
		t.Fatalf("annual revenue fallback: got %q", mapped[types.ColRevenue])
	}
	if mapped[types.ColSize] != "201-500" {
		t.Fatalf("organization size fallback: got %q", mapped[types.ColSize])
	}
	if mapped[types.ColListedCompany] != "No" {
		t.Fatalf("no ticker means not listed, got %q", mapped[types.ColListedCompany])
	}
	want := "engineering: 40, sales: 12"
	if mapped[types.CompanyColumnPrefix+"Department Headcount"] != want {
		t.Fatalf("got %q, want %q", mapped[types.CompanyColumnPrefix+"Department Headcount"], want)
	}
}

func TestMapCompanyMatchDirectFieldsWin(t *testing.T) {
	org := &companyMatch{
		Industry:               "  Hardware ",
		Industries:             []string{"Software"},
		RawAddress:             "1 Main St, Austin, TX",
		City:                   "Ignored",
		Phone:                  "+15552223333",
		Account:                &companyAccount{Phone: "+15550001111"},
		EstimatedAnnualRevenue: json.Number("5000000"),
		AnnualRevenue:          json.Number("9000000"),
		Size:                   "51-200",
		OrganizationSize:       "201-500",
		PubliclyTradedSymbol:   "ACME",
	}
	mapped := mapCompanyMatch(org)
	if mapped[types.ColIndustry] != "Hardware" {
		t.Fatalf("got %q", mapped[types.ColIndustry])
	}
	if mapped[types.ColCompanyAddress] != "1 Main St, Austin, TX" {
		t.Fatalf("got %q", mapped[types.ColCompanyAddress])
	}
	if mapped[types.ColCompanyPhone] != "+15552223333" {
		t.Fatalf("got %q", mapped[types.ColCompanyPhone])
	}
	if mapped[types.ColRevenue] != "5000000" {
		t.Fatalf("got %q", mapped[types.ColRevenue])
	}
	if mapped[types.ColSize] != "51-200" {
		t.Fatalf("got %q", mapped[types.ColSize])
	}
	if mapped[types.ColListedCompany] != "Yes" {
		t.Fatalf("got %q", mapped[types.ColListedCompany])
	}
	if mapped[types.CompanyColumnPrefix+"Public Ticker"] != "ACME" {
		t.Fatalf("got %q", mapped[types.CompanyColumnPrefix+"Public Ticker"])
	}
}

package types

import "strings"

// Record is one row of the Truth table: column name -> scalar value.
// Values are always strings; absent and empty-string both mean "empty".
type Record map[string]string

// Base schema column names. Everything else on a Record is an extension
// column added to the store on first sight.
const (
	ColSN             = "S.N."
	ColCompanyName    = "Company Name (Based on Website Domain)"
	ColIndustry       = "Industry"
	ColRevenue        = "Revenue"
	ColSize           = "Size"
	ColCompanyAddress = "Company Address / Headquarters"
	ColCompanyPhone   = "Contact Number (Company)"
	ColListedCompany  = "Listed Company"
	ColWebsite        = "Website URLs"
	ColCompanyLinked  = "LinkedIn Company Page"
	ColEmployees      = "# Employees"
	ColFirstName      = "First Name"
	ColLastName       = "Last Name"
	ColJobTitle       = "Job Title"
	ColEmail          = "Email ID (unique)"
	ColPersonLinked   = "Person LinkedIn Profile"
	ColPersonPhone    = "Contact Number (Person)"
	ColCountry        = "Country"
	ColState          = "State"
	ColLeadSource     = "Lead Source"
	ColClientType     = "Client Type"
	ColUpdatedAt      = "UPDATE AS ON"
	ColEmailSend      = "Email Send (Yes/No)"
)

// ColEnrichmentError marks records whose enrichment group failed. It is an
// internal field: stripped before persistence, surfaced in run results.
const ColEnrichmentError = "_enrichment_error"

// Extension column prefixes recognised by the store's schema evolution.
const (
	PersonColumnPrefix  = "Apollo Person: "
	CompanyColumnPrefix = "Apollo Company: "
)

// BaseColumns is the fixed Truth table schema, in table order.
var BaseColumns = []string{
	ColSN,
	ColCompanyName,
	ColIndustry,
	ColRevenue,
	ColSize,
	ColCompanyAddress,
	ColCompanyPhone,
	ColListedCompany,
	ColWebsite,
	ColCompanyLinked,
	ColEmployees,
	ColFirstName,
	ColLastName,
	ColJobTitle,
	ColEmail,
	ColPersonLinked,
	ColPersonPhone,
	ColCountry,
	ColState,
	ColLeadSource,
	ColClientType,
	ColUpdatedAt,
	ColEmailSend,
}

func (r Record) Get(col string) string {
	return r[col]
}

// Has reports whether the record carries a non-empty value for col.
func (r Record) Has(col string) bool {
	return strings.TrimSpace(r[col]) != ""
}

func (r Record) Set(col, val string) {
	r[col] = val
}

func (r Record) Email() string {
	return strings.TrimSpace(r[ColEmail])
}

func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ExtensionColumns returns the provider-namespaced columns on the record.
func (r Record) ExtensionColumns() []string {
	var cols []string
	for col := range r {
		if IsExtensionColumn(col) {
			cols = append(cols, col)
		}
	}
	return cols
}

func IsExtensionColumn(col string) bool {
	return strings.HasPrefix(col, PersonColumnPrefix) || strings.HasPrefix(col, CompanyColumnPrefix)
}

// ScrapeItem is the shape supplied by the external extraction collaborator.
type ScrapeItem struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Organization string `json:"organization"`
	Email        string `json:"email,omitempty"`
}

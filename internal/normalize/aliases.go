package normalize

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leadforge/truthtable-backend/internal/types"
)

// AliasTable maps a canonical column name to the raw header spellings that
// should resolve to it. Matching is case-insensitive and exact.
type AliasTable map[string][]string

// DefaultAliases covers the header spellings seen in real uploads.
func DefaultAliases() AliasTable {
	return AliasTable{
		types.ColEmail: {
			"email", "email address", "e-mail", "email id",
			"email id (unique)", "mail", "email_address",
		},
		types.ColFirstName: {
			"first name", "firstname", "fname", "given name",
			"first_name", "given_name",
		},
		types.ColLastName: {
			"last name", "lastname", "lname", "surname",
			"family name", "last_name", "family_name",
		},
		types.ColCompanyName: {
			"company", "company name", "organization", "organisation",
			"org name", "org", "account", "company_name",
			"organization_name", "organisation_name",
		},
		types.ColWebsite: {
			"website", "domain", "url", "website url", "website_url",
			"website urls", "web", "site", "company website",
		},
		types.ColJobTitle: {
			"title", "job title", "position", "role", "job_title",
			"job", "designation",
		},
		types.ColPersonPhone: {
			"phone", "phone number", "contact", "contact number",
			"mobile", "telephone", "tel", "contact_number",
			"phone_number", "person phone",
		},
		types.ColCompanyPhone: {
			"company phone", "company contact", "office phone",
			"company_phone", "office_phone",
		},
		types.ColCountry: {"country", "nation", "country_name"},
		types.ColState:   {"state", "province", "region", "state_name"},
		types.ColCompanyLinked: {
			"company linkedin", "linkedin company", "company_linkedin",
			"linkedin_company", "org linkedin",
		},
		types.ColPersonLinked: {
			"linkedin", "linkedin url", "linkedin profile",
			"person linkedin", "linkedin_url", "linkedin_profile",
		},
		types.ColIndustry: {"industry", "sector", "vertical", "industry_name"},
	}
}

// LoadAliasFile merges alias overrides from a YAML file into the defaults.
// The file maps canonical column names to alias lists; unknown canonical
// names are accepted as-is so deployments can alias extension columns too.
func LoadAliasFile(path string) (AliasTable, error) {
	table := DefaultAliases()
	if path == "" {
		return table, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}
	var overrides AliasTable
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse alias file: %w", err)
	}
	for canonical, aliases := range overrides {
		table[canonical] = append(table[canonical], aliases...)
	}
	return table, nil
}

// lookup builds the flat lowercase alias -> canonical index. First match
// wins, so default aliases take precedence over later file additions.
func (t AliasTable) lookup() map[string]string {
	idx := make(map[string]string)
	for canonical := range t {
		key := strings.ToLower(canonical)
		if _, ok := idx[key]; !ok {
			idx[key] = canonical
		}
	}
	for canonical, aliases := range t {
		for _, alias := range aliases {
			key := strings.ToLower(strings.TrimSpace(alias))
			if key == "" {
				continue
			}
			if _, ok := idx[key]; !ok {
				idx[key] = canonical
			}
		}
	}
	return idx
}

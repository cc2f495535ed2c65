package apollo

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/leadforge/truthtable-backend/internal/types"
)

func readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return raw, err
}

type employment struct {
	OrganizationName string `json:"organization_name"`
	StartDate        string `json:"start_date"`
}

type personMatch struct {
	FirstName         string        `json:"first_name"`
	LastName          string        `json:"last_name"`
	Title             string        `json:"title"`
	Email             string        `json:"email"`
	LinkedinURL       string        `json:"linkedin_url"`
	Country           string        `json:"country"`
	State             string        `json:"state"`
	PhoneNumbers      []string      `json:"phone_numbers"`
	EmailStatus       string        `json:"email_status"`
	Headline          string        `json:"headline"`
	Seniority         string        `json:"seniority"`
	Departments       []string      `json:"departments"`
	Subdepartments    []string      `json:"subdepartments"`
	Functions         []string      `json:"functions"`
	PhotoURL          string        `json:"photo_url"`
	TwitterURL        string        `json:"twitter_url"`
	GithubURL         string        `json:"github_url"`
	FacebookURL       string        `json:"facebook_url"`
	IsLikelyToEngage  *bool         `json:"is_likely_to_engage"`
	EmploymentHistory []employment  `json:"employment_history"`
	Organization      *companyMatch `json:"organization"`
}

type companyAccount struct {
	Phone string `json:"phone"`
}

type companyMatch struct {
	Name                   string                 `json:"name"`
	Industry               string                 `json:"industry"`
	Industries             []string               `json:"industries"`
	WebsiteURL             string                 `json:"website_url"`
	LinkedinURL            string                 `json:"linkedin_url"`
	EstimatedNumEmployees  json.Number            `json:"estimated_num_employees"`
	Phone                  string                 `json:"phone"`
	Account                *companyAccount        `json:"account"`
	RawAddress             string                 `json:"raw_address"`
	City                   string                 `json:"city"`
	State                  string                 `json:"state"`
	Country                string                 `json:"country"`
	PubliclyTradedSymbol   string                 `json:"publicly_traded_symbol"`
	PubliclyTradedExchange string                 `json:"publicly_traded_exchange"`
	EstimatedAnnualRevenue json.Number            `json:"estimated_annual_revenue"`
	AnnualRevenue          json.Number            `json:"annual_revenue"`
	Size                   string                 `json:"size"`
	OrganizationSize       string                 `json:"organization_size"`
	PrimaryDomain          string                 `json:"primary_domain"`
	FoundedYear            json.Number            `json:"founded_year"`
	AlexaRanking           json.Number            `json:"alexa_ranking"`
	SEODescription         string                 `json:"seo_description"`
	ShortDescription       string                 `json:"short_description"`
	Keywords               []string               `json:"keywords"`
	LogoURL                string                 `json:"logo_url"`
	TwitterURL             string                 `json:"twitter_url"`
	FacebookURL            string                 `json:"facebook_url"`
	DepartmentalHeadCount  map[string]json.Number `json:"departmental_head_count"`
	RevenueRange           string                 `json:"revenue_range"`
	EmployeeCountRange     string                 `json:"employee_count_range"`
	TotalFunding           json.Number            `json:"total_funding"`
	LatestFundingRoundDate string                 `json:"latest_funding_round_date"`
	Technologies           []string               `json:"technologies"`
}

// mapPersonMatch translates a person match into base and
// "Apollo Person: ..." columns. Every source field is optional.
func mapPersonMatch(p *personMatch) map[string]string {
	mapped := map[string]string{}
	setIf(mapped, types.ColFirstName, p.FirstName)
	setIf(mapped, types.ColLastName, p.LastName)
	setIf(mapped, types.ColJobTitle, p.Title)
	setIf(mapped, types.ColEmail, p.Email)
	setIf(mapped, types.ColPersonLinked, p.LinkedinURL)
	setIf(mapped, types.ColCountry, p.Country)
	setIf(mapped, types.ColState, p.State)
	if len(p.PhoneNumbers) > 0 {
		setIf(mapped, types.ColPersonPhone, p.PhoneNumbers[0])
	}

	setIf(mapped, types.PersonColumnPrefix+"Email Status", p.EmailStatus)
	setIf(mapped, types.PersonColumnPrefix+"Headline", p.Headline)
	setIf(mapped, types.PersonColumnPrefix+"Seniority", p.Seniority)
	setIf(mapped, types.PersonColumnPrefix+"Departments", flattenList(p.Departments))
	setIf(mapped, types.PersonColumnPrefix+"Subdepartments", flattenList(p.Subdepartments))
	setIf(mapped, types.PersonColumnPrefix+"Functions", flattenList(p.Functions))
	setIf(mapped, types.PersonColumnPrefix+"Photo URL", p.PhotoURL)
	setIf(mapped, types.PersonColumnPrefix+"Twitter URL", p.TwitterURL)
	setIf(mapped, types.PersonColumnPrefix+"Github URL", p.GithubURL)
	setIf(mapped, types.PersonColumnPrefix+"Facebook URL", p.FacebookURL)
	if p.IsLikelyToEngage != nil {
		mapped[types.PersonColumnPrefix+"Is Likely To Engage"] = yesNo(*p.IsLikelyToEngage)
	}
	if len(p.EmploymentHistory) > 0 {
		current := p.EmploymentHistory[0]
		setIf(mapped, types.PersonColumnPrefix+"Current Org", current.OrganizationName)
		setIf(mapped, types.PersonColumnPrefix+"Current Role Start Date", current.StartDate)
	}
	return mapped
}

// mapCompanyMatch translates an organization match into base and
// "Apollo Company: ..." columns.
func mapCompanyMatch(org *companyMatch) map[string]string {
	mapped := map[string]string{}
	setIf(mapped, types.ColCompanyName, org.Name)
	if org.Industry != "" {
		mapped[types.ColIndustry] = strings.TrimSpace(org.Industry)
	} else if len(org.Industries) > 0 {
		setIf(mapped, types.ColIndustry, org.Industries[0])
	}
	setIf(mapped, types.ColWebsite, org.WebsiteURL)
	setIf(mapped, types.ColCompanyLinked, org.LinkedinURL)
	setIf(mapped, types.ColEmployees, org.EstimatedNumEmployees.String())
	if org.Phone != "" {
		mapped[types.ColCompanyPhone] = strings.TrimSpace(org.Phone)
	} else if org.Account != nil {
		setIf(mapped, types.ColCompanyPhone, org.Account.Phone)
	}

	if org.RawAddress != "" {
		mapped[types.ColCompanyAddress] = strings.TrimSpace(org.RawAddress)
	} else {
		parts := []string{}
		for _, p := range []string{org.City, org.State, org.Country} {
			if strings.TrimSpace(p) != "" {
				parts = append(parts, strings.TrimSpace(p))
			}
		}
		if len(parts) > 0 {
			mapped[types.ColCompanyAddress] = strings.Join(parts, ", ")
		}
	}

	// Ticker presence is the listed-company signal.
	mapped[types.ColListedCompany] = yesNo(org.PubliclyTradedSymbol != "")

	if org.EstimatedAnnualRevenue != "" {
		mapped[types.ColRevenue] = org.EstimatedAnnualRevenue.String()
	} else if org.AnnualRevenue != "" {
		mapped[types.ColRevenue] = org.AnnualRevenue.String()
	}
	if org.Size != "" {
		mapped[types.ColSize] = strings.TrimSpace(org.Size)
	} else if org.OrganizationSize != "" {
		mapped[types.ColSize] = strings.TrimSpace(org.OrganizationSize)
	}

	setIf(mapped, types.CompanyColumnPrefix+"Primary Domain", org.PrimaryDomain)
	setIf(mapped, types.CompanyColumnPrefix+"Founded Year", org.FoundedYear.String())
	setIf(mapped, types.CompanyColumnPrefix+"Alexa Ranking", org.AlexaRanking.String())
	setIf(mapped, types.CompanyColumnPrefix+"SEO Description", org.SEODescription)
	setIf(mapped, types.CompanyColumnPrefix+"Short Description", org.ShortDescription)
	setIf(mapped, types.CompanyColumnPrefix+"Keywords", flattenList(org.Keywords))
	setIf(mapped, types.CompanyColumnPrefix+"Public Ticker", org.PubliclyTradedSymbol)
	setIf(mapped, types.CompanyColumnPrefix+"Public Exchange", org.PubliclyTradedExchange)
	setIf(mapped, types.CompanyColumnPrefix+"Logo URL", org.LogoURL)
	setIf(mapped, types.CompanyColumnPrefix+"Twitter URL", org.TwitterURL)
	setIf(mapped, types.CompanyColumnPrefix+"Facebook URL", org.FacebookURL)

	if len(org.DepartmentalHeadCount) > 0 {
		depts := make([]string, 0, len(org.DepartmentalHeadCount))
		for dept, count := range org.DepartmentalHeadCount {
			if count != "" && count.String() != "0" {
				depts = append(depts, fmt.Sprintf("%s: %s", dept, count.String()))
			}
		}
		sort.Strings(depts)
		setIf(mapped, types.CompanyColumnPrefix+"Department Headcount", strings.Join(depts, ", "))
	}

	setIf(mapped, types.CompanyColumnPrefix+"Revenue Range", org.RevenueRange)
	setIf(mapped, types.CompanyColumnPrefix+"Employee Range", org.EmployeeCountRange)
	setIf(mapped, types.CompanyColumnPrefix+"Total Funding", org.TotalFunding.String())
	setIf(mapped, types.CompanyColumnPrefix+"Latest Funding Round Date", org.LatestFundingRoundDate)
	setIf(mapped, types.CompanyColumnPrefix+"Technologies", flattenList(org.Technologies))
	return mapped
}

func setIf(m map[string]string, col, val string) {
	val = strings.TrimSpace(val)
	if val != "" {
		m[col] = val
	}
}

func flattenList(items []string) string {
	kept := make([]string, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			kept = append(kept, strings.TrimSpace(item))
		}
	}
	return strings.Join(kept, ", ")
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

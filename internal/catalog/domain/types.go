// Package domain holds the read-only sales catalog the conversation engine
// consumes: courses, pricing, payment links, admission rules, countries,
// FAQs, the contact field schema, the agent persona and the pipeline.
package domain

import "time"

type CourseStatus string

const (
	CourseActive   CourseStatus = "Active"
	CourseInactive CourseStatus = "Inactive"
)

type CourseModality string

const (
	ModalityOnline     CourseModality = "Online"
	ModalityPresencial CourseModality = "Presencial"
	ModalityHybrid     CourseModality = "Hybrid"
)

// Course is one sellable course.
type Course struct {
	SKU           string         `json:"sku" yaml:"sku"`
	Name          string         `json:"name" yaml:"name"`
	Description   string         `json:"description" yaml:"description"`
	Benefits      []string       `json:"benefits" yaml:"benefits"`
	Instructor    string         `json:"instructor" yaml:"instructor"`
	InstructorBio string         `json:"instructorBio,omitempty" yaml:"instructorBio"`
	Duration      string         `json:"duration" yaml:"duration"`
	Modality      CourseModality `json:"modality" yaml:"modality"`
	SyllabusLink  string         `json:"syllabusLink,omitempty" yaml:"syllabusLink"`
	MediaURL      string         `json:"mediaUrl,omitempty" yaml:"mediaUrl"`
	Status        CourseStatus   `json:"status" yaml:"status"`
	SortOrder     int            `json:"sortOrder" yaml:"sortOrder"`
}

const promoDateLayout = "2006-01-02"

// Pricing is the price of a course in one country. Promo dates are ISO
// calendar dates, inclusive on both ends.
type Pricing struct {
	SKU            string   `json:"sku" yaml:"sku"`
	Country        string   `json:"country" yaml:"country"`
	Currency       string   `json:"currency" yaml:"currency"`
	Price          float64  `json:"price" yaml:"price"`
	PromoPrice     *float64 `json:"promoPrice,omitempty" yaml:"promoPrice"`
	PromoStartDate string   `json:"promoStartDate,omitempty" yaml:"promoStartDate"`
	PromoEndDate   string   `json:"promoEndDate,omitempty" yaml:"promoEndDate"`
	IsActive       bool     `json:"isActive" yaml:"isActive"`
}

// PromoActive reports whether the promo price applies on the given day.
func (p Pricing) PromoActive(now time.Time) bool {
	if p.PromoPrice == nil || p.PromoStartDate == "" || p.PromoEndDate == "" {
		return false
	}
	start, err := time.Parse(promoDateLayout, p.PromoStartDate)
	if err != nil {
		return false
	}
	end, err := time.Parse(promoDateLayout, p.PromoEndDate)
	if err != nil {
		return false
	}
	day, _ := time.Parse(promoDateLayout, now.Format(promoDateLayout))
	return !day.Before(start) && !day.After(end)
}

// EffectivePrice returns the promo price inside its window and the list
// price otherwise.
func (p Pricing) EffectivePrice(now time.Time) float64 {
	if p.PromoActive(now) {
		return *p.PromoPrice
	}
	return p.Price
}

type PaymentLink struct {
	ID             string   `json:"id" yaml:"id"`
	SKU            string   `json:"sku" yaml:"sku"`
	Country        string   `json:"country" yaml:"country"`
	URL            string   `json:"url" yaml:"url"`
	PaymentMethods []string `json:"paymentMethods" yaml:"paymentMethods"`
	Instructions   string   `json:"instructions,omitempty" yaml:"instructions"`
	IsActive       bool     `json:"isActive" yaml:"isActive"`
}

type Profession struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// ProfessionRule states whether a profession may enroll in a course.
type ProfessionRule struct {
	SKU                   string `json:"sku" yaml:"sku"`
	ProfessionID          string `json:"professionId" yaml:"professionId"`
	IsAllowed             bool   `json:"isAllowed" yaml:"isAllowed"`
	RequiresCertification bool   `json:"requiresCertification" yaml:"requiresCertification"`
	Notes                 string `json:"notes,omitempty" yaml:"notes"`
}

type Country struct {
	Code        string `json:"code" yaml:"code"`
	Name        string `json:"name" yaml:"name"`
	Currency    string `json:"currency" yaml:"currency"`
	PhonePrefix string `json:"phonePrefix" yaml:"phonePrefix"`
	Flag        string `json:"flag" yaml:"flag"`
	IsActive    bool   `json:"isActive" yaml:"isActive"`
}

type FAQ struct {
	ID       string `json:"id" yaml:"id"`
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

// PropertyType is the declared type of a contact field.
type PropertyType string

const (
	PropertyText   PropertyType = "Text"
	PropertyNumber PropertyType = "Number"
	PropertySelect PropertyType = "Select"
	PropertyEmail  PropertyType = "Email"
	PropertyFile   PropertyType = "File"
	PropertyPhone  PropertyType = "Phone"
)

// ContactProperty defines a field the engine tries to extract from user
// text. Description is the extraction rule handed to the model verbatim.
type ContactProperty struct {
	ID          string       `json:"id" yaml:"id"`
	Label       string       `json:"label" yaml:"label"`
	Key         string       `json:"key" yaml:"key"`
	Type        PropertyType `json:"type" yaml:"type"`
	Description string       `json:"description" yaml:"description"`
}

// AgentPersona configures the sales agent's name and tone.
type AgentPersona struct {
	Name  string `json:"name" yaml:"name"`
	Tone  string `json:"tone" yaml:"tone"`
	Model string `json:"model,omitempty" yaml:"model"`
}

// DefaultPersona is used when no persona row is configured.
var DefaultPersona = AgentPersona{Name: "VentasBot 3000", Tone: "Friendly"}

// Stage is one step of the sales pipeline. An empty RequiredInput means the
// stage never advances on extraction.
type Stage struct {
	ID             string `json:"id" yaml:"id"`
	Order          int    `json:"order" yaml:"order"`
	Name           string `json:"name" yaml:"name"`
	ScriptTemplate string `json:"scriptTemplate" yaml:"scriptTemplate"`
	RequiredInput  string `json:"requiredInput,omitempty" yaml:"requiredInput"`
}

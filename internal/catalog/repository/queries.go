package repository

import (
	"salesflow_backend/internal/catalog/domain"

	"github.com/jackc/pgx/v5"
)

const (
	selectPersona = `SELECT name, tone, COALESCE(model, '') FROM catalog_agent_persona ORDER BY id LIMIT 1`

	selectCourses = `
		SELECT sku, name, description, benefits, instructor, COALESCE(instructor_bio, ''),
			duration, modality, COALESCE(syllabus_link, ''), COALESCE(media_url, ''), status, sort_order
		FROM catalog_courses
		ORDER BY sort_order, sku`

	selectPricing = `
		SELECT sku, country, currency, price, promo_price,
			COALESCE(to_char(promo_start_date, 'YYYY-MM-DD'), ''),
			COALESCE(to_char(promo_end_date, 'YYYY-MM-DD'), ''),
			is_active
		FROM catalog_pricing
		ORDER BY sku, country`

	selectPaymentLinks = `
		SELECT id, sku, country, url, payment_methods, COALESCE(instructions, ''), is_active
		FROM catalog_payment_links
		ORDER BY sku, country`

	selectProfessions = `SELECT id, name FROM catalog_professions ORDER BY name`

	selectRules = `
		SELECT sku, profession_id, is_allowed, requires_certification, COALESCE(notes, '')
		FROM catalog_profession_rules
		ORDER BY sku, profession_id`

	selectCountries = `
		SELECT code, name, currency, phone_prefix, flag, is_active
		FROM catalog_countries
		ORDER BY name`

	selectFAQs = `SELECT id, question, answer FROM catalog_faqs ORDER BY id`

	selectProperties = `
		SELECT id, label, key, type, description
		FROM catalog_contact_properties
		ORDER BY label`

	selectStages = `
		SELECT id, stage_order, name, script_template, COALESCE(required_input, '')
		FROM catalog_pipeline_stages
		ORDER BY stage_order`
)

func scanCourse(rows pgx.Rows) (domain.Course, error) {
	var c domain.Course
	var modality, status string
	err := rows.Scan(&c.SKU, &c.Name, &c.Description, &c.Benefits, &c.Instructor, &c.InstructorBio,
		&c.Duration, &modality, &c.SyllabusLink, &c.MediaURL, &status, &c.SortOrder)
	c.Modality = domain.CourseModality(modality)
	c.Status = domain.CourseStatus(status)
	return c, err
}

func scanPricing(rows pgx.Rows) (domain.Pricing, error) {
	var p domain.Pricing
	err := rows.Scan(&p.SKU, &p.Country, &p.Currency, &p.Price, &p.PromoPrice,
		&p.PromoStartDate, &p.PromoEndDate, &p.IsActive)
	return p, err
}

func scanPaymentLink(rows pgx.Rows) (domain.PaymentLink, error) {
	var l domain.PaymentLink
	err := rows.Scan(&l.ID, &l.SKU, &l.Country, &l.URL, &l.PaymentMethods, &l.Instructions, &l.IsActive)
	return l, err
}

func scanProfession(rows pgx.Rows) (domain.Profession, error) {
	var p domain.Profession
	err := rows.Scan(&p.ID, &p.Name)
	return p, err
}

func scanRule(rows pgx.Rows) (domain.ProfessionRule, error) {
	var r domain.ProfessionRule
	err := rows.Scan(&r.SKU, &r.ProfessionID, &r.IsAllowed, &r.RequiresCertification, &r.Notes)
	return r, err
}

func scanCountry(rows pgx.Rows) (domain.Country, error) {
	var c domain.Country
	err := rows.Scan(&c.Code, &c.Name, &c.Currency, &c.PhonePrefix, &c.Flag, &c.IsActive)
	return c, err
}

func scanFAQ(rows pgx.Rows) (domain.FAQ, error) {
	var f domain.FAQ
	err := rows.Scan(&f.ID, &f.Question, &f.Answer)
	return f, err
}

func scanProperty(rows pgx.Rows) (domain.ContactProperty, error) {
	var p domain.ContactProperty
	var typ string
	err := rows.Scan(&p.ID, &p.Label, &p.Key, &typ, &p.Description)
	p.Type = domain.PropertyType(typ)
	return p, err
}

func scanStage(rows pgx.Rows) (domain.Stage, error) {
	var s domain.Stage
	err := rows.Scan(&s.ID, &s.Order, &s.Name, &s.ScriptTemplate, &s.RequiredInput)
	return s, err
}

package agent

import (
	"context"
	"fmt"
	"strings"

	catalog "salesflow_backend/internal/catalog/domain"
	"salesflow_backend/internal/deals/ports"
	"salesflow_backend/platform/phone"
	"salesflow_backend/platform/validator"

	"google.golang.org/genai"
)

// notFoundSentinel is what the model answers when the field is absent.
const notFoundSentinel = "NULL"

// Extractor implements ports.FieldExtractor with a zero-temperature call.
type Extractor struct {
	client *genai.Client
	model  string
	val    *validator.Validator
}

// NewExtractor creates an extractor using model.
func NewExtractor(client *genai.Client, model string, val *validator.Validator) *Extractor {
	return &Extractor{client: client, model: model, val: val}
}

var _ ports.FieldExtractor = (*Extractor)(nil)

// Extract asks the model for the property's value in text.
func (e *Extractor) Extract(ctx context.Context, text string, property catalog.ContactProperty) (string, error) {
	temp := float32(0)
	resp, err := e.client.Models.GenerateContent(ctx, e.model,
		[]*genai.Content{genai.NewContentFromText(BuildExtractionPrompt(text, property), genai.RoleUser)},
		&genai.GenerateContentConfig{Temperature: &temp},
	)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", property.Key, err)
	}
	return InterpretExtraction(resp.Text(), property, e.val)
}

// InterpretExtraction cleans a raw model answer. The sentinel, an empty
// answer, or a value failing its declared type all mean not found. Phone
// values written in international form are stored as E.164.
func InterpretExtraction(raw string, property catalog.ContactProperty, val *validator.Validator) (string, error) {
	value := strings.TrimSpace(raw)
	value = strings.Trim(value, "\"'`")
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, notFoundSentinel) {
		return "", ports.ErrFieldNotFound
	}

	if property.Type == catalog.PropertyPhone {
		value, _ = phone.NormalizeE164(value, "")
		return value, nil
	}

	if val != nil {
		switch property.Type {
		case catalog.PropertyEmail:
			if err := val.Var(value, "email"); err != nil {
				return "", ports.ErrFieldNotFound
			}
		case catalog.PropertyNumber:
			plain := strings.NewReplacer(",", "", " ", "").Replace(value)
			if err := val.Var(plain, "numeric"); err != nil {
				return "", ports.ErrFieldNotFound
			}
		}
	}
	return value, nil
}

// BuildExtractionPrompt renders the single-field extraction task.
func BuildExtractionPrompt(text string, property catalog.ContactProperty) string {
	var b strings.Builder
	b.WriteString("TAREA: Extraer un dato específico del texto del usuario según la definición de la propiedad.\n\n")
	fmt.Fprintf(&b, "ETIQUETA PROPIEDAD: %q\n", property.Label)
	fmt.Fprintf(&b, "TIPO: %s\n", property.Type)
	fmt.Fprintf(&b, "DESCRIPCIÓN/REGLAS: %s\n\n", property.Description)
	fmt.Fprintf(&b, "TEXTO USUARIO: %q\n\n", text)
	b.WriteString("INSTRUCCIONES:\n")
	b.WriteString("1. Analiza el TEXTO USUARIO.\n")
	b.WriteString("2. Extrae el valor que mejor coincida con la definición de la PROPIEDAD.\n")
	b.WriteString("3. Devuelve SOLO el valor extraído, sin comillas ni explicaciones.\n")
	b.WriteString("4. Para tipos Select, mapea el texto a la opción válida más cercana.\n")
	fmt.Fprintf(&b, "5. Si el dato NO está presente o es ambiguo, devuelve exactamente %q.\n\n", notFoundSentinel)
	b.WriteString("EJEMPLOS:\n")
	b.WriteString("- Texto: \"Soy Juan\", Propiedad: Nombre -> Juan\n")
	b.WriteString("- Texto: \"Hola quiero info\", Propiedad: Email -> NULL\n")
	b.WriteString("- Texto: \"Soy ingeniero de software con 5 años de exp\", Propiedad: Profesión -> Ingeniero de Software\n")
	return b.String()
}

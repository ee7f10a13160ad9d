package gemini

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/phrazzld/tryon-api/internal/domain"
)

var promptTemplate = template.Must(template.New("tryon").
	Funcs(template.FuncMap{"imageNumber": func(i int) int { return i + 2 }}).
	Parse(`You are a virtual fitting room. The first image is a photo of a shopper.
{{- range $i, $g := .Garments}}
Image {{imageNumber $i}} is a {{$g}} garment.
{{- end}}
Produce one photorealistic image of the same shopper, in the same pose, framing and background,
wearing {{if gt (len .Garments) 1}}these garments together{{else}}this garment{{end}}.
Keep the shopper's face, body shape, skin tone and hair unchanged. Do not add text or watermarks.`))

type promptData struct {
	Garments []domain.GarmentCategory
}

func buildPrompt(categories []domain.GarmentCategory) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, promptData{Garments: categories}); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

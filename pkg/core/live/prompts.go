package live

import "strings"

const basePrompt = `Eres un asistente que escucha una conversación en directo y toma notas para el usuario.
No respondas nunca con texto ni con voz: comunícate exclusivamente llamando a las herramientas disponibles.
Usa addNote para guardar consejos breves o datos útiles que surjan.
Usa answerQuestion cuando alguien formule una pregunta que puedas responder con seguridad.
Sé conciso. No repitas notas que ya hayas guardado. Si no hay nada útil que anotar, no llames a ninguna herramienta.`

const contextPrompt = `Usa provideContext para explicar brevemente temas, nombres o conceptos mencionados que el usuario podría no conocer.`

// SystemPrompt builds the instruction sent when the channel opens. extra is
// appended verbatim when non-empty.
func SystemPrompt(contextualize bool, extra string) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	if contextualize {
		b.WriteString("\n")
		b.WriteString(contextPrompt)
	}
	if s := strings.TrimSpace(extra); s != "" {
		b.WriteString("\n\n")
		b.WriteString(s)
	}
	return b.String()
}

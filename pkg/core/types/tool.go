package types

// Tool is a function the remote live model may invoke instead of replying with text.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema *JSONSchema `json:"parameters,omitempty"`
}

// JSONSchema is the subset of JSON Schema used for tool parameters.
type JSONSchema struct {
	Type        string                `json:"type"`
	Properties  map[string]JSONSchema `json:"properties,omitempty"`
	Required    []string              `json:"required,omitempty"`
	Description string                `json:"description,omitempty"`
}

// Tool names understood by the event interpreter.
const (
	ToolAddNote        = "addNote"
	ToolAnswerQuestion = "answerQuestion"
	ToolProvideContext = "provideContext"
)

// NewFunctionTool creates a new function tool.
func NewFunctionTool(name, description string, schema *JSONSchema) Tool {
	return Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}
}

func stringProps(required []string, descs map[string]string) *JSONSchema {
	props := make(map[string]JSONSchema, len(descs))
	for k, d := range descs {
		props[k] = JSONSchema{Type: "string", Description: d}
	}
	return &JSONSchema{Type: "object", Properties: props, Required: required}
}

// AddNoteTool records a standalone tip.
func AddNoteTool() Tool {
	return NewFunctionTool(ToolAddNote,
		"Guarda un consejo breve o un dato útil sobre lo que se está diciendo.",
		stringProps([]string{"tip"}, map[string]string{
			"tip": "El consejo o nota, en una o dos frases.",
		}))
}

// AnswerQuestionTool answers a question heard in the conversation.
func AnswerQuestionTool() Tool {
	return NewFunctionTool(ToolAnswerQuestion,
		"Responde a una pregunta que se ha formulado en la conversación.",
		stringProps([]string{"question", "answer"}, map[string]string{
			"question": "La pregunta tal como se entendió.",
			"answer":   "Una respuesta concisa.",
		}))
}

// ProvideContextTool explains a topic that came up in the conversation.
func ProvideContextTool() Tool {
	return NewFunctionTool(ToolProvideContext,
		"Aporta contexto sobre un tema, concepto o nombre mencionado.",
		stringProps([]string{"topic", "explanation"}, map[string]string{
			"topic":       "El tema en pocas palabras.",
			"explanation": "Una explicación breve del tema.",
		}))
}

// SessionTools returns the tool set declared to the remote model for one session.
// provideContext is only declared when contextualization is enabled.
func SessionTools(contextualize bool) []Tool {
	tools := []Tool{AddNoteTool(), AnswerQuestionTool()}
	if contextualize {
		tools = append(tools, ProvideContextTool())
	}
	return tools
}

// HasTool reports whether name is among tools.
func HasTool(tools []Tool, name string) bool {
	for _, t := range tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

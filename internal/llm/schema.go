package llm

import (
	"github.com/invopop/jsonschema"
)

var (
	messageSentimentSchema      = generateSchema[messageSentimentReply]()
	conversationSentimentSchema = generateSchema[conversationSentimentReply]()
)

// generateSchema renders the JSON schema of T inline (no $defs) and closed to
// extra properties, for embedding into prompts.
func generateSchema[T any]() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	schema.Version = ""
	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	return string(b)
}

package protocol

import (
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
)

var (
	schemaOnce sync.Once
	schemaRoot *jsonschema.Schema
)

var inboundSchemas = []struct {
	title       string
	description string
	sample      any
}{
	{"Move", "Set the sender's paddle and advance the match one step.", Move{}},
	{"Score Update", "Report a client-observed score; never lowers a stored score.", ScoreUpdate{}},
	{"Ping", "Request a pong carrying the server clock.", Ping{}},
	{"Ready", "Request the current snapshot.", Ready{}},
	{"Pause Request", "Toggle the session between active and paused.", PauseRequest{}},
}

// Schema returns the JSON Schema of every inbound message. The result is
// built once and shared; callers must not mutate it.
func Schema() *jsonschema.Schema {
	schemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			RequiredFromJSONSchemaTags: true,
			DoNotReference:             true,
		}

		variants := make([]*jsonschema.Schema, 0, len(inboundSchemas))
		for _, in := range inboundSchemas {
			s := reflector.ReflectFromType(reflect.TypeOf(in.sample))
			s.Version = ""
			s.Title = in.title
			s.Description = in.description
			variants = append(variants, s)
		}

		schemaRoot = &jsonschema.Schema{
			Version:     jsonschema.Version,
			Title:       "Paddle Arena Inbound Message",
			Description: "Client-to-server frames on a session channel, discriminated by type.",
			OneOf:       variants,
		}
	})
	return schemaRoot
}

package schema

import "strings"

// Profile selects the export target shape (§4.5.5). OpenAPI is a
// supplemented fifth profile alongside the spec's original four.
type Profile string

const (
	ProfileMCP       Profile = "mcp"
	ProfileOpenAI    Profile = "openai"
	ProfileAnthropic Profile = "anthropic"
	ProfileGeneric   Profile = "generic"
	ProfileOpenAPI   Profile = "openapi"
)

// ExportAnnotations mirrors module.Annotations without importing the
// module package, keeping schema a leaf package.
type ExportAnnotations struct {
	ReadOnly         bool
	Destructive      bool
	Idempotent       bool
	RequiresApproval bool
	OpenWorld        bool
	Streaming        bool
}

// ExportExample mirrors module.Example for the same reason.
type ExportExample struct {
	Title       string
	Inputs      map[string]any
	Output      map[string]any
	Description string
}

// ExportInput carries everything an exporter needs from a module and its
// resolved schemas.
type ExportInput struct {
	ModuleID      string
	Description   string
	Documentation string
	InputSchema   map[string]any
	OutputSchema  map[string]any
	Definitions   map[string]any
	Annotations   ExportAnnotations
	Examples      []ExportExample
}

// Export dispatches to the requested profile.
func Export(in ExportInput, profile Profile) (map[string]any, error) {
	switch profile {
	case ProfileMCP:
		return exportMCP(in), nil
	case ProfileOpenAI:
		return exportOpenAI(in), nil
	case ProfileAnthropic:
		return exportAnthropic(in), nil
	case ProfileGeneric:
		return exportGeneric(in), nil
	case ProfileOpenAPI:
		return exportOpenAPI(in), nil
	default:
		return nil, errUnknownProfile(profile)
	}
}

func exportMCP(in ExportInput) map[string]any {
	return map[string]any{
		"name":        in.ModuleID,
		"description": in.Description,
		"inputSchema": in.InputSchema,
		"annotations": map[string]any{
			"readOnlyHint":    in.Annotations.ReadOnly,
			"destructiveHint": in.Annotations.Destructive,
			"idempotentHint":  in.Annotations.Idempotent,
			"openWorldHint":   in.Annotations.OpenWorld,
		},
	}
}

func exportOpenAI(in ExportInput) map[string]any {
	strict := Strict(in.InputSchema)
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        strings.ReplaceAll(in.ModuleID, ".", "_"),
			"description": in.Description,
			"parameters":  strict,
			"strict":      true,
		},
	}
}

func exportAnthropic(in ExportInput) map[string]any {
	inputSchema := StripExtensions(ApplyLlmDescriptions(in.InputSchema))
	out := map[string]any{
		"name":        in.ModuleID,
		"description": in.Description,
		"input_schema": inputSchema,
	}
	if len(in.Examples) > 0 {
		examples := make([]any, len(in.Examples))
		for i, ex := range in.Examples {
			examples[i] = ex.Inputs
		}
		out["input_examples"] = examples
	}
	return out
}

func exportGeneric(in ExportInput) map[string]any {
	return map[string]any{
		"module_id":     in.ModuleID,
		"description":   in.Description,
		"input_schema":  in.InputSchema,
		"output_schema": in.OutputSchema,
		"definitions":   in.Definitions,
	}
}

// exportOpenAPI is the supplemented fifth profile: one OpenAPI 3 operation
// fragment per module, keyed by its moduleId as an operationId. Modeled on
// the teacher's core/openapi generator, which builds one fragment per
// discovered module/action pair.
func exportOpenAPI(in ExportInput) map[string]any {
	return map[string]any{
		"operationId": strings.ReplaceAll(in.ModuleID, ".", "_"),
		"summary":     in.Description,
		"description": in.Documentation,
		"requestBody": map[string]any{
			"required": true,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": in.InputSchema,
				},
			},
		},
		"responses": map[string]any{
			"200": map[string]any{
				"description": "successful call",
				"content": map[string]any{
					"application/json": map[string]any{
						"schema": in.OutputSchema,
					},
				},
			},
		},
	}
}

func errUnknownProfile(p Profile) error {
	return &unknownProfileError{profile: p}
}

type unknownProfileError struct {
	profile Profile
}

func (e *unknownProfileError) Error() string {
	return "schema: unknown export profile " + string(e.profile)
}

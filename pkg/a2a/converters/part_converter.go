// Package converters translates between A2A protocol content and GenAI content.
package converters

import (
	"fmt"

	"google.golang.org/genai"

	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
)

// DefaultMIMEType is used for inline file bytes that arrive without a MIME type.
const DefaultMIMEType = "application/octet-stream"

// A2APartToGenAI converts one A2A part. Text becomes Text, a file by URI becomes
// FileData and a file by bytes becomes InlineData. Data parts are rejected.
func A2APartToGenAI(part a2a.Part) (*genai.Part, error) {
	switch part.Kind {
	case a2a.PartKindText:
		return genai.NewPartFromText(part.Text), nil

	case a2a.PartKindFile:
		file := part.File
		if file == nil {
			return nil, fmt.Errorf("file part has no file")
		}
		switch {
		case file.URI != "" && file.Bytes == "":
			return &genai.Part{FileData: &genai.FileData{
				FileURI:  file.URI,
				MIMEType: file.MimeType,
			}}, nil
		case file.Bytes != "" && file.URI == "":
			data, err := file.Decode()
			if err != nil {
				return nil, err
			}
			mimeType := file.MimeType
			if mimeType == "" {
				mimeType = DefaultMIMEType
			}
			return &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}}, nil
		default:
			return nil, fmt.Errorf("unsupported file type: %w", file.Validate())
		}

	default:
		return nil, fmt.Errorf("unsupported part type: %q", part.Kind)
	}
}

// GenAIPartToA2A converts one GenAI part. Text wins over file data, which wins over
// inline data; anything else is rejected.
func GenAIPartToA2A(part *genai.Part) (a2a.Part, error) {
	switch {
	case part == nil:
		return a2a.Part{}, fmt.Errorf("part is nil")
	case part.Text != "":
		return a2a.NewTextPart(part.Text), nil
	case part.FileData != nil:
		if part.FileData.FileURI == "" {
			return a2a.Part{}, fmt.Errorf("part missing value file_uri")
		}
		return a2a.NewFileURIPart(part.FileData.FileURI, part.FileData.MIMEType), nil
	case part.InlineData != nil:
		if len(part.InlineData.Data) == 0 {
			return a2a.Part{}, fmt.Errorf("part missing value data")
		}
		return a2a.NewFileBytesPart(part.InlineData.Data, part.InlineData.MIMEType), nil
	default:
		return a2a.Part{}, fmt.Errorf("unsupported part type: %s", describe(part))
	}
}

// A2APartsToGenAI converts every part and fails on the first unsupported one.
func A2APartsToGenAI(parts []a2a.Part) ([]*genai.Part, error) {
	out := make([]*genai.Part, 0, len(parts))
	for i, p := range parts {
		converted, err := A2APartToGenAI(p)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		out = append(out, converted)
	}
	return out, nil
}

// GenAIPartsToA2A converts the parts that carry text, file data or inline data and
// drops the rest, such as function calls and responses.
func GenAIPartsToA2A(parts []*genai.Part) ([]a2a.Part, error) {
	out := make([]a2a.Part, 0, len(parts))
	for i, p := range parts {
		if !hasContent(p) {
			continue
		}
		converted, err := GenAIPartToA2A(p)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		out = append(out, converted)
	}
	return out, nil
}

func hasContent(p *genai.Part) bool {
	return p != nil && (p.Text != "" || p.FileData != nil || p.InlineData != nil)
}

func describe(p *genai.Part) string {
	switch {
	case p.FunctionCall != nil:
		return "function_call"
	case p.FunctionResponse != nil:
		return "function_response"
	case p.ExecutableCode != nil:
		return "executable_code"
	case p.CodeExecutionResult != nil:
		return "code_execution_result"
	}
	return "empty"
}

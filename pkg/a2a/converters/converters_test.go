package converters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
	"pgregory.net/rapid"

	"github.com/agent-protocol/adk-tutorials/pkg/a2a"
	"github.com/agent-protocol/adk-tutorials/pkg/core"
)

func TestA2APartToGenAI(t *testing.T) {
	tests := []struct {
		name    string
		part    a2a.Part
		want    *genai.Part
		wantErr string
	}{
		{
			name: "text",
			part: a2a.NewTextPart("Are you free on Friday?"),
			want: &genai.Part{Text: "Are you free on Friday?"},
		},
		{
			name: "file by uri",
			part: a2a.NewFileURIPart("gs://bucket/calendar.ics", "text/calendar"),
			want: &genai.Part{FileData: &genai.FileData{FileURI: "gs://bucket/calendar.ics", MIMEType: "text/calendar"}},
		},
		{
			name: "file by bytes",
			part: a2a.NewFileBytesPart([]byte("hello"), "text/plain"),
			want: &genai.Part{InlineData: &genai.Blob{Data: []byte("hello"), MIMEType: "text/plain"}},
		},
		{
			name: "file by bytes without mime type",
			part: a2a.NewFileBytesPart([]byte{0x01, 0x02}, ""),
			want: &genai.Part{InlineData: &genai.Blob{Data: []byte{0x01, 0x02}, MIMEType: DefaultMIMEType}},
		},
		{
			name:    "file with both uri and bytes",
			part:    a2a.Part{Kind: a2a.PartKindFile, File: &a2a.FileContent{URI: "u", Bytes: "aGk="}},
			wantErr: "unsupported file type",
		},
		{
			name:    "bad base64",
			part:    a2a.Part{Kind: a2a.PartKindFile, File: &a2a.FileContent{Bytes: "***"}},
			wantErr: "invalid base64",
		},
		{
			name:    "data",
			part:    a2a.NewDataPart(map[string]any{"k": "v"}),
			wantErr: "unsupported part type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := A2APartToGenAI(tt.part)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenAIPartToA2A(t *testing.T) {
	tests := []struct {
		name    string
		part    *genai.Part
		want    a2a.Part
		wantErr string
	}{
		{
			name: "text",
			part: genai.NewPartFromText("On 2025-07-28, Karley is available at: 09:00."),
			want: a2a.NewTextPart("On 2025-07-28, Karley is available at: 09:00."),
		},
		{
			name: "file data",
			part: &genai.Part{FileData: &genai.FileData{FileURI: "https://example.com/a.png", MIMEType: "image/png"}},
			want: a2a.NewFileURIPart("https://example.com/a.png", "image/png"),
		},
		{
			name:    "file data without uri",
			part:    &genai.Part{FileData: &genai.FileData{MIMEType: "image/png"}},
			wantErr: "file_uri",
		},
		{
			name: "inline data",
			part: &genai.Part{InlineData: &genai.Blob{Data: []byte("abc"), MIMEType: "text/plain"}},
			want: a2a.NewFileBytesPart([]byte("abc"), "text/plain"),
		},
		{
			name:    "inline data without bytes",
			part:    &genai.Part{InlineData: &genai.Blob{MIMEType: "text/plain"}},
			wantErr: "data",
		},
		{
			name:    "function call",
			part:    genai.NewPartFromFunctionCall("get_availability", nil),
			wantErr: "function_call",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GenAIPartToA2A(tt.part)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenAIPartsToA2A_DropsPartsWithoutContent(t *testing.T) {
	parts := []*genai.Part{
		genai.NewPartFromFunctionCall("send_message", map[string]any{"agent_name": "Karley Agent"}),
		genai.NewPartFromText("Karley is free at 10:00."),
		genai.NewPartFromFunctionResponse("send_message", map[string]any{"result": "ok"}),
	}
	got, err := GenAIPartsToA2A(parts)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Karley is free at 10:00.", got[0].Text)
}

func TestA2APartsToGenAI_FirstErrorWins(t *testing.T) {
	_, err := A2APartsToGenAI([]a2a.Part{
		a2a.NewTextPart("ok"),
		a2a.NewDataPart(map[string]any{"x": 1}),
	})
	assert.ErrorContains(t, err, "part 1")
}

func TestMessageToContent(t *testing.T) {
	msg := a2a.NewMessage(a2a.RoleAgent, "m-1", a2a.NewTextPart("hi"))
	content, err := MessageToContent(msg)
	require.NoError(t, err)
	assert.Equal(t, core.RoleModel, content.Role)
	assert.Equal(t, "hi", core.ContentText(content))

	msg.Role = a2a.RoleUser
	content, err = MessageToContent(msg)
	require.NoError(t, err)
	assert.Equal(t, core.RoleUser, content.Role)

	_, err = MessageToContent(nil)
	assert.Error(t, err)
}

func TestContentToMessage(t *testing.T) {
	msg, err := ContentToMessage(core.NewTextContent(core.RoleModel, "done"), "task-1", "ctx-1")
	require.NoError(t, err)
	assert.Equal(t, a2a.RoleAgent, msg.Role)
	assert.Equal(t, "task-1", msg.TaskID)
	assert.Equal(t, "ctx-1", msg.ContextID)
	assert.Equal(t, a2a.KindMessage, msg.Kind)
	assert.NotEmpty(t, msg.MessageID)
	assert.Equal(t, "done", msg.Text())
}

func TestEventParts(t *testing.T) {
	parts, err := EventParts(nil)
	require.NoError(t, err)
	assert.Empty(t, parts)

	ev := core.NewEvent("inv", "Karley_Agent")
	ev.Content = core.NewTextContent(core.RoleModel, "free at 10:00")
	parts, err = EventParts(ev)
	require.NoError(t, err)
	assert.Equal(t, []a2a.Part{a2a.NewTextPart("free at 10:00")}, parts)
}

func TestPartRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var part *genai.Part
		switch rapid.IntRange(0, 2).Draw(t, "variant") {
		case 0:
			part = genai.NewPartFromText(rapid.StringN(1, 64, -1).Draw(t, "text"))
		case 1:
			part = &genai.Part{FileData: &genai.FileData{
				FileURI:  "https://example.com/" + rapid.StringMatching(`[a-z0-9]{1,16}`).Draw(t, "path"),
				MIMEType: rapid.SampledFrom([]string{"image/png", "text/plain", ""}).Draw(t, "mime"),
			}}
		default:
			part = &genai.Part{InlineData: &genai.Blob{
				Data:     rapid.SliceOfN(rapid.Byte(), 1, 64).Draw(t, "data"),
				MIMEType: rapid.SampledFrom([]string{"image/png", "application/pdf"}).Draw(t, "mime"),
			}}
		}

		a2aPart, err := GenAIPartToA2A(part)
		if err != nil {
			t.Fatalf("to a2a: %v", err)
		}
		back, err := A2APartToGenAI(a2aPart)
		if err != nil {
			t.Fatalf("to genai: %v", err)
		}
		if !assert.ObjectsAreEqual(part, back) {
			t.Fatalf("round trip changed part: %#v != %#v", part, back)
		}
	})
}

package httpsig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureInputParams(t *testing.T) {
	tests := []struct {
		name string
		in   SignatureInput
		want string
	}{
		{
			name: "base components",
			in: SignatureInput{
				Components: []Component{ComponentMethod, ComponentTargetURI, ComponentContentType},
				Created:    1700000000,
				KeyID:      "test-key",
			},
			want: `(@method @target-uri content-type);created=1700000000;keyid="test-key"`,
		},
		{
			name: "conditional components",
			in: SignatureInput{
				Components: []Component{
					ComponentMethod, ComponentTargetURI, ComponentContentType,
					ComponentAuthorization, ComponentContentDigest, ComponentContentLength,
				},
				Created: 1,
				KeyID:   "k",
			},
			want: `(@method @target-uri content-type authorization content-digest content-length);created=1;keyid="k"`,
		},
		{
			name: "key id is escaped",
			in: SignatureInput{
				Components: []Component{ComponentMethod},
				Created:    5,
				KeyID:      `a"b\c`,
			},
			want: `(@method);created=5;keyid="a\"b\\c"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Params())
		})
	}
}

func TestSignatureInputString(t *testing.T) {
	in := SignatureInput{Components: []Component{ComponentMethod}, Created: 7, KeyID: "k"}

	t.Run("default label", func(t *testing.T) {
		assert.Equal(t, `sig1=(@method);created=7;keyid="k"`, in.String())
	})

	t.Run("custom label", func(t *testing.T) {
		in := in
		in.Label = "peer"
		assert.Equal(t, `peer=(@method);created=7;keyid="k"`, in.String())
	})
}

func TestBuildSignatureBase(t *testing.T) {
	t.Run("reference vector", func(t *testing.T) {
		msg := NewMessage("POST", "http://example.com/")
		msg.Header().Set("Content-Type", "application/json")

		in := SignatureInput{
			Components: []Component{ComponentMethod, ComponentTargetURI, ComponentContentType},
			Created:    1700000000,
			KeyID:      "test-key",
		}

		want := "\"@method\": POST\n" +
			"\"@target-uri\": http://example.com/\n" +
			"\"content-type\": application/json\n" +
			"\"@signature-params\": (@method @target-uri content-type);created=1700000000;keyid=\"test-key\""

		assert.Equal(t, want, BuildSignatureBase(msg, in))
	})

	t.Run("no trailing newline", func(t *testing.T) {
		msg := NewMessage("GET", "https://example.com/a")
		base := BuildSignatureBase(msg, SignatureInput{Components: []Component{ComponentMethod}, KeyID: "k"})

		assert.NotEqual(t, byte('\n'), base[len(base)-1])
	})

	t.Run("missing header yields empty value", func(t *testing.T) {
		msg := NewMessage("GET", "https://example.com/")

		base := BuildSignatureBase(msg, SignatureInput{
			Components: []Component{ComponentContentType},
			Created:    1,
			KeyID:      "k",
		})

		assert.Equal(t, "\"content-type\": \n\"@signature-params\": (content-type);created=1;keyid=\"k\"", base)
	})

	t.Run("method is uppercased", func(t *testing.T) {
		msg := NewMessage("post", "https://example.com/")

		base := BuildSignatureBase(msg, SignatureInput{Components: []Component{ComponentMethod}, KeyID: "k"})
		assert.Contains(t, base, "\"@method\": POST\n")
	})

	t.Run("empty path normalized to slash", func(t *testing.T) {
		msg := NewMessage("GET", "https://example.com")

		base := BuildSignatureBase(msg, SignatureInput{Components: []Component{ComponentTargetURI}, KeyID: "k"})
		assert.Contains(t, base, "\"@target-uri\": https://example.com/\n")
	})

	t.Run("query is kept", func(t *testing.T) {
		msg := NewMessage("GET", "https://example.com/v1/payments?limit=10&cursor=abc")

		base := BuildSignatureBase(msg, SignatureInput{Components: []Component{ComponentTargetURI}, KeyID: "k"})
		assert.Contains(t, base, "\"@target-uri\": https://example.com/v1/payments?limit=10&cursor=abc\n")
	})

	t.Run("deterministic", func(t *testing.T) {
		msg := NewMessage("POST", "https://example.com/x").WithBody([]byte(`{"a":1}`))
		msg.Header().Set("Content-Type", "application/json")
		SetContentHeaders(msg)

		in := SignatureInput{Components: ConditionalPolicy.Components(msg), Created: 42, KeyID: "k"}

		assert.Equal(t, BuildSignatureBase(msg, in), BuildSignatureBase(msg, in))
	})
}

func TestParseSignatureInput(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		in := SignatureInput{
			Label:      "sig1",
			Components: []Component{ComponentMethod, ComponentTargetURI, ComponentContentType, ComponentAuthorization},
			Created:    1700000000,
			KeyID:      `odd"key\id`,
		}

		parsed, err := ParseSignatureInput(in.String())
		require.NoError(t, err)
		assert.Equal(t, in, parsed)
	})

	t.Run("without label", func(t *testing.T) {
		parsed, err := ParseSignatureInput(`(@method @target-uri);created=3;keyid="k"`)
		require.NoError(t, err)

		assert.Equal(t, DefaultLabel, parsed.Label)
		assert.Equal(t, []Component{ComponentMethod, ComponentTargetURI}, parsed.Components)
		assert.Equal(t, int64(3), parsed.Created)
		assert.Equal(t, "k", parsed.KeyID)
	})

	t.Run("quoted component identifiers", func(t *testing.T) {
		parsed, err := ParseSignatureInput(`sig1=("@method" "content-type");created=3;keyid="k"`)
		require.NoError(t, err)
		assert.Equal(t, []Component{ComponentMethod, ComponentContentType}, parsed.Components)
	})

	t.Run("unknown parameters are ignored", func(t *testing.T) {
		parsed, err := ParseSignatureInput(`sig1=(@method);alg="ed25519";created=3;keyid="k";nonce="n"`)
		require.NoError(t, err)
		assert.Equal(t, "k", parsed.KeyID)
	})

	t.Run("semicolon inside key id", func(t *testing.T) {
		parsed, err := ParseSignatureInput(`sig1=(@method);created=3;keyid="a;b"`)
		require.NoError(t, err)
		assert.Equal(t, "a;b", parsed.KeyID)
	})

	errorTests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing components", `sig1=;created=3;keyid="k"`},
		{"empty components", `sig1=();created=3;keyid="k"`},
		{"missing created", `sig1=(@method);keyid="k"`},
		{"non integer created", `sig1=(@method);created=soon;keyid="k"`},
		{"missing keyid", `sig1=(@method);created=3`},
	}

	for _, tt := range errorTests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSignatureInput(tt.input)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSplitQuoteAware(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"plain", "a;b;c", []string{"a", "b", "c"}},
		{"quoted delimiter", `a;"b;c";d`, []string{"a", `"b;c"`, "d"}},
		{"escaped quote", `a;"b\";c";d`, []string{"a", `"b\";c"`, "d"}},
		{"empty parts skipped", "a;; ;b", []string{"a", "b"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitQuoteAware(tt.input, ';'))
		})
	}
}

func TestUnquote(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"plain"`, "plain"},
		{`"a\"b"`, `a"b`},
		{`"a\\b"`, `a\b`},
		{`bare`, "bare"},
		{`"`, `"`},
		{`""`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, unquote(tt.input))
		})
	}
}

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCats = []string{"Office Supplies", "Travel"}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"52.52", "52.52", false},
		{"$1,234.50", "1234.5", false},
		{"52.52 USD", "52.52", false},
		{"€ 9", "9", false},
		{"(12.00)", "-12", false},
		{"-3.5", "-3.5", false},
		{"", "", true},
		{"  ", "", true},
		{"twelve", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseAmount(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.String())
		})
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := map[string]string{
		"plain":        `{"amount":"1"}`,
		"fenced":       "```json\n{\"amount\":\"1\"}\n```",
		"bare fence":   "```\n{\"amount\":\"1\"}\n```",
		"chatter":      "Sure! Here is the JSON:\n{\"amount\":\"1\"}\nLet me know.",
		"surrounding ": "  {\"amount\":\"1\"}  ",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, `{"amount":"1"}`, CleanModelJSON(in))
		})
	}
}

func TestNormalizeAndSanitizeJSON(t *testing.T) {
	in := `{"merchant_name":"Office Depot","total":52.52,"tax":0,"transaction_date":"2025-10-20",
		"category":" Office Supplies ","type":"expense","confidence":0.9,"currency":null,"items":[1,2]}`

	out, dropped, err := NormalizeAndSanitizeJSON([]byte(in), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"vendor":"Office Depot","amount":"52.52","tax_amount":"0","date":"2025-10-20",
		"category":"Office Supplies","type":"expense"}`, string(out))
	assert.Contains(t, dropped, "merchant_name->vendor")
	assert.Contains(t, dropped, "confidence(unknown)")
	assert.Contains(t, dropped, "currency(null)")
}

func TestNormalizeAndSanitizeJSON_KeepsExistingCanonicalKey(t *testing.T) {
	out, _, err := NormalizeAndSanitizeJSON([]byte(`{"vendor":"A","merchant":"B","amount":"1"}`), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"vendor":"A","amount":"1"}`, string(out))
}

func TestNormalizeAndSanitizeJSON_RejectsNonObjects(t *testing.T) {
	for _, in := range []string{`[1,2]`, `"x"`, `null`, `{`} {
		_, _, err := NormalizeAndSanitizeJSON([]byte(in), nil)
		assert.Error(t, err, in)
	}
}

func TestParseModelAnswer(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		res := ParseModelAnswer("openai", "```json\n{\"date\":\"2025-10-20\",\"vendor\":\"Office Depot\",\"amount\":\"$52.52\",\"tax_amount\":\"0\",\"category\":\"Office Supplies\",\"type\":\"expense\",\"notes\":\"faded\"}\n```", testCats, nil)
		require.True(t, res.Success(), res.Err)
		assert.Equal(t, "openai", res.Provider)
		assert.Equal(t, "52.52", res.Fields.Amount)
		assert.Equal(t, "52.52", res.Amount.String())
		assert.Equal(t, "faded", res.Notes)
		assert.NotEmpty(t, res.RawResponse)
	})

	bad := map[string]string{
		"empty":          "",
		"prose":          "I could not read this receipt.",
		"missing amount": `{"vendor":"x"}`,
		"amount garbage": `{"amount":"about twelve"}`,
		"tax garbage":    `{"amount":"1","tax_amount":"n/a"}`,
		"null amount":    `{"amount":null}`,
	}
	for name, text := range bad {
		t.Run(name, func(t *testing.T) {
			res := ParseModelAnswer("anthropic", text, testCats, nil)
			require.False(t, res.Success())
			assert.Equal(t, KindMalformedResponse, res.Err.Kind)
			assert.Equal(t, "anthropic", res.Err.Provider)
		})
	}
}

func TestBuildSystemPrompt_ListsCategoriesInOrder(t *testing.T) {
	p := BuildSystemPrompt(testCats)
	assert.Contains(t, p, "Office Supplies; Travel")
	assert.Contains(t, p, "YYYY-MM-DD")
}

func TestValidateJSONAgainstSchema(t *testing.T) {
	schema := BuildTransactionJSONSchema(testCats)
	assert.NoError(t, ValidateJSONAgainstSchema(schema, []byte(`{"amount":"1","category":"Whatever"}`)))
	assert.Error(t, ValidateJSONAgainstSchema(schema, []byte(`{"amount":1}`)))
	assert.Error(t, ValidateJSONAgainstSchema(schema, []byte(`{"amount":"1","extra":"x"}`)))
}

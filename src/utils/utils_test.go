package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateETag_StableForEqualData(t *testing.T) {
	a, err := GenerateETag(map[string]int{"qty": 10})
	require.NoError(t, err)
	b, err := GenerateETag(map[string]int{"qty": 10})
	require.NoError(t, err)
	c, err := GenerateETag(map[string]int{"qty": 11})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestETagMatches(t *testing.T) {
	assert.True(t, ETagMatches(`"abc"`, `"abc"`))
	assert.True(t, ETagMatches(`"x", "abc"`, `"abc"`))
	assert.False(t, ETagMatches(``, `"abc"`))
	assert.False(t, ETagMatches(`"abcd"`, `"abc"`))
}

func TestSendJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	SendJSONError(rec, "Statement not found", http.StatusNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Statement not found", body["error"])
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "₹4,500.50", FormatMoney(decimal.RequireFromString("4500.5"), "INR"))
	assert.Equal(t, "$12.35", FormatMoney(decimal.RequireFromString("12.345"), "USD"))
	assert.Equal(t, "10.00 XYZ", FormatMoney(decimal.NewFromInt(10), "XYZ"))
}

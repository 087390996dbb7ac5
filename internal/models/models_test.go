package models

import (
	"encoding/json"
	"testing"

	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountInputUnmarshal(t *testing.T) {
	var line LineInput
	require.NoError(t, json.Unmarshal([]byte(`{"category_id":1,"amount":25.5}`), &line))
	assert.Equal(t, AmountInput("25.5"), line.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount":"$1,000"}`), &line))
	assert.Equal(t, "1000.00", line.Amount.Lenient().StringFixed(2))

	require.NoError(t, json.Unmarshal([]byte(`{"amount":null}`), &line))
	assert.True(t, line.Amount.Blank())
}

func TestAmountInputStrict(t *testing.T) {
	d, err := AmountInput("").Strict("total_amount")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = AmountInput("10.005").Strict("total_amount")
	require.NoError(t, err)
	assert.Equal(t, "10.01", d.StringFixed(2))

	_, err = AmountInput("ten").Strict("total_amount")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.ErrorContains(t, err, "total_amount")

	for _, in := range []AmountInput{"123456789", "1e30000000"} {
		_, err = in.Strict("total_amount")
		assert.ErrorIs(t, err, domain.ErrValidation, string(in))
	}
}

func TestLineInputBlank(t *testing.T) {
	assert.True(t, LineInput{}.Blank())
	assert.True(t, LineInput{CategoryID: 3, Amount: "0"}.Blank())
	assert.False(t, LineInput{Description: "chairs"}.Blank())
	assert.False(t, LineInput{Amount: "5"}.Blank())
	// unparseable amounts coerce to zero, so a row with nothing else in it is blank
	assert.True(t, LineInput{CategoryID: 3, Amount: "abc"}.Blank())
	assert.False(t, LineInput{Description: "deposit", Amount: "abc"}.Blank())
}

func TestValidateReportsJSONNames(t *testing.T) {
	err := Validate(RequestInput{Month: "2025-03"})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.ErrorContains(t, err, "event.name is required")
	assert.ErrorContains(t, err, "event.date is required")

	err = Validate(PettyCashExpenseInput{NatureOfExpense: "x"})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.ErrorContains(t, err, "event_id is required")

	assert.NoError(t, Validate(RequestInput{Month: "2025-03", Event: EventInput{Name: "Gala", Date: "2025-03-15"}}))
}

func TestNormalize(t *testing.T) {
	in := RequestInput{
		Month:       " 2025-03 ",
		Description: " supplies ",
		Event:       EventInput{Name: " Gala ", Date: " 2025-03-15 "},
		Lines:       []LineInput{{Description: " chairs "}},
	}
	in.Normalize()
	assert.Equal(t, "2025-03", in.Month)
	assert.Equal(t, "supplies", in.Description)
	assert.Equal(t, "Gala", in.Event.Name)
	assert.Equal(t, "chairs", in.Lines[0].Description)
}

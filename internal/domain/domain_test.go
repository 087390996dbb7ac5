package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmountLenient(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "50.00", expected: "50.00"},
		{input: " 1,234.5 ", expected: "1234.50"},
		{input: "$25.50", expected: "25.50"},
		{input: "12.345", expected: "12.35"},
		{input: "-3", expected: "-3.00"},
		{input: "", expected: "0.00"},
		{input: "abc", expected: "0.00"},
		{input: "1e2", expected: "100.00"},
		{input: "99999999.99", expected: "99999999.99"},
		{input: "123456789", expected: "0.00"},
		{input: "1e30000000", expected: "0.00"},
		{input: "1e-30000000", expected: "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseAmountLenient(tt.input).StringFixed(CurrencyPlaces))
		})
	}
}

func TestParseAmountBounds(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "", want: "0.00"},
		{input: "-99999999.99", want: "-99999999.99"},
		{input: "99999999.994", want: "99999999.99"},
		{input: "99999999.995", wantErr: true},
		{input: "123456789", wantErr: true},
		{input: "1e8", wantErr: true},
		{input: "1e30000000", wantErr: true},
		{input: "1e-30000000", wantErr: true},
		{input: "ten", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.StringFixed(CurrencyPlaces))
		})
	}
}

func TestParseMonth(t *testing.T) {
	got, err := ParseMonth("2025-03")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseMonth("2025-03-21")
	require.NoError(t, err)
	assert.Equal(t, "2025-03", FormatMonth(got))
	assert.Equal(t, 1, got.Day())

	for _, bad := range []string{"", "  ", "March 2025", "2025/03"} {
		_, err := ParseMonth(bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("event.date", "2025-03-15")
	require.NoError(t, err)
	assert.Equal(t, 15, got.Day())

	_, err = ParseDate("event.date", "15-03-2025")
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorContains(t, err, "event.date")
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.Editable())
	assert.True(t, StatusRejected.Editable())
	assert.False(t, StatusApproved.Editable())
	assert.True(t, StatusPending.Deletable())
	assert.True(t, StatusRejected.Deletable())
	assert.False(t, StatusApproved.Deletable())
}

func TestActor(t *testing.T) {
	treasurer := Actor{UserID: 7, Role: RoleTreasurer, CityID: 2}
	assert.True(t, treasurer.Authenticated())
	assert.True(t, treasurer.Owns(BudgetRequest{RequesterID: 7}))
	assert.False(t, treasurer.Owns(BudgetRequest{RequesterID: 8}))
	assert.True(t, treasurer.CanActForCity(2))
	assert.False(t, treasurer.CanActForCity(3))

	admin := Actor{UserID: 1, Role: RoleAdmin}
	assert.True(t, admin.CanActForCity(3))
	assert.False(t, Actor{}.Authenticated())
	assert.False(t, Actor{}.Owns(BudgetRequest{}))

	_, err := ParseRole("GUEST")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRequestedEventTotal(t *testing.T) {
	assert.True(t, RequestedEvent{}.Total().IsZero())
}

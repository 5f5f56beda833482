package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuantity(t *testing.T) {
	cases := []struct {
		in   string
		want Quantity
		err  bool
	}{
		{"5", Finite(5), false},
		{" 0 ", Finite(0), false},
		{"Unlimited", Unlimited, false},
		{"unlimited", Unlimited, false},
		{"จำนวนมาก", Unlimited, false},
		{"-1", Quantity{}, true},
		{"lots", Quantity{}, true},
		{"", Quantity{}, true},
	}
	for _, tc := range cases {
		got, err := ParseQuantity(tc.in)
		if tc.err {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestQuantityJSON(t *testing.T) {
	var item struct {
		Total     Quantity `json:"total"`
		Available Quantity `json:"available"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"total":"จำนวนมาก","available":3}`), &item))
	assert.True(t, item.Total.IsUnlimited())
	n, ok := item.Available.Count()
	assert.True(t, ok)
	assert.EqualValues(t, 3, n)

	b, err := json.Marshal(item)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":"Unlimited","available":3}`, string(b))

	assert.Error(t, json.Unmarshal([]byte(`{"total":-2}`), &item))
	assert.Error(t, json.Unmarshal([]byte(`{"total":"many"}`), &item))
}

func TestQuantitySQL(t *testing.T) {
	v, err := Unlimited.Value()
	require.NoError(t, err)
	assert.EqualValues(t, -1, v)

	v, err = Finite(7).Value()
	require.NoError(t, err)
	assert.EqualValues(t, 7, v)

	var q Quantity
	require.NoError(t, q.Scan(int64(-1)))
	assert.True(t, q.IsUnlimited())
	require.NoError(t, q.Scan(int64(4)))
	assert.Equal(t, Finite(4), q)
	require.NoError(t, q.Scan([]byte("9")))
	assert.Equal(t, Finite(9), q)
	require.NoError(t, q.Scan([]byte("-1")))
	assert.True(t, q.IsUnlimited())
	assert.Error(t, q.Scan(nil))
	assert.Error(t, q.Scan(int64(-2)))
	assert.Error(t, q.Scan(3.5))
}

func TestItemStatus(t *testing.T) {
	it := Item{TotalQuantity: Finite(2), AvailableQuantity: Finite(0)}
	assert.Equal(t, ItemStatusBorrowed, it.Status())
	it.AvailableQuantity = Finite(1)
	assert.Equal(t, ItemStatusAvailable, it.Status())
	it.TotalQuantity, it.AvailableQuantity = Unlimited, Unlimited
	assert.Equal(t, ItemStatusAvailable, it.Status())
}

package resolve

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenmeta/internal/metadata/models"
)

func sampleObject() *models.Object {
	obj := models.NewObject("token")
	obj.Scalars["ticker"] = models.String("ADA")
	obj.Scalars["decimals"] = models.Int(6)
	obj.Entries["price"] = []models.Entry{
		{Value: models.String("old"), SequenceNumber: 1, Signatures: []models.Signature{}},
		{Value: models.String("new"), SequenceNumber: 3, Signatures: []models.Signature{}},
		{Value: models.String("mid"), SequenceNumber: 2, Signatures: []models.Signature{}},
	}
	return obj
}

func TestLatest(t *testing.T) {
	_, ok := Latest(nil)
	assert.False(t, ok)

	e, ok := Latest(sampleObject().Entries["price"])
	require.True(t, ok)
	assert.EqualValues(t, 3, e.SequenceNumber)
	assert.True(t, e.Value.Equal(models.String("new")))
}

func TestResolve(t *testing.T) {
	view := Resolve(sampleObject())

	assert.Equal(t, []string{"subject", "decimals", "price", "ticker"}, view.Names())
	assert.Equal(t, "token", view.Subject())

	price, ok := view.Get("price")
	require.True(t, ok)
	assert.True(t, price.Versioned())
	assert.EqualValues(t, 3, price.Entry.SequenceNumber)

	data, err := json.Marshal(view)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"subject": "token",
		"decimals": 6,
		"price": {"value": "new", "sequenceNumber": 3, "signatures": []},
		"ticker": "ADA"
	}`, string(data))
}

func TestResolveEmpty(t *testing.T) {
	view := Resolve(nil)
	assert.True(t, view.IsEmpty())

	data, err := json.Marshal(view)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestProjectAndOnly(t *testing.T) {
	view := Resolve(sampleObject())

	projected := view.Project([]string{"ticker", "missing"})
	assert.Equal(t, []string{"subject", "ticker"}, projected.Names())

	only := view.Only("price")
	data, err := json.Marshal(only)
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":{"value":"new","sequenceNumber":3,"signatures":[]}}`, string(data))

	assert.True(t, view.Only("missing").IsEmpty())
}

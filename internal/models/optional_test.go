package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalUnmarshalTriState(t *testing.T) {
	type payload struct {
		PowerPort Optional[string] `json:"power_port"`
	}

	// Ключ отсутствует.
	var absent payload
	require.NoError(t, json.Unmarshal([]byte(`{}`), &absent))
	assert.False(t, absent.PowerPort.Set)
	assert.False(t, absent.PowerPort.Valid)

	// Явный null.
	var null payload
	require.NoError(t, json.Unmarshal([]byte(`{"power_port": null}`), &null))
	assert.True(t, null.PowerPort.Set)
	assert.False(t, null.PowerPort.Valid)

	// Значение.
	var value payload
	require.NoError(t, json.Unmarshal([]byte(`{"power_port": "pp-1"}`), &value))
	assert.True(t, value.PowerPort.Set)
	assert.True(t, value.PowerPort.Valid)
	assert.Equal(t, "pp-1", value.PowerPort.Value)

	// Неверный тип — ошибка декодера.
	var bad payload
	assert.Error(t, json.Unmarshal([]byte(`{"power_port": 7}`), &bad))
}

func TestOptionalConstructors(t *testing.T) {
	some := Some(3)
	assert.True(t, some.Set)
	assert.True(t, some.Valid)
	assert.Equal(t, 3, some.Value)

	null := Null[int]()
	assert.True(t, null.Set)
	assert.False(t, null.Valid)
}

func TestOptionalMarshal(t *testing.T) {
	b, err := json.Marshal(Some("pp-1"))
	require.NoError(t, err)
	assert.Equal(t, `"pp-1"`, string(b))

	b, err = json.Marshal(Null[string]())
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestAbnormityPolicyDrainThreshold(t *testing.T) {
	p := AbnormityPolicy{Code: AbnormityPolicyCodePower,
		Rule: []byte(`[{"type":1,"value":4.5},{"type":2,"value":9}]`)}
	v, err := p.DrainThreshold()
	require.NoError(t, err)
	assert.Equal(t, 4.5, v)

	noDrain := AbnormityPolicy{Code: 1, Rule: []byte(`[{"type":2,"value":9}]`)}
	_, err = noDrain.DrainThreshold()
	assert.Error(t, err)

	broken := AbnormityPolicy{Code: 1, Rule: []byte(`{"type":1}`)}
	_, err = broken.DrainThreshold()
	assert.Error(t, err)
}

func TestPortStatusFor(t *testing.T) {
	id := uint(7)
	assert.Equal(t, PortStatusBusy, PortStatusFor(&id))
	assert.Equal(t, PortStatusIdle, PortStatusFor(nil))
}

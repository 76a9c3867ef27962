package actorutil

import (
	"testing"

	"fieldsim/internal/core/domain"
	"fieldsim/internal/mqtt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsedPointCommandToRequestAnalog(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	req, err := ParsedPointCommandToRequest(mqtt.ParsedPointCommand{
		DeviceName: "VAV-1",
		ObjectID:   "av1",
		Payload:    "68.5",
	})
	require.NoError(err)

	setReq, ok := req.(domain.SetPointRequest)
	require.True(ok)
	assert.Equal("VAV-1", setReq.DeviceName)
	assert.Equal(domain.ObjectID{Kind: domain.AnalogValue, Index: 1}, setReq.ID)
	assert.Equal(68.5, setReq.Value)
}

func TestParsedPointCommandToRequestBinary(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	req, err := ParsedPointCommandToRequest(mqtt.ParsedPointCommand{
		DeviceName: "AHU-1",
		ObjectID:   "bv1",
		Payload:    "inactive",
	})
	require.NoError(err)

	setReq, ok := req.(domain.SetPointRequest)
	require.True(ok)
	assert.Equal(domain.Inactive, setReq.Value)
}

func TestParsedPointCommandToRequestRejectsGarbage(t *testing.T) {

	assert := assert.New(t)

	_, err := ParsedPointCommandToRequest(mqtt.ParsedPointCommand{
		DeviceName: "VAV-1", ObjectID: "zz1", Payload: "1",
	})
	assert.Error(err, "bad object id")

	_, err = ParsedPointCommandToRequest(mqtt.ParsedPointCommand{
		DeviceName: "VAV-1", ObjectID: "av1", Payload: "warm",
	})
	assert.Error(err, "bad analog payload")

	_, err = ParsedPointCommandToRequest(mqtt.ParsedPointCommand{
		DeviceName: "AHU-1", ObjectID: "bv1", Payload: "on",
	})
	assert.Error(err, "bad binary payload")
}

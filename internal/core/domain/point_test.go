package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObjectID(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	id, err := ParseObjectID("ai1")
	require.NoError(err)
	assert.Equal(ObjectID{Kind: AnalogInput, Index: 1}, id)

	id, err = ParseObjectID("av12")
	require.NoError(err)
	assert.Equal(ObjectID{Kind: AnalogValue, Index: 12}, id)

	for _, bad := range []string{"", "ai", "xx1", "ai0", "aione", "1ai"} {
		_, err := ParseObjectID(bad)
		assert.Error(err, "should reject %q", bad)
	}
}

func TestObjectIDRoundTrip(t *testing.T) {

	assert := assert.New(t)

	for _, kind := range []PointKind{AnalogInput, AnalogOutput, AnalogValue, BinaryInput, BinaryValue} {
		id := ObjectID{Kind: kind, Index: 3}
		parsed, err := ParseObjectID(id.String())
		assert.NoError(err)
		assert.Equal(id, parsed)
	}
}

func TestPointKindWritable(t *testing.T) {

	assert := assert.New(t)

	assert.False(AnalogInput.Writable())
	assert.False(BinaryInput.Writable())
	assert.True(AnalogOutput.Writable())
	assert.True(AnalogValue.Writable())
	assert.True(BinaryValue.Writable())
}

func TestParseBinaryState(t *testing.T) {

	assert := assert.New(t)

	s, err := ParseBinaryState("active")
	assert.NoError(err)
	assert.Equal(Active, s)

	s, err = ParseBinaryState("INACTIVE")
	assert.NoError(err)
	assert.Equal(Inactive, s)

	_, err = ParseBinaryState("on")
	assert.ErrorIs(err, ErrValueOutOfRange)
}

func TestNewAnalogPointClampsInitial(t *testing.T) {

	assert := assert.New(t)

	p := NewAnalogPoint(AnalogInput, 1, "t", "", UnitsDegreesFahrenheit, 90, &Bounds{Min: 65, Max: 80})
	assert.Equal(80.0, p.analog)
}

func TestValueString(t *testing.T) {

	assert := assert.New(t)

	analog := PointSnapshot{ID: ObjectID{Kind: AnalogInput, Index: 1}, Analog: 72.5}
	assert.Equal("72.50", analog.ValueString())

	binary := PointSnapshot{ID: ObjectID{Kind: BinaryInput, Index: 1}, Binary: Active}
	assert.Equal("active", binary.ValueString())
}
